package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"fx-converter/internal/conversion"
	"fx-converter/internal/protocol"
)

// ConvertOptions configure a one-shot client request.
type ConvertOptions struct {
	Addr     string
	Protocol string
	Timeout  time.Duration
	From     string
	To       string
	Amount   float64
	Out      io.Writer
}

// Convert sends one request to a running server and prints the reply. A
// server-side error is returned as an error.
func (a *App) Convert(ctx context.Context, opts ConvertOptions) error {
	codec, err := protocol.New(opts.Protocol)
	if err != nil {
		return err
	}

	req := conversion.Request{From: opts.From, To: opts.To, Amount: opts.Amount}
	frame, err := codec.EncodeRequest(req)
	if err != nil {
		return err
	}

	reply, err := exchange(ctx, opts.Addr, opts.Timeout, codec, frame)
	if err != nil {
		return err
	}
	if reply.Failed() {
		return fmt.Errorf("server error: %s", reply.Err)
	}

	printReply(opts.Out, codec.Name(), req, reply)
	return nil
}

func exchange(ctx context.Context, addr string, timeout time.Duration, codec protocol.Codec, frame []byte) (protocol.Reply, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return protocol.Reply{}, err
	}
	if _, err := conn.Write(frame); err != nil {
		return protocol.Reply{}, fmt.Errorf("send request: %w", err)
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("read response: %w", err)
	}
	return codec.DecodeResponse(buf[:n])
}

func printReply(out io.Writer, codecName string, req conversion.Request, reply protocol.Reply) {
	amount := protocol.FormatAmount(req.Amount)
	result := protocol.FormatAmount(reply.Result.Amount)
	rate := protocol.FormatRate(reply.Result.Rate)

	if codecName == protocol.Text {
		fmt.Fprintf(out, "%s %s = %s %s (rate %s, updated %s, source %s)\n",
			amount, reply.From, result, reply.To, rate,
			reply.Result.UpdatedAt.Format(protocol.UpdatedAtLayout), reply.Result.Source)
		return
	}
	fmt.Fprintf(out, "%s %s = %s %s (rate %s)\n", amount, strings.ToUpper(req.From), result, strings.ToUpper(req.To), rate)
}
