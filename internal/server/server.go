// Package server accepts TCP connections and answers conversion requests on
// each of them in its own goroutine.
//
// There is no cap on concurrent connections and no admission control; every
// accepted connection gets a handler for as long as it stays open.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"fx-converter/internal/conversion"
	"fx-converter/internal/metrics"
	"fx-converter/internal/protocol"
)

const (
	DefaultIdleTimeout     = 30 * time.Second
	DefaultReadBufferSize  = 1024
	DefaultShutdownTimeout = 5 * time.Second

	discardWindow = 100 * time.Millisecond
)

// Mode selects whether a connection serves one request or many.
type Mode string

const (
	// ModeSingle closes the connection after the first response.
	ModeSingle Mode = "single"
	// ModePersistent keeps reading requests until idle timeout, peer close
	// or a framing/transport error.
	ModePersistent Mode = "persistent"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSingle:
		return ModeSingle, nil
	case ModePersistent, "":
		return ModePersistent, nil
	default:
		return "", fmt.Errorf("unknown server mode %q", s)
	}
}

// Handler answers one decoded request.
type Handler interface {
	Convert(ctx context.Context, req conversion.Request) (conversion.Result, error)
}

// Options tune the server.
type Options struct {
	Addr            string
	Mode            Mode
	IdleTimeout     time.Duration
	ReadBufferSize  int
	ShutdownTimeout time.Duration
}

// Server is the TCP front end. The zero value is not usable; call New.
type Server struct {
	opts    Options
	codec   protocol.Codec
	handler Handler
	metrics *metrics.Metrics
	logger  zerolog.Logger

	active atomic.Int64
	served atomic.Uint64

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// New builds a server speaking codec. m may be nil.
func New(opts Options, codec protocol.Codec, handler Handler, m *metrics.Metrics, logger zerolog.Logger) *Server {
	if opts.Mode == "" {
		opts.Mode = ModePersistent
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = DefaultReadBufferSize
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}

	return &Server{
		opts:    opts,
		codec:   codec,
		handler: handler,
		metrics: m,
		logger:  logger.With().Str("component", "server").Str("protocol", codec.Name()).Logger(),
		conns:   make(map[net.Conn]struct{}),
	}
}

// ActiveConnections returns the number of open sessions.
func (s *Server) ActiveConnections() int64 {
	return s.active.Load()
}

// Served returns how many connections were accepted since start.
func (s *Server) Served() uint64 {
	return s.served.Load()
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes the
// listener, drains open sessions and returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("mode", string(s.opts.Mode)).
		Dur("idle_timeout", s.opts.IdleTimeout).
		Msg("conversion server listening")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return s.drain()
			}
			if errors.Is(err, net.ErrClosed) {
				_ = s.drain()
				return fmt.Errorf("accept: %w", err)
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.logger.Error().Err(err).Dur("retry_in", backoff).Msg("accept failed")
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.track(conn)
		active := s.active.Add(1)
		s.metrics.ConnectionOpened()
		seq := s.served.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn, seq, active)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn, seq uint64, active int64) {
	sess := newSession(conn, seq)
	logger := s.logger.With().
		Str("session", sess.id).
		Uint64("conn_id", sess.seq).
		Str("peer", sess.peer).
		Logger()

	logger.Info().Int64("active", active).Msg("connection accepted")

	reason := closePeer
	defer func() {
		if r := recover(); r != nil {
			reason = closePanic
			logger.Error().Interface("panic", r).Msg("connection handler panicked")
		}
		_ = conn.Close()
		s.untrack(conn)

		active := s.active.Add(-1)
		s.metrics.ConnectionClosed(reason)
		logger.Info().
			Str("reason", reason).
			Uint64("requests", sess.requests).
			Int64("active", active).
			Msg("connection closed")
	}()

	buf := make([]byte, s.opts.ReadBufferSize)
	for {
		if ctx.Err() != nil {
			reason = closeShutdown
			return
		}
		if err := sess.arm(conn, s.opts.IdleTimeout); err != nil {
			reason = classifyReadError(ctx, err)
			return
		}

		n, err := conn.Read(buf)
		if n == 0 {
			if err == nil {
				continue
			}
			reason = classifyReadError(ctx, err)
			if reason == closeTransport {
				logger.Warn().Err(err).Msg("read failed")
			}
			return
		}

		sess.requests++
		if n == len(buf) {
			// one read is one request, so a full buffer means it was cut
			reason = s.reject(conn, protocol.ErrFrameTooLarge(len(buf)), logger)
			discard(conn, buf)
			return
		}
		if closeReason := s.exchange(ctx, conn, buf[:n], logger); closeReason != "" {
			reason = closeReason
			return
		}
		if s.opts.Mode == ModeSingle {
			reason = closeSingle
			return
		}
	}
}

// exchange answers one frame. It returns a non-empty close reason when the
// session must end.
func (s *Server) exchange(ctx context.Context, conn net.Conn, frame []byte, logger zerolog.Logger) string {
	started := time.Now()

	req, err := s.codec.DecodeRequest(frame)
	if err != nil {
		logger.Debug().Err(err).Int("bytes", len(frame)).Msg("request rejected")
		return s.reply(conn, s.codec.EncodeError(err), statusOf(err), started, logger, closeFraming)
	}

	res, err := s.handler.Convert(ctx, req)
	var resp []byte
	if err == nil {
		resp, err = s.codec.EncodeResult(req, res)
	}
	if err != nil {
		logger.Debug().Err(err).Str("from", req.From).Str("to", req.To).Msg("conversion failed")
		return s.reply(conn, s.codec.EncodeError(err), statusOf(err), started, logger, "")
	}

	logger.Debug().
		Str("from", req.From).
		Str("to", req.To).
		Float64("amount", req.Amount).
		Float64("result", res.Amount).
		Msg("conversion answered")
	return s.reply(conn, resp, "success", started, logger, "")
}

// reject answers a frame that never reached the codec and ends the session.
func (s *Server) reject(conn net.Conn, err error, logger zerolog.Logger) string {
	logger.Debug().Err(err).Msg("request rejected")
	return s.reply(conn, s.codec.EncodeError(err), statusOf(err), time.Now(), logger, closeFraming)
}

// reply writes resp and records it. It returns onSuccess once the write went
// through, closeTransport otherwise.
func (s *Server) reply(conn net.Conn, resp []byte, status string, started time.Time, logger zerolog.Logger, onSuccess string) string {
	if err := conn.SetWriteDeadline(time.Now().Add(s.opts.IdleTimeout)); err != nil {
		logger.Warn().Err(err).Msg("set write deadline failed")
		return closeTransport
	}
	if _, err := conn.Write(resp); err != nil {
		logger.Warn().Err(err).Msg("write failed")
		return closeTransport
	}
	s.metrics.RecordRequest(s.codec.Name(), status, time.Since(started))
	return onSuccess
}

// discard drops the unread rest of an oversized request so closing does not
// reset the connection before the peer sees the error.
func discard(conn net.Conn, buf []byte) {
	if err := conn.SetReadDeadline(time.Now().Add(discardWindow)); err != nil {
		return
	}
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

func statusOf(err error) string {
	var unknown *conversion.UnknownCurrencyError
	switch {
	case protocol.IsFraming(err):
		return "framing_error"
	case errors.As(err, &unknown):
		return "unknown_currency"
	case errors.Is(err, conversion.ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "error"
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// drain wakes idle readers, waits for handlers up to the shutdown timeout and
// then force-closes whatever is left.
func (s *Server) drain() error {
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.opts.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		s.mu.Lock()
		remaining := len(s.conns)
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		s.logger.Warn().Int("connections", remaining).Msg("shutdown timeout; closing remaining connections")
		<-done
	}

	s.logger.Info().Uint64("served", s.Served()).Msg("conversion server stopped")
	return nil
}
