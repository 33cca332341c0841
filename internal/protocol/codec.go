// Package protocol implements the two wire formats spoken by the conversion
// server. A deployment picks exactly one of them; both frame a message as
// whatever a single transport read returns.
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"fx-converter/internal/conversion"
)

const (
	// Text is the pipe-delimited ASCII format.
	Text = "text"
	// Binary is the fixed-width big-endian format.
	Binary = "binary"

	// ErrorPrefix starts every error response in both formats.
	ErrorPrefix = "ERROR: "
)

// FramingError reports a request that could not be decoded.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string {
	return "invalid request: " + e.Reason
}

func framingErrorf(format string, args ...any) error {
	return &FramingError{Reason: fmt.Sprintf(format, args...)}
}

// ErrFrameTooLarge is the framing error for a request that filled the whole
// read buffer of limit bytes.
func ErrFrameTooLarge(limit int) error {
	return framingErrorf("request must be shorter than %d bytes", limit)
}

// IsFraming reports whether err is a FramingError.
func IsFraming(err error) bool {
	var fe *FramingError
	return errors.As(err, &fe)
}

// Reply is a decoded server response as seen by a client.
type Reply struct {
	From   string
	To     string
	Amount float64
	Result conversion.Result
	// Err holds the server's error message without ErrorPrefix.
	Err string
}

// Failed reports whether the server answered with an error.
func (r Reply) Failed() bool { return r.Err != "" }

// Codec converts between wire bytes and conversion values.
type Codec interface {
	Name() string

	// DecodeRequest validates one framed request. Malformed input yields a
	// *FramingError; a non-positive amount yields conversion.ErrInvalidAmount.
	DecodeRequest(frame []byte) (conversion.Request, error)
	EncodeResult(req conversion.Request, res conversion.Result) ([]byte, error)
	EncodeError(err error) []byte

	EncodeRequest(req conversion.Request) ([]byte, error)
	DecodeResponse(frame []byte) (Reply, error)
}

// New returns the codec registered under name.
func New(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Text:
		return TextCodec{}, nil
	case Binary:
		return BinaryCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown protocol %q", name)
	}
}

func encodeError(err error) []byte {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return []byte(ErrorPrefix + msg)
}

func parseError(frame []byte) (string, bool) {
	s := string(frame)
	if !strings.HasPrefix(s, strings.TrimSpace(ErrorPrefix)) {
		return "", false
	}
	msg := strings.TrimSpace(strings.TrimPrefix(s, strings.TrimSpace(ErrorPrefix)))
	if msg == "" {
		msg = "unknown error"
	}
	return msg, true
}

func normalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 3 {
		return "", framingErrorf("invalid currency code %q", raw)
	}
	for i := 0; i < 3; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return "", framingErrorf("invalid currency code %q", raw)
		}
	}
	return code, nil
}
