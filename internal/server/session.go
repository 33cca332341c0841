package server

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
)

// Reasons a session ends, used for logs and metrics.
const (
	closePeer      = "peer_closed"
	closeIdle      = "idle_timeout"
	closeTransport = "transport_error"
	closeFraming   = "framing_error"
	closeSingle    = "single_shot"
	closeShutdown  = "shutdown"
	closePanic     = "panic"
)

// session is the per-connection state owned by one handler goroutine.
type session struct {
	seq          uint64
	id           string
	peer         string
	idleDeadline time.Time
	requests     uint64
}

func newSession(conn net.Conn, seq uint64) *session {
	peer := "unknown"
	if addr := conn.RemoteAddr(); addr != nil {
		peer = addr.String()
	}
	return &session{
		seq:  seq,
		id:   uuid.NewString(),
		peer: peer,
	}
}

// arm pushes the idle deadline forward for the next read.
func (s *session) arm(conn net.Conn, idle time.Duration) error {
	s.idleDeadline = time.Now().Add(idle)
	return conn.SetReadDeadline(s.idleDeadline)
}

func classifyReadError(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return closeShutdown
	}
	if errors.Is(err, io.EOF) {
		return closePeer
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return closeIdle
	}
	return closeTransport
}
