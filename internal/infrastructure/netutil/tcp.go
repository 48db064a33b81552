package netutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// DialTCP connects to addr, honouring ctx.
func DialTCP(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// ListenTCP opens a TCP listener on laddr.
func ListenTCP(ctx context.Context, laddr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", laddr)
}

// IsRefused reports whether err is a refused connection.
func IsRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// ErrNoAnswer is returned by ReadUntil when the window elapses without the
// expected bytes.
var ErrNoAnswer = errors.New("netutil: expected answer not received")

// ReadUntil reads from conn until the accumulated buffer equals want (after
// trimming trailing CR/LF), the window elapses, or ctx is done. An elapsed
// window yields ErrNoAnswer.
func ReadUntil(ctx context.Context, conn net.Conn, want []byte, window time.Duration) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		return nil, err
	}
	stop := CloseOnDone(ctx, conn)
	defer stop()

	var acc []byte
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		acc = append(acc, buf[:n]...)
		if bytes.Equal(bytes.TrimRight(acc, "\r\n"), want) {
			return acc, nil
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return acc, fmt.Errorf("%w after %d ms", ErrNoAnswer, window.Milliseconds())
			}
			if errors.Is(err, io.EOF) {
				return acc, fmt.Errorf("connection closed before answer: %w", err)
			}
			return acc, err
		}
	}
}
