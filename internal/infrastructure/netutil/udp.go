package netutil

import (
	"context"
	"fmt"
	"net"
	"time"
)

// ListenUDP opens an IPv4 UDP socket with SO_BROADCAST enabled. laddr may
// be ":0" for an ephemeral port.
func ListenUDP(ctx context.Context, laddr string) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: enableBroadcast}
	conn, err := lc.ListenPacket(ctx, "udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", laddr, err)
	}
	return conn, nil
}

// SendUDP writes one datagram to addr. Broadcast addresses are permitted.
func SendUDP(ctx context.Context, addr string, payload []byte) error {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", addr, err)
	}
	conn, err := ListenUDP(ctx, ":0")
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := CloseOnDone(ctx, conn)
	defer stop()

	if _, err := conn.WriteTo(payload, raddr); err != nil {
		return fmt.Errorf("sending to %s: %w", addr, err)
	}
	return nil
}

// ExchangeUDP sends payload to addr and returns the first datagram that
// arrives from the same host within window.
func ExchangeUDP(ctx context.Context, addr string, payload []byte, window time.Duration) ([]byte, error) {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", addr, err)
	}
	conn, err := ListenUDP(ctx, ":0")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	stop := CloseOnDone(ctx, conn)
	defer stop()

	if _, err := conn.WriteTo(payload, raddr); err != nil {
		return nil, fmt.Errorf("sending to %s: %w", addr, err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		return nil, err
	}

	buf := make([]byte, 2048)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			return nil, err
		}
		if u, ok := from.(*net.UDPAddr); ok && u.IP.Equal(raddr.IP) {
			return append([]byte(nil), buf[:n]...), nil
		}
	}
}

// closer is anything CloseOnDone can unblock.
type closer interface {
	Close() error
}

// CloseOnDone closes c when ctx is done, unblocking any pending read or
// write. The returned function releases the watcher.
func CloseOnDone(ctx context.Context, c closer) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
