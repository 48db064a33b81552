package conditions

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/params"
)

// TypePing checks ICMP reachability.
const TypePing = "ping"

// Ping is true when ipAddress answers an ICMP echo within the timeout.
type Ping struct {
	automation.BaseCondition
}

func newPing(spec automation.ConditionSpec, _ Deps) (automation.Condition, error) {
	c := &Ping{}
	c.Init(spec)
	return c, nil
}

// Evaluate sends one echo request.
func (c *Ping) Evaluate(ctx context.Context, req automation.EvaluateRequest) (bool, error) {
	host, err := params.String(c.Spec.Params, "ipAddress")
	if err != nil {
		return false, err
	}
	timeout := c.TimeoutValue()

	return c.Guard(ctx, func(ctx context.Context) (bool, error) {
		ok, rtt, err := echo(ctx, host, timeout)
		if err != nil {
			return false, automation.NewTransportError("ping failed: "+err.Error(), err)
		}
		if ok {
			req.Log.Debug("ping reply", "host", host, "rtt_ms", rtt.Milliseconds())
		} else {
			req.Log.Debug("no ping reply", "host", host, "timeout_ms", timeout.Milliseconds())
		}
		return ok, nil
	})
}

// echo pings host once. It prefers an unprivileged datagram socket and
// falls back to a raw socket.
func echo(ctx context.Context, host string, timeout time.Duration) (bool, time.Duration, error) {
	ip, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return false, 0, err
	}

	network, dst := "udp4", net.Addr(&net.UDPAddr{IP: ip.IP})
	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		network, dst = "ip4:icmp", ip
		if conn, err = icmp.ListenPacket(network, "0.0.0.0"); err != nil {
			return false, 0, fmt.Errorf("opening icmp socket: %w", err)
		}
	}
	defer conn.Close()

	id := os.Getpid() & 0xffff
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{ID: id, Seq: 1, Data: []byte("showrunner")},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return false, 0, err
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	start := time.Now()
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return false, 0, err
	}

	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return false, 0, nil
			}
			return false, 0, err
		}
		reply, err := icmp.ParseMessage(1, rb[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		if !sameHost(peer, ip.IP) {
			continue
		}
		// Datagram sockets rewrite the id; raw sockets must match ours.
		if body, ok := reply.Body.(*icmp.Echo); ok && network == "ip4:icmp" && body.ID != id {
			continue
		}
		return true, time.Since(start), nil
	}
}

func sameHost(addr net.Addr, ip net.IP) bool {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	case *net.IPAddr:
		return a.IP.Equal(ip)
	default:
		return false
	}
}
