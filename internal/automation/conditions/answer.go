package conditions

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/params"
	"github.com/nerrad567/showrunner/internal/infrastructure/netutil"
)

// Socket probe types.
const (
	TypeTCPAnswer = "tcpAnswer"
	TypeUDPAnswer = "udpAnswer"
)

// TCPAnswer is true when ipAddress:portNumber accepts a connection and,
// if answer is set, replies to message with exactly answer.
type TCPAnswer struct {
	automation.BaseCondition
}

func newTCPAnswer(spec automation.ConditionSpec, _ Deps) (automation.Condition, error) {
	c := &TCPAnswer{}
	c.Init(spec)
	if _, _, err := target(spec.Params, "ipAddress", "portNumber"); err != nil {
		return nil, err
	}
	return c, nil
}

// Evaluate connects and optionally exchanges a message.
func (c *TCPAnswer) Evaluate(ctx context.Context, req automation.EvaluateRequest) (bool, error) {
	addr, _, err := target(c.Spec.Params, "ipAddress", "portNumber")
	if err != nil {
		return false, err
	}
	message := params.StringOr(c.Spec.Params, "message", "")
	answer := params.StringOr(c.Spec.Params, "answer", "")
	window := c.TimeoutValue()

	return c.Guard(ctx, func(ctx context.Context) (bool, error) {
		dialCtx, cancel := context.WithTimeout(ctx, window)
		defer cancel()

		conn, err := netutil.DialTCP(dialCtx, addr)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			req.Log.Debug("tcp probe not connected", "address", addr, "error", err)
			return false, nil
		}
		defer conn.Close()

		if message != "" {
			if _, err := conn.Write([]byte(message)); err != nil {
				return false, automation.NewTransportError("tcp probe write failed: "+err.Error(), err)
			}
		}
		if answer == "" {
			return true, nil
		}

		got, err := netutil.ReadUntil(ctx, conn, []byte(answer), window)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			req.Log.Debug("tcp probe answer mismatch", "address", addr, "received", string(got))
			return false, nil
		}
		return true, nil
	})
}

// UDPAnswer is true when serverIP:serverPort replies to message with
// answer (or with anything when answer is empty).
type UDPAnswer struct {
	automation.BaseCondition
}

func newUDPAnswer(spec automation.ConditionSpec, _ Deps) (automation.Condition, error) {
	c := &UDPAnswer{}
	c.Init(spec)
	if _, _, err := target(spec.Params, "serverIP", "serverPort"); err != nil {
		return nil, err
	}
	if err := params.Require(spec.Params, "message"); err != nil {
		return nil, err
	}
	return c, nil
}

// Evaluate sends message and waits for the reply.
func (c *UDPAnswer) Evaluate(ctx context.Context, req automation.EvaluateRequest) (bool, error) {
	addr, _, err := target(c.Spec.Params, "serverIP", "serverPort")
	if err != nil {
		return false, err
	}
	message, err := params.String(c.Spec.Params, "message")
	if err != nil {
		return false, err
	}
	answer := params.StringOr(c.Spec.Params, "answer", "")
	window := c.TimeoutValue()

	return c.Guard(ctx, func(ctx context.Context) (bool, error) {
		got, err := netutil.ExchangeUDP(ctx, addr, []byte(message), window)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				req.Log.Debug("udp probe got no reply", "address", addr)
				return false, nil
			}
			return false, automation.NewTransportError("udp probe failed: "+err.Error(), err)
		}
		if answer == "" {
			return true, nil
		}
		ok := bytes.Equal(bytes.TrimRight(got, "\r\n"), []byte(answer))
		if !ok {
			req.Log.Debug("udp probe answer mismatch", "address", addr, "received", string(got))
		}
		return ok, nil
	})
}

func target(p params.Map, hostKey, portKey string) (string, int, error) {
	if err := params.Require(p, hostKey, portKey); err != nil {
		return "", 0, err
	}
	port, err := params.Port(p, portKey)
	if err != nil {
		return "", 0, err
	}
	return net.JoinHostPort(params.StringOr(p, hostKey, ""), strconv.Itoa(port)), port, nil
}
