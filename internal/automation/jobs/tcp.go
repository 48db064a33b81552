package jobs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/params"
	"github.com/nerrad567/showrunner/internal/infrastructure/netutil"
)

// TypeTCP sends a message over a TCP connection.
const TypeTCP = "tcp"

// DefaultTCPAnswerWindow is how long a TCP job waits for its answer.
const DefaultTCPAnswerWindow = 5000 * time.Millisecond

// TCPJob connects to ipAddress:portNumber and writes message. With an
// answer configured it waits for exactly that reply.
type TCPJob struct {
	automation.BaseJob
	window time.Duration
}

type tcpParams struct {
	ip      string
	port    int
	message []byte
	answer  string
}

func newTCPJob(spec automation.JobSpec, deps Deps) (automation.Job, error) {
	return &TCPJob{BaseJob: automation.BaseJob{Spec: spec}, window: deps.TCPAnswerWindow}, nil
}

func (j *TCPJob) parse(p params.Map) (tcpParams, error) {
	if err := params.Require(p, "ipAddress", "portNumber", "message"); err != nil {
		return tcpParams{}, err
	}
	port, err := params.Port(p, "portNumber")
	if err != nil {
		return tcpParams{}, err
	}
	msg, err := decodeMessage(p)
	if err != nil {
		return tcpParams{}, err
	}
	return tcpParams{
		ip:      params.StringOr(p, "ipAddress", ""),
		port:    port,
		message: msg,
		answer:  params.StringOr(p, "answer", ""),
	}, nil
}

// Check validates the static params.
func (j *TCPJob) Check() error {
	_, err := j.parse(j.Spec.Params)
	return err
}

// Execute sends the message and waits for the answer if one is set.
func (j *TCPJob) Execute(ctx context.Context, req automation.ExecuteRequest) error {
	cfg, err := j.parse(j.Params(req))
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(cfg.ip, strconv.Itoa(cfg.port))
	req.Log.Info("sending TCP packet", "address", addr, "bytes", len(cfg.message), "expects_answer", cfg.answer != "")

	return j.Guard(ctx, func(ctx context.Context) error {
		conn, err := netutil.DialTCP(ctx, addr)
		if err != nil {
			if netutil.IsRefused(err) {
				return automation.NewTransportError(
					fmt.Sprintf("Failed to send TCP packet: connect ECONNREFUSED %s", addr), err)
			}
			return automation.NewTransportError("Failed to send TCP packet: "+err.Error(), err)
		}
		defer conn.Close()

		if _, err := conn.Write(cfg.message); err != nil {
			return automation.NewTransportError("Failed to send TCP packet: "+err.Error(), err)
		}
		if cfg.answer == "" {
			return nil
		}

		got, err := netutil.ReadUntil(ctx, conn, []byte(cfg.answer), j.window)
		switch {
		case err == nil:
			req.Log.Debug("answer received", "answer", string(got))
			return nil
		case errors.Is(err, netutil.ErrNoAnswer):
			req.Log.Warn("expected answer not received", "received", string(got))
			return automation.NewTimeoutError(j.Name(), j.window)
		default:
			return automation.NewTransportError("TCP answer failed: "+err.Error(), err)
		}
	})
}
