package jobs

import (
	"context"
	"net"
	"strconv"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/params"
	"github.com/nerrad567/showrunner/internal/infrastructure/netutil"
)

// TypeUDP sends one datagram.
const TypeUDP = "udp"

// UDPJob sends message to serverIP:serverPort. Broadcast addresses work.
type UDPJob struct {
	automation.BaseJob
	send func(ctx context.Context, addr string, payload []byte) error
}

type udpParams struct {
	addr    string
	message []byte
}

func newUDPJob(spec automation.JobSpec, _ Deps) (automation.Job, error) {
	return &UDPJob{BaseJob: automation.BaseJob{Spec: spec}, send: netutil.SendUDP}, nil
}

func (j *UDPJob) parse(p params.Map) (udpParams, error) {
	if err := params.Require(p, "serverIP", "serverPort", "message"); err != nil {
		return udpParams{}, err
	}
	port, err := params.Port(p, "serverPort")
	if err != nil {
		return udpParams{}, err
	}
	ip := params.StringOr(p, "serverIP", "")
	msg, err := decodeMessage(p)
	if err != nil {
		return udpParams{}, err
	}
	return udpParams{addr: net.JoinHostPort(ip, strconv.Itoa(port)), message: msg}, nil
}

// Check validates the static params.
func (j *UDPJob) Check() error {
	_, err := j.parse(j.Spec.Params)
	return err
}

// Execute sends the datagram.
func (j *UDPJob) Execute(ctx context.Context, req automation.ExecuteRequest) error {
	cfg, err := j.parse(j.Params(req))
	if err != nil {
		return err
	}
	req.Log.Info("sending UDP packet", "address", cfg.addr, "bytes", len(cfg.message))

	return j.Guard(ctx, func(ctx context.Context) error {
		if err := j.send(ctx, cfg.addr, cfg.message); err != nil {
			return automation.NewTransportError("Failed to send UDP packet: "+err.Error(), err)
		}
		return nil
	})
}
