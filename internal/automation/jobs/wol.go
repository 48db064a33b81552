package jobs

import (
	"bytes"
	"context"
	"net"
	"strconv"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/params"
	"github.com/nerrad567/showrunner/internal/infrastructure/netutil"
)

// TypeWOL wakes a machine.
const TypeWOL = "wol"

// Wake-on-LAN defaults.
const (
	DefaultWOLPort    = 7
	DefaultWOLAddress = "255.255.255.255"
)

// WOLJob broadcasts a magic packet for mac.
type WOLJob struct {
	automation.BaseJob
	send func(ctx context.Context, addr string, payload []byte) error
}

type wolParams struct {
	addr   string
	packet []byte
}

func newWOLJob(spec automation.JobSpec, _ Deps) (automation.Job, error) {
	return &WOLJob{BaseJob: automation.BaseJob{Spec: spec}, send: netutil.SendUDP}, nil
}

// MagicPacket returns 6×0xFF followed by the MAC repeated 16 times.
func MagicPacket(mac string) ([]byte, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) != 6 {
		return nil, automation.NewValidationError("mac %q is not a 48-bit MAC address", mac)
	}
	pkt := bytes.Repeat([]byte{0xFF}, 6)
	for range 16 {
		pkt = append(pkt, hw...)
	}
	return pkt, nil
}

func (j *WOLJob) parse(p params.Map) (wolParams, error) {
	mac, err := params.String(p, "mac")
	if err != nil {
		return wolParams{}, err
	}
	pkt, err := MagicPacket(mac)
	if err != nil {
		return wolParams{}, err
	}
	port, err := params.PortOr(p, "port", DefaultWOLPort)
	if err != nil {
		return wolParams{}, err
	}
	host := params.StringOr(p, "address", DefaultWOLAddress)
	return wolParams{addr: net.JoinHostPort(host, strconv.Itoa(port)), packet: pkt}, nil
}

// Check validates the static params.
func (j *WOLJob) Check() error {
	_, err := j.parse(j.Spec.Params)
	return err
}

// Execute sends the magic packet.
func (j *WOLJob) Execute(ctx context.Context, req automation.ExecuteRequest) error {
	cfg, err := j.parse(j.Params(req))
	if err != nil {
		return err
	}
	req.Log.Info("sending wake-on-lan packet", "address", cfg.addr)

	return j.Guard(ctx, func(ctx context.Context) error {
		if err := j.send(ctx, cfg.addr, cfg.packet); err != nil {
			return automation.NewTransportError("Failed to send magic packet: "+err.Error(), err)
		}
		return nil
	})
}
