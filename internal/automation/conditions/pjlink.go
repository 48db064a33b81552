package conditions

import (
	"context"
	"errors"
	"strings"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/params"
	"github.com/nerrad567/showrunner/internal/bridges/pjlink"
)

// TypePJLinkStatus checks a projector's power state.
const TypePJLinkStatus = "pjlinkStatus"

// PJLinkStatus is true when the projector reports the expected power state.
type PJLinkStatus struct {
	automation.BaseCondition
	want pjlink.PowerStatus
	cfg  pjlink.Config
}

var powerNames = map[string]pjlink.PowerStatus{
	"off": pjlink.PowerOff, "0": pjlink.PowerOff,
	"on": pjlink.PowerOn, "1": pjlink.PowerOn,
	"cooling": pjlink.PowerCooling, "2": pjlink.PowerCooling,
	"warming": pjlink.PowerWarming, "3": pjlink.PowerWarming,
}

func newPJLinkStatus(spec automation.ConditionSpec, deps Deps) (automation.Condition, error) {
	c := &PJLinkStatus{}
	c.Init(spec)

	ip, err := params.String(spec.Params, "ipAddress")
	if err != nil {
		return nil, err
	}
	port, err := params.PortOr(spec.Params, "port", deps.PJLinkPort)
	if err != nil {
		return nil, err
	}
	want, ok := powerNames[strings.ToLower(params.StringOr(spec.Params, "status", "on"))]
	if !ok {
		return nil, automation.NewValidationError("status must be one of off, on, cooling, warming")
	}
	c.want = want
	c.cfg = pjlink.Config{
		Host:     ip,
		Port:     port,
		Password: params.StringOr(spec.Params, "password", ""),
	}
	return c, nil
}

// Evaluate queries POWR.
func (c *PJLinkStatus) Evaluate(ctx context.Context, req automation.EvaluateRequest) (bool, error) {
	cfg := c.cfg
	cfg.Timeout = c.TimeoutValue()
	client := pjlink.NewClient(cfg)

	return c.Guard(ctx, func(ctx context.Context) (bool, error) {
		got, err := client.Power(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return false, ctx.Err()
		case errors.Is(err, pjlink.ErrAuth):
			return false, automation.NewValidationError("PJLink authentication failed for %s", client.Addr())
		default:
			req.Log.Debug("projector status unavailable", "address", client.Addr(), "error", err)
			return false, nil
		}
		req.Log.Debug("projector power", "status", got.String(), "want", c.want.String())
		return got == c.want, nil
	})
}
