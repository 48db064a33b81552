package jobs

import (
	"context"
	"errors"
	"strings"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/params"
	"github.com/nerrad567/showrunner/internal/bridges/pjlink"
)

// TypePJLink sends a projector command.
const TypePJLink = "pjlink"

// PJLinkJob sends command (default POWR) with argument to a projector.
// The action shorthand "on"/"off" maps to POWR 1/0.
type PJLinkJob struct {
	automation.BaseJob
	defaultPort int
}

type pjlinkParams struct {
	cfg     pjlink.Config
	command string
	arg     string
}

func newPJLinkJob(spec automation.JobSpec, deps Deps) (automation.Job, error) {
	return &PJLinkJob{BaseJob: automation.BaseJob{Spec: spec}, defaultPort: deps.PJLinkPort}, nil
}

func (j *PJLinkJob) parse(p params.Map) (pjlinkParams, error) {
	ip, err := params.String(p, "ipAddress")
	if err != nil {
		return pjlinkParams{}, err
	}
	port, err := params.PortOr(p, "port", j.defaultPort)
	if err != nil {
		return pjlinkParams{}, err
	}
	class, err := params.IntOr(p, "class", "class", 1, 2, 1)
	if err != nil {
		return pjlinkParams{}, err
	}

	command := strings.ToUpper(params.StringOr(p, "command", pjlink.CmdPower))
	arg := params.StringOr(p, "argument", "")
	switch strings.ToLower(params.StringOr(p, "action", "")) {
	case "":
	case "on":
		command, arg = pjlink.CmdPower, "1"
	case "off":
		command, arg = pjlink.CmdPower, "0"
	default:
		return pjlinkParams{}, automation.NewValidationError("action must be on or off")
	}
	if len(command) != 4 {
		return pjlinkParams{}, automation.NewValidationError("command must be a 4 letter PJLink command")
	}
	if arg == "" {
		return pjlinkParams{}, automation.NewValidationError("Missing required parameter: argument")
	}

	return pjlinkParams{
		cfg: pjlink.Config{
			Host:     ip,
			Port:     port,
			Password: params.StringOr(p, "password", ""),
			Class:    class,
		},
		command: command,
		arg:     arg,
	}, nil
}

// Check validates the static params.
func (j *PJLinkJob) Check() error {
	_, err := j.parse(j.Spec.Params)
	return err
}

// Execute sends the command.
func (j *PJLinkJob) Execute(ctx context.Context, req automation.ExecuteRequest) error {
	cfg, err := j.parse(j.Params(req))
	if err != nil {
		return err
	}
	client := pjlink.NewClient(cfg.cfg)
	req.Log.Info("sending pjlink command", "address", client.Addr(), "command", cfg.command, "argument", cfg.arg)

	return j.Guard(ctx, func(ctx context.Context) error {
		value, err := client.Do(ctx, cfg.command, cfg.arg)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			if errors.Is(err, pjlink.ErrAuth) {
				return automation.NewValidationError("PJLink authentication failed for %s", client.Addr())
			}
			return automation.NewTransportError("PJLink command failed: "+err.Error(), err)
		}
		req.Log.Debug("pjlink reply", "value", value)
		return nil
	})
}
