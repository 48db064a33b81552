package jobs

import (
	"context"
	"time"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/params"
	"github.com/nerrad567/showrunner/internal/bridges/artnet"
)

// TypeArtNet drives DMX channels over Art-Net.
const TypeArtNet = "artnet"

// ArtNetJob sets channels of one universe to value, fading over
// interpolationTime when it is positive.
type ArtNetJob struct {
	automation.BaseJob
	pool        *artnet.Pool
	defaultPort int
}

type artnetParams struct {
	key      artnet.Key
	channels []int
	value    byte
	fade     time.Duration
}

func newArtNetJob(spec automation.JobSpec, deps Deps) (automation.Job, error) {
	return &ArtNetJob{
		BaseJob:     automation.BaseJob{Spec: spec},
		pool:        deps.ArtNet,
		defaultPort: deps.ArtNetPort,
	}, nil
}

func (j *ArtNetJob) parse(p params.Map) (artnetParams, error) {
	if err := params.Require(p, "ipAddress", "channels", "value"); err != nil {
		return artnetParams{}, err
	}
	channels, err := artnet.ParseChannels(params.StringOr(p, "channels", ""))
	if err != nil {
		return artnetParams{}, automation.NewValidationError("%v", err)
	}
	value, err := params.Int(p, "value", "value", 0, 255)
	if err != nil {
		return artnetParams{}, err
	}
	port, err := params.PortOr(p, "port", j.defaultPort)
	if err != nil {
		return artnetParams{}, err
	}
	universe, err := params.IntOr(p, "universe", "universe", 0, 15, 0)
	if err != nil {
		return artnetParams{}, err
	}
	subnet, err := params.IntOr(p, "subnet", "subnet", 0, 15, 0)
	if err != nil {
		return artnetParams{}, err
	}
	netw, err := params.IntOr(p, "net", "net", 0, 127, 0)
	if err != nil {
		return artnetParams{}, err
	}
	fade, err := params.Millis(p, "interpolationTime", 0)
	if err != nil {
		return artnetParams{}, err
	}
	return artnetParams{
		key: artnet.Key{
			Host:    params.StringOr(p, "ipAddress", ""),
			Port:    port,
			Address: artnet.Address{Net: netw, SubNet: subnet, Universe: universe},
		},
		channels: channels,
		value:    byte(value),
		fade:     fade,
	}, nil
}

// Check validates the static params.
func (j *ArtNetJob) Check() error {
	_, err := j.parse(j.Spec.Params)
	return err
}

// Execute updates the universe frame and transmits it.
func (j *ArtNetJob) Execute(ctx context.Context, req automation.ExecuteRequest) error {
	cfg, err := j.parse(j.Params(req))
	if err != nil {
		return err
	}
	sender, err := j.pool.Sender(cfg.key)
	if err != nil {
		return automation.NewValidationError("%v", err)
	}
	req.Log.Info("sending art-net frame",
		"host", cfg.key.Host, "universe", cfg.key.Address.Universe,
		"channels", len(cfg.channels), "value", cfg.value, "fade_ms", cfg.fade.Milliseconds())

	return j.Guard(ctx, func(ctx context.Context) error {
		if err := sender.Set(ctx, cfg.channels, cfg.value, cfg.fade); err != nil {
			if ctx.Err() != nil {
				return err
			}
			return automation.NewTransportError("Failed to send Art-Net packet: "+err.Error(), err)
		}
		return nil
	})
}
