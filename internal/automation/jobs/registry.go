package jobs

import (
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/bridges/artnet"
)

// Deps are the shared collaborators handed to job constructors.
type Deps struct {
	// ArtNet is the process-wide sender pool.
	ArtNet *artnet.Pool
	// TCPAnswerWindow is the default wait for a TCP job's answer.
	TCPAnswerWindow time.Duration
	// PJLinkPort is used when a pjlink job names no port.
	PJLinkPort int
	// ArtNetPort is used when an artnet job names no port.
	ArtNetPort int
}

func (d Deps) withDefaults() Deps {
	if d.ArtNet == nil {
		d.ArtNet = artnet.NewPool()
	}
	if d.TCPAnswerWindow <= 0 {
		d.TCPAnswerWindow = DefaultTCPAnswerWindow
	}
	if d.PJLinkPort == 0 {
		d.PJLinkPort = 4352
	}
	if d.ArtNetPort == 0 {
		d.ArtNetPort = artnet.DefaultPort
	}
	return d
}

// Factory builds a job from its spec.
type Factory func(spec automation.JobSpec, deps Deps) (automation.Job, error)

var factories = map[string]Factory{
	TypeUDP:    newUDPJob,
	TypeTCP:    newTCPJob,
	TypeArtNet: newArtNetJob,
	TypeWOL:    newWOLJob,
	TypeWait:   newWaitJob,
	TypePJLink: newPJLinkJob,
}

// New builds the job named by spec.Type.
func New(spec automation.JobSpec, deps Deps) (automation.Job, error) {
	f, ok := factories[spec.Type]
	if !ok {
		return nil, automation.NewValidationError("unknown job type %q", spec.Type)
	}
	if spec.ID == "" {
		return nil, automation.NewValidationError("job id is required")
	}
	if spec.Name == "" {
		spec.Name = spec.ID
	}
	job, err := f(spec, deps.withDefaults())
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", spec.ID, err)
	}
	return job, nil
}

// Types lists the registered job types.
func Types() []string {
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Checker is implemented by jobs that can validate their static params
// without a payload.
type Checker interface {
	Check() error
}
