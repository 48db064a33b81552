package jobs

import (
	"context"
	"time"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/params"
)

// TypeWait pauses a sequence.
const TypeWait = "wait"

// WaitJob sleeps for time milliseconds, abortably.
type WaitJob struct {
	automation.BaseJob
}

func newWaitJob(spec automation.JobSpec, _ Deps) (automation.Job, error) {
	return &WaitJob{BaseJob: automation.BaseJob{Spec: spec}}, nil
}

func (j *WaitJob) parse(p params.Map) (time.Duration, error) {
	ms, err := params.Int(p, "time", "time", 0, params.MaxInt32)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Check validates the static params.
func (j *WaitJob) Check() error {
	_, err := j.parse(j.Spec.Params)
	return err
}

// Execute waits.
func (j *WaitJob) Execute(ctx context.Context, req automation.ExecuteRequest) error {
	d, err := j.parse(j.Params(req))
	if err != nil {
		return err
	}
	req.Log.Debug("waiting", "ms", d.Milliseconds())

	return j.Guard(ctx, func(ctx context.Context) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
