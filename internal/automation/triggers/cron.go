package triggers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/conditions"
	"github.com/nerrad567/showrunner/internal/automation/params"
)

const dayMillis = 24 * 60 * 60 * 1000

// WeeklySchedule fires at a fixed offset from midnight on selected weekdays.
type WeeklySchedule struct {
	Days [7]bool
	At   time.Duration
}

// Next returns the first occurrence strictly after t, or the zero time
// when no weekday is selected.
func (s WeeklySchedule) Next(t time.Time) time.Time {
	for i := 0; i <= 7; i++ {
		d := t.AddDate(0, 0, i)
		midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
		if !s.Days[midnight.Weekday()] {
			continue
		}
		if at := midnight.Add(s.At); at.After(t) {
			return at
		}
	}
	return time.Time{}
}

// scheduleSource runs a cron.Schedule on its own scheduler.
type scheduleSource struct {
	schedule cron.Schedule
	loc      *time.Location
	logger   automation.Logger

	mu    sync.Mutex
	sched *cron.Cron
}

func newCronSource(cfg automation.TriggerConfig, deps Deps) (automation.Source, error) {
	p := params.Map(cfg.Params)
	key := "day"
	if _, ok := p[key]; !ok {
		key = "days"
	}
	days, err := conditions.ParseWeekdays(p, key)
	if err != nil {
		return nil, err
	}
	if err := params.Require(p, "dayTime"); err != nil {
		return nil, err
	}
	at, err := params.Int(p, "dayTime", "dayTime", 0, dayMillis-1)
	if err != nil {
		return nil, err
	}
	return &scheduleSource{
		schedule: WeeklySchedule{Days: days, At: time.Duration(at) * time.Millisecond},
		loc:      deps.Location,
		logger:   deps.Logger,
	}, nil
}

func newCronExprSource(cfg automation.TriggerConfig, deps Deps) (automation.Source, error) {
	expr, err := params.String(cfg.Params, "expression")
	if err != nil {
		return nil, err
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, automation.NewValidationError("expression %q: %v", expr, err)
	}
	return &scheduleSource{schedule: schedule, loc: deps.Location, logger: deps.Logger}, nil
}

// Next exposes the next occurrence after t.
func (s *scheduleSource) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

func (s *scheduleSource) Start(ctx context.Context, t *automation.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched != nil {
		return nil
	}

	s.sched = cron.New(cron.WithLocation(s.loc))
	s.sched.Schedule(s.schedule, cron.FuncJob(func() {
		fire(ctx, t, s.logger, map[string]any{"firedAt": time.Now().In(s.loc).Format(time.RFC3339)})
	}))
	s.sched.Start()

	s.logger.Debug("cron trigger scheduled", "trigger_id", t.ID(), "next", s.Next(time.Now()))
	return nil
}

func (s *scheduleSource) Stop() error {
	s.mu.Lock()
	sched := s.sched
	s.sched = nil
	s.mu.Unlock()
	if sched != nil {
		<-sched.Stop().Done()
	}
	return nil
}

// fire honours one stimulus. A disarmed trigger drops it quietly.
func fire(ctx context.Context, t *automation.Trigger, logger automation.Logger, payload map[string]any) {
	if err := t.Fire(ctx, payload); err != nil {
		if errors.Is(err, automation.ErrTriggerDisarmed) {
			logger.Debug("stimulus ignored, trigger disarmed", "trigger_id", t.ID())
			return
		}
		logger.Warn("trigger fire failed", "trigger_id", t.ID(), "error", err)
	}
}
