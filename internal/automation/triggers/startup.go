package triggers

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/params"
)

// startupSource fires once, delay after the first Start.
type startupSource struct {
	delay  time.Duration
	logger automation.Logger

	mu     sync.Mutex
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func newStartupSource(cfg automation.TriggerConfig, deps Deps) (automation.Source, error) {
	delay, err := params.Millis(cfg.Params, "delay", 0)
	if err != nil {
		return nil, err
	}
	return &startupSource{delay: delay, logger: deps.Logger}, nil
}

func (s *startupSource) Start(ctx context.Context, t *automation.Trigger) error {
	s.once.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		s.mu.Lock()
		s.cancel, s.done = cancel, done
		s.mu.Unlock()

		go func() {
			defer close(done)
			if s.delay > 0 {
				timer := time.NewTimer(s.delay)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return
				case <-timer.C:
				}
			}
			fire(ctx, t, s.logger, map[string]any{"reason": "startup"})
		}()
	})
	return nil
}

func (s *startupSource) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}
