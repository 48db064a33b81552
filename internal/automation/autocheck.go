package automation

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/showrunner/internal/eventbus"
)

// StartAutoCheck evaluates every task condition each
// AutoCheckConditionEvery while the routine is idle. Tasks whose condition
// held at the latest check finish without executing their job on the next
// run. It returns a function that stops the loop and waits for it.
func (r *Routine) StartAutoCheck(ctx context.Context) (stop func()) {
	interval := r.cfg.AutoCheckConditionEvery
	if interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if r.IsRunning() {
					continue
				}
				r.CheckConditions(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// CheckConditions runs one auto-check pass and returns the ids of tasks
// whose condition is currently met.
func (r *Routine) CheckConditions(ctx context.Context) []string {
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		satisfied = make(map[string]time.Time)
		ids       []string
	)

	for _, task := range r.cfg.Tasks {
		cond := task.Condition()
		if cond == nil {
			continue
		}
		wg.Add(1)
		go func(task *Task, cond Condition) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, cond.TimeoutValue()+time.Second)
			defer cancel()

			met, err := cond.Evaluate(probeCtx, EvaluateRequest{})
			if err != nil {
				if !IsAbort(err) {
					r.logger.Debug("auto-check condition failed", "routine_id", r.cfg.ID, "task_id", task.ID(), "error", err)
				}
				return
			}
			if met {
				mu.Lock()
				satisfied[task.ID()] = time.Now()
				ids = append(ids, task.ID())
				mu.Unlock()
			}
		}(task, cond)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}

	r.autoMu.Lock()
	r.satisfied = satisfied
	r.checkedAt = time.Now()
	r.autoMu.Unlock()

	r.bus.Publish(eventbus.Event{
		Kind:       eventbus.RoutineAutoCheckingConditions,
		EntityType: eventbus.EntityRoutine,
		EntityID:   r.cfg.ID,
		Name:       r.cfg.Name,
		Data:       map[string]any{"satisfied": ids},
	})
	return ids
}

// recentlySatisfied reports whether the latest auto-check found the task's
// condition met and is still fresh.
func (r *Routine) recentlySatisfied(taskID string) bool {
	if r.cfg.AutoCheckConditionEvery <= 0 {
		return false
	}
	r.autoMu.Lock()
	defer r.autoMu.Unlock()
	at, ok := r.satisfied[taskID]
	if !ok {
		return false
	}
	return time.Since(at) <= 2*r.cfg.AutoCheckConditionEvery
}

// LastAutoCheck returns when the latest auto-check pass finished.
func (r *Routine) LastAutoCheck() time.Time {
	r.autoMu.Lock()
	defer r.autoMu.Unlock()
	return r.checkedAt
}
