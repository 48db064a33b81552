package project

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/showrunner/internal/eventbus"
)

const sampleProject = `
name: Main Hall
triggers:
  - id: doors
    type: cron
    armed: true
    reArmOnTrigger: true
    params: {day: [mon, fri], dayTime: 68400000}
  - id: panel
    type: api
    armed: true
    reArmOnTrigger: true
routines:
  - id: opening
    name: Opening
    triggers: [doors, panel]
    runInSync: true
    taskTimeout: 30000
    autoCheckConditionEvery: 10
    tasks:
      - id: wake-pc
        retries: 5
        waitBeforeRetry: 2000
        job: {id: wol-pc, type: wol, params: {mac: "00:11:22:33:44:55"}}
        condition: {id: pc-up, type: tcpAnswer, timeoutValue: 1000, params: {ipAddress: 10.0.0.20, portNumber: 22}}
      - id: settle
        job: {id: pause, type: wait, params: {time: 500}}
  - id: closing
    enabled: false
    tasks:
      - id: lights-down
        job: {id: dim, type: artnet, params: {ipAddress: 10.0.0.50, channels: "1-4", value: 0, interpolationTime: 3000}}
`

type warnLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (w *warnLogger) Debug(string, ...any) {}
func (w *warnLogger) Info(string, ...any)  {}
func (w *warnLogger) Error(string, ...any) {}
func (w *warnLogger) Warn(msg string, _ ...any) {
	w.mu.Lock()
	w.msgs = append(w.msgs, msg)
	w.mu.Unlock()
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	if err := os.WriteFile(path, []byte(sampleProject), 0600); err != nil {
		t.Fatalf("writing project: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Name != "Main Hall" || len(p.Routines) != 2 || len(p.Triggers) != 2 {
		t.Fatalf("project = %+v", p)
	}
	if !p.Routines[0].IsEnabled() || p.Routines[1].IsEnabled() {
		t.Error("enabled should default to true and honour false")
	}
	if p.Routines[0].Tasks[0].Condition == nil || p.Routines[0].Tasks[1].Condition != nil {
		t.Error("condition presence not preserved")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown key",
			doc:  "routines:\n  - id: a\n    colour: red\n",
			want: "colour",
		},
		{
			name: "missing task list",
			doc:  "routines:\n  - id: a\n",
			want: "Routines[0].Tasks is required",
		},
		{
			name: "negative retries",
			doc:  "routines:\n  - id: a\n    tasks:\n      - id: t\n        retries: -1\n        job: {id: j, type: wait}\n",
			want: "Retries must be >= 0",
		},
		{
			name: "unknown job type",
			doc:  "routines:\n  - id: a\n    tasks:\n      - id: t\n        job: {id: j, type: teleport}\n",
			want: `unknown job type "teleport"`,
		},
		{
			name: "undeclared trigger",
			doc:  "routines:\n  - id: a\n    triggers: [ghost]\n    tasks:\n      - id: t\n        job: {id: j, type: wait}\n",
			want: `trigger "ghost" is not declared`,
		},
		{
			name: "duplicate routine",
			doc:  "routines:\n  - id: a\n    tasks: [{id: t1, job: {id: j1, type: wait}}]\n  - id: a\n    tasks: [{id: t2, job: {id: j2, type: wait}}]\n",
			want: `routine "a" is declared twice`,
		},
		{
			name: "unknown trigger type",
			doc:  "triggers:\n  - id: x\n    type: doorbell\n",
			want: `unknown type "doorbell"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestParse_ReportsEveryProblem(t *testing.T) {
	_, err := Parse([]byte("routines:\n  - id: a\n    triggers: [x, y]\n    tasks: [{id: t, job: {id: j, type: wait}}]\n"))
	if !errors.Is(err, ErrInvalidProject) {
		t.Fatalf("error = %v, want ErrInvalidProject", err)
	}
	if strings.Count(err.Error(), "is not declared") != 2 {
		t.Errorf("error = %q, want both missing triggers", err)
	}
}

func TestBuild(t *testing.T) {
	p, err := Parse([]byte(sampleProject))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	logger := &warnLogger{}

	reg, err := Build(p, Deps{Bus: eventbus.New(), Logger: logger, MinAutoCheck: time.Second})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	opening, err := reg.Routine("opening")
	if err != nil {
		t.Fatalf("Routine(opening) error = %v", err)
	}
	cfg := opening.Config()
	if cfg.TaskTimeout != 30*time.Second || !cfg.RunInSync {
		t.Errorf("opening config = %+v", cfg)
	}
	if cfg.AutoCheckConditionEvery != time.Second {
		t.Errorf("AutoCheckConditionEvery = %v, want clamped to 1s", cfg.AutoCheckConditionEvery)
	}
	tasks := opening.Tasks()
	if len(tasks) != 2 || tasks[0].RetryPolicy().Attempts() != 6 || tasks[0].Condition() == nil {
		t.Errorf("tasks not built as declared")
	}
	if tasks[0].Condition().TimeoutValue() != time.Second {
		t.Errorf("condition timeout = %v, want 1s", tasks[0].Condition().TimeoutValue())
	}

	if got := reg.BoundRoutines("panel"); len(got) != 1 || got[0].ID() != "opening" {
		t.Errorf("BoundRoutines(panel) = %v", got)
	}
	closing, _ := reg.Routine("closing")
	if closing.Enabled() {
		t.Error("closing should be disabled")
	}
	if len(logger.msgs) == 0 {
		t.Error("expected a warning for the clamped auto-check interval")
	}
}

func TestBuild_BadConditionParams(t *testing.T) {
	p, err := Parse([]byte("routines:\n  - id: a\n    tasks:\n      - id: t\n        job: {id: j, type: wait, params: {time: 1}}\n        condition: {id: c, type: udpAnswer, params: {serverIP: 127.0.0.1, serverPort: 9}}\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, err := Build(p, Deps{}); err == nil || !strings.Contains(err.Error(), "message") {
		t.Errorf("Build() error = %v, want missing message", err)
	}
}
