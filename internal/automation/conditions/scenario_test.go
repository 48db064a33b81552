package conditions_test

import (
	"bytes"
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/conditions"
	"github.com/nerrad567/showrunner/internal/automation/jobs"
)

// fakeMachine answers "ping" with "pong" once it has received enough
// magic packets to be considered awake.
func fakeMachine(t *testing.T, wakeAfter int32) (port int, packets *atomic.Int32) {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	t.Cleanup(func() { pc.Close() })

	packets = &atomic.Int32{}
	magic := bytes.Repeat([]byte{0xFF}, 6)
	go func() {
		buf := make([]byte, 256)
		for {
			n, from, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			switch {
			case n == 102 && bytes.HasPrefix(buf[:n], magic):
				packets.Add(1)
			case string(buf[:n]) == "ping" && packets.Load() >= wakeAfter:
				_, _ = pc.WriteTo([]byte("pong"), from)
			}
		}
	}()
	return pc.LocalAddr().(*net.UDPAddr).Port, packets
}

func TestWakeOnLANPresetTask(t *testing.T) {
	port, packets := fakeMachine(t, 2)

	job, err := jobs.New(automation.JobSpec{
		ID:   "wake-pc",
		Type: jobs.TypeWOL,
		Params: map[string]any{
			"mac": "00:11:22:33:44:55", "address": "127.0.0.1", "port": port,
		},
	}, jobs.Deps{})
	if err != nil {
		t.Fatalf("jobs.New() error = %v", err)
	}
	cond, err := conditions.New(automation.ConditionSpec{
		ID:           "pc-awake",
		Type:         conditions.TypeUDPAnswer,
		TimeoutValue: 100 * time.Millisecond,
		Params: map[string]any{
			"serverIP": "127.0.0.1", "serverPort": port, "message": "ping", "answer": "pong",
		},
	}, conditions.Deps{})
	if err != nil {
		t.Fatalf("conditions.New() error = %v", err)
	}

	task, err := automation.NewTask(automation.TaskConfig{
		ID:              "wake",
		Name:            "Wake show PC",
		Job:             job,
		Condition:       cond,
		Retries:         5,
		WaitBeforeRetry: 10 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}

	if err := task.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if task.Failed() || task.Aborted() {
		t.Errorf("failed=%v aborted=%v, want both false", task.Failed(), task.Aborted())
	}
	if n := packets.Load(); n != 2 {
		t.Errorf("magic packets = %d, want 2", n)
	}
}
