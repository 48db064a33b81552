package jobs

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/bridges/artnet"
	"github.com/nerrad567/showrunner/internal/runctx"
)

func mustJob(t *testing.T, typ string, p map[string]any, deps Deps) automation.Job {
	t.Helper()
	job, err := New(automation.JobSpec{ID: typ + "-job", Name: typ + " job", Type: typ, Params: p}, deps)
	if err != nil {
		t.Fatalf("New(%s) error = %v", typ, err)
	}
	return job
}

func execute(ctx context.Context, job automation.Job, payload map[string]any) error {
	log := runctx.NewRoot("run", "job", job.Name())
	return job.Execute(ctx, automation.ExecuteRequest{Payload: payload, Log: log})
}

// capture records datagrams instead of sending them.
type capture struct {
	mu    sync.Mutex
	addrs []string
	data  [][]byte
}

func (c *capture) send(_ context.Context, addr string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addrs = append(c.addrs, addr)
	c.data = append(c.data, append([]byte(nil), payload...))
	return nil
}

// ─── Registry ──────────────────────────────────────────────────────

func TestNew_UnknownType(t *testing.T) {
	_, err := New(automation.JobSpec{ID: "x", Type: "smoke-machine"}, Deps{})
	if !errors.Is(err, automation.ErrValidation) {
		t.Errorf("New() error = %v, want ErrValidation", err)
	}
}

func TestTypes(t *testing.T) {
	want := []string{"artnet", "pjlink", "tcp", "udp", "wait", "wol"}
	got := Types()
	if len(got) != len(want) {
		t.Fatalf("Types() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Types()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// ─── Wait ──────────────────────────────────────────────────────────

func TestWaitJob_InvalidTime(t *testing.T) {
	for _, v := range []any{-1000, "soon", float64(3e9)} {
		job := mustJob(t, TypeWait, map[string]any{"time": v}, Deps{})
		err := execute(context.Background(), job, nil)
		if !errors.Is(err, automation.ErrValidation) {
			t.Fatalf("time=%v: error = %v, want ErrValidation", v, err)
		}
		if err.Error() != "time must be a number between 0 and 2147483647" {
			t.Errorf("time=%v: message = %q", v, err.Error())
		}
	}
}

func TestWaitJob_Waits(t *testing.T) {
	job := mustJob(t, TypeWait, map[string]any{"time": 1000}, Deps{})
	start := time.Now()
	if err := execute(context.Background(), job, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("elapsed = %v, want >= 1s", elapsed)
	}
}

func TestWaitJob_Abort(t *testing.T) {
	job := mustJob(t, TypeWait, map[string]any{"time": 60000}, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := execute(ctx, job, nil)
	if !automation.IsAbort(err) || err.Error() != `"wait job" was aborted` {
		t.Errorf("Execute() error = %v, want abort", err)
	}
}

func TestWaitJob_AbortBeforeExecution(t *testing.T) {
	job := mustJob(t, TypeWait, map[string]any{"time": 10}, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := execute(ctx, job, nil)
	if err == nil || err.Error() != `"wait job" was aborted before execution` {
		t.Errorf("Execute() error = %v", err)
	}
}

// ─── TCP ───────────────────────────────────────────────────────────

func TestTCPJob_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	job := mustJob(t, TypeTCP, map[string]any{"ipAddress": "127.0.0.1", "portNumber": port, "message": "PWR ON"}, Deps{})
	err = execute(context.Background(), job, nil)

	want := "Failed to send TCP packet: connect ECONNREFUSED 127.0.0.1:" + strconv.Itoa(port)
	if err == nil || err.Error() != want {
		t.Fatalf("Execute() error = %v, want %q", err, want)
	}
	if !errors.Is(err, automation.ErrTransport) {
		t.Error("refusal should be a transport error")
	}
}

func tcpServer(t *testing.T, reply string) (port int, received chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	received = make(chan string, 4)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				line, _ := bufio.NewReader(c).ReadString('\n')
				received <- line
				if reply != "" {
					_, _ = c.Write([]byte(reply))
				}
				time.Sleep(200 * time.Millisecond)
			}(conn)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, received
}

func TestTCPJob_Answer(t *testing.T) {
	port, received := tcpServer(t, "OK\r\n")
	job := mustJob(t, TypeTCP, map[string]any{
		"ipAddress": "127.0.0.1", "portNumber": port, "message": "PWR ON\n", "answer": "OK",
	}, Deps{})

	if err := execute(context.Background(), job, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := <-received; got != "PWR ON\n" {
		t.Errorf("server received %q", got)
	}
}

func TestTCPJob_AnswerTimeout(t *testing.T) {
	port, _ := tcpServer(t, "BUSY\r\n")
	job := mustJob(t, TypeTCP, map[string]any{
		"ipAddress": "127.0.0.1", "portNumber": port, "message": "PWR ON\n", "answer": "OK",
	}, Deps{TCPAnswerWindow: 50 * time.Millisecond})

	err := execute(context.Background(), job, nil)
	if !errors.Is(err, automation.ErrTimeout) {
		t.Fatalf("Execute() error = %v, want timeout", err)
	}
	if err.Error() != `"tcp job" timed out after 50 ms` {
		t.Errorf("message = %q", err.Error())
	}
}

func TestTCPJob_Validation(t *testing.T) {
	tests := []struct {
		name string
		p    map[string]any
		want string
	}{
		{"missing message", map[string]any{"ipAddress": "1.2.3.4", "portNumber": 23}, "Missing required parameter: message"},
		{"bad port", map[string]any{"ipAddress": "1.2.3.4", "portNumber": 99999, "message": "x"}, "Port Number must be a number between 0 and 65535"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := mustJob(t, TypeTCP, tt.p, Deps{})
			err := execute(context.Background(), job, nil)
			if err == nil || err.Error() != tt.want {
				t.Errorf("Execute() error = %v, want %q", err, tt.want)
			}
			if c, ok := job.(Checker); !ok || c.Check() == nil {
				t.Error("Check() should report the same problem")
			}
		})
	}
}

func TestTCPJob_PayloadOverridesParams(t *testing.T) {
	port, received := tcpServer(t, "")
	job := mustJob(t, TypeTCP, map[string]any{"ipAddress": "127.0.0.1", "portNumber": port, "message": "A\n"}, Deps{})

	if err := execute(context.Background(), job, map[string]any{"message": "B\n"}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := <-received; got != "B\n" {
		t.Errorf("server received %q, want payload message", got)
	}
}

// ─── UDP ───────────────────────────────────────────────────────────

func TestUDPJob_Loopback(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer pc.Close()
	port := pc.LocalAddr().(*net.UDPAddr).Port

	job := mustJob(t, TypeUDP, map[string]any{"serverIP": "127.0.0.1", "serverPort": port, "message": "GO"}, Deps{})
	if err := execute(context.Background(), job, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	_ = pc.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	n, _, err := pc.ReadFrom(buf)
	if err != nil || string(buf[:n]) != "GO" {
		t.Errorf("received %q, %v", buf[:n], err)
	}
}

func TestUDPJob_HexMessage(t *testing.T) {
	c := &capture{}
	job := mustJob(t, TypeUDP, map[string]any{
		"serverIP": "192.168.1.255", "serverPort": 9, "message": "0A FF", "messageFormat": "hex",
	}, Deps{}).(*UDPJob)
	job.send = c.send

	if err := execute(context.Background(), job, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if c.addrs[0] != "192.168.1.255:9" || len(c.data[0]) != 2 || c.data[0][1] != 0xFF {
		t.Errorf("sent %v to %v", c.data, c.addrs)
	}
}

// ─── Wake-on-LAN ───────────────────────────────────────────────────

func TestMagicPacket(t *testing.T) {
	pkt, err := MagicPacket("00:11:22:33:44:55")
	if err != nil {
		t.Fatalf("MagicPacket() error = %v", err)
	}
	if len(pkt) != 102 {
		t.Fatalf("len = %d, want 102", len(pkt))
	}
	for i := range 6 {
		if pkt[i] != 0xFF {
			t.Errorf("byte %d = %#x, want 0xff", i, pkt[i])
		}
	}
	for rep := range 16 {
		off := 6 + rep*6
		if pkt[off] != 0x00 || pkt[off+5] != 0x55 {
			t.Errorf("repetition %d = % x", rep, pkt[off:off+6])
		}
	}
	if _, err := MagicPacket("not-a-mac"); !errors.Is(err, automation.ErrValidation) {
		t.Errorf("MagicPacket(bad) error = %v", err)
	}
}

func TestWOLJob_DefaultPort(t *testing.T) {
	c := &capture{}
	job := mustJob(t, TypeWOL, map[string]any{"mac": "00-11-22-33-44-55"}, Deps{}).(*WOLJob)
	job.send = c.send

	if err := execute(context.Background(), job, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if c.addrs[0] != "255.255.255.255:7" {
		t.Errorf("dest = %q, want broadcast port 7", c.addrs[0])
	}
}

// ─── Art-Net ───────────────────────────────────────────────────────

func TestArtNetJob_ChannelBytes(t *testing.T) {
	c := &capture{}
	pool := artnet.NewPool(artnet.WithSendFunc(c.send))
	job := mustJob(t, TypeArtNet, map[string]any{
		"ipAddress": "10.0.0.20", "channels": "1-3, 10, 12-13", "value": 120, "universe": 1,
	}, Deps{ArtNet: pool})

	if err := execute(context.Background(), job, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	buf := c.data[len(c.data)-1]
	for _, i := range []int{18, 19, 20, 27, 29, 30} {
		if buf[i] != 120 {
			t.Errorf("byte %d = %d, want 120", i, buf[i])
		}
	}
	if buf[14] != 1 || buf[15] != 0 {
		t.Errorf("universe bytes = % x, want 01 00", buf[14:16])
	}
	if c.addrs[0] != "10.0.0.20:6454" {
		t.Errorf("dest = %q", c.addrs[0])
	}
}

func TestArtNetJob_MissingChannels(t *testing.T) {
	job := mustJob(t, TypeArtNet, map[string]any{"ipAddress": "10.0.0.20", "value": 10}, Deps{})
	err := execute(context.Background(), job, nil)
	if err == nil || err.Error() != "Missing required parameter: channels" {
		t.Errorf("Execute() error = %v", err)
	}
}

// ─── PJLink ────────────────────────────────────────────────────────

func TestPJLinkJob_PowerOn(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("PJLINK 0\r"))
		req, _ := bufio.NewReader(conn).ReadString('\r')
		got <- req
		_, _ = conn.Write([]byte("%1POWR=OK\r"))
	}()

	job := mustJob(t, TypePJLink, map[string]any{
		"ipAddress": "127.0.0.1", "port": ln.Addr().(*net.TCPAddr).Port, "action": "on",
	}, Deps{})
	if err := execute(context.Background(), job, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if req := <-got; req != "%1POWR 1\r" {
		t.Errorf("projector received %q", req)
	}
}
