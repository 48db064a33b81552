package triggers

import (
	"bufio"
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/params"
	"github.com/nerrad567/showrunner/internal/infrastructure/netutil"
)

const maxDatagram = 65507

// matcher decides whether an inbound message fires the trigger. An empty
// pattern matches everything.
type matcher struct {
	exact string
	re    *regexp.Regexp
}

func newMatcher(p params.Map) (matcher, error) {
	pattern := params.StringOr(p, "message", "")
	if !params.Bool(p, "regex", false) {
		return matcher{exact: pattern}, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return matcher{}, automation.NewValidationError("message is not a valid regular expression: %v", err)
	}
	return matcher{re: re}, nil
}

func (m matcher) match(msg string) bool {
	if m.re != nil {
		return m.re.MatchString(msg)
	}
	return m.exact == "" || m.exact == msg
}

// socketSource listens for tcp connections or udp datagrams.
type socketSource struct {
	network string
	laddr   string
	match   matcher
	logger  automation.Logger

	mu     sync.Mutex
	closer interface{ Close() error }
	cancel context.CancelFunc
	addr   net.Addr
	wg     sync.WaitGroup
}

func newSocketSource(network string) SourceFactory {
	return func(cfg automation.TriggerConfig, deps Deps) (automation.Source, error) {
		p := params.Map(cfg.Params)
		if err := params.Require(p, "port"); err != nil {
			return nil, err
		}
		port, err := params.Port(p, "port")
		if err != nil {
			return nil, err
		}
		m, err := newMatcher(p)
		if err != nil {
			return nil, err
		}
		host := params.StringOr(p, "host", "0.0.0.0")
		return &socketSource{
			network: network,
			laddr:   net.JoinHostPort(host, strconv.Itoa(port)),
			match:   m,
			logger:  deps.Logger,
		}, nil
	}
}

var (
	newTCPSource = newSocketSource("tcp")
	newUDPSource = newSocketSource("udp")
)

// Addr returns the bound address while started.
func (s *socketSource) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *socketSource) Start(ctx context.Context, t *automation.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)

	switch s.network {
	case "tcp":
		ln, err := netutil.ListenTCP(ctx, s.laddr)
		if err != nil {
			cancel()
			return automation.NewTransportError("listening on tcp "+s.laddr, err)
		}
		s.closer, s.addr = ln, ln.Addr()
		s.wg.Add(1)
		go s.acceptLoop(ctx, t, ln)
	default:
		pc, err := netutil.ListenUDP(ctx, s.laddr)
		if err != nil {
			cancel()
			return automation.NewTransportError("listening on udp "+s.laddr, err)
		}
		s.closer, s.addr = pc, pc.LocalAddr()
		s.wg.Add(1)
		go s.readLoop(ctx, t, pc)
	}
	s.cancel = cancel
	s.logger.Info("trigger listening", "trigger_id", t.ID(), "network", s.network, "address", s.addr.String())
	return nil
}

func (s *socketSource) Stop() error {
	s.mu.Lock()
	c, cancel := s.closer, s.cancel
	s.closer, s.cancel, s.addr = nil, nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	cancel()
	err := c.Close()
	s.wg.Wait()
	return err
}

func (s *socketSource) acceptLoop(ctx context.Context, t *automation.Trigger, ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("tcp trigger accept failed", "trigger_id", t.ID(), "error", err)
			}
			return
		}
		s.wg.Add(1)
		go s.serveConn(ctx, t, conn)
	}
}

// serveConn treats each line (CR or LF terminated) as one message.
func (s *socketSource) serveConn(ctx context.Context, t *automation.Trigger, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	stop := netutil.CloseOnDone(ctx, conn)
	defer stop()

	sc := bufio.NewScanner(conn)
	sc.Split(scanLines)
	for sc.Scan() {
		s.handle(ctx, t, sc.Text(), conn.RemoteAddr())
	}
}

func (s *socketSource) readLoop(ctx context.Context, t *automation.Trigger, pc net.PacketConn) {
	defer s.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("udp trigger read failed", "trigger_id", t.ID(), "error", err)
			}
			return
		}
		s.handle(ctx, t, strings.TrimRight(string(buf[:n]), "\r\n"), from)
	}
}

func (s *socketSource) handle(ctx context.Context, t *automation.Trigger, msg string, from net.Addr) {
	if !s.match.match(msg) {
		s.logger.Debug("message did not match trigger", "trigger_id", t.ID(), "message", msg)
		return
	}
	fire(ctx, t, s.logger, map[string]any{
		"message":       msg,
		"remoteAddress": from.String(),
		"protocol":      s.network,
	})
}

// scanLines splits on \n, \r or \r\n.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b != '\n' && b != '\r' {
			continue
		}
		adv := i + 1
		if b == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			adv++
		} else if b == '\r' && i+1 == len(data) && !atEOF {
			// Wait to see whether \n follows.
			return 0, nil, nil
		}
		return adv, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
