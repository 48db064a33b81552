package artnet

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/showrunner/internal/infrastructure/netutil"
)

// DefaultStep is the interval between frames of a fade (~40 fps).
const DefaultStep = 25 * time.Millisecond

// SendFunc transmits one datagram.
type SendFunc func(ctx context.Context, addr string, payload []byte) error

// Key identifies one remembered universe at one destination.
type Key struct {
	Host    string
	Port    int
	Address Address
}

func (k Key) dest() string {
	return net.JoinHostPort(k.Host, strconv.Itoa(k.Port))
}

// Pool hands out one Sender per Key.
type Pool struct {
	send SendFunc
	step time.Duration

	mu      sync.Mutex
	senders map[Key]*Sender
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithSendFunc replaces the UDP transport.
func WithSendFunc(fn SendFunc) PoolOption {
	return func(p *Pool) { p.send = fn }
}

// WithStep sets the fade frame interval.
func WithStep(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.step = d
		}
	}
}

// NewPool creates an empty pool sending through netutil.SendUDP.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		send:    netutil.SendUDP,
		step:    DefaultStep,
		senders: make(map[Key]*Sender),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sender returns the sender for k, creating it on first use.
func (p *Pool) Sender(k Key) (*Sender, error) {
	if err := k.Address.Validate(); err != nil {
		return nil, err
	}
	if k.Port == 0 {
		k.Port = DefaultPort
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.senders[k]
	if !ok {
		s = &Sender{key: k, pool: p}
		p.senders[k] = s
	}
	return s, nil
}

// Len returns the number of senders created so far.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.senders)
}

// Sender owns the frame of one universe at one destination.
type Sender struct {
	key  Key
	pool *Pool

	mu    sync.Mutex
	frame [Channels]byte
	seq   uint8
}

// Frame returns a copy of the last frame.
func (s *Sender) Frame() [Channels]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Set drives channels to value. With a positive fade the channels ramp
// linearly from their current levels, one frame per step; cancellation of
// ctx stops the ramp where it is.
func (s *Sender) Set(ctx context.Context, channels []int, value byte, fade time.Duration) error {
	for _, ch := range channels {
		if ch < 1 || ch > Channels {
			return fmt.Errorf("%w: channel %d", ErrInvalidChannels, ch)
		}
	}

	if fade <= 0 {
		return s.apply(ctx, channels, func(byte) byte { return value })
	}

	start := s.Frame()
	steps := max(int(fade/s.pool.step), 1)
	ticker := time.NewTicker(s.pool.step)
	defer ticker.Stop()

	for i := 1; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		err := s.applyEach(ctx, channels, func(ch int) byte {
			from := float64(start[ch-1])
			return byte(from + (float64(value)-from)*frac + 0.5)
		})
		if err != nil {
			return err
		}
		if i == steps {
			break
		}
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-ticker.C:
		}
	}
	return nil
}

func (s *Sender) apply(ctx context.Context, channels []int, level func(byte) byte) error {
	return s.applyEach(ctx, channels, func(ch int) byte { return level(s.frame[ch-1]) })
}

// applyEach updates the frame under the lock and transmits the snapshot.
func (s *Sender) applyEach(ctx context.Context, channels []int, level func(ch int) byte) error {
	s.mu.Lock()
	for _, ch := range channels {
		s.frame[ch-1] = level(ch)
	}
	s.seq++
	if s.seq == 0 {
		s.seq = 1
	}
	pkt := DmxPacket{Sequence: s.seq, Address: s.key.Address, Data: s.frame[:]}
	buf, err := pkt.MarshalBinary()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.pool.send(ctx, s.key.dest(), buf)
}
