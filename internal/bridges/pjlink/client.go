package pjlink

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/showrunner/internal/infrastructure/netutil"
)

// DefaultPort is the PJLink TCP port.
const DefaultPort = 4352

// DefaultTimeout bounds one command round trip.
const DefaultTimeout = 5 * time.Second

// Config holds connection settings.
type Config struct {
	Host     string
	Port     int
	Password string
	Class    int
	Timeout  time.Duration
}

// Client sends commands to one projector.
type Client struct {
	cfg Config
}

// NewClient applies defaults to cfg.
func NewClient(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Class == 0 {
		cfg.Class = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{cfg: cfg}
}

// Addr returns host:port.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// Do sends one command and returns the reply value. Projector error
// replies are returned as the matching sentinel.
func (c *Client) Do(ctx context.Context, name, arg string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	conn, err := netutil.DialTCP(ctx, c.Addr())
	if err != nil {
		return "", fmt.Errorf("connecting to %s: %w", c.Addr(), err)
	}
	defer conn.Close()

	stop := netutil.CloseOnDone(ctx, conn)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\r')
	if err != nil {
		return "", fmt.Errorf("reading greeting: %w", err)
	}
	greet, err := ParseGreeting(line)
	if err != nil {
		return "", err
	}

	req := Command{Class: c.cfg.Class, Name: name, Arg: arg}.Encode()
	if greet.Auth {
		req = Digest(greet.Nonce, c.cfg.Password) + req
	}
	if _, err := conn.Write([]byte(req)); err != nil {
		return "", fmt.Errorf("sending %s: %w", name, err)
	}

	line, err = r.ReadString('\r')
	if err != nil {
		return "", fmt.Errorf("reading reply: %w", err)
	}
	if strings.HasPrefix(line, "PJLINK ERRA") {
		return "", ErrAuth
	}
	resp, err := ParseResponse(line)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(resp.Name, name) {
		return "", fmt.Errorf("%w: reply for %s to %s", ErrProtocol, resp.Name, name)
	}
	if err := resp.Err(); err != nil {
		return "", err
	}
	return resp.Value, nil
}

// SetPower switches the projector on or off.
func (c *Client) SetPower(ctx context.Context, on bool) error {
	arg := "0"
	if on {
		arg = "1"
	}
	v, err := c.Do(ctx, CmdPower, arg)
	if err != nil {
		return err
	}
	if v != "OK" {
		return fmt.Errorf("%w: POWR reply %q", ErrProtocol, v)
	}
	return nil
}

// Power queries the power state.
func (c *Client) Power(ctx context.Context) (PowerStatus, error) {
	v, err := c.Do(ctx, CmdPower, QueryArg)
	if err != nil {
		return 0, err
	}
	return ParsePowerStatus(v)
}
