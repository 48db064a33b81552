package pjlink

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// Common commands.
const (
	CmdPower = "POWR"
	CmdInput = "INPT"
	CmdMute  = "AVMT"
	CmdError = "ERST"
	CmdLamp  = "LAMP"
	CmdName  = "NAME"
)

// QueryArg is the argument that turns a command into a query.
const QueryArg = "?"

// PowerStatus is the value of a POWR query.
type PowerStatus int

// Power states reported by POWR ?.
const (
	PowerOff     PowerStatus = 0
	PowerOn      PowerStatus = 1
	PowerCooling PowerStatus = 2
	PowerWarming PowerStatus = 3
)

func (s PowerStatus) String() string {
	switch s {
	case PowerOff:
		return "off"
	case PowerOn:
		return "on"
	case PowerCooling:
		return "cooling"
	case PowerWarming:
		return "warming"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ParsePowerStatus converts a POWR reply value.
func ParsePowerStatus(v string) (PowerStatus, error) {
	if len(v) == 1 && v[0] >= '0' && v[0] <= '3' {
		return PowerStatus(v[0] - '0'), nil
	}
	if err, ok := errorCodes[v]; ok {
		return 0, err
	}
	return 0, fmt.Errorf("%w: power status %q", ErrProtocol, v)
}

// Command is one request line.
type Command struct {
	Class int
	Name  string
	Arg   string
}

// Encode renders "%{class}{NAME} {arg}\r".
func (c Command) Encode() string {
	class := c.Class
	if class == 0 {
		class = 1
	}
	arg := c.Arg
	if arg == "" {
		arg = QueryArg
	}
	return fmt.Sprintf("%%%d%s %s\r", class, strings.ToUpper(c.Name), arg)
}

// Response is one reply line.
type Response struct {
	Class int
	Name  string
	Value string
}

// Err maps an error value to its sentinel, or nil for a normal reply.
func (r Response) Err() error {
	return errorCodes[r.Value]
}

// ParseResponse parses "%{class}{NAME}={value}" with or without the CR.
func ParseResponse(line string) (Response, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 7 || line[0] != '%' || line[6] != '=' {
		return Response{}, fmt.Errorf("%w: %q", ErrProtocol, line)
	}
	if line[1] < '1' || line[1] > '9' {
		return Response{}, fmt.Errorf("%w: bad class in %q", ErrProtocol, line)
	}
	return Response{
		Class: int(line[1] - '0'),
		Name:  line[2:6],
		Value: line[7:],
	}, nil
}

// Greeting is the projector's connect banner.
type Greeting struct {
	Auth  bool
	Nonce string
}

// ParseGreeting parses "PJLINK 0", "PJLINK 1 <nonce>" or "PJLINK ERRA".
func ParseGreeting(line string) (Greeting, error) {
	fields := strings.Fields(strings.TrimRight(line, "\r\n"))
	if len(fields) < 2 || fields[0] != "PJLINK" {
		return Greeting{}, fmt.Errorf("%w: greeting %q", ErrProtocol, line)
	}
	switch fields[1] {
	case "0":
		return Greeting{}, nil
	case "1":
		if len(fields) < 3 {
			return Greeting{}, fmt.Errorf("%w: greeting without nonce", ErrProtocol)
		}
		return Greeting{Auth: true, Nonce: fields[2]}, nil
	case "ERRA":
		return Greeting{}, ErrAuth
	default:
		return Greeting{}, fmt.Errorf("%w: greeting %q", ErrProtocol, line)
	}
}

// Digest returns the auth prefix: hex MD5 of nonce followed by password.
// PJLink class 1 puts the projector's random number first; reversing the
// order fails authentication against real hardware.
func Digest(nonce, password string) string {
	sum := md5.Sum([]byte(nonce + password))
	return hex.EncodeToString(sum[:])
}
