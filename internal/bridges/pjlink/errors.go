package pjlink

import "errors"

// Projector error replies.
var (
	// ErrUndefinedCommand is ERR1.
	ErrUndefinedCommand = errors.New("pjlink: undefined command")

	// ErrOutOfParameter is ERR2.
	ErrOutOfParameter = errors.New("pjlink: out of parameter")

	// ErrUnavailableTime is ERR3.
	ErrUnavailableTime = errors.New("pjlink: unavailable time")

	// ErrProjectorFailure is ERR4.
	ErrProjectorFailure = errors.New("pjlink: projector or display failure")

	// ErrAuth is ERRA, returned for a wrong or missing password.
	ErrAuth = errors.New("pjlink: authentication error")

	// ErrProtocol is returned for lines that do not parse.
	ErrProtocol = errors.New("pjlink: protocol error")
)

var errorCodes = map[string]error{
	"ERR1": ErrUndefinedCommand,
	"ERR2": ErrOutOfParameter,
	"ERR3": ErrUnavailableTime,
	"ERR4": ErrProjectorFailure,
	"ERRA": ErrAuth,
}
