// Package logging provides structured logging for Showrunner.
//
// It wraps log/slog so that every record carries the service name and
// build version. JSON output is the default; text output is available for
// development.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log secrets such as PJLink passwords or the JWT secret.
package logging
