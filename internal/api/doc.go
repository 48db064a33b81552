// Package api provides the HTTP REST API and WebSocket server for Showrunner.
//
// It lets operators inspect routines and triggers, run or abort routines,
// arm, disarm and fire triggers, browse execution history and follow
// domain events live over a WebSocket.
//
// The server follows the same lifecycle pattern as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Mutating routes require a bearer token signed with security.jwt.secret
// when JWT is enabled. Read routes and /health stay open.
package api
