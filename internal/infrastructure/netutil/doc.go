// Package netutil holds the small socket helpers shared by jobs,
// conditions and triggers: broadcast-capable UDP sends, context-bound
// TCP exchanges and refusal detection.
package netutil
