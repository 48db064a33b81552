//go:build !unix

package netutil

import "syscall"

// Broadcast needs no socket option on these platforms.
func enableBroadcast(_, _ string, _ syscall.RawConn) error { return nil }
