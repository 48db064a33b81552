// Package pjlink is a client for the PJLink projector control protocol
// (classes 1 and 2) over TCP port 4352.
//
// Commands and replies are CR-terminated ASCII lines:
//
//	→ %1POWR 1\r
//	← %1POWR=OK\r
//
// On connect the projector greets with "PJLINK 0" (no auth) or
// "PJLINK 1 <nonce>". With authentication the first command is prefixed
// by the hex MD5 of nonce+password.
//
// Each Client call opens its own connection, which matches how projectors
// drop idle sessions after a few seconds.
package pjlink
