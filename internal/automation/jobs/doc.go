// Package jobs implements the concrete automation.Job variants.
//
// Each variant is registered under its project-file type name:
//
//	udp      send a datagram to serverIP:serverPort
//	tcp      send a message over TCP, optionally waiting for an answer
//	artnet   set DMX channels, optionally fading over interpolationTime
//	wol      send a Wake-on-LAN magic packet
//	wait     pause for time milliseconds
//	pjlink   send a PJLink command to a projector
//
// Parameters are validated on every Execute, after the firing payload has
// been merged in, and before any network I/O.
package jobs
