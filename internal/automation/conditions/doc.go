// Package conditions implements the concrete automation.Condition variants:
//
//	dayTime       the current weekday and time of day fall in a window
//	ping          a host answers an ICMP echo
//	tcpAnswer     a TCP port accepts connections (and answers a message)
//	udpAnswer     a UDP service answers a message
//	pjlinkStatus  a projector reports a power state
//
// A probe that gets no answer returns false; errors are reserved for bad
// parameters, cancellation and failures of the probe itself.
package conditions
