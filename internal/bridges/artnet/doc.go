// Package artnet implements the sending half of Art-Net 4 for DMX lighting.
//
// Only ArtDmx packets are produced. Each destination universe is served by
// a Sender that remembers the last frame it transmitted, so a job that
// changes a handful of channels leaves the rest of the universe intact and
// a fade can start from the current level.
//
// # Packet Layout
//
//	Byte 0-7:   "Art-Net\0"
//	Byte 8-9:   OpCode 0x5000 (little-endian)
//	Byte 10-11: Protocol version 14 (big-endian)
//	Byte 12:    Sequence (1-255, 0 disables reordering)
//	Byte 13:    Physical input port
//	Byte 14:    SubUni: subnet<<4 | universe
//	Byte 15:    Net
//	Byte 16-17: Data length (big-endian, even, 2-512)
//	Byte 18+:   DMX channel values; channel N is byte 18+N-1
//
// # Channel Specs
//
// Channels are addressed with a comma-separated list of indices and ranges:
//
//	chs, err := artnet.ParseChannels("1-3, 10, 12-13")
//	// [1 2 3 10 12 13]
//
// # Thread Safety
//
// Pool and Sender are safe for concurrent use. Frame updates for one key
// are serialised by the Sender.
package artnet
