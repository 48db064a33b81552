package artnet

import (
	"encoding/binary"
	"fmt"
)

// Protocol constants.
const (
	// DefaultPort is the UDP port Art-Net nodes listen on.
	DefaultPort = 6454

	// OpDmx is the ArtDmx opcode.
	OpDmx uint16 = 0x5000

	// ProtocolVersion is the Art-Net revision written into every packet.
	ProtocolVersion uint16 = 14

	// Channels is the size of one DMX universe.
	Channels = 512

	// HeaderSize is the offset of the first DMX value.
	HeaderSize = 18
)

var artnetID = [8]byte{'A', 'r', 't', '-', 'N', 'e', 't', 0}

// Address selects a universe: Net (0-127), SubNet (0-15), Universe (0-15).
type Address struct {
	Net      int
	SubNet   int
	Universe int
}

// Validate checks the address ranges.
func (a Address) Validate() error {
	if a.Net < 0 || a.Net > 127 {
		return fmt.Errorf("%w: net %d not in 0-127", ErrInvalidAddress, a.Net)
	}
	if a.SubNet < 0 || a.SubNet > 15 {
		return fmt.Errorf("%w: subnet %d not in 0-15", ErrInvalidAddress, a.SubNet)
	}
	if a.Universe < 0 || a.Universe > 15 {
		return fmt.Errorf("%w: universe %d not in 0-15", ErrInvalidAddress, a.Universe)
	}
	return nil
}

// PortAddress returns the 15-bit Port-Address.
func (a Address) PortAddress() uint16 {
	return uint16(a.Net)<<8 | uint16(a.SubNet)<<4 | uint16(a.Universe)
}

// DmxPacket is an ArtDmx packet.
type DmxPacket struct {
	Sequence uint8
	Physical uint8
	Address  Address
	Data     []byte
}

// MarshalBinary encodes the packet. Odd-length data is padded with a zero.
func (p DmxPacket) MarshalBinary() ([]byte, error) {
	if err := p.Address.Validate(); err != nil {
		return nil, err
	}
	n := len(p.Data)
	if n < 2 || n > Channels {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}
	if n%2 != 0 {
		n++
	}

	buf := make([]byte, HeaderSize+n)
	copy(buf[0:8], artnetID[:])
	binary.LittleEndian.PutUint16(buf[8:10], OpDmx)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	buf[12] = p.Sequence
	buf[13] = p.Physical
	// Port-Address low byte (SubUni) then high byte (Net).
	binary.LittleEndian.PutUint16(buf[14:16], p.Address.PortAddress())
	binary.BigEndian.PutUint16(buf[16:18], uint16(n))
	copy(buf[HeaderSize:], p.Data)
	return buf, nil
}

// UnmarshalBinary decodes an ArtDmx packet.
func (p *DmxPacket) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize || [8]byte(b[0:8]) != artnetID {
		return fmt.Errorf("artnet: not an Art-Net packet")
	}
	if op := binary.LittleEndian.Uint16(b[8:10]); op != OpDmx {
		return fmt.Errorf("artnet: opcode 0x%04x is not ArtDmx", op)
	}
	n := int(binary.BigEndian.Uint16(b[16:18]))
	if n > len(b)-HeaderSize || n > Channels {
		return fmt.Errorf("%w: header says %d, have %d", ErrInvalidLength, n, len(b)-HeaderSize)
	}
	pa := binary.LittleEndian.Uint16(b[14:16])
	p.Sequence = b[12]
	p.Physical = b[13]
	p.Address = Address{
		Net:      int(pa >> 8 & 0x7f),
		SubNet:   int(pa >> 4 & 0x0f),
		Universe: int(pa & 0x0f),
	}
	p.Data = append([]byte(nil), b[HeaderSize:HeaderSize+n]...)
	return nil
}
