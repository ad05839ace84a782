package urtp

import (
	"encoding/binary"
	"fmt"
)

// Scheme identifies the coding scheme carried in a datagram's body.
type Scheme byte

const (
	// SchemePCM16 is 16-bit big-endian PCM at 16kHz.
	SchemePCM16 Scheme = 0
	// SchemeUNICAM8 is UNICAM sub-band coding with an 8-bit coded word.
	SchemeUNICAM8 Scheme = 1
	// SchemeUNICAM10 is UNICAM sub-band coding with a 10-bit coded word.
	SchemeUNICAM10 Scheme = 2
)

func (s Scheme) String() string {
	switch s {
	case SchemePCM16:
		return "PCM16"
	case SchemeUNICAM8:
		return "UNICAM8"
	case SchemeUNICAM10:
		return "UNICAM10"
	default:
		return fmt.Sprintf("Scheme(%d)", byte(s))
	}
}

// BodySize returns the number of payload bytes a datagram of this scheme
// carries for one audio block.
func (s Scheme) BodySize() (int, error) {
	switch s {
	case SchemePCM16:
		return 640, nil
	case SchemeUNICAM8:
		return 330, nil
	case SchemeUNICAM10:
		return 410, nil
	default:
		return 0, fmt.Errorf("urtp: unknown coding scheme %d", byte(s))
	}
}

const (
	// SyncByte is the fixed first byte of every header.
	SyncByte byte = 0x5A

	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 14
)

// Header is the 14-byte fixed header carried ahead of every body.
type Header struct {
	Scheme         Scheme
	Sequence       uint16
	TimestampMicro uint64
	BodyLength     uint16
}

// Put encodes h into the first HeaderSize bytes of dst. dst must be at
// least HeaderSize bytes long.
func (h Header) Put(dst []byte) {
	_ = dst[HeaderSize-1]
	dst[0] = SyncByte
	dst[1] = byte(h.Scheme)
	binary.BigEndian.PutUint16(dst[2:4], h.Sequence)
	binary.BigEndian.PutUint64(dst[4:12], h.TimestampMicro)
	binary.BigEndian.PutUint16(dst[12:14], h.BodyLength)
}

// ParseHeader decodes a Header from the first HeaderSize bytes of src.
func ParseHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, fmt.Errorf("urtp: short header: %d bytes", len(src))
	}
	if src[0] != SyncByte {
		return Header{}, fmt.Errorf("urtp: bad sync byte 0x%02x", src[0])
	}

	return Header{
		Scheme:         Scheme(src[1]),
		Sequence:       binary.BigEndian.Uint16(src[2:4]),
		TimestampMicro: binary.BigEndian.Uint64(src[4:12]),
		BodyLength:     binary.BigEndian.Uint16(src[12:14]),
	}, nil
}
