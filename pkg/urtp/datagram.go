package urtp

import "fmt"

// Datagram is one parsed wire unit: a header plus the body bytes it
// frames. Body aliases the input buffer; callers that retain a Datagram
// past the buffer's reuse must copy it.
type Datagram struct {
	Header Header
	Body   []byte
}

// DatagramSize returns the total wire size (header + body) for scheme.
func DatagramSize(s Scheme) (int, error) {
	body, err := s.BodySize()
	if err != nil {
		return 0, err
	}
	return HeaderSize + body, nil
}

// ParseDatagram decodes one datagram from the start of src, validating the
// header's body length against both the buffer and the scheme's fixed body
// size. It returns the datagram and the number of bytes consumed, so a TCP
// receiver can walk a byte stream datagram by datagram.
func ParseDatagram(src []byte) (Datagram, int, error) {
	h, err := ParseHeader(src)
	if err != nil {
		return Datagram{}, 0, err
	}

	want, err := h.Scheme.BodySize()
	if err != nil {
		return Datagram{}, 0, err
	}
	if int(h.BodyLength) != want {
		return Datagram{}, 0, fmt.Errorf("urtp: scheme %v declares %d body bytes, want %d", h.Scheme, h.BodyLength, want)
	}

	total := HeaderSize + int(h.BodyLength)
	if len(src) < total {
		return Datagram{}, 0, fmt.Errorf("urtp: short datagram: %d of %d bytes", len(src), total)
	}

	return Datagram{Header: h, Body: src[HeaderSize:total]}, total, nil
}
