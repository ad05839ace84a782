package codec

import (
	"fmt"

	"github.com/tidepool-labs/urtp-streamer/pkg/urtp"
)

// SamplesPerBlock is one 20ms audio block at 16kHz.
const SamplesPerBlock = 320

// Codec encodes one audio block of SamplesPerBlock mono samples into a
// URTP body. Implementations hold their own pre-allocated scratch space and
// never allocate inside Encode.
type Codec interface {
	// Scheme identifies the coding scheme this codec implements.
	Scheme() urtp.Scheme
	// BodySize returns the fixed number of body bytes this codec produces.
	BodySize() int
	// Encode codes exactly SamplesPerBlock samples into dst, which must be
	// at least BodySize() bytes, and returns the number of bytes written.
	Encode(samples []int32, dst []byte) (int, error)
}

// New constructs the Codec for the requested scheme.
func New(scheme urtp.Scheme) (Codec, error) {
	switch scheme {
	case urtp.SchemePCM16:
		return NewPCM(), nil
	case urtp.SchemeUNICAM8:
		return NewUnicam(8)
	case urtp.SchemeUNICAM10:
		return NewUnicam(10)
	default:
		return nil, fmt.Errorf("codec: unknown scheme %v", scheme)
	}
}

// FillHeader writes the shared 14-byte URTP header for a coded body. Both
// coding paths use this, so their Encode implementations only ever deal
// with body bytes.
func FillHeader(dst []byte, scheme urtp.Scheme, sequence uint16, timestampMicro uint64, bodyLen int) {
	h := urtp.Header{
		Scheme:         scheme,
		Sequence:       sequence,
		TimestampMicro: timestampMicro,
		BodyLength:     uint16(bodyLen),
	}
	h.Put(dst)
}
