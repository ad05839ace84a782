package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/tidepool-labs/urtp-streamer/pkg/urtp"
)

// PCMCodec writes each mono sample as 16-bit big-endian PCM: the top 16
// bits of the 32-bit gain-shifted sample, discarding the rest.
type PCMCodec struct{}

// NewPCM creates a PCM-16 codec.
func NewPCM() *PCMCodec {
	return &PCMCodec{}
}

// Scheme implements Codec.
func (c *PCMCodec) Scheme() urtp.Scheme { return urtp.SchemePCM16 }

// BodySize implements Codec.
func (c *PCMCodec) BodySize() int { return SamplesPerBlock * 2 }

// Encode implements Codec.
func (c *PCMCodec) Encode(samples []int32, dst []byte) (int, error) {
	if len(samples) != SamplesPerBlock {
		return 0, fmt.Errorf("codec: PCM expects %d samples, got %d", SamplesPerBlock, len(samples))
	}
	if len(dst) < c.BodySize() {
		return 0, fmt.Errorf("codec: PCM dst too small: %d < %d", len(dst), c.BodySize())
	}

	for i, sample := range samples {
		pcm16 := int16(sample >> 16)
		binary.BigEndian.PutUint16(dst[i*2:], uint16(pcm16))
	}

	return c.BodySize(), nil
}
