package codec

import (
	"testing"

	"github.com/tidepool-labs/urtp-streamer/pkg/urtp"
)

// bitReader is the test-only mirror of bitWriter, used to verify UNICAM
// round trips. Production code never decodes URTP bodies.
type bitReader struct {
	src  []byte
	pos  int
	acc  uint32
	bits int
}

func newBitReader(src []byte) *bitReader {
	return &bitReader{src: src}
}

func (r *bitReader) read(width int) uint32 {
	for r.bits < width {
		r.acc = (r.acc << 8) | uint32(r.src[r.pos])
		r.pos++
		r.bits += 8
	}
	r.bits -= width
	v := (r.acc >> uint(r.bits)) & ((1 << uint(width)) - 1)
	return v
}

func decodeSubBlock(coded []byte, codedBits int) []int32 {
	out := make([]int32, subBlockSamples)
	if codedBits == 8 {
		for i, b := range coded {
			out[i] = int32(int8(b))
		}
		return out
	}

	r := newBitReader(coded)
	for i := range out {
		v := r.read(codedBits)
		// sign-extend from codedBits width
		if v&(1<<uint(codedBits-1)) != 0 {
			v |= ^uint32(0) << uint(codedBits)
		}
		out[i] = int32(v)
	}
	return out
}

func TestUnicam10PackingAllOnes(t *testing.T) {
	c, err := NewUnicam(10)
	if err != nil {
		t.Fatalf("NewUnicam: %v", err)
	}

	samples := make([]int32, SamplesPerBlock)
	for i := range samples {
		samples[i] = 0x01FF
	}

	dst := make([]byte, c.BodySize())
	n, err := c.Encode(samples, dst)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if n != 410 {
		t.Fatalf("Encode wrote %d bytes, want 410", n)
	}

	offset := 0
	for pair := 0; pair < shiftBytePairs; pair++ {
		shiftByte := dst[offset]
		if shiftByte != 0 {
			t.Errorf("pair %d: shift byte = 0x%02x, want 0", pair, shiftByte)
		}
		offset++

		even := decodeSubBlock(dst[offset:offset+20], 10)
		offset += 20
		odd := decodeSubBlock(dst[offset:offset+20], 10)
		offset += 20

		for i, v := range even {
			if v != 0x01FF {
				t.Fatalf("pair %d even[%d] = 0x%x, want 0x1FF", pair, i, v)
			}
		}
		for i, v := range odd {
			if v != 0x01FF {
				t.Fatalf("pair %d odd[%d] = 0x%x, want 0x1FF", pair, i, v)
			}
		}
	}
}

func TestUnicamRoundTripWithinQuantizationError(t *testing.T) {
	for _, bitsWidth := range []int{8, 10} {
		c, err := NewUnicam(bitsWidth)
		if err != nil {
			t.Fatalf("NewUnicam(%d): %v", bitsWidth, err)
		}

		// A decaying triangle wave scaled to resemble a gain-adjusted
		// sample stream (large magnitude, as the controller would produce
		// once it has climbed toward its target headroom).
		const peak = int32(1) << 29
		samples := make([]int32, SamplesPerBlock)
		for i := range samples {
			phase := i % 64
			v := int32(phase) * (peak / 32)
			if phase >= 32 {
				v = (64 - int32(phase)) * (peak / 32)
			}
			if i%128 >= 64 {
				v = -v
			}
			samples[i] = v
		}

		dst := make([]byte, c.BodySize())
		if _, err := c.Encode(samples, dst); err != nil {
			t.Fatalf("Encode: %v", err)
		}

		offset := 0
		for pair := 0; pair < shiftBytePairs; pair++ {
			shiftByte := dst[offset]
			evenShift := int(shiftByte >> 4)
			oddShift := int(shiftByte & 0x0F)
			offset++

			codedBytes := c.codedBytes
			even := decodeSubBlock(dst[offset:offset+codedBytes], bitsWidth)
			offset += codedBytes
			odd := decodeSubBlock(dst[offset:offset+codedBytes], bitsWidth)
			offset += codedBytes

			checkSubBlock(t, samples[pair*32:pair*32+16], even, evenShift)
			checkSubBlock(t, samples[pair*32+16:pair*32+32], odd, oddShift)
		}
	}
}

func checkSubBlock(t *testing.T, original []int32, coded []int32, codedShift int) {
	t.Helper()
	shift32 := codedShift + 16
	tolerance := int32(1) << uint(shift32)
	if tolerance == 0 {
		tolerance = 1
	}

	for i, c := range coded {
		decoded := c << uint(shift32)
		diff := decoded - original[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			t.Errorf("sample %d: decoded=%d original=%d diff=%d exceeds tolerance %d", i, decoded, original[i], diff, tolerance)
		}
	}
}

func TestNewUnicamRejectsBadWidth(t *testing.T) {
	if _, err := NewUnicam(12); err == nil {
		t.Fatal("expected error for unsupported UNICAM width")
	}
}

func TestCodecFactory(t *testing.T) {
	for _, scheme := range []urtp.Scheme{urtp.SchemePCM16, urtp.SchemeUNICAM8, urtp.SchemeUNICAM10} {
		c, err := New(scheme)
		if err != nil {
			t.Fatalf("New(%v): %v", scheme, err)
		}
		if c.Scheme() != scheme {
			t.Errorf("Scheme() = %v, want %v", c.Scheme(), scheme)
		}
	}
}
