package codec

import (
	"fmt"
	"math/bits"

	"github.com/tidepool-labs/urtp-streamer/pkg/urtp"
)

const (
	// subBlockSamples is 1ms of audio at 16kHz: the UNICAM shift unit.
	subBlockSamples = 16
	// subBlocksPerBlock is SamplesPerBlock / subBlockSamples.
	subBlocksPerBlock = SamplesPerBlock / subBlockSamples
	// shiftBytePairs is one shared shift-nibble byte per two sub-blocks.
	shiftBytePairs = subBlocksPerBlock / 2
)

// UnicamCodec implements the UNICAM-8 and UNICAM-10 coding schemes: each
// 16-sample sub-block picks a shift exponent so its peak magnitude fits the
// coded word width, and two consecutive sub-blocks share one byte of shift
// nibbles.
type UnicamCodec struct {
	codedBits    int // 8 or 10
	codedBytes   int // bytes of coded sample data per sub-block
	scheme       urtp.Scheme
	subBlockCode []byte // scratch: coded bytes for one sub-block
}

// NewUnicam creates a UNICAM codec coding each sample to codedBits bits (8
// or 10). It refuses to construct if the platform's right-shift on signed
// integers is not arithmetic, since the coder depends on sign-preserving
// shifts throughout.
func NewUnicam(codedBits int) (*UnicamCodec, error) {
	if err := VerifyArithmeticShift(); err != nil {
		return nil, err
	}

	var scheme urtp.Scheme
	switch codedBits {
	case 8:
		scheme = urtp.SchemeUNICAM8
	case 10:
		scheme = urtp.SchemeUNICAM10
	default:
		return nil, fmt.Errorf("codec: unsupported UNICAM width %d", codedBits)
	}

	codedBytes := (subBlockSamples*codedBits + 7) / 8

	return &UnicamCodec{
		codedBits:    codedBits,
		codedBytes:   codedBytes,
		scheme:       scheme,
		subBlockCode: make([]byte, codedBytes),
	}, nil
}

// VerifyArithmeticShift checks that right-shifting a negative signed
// integer preserves the sign bit. Go guarantees this for >> on signed
// operands, but the check runs anyway before any UNICAM encoding is
// attempted, refusing to code audio on a platform where it fails.
func VerifyArithmeticShift() error {
	var x int32 = -1
	if (x >> 1) != -1 {
		return fmt.Errorf("codec: platform failed arithmetic right-shift test, refusing UNICAM")
	}
	return nil
}

// Scheme implements Codec.
func (c *UnicamCodec) Scheme() urtp.Scheme { return c.scheme }

// BodySize implements Codec. Derived deterministically as
// shiftBytePairs * (1 shift byte + 2 sub-blocks of coded samples), never
// from a running count during encoding.
func (c *UnicamCodec) BodySize() int {
	twoSubBlocksSize := 1 + 2*c.codedBytes
	return shiftBytePairs * twoSubBlocksSize
}

// Encode implements Codec.
func (c *UnicamCodec) Encode(samples []int32, dst []byte) (int, error) {
	if len(samples) != SamplesPerBlock {
		return 0, fmt.Errorf("codec: UNICAM expects %d samples, got %d", SamplesPerBlock, len(samples))
	}
	if len(dst) < c.BodySize() {
		return 0, fmt.Errorf("codec: UNICAM dst too small: %d < %d", len(dst), c.BodySize())
	}

	offset := 0
	for pair := 0; pair < shiftBytePairs; pair++ {
		base := pair * 2 * subBlockSamples
		even := samples[base : base+subBlockSamples]
		odd := samples[base+subBlockSamples : base+2*subBlockSamples]

		evenShift := c.codeSubBlock(even, c.subBlockCode)
		dst[offset] = byte(evenShift << 4)
		offset++
		copy(dst[offset:], c.subBlockCode)
		offset += c.codedBytes

		oddShift := c.codeSubBlock(odd, c.subBlockCode)
		dst[offset-c.codedBytes-1] |= byte(oddShift & 0x0F)
		copy(dst[offset:], c.subBlockCode)
		offset += c.codedBytes
	}

	return offset, nil
}

// codeSubBlock picks the shift for one 16-sample sub-block, writes its
// coded samples into scratch (which must be c.codedBytes long) and returns
// the 4-bit codedShift to place on the wire.
func (c *UnicamCodec) codeSubBlock(samples []int32, scratch []byte) int {
	// Track the peak as an unsigned magnitude so the minimum int32, whose
	// negation overflows, still registers at full scale.
	var maxAbs uint32
	for _, s := range samples {
		mag := uint32(s)
		if s < 0 {
			mag = uint32(-s)
		}
		if mag > maxAbs {
			maxAbs = mag
		}
	}

	usedBits := 0
	if maxAbs != 0 {
		usedBits = bits.Len32(maxAbs) - 1
	}

	// The peak occupies bit usedBits plus a sign bit, so usedBits+2
	// significant bits must survive in a codedBits-wide word.
	shift32 := usedBits + 2 - c.codedBits
	if shift32 < 0 {
		shift32 = 0
	}
	codedShift := shift32 - 16
	if codedShift < 0 {
		codedShift = 0
	}

	if c.codedBits == 8 {
		for i, s := range samples {
			scratch[i] = byte(s >> uint(shift32))
		}
	} else {
		w := newBitWriter(scratch)
		for _, s := range samples {
			coded := uint32(s>>uint(shift32)) & 0x3FF
			w.write(coded, c.codedBits)
		}
	}

	return codedShift
}

// bitWriter packs fixed-width values MSB-first into a byte slice.
type bitWriter struct {
	dst  []byte
	pos  int // next byte index
	acc  uint32
	bits int // bits currently held in acc
}

func newBitWriter(dst []byte) *bitWriter {
	for i := range dst {
		dst[i] = 0
	}
	return &bitWriter{dst: dst}
}

func (w *bitWriter) write(value uint32, width int) {
	w.acc = (w.acc << uint(width)) | (value & ((1 << uint(width)) - 1))
	w.bits += width

	for w.bits >= 8 {
		w.bits -= 8
		w.dst[w.pos] = byte(w.acc >> uint(w.bits))
		w.pos++
	}
}
