package gain

import "math/bits"

// Config holds the tunable parameters of the gain controller.
type Config struct {
	// DesiredUnusedBits is the headroom, in bits, the controller steers
	// toward.
	DesiredUnusedBits int
	// MaxShiftBits bounds how far a sample may be left-shifted.
	MaxShiftBits int
	// BlockSize is the number of samples between adjustment steps (one
	// audio block).
	BlockSize int
}

// DefaultConfig returns the values used by the streaming pipeline.
func DefaultConfig() Config {
	return Config{
		DesiredUnusedBits: 4,
		MaxShiftBits:      12,
		BlockSize:         320,
	}
}

// Controller tracks gAudioShift/gAudioUnusedBitsMin and applies the shift to
// each incoming sample. A Controller is not safe for concurrent use; the
// pipeline serializes all samples through one extractor goroutine.
type Controller struct {
	cfg           Config
	shift         int
	unusedBitsMin int
	sampleCount   int
}

// NewController creates a controller starting at zero gain with maximal
// assumed headroom, so the first block only ever raises the shift.
func NewController(cfg Config) *Controller {
	return &Controller{
		cfg:           cfg,
		unusedBitsMin: 31,
	}
}

// Shift returns the current gAudioShift value.
func (c *Controller) Shift() int {
	return c.shift
}

// UnusedBitsMin returns the current gAudioUnusedBitsMin value.
func (c *Controller) UnusedBitsMin() int {
	return c.unusedBitsMin
}

// Apply shifts sample left by the current gain and folds it into the
// running headroom minimum for the block in progress. Every BlockSize
// samples it runs the block-boundary adjustment: clamp the shift to the
// observed minimum, step it toward the desired headroom, then relax the
// minimum upward by one bit.
func (c *Controller) Apply(sample int32) int32 {
	if u := unusedBits(sample); u < c.unusedBitsMin {
		c.unusedBitsMin = u
	}

	shifted := sample << uint(c.shift)

	c.sampleCount++
	if c.sampleCount >= c.cfg.BlockSize {
		c.endBlock()
		c.sampleCount = 0
	}

	return shifted
}

func (c *Controller) endBlock() {
	if c.shift > c.unusedBitsMin {
		c.shift = c.unusedBitsMin
	}

	if c.unusedBitsMin-c.shift > c.cfg.DesiredUnusedBits && c.shift < c.cfg.MaxShiftBits {
		c.shift++
	} else if c.unusedBitsMin-c.shift < c.cfg.DesiredUnusedBits && c.shift > 0 {
		c.shift--
	}

	c.unusedBitsMin++
}

// unusedBits counts the leading zero bits of |sample| across bits 30..0,
// never counting the sign bit. A zero sample is defined to have 31 unused
// bits.
func unusedBits(sample int32) int {
	abs := sample
	if abs < 0 {
		abs = -abs
	}
	if abs == 0 {
		return 31
	}

	// -abs of the minimum int32 is itself; its magnitude uses every bit.
	highest := bits.Len32(uint32(abs)) - 1
	if highest >= 31 {
		return 0
	}
	return 30 - highest
}
