// ABOUTME: Block Source (C1): DMA-ring-equivalent callback producer
// ABOUTME: Production capture via malgo, plus a synthetic generator for tests
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/tidepool-labs/urtp-streamer/pkg/codec"
)

// BlockEvent mirrors the DMA double-buffer completion codes: one event for
// each half of the ring, plus a catch-all for anything unexpected.
type BlockEvent int

const (
	BlockHalfComplete BlockEvent = iota
	BlockFullComplete
	BlockEventOther
)

func (e BlockEvent) String() string {
	switch e {
	case BlockHalfComplete:
		return "half_complete"
	case BlockFullComplete:
		return "full_complete"
	default:
		return "other"
	}
}

// StereoFrameBytes is the wire size of one interleaved stereo frame: two
// 32-bit words, little-endian host view.
const StereoFrameBytes = 8

// BlockBytes is one 20ms audio block's worth of raw stereo frames.
const BlockBytes = codec.SamplesPerBlock * StereoFrameBytes

// BlockSource delivers completed 320-stereo-frame blocks to the pipeline.
// It never blocks its caller: a production implementation runs the
// callback from its own audio-device thread.
type BlockSource interface {
	// Start begins delivery, invoking onBlock once per completed block
	// (or once with BlockEventOther and a nil payload on an unrecoverable
	// device error).
	Start(onBlock func(event BlockEvent, stereoFrames []byte)) error
	Stop() error
}

// packStereoFrame encodes one 24-bit mono sample into the microphone's
// 8-byte wire layout: bytes[1],[0],[3] carry the value's MSB/mid/LSB,
// byte[2] is the discard byte (0xFF), and the second word is unused-right-
// channel filler.
func packStereoFrame(sample int32) [StereoFrameBytes]byte {
	var f [StereoFrameBytes]byte
	f[0] = byte(sample >> 8)
	f[1] = byte(sample >> 16)
	f[2] = 0xFF
	f[3] = byte(sample)
	f[4], f[5], f[6], f[7] = 0xFF, 0xFF, 0xFF, 0xFF
	return f
}

// GeneratorSource is a synthetic Block Source driven by a sample function,
// used for test tones, silence, and step signals without any real
// hardware. A ticker at the block duration stands in for the DMA
// completion interrupts.
type GeneratorSource struct {
	next       func(n uint64) int32
	blockEvery time.Duration
	cancel     context.CancelFunc
	closer     func() error
}

// NewGeneratorSource creates a source that calls next once per sample,
// ticking once per blockDuration.
func NewGeneratorSource(next func(n uint64) int32, blockDuration time.Duration) *GeneratorSource {
	return &GeneratorSource{next: next, blockEvery: blockDuration}
}

// Start implements BlockSource.
func (g *GeneratorSource) Start(onBlock func(event BlockEvent, stereoFrames []byte)) error {
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel

	go func() {
		ticker := time.NewTicker(g.blockEvery)
		defer ticker.Stop()

		var sampleIndex uint64
		half := true
		buf := make([]byte, BlockBytes)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for i := 0; i < codec.SamplesPerBlock; i++ {
					frame := packStereoFrame(g.next(sampleIndex))
					copy(buf[i*StereoFrameBytes:], frame[:])
					sampleIndex++
				}
				event := BlockHalfComplete
				if !half {
					event = BlockFullComplete
				}
				half = !half
				onBlock(event, buf)
			}
		}
	}()

	return nil
}

// Stop implements BlockSource.
func (g *GeneratorSource) Stop() error {
	if g.cancel != nil {
		g.cancel()
	}
	if g.closer != nil {
		return g.closer()
	}
	return nil
}

// SilenceSource returns a GeneratorSource producing zero samples forever.
func SilenceSource(blockDuration time.Duration) *GeneratorSource {
	return NewGeneratorSource(func(uint64) int32 { return 0 }, blockDuration)
}

// StepSource returns a GeneratorSource that holds at zero until flipAt
// samples have been produced, then jumps to value and holds there.
func StepSource(blockDuration time.Duration, flipAt uint64, value int32) *GeneratorSource {
	return NewGeneratorSource(func(n uint64) int32 {
		if n < flipAt {
			return 0
		}
		return value
	}, blockDuration)
}

// MalgoSource captures a stereo 16kHz digital microphone feed via miniaudio
// and re-packs each sample into the microphone wire layout so the rest of
// the pipeline never needs to know the real capture backend exists.
type MalgoSource struct {
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	accum    []byte
	accumLen int
	half     bool
	onBlock  func(event BlockEvent, stereoFrames []byte)
}

// NewMalgoSource creates an uninitialized capture source; Start opens the
// device.
func NewMalgoSource() *MalgoSource {
	return &MalgoSource{accum: make([]byte, BlockBytes)}
}

// Start implements BlockSource.
func (m *MalgoSource) Start(onBlock func(event BlockEvent, stereoFrames []byte)) error {
	m.onBlock = onBlock

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("pipeline: malgo context init: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS32
	deviceConfig.Capture.Channels = 2
	deviceConfig.SampleRate = 16000
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			m.onCaptured(pInputSamples)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("pipeline: malgo device init: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("pipeline: malgo device start: %w", err)
	}

	m.ctx = ctx
	m.device = device
	return nil
}

// onCaptured converts 32-bit-per-channel interleaved stereo samples from
// miniaudio into the microphone wire layout, left channel only,
// accumulating whole blocks before invoking the callback.
func (m *MalgoSource) onCaptured(data []byte) {
	const bytesPerFrame = 8 // 2 channels * 4 bytes (S32)

	for off := 0; off+bytesPerFrame <= len(data); off += bytesPerFrame {
		leftS32 := int32(data[off]) | int32(data[off+1])<<8 | int32(data[off+2])<<16 | int32(data[off+3])<<24
		left24 := leftS32 >> 8

		frame := packStereoFrame(left24)
		copy(m.accum[m.accumLen:], frame[:])
		m.accumLen += StereoFrameBytes

		if m.accumLen == len(m.accum) {
			event := BlockHalfComplete
			if !m.half {
				event = BlockFullComplete
			}
			m.half = !m.half
			m.onBlock(event, m.accum)
			m.accumLen = 0
		}
	}
}

// Stop implements BlockSource.
func (m *MalgoSource) Stop() error {
	if m.device != nil {
		m.device.Uninit()
	}
	if m.ctx != nil {
		m.ctx.Uninit()
		m.ctx.Free()
	}
	return nil
}
