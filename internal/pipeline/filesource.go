// ABOUTME: File-replay Block Source: drives the pipeline from MP3/FLAC
// ABOUTME: instead of a microphone, looping the file at block cadence
package pipeline

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// fileDecoder yields one 24-bit-range mono sample at a time, looping back
// to the start of the file on EOF. Stereo files are downmixed to the left
// channel, matching the hardware's single-microphone input.
type fileDecoder interface {
	nextSample() (int32, error)
	close() error
}

// NewFileSource opens path (.mp3 or .flac) and returns a BlockSource that
// replays it at the pipeline's block cadence, useful for development and
// for the replay-source example without any capture hardware.
func NewFileSource(path string, blockDuration time.Duration) (*GeneratorSource, error) {
	dec, err := openFileDecoder(path)
	if err != nil {
		return nil, err
	}

	src := NewGeneratorSource(func(uint64) int32 {
		sample, err := dec.nextSample()
		if err != nil {
			return 0
		}
		return sample
	}, blockDuration)
	src.closer = dec.close
	return src, nil
}

func openFileDecoder(path string) (fileDecoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return newMP3Decoder(path)
	case ".flac":
		return newFLACDecoder(path)
	default:
		return nil, fmt.Errorf("pipeline: unsupported replay file format: %s", path)
	}
}

// mp3FileDecoder reads 16-bit PCM from go-mp3 and scales into 24-bit
// range.
type mp3FileDecoder struct {
	file    *os.File
	decoder *mp3.Decoder
	pending []byte
}

func newMP3Decoder(path string) (*mp3FileDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open %s: %w", path, err)
	}

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pipeline: decode %s: %w", path, err)
	}

	return &mp3FileDecoder{file: f, decoder: dec}, nil
}

func (d *mp3FileDecoder) nextSample() (int32, error) {
	if len(d.pending) < 4 {
		buf := make([]byte, 4096)
		n, err := d.decoder.Read(buf)
		if err == io.EOF || n == 0 {
			if _, seekErr := d.file.Seek(0, io.SeekStart); seekErr != nil {
				return 0, seekErr
			}
			newDec, decErr := mp3.NewDecoder(d.file)
			if decErr != nil {
				return 0, decErr
			}
			d.decoder = newDec
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		d.pending = append(d.pending, buf[:n]...)
	}

	sample16 := int16(binary.LittleEndian.Uint16(d.pending[0:2]))
	d.pending = d.pending[4:] // drop right channel, go-mp3 is always stereo s16le
	return int32(sample16) << 8, nil
}

func (d *mp3FileDecoder) close() error {
	return d.file.Close()
}

// flacFileDecoder pulls samples a frame at a time from mewkiz/flac and
// scales to 24-bit range.
type flacFileDecoder struct {
	file     *os.File
	stream   *flac.Stream
	bitDepth int
	channels int

	frame    [][]int32 // current frame's subframe samples
	frameIdx int
}

func newFLACDecoder(path string) (*flacFileDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open %s: %w", path, err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pipeline: decode %s: %w", path, err)
	}

	return &flacFileDecoder{
		file:     f,
		stream:   stream,
		bitDepth: int(stream.Info.BitsPerSample),
		channels: int(stream.Info.NChannels),
	}, nil
}

func (d *flacFileDecoder) nextSample() (int32, error) {
	if d.frame == nil || d.frameIdx >= len(d.frame[0]) {
		frame, err := d.stream.ParseNext()
		if err == io.EOF {
			if _, seekErr := d.file.Seek(0, io.SeekStart); seekErr != nil {
				return 0, seekErr
			}
			newStream, decErr := flac.New(d.file)
			if decErr != nil {
				return 0, decErr
			}
			d.stream = newStream
			d.frame = nil
			return 0, nil
		}
		if err != nil {
			return 0, err
		}

		d.frame = make([][]int32, 1)
		d.frame[0] = frame.Subframes[0].Samples
		d.frameIdx = 0
	}

	sample := d.frame[0][d.frameIdx]
	d.frameIdx++

	shift := d.bitDepth - 24
	switch {
	case shift == 0:
		return sample, nil
	case shift > 0:
		return sample >> shift, nil
	default:
		return sample << -shift, nil
	}
}

func (d *flacFileDecoder) close() error {
	return d.file.Close()
}
