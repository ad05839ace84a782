package pipeline

import (
	"testing"
	"time"
)

func TestPackStereoFrameRoundTripsThroughExtractor(t *testing.T) {
	cases := []int32{0, 1, -1, 0x7FFFFF, -0x800000, 0x00666666 >> 8 << 8, 12345}

	for _, in := range cases {
		frame := packStereoFrame(in)
		got, possibleBad := extractMonoSample(frame[:])
		// The extractor scales the 24-bit value to the top of the word.
		if want := in << 8; got != want {
			t.Errorf("packStereoFrame/extractMonoSample round trip: want %d, got %d", want, got)
		}
		if possibleBad {
			t.Errorf("expected possibleBad false for a clean frame (sample %d)", in)
		}
	}
}

func TestGeneratorSourceAlternatesHalfAndFullEvents(t *testing.T) {
	src := NewGeneratorSource(func(n uint64) int32 { return int32(n) }, 5*time.Millisecond)

	events := make(chan BlockEvent, 4)
	err := src.Start(func(event BlockEvent, frames []byte) {
		select {
		case events <- event:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer src.Stop()

	first := <-events
	second := <-events

	if first != BlockHalfComplete {
		t.Errorf("expected first event to be BlockHalfComplete, got %v", first)
	}
	if second != BlockFullComplete {
		t.Errorf("expected second event to be BlockFullComplete, got %v", second)
	}
}

func TestBlockEventString(t *testing.T) {
	if BlockHalfComplete.String() != "half_complete" {
		t.Errorf("unexpected string for BlockHalfComplete: %s", BlockHalfComplete.String())
	}
	if BlockEventOther.String() != "other" {
		t.Errorf("unexpected string for BlockEventOther: %s", BlockEventOther.String())
	}
}
