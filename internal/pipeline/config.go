// ABOUTME: Pipeline configuration struct and fixed defaults
package pipeline

import (
	"time"

	"github.com/tidepool-labs/urtp-streamer/pkg/urtp"
)

// Transport selects the socket family the sender uses.
type Transport string

const (
	TransportTCP Transport = "tcp"
	TransportUDP Transport = "udp"
)

// Config holds every tunable the pipeline exposes.
type Config struct {
	SamplingFrequency int
	BlockDurationMs   int

	Scheme     urtp.Scheme
	Transport  Transport
	ServerAddr string

	PoolSize int

	TCPSendTimeout          time.Duration
	MaxDurationSocketErrors time.Duration
	RetryWait               time.Duration

	DesiredUnusedBits int
	MaxShiftBits      int

	LocalFilePath string

	StreamDuration time.Duration

	EventLogCapacity int
}

// DefaultConfig returns the pipeline's standard operating parameters.
func DefaultConfig() Config {
	return Config{
		SamplingFrequency:       16000,
		BlockDurationMs:         20,
		Scheme:                  urtp.SchemePCM16,
		Transport:               TransportTCP,
		PoolSize:                200,
		TCPSendTimeout:          1500 * time.Millisecond,
		MaxDurationSocketErrors: 1000 * time.Millisecond,
		RetryWait:               5 * time.Second,
		DesiredUnusedBits:       4,
		MaxShiftBits:            12,
		EventLogCapacity:        256,
	}
}

// sendDataRunAnywayTime is how long the sender waits for the pool signal
// before draining anyway, bounding shutdown latency.
const sendDataRunAnywayTime = 1000 * time.Millisecond
