// ABOUTME: 1Hz counters sampler feeding the TUI, status API and logs
package pipeline

import (
	"context"
	"sync"
	"time"
)

// Snapshot is one second's worth of pipeline health counters.
type Snapshot struct {
	At time.Time

	PoolSize      int
	PoolAvailable int

	GainShift         int
	GainUnusedBitsMin int

	SenderState     SenderState
	SentDatagrams   int64
	SendFailures    int64
	LastSendElapsed time.Duration

	RecentEvents []Event
}

// Monitor samples a Pipeline once per interval and fans the Snapshot out
// to every subscriber. Torn counter reads are acceptable; the sampler
// never synchronizes with the data path.
type Monitor struct {
	pipeline *Pipeline
	interval time.Duration

	mu   sync.Mutex
	subs []chan Snapshot
}

// NewMonitor creates a Monitor sampling p once per interval.
func NewMonitor(p *Pipeline, interval time.Duration) *Monitor {
	return &Monitor{pipeline: p, interval: interval}
}

// Subscribe registers a new snapshot consumer. Each subscriber gets its
// own capacity-1 channel; a slow consumer has its stale snapshot replaced
// by the fresh one rather than blocking the sampler.
func (m *Monitor) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Run samples the pipeline until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	p := m.pipeline
	snap := Snapshot{
		At:                time.Now(),
		PoolSize:          p.Pool().Size(),
		PoolAvailable:     p.Pool().AvailableToSend(),
		GainShift:         p.Gain().Shift(),
		GainUnusedBitsMin: p.Gain().UnusedBitsMin(),
		SenderState:       p.Sender().State(),
		SentDatagrams:     p.Sender().SentDatagrams,
		SendFailures:      p.Sender().SendFailures,
		LastSendElapsed:   p.Sender().LastSendElapsed,
		RecentEvents:      p.Events().Snapshot(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
