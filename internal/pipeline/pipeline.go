// ABOUTME: Pipeline wires Block Source -> extractor -> gain -> codec -> pool -> sender
// ABOUTME: Start/Stop lifecycle gives the sender a bounded drain on shutdown
package pipeline

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/tidepool-labs/urtp-streamer/pkg/codec"
	"github.com/tidepool-labs/urtp-streamer/pkg/gain"
	"github.com/tidepool-labs/urtp-streamer/pkg/urtp"
	"golang.org/x/sync/errgroup"
)

// shutdownGrace bounds how long Stop waits for the sender to drain whatever
// is already committed before returning.
const shutdownGrace = 2 * time.Second

// Pipeline owns every stage of the capture chain: a Block Source, the
// extraction/gain/codec framing path, the datagram pool, and the sender.
type Pipeline struct {
	// SessionID identifies this pipeline instance across its diagnostic
	// events and logs, useful once more than one capture unit streams to
	// the same collector.
	SessionID uuid.UUID

	cfg     Config
	source  BlockSource
	codec   codec.Codec
	gain    *gain.Controller
	pool    *Pool
	sender  *Sender
	monitor *Monitor
	events  *EventLog
	clock   Clock
	status  StatusIndicator

	sequence   uint16
	sampleBuf  []int32
	eg         *errgroup.Group
	senderStop context.CancelFunc
}

// New constructs a Pipeline from cfg. mirror is an optional local file the
// sender tees every outgoing datagram to (nil disables mirroring).
func New(cfg Config, source BlockSource, status StatusIndicator, mirror io.Writer) (*Pipeline, error) {
	if status == nil {
		status = NoopStatusIndicator{}
	}

	c, err := codec.New(cfg.Scheme)
	if err != nil {
		return nil, err
	}

	events := NewEventLog(cfg.EventLogCapacity)

	if err := codec.VerifyArithmeticShift(); err != nil {
		events.Log(EventCodecStartupFailure, 0)
		return nil, err
	}

	datagramSize := urtp.HeaderSize + c.BodySize()
	pool := NewPool(cfg.PoolSize, datagramSize, events)
	clock := NewSystemClock()
	sender := NewSender(cfg, pool, events, clock, mirror)

	gainCfg := gain.Config{
		DesiredUnusedBits: cfg.DesiredUnusedBits,
		MaxShiftBits:      cfg.MaxShiftBits,
		BlockSize:         codec.SamplesPerBlock,
	}

	p := &Pipeline{
		SessionID: uuid.New(),
		cfg:       cfg,
		source:    source,
		codec:     c,
		gain:      gain.NewController(gainCfg),
		pool:      pool,
		sender:    sender,
		events:    events,
		clock:     clock,
		status:    status,
		sampleBuf: make([]int32, codec.SamplesPerBlock),
	}
	p.monitor = NewMonitor(p, time.Second)

	return p, nil
}

// Events exposes the diagnostic log for monitoring and tests.
func (p *Pipeline) Events() *EventLog { return p.events }

// Pool exposes the datagram pool for monitoring.
func (p *Pipeline) Pool() *Pool { return p.pool }

// Sender exposes the sender for monitoring.
func (p *Pipeline) Sender() *Sender { return p.sender }

// Gain exposes the adaptive gain controller for monitoring.
func (p *Pipeline) Gain() *gain.Controller { return p.gain }

// Monitor exposes the 1Hz counters sampler that feeds the TUI and status
// API.
func (p *Pipeline) Monitor() *Monitor { return p.monitor }

// Start runs the sender loop and the monitor ticker under one errgroup,
// then starts the Block Source. Neither goroutine returns an error, and
// Stop waits on the group without reporting its result. Start returns once
// the source has been told to start; the sender and monitor run until ctx
// is cancelled or Stop is called.
func (p *Pipeline) Start(ctx context.Context) error {
	runCtx, stop := context.WithCancel(ctx)
	p.senderStop = stop

	eg, egCtx := errgroup.WithContext(runCtx)
	p.eg = eg

	eg.Go(func() error {
		p.sender.Run(egCtx)
		return nil
	})
	eg.Go(func() error {
		p.monitor.Run(egCtx)
		return nil
	})

	return p.source.Start(p.onBlock)
}

// Stop halts the Block Source and gives the sender up to shutdownGrace to
// drain whatever remains committed.
func (p *Pipeline) Stop() error {
	err := p.source.Stop()

	p.senderStop()

	done := make(chan struct{})
	go func() {
		p.eg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		log.Printf("pipeline %s: sender did not drain within %s", p.SessionID, shutdownGrace)
	}

	return err
}

// onBlock is the Block Source callback: it runs on the source's own
// goroutine/thread and must never block. All downstream work
// (extraction, gain, coding, framing) happens synchronously here, then the
// committed slot is handed off to the sender purely by atomic signal.
func (p *Pipeline) onBlock(event BlockEvent, stereoFrames []byte) {
	switch event {
	case BlockHalfComplete, BlockFullComplete:
	default:
		p.events.Log(EventUnknownBlockEvent, int(event))
		p.status.SetRed()
		return
	}

	p.ProcessStereoBlock(stereoFrames)
}

// ProcessStereoBlock runs one 320-frame block through extraction, adaptive
// gain, coding, and framing, committing the result to the pool. It is
// exposed directly so tests can drive the pipeline deterministically
// without any real-time Block Source.
func (p *Pipeline) ProcessStereoBlock(stereoFrames []byte) {
	anyBad := false

	for i := 0; i < codec.SamplesPerBlock; i++ {
		frame := stereoFrames[i*StereoFrameBytes : (i+1)*StereoFrameBytes]
		sample, possibleBad := extractMonoSample(frame)
		if possibleBad {
			anyBad = true
		}
		p.sampleBuf[i] = p.gain.Apply(sample)
	}

	if anyBad {
		p.events.Log(EventPossibleBadAudio, 0)
	}

	slot, _ := p.pool.Reserve()

	n, err := p.codec.Encode(p.sampleBuf, slot.Data[urtp.HeaderSize:])
	if err != nil {
		log.Printf("pipeline: encode failed: %v", err)
		return
	}

	codec.FillHeader(slot.Data, p.codec.Scheme(), p.sequence, uint64(p.clock.MicrosNow()), n)
	p.sequence++

	p.pool.Commit(slot)
}
