// ABOUTME: Sender: drains the datagram pool onto a TCP or UDP socket
// ABOUTME: Tears the connection after a sustained error window, then retries
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"syscall"
	"time"
)

// SenderState is the sender's externally-observable connection state.
type SenderState int

const (
	SenderIdle SenderState = iota
	SenderConnected
	SenderBlocked
	SenderFailed
)

func (s SenderState) String() string {
	switch s {
	case SenderIdle:
		return "idle"
	case SenderConnected:
		return "connected"
	case SenderBlocked:
		return "blocked"
	case SenderFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sender drains committed pool slots onto the configured transport,
// reconnecting after a fixed wait on failure and mirroring every outgoing
// datagram to an optional local file.
type Sender struct {
	cfg    Config
	pool   *Pool
	events *EventLog
	clock  Clock
	mirror io.Writer

	conn  net.Conn
	state SenderState

	badSendSince time.Time

	SentDatagrams   int64
	SendFailures    int64
	LastSendElapsed time.Duration
}

// NewSender builds a Sender over pool, logging diagnostics to events and
// optionally mirroring every outgoing datagram to mirror (nil to disable).
func NewSender(cfg Config, pool *Pool, events *EventLog, clock Clock, mirror io.Writer) *Sender {
	return &Sender{cfg: cfg, pool: pool, events: events, clock: clock, mirror: mirror, state: SenderIdle}
}

// State returns the sender's current connection state.
func (s *Sender) State() SenderState {
	return s.state
}

// Run drains the pool until ctx is cancelled, waking on the pool's signal
// or on a fixed timer so a quiet signal path can never wedge it. A slot
// whose send fails stays in use; the sender backs off to the outer wait
// and retries the same slot on the next wakeup, keeping the outgoing
// stream in sequence order.
func (s *Sender) Run(ctx context.Context) {
	defer s.close()

	for {
		select {
		case <-ctx.Done():
			s.drainRemaining()
			return
		case <-s.pool.Signal():
		case <-time.After(sendDataRunAnywayTime):
		}

		for {
			slot, ready := s.pool.Peek()
			if !ready {
				break
			}
			if err := s.sendSlot(slot); err != nil {
				break
			}
			s.pool.Release()

			select {
			case <-ctx.Done():
				s.drainRemaining()
				return
			default:
			}
		}
	}
}

// drainRemaining flushes whatever is already committed without waiting for
// further signals. The first failure abandons the drain so shutdown stays
// bounded even with a dead link.
func (s *Sender) drainRemaining() {
	for {
		slot, ready := s.pool.Peek()
		if !ready {
			return
		}
		if err := s.sendSlot(slot); err != nil {
			return
		}
		s.pool.Release()
	}
}

// sendSlot transmits one datagram. With no transport configured at all,
// writing the mirror file alone counts as a successful send.
func (s *Sender) sendSlot(slot *Slot) error {
	start := s.clock.MicrosNow()

	if s.mirror != nil {
		if _, err := s.mirror.Write(slot.Data); err != nil {
			log.Printf("pipeline: mirror write failed: %v", err)
		}
	}

	if s.cfg.ServerAddr == "" {
		s.SentDatagrams++
		return nil
	}

	if err := s.ensureConnected(); err != nil {
		s.recordSendFailure(err)
		return err
	}

	if err := s.writeDatagram(slot.Data); err != nil {
		s.recordSendFailure(err)
		return err
	}

	elapsed := time.Duration(s.clock.MicrosNow()-start) * time.Microsecond
	s.LastSendElapsed = elapsed
	s.SentDatagrams++
	s.badSendSince = time.Time{}
	s.state = SenderConnected

	blockDuration := time.Duration(s.cfg.BlockDurationMs) * time.Millisecond
	if s.cfg.Transport == TransportUDP && elapsed > blockDuration {
		s.events.Log(EventSendDurationExceededBlock, int(elapsed.Milliseconds()))
	}

	return nil
}

// writeDatagram performs one TCP deadline-bounded partial-write loop or one
// UDP sendto.
func (s *Sender) writeDatagram(data []byte) error {
	if s.cfg.Transport == TransportTCP {
		s.conn.SetWriteDeadline(time.Now().Add(s.cfg.TCPSendTimeout))
		written := 0
		for written < len(data) {
			n, err := s.conn.Write(data[written:])
			if err != nil {
				return err
			}
			written += n
		}
		return nil
	}

	_, err := s.conn.Write(data)
	return err
}

// isConnectionGone reports whether err means the connection or socket is
// unusable outright, as opposed to a transient write problem worth riding
// out on the bad-send timer.
func isConnectionGone(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ENOTCONN)
}

// recordSendFailure runs the bad-send timer: transient failures are
// tolerated, without tearing down the connection, until
// MaxDurationSocketErrors has elapsed continuously. A connection-gone
// error skips the timer and tears down at once. Either way, after a
// teardown the next attempt waits RetryWait before redialing.
func (s *Sender) recordSendFailure(err error) {
	s.SendFailures++
	s.events.Log(EventSendFailure, 0)

	now := time.Now()
	if s.badSendSince.IsZero() {
		s.badSendSince = now
	}

	if !isConnectionGone(err) && now.Sub(s.badSendSince) < s.cfg.MaxDurationSocketErrors {
		s.state = SenderBlocked
		return
	}

	s.state = SenderFailed
	s.teardown()
	s.badSendSince = time.Time{}
	log.Printf("pipeline: sender connection failed, retrying in %s: %v", s.cfg.RetryWait, err)
	time.Sleep(s.cfg.RetryWait)
}

// ensureConnected dials the configured transport if not already connected.
func (s *Sender) ensureConnected() error {
	if s.conn != nil {
		return nil
	}

	conn, err := net.DialTimeout(string(s.cfg.Transport), s.cfg.ServerAddr, s.cfg.TCPSendTimeout)
	if err != nil {
		s.events.Log(EventConnectFailure, 0)
		return fmt.Errorf("pipeline: dial %s %s: %w", s.cfg.Transport, s.cfg.ServerAddr, err)
	}

	if s.cfg.Transport == TransportTCP {
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
	}

	if s.state == SenderFailed {
		s.events.Log(EventReconnect, 0)
	}

	s.conn = conn
	s.badSendSince = time.Time{}
	return nil
}

func (s *Sender) teardown() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Sender) close() {
	s.teardown()
	s.state = SenderIdle
}
