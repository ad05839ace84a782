package pipeline

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"
)

func TestSenderMirrorOnlySuccessWithNoServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServerAddr = ""

	var mirror bytes.Buffer
	events := NewEventLog(16)
	pool := NewPool(4, 8, events)
	sender := NewSender(cfg, pool, events, NewSystemClock(), &mirror)

	slot, _ := pool.Reserve()
	copy(slot.Data, []byte{0xAA, 0xBB, 0xCC, 0xDD, 1, 2, 3, 4})
	pool.Commit(slot)

	ready, _ := pool.Peek()
	sender.sendSlot(ready)

	if sender.SentDatagrams != 1 {
		t.Fatalf("expected 1 sent datagram via mirror-only path, got %d", sender.SentDatagrams)
	}
	if !bytes.Equal(mirror.Bytes(), slot.Data) {
		t.Errorf("expected mirror to receive the datagram bytes verbatim")
	}
}

func TestSenderConnectsAndSendsOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 8)
		n, _ := conn.Read(buf)
		received <- buf[:n]
	}()

	cfg := DefaultConfig()
	cfg.Transport = TransportTCP
	cfg.ServerAddr = ln.Addr().String()
	cfg.TCPSendTimeout = time.Second

	events := NewEventLog(16)
	pool := NewPool(4, 8, events)
	sender := NewSender(cfg, pool, events, NewSystemClock(), nil)

	slot, _ := pool.Reserve()
	copy(slot.Data, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	pool.Commit(slot)

	ready, _ := pool.Peek()
	sender.sendSlot(ready)

	select {
	case got := <-received:
		if !bytes.Equal(got, slot.Data) {
			t.Errorf("expected server to receive %v, got %v", slot.Data, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for TCP server to receive datagram")
	}

	if sender.State() != SenderConnected {
		t.Errorf("expected sender state Connected, got %v", sender.State())
	}
}

func TestSenderTearsDownOnConnectionLossAndReconnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	// Accept every connection the sender dials and drain it, so the
	// sender can redial after a teardown.
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go io.Copy(io.Discard, conn)
		}
	}()

	cfg := DefaultConfig()
	cfg.Transport = TransportTCP
	cfg.ServerAddr = ln.Addr().String()
	cfg.TCPSendTimeout = time.Second
	cfg.RetryWait = 10 * time.Millisecond

	events := NewEventLog(16)
	pool := NewPool(4, 8, events)
	sender := NewSender(cfg, pool, events, NewSystemClock(), nil)

	slot, _ := pool.Reserve()
	copy(slot.Data, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	pool.Commit(slot)

	ready, _ := pool.Peek()
	if err := sender.sendSlot(ready); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if sender.State() != SenderConnected {
		t.Fatalf("expected Connected after first send, got %v", sender.State())
	}

	// Kill the socket under the sender: the next write fails with a
	// connection-gone error and must tear down immediately, without
	// waiting out the bad-send timer.
	sender.conn.Close()
	if err := sender.sendSlot(ready); err == nil {
		t.Fatal("expected a send failure on a closed connection")
	}
	if sender.State() != SenderFailed {
		t.Fatalf("expected Failed after connection loss, got %v", sender.State())
	}
	if sender.conn != nil {
		t.Fatal("expected the dead connection to be torn down")
	}

	// The slot was never released, so the retry sends the same datagram
	// over a fresh connection.
	if err := sender.sendSlot(ready); err != nil {
		t.Fatalf("send after reconnect: %v", err)
	}
	if sender.State() != SenderConnected {
		t.Fatalf("expected Connected after reconnect, got %v", sender.State())
	}

	reconnected := false
	for _, e := range events.Snapshot() {
		if e.Kind == EventReconnect {
			reconnected = true
		}
	}
	if !reconnected {
		t.Error("expected a reconnect event after the teardown")
	}
}

func TestSenderRunDrainsOnShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServerAddr = ""

	var mirror bytes.Buffer
	events := NewEventLog(16)
	pool := NewPool(4, 8, events)
	sender := NewSender(cfg, pool, events, NewSystemClock(), &mirror)

	for i := 0; i < 3; i++ {
		slot, _ := pool.Reserve()
		pool.Commit(slot)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sender.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sender.Run did not return after cancellation")
	}

	if sender.SentDatagrams != 3 {
		t.Errorf("expected all 3 committed datagrams drained on shutdown, got %d", sender.SentDatagrams)
	}
}
