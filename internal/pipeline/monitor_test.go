package pipeline

import (
	"testing"

	"github.com/tidepool-labs/urtp-streamer/pkg/urtp"
)

func TestMonitorFansOutToAllSubscribers(t *testing.T) {
	p := newTestPipeline(t, urtp.SchemePCM16)
	m := p.Monitor()

	a := m.Subscribe()
	b := m.Subscribe()

	m.sample()

	for name, ch := range map[string]<-chan Snapshot{"a": a, "b": b} {
		select {
		case snap := <-ch:
			if snap.PoolSize != p.Pool().Size() {
				t.Errorf("subscriber %s: pool size %d, want %d", name, snap.PoolSize, p.Pool().Size())
			}
		default:
			t.Errorf("subscriber %s: no snapshot delivered", name)
		}
	}
}

func TestMonitorReplacesStaleSnapshot(t *testing.T) {
	p := newTestPipeline(t, urtp.SchemePCM16)
	m := p.Monitor()
	ch := m.Subscribe()

	m.sample()
	p.ProcessStereoBlock(buildStereoBlock(func(int) int32 { return 0 }))
	m.sample()

	select {
	case snap := <-ch:
		if snap.PoolAvailable != 1 {
			t.Errorf("expected the fresh snapshot (1 committed datagram), got %d", snap.PoolAvailable)
		}
	default:
		t.Fatal("expected a snapshot pending")
	}

	select {
	case <-ch:
		t.Fatal("expected only the freshest snapshot to be retained")
	default:
	}
}
