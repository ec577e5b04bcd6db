package heartbeat

import (
	"context"
	"testing"
	"time"

	dm "github.com/fleetctl/devicemgr"
	"github.com/rs/zerolog"
)

type fakeRegistry struct {
	stale     []dm.DeviceID
	offlined  []dm.DeviceID
}

func (f *fakeRegistry) StaleSince(time.Time) []dm.DeviceID { return f.stale }
func (f *fakeRegistry) MarkOffline(id dm.DeviceID, _ dm.ConnectionEventKind) {
	f.offlined = append(f.offlined, id)
}

type fakeSessions struct {
	closed []dm.DeviceID
}

func (f *fakeSessions) Close(id dm.DeviceID, _ string) { f.closed = append(f.closed, id) }

type fakeAckSweeper struct {
	swept int
}

func (f *fakeAckSweeper) SweepTimedOutAcks() { f.swept++ }

func TestTickOfflinesStaleDevicesAndSweepsAcks(t *testing.T) {
	reg := &fakeRegistry{stale: []dm.DeviceID{"d1", "d2"}}
	sessions := &fakeSessions{}
	acks := &fakeAckSweeper{}

	r := New(reg, sessions, acks, 90*time.Second, 10*time.Millisecond, zerolog.Nop())
	r.tick()

	if len(reg.offlined) != 2 {
		t.Fatalf("expected 2 devices offlined, got %v", reg.offlined)
	}
	if len(sessions.closed) != 2 {
		t.Fatalf("expected 2 sessions closed, got %v", sessions.closed)
	}
	if acks.swept != 1 {
		t.Fatalf("expected ack sweep to run once, got %d", acks.swept)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	reg := &fakeRegistry{}
	sessions := &fakeSessions{}
	r := New(reg, sessions, nil, time.Second, time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("reaper did not stop after context cancellation")
	}
}
