package telemetry

import (
	"errors"
	"testing"

	dm "github.com/fleetctl/devicemgr"
	"github.com/rs/zerolog"
)

type fakeStore struct {
	snapshots []dm.DeviceStateSnapshot
	failNext  bool
}

func (f *fakeStore) InsertStateSnapshot(snap dm.DeviceStateSnapshot) error {
	if f.failNext {
		f.failNext = false
		return errors.New("insert failed")
	}
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func TestIngestStatusPersistsSnapshot(t *testing.T) {
	store := &fakeStore{}
	ing := New(store, zerolog.Nop())

	ing.IngestStatus("w1", "wheel", map[string]any{"battery": 0.8})

	if len(store.snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(store.snapshots))
	}
	if store.snapshots[0].DeviceID != "w1" || store.snapshots[0].DeviceType != "wheel" {
		t.Fatalf("unexpected snapshot: %+v", store.snapshots[0])
	}
	if store.snapshots[0].Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}
}

func TestIngestStatusSwallowsStoreError(t *testing.T) {
	store := &fakeStore{failNext: true}
	ing := New(store, zerolog.Nop())

	// Must not panic even though the store call fails.
	ing.IngestStatus("w1", "wheel", map[string]any{"battery": 0.8})

	if len(store.snapshots) != 0 {
		t.Fatalf("expected no snapshot recorded on store failure")
	}
}
