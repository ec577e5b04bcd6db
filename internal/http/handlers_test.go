package httpapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	dm "github.com/fleetctl/devicemgr"
	"github.com/fleetctl/devicemgr/audio"
	"github.com/fleetctl/devicemgr/registry"
	"github.com/fleetctl/devicemgr/session"
	"github.com/rs/zerolog"
)

func TestDevicesHandlerResponseShape(t *testing.T) {
	reg := registry.New(nil, nil, zerolog.Nop())
	reg.Register("w1", "wheel", nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/devices", nil)
	DevicesHandler(reg)(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	var body devicesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected {total, devices} object, got %s: %v", rr.Body.String(), err)
	}
	if body.Total != 1 {
		t.Fatalf("expected total=1, got %d", body.Total)
	}
	if len(body.Devices) != 1 || body.Devices[0].DeviceID != "w1" {
		t.Fatalf("expected devices=[w1], got %+v", body.Devices)
	}
}

type fakeNotifySynthesizer struct{}

func (fakeNotifySynthesizer) Synthesize(context.Context, string, int) ([]byte, error) {
	return []byte{1, 2, 3}, nil
}

type fakeNotifySender struct{}

func (fakeNotifySender) Send(dm.DeviceID, any) session.SendOutcome {
	return session.OutcomeOK
}

type fakeNotifyStore struct{}

func (fakeNotifyStore) InsertTranscript(dm.AudioTranscript) error { return nil }

func (fakeNotifyStore) RecentTranscripts(int) ([]dm.AudioTranscript, error) { return nil, nil }

func TestAudioNotifyHandlerResponseShape(t *testing.T) {
	pipeline := audio.New(nil, fakeNotifySynthesizer{}, nil, nil, nil, fakeNotifySender{}, fakeNotifyStore{},
		audio.Config{SampleRate: 16000, ChunkSize: 2048}, zerolog.Nop())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/audio/notify?device_id=w1&text=hello", nil)
	AudioNotifyHandler(pipeline)(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	var body notifyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected {ok} object, got %s: %v", rr.Body.String(), err)
	}
	if !body.OK {
		t.Fatalf("expected ok=true, got %+v", body)
	}
}

func TestAudioNotifyHandlerRequiresDeviceID(t *testing.T) {
	pipeline := audio.New(nil, fakeNotifySynthesizer{}, nil, nil, nil, fakeNotifySender{}, fakeNotifyStore{},
		audio.Config{SampleRate: 16000, ChunkSize: 2048}, zerolog.Nop())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/audio/notify?text=hello", nil)
	AudioNotifyHandler(pipeline)(rr, req)

	if rr.Code != 400 {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}
