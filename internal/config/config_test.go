package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	opts, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if opts.ListenPort != 8000 {
		t.Fatalf("expected default listen port 8000, got %d", opts.ListenPort)
	}
	if opts.HeartbeatTimeout != 90*time.Second {
		t.Fatalf("expected default heartbeat timeout 90s, got %v", opts.HeartbeatTimeout)
	}
	if len(opts.PrefixPhrases) != 2 || opts.PrefixPhrases[0] != "ESP" {
		t.Fatalf("expected default prefix phrases, got %v", opts.PrefixPhrases)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DEVICEMGR_LISTEN_PORT", "9001")
	t.Setenv("DEVICEMGR_CONFIDENCE_THRESHOLD", "0.85")

	opts, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if opts.ListenPort != 9001 {
		t.Fatalf("expected env override to win, got %d", opts.ListenPort)
	}
	if opts.ConfidenceThreshold != 0.85 {
		t.Fatalf("expected env override threshold, got %v", opts.ConfidenceThreshold)
	}
}
