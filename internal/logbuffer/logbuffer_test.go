package logbuffer

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
)

func TestRingCapturesAndOrdersNewestFirst(t *testing.T) {
	r := New(3)
	logger := zerolog.New(io.Discard).Hook(r)

	logger.Info().Msg("first")
	logger.Info().Msg("second")
	logger.Warn().Msg("third")

	entries := r.Recent(0, "")
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Message != "third" {
		t.Fatalf("expected newest-first ordering, got %+v", entries)
	}
}

func TestRingEvictsOldestOnOverflow(t *testing.T) {
	r := New(2)
	logger := zerolog.New(io.Discard).Hook(r)

	logger.Info().Msg("one")
	logger.Info().Msg("two")
	logger.Info().Msg("three")

	entries := r.Recent(0, "")
	if len(entries) != 2 {
		t.Fatalf("expected ring capped at 2, got %d", len(entries))
	}
	if entries[0].Message != "three" || entries[1].Message != "two" {
		t.Fatalf("expected oldest entry evicted, got %+v", entries)
	}
}

func TestRingFiltersByLevel(t *testing.T) {
	r := New(10)
	logger := zerolog.New(io.Discard).Hook(r)

	logger.Info().Msg("info one")
	logger.Warn().Msg("warn one")
	logger.Info().Msg("info two")

	entries := r.Recent(0, "warn")
	if len(entries) != 1 || entries[0].Message != "warn one" {
		t.Fatalf("expected one warn entry, got %+v", entries)
	}
}
