package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stressclip/internal/audio"
	"stressclip/internal/domain"
)

func TestSessionControllerPlaysRecordingWithUnknownDuration(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	player := filepath.Join(dir, "ffplay.sh")
	if err := os.WriteFile(player, []byte("#!/usr/bin/env bash\nsleep 5\n"), 0o700); err != nil {
		t.Fatalf("failed to write player: %v", err)
	}
	clip := filepath.Join(dir, "capture.m4a")
	if err := os.WriteFile(clip, []byte("audio"), 0o600); err != nil {
		t.Fatalf("failed to write clip: %v", err)
	}

	probeErr := errors.New("moov atom not found")
	h := newHarnessWithEngine(audio.NewFFPlayEngine(player, &fakeProber{err: probeErr}, nil))
	h.prober.err = probeErr
	h.recorder.path = clip
	defer func() { _ = h.controller.Close() }()

	if err := h.controller.StartRecording(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	tick := h.tickers.get(0)
	for i := 0; i < 3; i++ {
		tick.ch <- time.Now()
	}
	resource, err := h.controller.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if got := domain.FormatClock(resource.Duration); got != "00:03" {
		t.Fatalf("expected elapsed fallback duration, got %s", got)
	}

	if err := h.controller.Play(context.Background()); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	status := h.controller.Status()
	if status.State != domain.SessionStateLoadedPlaying {
		t.Fatalf("expected loaded_playing, got %s", status.State)
	}
	if status.Playback.Total != "00:03" {
		t.Fatalf("expected total to keep the elapsed fallback, got %s", status.Playback.Total)
	}
	for _, e := range h.events.snapshotErrors() {
		if e.code == domain.ErrorCodePlayback {
			t.Fatalf("unexpected playback error: %+v", e)
		}
	}

	if err := h.controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop playback failed: %v", err)
	}
}
