package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"stressclip/internal/domain"
)

func TestAnalyzeWithoutResourceMakesNoCall(t *testing.T) {
	t.Parallel()

	h := newHarness()
	_, err := h.controller.Analyze(context.Background())
	if !errors.Is(err, domain.ErrNoAudioSelected) {
		t.Fatalf("expected ErrNoAudioSelected, got %v", err)
	}
	if h.analyzer.callCount() != 0 {
		t.Fatalf("analyzer must not be called without a resource")
	}
	if h.controller.Status().Loading {
		t.Fatalf("loading must stay false")
	}
}

func TestAnalyzeSetsPrediction(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.loadPicked(t, "/music/song.wav", "song.wav")
	h.analyzer.label = "Stressed"

	outcome, err := h.controller.Analyze(context.Background())
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if outcome.Prediction != "Stressed" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	status := h.controller.Status()
	if status.Loading {
		t.Fatalf("expected loading to be cleared")
	}
	if status.Outcome.Prediction != "Stressed" {
		t.Fatalf("unexpected stored outcome: %+v", status.Outcome)
	}
	if h.analyzer.resources[0].URI != "/music/song.wav" {
		t.Fatalf("unexpected uploaded resource: %+v", h.analyzer.resources[0])
	}
}

func TestAnalyzeErrorKeepsResource(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.loadPicked(t, "/music/song.wav", "song.wav")
	h.analyzer.err = domain.NewError(domain.ErrorCodeServer, "Server error: bad format", nil)

	outcome, err := h.controller.Analyze(context.Background())
	if err == nil {
		t.Fatalf("expected analyze error")
	}
	if outcome.Code != domain.ErrorCodeServer || outcome.Error != "Server error: bad format" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	status := h.controller.Status()
	if status.Loading {
		t.Fatalf("expected loading to be cleared on error")
	}
	if status.Resource == nil || status.Resource.Name != "song.wav" {
		t.Fatalf("upload errors must not clear the resource, got %+v", status.Resource)
	}

	h.analyzer.err = nil
	h.analyzer.label = "neutral"
	if _, err := h.controller.Analyze(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := h.controller.Status().Outcome.Prediction; got != "neutral" {
		t.Fatalf("expected retry outcome, got %q", got)
	}
}

func TestAnalyzeUncodedErrorDefaultsToUpload(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.loadPicked(t, "/music/song.wav", "song.wav")
	h.analyzer.err = errors.New("boom")

	outcome, _ := h.controller.Analyze(context.Background())
	if outcome.Code != domain.ErrorCodeUpload {
		t.Fatalf("expected upload code, got %+v", outcome)
	}
}

func TestAnalyzeSoftTimeoutAdvisoryDoesNotCancel(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.controller.cfg.SoftTimeout = 10 * time.Millisecond
	h.loadPicked(t, "/music/song.wav", "song.wav")
	h.analyzer.label = "negative"
	h.analyzer.delay = 80 * time.Millisecond

	outcome, err := h.controller.Analyze(context.Background())
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if outcome.Prediction != "negative" {
		t.Fatalf("request should complete after the advisory, got %+v", outcome)
	}
	if advisories := h.events.snapshotAdvisories(); len(advisories) != 1 {
		t.Fatalf("expected one advisory, got %v", advisories)
	}
}

func TestAnalyzeFastRequestSkipsAdvisory(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.controller.cfg.SoftTimeout = time.Second
	h.loadPicked(t, "/music/song.wav", "song.wav")
	h.analyzer.label = "positive"

	if _, err := h.controller.Analyze(context.Background()); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if advisories := h.events.snapshotAdvisories(); len(advisories) != 0 {
		t.Fatalf("expected no advisory, got %v", advisories)
	}
}

func TestAnalyzeRejectsOverlap(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.loadPicked(t, "/music/song.wav", "song.wav")
	h.analyzer.label = "neutral"
	h.analyzer.delay = 100 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		_, err := h.controller.Analyze(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for !h.controller.Status().Loading {
		if time.Now().After(deadline) {
			t.Fatalf("analysis never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := h.controller.Analyze(context.Background()); !errors.Is(err, ErrAnalysisInFlight) {
		t.Fatalf("expected ErrAnalysisInFlight, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("first analyze failed: %v", err)
	}
}

func TestAnalyzeStaleResultIsDiscarded(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.loadPicked(t, "/music/song.wav", "song.wav")
	h.analyzer.label = "negative"
	h.analyzer.delay = 100 * time.Millisecond

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.controller.Analyze(context.Background())
	}()

	deadline := time.Now().Add(time.Second)
	for !h.controller.Status().Loading {
		if time.Now().After(deadline) {
			t.Fatalf("analysis never started")
		}
		time.Sleep(time.Millisecond)
	}
	h.loadPicked(t, "/music/other.wav", "other.wav")
	<-done

	status := h.controller.Status()
	if !status.Outcome.Empty() {
		t.Fatalf("expected stale outcome to be dropped, got %+v", status.Outcome)
	}
	if status.Loading {
		t.Fatalf("expected loading to be cleared")
	}
}
