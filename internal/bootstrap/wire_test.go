package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"stressclip/internal/domain"
)

func TestBuildSuccess(t *testing.T) {
	t.Setenv("STRESSCLIP_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("STRESSCLIP_API_HOST", "http://10.0.0.5:5000/")

	services, err := Build(noopEventSink{}, noopPicker{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil || services.Analyzer == nil || services.Metrics == nil || services.Logger == nil {
		t.Fatalf("expected all services, got %+v", services)
	}
	if services.Analyzer.Endpoint() != "http://10.0.0.5:5000/predict" {
		t.Fatalf("unexpected endpoint: %q", services.Analyzer.Endpoint())
	}
	if got := services.Controller.Status().State; got != domain.SessionStateIdle {
		t.Fatalf("expected idle controller, got %s", got)
	}
}

func TestBuildFailsOnUnreadableEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "env-as-dir")
	if err := os.Mkdir(envFile, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	t.Setenv("STRESSCLIP_ENV_FILE", envFile)

	if _, err := Build(noopEventSink{}, noopPicker{}); err == nil {
		t.Fatalf("expected build error for unreadable env file")
	}
}

func TestNewLoggerLevels(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for level, want := range cases {
		logger := NewLogger(level)
		if !logger.Enabled(context.Background(), want) {
			t.Fatalf("%s: expected %s enabled", level, want)
		}
		if want > slog.LevelDebug && logger.Enabled(context.Background(), want-4) {
			t.Fatalf("%s: expected levels below %s disabled", level, want)
		}
	}
}

type noopEventSink struct{}

func (noopEventSink) SessionStateChanged(_ domain.SessionState, _ domain.SessionStateReason) {}
func (noopEventSink) RecordingElapsed(_ int)                                                 {}
func (noopEventSink) PlaybackProgress(_ domain.Playback)                                     {}
func (noopEventSink) AnalysisStarted()                                                       {}
func (noopEventSink) AnalysisAdvisory(_ string)                                              {}
func (noopEventSink) AnalysisFinished(_ domain.UploadOutcome)                                {}
func (noopEventSink) SessionError(_ domain.ErrorCode, _ string)                              {}

type noopPicker struct{}

func (noopPicker) Pick(_ context.Context) (domain.PickResult, error) {
	return domain.PickResult{Cancelled: true}, nil
}
