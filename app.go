package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"stressclip/internal/bootstrap"
	"stressclip/internal/config"
	"stressclip/internal/domain"
	"stressclip/internal/metrics"
	"stressclip/internal/usecase"
)

const (
	eventSession  = "stressclip:session"
	eventElapsed  = "stressclip:elapsed"
	eventProgress = "stressclip:progress"
	eventAnalysis = "stressclip:analysis"
	eventAdvisory = "stressclip:advisory"
	eventResult   = "stressclip:result"
	eventError    = "stressclip:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller    *usecase.SessionController
	endpoint      string
	cfg           config.Config
	logger        *slog.Logger
	metricsServer *metrics.Server
	bootErr       error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, &wailsFilePicker{})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.endpoint = services.Analyzer.Endpoint()
	a.logger = services.Logger

	if addr := a.cfg.Metrics.Addr; addr != "" {
		server := metrics.NewServer(addr, services.Metrics, a.logger)
		if err := server.Start(ctx); err != nil {
			a.logger.Warn("metrics server disabled", slog.String("addr", addr), slog.String("error", err.Error()))
		} else {
			a.metricsServer = server
		}
	}

	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
}

func (a *App) shutdown(_ context.Context) {
	if a.controller != nil {
		a.controller.Close()
	}
	if a.metricsServer != nil {
		_ = a.metricsServer.Shutdown()
	}
}

// StartRecording begins a new microphone recording.
func (a *App) StartRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.StartRecording(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// StopRecording finalizes the recording and loads it for playback.
func (a *App) StopRecording() (domain.AudioResource, error) {
	if err := a.requireReady(); err != nil {
		return domain.AudioResource{}, err
	}
	resource, err := a.controller.StopRecording(a.ctx)
	if err != nil {
		if errors.Is(err, usecase.ErrNoActiveRecording) {
			return domain.AudioResource{}, nil
		}
		return domain.AudioResource{}, err
	}
	return resource, nil
}

// PickFile opens the file dialog. A nil resource means the user cancelled.
func (a *App) PickFile() (*domain.AudioResource, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.controller.PickFile(a.ctx)
}

// Play toggles playback of the current resource.
func (a *App) Play() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Play(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// Stop ends playback and rewinds.
func (a *App) Stop() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Stop(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// Analyze uploads the current resource for stress prediction.
func (a *App) Analyze() (domain.UploadOutcome, error) {
	if err := a.requireReady(); err != nil {
		return domain.UploadOutcome{}, err
	}
	return a.controller.Analyze(a.ctx)
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		status := domain.Status{State: domain.SessionStateIdle}
		if a.bootErr != nil {
			status.Outcome = domain.UploadOutcome{Error: a.bootErr.Error(), Code: domain.ErrorCodeStartup}
		}
		return status
	}
	return a.controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"endpoint":         a.endpoint,
		"softTimeout":      a.cfg.API.SoftTimeout.String(),
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"recordingsDir":    a.cfg.Audio.RecordingsDir,
		"metricsAddr":      a.cfg.Metrics.Addr,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// RecordingElapsed emits the whole seconds recorded so far.
func (a *App) RecordingElapsed(seconds int) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventElapsed, map[string]any{
		"seconds": seconds,
		"timer":   domain.FormatClock(time.Duration(seconds) * time.Second),
	})
}

// PlaybackProgress emits the playback position.
func (a *App) PlaybackProgress(playback domain.Playback) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventProgress, playback)
}

// AnalysisStarted tells the UI an upload is in flight.
func (a *App) AnalysisStarted() {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventAnalysis, map[string]bool{"loading": true})
}

// AnalysisAdvisory surfaces the slow-upload notice without cancelling it.
func (a *App) AnalysisAdvisory(message string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventAdvisory, map[string]string{"message": message})
	a.alert(runtime.InfoDialog, "Processing", message)
}

// AnalysisFinished emits the upload outcome; an empty outcome clears it.
func (a *App) AnalysisFinished(outcome domain.UploadOutcome) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventAnalysis, map[string]bool{"loading": false})
	runtime.EventsEmit(a.ctx, eventResult, outcome)
}

// SessionError emits backend errors to the UI and raises an alert.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	message := errorMessage(code, detail)
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"title":   errorTitle(code),
		"message": message,
		"detail":  detail,
	})
	a.alert(runtime.ErrorDialog, errorTitle(code), message)
}

// alert shows a native dialog without blocking the caller.
func (a *App) alert(kind runtime.DialogType, title string, message string) {
	ctx := a.ctx
	go func() {
		_, err := runtime.MessageDialog(ctx, runtime.MessageDialogOptions{
			Type:    kind,
			Title:   title,
			Message: message,
		})
		if err != nil && a.logger != nil {
			a.logger.Debug("message dialog failed", slog.String("error", err.Error()))
		}
	}()
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonRecordingStarted:
		return "Recording..."
	case domain.SessionReasonRecordingSaved:
		return "Recording saved"
	case domain.SessionReasonRecordingFailed:
		return "Recording failed"
	case domain.SessionReasonFileSelected:
		return "Audio file selected"
	case domain.SessionReasonPlaybackStarted:
		return "Playing"
	case domain.SessionReasonPlaybackPaused:
		return "Paused"
	case domain.SessionReasonPlaybackResumed:
		return "Playing"
	case domain.SessionReasonPlaybackFinished:
		return "Playback finished"
	case domain.SessionReasonPlaybackStopped:
		return "Playback stopped"
	case domain.SessionReasonPlaybackFailed:
		return "Playback failed"
	case domain.SessionReasonClosed:
		return "Session closed"
	default:
		return ""
	}
}

func errorTitle(code domain.ErrorCode) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup Error"
	case domain.ErrorCodePermission:
		return "Permission Denied"
	case domain.ErrorCodeRecording:
		return "Recording Error"
	case domain.ErrorCodeFileSelection:
		return "File Selection Error"
	case domain.ErrorCodeDurationProbe:
		return "File Error"
	case domain.ErrorCodePlayback:
		return "Playback Error"
	case domain.ErrorCodeNoAudio:
		return "No Audio Selected"
	case domain.ErrorCodeNetwork:
		return "Connection Error"
	case domain.ErrorCodeInvalidResponse, domain.ErrorCodeServer, domain.ErrorCodeUpload:
		return "Upload Error"
	default:
		return "Error"
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermission:
		return "Please allow microphone access to record audio."
	case domain.ErrorCodeRecording:
		return "Failed to record audio. Please try again."
	case domain.ErrorCodeFileSelection:
		return "Failed to pick audio file. Please try again with a different file format."
	case domain.ErrorCodeDurationProbe:
		return "Could not determine audio duration. The file may be corrupted."
	case domain.ErrorCodePlayback:
		return "Failed to play audio. The file might be corrupted or in an unsupported format."
	case domain.ErrorCodeNoAudio:
		return "Please upload or record an audio file first"
	case domain.ErrorCodeNetwork:
		return "Cannot connect to the server. Please check your internet connection and server status."
	case domain.ErrorCodeInvalidResponse, domain.ErrorCodeServer:
		return "Failed to analyze audio: " + detail
	case domain.ErrorCodeUpload:
		if strings.HasPrefix(detail, "Failed to analyze audio") {
			return detail
		}
		return "Failed to analyze audio: " + detail
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

var audioFilters = []runtime.FileFilter{
	{DisplayName: "Audio (*.wav;*.m4a;*.aac;*.mp3)", Pattern: "*.wav;*.m4a;*.aac;*.mp3"},
	{DisplayName: "All files", Pattern: "*"},
}

type wailsFilePicker struct{}

func (p *wailsFilePicker) Pick(ctx context.Context) (domain.PickResult, error) {
	path, err := runtime.OpenFileDialog(ctx, runtime.OpenDialogOptions{
		Title:   "Select audio",
		Filters: audioFilters,
	})
	if err != nil {
		return domain.PickResult{}, err
	}
	return pickResult(path), nil
}

func pickResult(path string) domain.PickResult {
	if strings.TrimSpace(path) == "" {
		return domain.PickResult{Cancelled: true}
	}
	return domain.PickResult{URI: path, Name: filepath.Base(path)}
}
