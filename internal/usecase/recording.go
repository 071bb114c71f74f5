package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"stressclip/internal/domain"
)

const defaultRecordingExt = ".m4a"

var stampReplacer = strings.NewReplacer(":", "-", ".", "-")

// StartRecording begins a microphone capture, stopping any playback first.
func (c *SessionController) StartRecording(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkOpen(); err != nil {
		return err
	}
	if _, ok := c.current().(*recordingSession); ok {
		return ErrRecordingActive
	}

	granted, err := c.permission.RequestMicrophone(ctx)
	if err != nil || !granted {
		return c.fail(domain.ErrorCodePermission, "microphone access was not granted", err)
	}

	var previous *domain.AudioResource
	if loaded, ok := c.current().(*loadedSession); ok {
		c.stopPlayback(loaded)
		resource := loaded.resource
		previous = &resource
	}
	c.clearOutcome()

	capture, err := c.recorder.Start(ctx, c.cfg.Record)
	if err != nil {
		c.metrics.RecordingFinished(false, 0)
		failure := c.fail(domain.ErrorCodeRecording, "failed to start recording", err)
		c.transition(resting(previous), domain.SessionReasonRecordingFailed)
		return failure
	}

	rec := &recordingSession{
		capture:  capture,
		previous: previous,
	}

	c.mu.Lock()
	c.session = rec
	rec.tick = startTask(c.newTicker(c.cfg.TickInterval), func() bool {
		return c.tickRecording(rec)
	})
	c.mu.Unlock()

	c.logger.Info("recording started")
	c.events.RecordingElapsed(0)
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	return nil
}

// StopRecording finalizes the capture into the current audio resource.
func (c *SessionController) StopRecording(ctx context.Context) (domain.AudioResource, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkOpen(); err != nil {
		return domain.AudioResource{}, err
	}
	return c.finishRecording(ctx)
}

// finishRecording must be called with opMu held.
func (c *SessionController) finishRecording(ctx context.Context) (domain.AudioResource, error) {
	rec, ok := c.current().(*recordingSession)
	if !ok {
		return domain.AudioResource{}, ErrNoActiveRecording
	}

	rec.tick.stop()
	c.mu.Lock()
	elapsed := time.Duration(rec.elapsed) * time.Second
	c.mu.Unlock()

	uri, err := rec.capture.Stop()
	if err != nil {
		c.metrics.RecordingFinished(false, elapsed)
		failure := c.fail(domain.ErrorCodeRecording, "failed to save recording", err)
		c.transition(resting(rec.previous), domain.SessionReasonRecordingFailed)
		return domain.AudioResource{}, failure
	}

	resource := domain.AudioResource{
		URI:  uri,
		Name: c.recordingName(filepath.Ext(uri)),
	}
	duration, err := c.prober.Probe(ctx, uri)
	if err != nil {
		c.logger.Warn("duration probe failed, using elapsed recording time",
			slog.String("uri", uri),
			slog.String("error", err.Error()),
		)
		duration = elapsed
	}
	resource.Duration = duration

	c.transition(&loadedSession{resource: resource}, domain.SessionReasonRecordingSaved)
	c.metrics.RecordingFinished(true, elapsed)
	c.logger.Info("recording saved",
		slog.String("name", resource.Name),
		slog.Duration("duration", resource.Duration),
	)
	c.events.PlaybackProgress(domain.NewPlayback(0, resource.Duration))
	return resource, nil
}

func (c *SessionController) tickRecording(rec *recordingSession) bool {
	c.mu.Lock()
	if c.session != sessionState(rec) {
		c.mu.Unlock()
		return false
	}
	rec.elapsed++
	elapsed := rec.elapsed
	c.mu.Unlock()

	c.events.RecordingElapsed(elapsed)
	return true
}

// recordingName derives a timestamp name that is unique per call, even when
// the clock has not advanced between two recordings.
func (c *SessionController) recordingName(ext string) string {
	if ext == "" {
		ext = defaultRecordingExt
	}
	stamp := stampReplacer.Replace(c.now().UTC().Format("2006-01-02T15:04:05.000Z"))

	c.mu.Lock()
	defer c.mu.Unlock()
	if stamp == c.lastStamp {
		c.stampSeq++
		return fmt.Sprintf("recording-%s-%d%s", stamp, c.stampSeq, ext)
	}
	c.lastStamp = stamp
	c.stampSeq = 0
	return "recording-" + stamp + ext
}
