package usecase

import (
	"context"
	"log/slog"
	"time"

	"stressclip/internal/domain"
)

const advisoryMessage = "Analysis is taking longer than expected. Please wait..."

// Analyze uploads the current resource and records the prediction or error
// as the session's outcome. The soft timeout only raises an advisory; the
// request keeps running until it settles or ctx is done.
func (c *SessionController) Analyze(ctx context.Context) (domain.UploadOutcome, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.UploadOutcome{}, ErrClosed
	}
	resource := c.resourceLocked()
	if resource == nil {
		c.mu.Unlock()
		c.events.SessionError(domain.ErrorCodeNoAudio, domain.ErrNoAudioSelected.Error())
		return domain.UploadOutcome{}, domain.ErrNoAudioSelected
	}
	if c.loading {
		c.mu.Unlock()
		return domain.UploadOutcome{}, ErrAnalysisInFlight
	}
	c.loading = true
	c.outcome = domain.UploadOutcome{}
	c.outcomeGen++
	gen := c.outcomeGen
	c.mu.Unlock()

	c.events.AnalysisStarted()
	c.logger.Info("analysis started", slog.String("name", resource.Name))

	started := c.now()
	advisory := c.startAdvisory(ctx)
	label, err := c.analyzer.Analyze(ctx, resource)
	advisory.stop()
	latency := c.now().Sub(started)

	outcome := domain.UploadOutcome{Prediction: label}
	if err != nil {
		code := domain.CodeOf(err)
		if code == "" {
			code = domain.ErrorCodeUpload
		}
		outcome = domain.UploadOutcome{Error: err.Error(), Code: code}
	}
	c.metrics.UploadFinished(outcome.Code, latency)

	c.mu.Lock()
	c.loading = false
	stale := gen != c.outcomeGen
	if !stale {
		c.outcome = outcome
	}
	current := c.outcome
	c.mu.Unlock()

	if stale {
		c.logger.Info("discarding stale analysis result", slog.Duration("latency", latency))
		c.events.AnalysisFinished(current)
		return outcome, err
	}

	if err != nil {
		c.logger.Warn("analysis failed",
			slog.String("code", string(outcome.Code)),
			slog.String("error", err.Error()),
		)
		c.events.SessionError(outcome.Code, err.Error())
	} else {
		c.logger.Info("analysis finished",
			slog.String("prediction", label),
			slog.Duration("latency", latency),
		)
	}
	c.events.AnalysisFinished(outcome)
	return outcome, err
}

// resourceLocked returns a copy of the resource an upload would use. While
// recording, the clip loaded before the recording started is still current.
func (c *SessionController) resourceLocked() *domain.AudioResource {
	switch s := c.session.(type) {
	case *loadedSession:
		resource := s.resource
		return &resource
	case *recordingSession:
		if s.previous != nil {
			resource := *s.previous
			return &resource
		}
	}
	return nil
}

// startAdvisory races a one-shot timer against the request; stopping the
// returned task before the timer fires suppresses the advisory.
func (c *SessionController) startAdvisory(ctx context.Context) *task {
	if c.cfg.SoftTimeout <= 0 {
		return nil
	}
	advisoryCtx, cancel := context.WithCancel(ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		timer := time.NewTimer(c.cfg.SoftTimeout)
		defer timer.Stop()
		select {
		case <-advisoryCtx.Done():
		case <-timer.C:
			c.logger.Info("analysis exceeded soft timeout", slog.Duration("soft_timeout", c.cfg.SoftTimeout))
			c.events.AnalysisAdvisory(advisoryMessage)
		}
	}()
	return t
}
