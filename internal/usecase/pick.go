package usecase

import (
	"context"
	"log/slog"
	"strings"

	"stressclip/internal/domain"
)

const defaultPickedName = "Selected audio"

// PickFile replaces the current resource with a user-selected file. It
// returns nil without error when the user cancels the picker. A file whose
// duration cannot be read is rejected when another resource is loaded, and
// otherwise selected with Duration 0 alongside a duration_probe error event.
func (c *SessionController) PickFile(ctx context.Context) (*domain.AudioResource, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	if _, ok := c.current().(*recordingSession); ok {
		if _, err := c.finishRecording(ctx); err != nil {
			c.logger.Warn("stop recording before pick", slog.String("error", err.Error()))
		}
	}

	result, err := c.picker.Pick(ctx)
	if err != nil {
		return nil, c.fail(domain.ErrorCodeFileSelection, "failed to pick audio file", err)
	}
	if result.Cancelled || strings.TrimSpace(result.URI) == "" {
		c.logger.Debug("file selection cancelled")
		return nil, nil
	}

	loaded, hasPrevious := c.current().(*loadedSession)

	// An unprobeable file never replaces a loaded resource. With nothing
	// loaded it is selected with an unknown duration.
	duration, probeErr := c.prober.Probe(ctx, result.URI)
	if probeErr != nil {
		if hasPrevious {
			return nil, c.fail(domain.ErrorCodeDurationProbe, "could not determine audio duration", probeErr)
		}
		duration = 0
	}

	name := strings.TrimSpace(result.Name)
	if name == "" {
		name = defaultPickedName
	}
	resource := domain.AudioResource{URI: result.URI, Name: name, Duration: duration}

	if hasPrevious {
		c.stopPlayback(loaded)
	}
	c.clearOutcome()

	c.transition(&loadedSession{resource: resource}, domain.SessionReasonFileSelected)
	c.logger.Info("file selected",
		slog.String("name", resource.Name),
		slog.Duration("duration", resource.Duration),
	)
	c.events.PlaybackProgress(domain.NewPlayback(0, resource.Duration))
	if probeErr != nil {
		_ = c.fail(domain.ErrorCodeDurationProbe, "could not determine audio duration", probeErr)
	}
	return &resource, nil
}
