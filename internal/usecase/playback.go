package usecase

import (
	"context"
	"log/slog"

	"stressclip/internal/domain"
)

// Play starts playback of the current resource, or pauses it when it is
// already playing.
func (c *SessionController) Play(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkOpen(); err != nil {
		return err
	}

	var loaded *loadedSession
	switch s := c.current().(type) {
	case *recordingSession:
		return ErrRecordingActive
	case *loadedSession:
		loaded = s
	default:
		c.events.SessionError(domain.ErrorCodeNoAudio, domain.ErrNoAudioSelected.Error())
		return domain.ErrNoAudioSelected
	}

	c.mu.Lock()
	pb := loaded.playback
	playing := pb != nil && pb.playing
	c.mu.Unlock()

	if playing {
		return c.pause(loaded, pb)
	}

	if pb != nil {
		status, err := pb.sound.Status()
		if err == nil && status.Loaded {
			if err := pb.sound.Play(); err != nil {
				return c.failPlayback(loaded, "failed to resume playback", err)
			}
			c.startPlaying(loaded, pb, domain.SessionReasonPlaybackResumed)
			return nil
		}
		c.stopPlayback(loaded)
	}

	sound, err := c.engine.Load(ctx, loaded.resource.URI)
	if err != nil {
		return c.failPlayback(loaded, "failed to load audio file", err)
	}
	if err := sound.Play(); err != nil {
		if unloadErr := sound.Unload(); unloadErr != nil {
			c.logger.Warn("unload after failed play", slog.String("error", unloadErr.Error()))
		}
		return c.failPlayback(loaded, "failed to play audio", err)
	}

	pb = &playbackSession{sound: sound, duration: loaded.resource.Duration}
	c.mu.Lock()
	loaded.playback = pb
	c.mu.Unlock()

	c.metrics.PlaybackStarted()
	c.startPlaying(loaded, pb, domain.SessionReasonPlaybackStarted)
	return nil
}

// Stop tears down any playback and rewinds the position. It never fails.
func (c *SessionController) Stop(_ context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	loaded, ok := c.current().(*loadedSession)
	if !ok {
		return nil
	}
	if c.stopPlayback(loaded) {
		c.events.PlaybackProgress(domain.NewPlayback(0, loaded.resource.Duration))
		c.emitState(domain.SessionReasonPlaybackStopped)
	}
	return nil
}

func (c *SessionController) startPlaying(loaded *loadedSession, pb *playbackSession, reason domain.SessionStateReason) {
	c.mu.Lock()
	pb.playing = true
	pb.poller = startTask(c.newTicker(c.cfg.ProgressInterval), func() bool {
		return c.pollPlayback(loaded, pb)
	})
	c.mu.Unlock()

	c.events.SessionStateChanged(domain.SessionStateLoadedPlaying, reason)
}

func (c *SessionController) pause(loaded *loadedSession, pb *playbackSession) error {
	c.mu.Lock()
	poller := pb.poller
	pb.poller = nil
	c.mu.Unlock()

	poller.stop()

	c.mu.Lock()
	attached := c.session == sessionState(loaded) && loaded.playback == pb
	c.mu.Unlock()
	if !attached {
		// Finished while the poller was being stopped.
		return nil
	}

	if err := pb.sound.Pause(); err != nil {
		return c.failPlayback(loaded, "failed to pause playback", err)
	}

	c.mu.Lock()
	pb.playing = false
	c.mu.Unlock()

	c.events.SessionStateChanged(domain.SessionStateLoadedPaused, domain.SessionReasonPlaybackPaused)
	return nil
}

// stopPlayback detaches and releases the playback session of loaded, if any.
func (c *SessionController) stopPlayback(loaded *loadedSession) bool {
	c.mu.Lock()
	pb := loaded.detachPlayback()
	c.mu.Unlock()

	if pb == nil {
		return false
	}
	c.releasePlayback(pb)
	return true
}

func (c *SessionController) releasePlayback(pb *playbackSession) {
	if pb == nil {
		return
	}
	pb.poller.stop()
	c.releaseSound(pb)
}

// releaseSound stops and unloads the sound; failures are logged only.
func (c *SessionController) releaseSound(pb *playbackSession) {
	if err := pb.sound.Stop(); err != nil {
		c.logger.Debug("stop sound", slog.String("error", err.Error()))
	}
	if err := pb.sound.Unload(); err != nil {
		c.logger.Warn("unload sound", slog.String("error", err.Error()))
	}
}

func (c *SessionController) failPlayback(loaded *loadedSession, detail string, err error) error {
	c.stopPlayback(loaded)
	failure := c.fail(domain.ErrorCodePlayback, detail, err)
	c.events.PlaybackProgress(domain.NewPlayback(0, loaded.resource.Duration))
	c.emitState(domain.SessionReasonPlaybackFailed)
	return failure
}

func (c *SessionController) pollPlayback(loaded *loadedSession, pb *playbackSession) bool {
	status, err := pb.sound.Status()
	if err != nil {
		status = domain.PlaybackStatus{Error: err.Error()}
	}
	return c.applyPlaybackStatus(loaded, pb, status)
}

// applyPlaybackStatus folds a media engine status into the session. It runs
// on the poller and returns false once the playback session is gone.
func (c *SessionController) applyPlaybackStatus(loaded *loadedSession, pb *playbackSession, status domain.PlaybackStatus) bool {
	c.mu.Lock()
	if c.session != sessionState(loaded) || loaded.playback != pb {
		c.mu.Unlock()
		return false
	}

	switch {
	case status.DidJustFinish:
		loaded.detachPlayback()
		c.mu.Unlock()

		c.releaseSound(pb)
		c.events.PlaybackProgress(domain.NewPlayback(0, loaded.resource.Duration))
		c.events.SessionStateChanged(domain.SessionStateLoadedPaused, domain.SessionReasonPlaybackFinished)
		return false

	case status.Error != "":
		loaded.detachPlayback()
		c.mu.Unlock()

		c.releaseSound(pb)
		c.logger.Warn("playback error", slog.String("error", status.Error))
		c.events.SessionError(domain.ErrorCodePlayback, status.Error)
		c.events.PlaybackProgress(domain.NewPlayback(0, loaded.resource.Duration))
		c.events.SessionStateChanged(domain.SessionStateLoadedPaused, domain.SessionReasonPlaybackFailed)
		return false

	case status.Playing:
		pb.position = status.Position
		if status.Duration > 0 {
			pb.duration = status.Duration
		}
		view := domain.NewPlayback(pb.position, pb.duration)
		c.mu.Unlock()

		c.events.PlaybackProgress(view)
		return true
	}

	c.mu.Unlock()
	return true
}
