package usecase

import (
	"context"
	"time"

	"stressclip/internal/domain"
	"stressclip/internal/ports"
)

// sessionState is the controller's tagged union: exactly one of idle,
// recording, or loaded is current, so a capture and a sound can never be
// held at the same time.
type sessionState interface {
	state() domain.SessionState
}

type idleSession struct{}

func (idleSession) state() domain.SessionState { return domain.SessionStateIdle }

type recordingSession struct {
	capture ports.Capture
	elapsed int
	tick    *task

	// previous is restored when the capture cannot be finalized.
	previous *domain.AudioResource
}

func (*recordingSession) state() domain.SessionState { return domain.SessionStateRecording }

type loadedSession struct {
	resource domain.AudioResource
	playback *playbackSession
}

func (s *loadedSession) state() domain.SessionState {
	if s.playback != nil && s.playback.playing {
		return domain.SessionStateLoadedPlaying
	}
	return domain.SessionStateLoadedPaused
}

func (s *loadedSession) view() domain.Playback {
	if s.playback == nil {
		return domain.NewPlayback(0, s.resource.Duration)
	}
	return domain.NewPlayback(s.playback.position, s.playback.duration)
}

// detachPlayback hands ownership of the playback session to the caller.
// Must be called with the controller state lock held.
func (s *loadedSession) detachPlayback() *playbackSession {
	pb := s.playback
	s.playback = nil
	if pb != nil {
		pb.playing = false
	}
	return pb
}

type playbackSession struct {
	sound    ports.Sound
	playing  bool
	position time.Duration
	duration time.Duration
	poller   *task
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func newTimeTicker(interval time.Duration) ticker {
	return timeTicker{t: time.NewTicker(interval)}
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// task is a cancellable background loop owned by one session.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startTask runs fn on every tick until fn returns false or the task is stopped.
func startTask(tk ticker, fn func() bool) *task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C():
				if !fn() {
					return
				}
			}
		}
	}()
	return t
}

// stop cancels the task and waits for its loop to exit. It must not be
// called from inside the task's own callback or with the state lock held.
func (t *task) stop() {
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}
