package ports

import (
	"context"
	"time"

	"stressclip/internal/domain"
)

// RecordConfig describes how the microphone should be captured.
type RecordConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// Permission grants or denies microphone access.
type Permission interface {
	RequestMicrophone(ctx context.Context) (bool, error)
}

// Capture is an in-progress recording owned by a single session.
type Capture interface {
	// Stop finalizes the capture and returns the recorded file location.
	Stop() (string, error)
	// Discard stops the capture and removes whatever was written.
	Discard() error
}

// Recorder starts microphone captures.
type Recorder interface {
	Start(ctx context.Context, cfg RecordConfig) (Capture, error)
}

// Sound is a loaded, playable instance of an audio file.
type Sound interface {
	Play() error
	Pause() error
	Stop() error
	Unload() error
	Status() (domain.PlaybackStatus, error)
}

// MediaEngine loads files into playable sounds.
type MediaEngine interface {
	Load(ctx context.Context, uri string) (Sound, error)
}

// DurationProber reads the duration of an audio file without playing it.
type DurationProber interface {
	Probe(ctx context.Context, uri string) (time.Duration, error)
}

// FilePicker asks the user for an audio file.
type FilePicker interface {
	Pick(ctx context.Context) (domain.PickResult, error)
}

// Analyzer uploads a clip and returns the predicted label.
type Analyzer interface {
	Analyze(ctx context.Context, resource *domain.AudioResource) (string, error)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	RecordingElapsed(seconds int)
	PlaybackProgress(playback domain.Playback)
	AnalysisStarted()
	AnalysisAdvisory(message string)
	AnalysisFinished(outcome domain.UploadOutcome)
	SessionError(code domain.ErrorCode, detail string)
}

// Metrics records session activity counters.
type Metrics interface {
	RecordingFinished(ok bool, elapsed time.Duration)
	PlaybackStarted()
	UploadFinished(code domain.ErrorCode, latency time.Duration)
}
