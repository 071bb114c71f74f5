package domain

import (
	"errors"
	"fmt"
	"time"
)

// SessionState models the audio session lifecycle.
type SessionState string

const (
	SessionStateIdle          SessionState = "idle"
	SessionStateRecording     SessionState = "recording"
	SessionStateLoadedPaused  SessionState = "loaded_paused"
	SessionStateLoadedPlaying SessionState = "loaded_playing"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady            SessionStateReason = "ready"
	SessionReasonRecordingStarted SessionStateReason = "recording_started"
	SessionReasonRecordingSaved   SessionStateReason = "recording_saved"
	SessionReasonRecordingFailed  SessionStateReason = "recording_failed"
	SessionReasonFileSelected     SessionStateReason = "file_selected"
	SessionReasonPlaybackStarted  SessionStateReason = "playback_started"
	SessionReasonPlaybackPaused   SessionStateReason = "playback_paused"
	SessionReasonPlaybackResumed  SessionStateReason = "playback_resumed"
	SessionReasonPlaybackFinished SessionStateReason = "playback_finished"
	SessionReasonPlaybackStopped  SessionStateReason = "playback_stopped"
	SessionReasonPlaybackFailed   SessionStateReason = "playback_failed"
	SessionReasonClosed           SessionStateReason = "closed"
)

// ErrorCode identifies recoverable errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup         ErrorCode = "startup"
	ErrorCodePermission      ErrorCode = "permission_denied"
	ErrorCodeRecording       ErrorCode = "recording"
	ErrorCodeFileSelection   ErrorCode = "file_selection"
	ErrorCodeDurationProbe   ErrorCode = "duration_probe"
	ErrorCodePlayback        ErrorCode = "playback"
	ErrorCodeNoAudio         ErrorCode = "no_audio"
	ErrorCodeNetwork         ErrorCode = "network"
	ErrorCodeInvalidResponse ErrorCode = "invalid_response"
	ErrorCodeServer          ErrorCode = "server"
	ErrorCodeUpload          ErrorCode = "upload"
)

// ErrNoAudioSelected is returned by operations that need a loaded clip.
var ErrNoAudioSelected = &Error{Code: ErrorCodeNoAudio, Detail: "no audio selected"}

// Error carries an ErrorCode alongside the underlying failure.
type Error struct {
	Code   ErrorCode
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	case e.Detail != "":
		return e.Detail
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a code and a human readable detail.
func NewError(code ErrorCode, detail string, err error) *Error {
	return &Error{Code: code, Detail: detail, Err: err}
}

// CodeOf returns the ErrorCode carried by err, or "" when there is none.
func CodeOf(err error) ErrorCode {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// AudioResource is the currently selected or recorded clip.
type AudioResource struct {
	URI      string        `json:"uri"`
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// PlaybackStatus is a media engine status snapshot.
type PlaybackStatus struct {
	Loaded        bool
	Playing       bool
	Position      time.Duration
	Duration      time.Duration
	DidJustFinish bool
	Error         string
}

// Playback is the UI view of the current playback position.
type Playback struct {
	Position time.Duration `json:"position"`
	Duration time.Duration `json:"duration"`
	Progress float64       `json:"progress"`
	Timer    string        `json:"timer"`
	Total    string        `json:"total"`
}

// NewPlayback derives progress and clock strings from a position.
func NewPlayback(position time.Duration, duration time.Duration) Playback {
	progress := 0.0
	if duration > 0 {
		progress = float64(position) / float64(duration)
		if progress > 1 {
			progress = 1
		}
	}
	return Playback{
		Position: position,
		Duration: duration,
		Progress: progress,
		Timer:    FormatClock(position),
		Total:    FormatClock(duration),
	}
}

// UploadOutcome is the result of the most recent analysis.
type UploadOutcome struct {
	Prediction string    `json:"prediction,omitempty"`
	Error      string    `json:"error,omitempty"`
	Code       ErrorCode `json:"code,omitempty"`
}

// Empty reports whether the outcome has been cleared.
func (o UploadOutcome) Empty() bool {
	return o.Prediction == "" && o.Error == ""
}

// PickResult is what the file picker yields.
type PickResult struct {
	Cancelled bool
	URI       string
	Name      string
}

// Status summarizes the current runtime status.
type Status struct {
	State            SessionState   `json:"state"`
	Resource         *AudioResource `json:"resource,omitempty"`
	RecordingElapsed int            `json:"recordingElapsed"`
	Playback         Playback       `json:"playback"`
	Loading          bool           `json:"loading"`
	Outcome          UploadOutcome  `json:"outcome"`
}

// FormatClock renders d as mm:ss, truncating partial seconds.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
