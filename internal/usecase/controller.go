package usecase

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"stressclip/internal/domain"
	"stressclip/internal/ports"
)

var (
	ErrNoActiveRecording = errors.New("no active recording session")
	ErrRecordingActive   = errors.New("recording in progress")
	ErrAnalysisInFlight  = errors.New("analysis already in progress")
	ErrClosed            = errors.New("session controller is closed")
)

// Config controls recording, playback, and upload behavior.
type Config struct {
	Record           ports.RecordConfig
	TickInterval     time.Duration
	ProgressInterval time.Duration
	SoftTimeout      time.Duration
}

// Collaborators are the platform services the controller drives.
type Collaborators struct {
	Permission ports.Permission
	Recorder   ports.Recorder
	Engine     ports.MediaEngine
	Prober     ports.DurationProber
	Picker     ports.FilePicker
	Analyzer   ports.Analyzer
	Events     ports.EventSink
	Metrics    ports.Metrics
	Logger     *slog.Logger
}

// SessionController owns the single recording or playback resource and
// coordinates it with uploads.
type SessionController struct {
	permission ports.Permission
	recorder   ports.Recorder
	engine     ports.MediaEngine
	prober     ports.DurationProber
	picker     ports.FilePicker
	analyzer   ports.Analyzer
	events     ports.EventSink
	metrics    ports.Metrics
	logger     *slog.Logger
	cfg        Config

	now       func() time.Time
	newTicker func(time.Duration) ticker

	// opMu serializes user operations; mu guards the fields below it and
	// is the only lock background tasks take.
	opMu sync.Mutex

	mu         sync.Mutex
	session    sessionState
	closed     bool
	loading    bool
	outcome    domain.UploadOutcome
	outcomeGen uint64
	lastStamp  string
	stampSeq   int
}

func NewSessionController(deps Collaborators, cfg Config) *SessionController {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 100 * time.Millisecond
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SessionController{
		permission: deps.Permission,
		recorder:   deps.Recorder,
		engine:     deps.Engine,
		prober:     deps.Prober,
		picker:     deps.Picker,
		analyzer:   deps.Analyzer,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     deps.Logger.With(slog.String("component", "session")),
		cfg:        cfg,
		now:        time.Now,
		newTicker:  newTimeTicker,
		session:    idleSession{},
	}
}

// Status returns a consistent snapshot of the session.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.Status{
		State:   c.session.state(),
		Loading: c.loading,
		Outcome: c.outcome,
	}
	switch s := c.session.(type) {
	case *recordingSession:
		status.RecordingElapsed = s.elapsed
		if s.previous != nil {
			resource := *s.previous
			status.Resource = &resource
		}
	case *loadedSession:
		resource := s.resource
		status.Resource = &resource
		status.Playback = s.view()
	}
	return status
}

// Close releases any capture or sound and stops all background tasks.
// It is safe to call from any state and more than once.
func (c *SessionController) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	previous := c.session
	c.session = idleSession{}
	var pb *playbackSession
	if loaded, ok := previous.(*loadedSession); ok {
		pb = loaded.detachPlayback()
	}
	c.mu.Unlock()

	if rec, ok := previous.(*recordingSession); ok {
		rec.tick.stop()
		if err := rec.capture.Discard(); err != nil {
			c.logger.Warn("discard capture on close failed", slog.String("error", err.Error()))
		}
	}
	c.releasePlayback(pb)

	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonClosed)
	return nil
}

func (c *SessionController) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

func (c *SessionController) current() sessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// transition installs next as the current session and notifies the UI.
func (c *SessionController) transition(next sessionState, reason domain.SessionStateReason) {
	c.mu.Lock()
	c.session = next
	state := next.state()
	c.mu.Unlock()

	c.events.SessionStateChanged(state, reason)
}

func (c *SessionController) emitState(reason domain.SessionStateReason) {
	c.mu.Lock()
	state := c.session.state()
	c.mu.Unlock()

	c.events.SessionStateChanged(state, reason)
}

// resting returns the session to fall back to after a failed transition.
func resting(previous *domain.AudioResource) sessionState {
	if previous == nil {
		return idleSession{}
	}
	return &loadedSession{resource: *previous}
}

func (c *SessionController) clearOutcome() {
	c.mu.Lock()
	cleared := !c.outcome.Empty()
	c.outcome = domain.UploadOutcome{}
	c.outcomeGen++
	c.mu.Unlock()

	if cleared {
		c.events.AnalysisFinished(domain.UploadOutcome{})
	}
}

func (c *SessionController) fail(code domain.ErrorCode, detail string, err error) error {
	coded := domain.NewError(code, detail, err)
	c.logger.Warn(detail, slog.String("code", string(code)), slog.Any("error", err))
	c.events.SessionError(code, coded.Error())
	return coded
}

type nopMetrics struct{}

func (nopMetrics) RecordingFinished(bool, time.Duration)          {}
func (nopMetrics) PlaybackStarted()                               {}
func (nopMetrics) UploadFinished(domain.ErrorCode, time.Duration) {}

var _ ports.Metrics = nopMetrics{}
