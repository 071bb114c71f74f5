package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"stressclip/internal/domain"
	"stressclip/internal/ports"
)

// ErrSoundUnloaded is returned by a sound after Unload.
var ErrSoundUnloaded = errors.New("sound is unloaded")

// FFPlayEngine plays files through a headless ffplay process. ffplay has no
// pause control, so pausing stops the process and resuming seeks back to
// the remembered position.
type FFPlayEngine struct {
	command string
	prober  ports.DurationProber
	logger  *slog.Logger
	now     func() time.Time
}

func NewFFPlayEngine(command string, prober ports.DurationProber, logger *slog.Logger) *FFPlayEngine {
	if command == "" {
		command = "ffplay"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FFPlayEngine{
		command: command,
		prober:  prober,
		logger:  logger.With(slog.String("component", "ffplay")),
		now:     time.Now,
	}
}

func (e *FFPlayEngine) Load(ctx context.Context, uri string) (ports.Sound, error) {
	path, err := LocalPath(uri)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file unavailable: %w", err)
	}

	// A sound without a known duration still plays; position is then
	// unbounded and progress stays at zero.
	var duration time.Duration
	if e.prober != nil {
		duration, err = e.prober.Probe(ctx, path)
		if err != nil {
			e.logger.Warn("duration unknown, playing without it",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			duration = 0
		}
	}

	return &ffplaySound{
		command:  e.command,
		path:     path,
		duration: duration,
		now:      e.now,
	}, nil
}

type ffplaySound struct {
	command  string
	path     string
	duration time.Duration
	now      func() time.Time

	mu        sync.Mutex
	gen       int
	process   *os.Process
	done      chan struct{}
	playing   bool
	offset    time.Duration
	startedAt time.Time
	finished  bool
	failure   string
	unloaded  bool
}

func (s *ffplaySound) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unloaded {
		return ErrSoundUnloaded
	}
	if s.playing {
		return nil
	}
	if s.duration > 0 && s.offset >= s.duration {
		s.offset = 0
	}

	args := []string{
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "error",
	}
	if s.offset > 0 {
		args = append(args, "-ss", strconv.FormatFloat(s.offset.Seconds(), 'f', 3, 64))
	}
	args = append(args, s.path)

	cmd := exec.Command(s.command, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffplay: %w", err)
	}

	s.gen++
	gen := s.gen
	done := make(chan struct{})
	s.process = cmd.Process
	s.done = done
	s.playing = true
	s.finished = false
	s.failure = ""
	s.startedAt = s.now()

	go func() {
		err := cmd.Wait()
		s.exited(gen, err, stderr)
		close(done)
	}()
	return nil
}

// exited records a natural end of playback; exits caused by halt are
// ignored because halt bumps gen first.
func (s *ffplaySound) exited(gen int, err error, stderr *bytes.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}
	s.playing = false
	s.process = nil
	if err != nil {
		s.failure = fmt.Sprintf("ffplay exited: %v: %s", err, stringsTrimSpaceSafe(stderr.String()))
		s.offset = 0
		return
	}
	s.finished = true
	s.offset = s.duration
}

func (s *ffplaySound) Pause() error {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return nil
	}
	s.offset = s.positionLocked()
	s.mu.Unlock()
	s.halt()
	return nil
}

func (s *ffplaySound) Stop() error {
	s.halt()
	s.mu.Lock()
	s.offset = 0
	s.finished = false
	s.mu.Unlock()
	return nil
}

func (s *ffplaySound) Unload() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	s.unloaded = true
	s.mu.Unlock()
	return nil
}

func (s *ffplaySound) Status() (domain.PlaybackStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := domain.PlaybackStatus{
		Loaded:        !s.unloaded,
		Playing:       s.playing,
		Position:      s.positionLocked(),
		Duration:      s.duration,
		DidJustFinish: s.finished,
		Error:         s.failure,
	}
	s.finished = false
	return status, nil
}

func (s *ffplaySound) halt() {
	s.mu.Lock()
	process := s.process
	done := s.done
	s.gen++
	s.process = nil
	s.playing = false
	s.mu.Unlock()

	if process == nil {
		return
	}
	_ = process.Kill()
	if done != nil {
		<-done
	}
}

func (s *ffplaySound) positionLocked() time.Duration {
	position := s.offset
	if s.playing {
		position += s.now().Sub(s.startedAt)
	}
	if s.duration > 0 && position > s.duration {
		position = s.duration
	}
	if position < 0 {
		position = 0
	}
	return position
}
