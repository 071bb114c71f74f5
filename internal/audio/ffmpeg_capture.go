package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"stressclip/internal/ports"
)

const recordingExt = ".m4a"

// FFMPEGRecorder records the microphone into AAC .m4a files using ffmpeg.
type FFMPEGRecorder struct {
	command string
	dir     string
}

func NewFFMPEGRecorder(command string, dir string) *FFMPEGRecorder {
	if command == "" {
		command = "ffmpeg"
	}
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "stressclip")
	}
	return &FFMPEGRecorder{command: command, dir: dir}
}

func (r *FFMPEGRecorder) Start(ctx context.Context, cfg ports.RecordConfig) (ports.Capture, error) {
	cfg = withRecordDefaults(cfg)

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recordings dir: %w", err)
	}
	path := filepath.Join(r.dir, "stressclip-"+uuid.NewString()+recordingExt)

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-y",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-c:a", "aac",
		"-b:a", "128k",
		path,
	}

	cmd := exec.CommandContext(ctx, r.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		_ = os.Remove(path)
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, stringsTrimSpaceSafe(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegCapture{
		path:    path,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type ffmpegCapture struct {
	path   string
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

// Stop asks ffmpeg to finalize the container and returns the file path.
func (c *ffmpegCapture) Stop() (string, error) {
	if err := c.halt(); err != nil {
		return "", err
	}
	info, err := os.Stat(c.path)
	if err != nil {
		return "", fmt.Errorf("recording file missing: %w", err)
	}
	if info.Size() == 0 {
		return "", errors.New("recording file is empty")
	}
	return c.path, nil
}

// Discard stops ffmpeg and removes the partial recording.
func (c *ffmpegCapture) Discard() error {
	haltErr := c.halt()
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return haltErr
}

func (c *ffmpegCapture) halt() error {
	c.stopOnce.Do(func() {
		if c.process != nil {
			_ = c.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-c.waitErr:
			if ok {
				c.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if c.process != nil {
				_ = c.process.Kill()
			}
			err, ok := <-c.waitErr
			if ok {
				c.stopErr = normalizeStopErr(err)
			}
		}

		if c.stopErr != nil && c.stderr != nil && c.stderr.Len() > 0 {
			c.stopErr = fmt.Errorf("%w: %s", c.stopErr, stringsTrimSpaceSafe(c.stderr.String()))
		}
	})

	return c.stopErr
}

// DevicePermission treats a short successful read from the input device as
// granted microphone access.
type DevicePermission struct {
	command string
	cfg     ports.RecordConfig
	timeout time.Duration
}

func NewDevicePermission(command string, cfg ports.RecordConfig) *DevicePermission {
	if command == "" {
		command = "ffmpeg"
	}
	return &DevicePermission{command: command, cfg: withRecordDefaults(cfg), timeout: 3 * time.Second}
}

func (p *DevicePermission) RequestMicrophone(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.command,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", p.cfg.InputFormat,
		"-i", p.cfg.InputDevice,
		"-t", "0.1",
		"-f", "null",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return false, fmt.Errorf("microphone probe timed out: %w", ctx.Err())
		}
		return false, nil
	}
	return false, fmt.Errorf("failed to probe microphone: %w", err)
}

func withRecordDefaults(cfg ports.RecordConfig) ports.RecordConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
