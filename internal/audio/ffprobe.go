package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFProbe reads container durations with ffprobe.
type FFProbe struct {
	command string
}

func NewFFProbe(command string) *FFProbe {
	if command == "" {
		command = "ffprobe"
	}
	return &FFProbe{command: command}
}

func (p *FFProbe) Probe(ctx context.Context, uri string) (time.Duration, error) {
	path, err := LocalPath(uri)
	if err != nil {
		return 0, err
	}
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("audio file unavailable: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.command,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w: %s", err, stringsTrimSpaceSafe(stderr.String()))
	}
	return parseSeconds(string(out))
}

func parseSeconds(raw string) (time.Duration, error) {
	value := strings.TrimSpace(raw)
	if value == "" || value == "N/A" {
		return 0, errors.New("duration not reported")
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// LocalPath accepts plain paths and file:// URIs.
func LocalPath(uri string) (string, error) {
	if !strings.HasPrefix(uri, "file://") {
		return uri, nil
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid file uri %q: %w", uri, err)
	}
	return parsed.Path, nil
}
