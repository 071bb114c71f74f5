package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

// Config stores runtime configuration for the desktop client.
type Config struct {
	EnvFile string
	API     APIConfig
	Audio   AudioConfig
	Session SessionConfig
	Log     LogConfig
	Metrics MetricsConfig
}

type APIConfig struct {
	BaseURL     string
	SoftTimeout time.Duration
	Timeout     time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	PlayerCommand   string
	ProbeCommand    string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	RecordingsDir   string
}

type SessionConfig struct {
	TickInterval     time.Duration
	ProgressInterval time.Duration
}

type LogConfig struct {
	Level string
}

type MetricsConfig struct {
	Addr string
}

// Load resolves configuration from environment variables, an optional .env
// file and sensible defaults. Process environment wins over the file.
func Load() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv("STRESSCLIP_ENV_FILE"))
	if envFile == "" {
		envFile = defaultEnvFile
	}
	fileValues, err := readEnvFile(envFile)
	if err != nil {
		return Config{}, err
	}
	env := source{file: fileValues}

	cfg := Config{
		EnvFile: envFile,
		API: APIConfig{
			BaseURL:     strings.TrimRight(env.orDefault("STRESSCLIP_API_HOST", "http://localhost:5000"), "/"),
			SoftTimeout: env.millis("STRESSCLIP_UPLOAD_SOFT_TIMEOUT_MS", 10000),
			Timeout:     env.millis("STRESSCLIP_UPLOAD_TIMEOUT_MS", 120000),
		},
		Audio: AudioConfig{
			RecorderCommand: env.orDefault("STRESSCLIP_FFMPEG_COMMAND", "ffmpeg"),
			PlayerCommand:   env.orDefault("STRESSCLIP_FFPLAY_COMMAND", "ffplay"),
			ProbeCommand:    env.orDefault("STRESSCLIP_FFPROBE_COMMAND", "ffprobe"),
			InputFormat:     env.orDefault("STRESSCLIP_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     env.orDefault("STRESSCLIP_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      env.orDefaultInt("STRESSCLIP_SAMPLE_RATE", 44100),
			Channels:        env.orDefaultInt("STRESSCLIP_CHANNELS", 1),
			RecordingsDir:   env.orDefault("STRESSCLIP_RECORDINGS_DIR", defaultRecordingsDir()),
		},
		Session: SessionConfig{
			TickInterval:     env.millis("STRESSCLIP_TICK_MS", 1000),
			ProgressInterval: env.millis("STRESSCLIP_PROGRESS_MS", 100),
		},
		Log: LogConfig{
			Level: strings.ToLower(env.orDefault("STRESSCLIP_LOG_LEVEL", "info")),
		},
		Metrics: MetricsConfig{
			Addr: env.orDefault("STRESSCLIP_METRICS_ADDR", ""),
		},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 44100
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = 2 * time.Minute
	}
	if cfg.Session.TickInterval <= 0 {
		cfg.Session.TickInterval = time.Second
	}
	if cfg.Session.ProgressInterval <= 0 {
		cfg.Session.ProgressInterval = 100 * time.Millisecond
	}

	return cfg, nil
}

func readEnvFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return values, nil
}

func defaultRecordingsDir() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "stressclip", "recordings")
}

type source struct {
	file map[string]string
}

func (s source) get(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(s.file[key])
}

func (s source) orDefault(key string, fallback string) string {
	value := s.get(key)
	if value == "" {
		return fallback
	}
	return value
}

func (s source) orDefaultInt(key string, fallback int) int {
	value := s.get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// millis reads a non-negative millisecond value. Zero is kept so a soft
// timeout can be switched off.
func (s source) millis(key string, fallback int) time.Duration {
	parsed := s.orDefaultInt(key, fallback)
	if parsed < 0 {
		parsed = fallback
	}
	return time.Duration(parsed) * time.Millisecond
}
