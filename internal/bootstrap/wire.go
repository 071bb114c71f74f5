package bootstrap

import (
	"log/slog"
	"os"

	"stressclip/internal/audio"
	"stressclip/internal/config"
	"stressclip/internal/metrics"
	"stressclip/internal/ports"
	"stressclip/internal/providers/stressapi"
	"stressclip/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Analyzer   *stressapi.Client
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Config     config.Config
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink, picker ports.FilePicker) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger := NewLogger(cfg.Log.Level)
	appMetrics := metrics.New()

	record := ports.RecordConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	}
	prober := audio.NewFFProbe(cfg.Audio.ProbeCommand)
	analyzer := stressapi.NewClient(stressapi.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
	}, logger)

	controller := usecase.NewSessionController(
		usecase.Collaborators{
			Permission: audio.NewDevicePermission(cfg.Audio.RecorderCommand, record),
			Recorder:   audio.NewFFMPEGRecorder(cfg.Audio.RecorderCommand, cfg.Audio.RecordingsDir),
			Engine:     audio.NewFFPlayEngine(cfg.Audio.PlayerCommand, prober, logger),
			Prober:     prober,
			Picker:     picker,
			Analyzer:   analyzer,
			Events:     eventSink,
			Metrics:    appMetrics,
			Logger:     logger,
		},
		usecase.Config{
			Record:           record,
			TickInterval:     cfg.Session.TickInterval,
			ProgressInterval: cfg.Session.ProgressInterval,
			SoftTimeout:      cfg.API.SoftTimeout,
		},
	)

	logger.Info("configuration loaded",
		slog.String("endpoint", analyzer.Endpoint()),
		slog.Duration("soft_timeout", cfg.API.SoftTimeout),
		slog.String("input_format", cfg.Audio.InputFormat),
		slog.String("input_device", cfg.Audio.InputDevice),
		slog.String("recordings_dir", cfg.Audio.RecordingsDir),
		slog.String("log_level", cfg.Log.Level),
	)

	return Services{
		Controller: controller,
		Analyzer:   analyzer,
		Metrics:    appMetrics,
		Logger:     logger,
		Config:     cfg,
	}, nil
}

// NewLogger builds the process logger for the configured level. Unknown
// levels fall back to info.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts)).With(slog.String("service", "stressclip"))
}
