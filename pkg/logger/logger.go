package logger

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string         `json:"level" envconfig:"LOG_LEVEL"`
	Format      string         `json:"format" envconfig:"LOG_FORMAT"`
	OutputPaths []string       `json:"output_paths" envconfig:"LOG_OUTPUT_PATHS"`
	Rotation    RotationConfig `json:"rotation"`
	Audit       AuditConfig    `json:"audit"`
}

// RotationConfig applies to every file-backed output.
type RotationConfig struct {
	MaxSizeMB  int `json:"max_size_mb"`
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
}

// AuditConfig controls the dedicated audit log stream.
type AuditConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" envconfig:"AUDIT_LOG_PATH"`
}

var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
	auditLogger   *slog.Logger
	closers       []io.Closer
)

// Init configures the global logger instances. Calling it again replaces the
// previous configuration; writers opened by the prior call stay open until
// Sync is invoked.
func Init(cfg Config) error {
	handler, fileClosers, err := buildHandler(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	closers = append(closers, fileClosers...)
	defaultLogger = slog.New(handler)
	auditLogger = defaultLogger

	if cfg.Audit.Enabled {
		if cfg.Audit.Path == "" {
			return errors.New("audit log path cannot be empty when enabled")
		}
		sink, err := newRotatingWriter(cfg.Audit.Path, cfg.Rotation)
		if err != nil {
			return err
		}
		closers = append(closers, sink)
		auditLogger = slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return nil
}

func buildHandler(cfg Config) (slog.Handler, []io.Closer, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: true}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	var fileClosers []io.Closer
	writers := make([]io.Writer, 0, len(outputs))
	for _, out := range outputs {
		switch strings.ToLower(out) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			sink, err := newRotatingWriter(out, cfg.Rotation)
			if err != nil {
				for _, c := range fileClosers {
					_ = c.Close()
				}
				return nil, nil, err
			}
			fileClosers = append(fileClosers, sink)
			writers = append(writers, sink)
		}
	}

	var writer io.Writer
	if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = io.MultiWriter(writers...)
	}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(writer, opts), fileClosers, nil
	}
	return slog.NewJSONHandler(writer, opts), fileClosers, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the structured logger, initialising a stdout logger on first use.
func L() *slog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if l != nil {
		return l
	}
	_ = Init(Config{})
	mu.Lock()
	l = defaultLogger
	mu.Unlock()
	return l
}

// Audit returns the audit logger, falling back to the default logger when the
// audit stream is not configured.
func Audit() *slog.Logger {
	mu.Lock()
	a := auditLogger
	mu.Unlock()
	if a != nil {
		return a
	}
	return L()
}

// With returns a child logger tagged with the component name.
func With(component string) *slog.Logger {
	return L().With(slog.String("component", component))
}

// Sync closes every file-backed writer opened by Init.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	var err error
	for _, closer := range closers {
		err = errors.Join(err, closer.Close())
	}
	closers = nil
	return err
}
