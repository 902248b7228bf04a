package logging

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every production log line
const ServiceName = "headunit-resumption"

// Logger wraps zap.Logger with a level that can be changed at runtime.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
}

func defaultConfig(development bool) Config {
	cfg := Config{Level: "info", Development: development, OutputPaths: []string{"stdout"}}
	if development {
		cfg.Level = "debug"
	}
	return cfg
}

// New creates a new logger with the provided configuration.
func New(cfg Config) (*Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.EncoderConfig = productionEncoder()
	zapCfg.InitialFields = map[string]any{"service": ServiceName}
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = level
	zapCfg.OutputPaths = cfg.OutputPaths

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger, level: level}, nil
}

// productionEncoder keeps field names stable for the log shipper on the ECU
func productionEncoder() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.NameKey = "component"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	return enc
}

// NewNop creates a logger that discards everything, used by tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), level: zap.NewAtomicLevel()}
}

// FromConfig builds a logger from the level and mode carried by the service
// configuration, falling back to the mode default when the level is invalid.
func FromConfig(level string, development bool) *Logger {
	cfg := defaultConfig(development)
	if level != "" {
		cfg.Level = level
	}
	logger, err := New(cfg)
	if err == nil {
		return logger
	}
	logger, err = New(defaultConfig(development))
	if err != nil {
		return NewNop()
	}
	logger.Warn("Ignoring invalid log level", zap.String("level", level))
	return logger
}

// Component returns a child logger named after a backend component.
func (l *Logger) Component(name string) *zap.Logger {
	return l.Logger.Named(name)
}

// Level returns the current minimum level.
func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

// SetLevel changes the minimum level of this logger and all its children.
func (l *Logger) SetLevel(level string) error {
	return l.level.UnmarshalText([]byte(level))
}

// LevelHandler serves GET and PUT of the level as JSON ({"level":"debug"}).
func (l *Logger) LevelHandler() http.Handler {
	return l.level
}
