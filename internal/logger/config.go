package logger

import (
	"go.uber.org/zap/zapcore"
)

// Config selects the log encoding and level for the command line tools.
type Config struct {
	Format string
	Level  zapcore.Level
}

// NewConfig returns a new instance of Config with defaults.
func NewConfig() Config {
	return Config{
		Format: "console",
		Level:  zapcore.InfoLevel,
	}
}
