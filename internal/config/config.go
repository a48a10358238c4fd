// Package config defines the environment-driven configuration surface of the
// relay process.
package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config is unmarshalled from the environment by go-env. Every field has a
// default so the process starts with no environment at all.
type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string `env:"SERVER_ADDR,default=:8080"`
	// StoragePath is the BadgerDB directory holding the message log.
	StoragePath string `env:"STORAGE_PATH,default=./data/messages"`
	// AllowedOrigins is a comma-separated origin allow-list for WebSocket
	// upgrades. The default "*" accepts any origin, which mirrors how this
	// service has always been deployed but is not a safe posture; narrow it
	// when the set of clients is known.
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=*"`
	// MaxMessageSize caps a single inbound WebSocket frame, in bytes.
	MaxMessageSize int64 `env:"MAX_MESSAGE_SIZE,default=65536"`
	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `env:"LOG_LEVEL,default=INFO"`
	// ShutdownTimeout bounds the graceful shutdown of both the HTTP server
	// and the hub.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Origins splits the configured allow-list into individual origins.
func (c Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// SlogLevel maps the configured level name onto a slog level, defaulting to
// Info for anything unrecognized.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToUpper(strings.TrimSpace(c.LogLevel)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
