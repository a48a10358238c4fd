package config

import (
	"log/slog"
	"testing"

	env "github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func Test_Defaults_Apply_Without_Environment(t *testing.T) {
	req := require.New(t)

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	req.NoError(err)

	req.Equal(":8080", cfg.Addr)
	req.Equal("*", cfg.AllowedOrigins)
	req.NotZero(cfg.ShutdownTimeout)
	req.Positive(cfg.MaxMessageSize)
}

func Test_Origins_Splits_And_Trims(t *testing.T) {
	cfg := Config{AllowedOrigins: "http://a.example, https://b.example ,*"}
	require.Equal(t, []string{"http://a.example", "https://b.example", "*"}, cfg.Origins())
}

func Test_Slog_Level_Parsing(t *testing.T) {
	req := require.New(t)
	req.Equal(slog.LevelDebug, Config{LogLevel: "debug"}.SlogLevel())
	req.Equal(slog.LevelWarn, Config{LogLevel: " WARN "}.SlogLevel())
	req.Equal(slog.LevelError, Config{LogLevel: "ERROR"}.SlogLevel())
	req.Equal(slog.LevelInfo, Config{LogLevel: "whatever"}.SlogLevel())
}
