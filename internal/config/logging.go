package config

import (
	"io"
	"log/slog"
	"os"
)

// SetupLogging points the default slog logger at the log file in the data
// dir. The terminal is left to the progress surface.
func (c *Config) SetupLogging() (io.Closer, error) {
	f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: c.LogLevel})
	slog.SetDefault(slog.New(handler))
	return f, nil
}
