// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"cageside/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	writerMu sync.RWMutex
	writer   io.Writer = os.Stdout
)

// Init installs the global logger. The returned func releases the log file.
func Init(cfg config.LogConfig) (func(), error) {
	level := zerolog.InfoLevel
	if v := strings.TrimSpace(cfg.Level); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	closeFn := func() {}
	if cfg.File != "" {
		fw, err := newRotatingWriter(cfg.File, cfg.MaxMB)
		if err != nil {
			return closeFn, err
		}
		out = io.MultiWriter(out, fw)
		closeFn = func() { _ = fw.Close() }
	}

	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.SampleEvery > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(cfg.SampleEvery)})
	}
	log.Logger = logger

	writerMu.Lock()
	writer = out
	writerMu.Unlock()
	return closeFn, nil
}

// Writer returns the sink configured by Init for handlers that log through
// slog, such as the HTTP request logger.
func Writer() io.Writer {
	writerMu.RLock()
	defer writerMu.RUnlock()
	return writer
}

// ParseLevel maps a level name onto zerolog, defaulting to info.
func ParseLevel(v string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(v)))
	if err != nil || v == "" {
		return zerolog.InfoLevel
	}
	return parsed
}
