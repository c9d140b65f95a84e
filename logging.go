package main

import (
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// newLogger builds the process logger. Components receive it as a
// log.Interface so tests can swap in a memory handler.
func newLogger(cfg *Config) log.Interface {
	logger := &log.Logger{
		Handler: text.New(os.Stderr),
		Level:   log.InfoLevel,
	}
	if cfg.LogFormat == "json" {
		logger.Handler = json.New(os.Stderr)
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.Level = lvl
	}
	return logger
}
