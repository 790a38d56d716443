// Package logger wraps logrus with the level/format/output conventions
// shared across the fabric's components.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config controls how a logger is constructed.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, text
	Output     io.Writer
	FilePrefix string
}

// New builds a *logrus.Logger from the given config, defaulting to
// info/text/stderr when fields are left empty.
func New(cfg Config) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if strings.ToLower(cfg.Format) == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output != nil {
		log.SetOutput(cfg.Output)
	} else {
		log.SetOutput(os.Stderr)
	}

	return log
}

// NewProduction returns a JSON logger at info level, the default for
// production environments.
func NewProduction() *logrus.Logger {
	return New(Config{Level: "info", Format: "json"})
}
