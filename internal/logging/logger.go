// Package logging wires zerolog console output for CI logs, with a masking
// layer that redacts registered secrets before any byte reaches the sink.
package logging

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const redactedPlaceholder = "***"

// Masker replaces registered secret values in anything written through it.
// Registration must happen before the secret can appear in output, so
// callers register tokens first thing, even on early-exit paths.
type Masker struct {
	mu      sync.RWMutex
	secrets [][]byte
}

// NewMasker creates an empty masker.
func NewMasker() *Masker { return &Masker{} }

// Register adds a secret value to redact. Empty values are ignored.
func (m *Masker) Register(secret string) {
	if secret == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets = append(m.secrets, []byte(secret))
}

// Redact returns p with every registered secret replaced.
func (m *Masker) Redact(p []byte) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, secret := range m.secrets {
		p = bytes.ReplaceAll(p, secret, []byte(redactedPlaceholder))
	}
	return p
}

// maskingWriter applies a Masker to everything written through it.
type maskingWriter struct {
	out    io.Writer
	masker *Masker
}

func (w *maskingWriter) Write(p []byte) (int, error) {
	if _, err := w.out.Write(w.masker.Redact(p)); err != nil {
		return 0, err
	}
	// Report the original length so callers never see a short write caused
	// by redaction shrinking the payload.
	return len(p), nil
}

// NewWriter wraps out so registered secrets never appear in it.
func NewWriter(out io.Writer, masker *Masker) io.Writer {
	return &maskingWriter{out: out, masker: masker}
}

// New builds the console logger used across the module. Debug mode lowers
// the level floor; everything flows through the masker.
func New(out io.Writer, masker *Masker, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	console := zerolog.ConsoleWriter{
		Out:        NewWriter(out, masker),
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}
	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}
