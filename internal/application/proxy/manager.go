// Package proxy manages the local registry-proxy child process: start,
// readiness wait, and stop. There is no stored state machine; every call
// infers state from the PID file, OS-level process liveness, and the HTTP
// health probe, so independent job steps coordinate purely through the
// filesystem.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"boringcache.com/setup/internal/core/tags"
	"boringcache.com/setup/internal/infrastructure/env"
	"boringcache.com/setup/internal/infrastructure/lockstore"
	"boringcache.com/setup/internal/infrastructure/process"
)

const (
	// healthPath is the registry-protocol endpoint a live proxy answers.
	healthPath = "/v2/"

	// DefaultWaitTimeout bounds WaitReady when the caller does not.
	DefaultWaitTimeout = 20 * time.Second

	defaultPollInterval = 500 * time.Millisecond
	defaultStopGrace    = 2 * time.Second
)

// PIDFileKey names the handle-store entry recording the running proxy's
// process id. It is the single source of truth for "is a proxy already
// running" across process boundaries on one machine.
const PIDFileKey = "boringcache-proxy.pid"

// ReusedPID marks a handle to a proxy whose identity is unknown because it
// was reused from a prior invocation. Stop treats it as a no-op.
const ReusedPID = -1

// ErrAuthRequired reports a start attempt with no API token in the
// environment.
var ErrAuthRequired = errors.New("BORINGCACHE_API_TOKEN must be set to start the proxy")

// CrashedError reports a proxy that exited before becoming ready.
type CrashedError struct {
	PID     int
	LogTail string
}

func (e *CrashedError) Error() string {
	msg := fmt.Sprintf("proxy process %d exited before becoming ready", e.PID)
	if e.LogTail != "" {
		msg += "\nproxy log tail:\n" + e.LogTail
	}
	return msg
}

// TimeoutError reports a readiness wait that elapsed.
type TimeoutError struct {
	Port    int
	Timeout time.Duration
	LogTail string
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("proxy on port %d not ready after %s", e.Port, e.Timeout)
	if e.LogTail != "" {
		msg += "\nproxy log tail:\n" + e.LogTail
	}
	return msg
}

// Handle identifies a live or reused proxy.
type Handle struct {
	PID  int
	Port int
}

// Config describes the proxy to start.
type Config struct {
	Port int
	// Tags is the raw comma-separated tag list; normalized on start.
	Tags string
	// Binary is the tool to spawn; defaults to "boringcache" on PATH.
	Binary string
}

// Manager drives the proxy lifecycle.
type Manager struct {
	store   lockstore.Store
	environ env.Provider
	logger  zerolog.Logger

	httpClient *http.Client
	poll       time.Duration
	grace      time.Duration

	// Process hooks, swapped out by tests.
	spawn     func(name string, args, extraEnv []string, logPath string) (int, error)
	alive     func(pid int) bool
	terminate func(pid int) error
	kill      func(pid int) error
}

// NewManager creates a manager coordinating through store.
func NewManager(store lockstore.Store, environ env.Provider, logger zerolog.Logger) *Manager {
	return &Manager{
		store:      store,
		environ:    environ,
		logger:     logger,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		poll:       defaultPollInterval,
		grace:      defaultStopGrace,
		spawn:      process.StartDetached,
		alive:      process.Alive,
		terminate:  process.Terminate,
		kill:       process.Kill,
	}
}

// LogKey returns the handle-store key of the per-port proxy log.
func LogKey(port int) string {
	return fmt.Sprintf("boringcache-proxy-%d.log", port)
}

// Start launches the proxy, or reuses one already answering on the port.
// The returned handle is immediate; readiness is a separate WaitReady.
func (m *Manager) Start(ctx context.Context, cfg Config) (Handle, error) {
	if m.environ.Getenv("BORINGCACHE_API_TOKEN") == "" {
		return Handle{}, ErrAuthRequired
	}

	normalized, err := tags.Normalize(cfg.Tags)
	if err != nil {
		return Handle{}, err
	}

	if m.Healthy(ctx, cfg.Port) {
		return m.reuseRunning(cfg.Port), nil
	}

	binary := cfg.Binary
	if binary == "" {
		binary = "boringcache"
	}
	args := []string{"proxy", "--port", strconv.Itoa(cfg.Port), "--tags", tags.Join(normalized)}
	logPath := m.store.Path(LogKey(cfg.Port))

	m.logger.Info().
		Int("port", cfg.Port).
		Strs("tags", normalized).
		Str("log", logPath).
		Msg("starting registry proxy")

	// A concurrent starter that lost the health-probe race fails here at
	// bind time; that error surfaces rather than being swallowed.
	pid, err := m.spawn(binary, args, nil, logPath)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to start proxy: %w", err)
	}

	if err := m.store.Put(PIDFileKey, strconv.Itoa(pid)); err != nil {
		return Handle{}, fmt.Errorf("proxy started (pid %d) but pid file write failed: %w", pid, err)
	}

	return Handle{PID: pid, Port: cfg.Port}, nil
}

// reuseRunning returns a handle for a proxy that already answers on port.
// The PID file is the only identity source; unreadable or non-positive
// content yields the ReusedPID sentinel.
func (m *Manager) reuseRunning(port int) Handle {
	pid := ReusedPID
	if raw, err := m.store.Get(PIDFileKey); err == nil {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			pid = parsed
		}
	}
	m.logger.Info().Int("port", port).Int("pid", pid).Msg("proxy already running, reusing")
	return Handle{PID: pid, Port: port}
}

// Healthy probes the registry endpoint on port. A 200 and a 401 auth
// challenge both mean the proxy is up.
func (m *Manager) Healthy(ctx context.Context, port int) bool {
	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, healthPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusUnauthorized
}

// WaitReady polls the health endpoint until the proxy answers or the
// timeout elapses. When pid is positive and that process dies first, the
// wait fails immediately instead of burning the whole deadline. The
// liveness check is advisory (pids can be reused); the health probe is
// what actually proves readiness.
func (m *Manager) WaitReady(ctx context.Context, port int, timeout time.Duration, pid int) error {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		if m.Healthy(ctx, port) {
			m.logger.Info().Int("port", port).Msg("proxy ready")
			return nil
		}
		if pid > 0 && !m.alive(pid) {
			return &CrashedError{PID: pid, LogTail: m.logTail(port)}
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Port: port, Timeout: timeout, LogTail: m.logTail(port)}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.poll):
		}
	}
}

// Stop ends the proxy with a graceful-then-forced sequence. A non-positive
// pid is an informational no-op; signal errors never propagate, so Stop
// has no error to return.
func (m *Manager) Stop(pid int) {
	if pid <= 0 {
		m.logger.Info().Int("pid", pid).Msg("no proxy pid recorded, nothing to stop")
		return
	}

	if err := m.terminate(pid); err != nil {
		if process.IsGone(err) {
			m.logger.Info().Int("pid", pid).Msg("proxy already stopped")
			return
		}
		m.logger.Warn().Err(err).Int("pid", pid).Msg("failed to signal proxy")
		return
	}

	time.Sleep(m.grace)

	if !m.alive(pid) {
		m.logger.Info().Int("pid", pid).Msg("proxy stopped")
		return
	}

	if err := m.kill(pid); err != nil && !process.IsGone(err) {
		m.logger.Warn().Err(err).Int("pid", pid).Msg("failed to kill proxy")
		return
	}
	m.logger.Info().Int("pid", pid).Msg("proxy killed after grace period")
}

// logTail returns the last few KB of the per-port log for error messages.
func (m *Manager) logTail(port int) string {
	const tailBytes = 4096

	data, err := os.ReadFile(m.store.Path(LogKey(port)))
	if err != nil || len(data) == 0 {
		return ""
	}
	if len(data) > tailBytes {
		data = data[len(data)-tailBytes:]
	}
	return strings.TrimSpace(string(data))
}
