// Package install implements the ensure-installed pipeline: probe, restore
// from the remote cache, check the local tool cache, download and verify,
// register, and expose the binary on PATH.
package install

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"boringcache.com/setup/internal/config"
	"boringcache.com/setup/internal/core/platform"
	"boringcache.com/setup/internal/infrastructure/env"
	"boringcache.com/setup/internal/infrastructure/process"
	"boringcache.com/setup/internal/infrastructure/release"
	"boringcache.com/setup/internal/infrastructure/remotecache"
	"boringcache.com/setup/internal/infrastructure/toolcache"
	"boringcache.com/setup/internal/logging"
)

// ToolName is the binary this pipeline installs and runs.
const ToolName = "boringcache"

var (
	// ErrToolUnavailable reports the "skip" sentinel with no tool on PATH.
	ErrToolUnavailable = errors.New(`boringcache not found on PATH and version is "skip"`)
	// ErrNoVersion reports a missing version with nothing installed.
	ErrNoVersion = errors.New("no version configured")
	// ErrDownload classifies binary transfer failures.
	ErrDownload = errors.New("binary download failed")
	// ErrChecksumFetch classifies manifest transfer failures, distinct from
	// a manifest that lacks this platform's entry.
	ErrChecksumFetch = errors.New("checksum manifest fetch failed")
)

// Availability is the typed result of the tool probe. Probing never fails:
// any error shape collapses into Unavailable with a reason.
type Availability struct {
	Available bool
	Reason    string
}

// CacheInfo describes where a tool version persists locally and remotely.
// Derived deterministically from (tool, version, platform); the remote key
// embeds os and arch so cross-platform collisions are impossible.
type CacheInfo struct {
	ToolName          string
	NormalizedVersion string
	RemoteCacheKey    string
	RemotePathPattern string
}

// ComputeCacheInfo derives the persistence coordinates for a version.
func ComputeCacheInfo(version string, desc platform.Descriptor, cache *toolcache.Cache) CacheInfo {
	normalized := strings.TrimPrefix(strings.TrimSpace(version), "v")
	return CacheInfo{
		ToolName:          ToolName,
		NormalizedVersion: normalized,
		RemoteCacheKey: strings.ToLower(fmt.Sprintf("%s-%s-%s-%s",
			ToolName, normalized, desc.OS, desc.Arch)),
		RemotePathPattern: cache.VersionGlob(ToolName, normalized),
	}
}

// Actions is the slice of the GitHub Actions command surface the pipeline
// emits: secret masking, PATH exports, and log annotations.
type Actions interface {
	AddMask(p string)
	AddPath(p string)
	Debugf(msg string, args ...any)
	Warningf(msg string, args ...any)
}

// NopActions discards every command; used off-runner and in tests.
type NopActions struct{}

func (NopActions) AddMask(string)          {}
func (NopActions) AddPath(string)          {}
func (NopActions) Debugf(string, ...any)   {}
func (NopActions) Warningf(string, ...any) {}

// Runner executes a command and reports its exit code.
type Runner func(ctx context.Context, name string, args []string, opts process.RunOptions) (int, error)

// Deps are the collaborators the service orchestrates.
type Deps struct {
	Environ    env.Provider
	Logger     zerolog.Logger
	Masker     *logging.Masker
	Actions    Actions
	Runner     Runner
	Downloader *release.Downloader
	LocalCache *toolcache.Cache
	Remote     remotecache.Store
	// Setenv mutates this process's environment for PATH prepends.
	// Defaults to os.Setenv; tests substitute a recorder.
	Setenv func(key, value string) error
}

// Service is the install pipeline.
type Service struct {
	cfg  config.Config
	deps Deps
}

// NewService creates the pipeline with the given configuration and
// collaborators. Nil optional deps get working defaults.
func NewService(cfg config.Config, deps Deps) *Service {
	if deps.Environ == nil {
		deps.Environ = env.NewOSProvider()
	}
	if deps.Masker == nil {
		deps.Masker = logging.NewMasker()
	}
	if deps.Actions == nil {
		deps.Actions = NopActions{}
	}
	if deps.Runner == nil {
		deps.Runner = process.Run
	}
	if deps.Setenv == nil {
		deps.Setenv = os.Setenv
	}
	return &Service{cfg: cfg, deps: deps}
}

// Probe checks whether the tool already answers a --version run. Exec
// failures and non-zero exits both read as unavailable.
func (s *Service) Probe(ctx context.Context) Availability {
	var out bytes.Buffer
	code, err := s.deps.Runner(ctx, s.binaryName(), []string{"--version"},
		process.RunOptions{Stdout: &out, Stderr: &out})
	if err != nil {
		return Availability{Reason: err.Error()}
	}
	if code != 0 {
		return Availability{Reason: fmt.Sprintf("--version exited with code %d", code)}
	}
	if strings.TrimSpace(out.String()) == "" {
		return Availability{Reason: "--version produced no output"}
	}
	return Availability{Available: true}
}

// EnsureInstalled makes the tool invocable, installing it if needed.
func (s *Service) EnsureInstalled(ctx context.Context) error {
	// The token is registered for redaction before any other work so it
	// cannot leak through logs on early-exit paths.
	if s.cfg.Token != "" {
		s.deps.Masker.Register(s.cfg.Token)
		s.deps.Actions.AddMask(s.cfg.Token)
	}

	if avail := s.Probe(ctx); avail.Available {
		s.deps.Logger.Info().Msg("boringcache already installed, skipping setup")
		return nil
	} else if s.cfg.Version == config.VersionSkip {
		return fmt.Errorf("%w", ErrToolUnavailable)
	} else {
		s.deps.Logger.Debug().Str("reason", avail.Reason).Msg("tool not available, installing")
	}

	if strings.TrimSpace(s.cfg.Version) == "" {
		return ErrNoVersion
	}

	desc, err := platform.Resolve(s.deps.Environ)
	if err != nil {
		return err
	}

	tag := ensureVersionTag(s.cfg.Version)
	info := ComputeCacheInfo(tag, desc, s.deps.LocalCache)

	restored := s.restoreRemote(ctx, info)

	if dir := s.deps.LocalCache.Find(ToolName, info.NormalizedVersion, string(desc.Arch)); dir != "" {
		source := "local tool cache"
		if restored {
			source = "remote cache"
		}
		s.deps.Logger.Info().
			Str("version", info.NormalizedVersion).
			Str("path", dir).
			Str("source", source).
			Msg("boringcache ready")
		return s.exposeOnPath(dir)
	}

	dir, err := s.downloadAndRegister(ctx, tag, desc, info)
	if err != nil {
		return err
	}

	if !restored {
		s.saveRemote(ctx, info)
	}

	s.deps.Logger.Info().
		Str("version", info.NormalizedVersion).
		Str("path", dir).
		Str("source", "release download").
		Msg("boringcache ready")
	return s.exposeOnPath(dir)
}

func (s *Service) restoreRemote(ctx context.Context, info CacheInfo) bool {
	if !s.cfg.EnableRemoteCache || s.deps.Remote == nil {
		return false
	}
	hit, err := s.deps.Remote.Restore(ctx, info.RemoteCacheKey, s.deps.LocalCache.ToolDir(ToolName))
	if err != nil {
		// Restore failures are never fatal; the pipeline falls through to
		// a fresh download.
		s.deps.Logger.Debug().Err(err).Str("key", info.RemoteCacheKey).
			Msg("remote cache restore failed, treating as miss")
		s.deps.Actions.Debugf("remote cache restore failed for %s: %s", info.RemoteCacheKey, err)
		return false
	}
	if !hit {
		s.deps.Logger.Debug().Str("key", info.RemoteCacheKey).Msg("remote cache miss")
	}
	return hit
}

func (s *Service) saveRemote(ctx context.Context, info CacheInfo) {
	if !s.cfg.EnableRemoteCache || s.deps.Remote == nil {
		return
	}
	err := s.deps.Remote.Save(ctx, info.RemoteCacheKey, s.deps.LocalCache.ToolDir(ToolName))
	switch {
	case err == nil:
		s.deps.Logger.Debug().Str("key", info.RemoteCacheKey).Msg("saved tool to remote cache")
	case errors.Is(err, remotecache.ErrAlreadyExists):
		// A racing job's save is equally valid.
		s.deps.Logger.Debug().Str("key", info.RemoteCacheKey).
			Msg("remote cache entry already exists, skipping save")
	default:
		s.deps.Logger.Debug().Err(err).Str("key", info.RemoteCacheKey).
			Msg("remote cache save failed")
		s.deps.Actions.Debugf("remote cache save failed for %s: %s", info.RemoteCacheKey, err)
	}
}

func (s *Service) downloadAndRegister(ctx context.Context, tag string, desc platform.Descriptor, info CacheInfo) (string, error) {
	stage, err := os.MkdirTemp("", "boringcache-install-*")
	if err != nil {
		return "", fmt.Errorf("failed to create install staging directory: %w", err)
	}
	defer os.RemoveAll(stage)

	s.deps.Logger.Info().
		Str("version", tag).
		Str("asset", desc.AssetName).
		Msg("downloading boringcache release")

	assetPath, err := s.deps.Downloader.DownloadAsset(ctx, tag, desc.AssetName, stage)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}

	if s.cfg.VerifyChecksum {
		if err := s.verifyAsset(ctx, tag, desc.AssetName, assetPath); err != nil {
			return "", err
		}
		s.deps.Logger.Info().Str("asset", desc.AssetName).Msg("Checksum verified")
	} else {
		s.deps.Logger.Warn().Msg("checksum verification disabled; this is not recommended")
		s.deps.Actions.Warningf("boringcache checksum verification is disabled; this is not recommended")
	}

	binPath := filepath.Join(stage, s.binaryNameFor(desc))
	if err := os.Rename(assetPath, binPath); err != nil {
		return "", fmt.Errorf("failed to stage binary: %w", err)
	}
	if !desc.IsWindows {
		if err := os.Chmod(binPath, 0o755); err != nil {
			return "", fmt.Errorf("failed to mark binary executable: %w", err)
		}
	}

	dir, err := s.deps.LocalCache.Add(stage, ToolName, info.NormalizedVersion, string(desc.Arch))
	if err != nil {
		return "", fmt.Errorf("failed to register tool in cache: %w", err)
	}
	return dir, nil
}

func (s *Service) verifyAsset(ctx context.Context, tag, assetName, assetPath string) error {
	manifest, err := s.deps.Downloader.FetchManifest(ctx, tag)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrChecksumFetch, err)
	}

	f, err := os.Open(assetPath)
	if err != nil {
		return fmt.Errorf("failed to open downloaded binary: %w", err)
	}
	defer f.Close()

	// checksum.ErrNotFound and checksum.ErrMismatch pass through untouched
	// so callers can tell an incomplete release from tampering.
	return manifest.Verify(assetName, f)
}

func (s *Service) exposeOnPath(dir string) error {
	s.deps.Actions.AddPath(dir)

	current := s.deps.Environ.Getenv("PATH")
	joined := dir
	if current != "" {
		joined = dir + string(os.PathListSeparator) + current
	}
	if err := s.deps.Setenv("PATH", joined); err != nil {
		return fmt.Errorf("failed to prepend tool directory to PATH: %w", err)
	}
	return nil
}

func (s *Service) binaryName() string {
	return ToolName
}

func (s *Service) binaryNameFor(desc platform.Descriptor) string {
	if desc.IsWindows {
		return ToolName + ".exe"
	}
	return ToolName
}

func ensureVersionTag(version string) string {
	version = strings.TrimSpace(version)
	if strings.HasPrefix(version, "v") {
		return version
	}
	return "v" + version
}
