package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-githubactions"
	"github.com/spf13/cobra"

	"boringcache.com/setup/internal/application/install"
	"boringcache.com/setup/internal/application/proxy"
	"boringcache.com/setup/internal/config"
	"boringcache.com/setup/internal/infrastructure/env"
	"boringcache.com/setup/internal/infrastructure/lockstore"
	"boringcache.com/setup/internal/infrastructure/release"
	"boringcache.com/setup/internal/infrastructure/remotecache"
	"boringcache.com/setup/internal/infrastructure/toolcache"
	"boringcache.com/setup/internal/logging"
)

// runtime holds the shared dependencies a command assembles once per
// invocation.
type runtime struct {
	cfg     config.Config
	environ env.Provider
	logger  zerolog.Logger
	masker  *logging.Masker
	actions install.Actions
}

func newRuntime(cmd *cobra.Command) (*runtime, error) {
	configPath, _ := cmd.Flags().GetString("config")
	debugFlag, _ := cmd.Flags().GetBool("debug")

	environ := env.NewOSProvider()
	cfg, err := config.Load(configPath, environ)
	if err != nil {
		return nil, err
	}
	if debugFlag {
		cfg.Debug = true
	}

	masker := logging.NewMasker()
	logger := logging.New(os.Stderr, masker, cfg.Debug)

	var actions install.Actions = install.NopActions{}
	if environ.Getenv("GITHUB_ACTIONS") == "true" {
		actions = githubactions.New(githubactions.WithWriter(logging.NewWriter(os.Stdout, masker)))
	}

	return &runtime{
		cfg:     cfg,
		environ: environ,
		logger:  logger,
		masker:  masker,
		actions: actions,
	}, nil
}

func (r *runtime) installService() (*install.Service, error) {
	root, err := config.ToolCacheRoot(r.environ)
	if err != nil {
		return nil, err
	}

	var remote remotecache.Store
	if r.cfg.CacheServiceURL != "" {
		remote = remotecache.NewClient(r.cfg.CacheServiceURL, r.cfg.Token)
	}

	return install.NewService(r.cfg, install.Deps{
		Environ:    r.environ,
		Logger:     r.logger,
		Masker:     r.masker,
		Actions:    r.actions,
		Downloader: release.NewDownloader(r.cfg.ReleasesBaseURL),
		LocalCache: toolcache.New(root),
		Remote:     remote,
	}), nil
}

func (r *runtime) proxyManager() *proxy.Manager {
	store := lockstore.NewDiskStore(config.ScratchDir(r.environ))
	return proxy.NewManager(store, r.environ, r.logger)
}

// recordedProxyPID reads the pid file written by a prior start. Unreadable
// or non-positive content yields the reuse sentinel, which Stop treats as
// a no-op.
func (r *runtime) recordedProxyPID() int {
	store := lockstore.NewDiskStore(config.ScratchDir(r.environ))
	raw, err := store.Get(proxy.PIDFileKey)
	if err != nil {
		return proxy.ReusedPID
	}
	return parsePID(raw)
}
