package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"boringcache.com/setup/internal/application/install"
)

func newSetupCommand() *cobra.Command {
	var (
		version  string
		noCache  bool
		noVerify bool
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Install the boringcache binary and put it on PATH",
		Long: `setup resolves the requested boringcache release for the current runner
platform, restores it from the local or remote cache when possible, downloads
and checksum-verifies it otherwise, and prepends its directory to PATH.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("tool-version") {
				rt.cfg.Version = version
			}
			if noCache {
				rt.cfg.EnableRemoteCache = false
			}
			if noVerify {
				rt.cfg.VerifyChecksum = false
			}

			svc, err := rt.installService()
			if err != nil {
				return err
			}

			if err := svc.EnsureInstalled(cmd.Context()); err != nil {
				if errors.Is(err, install.ErrToolUnavailable) {
					return fmt.Errorf("boringcache is not installed and installation was skipped")
				}
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "tool-version", "", `Release to install (e.g. "v1.7.0", or "skip" to require a preinstalled tool)`)
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable the remote tool cache")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "Skip SHA256 checksum verification")

	return cmd
}
