// Package cli wires the cobra command surface for the setup helper.
package cli

import (
	"fmt"
	goruntime "runtime"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the base command with version metadata injected at
// build time.
func NewRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "boringcache-setup",
		Short: "Install and run the boringcache CLI in CI",
		Long: `boringcache-setup installs a verified boringcache binary on a CI runner,
caches it across workflow runs, executes it, and manages the local registry
proxy other workflow steps talk to.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}}\nPlatform: %s/%s\n", goruntime.GOOS, goruntime.GOARCH))

	rootCmd.PersistentFlags().String("config", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(newSetupCommand())
	rootCmd.AddCommand(newExecCommand())
	rootCmd.AddCommand(newProxyCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, date))

	return rootCmd
}

func newVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "boringcache-setup %s\nCommit: %s\nBuilt: %s\nPlatform: %s/%s\n",
				version, commit, date, goruntime.GOOS, goruntime.GOARCH)
		},
	}
}
