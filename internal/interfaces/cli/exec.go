package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func newExecCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exec -- <args>...",
		Short: "Run boringcache with the given arguments",
		Long: `exec runs the installed boringcache binary, streaming its output and
exiting with the tool's exit code. Run "setup" first to install the tool.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			svc, err := rt.installService()
			if err != nil {
				return err
			}

			code, err := svc.Run(cmd.Context(), args)
			if err != nil {
				return err
			}
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}
}
