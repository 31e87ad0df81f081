package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"boringcache.com/setup/internal/application/proxy"
)

// defaultProxyPort matches the registry port the proxy binds when none is
// given.
const defaultProxyPort = 5000

func newProxyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Manage the local registry proxy",
	}

	cmd.AddCommand(newProxyStartCommand())
	cmd.AddCommand(newProxyWaitCommand())
	cmd.AddCommand(newProxyStopCommand())

	return cmd
}

func newProxyStartCommand() *cobra.Command {
	var (
		port     int
		tagList  string
		wait     bool
		timeout  time.Duration
		binaryFl string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the registry proxy, reusing one already answering",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			mgr := rt.proxyManager()

			handle, err := mgr.Start(cmd.Context(), proxy.Config{
				Port:   port,
				Tags:   tagList,
				Binary: binaryFl,
			})
			if err != nil {
				return err
			}

			if wait {
				if err := mgr.WaitReady(cmd.Context(), handle.Port, timeout, handle.PID); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "proxy pid=%d port=%d\n", handle.PID, handle.Port)
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", defaultProxyPort, "Port the proxy listens on")
	cmd.Flags().StringVar(&tagList, "tags", "", "Comma-separated cache tags (required)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the proxy answers its health endpoint")
	cmd.Flags().DurationVar(&timeout, "timeout", proxy.DefaultWaitTimeout, "Readiness wait timeout (with --wait)")
	cmd.Flags().StringVar(&binaryFl, "binary", "", "Proxy binary to spawn (defaults to boringcache on PATH)")

	return cmd
}

func newProxyWaitCommand() *cobra.Command {
	var (
		port    int
		pid     int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait until the proxy answers its health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("pid") {
				pid = rt.recordedProxyPID()
			}
			return rt.proxyManager().WaitReady(cmd.Context(), port, timeout, pid)
		},
	}

	cmd.Flags().IntVar(&port, "port", defaultProxyPort, "Port the proxy listens on")
	cmd.Flags().IntVar(&pid, "pid", 0, "Proxy pid to watch for early exit (defaults to the recorded pid file)")
	cmd.Flags().DurationVar(&timeout, "timeout", proxy.DefaultWaitTimeout, "Readiness wait timeout")

	return cmd
}

func newProxyStopCommand() *cobra.Command {
	var pid int

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the registry proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("pid") {
				pid = rt.recordedProxyPID()
			}
			rt.proxyManager().Stop(pid)
			return nil
		},
	}

	cmd.Flags().IntVar(&pid, "pid", 0, "Proxy pid to stop (defaults to the recorded pid file)")

	return cmd
}

// parsePID interprets pid file content; anything unparseable or non-positive
// collapses to the reuse sentinel.
func parsePID(raw string) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || parsed <= 0 {
		return proxy.ReusedPID
	}
	return parsed
}
