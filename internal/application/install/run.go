package install

import (
	"context"
	"os"
	"strings"

	"boringcache.com/setup/internal/core/platform"
	"boringcache.com/setup/internal/infrastructure/process"
)

// Run executes the tool with the given arguments and returns its exit
// code. On Windows only, a "not found on PATH" failure is retried once
// through a POSIX shell (the runners ship Git Bash), with the command line
// re-quoted. Any other failure, on any platform, propagates unchanged.
func (s *Service) Run(ctx context.Context, args []string) (int, error) {
	opts := process.RunOptions{Stdout: os.Stdout, Stderr: os.Stderr, Stdin: os.Stdin}

	code, err := s.deps.Runner(ctx, s.binaryName(), args, opts)
	if err == nil {
		return code, nil
	}
	if !process.IsNotFound(err) {
		return code, err
	}

	desc, resolveErr := platform.Resolve(s.deps.Environ)
	if resolveErr != nil || !desc.IsWindows {
		return code, err
	}

	s.deps.Logger.Debug().Msg("boringcache not found on PATH, retrying through shell")
	return s.deps.Runner(ctx, "sh", []string{"-c", shellCommandLine(s.binaryName(), args)}, opts)
}

// shellCommandLine rebuilds the command line for `sh -c`: arguments
// containing whitespace are wrapped in double quotes with embedded quotes
// escaped.
func shellCommandLine(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, arg := range args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if !strings.ContainsAny(arg, " \t") {
		return arg
	}
	return `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
}
