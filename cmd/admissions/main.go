// Package main provides the admissions binary: schema migrations, catalog
// seeding, reviewer transitions, recommendations and the background worker.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

const appName = "admissions"

// Set at build time with -ldflags.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// Exit statuses beyond 1 let scripts tell domain refusals apart. 2 is
// reserved for panics.
const (
	exitFailure    = 1
	exitValidation = 3
	exitNotFound   = 4
	exitForbidden  = 5
	exitRefused    = 6
)

// exitCode maps the error kind to an exit status.
func exitCode(err error) int {
	switch {
	case shared.IsValidation(err):
		return exitValidation
	case shared.IsNotFound(err):
		return exitNotFound
	case shared.IsForbidden(err):
		return exitForbidden
	case shared.IsAlreadyExists(err), shared.IsLocked(err),
		shared.IsInvalidTransition(err), shared.IsConflict(err):
		return exitRefused
	default:
		return exitFailure
	}
}

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	memory   bool
	logLevel string
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "University admissions core",
		Long: `admissions runs the application lifecycle and admission scoring core.

Configuration comes from the environment (a .env file is read first when
present). Without DATABASE_URL, or with --memory, commands run against an
in-process store that lives only as long as the command.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&opts.memory, "memory", false, "Use the in-memory store instead of PostgreSQL")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	cmd.AddCommand(
		versionCmd(),
		migrateCmd(opts),
		seedCmd(opts),
		transitionCmd(opts),
		reviewCmd(opts),
		recommendCmd(opts),
		eligibilityCmd(opts),
		applicationsCmd(opts),
		auditCmd(opts),
		deadlinesCmd(opts),
		inboxCmd(opts),
		workerCmd(opts),
	)

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}
