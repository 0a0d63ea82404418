package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"autosave/internal/worker"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
}

// buildRoot creates the root command and attaches all subcommands.
func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	c := command{flags: flags}

	root := createRootCommand(flags)
	root.AddCommand(
		createStartCommand(c),
		createEndCommand(c),
		createStatusCommand(c),
		createRestartCommand(c),
		createReconcileCommand(c),
		createRunCommand(flags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "autosave",
		Short: "Per-project background snapshot supervisor",
		Long: `Autosave keeps a background worker running per project directory that
commits the project's changes at a fixed interval, and keeps that worker
alive across crashes and machine reboots.

Examples:
  autosave start 300          # snapshot this project every 5 minutes
  autosave start 60 --push    # also push each snapshot
  autosave status
  autosave end`,
		// A bare invocation is an error: usage is printed and the process
		// exits non-zero, same as an unrecognized command.
		RunE: func(cmd *cobra.Command, args []string) error {
			return errors.New("a command is required")
		},
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	return root
}

func createStartCommand(c command) *cobra.Command {
	var push bool
	cmd := &cobra.Command{
		Use:   "start <intervalSeconds>",
		Short: "Register this project and start its worker",
		Long: `Register the current directory as an autosave project and spawn a
detached worker that snapshots it every <intervalSeconds> seconds.

Examples:
  autosave start 300
  autosave start 60 --push`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(args[0], push)
		},
	}
	cmd.Flags().BoolVar(&push, "push", false, "push to the remote after each snapshot commit")
	return cmd
}

func createEndCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "Stop this project's worker and remove its registration",
		Long: `Stop the worker for the current directory and remove its registration.
Ending a project that is not running is a successful no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.End()
		},
	}
}

func createStatusCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show this project's worker status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status()
		},
	}
}

func createRestartCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Re-spawn this project's worker from its stored registration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Restart()
		},
	}
}

func createReconcileCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Restore dead workers for every registered project",
		Long: `Run one reconciliation pass: re-spawn workers for registered projects
whose worker died or did not survive a reboot. This is the command the
installed systemd timer or cron entry invokes; every other command runs
the same pass implicitly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Reconcile()
		},
	}
}

func createRunCommand(flags *GlobalFlags) *cobra.Command {
	rf := &RunFlags{}
	cmd := &cobra.Command{
		Use:    worker.RunCommand,
		Short:  "Run the tick loop for one project (spawned internally)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(flags, rf)
		},
	}
	cmd.Flags().StringVar(&rf.Path, "path", "", "absolute project path (required)")
	cmd.Flags().IntVar(&rf.Interval, "interval", 0, "tick interval in seconds (required)")
	cmd.Flags().StringVar(&rf.Name, "name", "", "display name")
	cmd.Flags().BoolVar(&rf.Push, "push", false, "push after each snapshot commit")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("interval")
	return cmd
}
