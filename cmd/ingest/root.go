package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// execute runs the CLI and returns the process exit code.
func execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		verbose bool
	)
	root := &cobra.Command{
		Use:           "ingest",
		Short:         "Bulk-load staged files into a table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "load.yaml", "load file (JSON or YAML)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logs")

	root.AddCommand(
		newRunCmd(&cfgPath, &verbose),
		newValidateCmd(&cfgPath),
		newListCmd(&cfgPath),
	)
	return root
}

func newRunCmd(cfgPath *string, verbose *bool) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load the selected stage files into the target table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoad(cmd.Context(), *cfgPath, *verbose, dryRun, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "decode and validate every file without writing rows (same as copy.validation_mode)")
	return cmd
}

func newValidateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Lint the load file and resolve its format, policy and columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := resolve(*cfgPath, cmd.ErrOrStderr()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %s\n", *cfgPath)
			return nil
		},
	}
}

func newListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the stage files the load would consider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lp, err := resolve(*cfgPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := lp.selectFiles(cmd.Context()); err != nil {
				return err
			}
			printFiles(cmd.OutOrStdout(), lp.files)
			return nil
		},
	}
}
