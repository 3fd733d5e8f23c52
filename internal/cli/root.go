package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jladan/glacier-upload/internal/buildinfo"
	"github.com/jladan/glacier-upload/internal/config"
)

// Execute loads the configuration, runs the command line in args and returns
// the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitInvalidArgs
	}

	root := NewRootCommand(cfg)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err = root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return ExitCode(err)
}

// NewRootCommand builds the command tree. Persistent flags write into cfg.
func NewRootCommand(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "glacier-upload",
		Short: "Resumable multipart uploads to Glacier and S3",
		Long: `glacier-upload splits a file into fixed-size parts, uploads them in parallel
and records every step in a local journal. An interrupted upload can be
resumed from the journal; a completed one is verified against its SHA-256
tree hash and recorded in the archive index.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cfg.RegisterFlags(root.PersistentFlags())
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	r := &runner{cfg: cfg}
	root.AddCommand(
		newUploadCommand(r),
		newResumeCommand(r),
		newAbortCommand(r),
		newPendingCommand(r),
		newJournalCommand(r),
		newLookupCommand(r),
		newListCommand(r),
		newTreeHashCommand(),
		newVersionCommand(),
	)
	return root
}

type runner struct {
	cfg *config.Config
}

// withApp opens an App for the duration of fn. Log output goes to the
// command's stderr.
func (r *runner) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *App) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := NewApp(ctx, r.cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	return fn(ctx, a)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  exactArgs(0),
		Run: func(cmd *cobra.Command, _ []string) {
			buildinfo.PrintBuildData(cmd.OutOrStdout())
		},
	}
}

// exactArgs is cobra.ExactArgs with the error marked as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	check := cobra.ExactArgs(n)
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func maxArgs(n int) cobra.PositionalArgs {
	check := cobra.MaximumNArgs(n)
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}
