package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jladan/glacier-upload/internal/chunker"
	"github.com/jladan/glacier-upload/internal/common"
	"github.com/jladan/glacier-upload/internal/models"
	"github.com/jladan/glacier-upload/internal/upload"
)

func newUploadCommand(r *runner) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a file as a new archive",
		Long: `Upload FILE in parts. If --chunk-size is not given, the smallest valid part
size that keeps the upload within the remote part limit is used. A part size
larger than the file is lowered to the largest power of two that fits; files
below the 1 MiB minimum part size are refused. The job id is printed first so
that an interrupted upload can be resumed.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *App) error {
				return a.upload(ctx, cmd.OutOrStdout(), args[0], description)
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "archive description (defaults to the file name)")
	return cmd
}

func (a *App) upload(ctx context.Context, out io.Writer, path, description string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	size := fi.Size()
	if size > 0 && size < common.MinChunkSize {
		return &usageError{err: fmt.Errorf("%s is %s, below the minimum part size of %s: %w",
			path, formatBytes(size), formatBytes(common.MinChunkSize), common.ErrInvalidChunkSize)}
	}

	chunkSize := a.cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = chunker.SuggestChunkSize(size)
	}
	if fitted := chunker.FitChunkSize(chunkSize, size); fitted != chunkSize {
		a.logger.Info(ctx, "chunk size lowered to fit file", "chunk_size", fitted, "requested", chunkSize, "size", size)
		chunkSize = fitted
	}
	if description == "" {
		description = filepath.Base(path)
	}

	coord, err := a.Coordinator(ctx)
	if err != nil {
		return err
	}
	s, err := coord.Start(ctx, upload.StartRequest{
		FilePath:    path,
		Vault:       a.cfg.Vault,
		Description: description,
		ChunkSize:   chunkSize,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(out, "job %s\n", s.Job().ID)
	return a.finish(ctx, out, coord, s)
}

func newResumeCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "resume [JOB_ID]",
		Short: "Resume an interrupted upload",
		Long: `Resume the upload with the given job id, or every pending upload when no id
is given. Parts already acknowledged by the remote store are not sent again.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var chunkSize int64
			if cmd.Flags().Changed("chunk-size") {
				chunkSize = r.cfg.ChunkSize
			}
			return r.withApp(cmd, func(ctx context.Context, a *App) error {
				if len(args) == 1 {
					return a.resume(ctx, cmd.OutOrStdout(), args[0], chunkSize)
				}
				return a.resumeAll(ctx, cmd.OutOrStdout(), chunkSize)
			})
		},
	}
}

func (a *App) resume(ctx context.Context, out io.Writer, jobID string, chunkSize int64) error {
	coord, err := a.Coordinator(ctx)
	if err != nil {
		return err
	}
	s, err := coord.Resume(ctx, jobID, chunkSize)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(out, "job %s\n", jobID)
	return a.finish(ctx, out, coord, s)
}

// resumeAll keeps going after a failed job and reports every failure.
func (a *App) resumeAll(ctx context.Context, out io.Writer, chunkSize int64) error {
	coord, err := a.Coordinator(ctx)
	if err != nil {
		return err
	}
	jobs, err := coord.PendingJobs(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(out, "no pending uploads")
		return nil
	}

	var errs []error
	for _, job := range jobs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := a.resume(ctx, out, job.ID, chunkSize); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", shortID(job.ID), err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) finish(ctx context.Context, out io.Writer, coord *upload.Coordinator, s *upload.Session) error {
	jobID := s.Job().ID

	if err := coord.UploadAll(ctx, s); err != nil {
		if s.Job().Status.Resumable() {
			a.logger.Warn(ctx, "upload interrupted; run resume to continue", "job_id", jobID)
		}
		return err
	}

	row, err := coord.Finalize(ctx, s)
	if row != nil {
		printRow(out, row)
	}
	if err != nil && errors.Is(err, common.ErrRemoteComplete) {
		a.logger.Warn(ctx, "completion failed; run resume to retry", "job_id", jobID)
	}
	return err
}

func newAbortCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "abort JOB_ID",
		Short: "Abort an upload and discard its uploaded parts",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *App) error {
				coord, err := a.Coordinator(ctx)
				if err != nil {
					return err
				}
				if err := coord.AbortJob(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %s %s\n", args[0], models.JobAborted)
				return nil
			})
		},
	}
}
