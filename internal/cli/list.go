package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jladan/glacier-upload/internal/models"
)

func newPendingCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List uploads that can be resumed",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *App) error {
				return a.pending(ctx, cmd.OutOrStdout())
			})
		},
	}
}

func (a *App) pending(ctx context.Context, out io.Writer) error {
	ids, err := a.journal.FindResumable(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "no pending uploads")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tFILE\tSIZE\tPARTS\tSTATUS\tUPDATED")
	for _, id := range ids {
		job, records, err := a.journal.Replay(ctx, id)
		if err != nil {
			return err
		}
		plan, err := job.Plan()
		if err != nil {
			return err
		}
		done := 0
		for _, rec := range records {
			if rec.Status == models.ChunkUploaded {
				done++
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			job.ID, job.FilePath, formatBytes(job.TotalSize), done, plan.Count(),
			job.Status, humanize.Time(job.UpdatedAt))
	}
	return w.Flush()
}

func newJournalCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "journal JOB_ID",
		Short: "Show the journal entries of an upload",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *App) error {
				entries, err := a.journal.Entries(ctx, args[0])
				if err != nil {
					return err
				}
				return printEntries(cmd.OutOrStdout(), entries)
			})
		},
	}
}

func printEntries(out io.Writer, entries []*models.JournalEntry) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTIME\tENTITY\tKEY\tSTATUS\tHASH\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Seq, e.CreatedAt.Format(time.RFC3339), e.Entity, dash(e.EntityKey), e.Status, dash(e.Hash), e.Detail)
	}
	return w.Flush()
}

func newLookupCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup FILE",
		Short: "Show the archives recorded for a file",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return r.withApp(cmd, func(ctx context.Context, a *App) error {
				rows, err := a.index.Lookup(ctx, path)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					return fmt.Errorf("no archives recorded for %s", path)
				}
				return printRows(cmd.OutOrStdout(), rows)
			})
		},
	}
}

func newListCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every recorded archive",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *App) error {
				rows, err := a.index.List(ctx)
				if err != nil {
					return err
				}
				return printRows(cmd.OutOrStdout(), rows)
			})
		},
	}
}

func printRows(out io.Writer, rows []*models.ArchiveIndexRow) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMPLETED\tFILE\tSIZE\tTREE HASH\tARCHIVE ID")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			row.CompletedAt.Format(time.RFC3339), row.FilePath, formatBytes(row.Size), row.TreeHash, row.ArchiveID)
	}
	return w.Flush()
}

// printRow writes the result of a completed upload as key: value lines.
func printRow(out io.Writer, row *models.ArchiveIndexRow) {
	fmt.Fprintf(out, "archive id: %s\n", row.ArchiveID)
	fmt.Fprintf(out, "tree hash:  %s\n", row.TreeHash)
	fmt.Fprintf(out, "size:       %s (%d bytes)\n", formatBytes(row.Size), row.Size)
}

func formatBytes(n int64) string {
	if n < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// shortID trims long remote upload ids for progress lines.
func shortID(id string) string {
	const limit = 16
	if len(id) <= limit {
		return id
	}
	return id[:limit] + "…"
}
