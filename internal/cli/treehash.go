package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jladan/glacier-upload/internal/treehash"
)

func newTreeHashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "treehash FILE",
		Short: "Print the SHA-256 tree hash of a file",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			h := treehash.New()
			if _, err := io.Copy(h, f); err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", h.Sum(), args[0])
			return nil
		},
	}
}
