package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/kontoexport/internal/domain/review"
	"github.com/FACorreiaa/kontoexport/internal/presentation/terminal"
)

var showCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print a saved xlsx or csv statement with column totals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, info, err := deps.Storage.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", info.Name, err)
		}

		grid, err := review.Load(data)
		if err != nil {
			return err
		}

		table, summary := grid.Snapshot(), grid.Summary()
		terminal.WriteTable(os.Stdout, &table)
		fmt.Fprintln(os.Stdout)
		terminal.WriteSummary(os.Stdout, &summary)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
