package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/kontoexport/internal/domain/banks"
	"github.com/FACorreiaa/kontoexport/internal/domain/jobs"
)

var downloadDeleteAfter bool

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the state of a conversion job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := deps.Client.FetchStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printJob(job)
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <job-id>",
	Short: "Save the spreadsheet of a finished job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		job, err := deps.Client.FetchStatus(ctx, args[0])
		if err != nil {
			return err
		}
		if job.Status != jobs.StatusCompleted {
			return fmt.Errorf("job %s is %s, nothing to download yet", job.ID, job.Status)
		}

		if err := saveResult(ctx, job.ID, jobs.SuggestedFilename(job.ID, job.OutputFormat)); err != nil {
			return err
		}
		if downloadDeleteAfter {
			return deps.Client.DeleteJob(ctx, job.ID)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job and its files from the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := deps.Client.DeleteJob(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Deleted job %s\n", args[0])
		return nil
	},
}

var banksCmd = &cobra.Command{
	Use:   "banks",
	Short: "List the supported bank layouts",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tNAME")
		for _, b := range banks.All() {
			fmt.Fprintf(w, "%s\t%s\n", b.Code, b.DisplayName)
		}
		_ = w.Flush()
	},
}

func init() {
	downloadCmd.Flags().BoolVar(&downloadDeleteAfter, "delete-after", false, "delete the job from the server once the file is saved")
	rootCmd.AddCommand(statusCmd, downloadCmd, deleteCmd, banksCmd)
}

func printJob(job *jobs.Job) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Job:\t%s\n", job.ID)
	fmt.Fprintf(w, "Status:\t%s\n", job.Status)
	fmt.Fprintf(w, "Bank:\t%s\n", banks.DisplayName(job.Bank))
	fmt.Fprintf(w, "Format:\t%s\n", job.OutputFormat)
	printTime(w, "Created:", job.CreatedAt)
	printTime(w, "Completed:", job.CompletedAt)
	printTime(w, "Expires:", job.ExpiresAt)
	if job.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:\t%s\n", job.ErrorMessage)
	}
	_ = w.Flush()
}

func printTime(w *tabwriter.Writer, label string, ts jobs.Timestamp) {
	if ts.IsZero() {
		return
	}
	fmt.Fprintf(w, "%s\t%s\n", label, ts.Local().Format(time.DateTime))
}
