package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/kontoexport/internal/domain/banks"
	"github.com/FACorreiaa/kontoexport/internal/domain/jobs"
	"github.com/FACorreiaa/kontoexport/internal/domain/upload"
	"github.com/FACorreiaa/kontoexport/internal/domain/workflow"
	"github.com/FACorreiaa/kontoexport/internal/presentation/terminal"
)

var (
	convertBank        string
	convertFormat      string
	convertReview      bool
	convertEdits       []string
	convertDeleteAfter bool
	convertTimeout     time.Duration
)

var convertCmd = &cobra.Command{
	Use:   "convert <statement.pdf>",
	Short: "Upload a statement, review the rows and save the spreadsheet",
	Long: `Upload a PDF statement and wait for the conversion. Rows can be corrected
with --set (row numbers start at 1) or interactively with --review before the
result is confirmed and saved.`,
	Example: `  kontoexport convert auszug.pdf --bank sparkasse
  kontoexport convert auszug.pdf --format csv --set "2:Soll=20,00"
  kontoexport convert auszug.pdf --review --delete-after`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertBank, "bank", "b", banks.Auto, "bank layout ("+strings.Join(banks.Codes(), ", ")+")")
	convertCmd.Flags().StringVarP(&convertFormat, "format", "f", jobs.FormatXLSX, "output format (xlsx or csv)")
	convertCmd.Flags().BoolVarP(&convertReview, "review", "r", false, "review and edit the rows interactively")
	convertCmd.Flags().StringArrayVar(&convertEdits, "set", nil, `change a cell before confirming, as <row>:<column>=<value> (\= for = in a column name)`)
	convertCmd.Flags().BoolVar(&convertDeleteAfter, "delete-after", false, "delete the job from the server once the file is saved")
	convertCmd.Flags().DurationVar(&convertTimeout, "timeout", 10*time.Minute, "give up waiting for the conversion after this long")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	format, err := parseFormat(convertFormat)
	if err != nil {
		return err
	}
	bank, err := banks.Resolve(convertBank)
	if err != nil {
		return err
	}

	edits := make([]workflow.EditCell, 0, len(convertEdits))
	for _, raw := range convertEdits {
		edit, err := terminal.ParseEdit(raw)
		if err != nil {
			return err
		}
		edits = append(edits, edit)
	}

	file, err := upload.FromFile(args[0])
	if err != nil {
		return err
	}
	if pages, err := upload.PageCount(args[0]); err == nil {
		deps.Logger.Debug("statement inspected", slog.String("file", file.Name), slog.Int("pages", pages))
	} else {
		deps.Logger.Debug("could not count pages", slog.String("file", file.Name), slog.Any("error", err))
	}

	presenter := terminal.New(os.Stdout, os.Stderr, interactive())
	ctrl := deps.NewWorkflow(presenter)
	defer ctrl.Reset()

	if err := presenter.Dispatch(ctx, workflow.SelectFile{File: file}); err != nil {
		return err
	}
	if err := presenter.Dispatch(ctx, workflow.Submit{Bank: bank, Format: format}); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, convertTimeout)
	defer cancel()
	v, err := presenter.WaitFor(waitCtx, workflow.Reviewing, workflow.Failed)
	if err != nil {
		return fmt.Errorf("waiting for conversion: %w", err)
	}
	if v.State == workflow.Failed {
		return errors.New(v.Error)
	}

	for _, edit := range edits {
		if err := presenter.Dispatch(ctx, edit); err != nil {
			return err
		}
	}

	if convertReview {
		if err := presenter.Review(ctx, os.Stdin); err != nil {
			if errors.Is(err, terminal.ErrAborted) {
				fmt.Fprintf(os.Stderr, "Review left open. Job %s expires on the server on its own.\n", v.Job.ID)
				return nil
			}
			return err
		}
	} else if err := presenter.Dispatch(ctx, workflow.Confirm{}); err != nil {
		return err
	}

	v = presenter.Latest()
	if v.State != workflow.Complete {
		// deleted during review
		return nil
	}

	if err := saveResult(ctx, v.Job.ID, v.Filename); err != nil {
		return err
	}

	if convertDeleteAfter {
		return presenter.Dispatch(ctx, workflow.Delete{})
	}
	return nil
}

func saveResult(ctx context.Context, jobID, filename string) error {
	data, err := deps.Client.FetchResult(ctx, jobID)
	if err != nil {
		return err
	}

	info, err := deps.Storage.Save(ctx, jobID, filename, bytes.NewReader(data))
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Saved %s (%s)\n", info.Path, upload.FormatSize(info.Size))
	return nil
}

func parseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case jobs.FormatXLSX, jobs.FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q, use xlsx or csv", s)
	}
}
