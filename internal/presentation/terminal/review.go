package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/FACorreiaa/kontoexport/internal/domain/workflow"
)

// ErrAborted is returned when the user leaves the review without deciding.
var ErrAborted = errors.New("review aborted")

const reviewHelp = `Commands:
  show                        print the table
  sum                         print column totals
  set <row>:<column>=<value>  change a cell (write = in a column name as \=)
  confirm                     save the changes and finish
  delete                      delete the job from the server
  quit                        leave without saving`

// Review runs the interactive review prompt until the table is confirmed,
// the job is deleted or the user quits.
func (p *Presenter) Review(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)

	WriteTable(p.out, p.Latest().Table)
	fmt.Fprintln(p.out, reviewHelp)

	for {
		fmt.Fprint(p.out, "review> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return ErrAborted
		}

		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		switch strings.ToLower(cmd) {
		case "":
			continue
		case "show", "table":
			WriteTable(p.out, p.Latest().Table)
		case "sum", "summary":
			WriteSummary(p.out, p.Latest().Summary)
		case "set":
			edit, err := ParseEdit(strings.TrimSpace(arg))
			if err != nil {
				errorColor.Fprintln(p.errOut, err)
				continue
			}
			if err := p.Dispatch(ctx, edit); err != nil {
				errorColor.Fprintln(p.errOut, err)
				continue
			}
			fmt.Fprintf(p.out, "row %d %s = %q\n", edit.Row+1, edit.Header, edit.Value)
		case "confirm":
			if err := p.Dispatch(ctx, workflow.Confirm{}); err != nil {
				if p.Latest().CanResume {
					if rerr := p.Dispatch(ctx, workflow.ResumeReview{}); rerr == nil {
						warnColor.Fprintln(p.out, "Changes were kept; try confirm again or quit.")
						continue
					}
				}
				return err
			}
			return nil
		case "delete":
			return p.Dispatch(ctx, workflow.Delete{})
		case "quit", "exit":
			return ErrAborted
		case "help", "?":
			fmt.Fprintln(p.out, reviewHelp)
		default:
			errorColor.Fprintf(p.errOut, "unknown command %q, type help\n", cmd)
		}
	}
}
