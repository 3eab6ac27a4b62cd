// Package terminal renders workflow views on a terminal and turns typed
// commands into workflow intents.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/FACorreiaa/kontoexport/internal/domain/workflow"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

// Presenter implements workflow.Presenter. Render only records and prints;
// callers observe progress through WaitFor.
type Presenter struct {
	out         io.Writer
	errOut      io.Writer
	interactive bool

	mu       sync.Mutex
	latest   workflow.View
	changed  chan struct{}
	rendered bool
	handler  workflow.IntentHandler
	bar      *progressbar.ProgressBar
	spin     *spinner.Spinner
	// last status line written in non-interactive mode
	printedStatus string
}

// New creates a presenter writing results to out and progress to errOut.
// Progress bars and spinners are only drawn when interactive is set.
func New(out, errOut io.Writer, interactive bool) *Presenter {
	return &Presenter{
		out:         out,
		errOut:      errOut,
		interactive: interactive,
		changed:     make(chan struct{}),
	}
}

// OnIntent stores the handler used by Dispatch.
func (p *Presenter) OnIntent(h workflow.IntentHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

// Dispatch forwards an intent to the workflow.
func (p *Presenter) Dispatch(ctx context.Context, intent workflow.Intent) error {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()

	if h == nil {
		return errors.New("presenter is not attached to a workflow")
	}
	return h(ctx, intent)
}

// Latest returns the most recently rendered view.
func (p *Presenter) Latest() workflow.View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// WaitFor blocks until the workflow is in one of states.
func (p *Presenter) WaitFor(ctx context.Context, states ...workflow.State) (workflow.View, error) {
	for {
		p.mu.Lock()
		v, ch := p.latest, p.changed
		p.mu.Unlock()

		if slices.Contains(states, v.State) {
			return v, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

// Render implements workflow.Presenter.
func (p *Presenter) Render(v workflow.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, first := p.latest, !p.rendered
	p.latest = v
	p.rendered = true
	close(p.changed)
	p.changed = make(chan struct{})

	p.draw(prev, v, first)
}

func (p *Presenter) draw(prev, v workflow.View, first bool) {
	stateChanged := first || prev.State != v.State

	switch v.State {
	case workflow.Idle:
		p.stopProgress()
		if v.File != nil && (prev.File == nil || prev.File.Name != v.File.Name) {
			fmt.Fprintf(p.out, "Selected %s (%s)\n", v.File.Name, v.File.Size)
		}

	case workflow.Uploading, workflow.AwaitingConversion:
		p.showProgress(v)

	case workflow.Reviewing:
		p.stopProgress()
		if stateChanged {
			rows := 0
			if v.Table != nil {
				rows = len(v.Table.Rows)
			}
			successColor.Fprintf(p.out, "✓ Conversion finished: %d rows to review\n", rows)
			if v.PlaceholderData {
				warnColor.Fprintf(p.out, "⚠ %s\n", v.Warning)
			}
		}
		p.showSpinner(v.StatusText)

	case workflow.Complete:
		p.stopProgress()
		if stateChanged {
			p.printComplete(v)
		}

	case workflow.Failed:
		p.stopProgress()
		if stateChanged {
			errorColor.Fprintf(p.errOut, "✗ %s\n", v.Error)
		}
	}
}

func (p *Presenter) showProgress(v workflow.View) {
	if !p.interactive {
		if v.StatusText != "" && v.StatusText != p.printedStatus {
			infoColor.Fprintf(p.errOut, "… %s (%d%%)\n", v.StatusText, v.Progress)
			p.printedStatus = v.StatusText
		}
		return
	}

	if p.bar == nil {
		p.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(p.errOut),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription(v.StatusText),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "│",
				BarEnd:        "│",
			}),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(p.errOut, "\n")
			}),
		)
	}
	p.bar.Describe(v.StatusText)
	_ = p.bar.Set(v.Progress)
}

func (p *Presenter) showSpinner(status string) {
	if status == "" {
		p.stopSpinner()
		return
	}
	if !p.interactive {
		if status != p.printedStatus {
			infoColor.Fprintf(p.errOut, "… %s\n", status)
			p.printedStatus = status
		}
		return
	}
	if p.spin == nil {
		p.spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		p.spin.Writer = p.errOut
		p.spin.Start()
	}
	p.spin.Suffix = " " + status
}

func (p *Presenter) stopProgress() {
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
	p.stopSpinner()
	p.printedStatus = ""
}

func (p *Presenter) stopSpinner() {
	if p.spin != nil {
		p.spin.Stop()
		p.spin = nil
	}
}

func (p *Presenter) printComplete(v workflow.View) {
	successColor.Fprintln(p.out, "✓ Statement converted")
	if v.BankName != "" {
		fmt.Fprintf(p.out, "  Bank:     %s\n", v.BankName)
	}
	if v.Job != nil && v.Job.Message != "" {
		fmt.Fprintf(p.out, "  Result:   %s\n", v.Job.Message)
	}
	fmt.Fprintf(p.out, "  File:     %s\n", v.Filename)
	fmt.Fprintf(p.out, "  Download: %s\n", v.DownloadURL)
	if v.Job != nil && !v.Job.ExpiresAt.IsZero() {
		fmt.Fprintf(p.out, "  Expires:  %s\n", v.Job.ExpiresAt.Local().Format("02.01.2006 15:04"))
	}
}
