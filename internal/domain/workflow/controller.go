package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/FACorreiaa/kontoexport/internal/domain/banks"
	"github.com/FACorreiaa/kontoexport/internal/domain/jobs"
	"github.com/FACorreiaa/kontoexport/internal/domain/review"
	"github.com/FACorreiaa/kontoexport/internal/domain/upload"
	"github.com/FACorreiaa/kontoexport/pkg/cron"
	"github.com/FACorreiaa/kontoexport/pkg/metrics"
)

var (
	// ErrInvalidTransition is returned for intents the current state does not accept.
	ErrInvalidTransition = errors.New("action not available in the current state")
	ErrNoFileStaged      = errors.New("no file selected")
	ErrInvalidEdit       = errors.New("no such cell")
	// ErrStale means the result arrived after the session was reset or replaced
	// and was dropped.
	ErrStale = errors.New("result discarded, workflow was reset")
)

const (
	msgProcessingFailed = "Processing failed"
	msgPlaceholder      = "The conversion result could not be read. The table shows sample rows."
)

// JobClient is the part of jobs.Client the workflow needs.
type JobClient interface {
	Submit(ctx context.Context, file upload.Candidate, bank, outputFormat string) (*jobs.Job, error)
	FetchResult(ctx context.Context, jobID string) ([]byte, error)
	SubmitEdits(ctx context.Context, jobID string, headers []string, rows []map[string]string) (*jobs.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
	DownloadURL(jobID string) string
}

// Poller repeatedly checks a job until it finishes.
type Poller interface {
	Start(jobID string, onTick cron.TickFunc, onTerminal cron.TerminalFunc)
	Stop()
}

// Options tune the controller.
type Options struct {
	// Strict fails the workflow when the result cannot be read instead of
	// reviewing placeholder rows.
	Strict bool
	// Loader parses the conversion result. Defaults to review.Load.
	Loader func([]byte) (*review.Grid, error)
}

// Controller owns the workflow state. All intents are safe for concurrent use.
type Controller struct {
	client    JobClient
	poller    Poller
	presenter Presenter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	strict    bool
	load      func([]byte) (*review.Grid, error)

	mu            sync.Mutex
	state         State
	session       uint64
	sessionCtx    context.Context
	cancelSession context.CancelFunc

	file        *upload.Candidate
	format      string
	job         *jobs.Job
	grid        *review.Grid
	placeholder bool
	saving      bool
	progress    int
	statusText  string
	errMsg      string
	downloadURL string
	filename    string
}

// New creates a controller in Idle, registers it with the presenter and
// renders the initial view. m may be nil.
func New(client JobClient, poller Poller, presenter Presenter, logger *slog.Logger, m *metrics.Metrics, opts Options) *Controller {
	load := opts.Loader
	if load == nil {
		load = review.Load
	}

	c := &Controller{
		client:    client,
		poller:    poller,
		presenter: presenter,
		logger:    logger,
		metrics:   m,
		strict:    opts.Strict,
		load:      load,
		state:     Idle,
	}
	c.sessionCtx, c.cancelSession = context.WithCancel(context.Background())

	presenter.OnIntent(c.Dispatch)

	c.mu.Lock()
	c.renderLocked()
	c.mu.Unlock()
	return c
}

// Dispatch applies an intent.
func (c *Controller) Dispatch(ctx context.Context, intent Intent) error {
	switch in := intent.(type) {
	case SelectFile:
		return c.SelectFile(in.File)
	case RemoveFile:
		return c.RemoveFile()
	case Submit:
		return c.Submit(ctx, in.Bank, in.Format)
	case EditCell:
		return c.EditCell(in.Row, in.Header, in.Value)
	case Confirm:
		return c.Confirm(ctx)
	case Delete:
		return c.Delete(ctx)
	case Reset:
		c.Reset()
		return nil
	case ResumeReview:
		return c.ResumeReview()
	default:
		return fmt.Errorf("unknown intent %T", intent)
	}
}

// View returns the current view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// SelectFile validates and stages a file. An invalid file moves the
// workflow to Failed with the validation message.
func (c *Controller) SelectFile(file upload.Candidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		return ErrInvalidTransition
	}

	if err := upload.Validate(file); err != nil {
		c.logger.Info("file rejected", slog.String("file", file.Name), slog.Any("error", err))
		c.file = nil
		c.failLocked(err)
		return err
	}

	c.file = &file
	c.logger.Debug("file staged", slog.String("file", file.Name), slog.Int64("size", file.SizeBytes))
	c.renderLocked()
	return nil
}

// RemoveFile unstages the selected file.
func (c *Controller) RemoveFile() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		return ErrInvalidTransition
	}
	c.file = nil
	c.renderLocked()
	return nil
}

// Submit uploads the staged file and starts polling. It returns once the
// upload finished; conversion continues in the background.
func (c *Controller) Submit(ctx context.Context, bank, format string) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	if c.file == nil {
		c.mu.Unlock()
		return ErrNoFileStaged
	}
	if format == "" {
		format = jobs.FormatXLSX
	}

	sess := c.newSessionLocked()
	file := *c.file
	c.format = format
	c.progress = progressUploading
	c.statusText = "Uploading statement"
	c.setStateLocked(Uploading)
	c.mu.Unlock()

	job, err := c.client.Submit(ctx, file, bank, format)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(sess, Uploading) {
		c.logger.Debug("upload result dropped", slog.Uint64("session", sess))
		return ErrStale
	}
	if err != nil {
		c.failLocked(err)
		return err
	}

	c.job = job
	c.progress = progressPending
	c.statusText = "Waiting for conversion"
	c.setStateLocked(AwaitingConversion)
	c.poller.Start(job.ID, c.onTick(sess), c.onTerminal(sess))
	return nil
}

func (c *Controller) onTick(sess uint64) cron.TickFunc {
	return func(job *jobs.Job) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if !c.currentLocked(sess, AwaitingConversion) {
			return
		}

		c.mergeStatusLocked(job)
		switch job.Status {
		case jobs.StatusProcessing:
			c.progress = progressProcessing
			c.statusText = "Converting statement"
		default:
			c.progress = progressPending
			c.statusText = "Waiting for conversion"
		}
		c.renderLocked()
	}
}

func (c *Controller) onTerminal(sess uint64) cron.TerminalFunc {
	return func(job *jobs.Job, err error) {
		c.mu.Lock()
		if !c.currentLocked(sess, AwaitingConversion) {
			c.mu.Unlock()
			return
		}

		if err != nil {
			c.failLocked(err)
			c.mu.Unlock()
			return
		}

		c.mergeStatusLocked(job)
		if c.job.Status == jobs.StatusFailed {
			msg := c.job.ErrorMessage
			if msg == "" {
				msg = msgProcessingFailed
			}
			c.failLocked(errors.New(msg))
			c.mu.Unlock()
			return
		}

		c.progress = progressDone
		c.statusText = "Loading result"
		c.renderLocked()
		ctx, jobID := c.sessionCtx, c.job.ID
		c.mu.Unlock()

		c.fetchResult(ctx, sess, jobID)
	}
}

// mergeStatusLocked copies a status report into the cached job. The id
// from the upload stays authoritative; status responses may omit it, and
// empty optional fields do not clear known values.
func (c *Controller) mergeStatusLocked(status *jobs.Job) {
	job := *c.job
	job.Status = status.Status
	if status.Bank != "" {
		job.Bank = status.Bank
	}
	if status.OutputFormat != "" {
		job.OutputFormat = status.OutputFormat
	}
	if status.ErrorMessage != "" {
		job.ErrorMessage = status.ErrorMessage
	}
	if status.DownloadURL != "" {
		job.DownloadURL = status.DownloadURL
	}
	if status.Message != "" {
		job.Message = status.Message
	}
	if !status.CreatedAt.IsZero() {
		job.CreatedAt = status.CreatedAt
	}
	if !status.CompletedAt.IsZero() {
		job.CompletedAt = status.CompletedAt
	}
	if !status.ExpiresAt.IsZero() {
		job.ExpiresAt = status.ExpiresAt
	}
	c.job = &job
}

func (c *Controller) fetchResult(ctx context.Context, sess uint64, jobID string) {
	data, err := c.client.FetchResult(ctx, jobID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(sess, AwaitingConversion) {
		return
	}
	if err != nil {
		c.failLocked(err)
		return
	}

	grid, err := c.load(data)
	var perr *review.ParseError
	switch {
	case err == nil:
	case errors.As(err, &perr) && !c.strict:
		c.logger.Warn("conversion result unreadable, showing placeholder rows",
			slog.String("job_id", jobID), slog.Any("error", err))
		c.placeholder = true
	default:
		c.failLocked(err)
		return
	}

	c.grid = grid
	c.statusText = ""
	c.setStateLocked(Reviewing)
}

// EditCell changes one cell of the review table.
func (c *Controller) EditCell(row int, header, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Reviewing || c.saving {
		return ErrInvalidTransition
	}
	if !c.grid.ApplyEdit(row, header, value) {
		return fmt.Errorf("%w: row %d, column %q", ErrInvalidEdit, row, header)
	}
	c.renderLocked()
	return nil
}

// Confirm submits the reviewed rows. On failure the table is kept so the
// review can be resumed. Placeholder rows are never submitted; confirming
// them keeps the server's result as is.
func (c *Controller) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Reviewing || c.saving {
		c.mu.Unlock()
		return ErrInvalidTransition
	}

	sess := c.session
	jobID := c.job.ID
	if c.placeholder {
		c.completeLocked(c.job)
		c.mu.Unlock()
		return nil
	}

	headers, rows := c.grid.Headers(), c.grid.Serialize()
	c.saving = true
	c.statusText = "Saving changes"
	c.renderLocked()
	c.mu.Unlock()

	updated, err := c.client.SubmitEdits(ctx, jobID, headers, rows)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(sess, Reviewing) {
		return ErrStale
	}
	c.saving = false
	c.statusText = ""
	if err != nil {
		c.failLocked(err)
		return err
	}

	job := *c.job
	if updated != nil && updated.OutputFormat != "" {
		job.OutputFormat = updated.OutputFormat
	}
	if updated != nil && updated.Message != "" {
		job.Message = updated.Message
	}
	c.completeLocked(&job)
	return nil
}

func (c *Controller) completeLocked(job *jobs.Job) {
	format := job.OutputFormat
	if format == "" {
		format = c.format
	}

	c.job = job
	c.grid = nil
	c.placeholder = false
	c.downloadURL = c.client.DownloadURL(job.ID)
	c.filename = jobs.SuggestedFilename(job.ID, format)
	c.progress = progressDone
	c.setStateLocked(Complete)
}

// Delete removes the job from the server and returns to Idle. A failed
// delete is logged and does not block the reset.
func (c *Controller) Delete(ctx context.Context) error {
	c.mu.Lock()
	if (c.state != Reviewing && c.state != Complete) || c.saving {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	jobID := c.job.ID
	c.resetLocked()
	c.mu.Unlock()

	if err := c.client.DeleteJob(ctx, jobID); err != nil {
		c.logger.Warn("delete failed", slog.String("job_id", jobID), slog.Any("error", err))
		return nil
	}
	c.logger.Info("job deleted", slog.String("job_id", jobID))
	return nil
}

// Reset stops polling and discards the staged file, job and table. It is
// valid in every state and idempotent.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// ResumeReview returns from a failed confirmation to the retained table.
func (c *Controller) ResumeReview() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Failed || c.grid == nil {
		return ErrInvalidTransition
	}
	c.errMsg = ""
	c.setStateLocked(Reviewing)
	return nil
}

func (c *Controller) resetLocked() {
	c.poller.Stop()
	c.newSessionLocked()

	c.file = nil
	c.format = ""
	c.job = nil
	c.grid = nil
	c.placeholder = false
	c.saving = false
	c.progress = 0
	c.statusText = ""
	c.errMsg = ""
	c.downloadURL = ""
	c.filename = ""
	c.setStateLocked(Idle)
}

// newSessionLocked invalidates every outstanding async result.
func (c *Controller) newSessionLocked() uint64 {
	c.cancelSession()
	c.sessionCtx, c.cancelSession = context.WithCancel(context.Background())
	c.session++
	return c.session
}

func (c *Controller) currentLocked(sess uint64, want State) bool {
	return c.session == sess && c.state == want
}

func (c *Controller) failLocked(err error) {
	c.poller.Stop()
	c.saving = false
	c.statusText = ""
	c.errMsg = userMessage(err)
	c.setStateLocked(Failed)
}

func (c *Controller) setStateLocked(to State) {
	from := c.state
	c.state = to

	if from != to {
		c.metrics.ObserveTransition(from.String(), to.String())
		attrs := []any{
			slog.String("from", from.String()),
			slog.String("to", to.String()),
			slog.Uint64("session", c.session),
		}
		if c.job != nil {
			attrs = append(attrs, slog.String("job_id", c.job.ID))
		}
		c.logger.Debug("workflow transition", attrs...)
	}
	c.renderLocked()
}

func (c *Controller) renderLocked() {
	c.presenter.Render(c.viewLocked())
}

func (c *Controller) viewLocked() View {
	v := View{
		State:       c.state,
		Session:     c.session,
		Progress:    c.progress,
		StatusText:  c.statusText,
		Error:       c.errMsg,
		DownloadURL: c.downloadURL,
		Filename:    c.filename,
	}

	if c.file != nil {
		v.File = &StagedFile{
			Name:      c.file.Name,
			SizeBytes: c.file.SizeBytes,
			Size:      upload.FormatSize(c.file.SizeBytes),
		}
	}
	if c.job != nil {
		job := *c.job
		v.Job = &job
		v.BankName = banks.DisplayName(job.Bank)
	}
	if c.grid != nil {
		table := c.grid.Snapshot()
		summary := c.grid.Summary()
		v.Table = &table
		v.Summary = &summary
		v.PlaceholderData = c.placeholder
		v.CanResume = c.state == Failed
		if c.placeholder {
			v.Warning = msgPlaceholder
		}
	}
	return v
}

// userMessage picks the text shown to the user for err.
func userMessage(err error) string {
	var verr *upload.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	var rerr *jobs.RequestError
	if errors.As(err, &rerr) {
		return rerr.Message
	}
	return err.Error()
}
