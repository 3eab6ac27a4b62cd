package terminal

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/kontoexport/internal/domain/jobs"
	"github.com/FACorreiaa/kontoexport/internal/domain/review"
	"github.com/FACorreiaa/kontoexport/internal/domain/workflow"
)

func newTestPresenter() (*Presenter, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return New(out, errOut, false), out, errOut
}

func reviewTable() *review.Table {
	return &review.Table{
		Headers: []string{"Datum", "Soll"},
		Rows: []map[string]string{
			{"Datum": "01.01.2024", "Soll": "1,00"},
			{"Datum": "02.01.2024", "Soll": "100,00"},
		},
	}
}

func TestWaitFor(t *testing.T) {
	p, _, _ := newTestPresenter()
	p.Render(workflow.View{State: workflow.AwaitingConversion})

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.Render(workflow.View{State: workflow.AwaitingConversion, Progress: 66})
		p.Render(workflow.View{State: workflow.Reviewing, Table: reviewTable()})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := p.WaitFor(ctx, workflow.Reviewing, workflow.Failed)
	require.NoError(t, err)
	assert.Equal(t, workflow.Reviewing, v.State)
}

func TestWaitFor_ContextDone(t *testing.T) {
	p, _, _ := newTestPresenter()
	p.Render(workflow.View{State: workflow.Uploading})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	v, err := p.WaitFor(ctx, workflow.Complete)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, workflow.Uploading, v.State)
}

func TestDispatch_WithoutWorkflow(t *testing.T) {
	p, _, _ := newTestPresenter()
	assert.Error(t, p.Dispatch(context.Background(), workflow.Reset{}))
}

func TestRender_Output(t *testing.T) {
	p, out, errOut := newTestPresenter()

	p.Render(workflow.View{State: workflow.Idle})
	p.Render(workflow.View{State: workflow.Idle, File: &workflow.StagedFile{Name: "auszug.pdf", Size: "1.5 KB"}})
	p.Render(workflow.View{State: workflow.Uploading, Progress: 10, StatusText: "Uploading statement"})
	p.Render(workflow.View{State: workflow.AwaitingConversion, Progress: 33, StatusText: "Waiting for conversion"})
	p.Render(workflow.View{State: workflow.AwaitingConversion, Progress: 33, StatusText: "Waiting for conversion"})
	p.Render(workflow.View{State: workflow.Reviewing, Table: reviewTable(), PlaceholderData: true, Warning: "sample rows"})
	p.Render(workflow.View{
		State:       workflow.Complete,
		BankName:    "ING",
		Job:         &jobs.Job{ID: "3f2a9c1e", ExpiresAt: jobs.Timestamp{Time: time.Now().Add(15 * time.Minute)}},
		Filename:    "kontoauszug_3f2a9c1e.xlsx",
		DownloadURL: "http://localhost:8000/api/download/3f2a9c1e",
	})
	p.Render(workflow.View{State: workflow.Failed, Error: "Processing failed"})

	stdout := out.String()
	assert.Contains(t, stdout, "Selected auszug.pdf (1.5 KB)")
	assert.Contains(t, stdout, "Conversion finished: 2 rows to review")
	assert.Contains(t, stdout, "sample rows")
	assert.Contains(t, stdout, "Bank:     ING")
	assert.Contains(t, stdout, "kontoauszug_3f2a9c1e.xlsx")
	assert.Contains(t, stdout, "Expires:")

	stderr := errOut.String()
	assert.Equal(t, 1, strings.Count(stderr, "Waiting for conversion"))
	assert.Contains(t, stderr, "Uploading statement")
	assert.Contains(t, stderr, "Processing failed")
}

func TestWriteTable_RightAlignsAmounts(t *testing.T) {
	var buf bytes.Buffer
	WriteTable(&buf, reviewTable())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "#  Datum         Soll", lines[0])
	assert.Equal(t, "1  01.01.2024    1,00", lines[2])
	assert.Equal(t, "2  02.01.2024  100,00", lines[3])
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	s := review.Placeholder().Summary()
	WriteSummary(&buf, &s)

	assert.Contains(t, buf.String(), "3 rows")
	assert.Contains(t, buf.String(), "Soll total:")
	assert.Contains(t, buf.String(), "Saldo last:")
	assert.Contains(t, buf.String(), "Net change: €1,545.70")

	buf.Reset()
	even := review.New([]string{"Soll", "Haben"}, [][]string{{"5,00", ""}, {"", "5,00"}}).Summary()
	WriteSummary(&buf, &even)
	assert.Contains(t, buf.String(), "Net change: none (EUR)")
}

func TestParseEdit(t *testing.T) {
	tests := []struct {
		in      string
		want    workflow.EditCell
		wantErr bool
	}{
		{in: "1:Soll=20,00", want: workflow.EditCell{Row: 0, Header: "Soll", Value: "20,00"}},
		{in: "3:Verwendungszweck=Miete = Januar", want: workflow.EditCell{Row: 2, Header: "Verwendungszweck", Value: "Miete = Januar"}},
		{in: "2:Haben=", want: workflow.EditCell{Row: 1, Header: "Haben", Value: ""}},
		{in: `1:Soll\=Haben=5,00`, want: workflow.EditCell{Row: 0, Header: "Soll=Haben", Value: "5,00"}},
		{in: `4:a\=b\=c=x=y`, want: workflow.EditCell{Row: 3, Header: "a=b=c", Value: "x=y"}},
		{in: `1:Soll\=1`, wantErr: true},
		{in: "Soll=1", wantErr: true},
		{in: "0:Soll=1", wantErr: true},
		{in: "x:Soll=1", wantErr: true},
		{in: "1:=1", wantErr: true},
		{in: "1:Soll", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEdit(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// scriptedWorkflow answers intents and renders the resulting views.
type scriptedWorkflow struct {
	mu         sync.Mutex
	p          *Presenter
	intents    []workflow.Intent
	confirmErr error
}

func (w *scriptedWorkflow) handle(_ context.Context, in workflow.Intent) error {
	w.mu.Lock()
	w.intents = append(w.intents, in)
	w.mu.Unlock()

	switch in.(type) {
	case workflow.Confirm:
		if w.confirmErr != nil {
			w.p.Render(workflow.View{State: workflow.Failed, Error: w.confirmErr.Error(), CanResume: true, Table: reviewTable()})
			return w.confirmErr
		}
		w.p.Render(workflow.View{State: workflow.Complete})
	case workflow.ResumeReview:
		w.p.Render(workflow.View{State: workflow.Reviewing, Table: reviewTable()})
	case workflow.Delete:
		w.p.Render(workflow.View{State: workflow.Idle})
	}
	return nil
}

func TestReview(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		confirmErr  error
		wantErr     error
		wantIntents []workflow.Intent
	}{
		{
			name:  "edit and confirm",
			input: "show\nset 1:Soll=20,00\nsum\nconfirm\n",
			wantIntents: []workflow.Intent{
				workflow.EditCell{Row: 0, Header: "Soll", Value: "20,00"},
				workflow.Confirm{},
			},
		},
		{
			name:        "delete",
			input:       "delete\n",
			wantIntents: []workflow.Intent{workflow.Delete{}},
		},
		{
			name:    "quit",
			input:   "bogus\nset nonsense\nquit\n",
			wantErr: ErrAborted,
		},
		{
			name:    "end of input",
			input:   "show\n",
			wantErr: ErrAborted,
		},
		{
			name:       "failed confirm resumes review",
			input:      "confirm\nquit\n",
			confirmErr: errors.New("Fehler beim Schreiben der Datei"),
			wantErr:    ErrAborted,
			wantIntents: []workflow.Intent{
				workflow.Confirm{},
				workflow.ResumeReview{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, out, _ := newTestPresenter()
			w := &scriptedWorkflow{p: p, confirmErr: tt.confirmErr}
			p.OnIntent(w.handle)
			p.Render(workflow.View{State: workflow.Reviewing, Table: reviewTable()})

			err := p.Review(context.Background(), strings.NewReader(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantIntents, w.intents)
			assert.Contains(t, out.String(), "02.01.2024")
		})
	}
}
