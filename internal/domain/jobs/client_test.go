package jobs_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/kontoexport/internal/domain/jobs"
	"github.com/FACorreiaa/kontoexport/internal/domain/jobs/jobstest"
	"github.com/FACorreiaa/kontoexport/internal/domain/upload"
	"github.com/FACorreiaa/kontoexport/pkg/config"
	"github.com/FACorreiaa/kontoexport/pkg/metrics"
)

func newClient(t *testing.T, baseURL string, m *metrics.Metrics) *jobs.Client {
	t.Helper()
	cfg := config.APIConfig{
		BaseURL:            baseURL,
		RequestTimeout:     5 * time.Second,
		RateLimitPerSecond: 100,
		RateLimitBurst:     100,
	}
	return jobs.NewClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), m)
}

func pdfCandidate(content string) upload.Candidate {
	return upload.NewCandidate("auszug.pdf", int64(len(content)), func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte(content))), nil
	})
}

func TestSubmit(t *testing.T) {
	srv := jobstest.NewServer(t)
	client := newClient(t, srv.URL, nil)

	job, err := client.Submit(context.Background(), pdfCandidate("%PDF-1.4"), "sparkasse", jobs.FormatCSV)
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, jobs.StatusPending, job.Status)
	assert.False(t, job.ExpiresAt.IsZero())

	uploads := srv.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "auszug.pdf", uploads[0].Filename)
	assert.Equal(t, "sparkasse", uploads[0].Bank)
	assert.Equal(t, "csv", uploads[0].Format)
	assert.Equal(t, []byte("%PDF-1.4"), uploads[0].Content)
}

func TestSubmit_Defaults(t *testing.T) {
	srv := jobstest.NewServer(t)
	client := newClient(t, srv.URL, nil)

	_, err := client.Submit(context.Background(), pdfCandidate("x"), "", "")
	require.NoError(t, err)

	uploads := srv.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "auto", uploads[0].Bank)
	assert.Equal(t, "xlsx", uploads[0].Format)
}

func TestSubmit_ServerDetail(t *testing.T) {
	srv := jobstest.NewServer(t)
	srv.UploadCode = http.StatusTooManyRequests
	srv.UploadDetail = "Rate limit exceeded. Max 10 uploads per hour."
	client := newClient(t, srv.URL, nil)

	_, err := client.Submit(context.Background(), pdfCandidate("x"), "auto", "xlsx")
	require.Error(t, err)
	assert.ErrorIs(t, err, jobs.ErrUpload)

	var rerr *jobs.RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusTooManyRequests, rerr.StatusCode)
	assert.Equal(t, "Rate limit exceeded. Max 10 uploads per hour.", rerr.Message)
}

func TestSubmit_GenericMessageWithoutDetail(t *testing.T) {
	srv := jobstest.NewServer(t)
	srv.UploadCode = http.StatusInternalServerError
	client := newClient(t, srv.URL, nil)

	_, err := client.Submit(context.Background(), pdfCandidate("x"), "auto", "xlsx")

	var rerr *jobs.RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "upload failed", rerr.Message)
}

func TestSubmit_NetworkFailure(t *testing.T) {
	srv := jobstest.NewServer(t)
	client := newClient(t, srv.URL, nil)
	srv.Close()

	_, err := client.Submit(context.Background(), pdfCandidate("x"), "auto", "xlsx")
	require.Error(t, err)
	assert.ErrorIs(t, err, jobs.ErrUpload)

	var rerr *jobs.RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Zero(t, rerr.StatusCode)
	assert.NotNil(t, rerr.Err)
	assert.True(t, strings.HasPrefix(rerr.Message, "upload failed: "), rerr.Message)
	assert.Contains(t, rerr.Message, "connect")
	assert.NotContains(t, rerr.Message, srv.URL)
	assert.Equal(t, "upload: "+rerr.Message, err.Error())
}

func TestRequestError_Message(t *testing.T) {
	tests := []struct {
		name    string
		err     *jobs.RequestError
		wantMsg string
		wantErr string
	}{
		{
			name:    "transport failure carries the cause",
			err:     jobs.NewRequestErrorForTest(jobs.ErrStatus, "status", 0, "", &url.Error{Op: "Get", URL: "http://x/api/jobs/1", Err: errors.New("i/o timeout")}),
			wantMsg: "status check failed: i/o timeout",
			wantErr: "status: status check failed: i/o timeout",
		},
		{
			name:    "server detail is kept verbatim",
			err:     jobs.NewRequestErrorForTest(jobs.ErrUpload, "upload", 429, "Rate limit exceeded", nil),
			wantMsg: "Rate limit exceeded",
			wantErr: "upload (HTTP 429): Rate limit exceeded",
		},
		{
			name:    "unreadable body after a response",
			err:     jobs.NewRequestErrorForTest(jobs.ErrDownload, "download", 200, "", errors.New("unexpected EOF")),
			wantMsg: "download failed",
			wantErr: "download (HTTP 200): download failed: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Message)
			assert.Equal(t, tt.wantErr, tt.err.Error())
		})
	}
}

func TestSubmit_OpenFailure(t *testing.T) {
	client := newClient(t, "http://127.0.0.1:1", nil)
	file := upload.NewCandidate("a.pdf", 1, func() (io.ReadCloser, error) {
		return nil, errors.New("permission denied")
	})

	_, err := client.Submit(context.Background(), file, "auto", "xlsx")
	assert.ErrorIs(t, err, jobs.ErrUpload)
}

func TestFetchStatus(t *testing.T) {
	srv := jobstest.NewServer(t)
	srv.Steps = []jobs.Status{jobs.StatusProcessing, jobs.StatusFailed}
	srv.ErrorMessage = "Keine Transaktionen gefunden"
	client := newClient(t, srv.URL, nil)
	ctx := context.Background()

	job, err := client.Submit(ctx, pdfCandidate("x"), "ing", "xlsx")
	require.NoError(t, err)

	got, err := client.FetchStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusProcessing, got.Status)
	assert.False(t, got.Status.IsTerminal())

	got, err = client.FetchStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.True(t, got.Status.IsTerminal())
	assert.Equal(t, "Keine Transaktionen gefunden", got.ErrorMessage)
}

func TestFetchStatus_UnknownJob(t *testing.T) {
	srv := jobstest.NewServer(t)
	client := newClient(t, srv.URL, nil)

	_, err := client.FetchStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, jobs.ErrStatus)
	assert.NotErrorIs(t, err, jobs.ErrUpload)
}

func TestFetchResult(t *testing.T) {
	srv := jobstest.NewServer(t)
	srv.Artifact = []byte("Datum,Soll\n01.01.2024,1\n")
	client := newClient(t, srv.URL, nil)
	ctx := context.Background()

	job, err := client.Submit(ctx, pdfCandidate("x"), "auto", "csv")
	require.NoError(t, err)

	data, err := client.FetchResult(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, srv.Artifact, data)

	srv.DownloadCode = http.StatusNotFound
	_, err = client.FetchResult(ctx, job.ID)
	assert.ErrorIs(t, err, jobs.ErrDownload)
}

func TestSubmitEdits(t *testing.T) {
	srv := jobstest.NewServer(t)
	client := newClient(t, srv.URL, nil)
	ctx := context.Background()

	job, err := client.Submit(ctx, pdfCandidate("x"), "auto", "xlsx")
	require.NoError(t, err)

	headers := []string{"Datum", "Soll", "Haben"}
	rows := []map[string]string{{"Datum": "2024-01-01", "Soll": "20.00", "Haben": ""}}

	updated, err := client.SubmitEdits(ctx, job.ID, headers, rows)
	require.NoError(t, err)
	assert.Equal(t, job.ID, updated.ID)
	assert.Equal(t, jobs.StatusCompleted, updated.Status)
	assert.NotEmpty(t, updated.Message)

	updates := srv.Updates()
	require.Len(t, updates, 1)
	assert.Equal(t, headers, updates[0].Headers)
	assert.Equal(t, rows, updates[0].Transactions)
}

func TestSubmitEdits_Rejected(t *testing.T) {
	srv := jobstest.NewServer(t)
	srv.UpdateCode = http.StatusBadRequest
	srv.UpdateDetail = "Keine Transaktionsdaten zum Speichern vorhanden"
	client := newClient(t, srv.URL, nil)

	_, err := client.SubmitEdits(context.Background(), "abc", []string{"Datum"}, nil)

	var rerr *jobs.RequestError
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, err, jobs.ErrUpdate)
	assert.Equal(t, srv.UpdateDetail, rerr.Message)
}

func TestDeleteJob(t *testing.T) {
	tests := []struct {
		name   string
		legacy bool
	}{
		{"jobs route", false},
		{"download route fallback", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := jobstest.NewServer(t)
			srv.LegacyDelete = tt.legacy
			client := newClient(t, srv.URL, nil)
			ctx := context.Background()

			job, err := client.Submit(ctx, pdfCandidate("x"), "auto", "xlsx")
			require.NoError(t, err)

			require.NoError(t, client.DeleteJob(ctx, job.ID))
			assert.Equal(t, []string{job.ID}, srv.Deletes())
		})
	}
}

func TestDeleteJob_ServerError(t *testing.T) {
	srv := jobstest.NewServer(t)
	srv.DeleteCode = http.StatusInternalServerError
	client := newClient(t, srv.URL, nil)

	err := client.DeleteJob(context.Background(), "abc")
	assert.ErrorIs(t, err, jobs.ErrDelete)
	assert.Empty(t, srv.Deletes())
}

func TestDownloadURLAndFilename(t *testing.T) {
	client := newClient(t, "http://localhost:8000/", nil)

	assert.Equal(t, "http://localhost:8000/api/download/3f2a9c1e-0000", client.DownloadURL("3f2a9c1e-0000"))
	assert.Equal(t, "kontoauszug_3f2a9c1e.xlsx", jobs.SuggestedFilename("3f2a9c1e-0000", ""))
	assert.Equal(t, "kontoauszug_3f2a9c1e.csv", jobs.SuggestedFilename("3f2a9c1e-0000", "csv"))
	assert.Equal(t, "kontoauszug_abc.xlsx", jobs.SuggestedFilename("abc", "xlsx"))
}

func TestClientRecordsMetrics(t *testing.T) {
	srv := jobstest.NewServer(t)
	m := metrics.New()
	client := newClient(t, srv.URL, m)

	_, err := client.FetchStatus(context.Background(), "missing")
	require.Error(t, err)

	count, err := testutil.GatherAndCount(m.Registry(), "kontoexport_api_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     time.Time
		unparsed string
	}{
		{"zone-less iso", `"2024-05-01T10:15:30.123456"`, time.Date(2024, 5, 1, 10, 15, 30, 123456000, time.UTC), ""},
		{"rfc3339 offset", `"2024-05-01T10:15:30+02:00"`, time.Date(2024, 5, 1, 8, 15, 30, 0, time.UTC), ""},
		{"offset without colon", `"2024-05-01T10:15:30+0100"`, time.Date(2024, 5, 1, 9, 15, 30, 0, time.UTC), ""},
		{"space separated", `"2024-05-01 10:15:30"`, time.Date(2024, 5, 1, 10, 15, 30, 0, time.UTC), ""},
		{"date only", `"2024-05-01"`, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), ""},
		{"null", `null`, time.Time{}, ""},
		{"empty", `""`, time.Time{}, ""},
		{"unknown text", `"yesterday"`, time.Time{}, "yesterday"},
		{"number", `1714558530`, time.Time{}, "1714558530"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := jobs.Timestamp{Time: time.Now()}
			require.NoError(t, ts.UnmarshalJSON([]byte(tt.input)))
			assert.True(t, tt.want.Equal(ts.Time), "got %v", ts.Time)
			assert.Equal(t, tt.unparsed, ts.Unparsed())
		})
	}
}

func TestFetchStatus_UnreadableTimestampsAreIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"job_id":"abc","status":"completed","output_format":"csv",`+
			`"created_at":"01.05.2024 10:15","expires_at":"2024-05-01T10:30:00+0200"}`)
	}))
	defer srv.Close()

	job, err := newClient(t, srv.URL, nil).FetchStatus(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.True(t, job.CreatedAt.IsZero())
	assert.Equal(t, "01.05.2024 10:15", job.CreatedAt.Unparsed())
	assert.True(t, time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC).Equal(job.ExpiresAt.Time))
}
