// Package jobs talks to the remote conversion service.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/kontoexport/internal/domain/banks"
	"github.com/FACorreiaa/kontoexport/internal/domain/upload"
	"github.com/FACorreiaa/kontoexport/pkg/config"
	"github.com/FACorreiaa/kontoexport/pkg/metrics"
)

const tracerName = "github.com/FACorreiaa/kontoexport/internal/domain/jobs"

// Client issues requests against the conversion service. It keeps no
// workflow state between calls.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a client for cfg.BaseURL. m may be nil.
func NewClient(cfg config.APIConfig, logger *slog.Logger, m *metrics.Metrics) *Client {
	limit := rate.Limit(cfg.RateLimitPerSecond)
	if cfg.RateLimitPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(limit, max(cfg.RateLimitBurst, 1)),
		tracer:  otel.Tracer(tracerName),
		logger:  logger,
		metrics: m,
	}
}

// Submit uploads a validated PDF and returns the created job.
func (c *Client) Submit(ctx context.Context, file upload.Candidate, bank, outputFormat string) (*Job, error) {
	if bank == "" {
		bank = banks.Auto
	}
	if outputFormat == "" {
		outputFormat = FormatXLSX
	}

	body, contentType, err := multipartBody(file, bank, outputFormat)
	if err != nil {
		return nil, newRequestError(ErrUpload, "upload", 0, "", err)
	}

	resp, err := c.send(ctx, "upload", ErrUpload, http.MethodPost, "/api/upload", body, contentType)
	if err != nil {
		return nil, err
	}

	job, err := c.decodeJob(resp, ErrUpload, "upload")
	if err != nil {
		return nil, err
	}

	c.logger.Info("upload accepted",
		slog.String("job_id", job.ID),
		slog.String("file", file.Name),
		slog.String("bank", bank),
		slog.String("format", outputFormat))
	return job, nil
}

func multipartBody(file upload.Candidate, bank, outputFormat string) (*bytes.Buffer, string, error) {
	if file.Open == nil {
		return nil, "", fmt.Errorf("file %s has no content", file.Name)
	}

	src, err := file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", file.Name, err)
	}
	defer src.Close()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	part, err := w.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", file.Name, err)
	}
	if err := w.WriteField("bank", bank); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("output_format", outputFormat); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}

	return buf, w.FormDataContentType(), nil
}

// FetchStatus returns the current job record.
func (c *Client) FetchStatus(ctx context.Context, jobID string) (*Job, error) {
	resp, err := c.send(ctx, "status", ErrStatus, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, "")
	if err != nil {
		return nil, err
	}
	return c.decodeJob(resp, ErrStatus, "status")
}

// FetchResult downloads the converted artifact.
func (c *Client) FetchResult(ctx context.Context, jobID string) ([]byte, error) {
	return c.send(ctx, "download", ErrDownload, http.MethodGet, "/api/download/"+url.PathEscape(jobID), nil, "")
}

// SubmitEdits replaces the job's result with the reviewed rows.
func (c *Client) SubmitEdits(ctx context.Context, jobID string, headers []string, rows []map[string]string) (*Job, error) {
	if rows == nil {
		rows = []map[string]string{}
	}
	payload, err := json.Marshal(updateRequest{Headers: headers, Transactions: rows})
	if err != nil {
		return nil, newRequestError(ErrUpdate, "update", 0, "", err)
	}

	resp, err := c.send(ctx, "update", ErrUpdate, http.MethodPost, "/api/update/"+url.PathEscape(jobID),
		bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}

	job, err := c.decodeJob(resp, ErrUpdate, "update")
	if err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = jobID
	}

	c.logger.Info("edits saved", slog.String("job_id", jobID), slog.Int("rows", len(rows)))
	return job, nil
}

// DeleteJob removes the job and its files from the service. Servers that do
// not route DELETE /api/jobs/{id} are retried on /api/download/{id}.
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	id := url.PathEscape(jobID)

	_, err := c.send(ctx, "delete", ErrDelete, http.MethodDelete, "/api/jobs/"+id, nil, "")
	if err == nil {
		return nil
	}

	var rerr *RequestError
	if !errors.As(err, &rerr) || (rerr.StatusCode != http.StatusNotFound && rerr.StatusCode != http.StatusMethodNotAllowed) {
		return err
	}

	c.logger.Debug("delete route unavailable, trying download route",
		slog.String("job_id", jobID), slog.Int("status", rerr.StatusCode))
	_, err = c.send(ctx, "delete", ErrDelete, http.MethodDelete, "/api/download/"+id, nil, "")
	return err
}

// DownloadURL returns the absolute artifact URL for a job.
func (c *Client) DownloadURL(jobID string) string {
	return c.baseURL + "/api/download/" + url.PathEscape(jobID)
}

// SuggestedFilename returns kontoauszug_<first 8 chars of id>.<format>.
func SuggestedFilename(jobID, format string) string {
	if format == "" {
		format = FormatXLSX
	}
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("kontoauszug_%s.%s", short, format)
}

// send performs one request and returns the body of a 2xx response.
// Everything else becomes a *RequestError of the given kind.
func (c *Client) send(ctx context.Context, op string, kind error, method, path string, body io.Reader, contentType string) (_ []byte, err error) {
	started := time.Now()
	target := c.baseURL + path
	requestID := uuid.NewString()

	ctx, span := c.tracer.Start(ctx, "jobs."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", target),
		attribute.String("request.id", requestID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		c.metrics.ObserveRequest(op, started, err)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, newRequestError(kind, op, 0, "", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, newRequestError(kind, op, 0, "", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			slog.String("op", op), slog.String("request_id", requestID), slog.Any("error", err))
		return nil, newRequestError(kind, op, 0, "", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newRequestError(kind, op, resp.StatusCode, "", fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := serverMessage(data)
		c.logger.Warn("request rejected",
			slog.String("op", op),
			slog.String("request_id", requestID),
			slog.Int("status", resp.StatusCode),
			slog.String("detail", msg))
		return nil, newRequestError(kind, op, resp.StatusCode, msg, nil)
	}

	c.logger.Debug("request done",
		slog.String("op", op),
		slog.String("request_id", requestID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(started)))
	return data, nil
}

func (c *Client) decodeJob(data []byte, kind error, op string) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, newRequestError(kind, op, 0, "", fmt.Errorf("failed to decode job: %w", err))
	}

	for field, ts := range map[string]Timestamp{
		"created_at":   job.CreatedAt,
		"completed_at": job.CompletedAt,
		"expires_at":   job.ExpiresAt,
	} {
		if raw := ts.Unparsed(); raw != "" {
			c.logger.Warn("ignoring unreadable timestamp",
				slog.String("op", op),
				slog.String("job_id", job.ID),
				slog.String("field", field),
				slog.String("value", raw))
		}
	}
	return &job, nil
}
