package jobs

import (
	"bytes"
	"encoding/json"
	"time"
)

// Status is the server-side state of a conversion job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether polling should stop.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Output formats accepted by the service.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// Job is the client's read-only copy of a conversion job record.
type Job struct {
	ID           string    `json:"job_id"`
	Status       Status    `json:"status"`
	Bank         string    `json:"bank,omitempty"`
	OutputFormat string    `json:"output_format"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DownloadURL  string    `json:"download_url,omitempty"`
	Message      string    `json:"message,omitempty"`
	CreatedAt    Timestamp `json:"created_at"`
	CompletedAt  Timestamp `json:"completed_at"`
	ExpiresAt    Timestamp `json:"expires_at"`
}

// Timestamp accepts RFC 3339 as well as the zone-less ISO timestamps the
// service writes. Zone-less values are taken as UTC. A value in any other
// shape leaves the time zero and is kept in Unparsed, so an odd timestamp
// never rejects the whole job.
type Timestamp struct {
	time.Time
	raw string
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time, t.raw = time.Time{}, ""
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		t.raw = string(data)
		return nil
	}
	if s == "" {
		return nil
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	t.raw = s
	return nil
}

// Unparsed returns the received value when it could not be read as a time.
func (t Timestamp) Unparsed() string {
	return t.raw
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// updateRequest is the body of POST /api/update/{id}.
type updateRequest struct {
	Headers      []string            `json:"headers"`
	Transactions []map[string]string `json:"transactions"`
}

// errorBody covers both error shapes the service returns.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}
