// Package jobstest provides an in-process fake of the conversion service.
package jobstest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/kontoexport/internal/domain/jobs"
)

// Upload records one received upload.
type Upload struct {
	JobID    string
	Filename string
	Bank     string
	Format   string
	Content  []byte
}

// Update records one received edit submission.
type Update struct {
	JobID        string
	Headers      []string
	Transactions []map[string]string
}

// Server is a scripted conversion service. Configure the exported fields
// before the first request; read the recorded calls through the accessors.
type Server struct {
	*httptest.Server

	// Steps are the statuses reported by successive status checks of a job.
	// The last one repeats. Defaults to completed.
	Steps        []jobs.Status
	ErrorMessage string // reported with a failed status
	Artifact     []byte

	UploadCode   int // non-zero rejects uploads with this code
	UploadDetail string
	StatusCode   int // non-zero fails status checks
	DownloadCode int
	UpdateCode   int
	UpdateDetail string
	DeleteCode   int
	LegacyDelete bool // only DELETE /api/download/{id} is routed
	// BareStatus limits status replies to status, bank, output_format and
	// error_message, without the job id.
	BareStatus bool

	mu        sync.Mutex
	jobs      map[string]*jobs.Job
	polls     map[string]int
	uploads   []Upload
	updates   []Update
	deletes   []string
	downloads int
}

// NewServer starts a fake service that is closed with the test.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		jobs:  make(map[string]*jobs.Job),
		polls: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleStatus)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleDeleteJob)
	mux.HandleFunc("GET /api/download/{id}", s.handleDownload)
	mux.HandleFunc("DELETE /api/download/{id}", s.handleDeleteDownload)
	mux.HandleFunc("POST /api/update/{id}", s.handleUpdate)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Uploads returns the uploads received so far.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Updates returns the edit submissions received so far.
func (s *Server) Updates() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Update(nil), s.updates...)
}

// Deletes returns the ids of deleted jobs.
func (s *Server) Deletes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}

// Polls returns how many status checks a job received.
func (s *Server) Polls(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls[jobID]
}

// Downloads returns how many artifact downloads were served.
func (s *Server) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.UploadCode != 0 {
		writeDetail(w, s.UploadCode, s.UploadDetail)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "file missing")
		return
	}
	defer file.Close()
	content, _ := io.ReadAll(file)

	format := r.FormValue("output_format")
	job := &jobs.Job{
		ID:           uuid.NewString(),
		Status:       jobs.StatusPending,
		Bank:         r.FormValue("bank"),
		OutputFormat: format,
		CreatedAt:    jobs.Timestamp{Time: time.Now().UTC()},
		ExpiresAt:    jobs.Timestamp{Time: time.Now().UTC().Add(15 * time.Minute)},
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.uploads = append(s.uploads, Upload{
		JobID:    job.ID,
		Filename: header.Filename,
		Bank:     job.Bank,
		Format:   format,
		Content:  content,
	})
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Job nicht gefunden")
		return
	}
	s.polls[id]++

	if s.StatusCode != 0 {
		writeDetail(w, s.StatusCode, "")
		return
	}

	steps := s.Steps
	if len(steps) == 0 {
		steps = []jobs.Status{jobs.StatusCompleted}
	}
	step := min(s.polls[id], len(steps)) - 1

	job.Status = steps[step]
	switch job.Status {
	case jobs.StatusCompleted:
		job.CompletedAt = jobs.Timestamp{Time: time.Now().UTC()}
		job.DownloadURL = "/api/download/" + id
	case jobs.StatusFailed:
		job.ErrorMessage = s.ErrorMessage
	}

	if s.BareStatus {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        job.Status,
			"bank":          job.Bank,
			"output_format": job.OutputFormat,
			"error_message": job.ErrorMessage,
		})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if s.DownloadCode != 0 {
		writeDetail(w, s.DownloadCode, "Output-Datei nicht gefunden")
		return
	}

	s.mu.Lock()
	_, ok := s.jobs[r.PathValue("id")]
	s.downloads++
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Job nicht gefunden")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	_, _ = w.Write(s.Artifact)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if s.UpdateCode != 0 {
		writeDetail(w, s.UpdateCode, s.UpdateDetail)
		return
	}

	var body struct {
		Headers      []string            `json:"headers"`
		Transactions []map[string]string `json:"transactions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		s.updates = append(s.updates, Update{JobID: id, Headers: body.Headers, Transactions: body.Transactions})
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Job nicht gefunden")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"job_id":        id,
		"status":        string(jobs.StatusCompleted),
		"message":       "Transaktionen aktualisiert",
		"bank":          job.Bank,
		"output_format": job.OutputFormat,
	})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if s.LegacyDelete {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	s.deleteJob(w, r.PathValue("id"))
}

func (s *Server) handleDeleteDownload(w http.ResponseWriter, r *http.Request) {
	s.deleteJob(w, r.PathValue("id"))
}

func (s *Server) deleteJob(w http.ResponseWriter, id string) {
	if s.DeleteCode != 0 {
		writeDetail(w, s.DeleteCode, "")
		return
	}

	s.mu.Lock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	if ok {
		s.deletes = append(s.deletes, id)
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Job nicht gefunden")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Job und alle Daten erfolgreich gelöscht"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	if detail == "" {
		w.WriteHeader(code)
		return
	}
	writeJSON(w, code, map[string]string{"detail": detail})
}
