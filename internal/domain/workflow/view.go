package workflow

import (
	"github.com/FACorreiaa/kontoexport/internal/domain/jobs"
	"github.com/FACorreiaa/kontoexport/internal/domain/review"
)

// StagedFile describes the file waiting to be uploaded.
type StagedFile struct {
	Name      string
	SizeBytes int64
	Size      string // human readable
}

// View is everything a presenter needs to draw the current state. It is a
// copy; changing it has no effect on the controller.
type View struct {
	State   State
	Session uint64

	File       *StagedFile
	Job        *jobs.Job
	BankName   string
	Progress   int
	StatusText string

	// Set while Reviewing, and while Failed if the review can be resumed.
	Table   *review.Table
	Summary *review.Summary
	// PlaceholderData marks a table made of sample rows because the
	// conversion result could not be read.
	PlaceholderData bool
	Warning         string

	Error     string
	CanResume bool

	// Set in Complete.
	DownloadURL string
	Filename    string
}
