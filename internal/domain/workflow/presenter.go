package workflow

import (
	"context"

	"github.com/FACorreiaa/kontoexport/internal/domain/upload"
)

// Presenter draws views and reports user intents.
//
// Render is called with the controller locked and must not dispatch intents
// synchronously.
type Presenter interface {
	Render(View)
	OnIntent(IntentHandler)
}

// IntentHandler applies an intent to the workflow.
type IntentHandler func(ctx context.Context, intent Intent) error

// Intent is a user action.
type Intent interface {
	intent()
}

type (
	SelectFile struct {
		File upload.Candidate
	}
	RemoveFile struct{}
	Submit     struct {
		Bank   string
		Format string
	}
	EditCell struct {
		Row    int
		Header string
		Value  string
	}
	Confirm      struct{}
	Delete       struct{}
	Reset        struct{}
	ResumeReview struct{}
)

func (SelectFile) intent()   {}
func (RemoveFile) intent()   {}
func (Submit) intent()       {}
func (EditCell) intent()     {}
func (Confirm) intent()      {}
func (Delete) intent()       {}
func (Reset) intent()        {}
func (ResumeReview) intent() {}
