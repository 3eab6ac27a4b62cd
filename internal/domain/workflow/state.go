// Package workflow runs the upload, conversion, review and finalize flow
// for one statement at a time.
package workflow

// State is the active workflow step. Exactly one is active at a time.
type State int

const (
	Idle State = iota
	Uploading
	AwaitingConversion
	Reviewing
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Uploading:
		return "Uploading"
	case AwaitingConversion:
		return "AwaitingConversion"
	case Reviewing:
		return "Reviewing"
	case Complete:
		return "Complete"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Progress indicator values.
const (
	progressUploading  = 10
	progressPending    = 33
	progressProcessing = 66
	progressDone       = 100
)
