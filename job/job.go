package job

import (
	"fmt"
	"time"

	"audiograb/settings"
)

// ItemState is the lifecycle of one resolved media item. Transcoded and
// failed are terminal.
type ItemState string

const (
	StatePending    ItemState = "pending"
	StateFetched    ItemState = "fetched"
	StateTranscoded ItemState = "transcoded"
	StateFailed     ItemState = "failed"
)

// ResolvedItem is one media file discovered while resolving a submission's
// URLs. It belongs to exactly one submission and is never shared.
type ResolvedItem struct {
	SourceURL  string
	Title      string
	RawPath    string
	FinalPath  string
	State      ItemState
	FailReason string
}

// Submission is one request to convert a list of URLs. It owns an isolated
// working directory for the duration of the run.
type Submission struct {
	ID        string
	URLs      []string
	Format    settings.Format
	CreatedAt time.Time
	WorkDir   string
}

// Result is the immutable outcome of a submission, produced exactly once.
type Result struct {
	Status     string `json:"status"`
	File       string `json:"file,omitempty"`
	Title      string `json:"title,omitempty"`
	IsPlaylist bool   `json:"is_playlist"`
	Message    string `json:"message,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ValidationError rejects bad input before any external call is made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid submission: %s", e.Reason)
}
