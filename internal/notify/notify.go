// Package notify defines the fire-and-forget notification surface for
// submission outcomes. It replaces string-keyed hook dispatch with a typed
// event payload published to an interface.
package notify

import "context"

// Event names published on submission outcomes.
const (
	EventArchived      = "content.archived"
	EventArchiveFailed = "content.archive_failed"
)

// SubmissionEvent is the payload external collaborators receive.
type SubmissionEvent struct {
	Event      string `json:"event"`
	ContentID  int64  `json:"content_id,omitempty"`
	SourceURL  string `json:"source_url"`
	ArchiveURL string `json:"archive_url,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Publisher delivers events to interested collaborators. Delivery is
// best-effort; the orchestrator never blocks a submission on it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
