// Package archive defines core types shared across subsystems and the
// client for the remote archive service.
package archive

import "time"

// Status represents the lifecycle state of a submission record.
type Status string

// Submission status values persisted in the submission store.
const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether a status never transitions again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Strategy selects how a URL is submitted to the archive service.
type Strategy string

// Submission strategies.
const (
	StrategySimple Strategy = "simple"
	StrategySigned Strategy = "signed"
)

// ContentItem is the read-only view of a publishable unit owned by the host
// content system. The service never mutates host content.
type ContentItem struct {
	ID       int64  `json:"content_id"`
	Type     string `json:"content_type"`
	Status   string `json:"status"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Excluded bool   `json:"excluded,omitempty"`
}

// Published reports whether the item is in the published state.
func (c ContentItem) Published() bool {
	return c.Status == "publish"
}

// SubmissionRecord is one row of the append-only submission history. Exactly
// one record exists per attempt; the current status of a content item is the
// most recent record by SubmittedAt.
type SubmissionRecord struct {
	ID              int64      `json:"id"`
	ContentID       int64      `json:"content_id"`
	SourceURL       string     `json:"source_url"`
	Status          Status     `json:"status"`
	ArchiveURL      string     `json:"archive_url,omitempty"`
	ResponsePayload string     `json:"response_payload,omitempty"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	// DueAt is set on pending records created for delayed submissions so
	// the queue sweep can find them after a restart.
	DueAt *time.Time `json:"due_at,omitempty"`
}

// Credentials hold the symmetric key pair for the signed strategy.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Complete reports whether both credential fields are present.
func (c Credentials) Complete() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// Outcome is the classified result of one remote submission attempt.
type Outcome struct {
	Success    bool
	ArchiveURL string
	StatusCode int
	Kind       ErrorKind
	Message    string
}

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}

// Stats aggregates submission counts, computed on demand by the store.
type Stats struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
	Pending int64 `json:"pending"`
}
