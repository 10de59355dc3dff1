// internal/model/job.go
package model

import "time"

// Job status values. A job never moves backwards and never fails as a
// whole; partial delivery still ends in "completed".
const (
	JobStatusCreated   = "created"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
)

// Recipient delivery status values.
const (
	DeliveryPending = "pending"
	DeliverySending = "sending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// ScopeInstitution is the requester scope that may message and view
// every program's recipients. Any other scope value is a program id.
const ScopeInstitution = "institution"

// MaxPersonalMessageLen bounds the optional free-text portion of a
// reminder.
const MaxPersonalMessageLen = 500

// TemplateFields carries the variable parts of the reminder template.
// All fields are optional.
type TemplateFields struct {
	Term            string `db:"term" json:"term,omitempty"`
	Deadline        string `db:"deadline" json:"deadline,omitempty"`
	PersonalMessage string `db:"personal_message" json:"personal_message,omitempty"`
}

// NotificationJob is one bulk-reminder request. Immutable after
// creation except for the counters, status and completed_at, which are
// written only by the dispatch worker bound to this job.
type NotificationJob struct {
	ID             int64          `db:"id" json:"id"`
	RequesterScope string         `db:"requester_scope" json:"requester_scope"`
	Template       TemplateFields `json:"template"`
	Status         string         `db:"status" json:"status"`
	RecipientCount int            `db:"recipient_count" json:"recipient_count"`
	SentCount      int            `db:"sent_count" json:"sent_count"`
	FailedCount    int            `db:"failed_count" json:"failed_count"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// Recipient is one addressee within a job. Recipients are fixed at job
// creation and belong to exactly one job.
type Recipient struct {
	ID             int64  `db:"id" json:"id"`
	JobID          int64  `db:"job_id" json:"job_id"`
	InstructorID   string `db:"instructor_id" json:"instructor_id"`
	Email          string `db:"email" json:"email"`
	DisplayName    string `db:"display_name" json:"display_name"`
	ScopeTag       string `db:"scope_tag" json:"scope_tag"`
	Position       int    `db:"position" json:"position"`
	DeliveryStatus string `db:"delivery_status" json:"delivery_status"`
	Attempts       int    `db:"attempts" json:"attempts"`
	LastError      string `db:"last_error" json:"last_error,omitempty"`
}

// StatusEvent is one append-only human-readable progress line for a
// job. Events are never mutated.
type StatusEvent struct {
	ID        int64     `db:"id" json:"id"`
	JobID     int64     `db:"job_id" json:"job_id"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	Message   string    `db:"message" json:"message"`
}
