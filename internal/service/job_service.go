// internal/service/job_service.go
package service

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/coursetrack-backend/internal/auth"
	appErrors "github.com/unclebandit/coursetrack-backend/internal/errors"
	"github.com/unclebandit/coursetrack-backend/internal/model"
	"github.com/unclebandit/coursetrack-backend/internal/repository"
)

// ListRecentLimit caps the history listing.
const ListRecentLimit = 50

// JobService is the public entry point of the engine: it validates
// requests, resolves recipients, persists the job and hands it to a
// dispatcher. Job creation is the only caller-facing mutation; all
// later state changes come from the dispatch worker.
type JobService struct {
	Jobs       repository.JobRepositoryInterface
	Resolver   *RecipientResolver
	Dispatcher Dispatcher
	Log        zerolog.Logger
}

// JobSnapshot is the full poll view of one job.
type JobSnapshot struct {
	JobID          string                `json:"job_id"`
	Status         string                `json:"status"`
	Template       model.TemplateFields  `json:"template"`
	RecipientCount int                   `json:"recipient_count"`
	SentCount      int                   `json:"sent_count"`
	FailedCount    int                   `json:"failed_count"`
	PendingCount   int                   `json:"pending_count"`
	CreatedAt      time.Time             `json:"created_at"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
	Recipients     []RecipientStatus     `json:"recipients"`
	Events         []*model.StatusEvent  `json:"events"`
}

// RecipientStatus is the per-recipient slice of a snapshot.
type RecipientStatus struct {
	InstructorID   string `json:"instructor_id"`
	Email          string `json:"email"`
	DisplayName    string `json:"display_name"`
	DeliveryStatus string `json:"delivery_status"`
	Attempts       int    `json:"attempts"`
	LastError      string `json:"last_error,omitempty"`
}

// JobSummary is the history-listing view of one job.
type JobSummary struct {
	JobID          string     `json:"job_id"`
	Status         string     `json:"status"`
	RecipientCount int        `json:"recipient_count"`
	SentCount      int        `json:"sent_count"`
	FailedCount    int        `json:"failed_count"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// CreateJob validates the request, resolves the authorized recipient
// set, persists the job and starts dispatch. Returns immediately; the
// caller polls for progress.
func (s *JobService) CreateJob(requesterScope string, instructorIDs []string, fields model.TemplateFields) (*model.NotificationJob, error) {
	if len(fields.PersonalMessage) > model.MaxPersonalMessageLen {
		return nil, appErrors.NewInvalidRequest(
			fmt.Sprintf("personal_message exceeds %d characters", model.MaxPersonalMessageLen))
	}

	recipients, rejected, err := s.Resolver.Resolve(requesterScope, instructorIDs)
	if err != nil {
		return nil, err
	}

	job := &model.NotificationJob{
		RequesterScope: requesterScope,
		Template:       fields,
		Status:         model.JobStatusCreated,
	}
	if err := s.Jobs.CreateJob(job, recipients); err != nil {
		return nil, err
	}

	if err := s.Jobs.AppendEvent(job.ID, fmt.Sprintf("Queued %d reminder(s) for delivery.", len(recipients))); err != nil {
		return nil, err
	}

	if err := s.Dispatcher.Dispatch(job.ID); err != nil {
		return nil, err
	}

	s.Log.Info().
		Int64("job_id", job.ID).
		Str("scope", requesterScope).
		Int("recipients", len(recipients)).
		Int("rejected", len(rejected)).
		Msg("job created")
	return job, nil
}

// GetStatus returns the latest committed snapshot of a job, subject to
// the visibility rule: the creating scope or an institution-wide scope.
func (s *JobService) GetStatus(callerScope string, jobID int64) (*JobSnapshot, error) {
	job, err := s.Jobs.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if !auth.ScopeCovers(callerScope, job.RequesterScope) {
		return nil, appErrors.NewForbidden(jobID)
	}

	recipients, err := s.Jobs.GetRecipients(jobID)
	if err != nil {
		return nil, err
	}
	events, err := s.Jobs.GetEvents(jobID)
	if err != nil {
		return nil, err
	}

	snap := &JobSnapshot{
		JobID:          FormatJobID(job.ID),
		Status:         job.Status,
		Template:       job.Template,
		RecipientCount: job.RecipientCount,
		SentCount:      job.SentCount,
		FailedCount:    job.FailedCount,
		PendingCount:   job.RecipientCount - job.SentCount - job.FailedCount,
		CreatedAt:      job.CreatedAt,
		CompletedAt:    job.CompletedAt,
		Events:         events,
	}
	for _, rcpt := range recipients {
		snap.Recipients = append(snap.Recipients, RecipientStatus{
			InstructorID:   rcpt.InstructorID,
			Email:          rcpt.Email,
			DisplayName:    rcpt.DisplayName,
			DeliveryStatus: rcpt.DeliveryStatus,
			Attempts:       rcpt.Attempts,
			LastError:      rcpt.LastError,
		})
	}
	return snap, nil
}

// ListRecent returns jobs visible to the caller's scope, newest first.
func (s *JobService) ListRecent(callerScope string) ([]JobSummary, error) {
	jobs, err := s.Jobs.ListJobsByScope(callerScope, ListRecentLimit)
	if err != nil {
		return nil, err
	}

	summaries := []JobSummary{}
	for _, job := range jobs {
		summaries = append(summaries, JobSummary{
			JobID:          FormatJobID(job.ID),
			Status:         job.Status,
			RecipientCount: job.RecipientCount,
			SentCount:      job.SentCount,
			FailedCount:    job.FailedCount,
			CreatedAt:      job.CreatedAt,
			CompletedAt:    job.CompletedAt,
		})
	}
	return summaries, nil
}

// FormatJobID renders a job id for the API. Ids are opaque to callers
// but creation-ordered internally.
func FormatJobID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseJobID is the inverse of FormatJobID; the bool is false for
// strings that cannot name a job.
func ParseJobID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
