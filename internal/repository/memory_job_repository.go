package repository

import (
	"sync"
	"time"

	appErrors "github.com/unclebandit/coursetrack-backend/internal/errors"
	"github.com/unclebandit/coursetrack-backend/internal/model"
)

// InMemoryJobRepository is a JobRepository backed by process memory.
// Used in development mode and in tests. Reads hand out copies, so a
// poller never observes a half-applied write; the single-writer rule
// (only the job's own worker mutates it) makes per-job writes serial.
type InMemoryJobRepository struct {
	mu sync.RWMutex

	nextJobID       int64
	nextRecipientID int64
	nextEventID     int64

	jobs       map[int64]*model.NotificationJob
	jobOrder   []int64
	recipients map[int64][]*model.Recipient
	events     map[int64][]*model.StatusEvent
}

func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobs:       make(map[int64]*model.NotificationJob),
		recipients: make(map[int64][]*model.Recipient),
		events:     make(map[int64][]*model.StatusEvent),
	}
}

// ====================== Jobs ======================

func (r *InMemoryJobRepository) CreateJob(job *model.NotificationJob, recipients []*model.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextJobID++
	job.ID = r.nextJobID
	job.CreatedAt = time.Now()
	if job.Status == "" {
		job.Status = model.JobStatusCreated
	}
	job.RecipientCount = len(recipients)

	stored := *job
	r.jobs[job.ID] = &stored
	r.jobOrder = append(r.jobOrder, job.ID)

	list := make([]*model.Recipient, 0, len(recipients))
	for i, rcpt := range recipients {
		r.nextRecipientID++
		rcpt.ID = r.nextRecipientID
		rcpt.JobID = job.ID
		rcpt.Position = i
		rcpt.DeliveryStatus = model.DeliveryPending
		copied := *rcpt
		list = append(list, &copied)
	}
	r.recipients[job.ID] = list
	r.events[job.ID] = []*model.StatusEvent{}

	return nil
}

func (r *InMemoryJobRepository) GetJob(jobID int64) (*model.NotificationJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, appErrors.NewJobNotFound(jobID)
	}
	copied := *job
	return &copied, nil
}

func (r *InMemoryJobRepository) ListJobsByScope(scope string, limit int) ([]*model.NotificationJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := []*model.NotificationJob{}
	// jobOrder is creation-ordered; walk it backwards for newest first.
	for i := len(r.jobOrder) - 1; i >= 0 && len(jobs) < limit; i-- {
		job := r.jobs[r.jobOrder[i]]
		if scope != model.ScopeInstitution && job.RequesterScope != scope {
			continue
		}
		copied := *job
		jobs = append(jobs, &copied)
	}
	return jobs, nil
}

func (r *InMemoryJobRepository) MarkJobRunning(jobID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return appErrors.NewJobNotFound(jobID)
	}
	if job.Status == model.JobStatusCreated {
		job.Status = model.JobStatusRunning
	}
	return nil
}

func (r *InMemoryJobRepository) CompleteJob(jobID int64, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return appErrors.NewJobNotFound(jobID)
	}
	if job.Status != model.JobStatusCompleted {
		job.Status = model.JobStatusCompleted
		t := completedAt
		job.CompletedAt = &t
	}
	return nil
}

// ====================== Recipients ======================

func (r *InMemoryJobRepository) GetRecipients(jobID int64) ([]*model.Recipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list, ok := r.recipients[jobID]
	if !ok {
		return nil, appErrors.NewJobNotFound(jobID)
	}
	out := make([]*model.Recipient, 0, len(list))
	for _, rcpt := range list {
		copied := *rcpt
		out = append(out, &copied)
	}
	return out, nil
}

func (r *InMemoryJobRepository) SetRecipientStatus(recipientID int64, status, lastError string, attempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, list := range r.recipients {
		for _, rcpt := range list {
			if rcpt.ID == recipientID {
				rcpt.DeliveryStatus = status
				rcpt.LastError = lastError
				rcpt.Attempts = attempts
				return nil
			}
		}
	}
	return appErrors.NewJobNotFound(0)
}

func (r *InMemoryJobRepository) ResetSendingRecipients(jobID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, rcpt := range r.recipients[jobID] {
		if rcpt.DeliveryStatus == model.DeliverySending {
			rcpt.DeliveryStatus = model.DeliveryPending
			count++
		}
	}
	return count, nil
}

func (r *InMemoryJobRepository) IncrementSentCount(jobID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return appErrors.NewJobNotFound(jobID)
	}
	job.SentCount++
	return nil
}

func (r *InMemoryJobRepository) IncrementFailedCount(jobID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return appErrors.NewJobNotFound(jobID)
	}
	job.FailedCount++
	return nil
}

// ====================== Status events ======================

func (r *InMemoryJobRepository) AppendEvent(jobID int64, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[jobID]; !ok {
		return appErrors.NewJobNotFound(jobID)
	}
	r.nextEventID++
	r.events[jobID] = append(r.events[jobID], &model.StatusEvent{
		ID:        r.nextEventID,
		JobID:     jobID,
		Timestamp: time.Now(),
		Message:   message,
	})
	return nil
}

func (r *InMemoryJobRepository) GetEvents(jobID int64) ([]*model.StatusEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list, ok := r.events[jobID]
	if !ok {
		return nil, appErrors.NewJobNotFound(jobID)
	}
	out := make([]*model.StatusEvent, 0, len(list))
	for _, ev := range list {
		copied := *ev
		out = append(out, &copied)
	}
	return out, nil
}

var _ JobRepositoryInterface = (*InMemoryJobRepository)(nil)
