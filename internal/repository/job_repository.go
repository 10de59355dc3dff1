package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/coursetrack-backend/internal/errors"
	"github.com/unclebandit/coursetrack-backend/internal/model"
)

type JobRepositoryInterface interface {
	// Jobs
	CreateJob(job *model.NotificationJob, recipients []*model.Recipient) error
	GetJob(jobID int64) (*model.NotificationJob, error)
	ListJobsByScope(scope string, limit int) ([]*model.NotificationJob, error)
	MarkJobRunning(jobID int64) error
	CompleteJob(jobID int64, completedAt time.Time) error

	// Recipients
	GetRecipients(jobID int64) ([]*model.Recipient, error)
	SetRecipientStatus(recipientID int64, status, lastError string, attempts int) error
	ResetSendingRecipients(jobID int64) (int, error)
	IncrementSentCount(jobID int64) error
	IncrementFailedCount(jobID int64) error

	// Status events
	AppendEvent(jobID int64, message string) error
	GetEvents(jobID int64) ([]*model.StatusEvent, error)
}

type JobRepository struct {
	DB *sql.DB
}

// ====================== Jobs ======================

// CreateJob persists the job and its full recipient set in one
// transaction; the recipient set is fixed from this point on.
func (r *JobRepository) CreateJob(job *model.NotificationJob, recipients []*model.Recipient) error {
	job.CreatedAt = time.Now()
	if job.Status == "" {
		job.Status = model.JobStatusCreated
	}
	job.RecipientCount = len(recipients)

	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO notification_jobs (requester_scope, term, deadline, personal_message, status, recipient_count, sent_count, failed_count, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7)
        RETURNING id
    `
	err = tx.QueryRow(query,
		job.RequesterScope,
		job.Template.Term,
		job.Template.Deadline,
		job.Template.PersonalMessage,
		job.Status,
		job.RecipientCount,
		job.CreatedAt,
	).Scan(&job.ID)
	if err != nil {
		return err
	}

	insert := `
        INSERT INTO job_recipients (job_id, instructor_id, email, display_name, scope_tag, position, delivery_status, attempts, last_error)
        VALUES ($1, $2, $3, $4, $5, $6, 'pending', 0, '')
        RETURNING id
    `
	for i, rcpt := range recipients {
		rcpt.JobID = job.ID
		rcpt.Position = i
		rcpt.DeliveryStatus = model.DeliveryPending
		if err := tx.QueryRow(insert, job.ID, rcpt.InstructorID, rcpt.Email, rcpt.DisplayName, rcpt.ScopeTag, i).Scan(&rcpt.ID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *JobRepository) GetJob(jobID int64) (*model.NotificationJob, error) {
	query := `
        SELECT id, requester_scope, term, deadline, personal_message, status, recipient_count, sent_count, failed_count, created_at, completed_at
        FROM notification_jobs WHERE id=$1
    `
	var j model.NotificationJob
	err := r.DB.QueryRow(query, jobID).Scan(
		&j.ID, &j.RequesterScope,
		&j.Template.Term, &j.Template.Deadline, &j.Template.PersonalMessage,
		&j.Status, &j.RecipientCount, &j.SentCount, &j.FailedCount,
		&j.CreatedAt, &j.CompletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewJobNotFound(jobID)
		}
		return nil, err
	}
	return &j, nil
}

// ListJobsByScope returns jobs visible to the given scope, newest
// first. The institution scope sees every job.
func (r *JobRepository) ListJobsByScope(scope string, limit int) ([]*model.NotificationJob, error) {
	query := `
        SELECT id, requester_scope, term, deadline, personal_message, status, recipient_count, sent_count, failed_count, created_at, completed_at
        FROM notification_jobs WHERE 1=1
    `
	args := []interface{}{}
	argPos := 1

	if scope != model.ScopeInstitution {
		query += fmt.Sprintf(" AND requester_scope=$%d", argPos)
		args = append(args, scope)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", argPos)
	args = append(args, limit)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*model.NotificationJob{}
	for rows.Next() {
		j := &model.NotificationJob{}
		if err := rows.Scan(
			&j.ID, &j.RequesterScope,
			&j.Template.Term, &j.Template.Deadline, &j.Template.PersonalMessage,
			&j.Status, &j.RecipientCount, &j.SentCount, &j.FailedCount,
			&j.CreatedAt, &j.CompletedAt,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) MarkJobRunning(jobID int64) error {
	query := `UPDATE notification_jobs SET status=$1 WHERE id=$2 AND status=$3`
	_, err := r.DB.Exec(query, model.JobStatusRunning, jobID, model.JobStatusCreated)
	return err
}

func (r *JobRepository) CompleteJob(jobID int64, completedAt time.Time) error {
	query := `UPDATE notification_jobs SET status=$1, completed_at=$2 WHERE id=$3 AND status<>$1`
	_, err := r.DB.Exec(query, model.JobStatusCompleted, completedAt, jobID)
	return err
}

// ====================== Recipients ======================

func (r *JobRepository) GetRecipients(jobID int64) ([]*model.Recipient, error) {
	query := `
        SELECT id, job_id, instructor_id, email, display_name, scope_tag, position, delivery_status, attempts, last_error
        FROM job_recipients
        WHERE job_id=$1
        ORDER BY position ASC
    `
	rows, err := r.DB.Query(query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []*model.Recipient{}
	for rows.Next() {
		rc := &model.Recipient{}
		if err := rows.Scan(
			&rc.ID, &rc.JobID, &rc.InstructorID, &rc.Email, &rc.DisplayName,
			&rc.ScopeTag, &rc.Position, &rc.DeliveryStatus, &rc.Attempts, &rc.LastError,
		); err != nil {
			return nil, err
		}
		recipients = append(recipients, rc)
	}
	return recipients, rows.Err()
}

func (r *JobRepository) SetRecipientStatus(recipientID int64, status, lastError string, attempts int) error {
	query := `UPDATE job_recipients SET delivery_status=$1, last_error=$2, attempts=$3 WHERE id=$4`
	_, err := r.DB.Exec(query, status, lastError, attempts, recipientID)
	return err
}

// ResetSendingRecipients moves recipients stranded in "sending" by an
// aborted worker back to "pending" so a restarted worker picks them up.
func (r *JobRepository) ResetSendingRecipients(jobID int64) (int, error) {
	query := `UPDATE job_recipients SET delivery_status=$1 WHERE job_id=$2 AND delivery_status=$3`
	res, err := r.DB.Exec(query, model.DeliveryPending, jobID, model.DeliverySending)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *JobRepository) IncrementSentCount(jobID int64) error {
	query := `UPDATE notification_jobs SET sent_count=sent_count+1 WHERE id=$1`
	_, err := r.DB.Exec(query, jobID)
	return err
}

func (r *JobRepository) IncrementFailedCount(jobID int64) error {
	query := `UPDATE notification_jobs SET failed_count=failed_count+1 WHERE id=$1`
	_, err := r.DB.Exec(query, jobID)
	return err
}

// ====================== Status events ======================

func (r *JobRepository) AppendEvent(jobID int64, message string) error {
	query := `INSERT INTO job_status_events (job_id, timestamp, message) VALUES ($1, $2, $3)`
	_, err := r.DB.Exec(query, jobID, time.Now(), message)
	return err
}

func (r *JobRepository) GetEvents(jobID int64) ([]*model.StatusEvent, error) {
	query := `
        SELECT id, job_id, timestamp, message
        FROM job_status_events
        WHERE job_id=$1
        ORDER BY id ASC
    `
	rows, err := r.DB.Query(query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*model.StatusEvent{}
	for rows.Next() {
		ev := &model.StatusEvent{}
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.Timestamp, &ev.Message); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

var _ JobRepositoryInterface = (*JobRepository)(nil)
