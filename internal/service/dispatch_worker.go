// internal/service/dispatch_worker.go
package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/unclebandit/coursetrack-backend/internal/model"
	"github.com/unclebandit/coursetrack-backend/internal/repository"
	"github.com/unclebandit/coursetrack-backend/internal/sender"
)

// DispatchConfig holds the delivery policy knobs. Whether pacing is
// per job or shared across all jobs depends on whether Limiter is set
// on the worker; the provider's limit semantics are not settled, so
// both stay configurable.
type DispatchConfig struct {
	// PaceInterval is the minimum gap between successive recipient
	// sends within one job.
	PaceInterval time.Duration
	// MaxAttempts is the total send attempts per recipient, including
	// the first.
	MaxAttempts int
	// BackoffBase is the delay before the first retry; it doubles on
	// each further retry (5s, 10s, 20s with the default).
	BackoffBase time.Duration
}

func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		PaceInterval: 10 * time.Second,
		MaxAttempts:  3,
		BackoffBase:  5 * time.Second,
	}
}

// DispatchWorker drives one job's recipients to a terminal delivery
// status. One instance runs per job; it is the only writer of that
// job's counters, status and recipient rows.
type DispatchWorker struct {
	Jobs   repository.JobRepositoryInterface
	Sender sender.Sender
	Config DispatchConfig
	// Limiter, when set, is shared across all jobs in the process and
	// replaces the per-job pacing derived from Config.PaceInterval.
	Limiter *rate.Limiter
	Log     zerolog.Logger
}

// Run processes the job's pending recipients in creation order and
// marks the job completed once every recipient is terminal. Per-
// recipient failures never fail the job; the only errors returned are
// store failures and context cancellation.
func (w *DispatchWorker) Run(ctx context.Context, jobID int64) error {
	cfg := w.Config
	if cfg.PaceInterval <= 0 {
		cfg.PaceInterval = DefaultDispatchConfig().PaceInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultDispatchConfig().MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultDispatchConfig().BackoffBase
	}

	job, err := w.Jobs.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.Status == model.JobStatusCompleted {
		return nil
	}

	// Recipients stranded in "sending" by an aborted worker are
	// resumable; no send receipt exists for them, so they go back to
	// pending.
	if n, err := w.Jobs.ResetSendingRecipients(jobID); err != nil {
		return err
	} else if n > 0 {
		w.Log.Warn().Int64("job_id", jobID).Int("reset", n).Msg("reset stranded recipients to pending")
	}

	if err := w.Jobs.MarkJobRunning(jobID); err != nil {
		return err
	}

	recipients, err := w.Jobs.GetRecipients(jobID)
	if err != nil {
		return err
	}

	limiter := w.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(cfg.PaceInterval), 1)
	}

	sent := job.SentCount
	failed := job.FailedCount
	total := job.RecipientCount

	for _, rcpt := range recipients {
		if rcpt.DeliveryStatus != model.DeliveryPending {
			continue
		}

		// Inter-send pacing; the provider's throughput limit is an
		// external constraint, respected before every send.
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		ok, err := w.deliver(ctx, job, rcpt, cfg)
		if err != nil {
			return err
		}
		if ok {
			sent++
			if err := w.Jobs.IncrementSentCount(jobID); err != nil {
				return err
			}
			if err := w.Jobs.AppendEvent(jobID, fmt.Sprintf("Sent %d/%d reminders...", sent, total)); err != nil {
				return err
			}
		} else {
			failed++
			if err := w.Jobs.IncrementFailedCount(jobID); err != nil {
				return err
			}
		}
	}

	if err := w.Jobs.CompleteJob(jobID, time.Now()); err != nil {
		return err
	}
	summary := fmt.Sprintf("Complete! Successfully sent %d reminder(s). %d failed.", sent, failed)
	if err := w.Jobs.AppendEvent(jobID, summary); err != nil {
		return err
	}

	w.Log.Info().
		Int64("job_id", jobID).
		Int("sent", sent).
		Int("failed", failed).
		Msg("job completed")
	return nil
}

// deliver attempts one recipient to a terminal status. Returns whether
// the recipient ended in "sent"; the error is non-nil only for store
// failures or cancellation, which leave the recipient in "sending".
func (w *DispatchWorker) deliver(ctx context.Context, job *model.NotificationJob, rcpt *model.Recipient, cfg DispatchConfig) (bool, error) {
	subject, body := RenderReminder(rcpt, job.Template)

	attempts := 0
	if err := w.Jobs.SetRecipientStatus(rcpt.ID, model.DeliverySending, "", attempts); err != nil {
		return false, err
	}

	var sendErr error
	for {
		attempts++
		sendErr = w.Sender.Send(ctx, rcpt, subject, body)
		if sendErr == nil {
			if err := w.Jobs.SetRecipientStatus(rcpt.ID, model.DeliverySent, "", attempts); err != nil {
				return false, err
			}
			return true, nil
		}

		if sender.IsPermanent(sendErr) || attempts >= cfg.MaxAttempts {
			break
		}

		// Unclassified errors are treated as transient: retrying a
		// failure that would not recover only costs attempts.
		delay := cfg.BackoffBase << (attempts - 1)
		msg := fmt.Sprintf("%s, retrying in %s...", sendErr.Error(), delay)
		if err := w.Jobs.AppendEvent(job.ID, msg); err != nil {
			return false, err
		}
		w.Log.Warn().
			Int64("job_id", job.ID).
			Str("instructor_id", rcpt.InstructorID).
			Int("attempt", attempts).
			Dur("backoff", delay).
			Msg("transient send failure")

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(delay):
		}
	}

	if err := w.Jobs.SetRecipientStatus(rcpt.ID, model.DeliveryFailed, sendErr.Error(), attempts); err != nil {
		return false, err
	}
	failMsg := fmt.Sprintf("Failed to send reminder to %s: %s", rcpt.Email, sendErr.Error())
	if err := w.Jobs.AppendEvent(job.ID, failMsg); err != nil {
		return false, err
	}
	return false, nil
}

// Dispatcher hands a freshly created job to whatever runs its dispatch
// worker: an in-process goroutine, or a queue consumed by cmd/worker.
type Dispatcher interface {
	Dispatch(jobID int64) error
}

// GoDispatcher runs the dispatch worker in a goroutine in the same
// process. Job creation returns immediately either way.
type GoDispatcher struct {
	Worker *DispatchWorker
	Ctx    context.Context
}

func (d *GoDispatcher) Dispatch(jobID int64) error {
	ctx := d.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.Worker.Log.Error().
					Int64("job_id", jobID).
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("panic in dispatch worker")
			}
		}()
		if err := d.Worker.Run(ctx, jobID); err != nil {
			d.Worker.Log.Error().Int64("job_id", jobID).Err(err).Msg("dispatch worker aborted")
		}
	}()
	return nil
}

var _ Dispatcher = (*GoDispatcher)(nil)
