package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/coursetrack-backend/internal/model"
	"github.com/unclebandit/coursetrack-backend/internal/repository"
	"github.com/unclebandit/coursetrack-backend/internal/sender"
	"github.com/unclebandit/coursetrack-backend/internal/service"
)

// scriptedSender records every send attempt and answers according to
// the fail function.
type scriptedSender struct {
	mu    sync.Mutex
	times map[string][]time.Time
	fail  func(rcpt *model.Recipient, attempt int) error
}

func newScriptedSender(fail func(rcpt *model.Recipient, attempt int) error) *scriptedSender {
	return &scriptedSender{times: map[string][]time.Time{}, fail: fail}
}

func (s *scriptedSender) Send(ctx context.Context, rcpt *model.Recipient, subject, body string) error {
	s.mu.Lock()
	s.times[rcpt.InstructorID] = append(s.times[rcpt.InstructorID], time.Now())
	attempt := len(s.times[rcpt.InstructorID])
	s.mu.Unlock()

	if s.fail != nil {
		return s.fail(rcpt, attempt)
	}
	return nil
}

func (s *scriptedSender) attempts(instructorID string) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time{}, s.times[instructorID]...)
}

func fastConfig() service.DispatchConfig {
	return service.DispatchConfig{
		PaceInterval: time.Millisecond,
		MaxAttempts:  3,
		BackoffBase:  20 * time.Millisecond,
	}
}

func seedJob(t *testing.T, repo repository.JobRepositoryInterface, scope string, emails ...string) *model.NotificationJob {
	t.Helper()
	recipients := make([]*model.Recipient, 0, len(emails))
	for i, email := range emails {
		recipients = append(recipients, &model.Recipient{
			InstructorID: email,
			Email:        email,
			DisplayName:  "Instructor " + string(rune('A'+i)),
			ScopeTag:     scope,
		})
	}
	job := &model.NotificationJob{RequesterScope: scope}
	if err := repo.CreateJob(job, recipients); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func newWorker(repo repository.JobRepositoryInterface, s sender.Sender) *service.DispatchWorker {
	return &service.DispatchWorker{
		Jobs:   repo,
		Sender: s,
		Config: fastConfig(),
		Log:    zerolog.Nop(),
	}
}

func TestHappyPathAllSent(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	job := seedJob(t, repo, "prog-cs",
		"a@u.edu", "b@u.edu", "c@u.edu", "d@u.edu", "e@u.edu")

	w := newWorker(repo, newScriptedSender(nil))
	if err := w.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := repo.GetJob(job.ID)
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed, got %q", got.Status)
	}
	if got.SentCount != 5 || got.FailedCount != 0 {
		t.Fatalf("expected 5 sent / 0 failed, got %d/%d", got.SentCount, got.FailedCount)
	}
	if got.SentCount+got.FailedCount != got.RecipientCount {
		t.Fatalf("counter invariant violated: %d+%d != %d", got.SentCount, got.FailedCount, got.RecipientCount)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}

	events, _ := repo.GetEvents(job.ID)
	if len(events) == 0 {
		t.Fatal("expected status events")
	}
	last := events[len(events)-1].Message
	if last != "Complete! Successfully sent 5 reminder(s). 0 failed." {
		t.Errorf("unexpected summary event: %q", last)
	}
}

func TestMixedPermanentFailures(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	job := seedJob(t, repo, "prog-cs",
		"a@u.edu", "not-an-email", "b@u.edu", "also bad", "c@u.edu")

	// The simulated sender applies real address validation.
	w := newWorker(repo, &sender.SimulatedSender{Log: zerolog.Nop()})
	if err := w.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := repo.GetJob(job.ID)
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed, got %q", got.Status)
	}
	if got.SentCount != 3 || got.FailedCount != 2 {
		t.Fatalf("expected 3 sent / 2 failed, got %d/%d", got.SentCount, got.FailedCount)
	}

	recipients, _ := repo.GetRecipients(job.ID)
	for _, rcpt := range recipients {
		if rcpt.DeliveryStatus == model.DeliveryFailed {
			if rcpt.LastError == "" {
				t.Errorf("failed recipient %s has empty last_error", rcpt.Email)
			}
			if rcpt.Attempts != 1 {
				t.Errorf("permanent failure should take exactly 1 attempt, got %d for %s", rcpt.Attempts, rcpt.Email)
			}
		}
	}
}

func TestTransientRetryWithBackoff(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	job := seedJob(t, repo, "prog-cs", "a@u.edu")

	s := newScriptedSender(func(rcpt *model.Recipient, attempt int) error {
		if attempt < 3 {
			return sender.NewTransient("Rate limit hit")
		}
		return nil
	})
	w := newWorker(repo, s)
	if err := w.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	recipients, _ := repo.GetRecipients(job.ID)
	rcpt := recipients[0]
	if rcpt.DeliveryStatus != model.DeliverySent {
		t.Fatalf("expected sent, got %q", rcpt.DeliveryStatus)
	}
	if rcpt.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", rcpt.Attempts)
	}

	// Backoff doubles: ~base before attempt 2, ~2*base before attempt 3.
	times := s.attempts("a@u.edu")
	if len(times) != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", len(times))
	}
	base := fastConfig().BackoffBase
	gap1 := times[1].Sub(times[0])
	gap2 := times[2].Sub(times[1])
	if gap1 < base {
		t.Errorf("first backoff too short: %v < %v", gap1, base)
	}
	if gap2 < 2*base {
		t.Errorf("second backoff too short: %v < %v", gap2, 2*base)
	}

	// Each retry leaves a visible status event.
	events, _ := repo.GetEvents(job.ID)
	retries := 0
	for _, ev := range events {
		if strings.Contains(ev.Message, "retrying in") {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("expected 2 retry events, got %d", retries)
	}
}

func TestTransientExhaustionFails(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	job := seedJob(t, repo, "prog-cs", "a@u.edu")

	s := newScriptedSender(func(rcpt *model.Recipient, attempt int) error {
		return sender.NewTransient("upstream 503")
	})
	w := newWorker(repo, s)
	if err := w.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := repo.GetJob(job.ID)
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("exhausted retries must still complete the job, got %q", got.Status)
	}
	if got.FailedCount != 1 || got.SentCount != 0 {
		t.Fatalf("expected 0 sent / 1 failed, got %d/%d", got.SentCount, got.FailedCount)
	}

	recipients, _ := repo.GetRecipients(job.ID)
	rcpt := recipients[0]
	if rcpt.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", rcpt.Attempts)
	}
	if rcpt.LastError != "upstream 503" {
		t.Fatalf("expected specific last_error, got %q", rcpt.LastError)
	}
}

func TestPermanentFailureNoRetry(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	job := seedJob(t, repo, "prog-cs", "a@u.edu")

	s := newScriptedSender(func(rcpt *model.Recipient, attempt int) error {
		return sender.NewPermanent("recipient no longer exists")
	})
	w := newWorker(repo, s)
	if err := w.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := len(s.attempts("a@u.edu")); got != 1 {
		t.Fatalf("permanent failure must not retry, got %d attempts", got)
	}
	recipients, _ := repo.GetRecipients(job.ID)
	if recipients[0].DeliveryStatus != model.DeliveryFailed {
		t.Fatalf("expected failed, got %q", recipients[0].DeliveryStatus)
	}
}

func TestInterSendPacing(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	job := seedJob(t, repo, "prog-cs", "a@u.edu", "b@u.edu", "c@u.edu")

	s := newScriptedSender(nil)
	w := newWorker(repo, s)
	w.Config.PaceInterval = 40 * time.Millisecond

	start := time.Now()
	if err := w.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Three sends with a 40ms floor between them: at least ~80ms total.
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Errorf("sends not paced: completed in %v", elapsed)
	}
}

func TestIdempotentPollingAfterCompletion(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	job := seedJob(t, repo, "prog-cs", "a@u.edu", "b@u.edu")

	w := newWorker(repo, newScriptedSender(nil))
	if err := w.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	first, _ := repo.GetJob(job.ID)
	firstEvents, _ := repo.GetEvents(job.ID)

	// Re-running a completed job must be a no-op.
	if err := w.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	second, _ := repo.GetJob(job.ID)
	secondEvents, _ := repo.GetEvents(job.ID)

	if first.SentCount != second.SentCount || first.FailedCount != second.FailedCount {
		t.Fatalf("counters changed after completion: %+v vs %+v", first, second)
	}
	if len(firstEvents) != len(secondEvents) {
		t.Fatalf("event log grew after completion: %d vs %d", len(firstEvents), len(secondEvents))
	}
}

func TestConcurrentJobsDoNotInterleave(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	jobA := seedJob(t, repo, "prog-cs", "a1@u.edu", "a2@u.edu", "a3@u.edu")
	jobB := seedJob(t, repo, "prog-ee", "b1@u.edu", "b2@u.edu")

	var wg sync.WaitGroup
	for _, id := range []int64{jobA.ID, jobB.ID} {
		wg.Add(1)
		go func(jobID int64) {
			defer wg.Done()
			w := newWorker(repo, newScriptedSender(nil))
			if err := w.Run(context.Background(), jobID); err != nil {
				t.Errorf("Run(%d): %v", jobID, err)
			}
		}(id)
	}
	wg.Wait()

	gotA, _ := repo.GetJob(jobA.ID)
	gotB, _ := repo.GetJob(jobB.ID)
	if gotA.SentCount != 3 || gotA.FailedCount != 0 {
		t.Errorf("job A counters wrong: %d/%d", gotA.SentCount, gotA.FailedCount)
	}
	if gotB.SentCount != 2 || gotB.FailedCount != 0 {
		t.Errorf("job B counters wrong: %d/%d", gotB.SentCount, gotB.FailedCount)
	}
	if gotA.Status != model.JobStatusCompleted || gotB.Status != model.JobStatusCompleted {
		t.Errorf("both jobs must complete: %q %q", gotA.Status, gotB.Status)
	}
}

func TestResumeResetsStrandedSending(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	job := seedJob(t, repo, "prog-cs", "a@u.edu", "b@u.edu")

	// Simulate a process crash mid-send.
	recipients, _ := repo.GetRecipients(job.ID)
	if err := repo.SetRecipientStatus(recipients[0].ID, model.DeliverySending, "", 1); err != nil {
		t.Fatalf("SetRecipientStatus: %v", err)
	}

	w := newWorker(repo, newScriptedSender(nil))
	if err := w.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := repo.GetJob(job.ID)
	if got.SentCount != 2 {
		t.Fatalf("stranded recipient not resumed: sent=%d", got.SentCount)
	}
}

func TestCancellationLeavesJobIncomplete(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	job := seedJob(t, repo, "prog-cs", "a@u.edu", "b@u.edu")

	ctx, cancel := context.WithCancel(context.Background())
	s := newScriptedSender(func(rcpt *model.Recipient, attempt int) error {
		cancel() // shut down after the first provider call
		return sender.NewTransient("Rate limit hit")
	})

	w := newWorker(repo, s)
	if err := w.Run(ctx, job.ID); err == nil {
		t.Fatal("expected cancellation error")
	}

	got, _ := repo.GetJob(job.ID)
	if got.Status == model.JobStatusCompleted {
		t.Fatal("cancelled job must not be marked completed")
	}
}
