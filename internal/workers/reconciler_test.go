package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rubenelhore/simonkey-identity/internal/models"
	"github.com/rubenelhore/simonkey-identity/internal/queue"
	"github.com/rubenelhore/simonkey-identity/internal/reconcile"
	"github.com/rubenelhore/simonkey-identity/internal/store"
	"go.uber.org/zap"
)

// mockMessage is a mock implementation of MessageInterface
type mockMessage struct {
	job     *queue.Job
	acked   bool
	nacked  bool
	requeue bool
}

func (m *mockMessage) Ack() error {
	m.acked = true
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job {
	return m.job
}

var _ queue.MessageInterface = (*mockMessage)(nil)

// mockQueue captures enqueued jobs.
type mockQueue struct {
	enqueued []*queue.Job
	err      error
}

func (q *mockQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *mockQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}

func (q *mockQueue) Close() error                          { return nil }
func (q *mockQueue) HealthCheck(ctx context.Context) error { return nil }

var _ queue.JobQueue = (*mockQueue)(nil)

func newWorker(s *store.MemoryStore, jq queue.JobQueue) *ReconcileWorker {
	reconciler := reconcile.NewReconciler(s, nil, zap.NewNop())
	return NewReconcileWorker(reconciler, jq, zap.NewNop())
}

func seedDuplicates(s *store.MemoryStore, email string) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.Seed(
		&models.UserRecord{RecordID: "keeper", Email: email, AccountClass: models.AccountClassPrivileged, CreatedAt: base},
		&models.UserRecord{RecordID: "dup", Email: email, AccountClass: models.AccountClassStandard, CreatedAt: base.Add(time.Hour)},
	)
}

func TestProcessJobReconcileEmail(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	seedDuplicates(s, "a@example.com")
	w := newWorker(s, &mockQueue{})

	msg := &mockMessage{job: queue.NewJob(queue.JobTypeReconcileEmail, "a@example.com")}
	if err := w.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if !msg.acked {
		t.Error("message not acked after successful job")
	}
	if s.Len() != 1 {
		t.Errorf("store holds %d records, want 1", s.Len())
	}
}

func TestProcessJobReconcileEmailMissingEmail(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	w := newWorker(s, &mockQueue{})

	msg := &mockMessage{job: queue.NewJob(queue.JobTypeReconcileEmail, "")}
	err := w.ProcessJob(context.Background(), msg)
	if err == nil {
		t.Fatal("ProcessJob() error = nil, want missing-email failure")
	}
	if !msg.nacked || !msg.requeue {
		t.Errorf("message acked=%v nacked=%v requeue=%v, want nack with requeue on first failure", msg.acked, msg.nacked, msg.requeue)
	}
}

func TestProcessJobReconcileAll(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	seedDuplicates(s, "a@example.com")
	seedDuplicates2 := func() {
		base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		s.Seed(
			&models.UserRecord{RecordID: "b-keeper", Email: "b@example.com", AccountClass: models.AccountClassStandard, CreatedAt: base},
			&models.UserRecord{RecordID: "b-dup", Email: "b@example.com", AccountClass: models.AccountClassStandard, CreatedAt: base.Add(time.Hour)},
		)
	}
	seedDuplicates2()
	w := newWorker(s, &mockQueue{})

	msg := &mockMessage{job: queue.NewJob(queue.JobTypeReconcileAll, "")}
	if err := w.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if !msg.acked {
		t.Error("message not acked after successful pass")
	}
	if s.Len() != 2 {
		t.Errorf("store holds %d records, want 2", s.Len())
	}
}

func TestProcessJobUnknownTypeGoesToDLQ(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	w := newWorker(s, &mockQueue{})

	msg := &mockMessage{job: queue.NewJob(queue.JobType("mystery"), "")}
	err := w.ProcessJob(context.Background(), msg)
	if err == nil {
		t.Fatal("ProcessJob() error = nil, want unknown-type failure")
	}
	if !msg.nacked || msg.requeue {
		t.Errorf("nacked=%v requeue=%v, want nack without requeue", msg.nacked, msg.requeue)
	}
}

func TestProcessJobTransientFailureReenqueuesWithDelay(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	seedDuplicates(s, "a@example.com")
	s.GetHook = func(op, arg string) error {
		if op == "get_by_email" {
			return &store.TransientError{Op: op, Err: errors.New("timeout")}
		}
		return nil
	}
	jq := &mockQueue{}
	w := newWorker(s, jq)

	msg := &mockMessage{job: queue.NewJob(queue.JobTypeReconcileEmail, "a@example.com")}
	if err := w.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob() error = %v, want transient failure handled via re-enqueue", err)
	}
	if !msg.acked {
		t.Error("original message not acked before re-enqueue")
	}
	if len(jq.enqueued) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(jq.enqueued))
	}

	retry := jq.enqueued[0]
	if retry.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", retry.RetryCount)
	}
	if retry.NotBefore == nil || !retry.NotBefore.After(time.Now()) {
		t.Errorf("not before = %v, want a future delay", retry.NotBefore)
	}
	if retry.Email != "a@example.com" {
		t.Errorf("retry email = %q, want carried over", retry.Email)
	}
}

func TestProcessJobExhaustedRetriesGoToDLQ(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	s.GetHook = func(op, arg string) error {
		return &store.TransientError{Op: op, Err: errors.New("down")}
	}
	jq := &mockQueue{}
	w := newWorker(s, jq)

	job := queue.NewJob(queue.JobTypeReconcileEmail, "a@example.com")
	job.RetryCount = job.MaxRetries
	msg := &mockMessage{job: job}

	err := w.ProcessJob(context.Background(), msg)
	if err == nil {
		t.Fatal("ProcessJob() error = nil, want max-retries failure")
	}
	if !msg.nacked || msg.requeue {
		t.Errorf("nacked=%v requeue=%v, want dead-letter nack", msg.nacked, msg.requeue)
	}
	if len(jq.enqueued) != 0 {
		t.Errorf("enqueued %d jobs, want none once retries are exhausted", len(jq.enqueued))
	}
}

func TestProcessJobNonTransientFailureRequeuesDirectly(t *testing.T) {
	t.Parallel()

	// No queue available: transient or not, the fallback is a plain nack with
	// requeue while retries remain.
	s := store.NewMemoryStore()
	s.GetHook = func(op, arg string) error {
		return &store.TransientError{Op: op, Err: errors.New("down")}
	}
	w := newWorker(s, nil)

	msg := &mockMessage{job: queue.NewJob(queue.JobTypeReconcileEmail, "a@example.com")}
	err := w.ProcessJob(context.Background(), msg)
	if err == nil {
		t.Fatal("ProcessJob() error = nil, want failure surfaced")
	}
	if !msg.nacked || !msg.requeue {
		t.Errorf("nacked=%v requeue=%v, want nack with requeue", msg.nacked, msg.requeue)
	}
}
