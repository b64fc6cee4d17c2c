package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rubenelhore/simonkey-identity/internal/models"
)

func newRecord(id, email string) *models.UserRecord {
	return &models.UserRecord{
		RecordID:     id,
		Email:        email,
		AccountClass: models.AccountClassStandard,
		CreatedAt:    time.Now(),
	}
}

func TestMemoryStoreGetByID(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	s.Seed(newRecord("uid-1", "a@example.com"))

	rec, err := s.GetByID(context.Background(), "uid-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if rec.RecordID != "uid-1" {
		t.Errorf("record id = %q, want %q", rec.RecordID, "uid-1")
	}

	_, err = s.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreGetByIDReturnsClone(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	s.Seed(newRecord("uid-1", "a@example.com"))

	rec, _ := s.GetByID(context.Background(), "uid-1")
	rec.Email = "mutated@example.com"

	again, _ := s.GetByID(context.Background(), "uid-1")
	if again.Email != "a@example.com" {
		t.Errorf("stored email = %q, caller mutation leaked into the store", again.Email)
	}
}

func TestMemoryStoreGetByEmail(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	s.Seed(
		newRecord("uid-1", "a@example.com"),
		newRecord("uid-2", "a@example.com"),
		newRecord("uid-3", "b@example.com"),
		newRecord("uid-4", ""),
	)

	got, err := s.GetByEmail(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("GetByEmail() returned %d records, want 2", len(got))
	}

	// An empty email must never match the records that have none.
	got, err = s.GetByEmail(context.Background(), "")
	if err != nil {
		t.Fatalf("GetByEmail(empty) error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("GetByEmail(empty) returned %d records, want 0", len(got))
	}
}

func TestMemoryStoreCreate(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	if err := s.Create(context.Background(), newRecord("uid-1", "a@example.com")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err := s.Create(context.Background(), newRecord("uid-1", "other@example.com"))
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("second Create() error = %v, want ErrDuplicateKey", err)
	}

	// The losing create must not clobber the winner.
	rec, _ := s.GetByID(context.Background(), "uid-1")
	if rec.Email != "a@example.com" {
		t.Errorf("stored email = %q, want the first writer's", rec.Email)
	}
}

func TestMemoryStoreLinkExternalUID(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	s.Seed(newRecord("uid-1", "a@example.com"))

	applied, err := s.LinkExternalUID(context.Background(), "uid-1", "ext-1")
	if err != nil {
		t.Fatalf("LinkExternalUID() error = %v", err)
	}
	if !applied {
		t.Fatal("first link not applied")
	}

	// Guard: a second link attempt fails regardless of the uid.
	applied, err = s.LinkExternalUID(context.Background(), "uid-1", "ext-2")
	if err != nil {
		t.Fatalf("LinkExternalUID() error = %v", err)
	}
	if applied {
		t.Error("second link applied over an existing edge")
	}

	rec, _ := s.GetByID(context.Background(), "uid-1")
	if !rec.LinkedTo("ext-1") {
		t.Errorf("linked uid = %v, want ext-1", rec.LinkedExternalUID)
	}

	// Guard failure on a missing record is not an error.
	applied, err = s.LinkExternalUID(context.Background(), "missing", "ext-1")
	if err != nil {
		t.Fatalf("LinkExternalUID(missing) error = %v", err)
	}
	if applied {
		t.Error("link applied on a missing record")
	}
}

func TestMemoryStoreLinkIsAtomicUnderContention(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	s.Seed(newRecord("uid-1", "a@example.com"))

	const goroutines = 16
	var wins int32
	var mu sync.Mutex
	var winners []string
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := fmt.Sprintf("ext-%d", i)
			applied, err := s.LinkExternalUID(context.Background(), "uid-1", uid)
			if err != nil {
				t.Errorf("LinkExternalUID() error = %v", err)
				return
			}
			if applied {
				mu.Lock()
				wins++
				winners = append(winners, uid)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("%d link attempts applied, want exactly 1", wins)
	}
	rec, _ := s.GetByID(context.Background(), "uid-1")
	if rec.LinkedExternalUID == nil || *rec.LinkedExternalUID != winners[0] {
		t.Errorf("linked uid = %v, want the single winner %q", rec.LinkedExternalUID, winners[0])
	}
}

func TestMemoryStoreSetVerification(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	s.Seed(newRecord("uid-1", "a@example.com"))

	sent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := models.EmailVerification{
		IsVerified:             true,
		VerificationCount:      3,
		LastVerificationSentAt: &sent,
	}
	if err := s.SetVerification(context.Background(), "uid-1", v); err != nil {
		t.Fatalf("SetVerification() error = %v", err)
	}

	rec, _ := s.GetByID(context.Background(), "uid-1")
	if !rec.Verification.IsVerified || rec.Verification.VerificationCount != 3 {
		t.Errorf("verification = %+v, want the written state", rec.Verification)
	}

	err := s.SetVerification(context.Background(), "missing", v)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SetVerification(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	s.Seed(newRecord("uid-1", "a@example.com"))

	if err := s.Delete(context.Background(), "uid-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("store holds %d records after delete, want 0", s.Len())
	}

	err := s.Delete(context.Background(), "uid-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreListDuplicateEmails(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	s.Seed(
		newRecord("uid-1", "a@example.com"),
		newRecord("uid-2", "a@example.com"),
		newRecord("uid-3", "b@example.com"),
		newRecord("uid-4", ""),
		newRecord("uid-5", ""),
	)

	emails, err := s.ListDuplicateEmails(context.Background())
	if err != nil {
		t.Fatalf("ListDuplicateEmails() error = %v", err)
	}
	if len(emails) != 1 || emails[0] != "a@example.com" {
		t.Errorf("duplicates = %v, want only a@example.com; empty emails never form a group", emails)
	}
}

func TestTransientError(t *testing.T) {
	t.Parallel()

	inner := errors.New("connection reset")
	te := &TransientError{Op: "get_by_id", Err: inner}

	if !IsTransient(te) {
		t.Error("IsTransient(TransientError) = false")
	}
	if !IsTransient(fmt.Errorf("lookup: %w", te)) {
		t.Error("IsTransient(wrapped TransientError) = false")
	}
	if !errors.Is(te, inner) {
		t.Error("TransientError does not unwrap to its cause")
	}
	if IsTransient(ErrNotFound) {
		t.Error("IsTransient(ErrNotFound) = true; absence is a definite answer")
	}
	if IsTransient(nil) {
		t.Error("IsTransient(nil) = true")
	}
}
