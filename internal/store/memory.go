package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rubenelhore/simonkey-identity/internal/models"
)

// MemoryStore is an in-process RecordStore with the same conditional-write
// semantics as the Postgres backend. It backs tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.UserRecord

	// Hooks let tests inject failures for specific operations. A nil hook is
	// a no-op; a non-nil error short-circuits the operation before any state
	// change.
	DeleteHook func(recordID string) error
	GetHook    func(op, arg string) error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.UserRecord)}
}

// Seed inserts records directly, bypassing create-if-absent. Test helper.
func (s *MemoryStore) Seed(records ...*models.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.records[rec.RecordID] = rec.Clone()
	}
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// GetByID returns the record with the given id, or ErrNotFound.
func (s *MemoryStore) GetByID(ctx context.Context, recordID string) (*models.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetHook != nil {
		if err := s.GetHook("get_by_id", recordID); err != nil {
			return nil, err
		}
	}
	rec, ok := s.records[recordID]
	if !ok {
		return nil, fmt.Errorf("record %q: %w", recordID, ErrNotFound)
	}
	return rec.Clone(), nil
}

// GetByEmail returns all records with the given email.
func (s *MemoryStore) GetByEmail(ctx context.Context, email string) ([]*models.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetHook != nil {
		if err := s.GetHook("get_by_email", email); err != nil {
			return nil, err
		}
	}
	var out []*models.UserRecord
	for _, rec := range s.records {
		if rec.Email != "" && rec.Email == email {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// GetByLinkedUID returns all records linked to the given external uid.
func (s *MemoryStore) GetByLinkedUID(ctx context.Context, externalUID string) ([]*models.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetHook != nil {
		if err := s.GetHook("get_by_linked_uid", externalUID); err != nil {
			return nil, err
		}
	}
	var out []*models.UserRecord
	for _, rec := range s.records {
		if rec.LinkedTo(externalUID) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// Create inserts the record if its id is absent.
func (s *MemoryStore) Create(ctx context.Context, rec *models.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.RecordID]; exists {
		return fmt.Errorf("record %q: %w", rec.RecordID, ErrDuplicateKey)
	}
	s.records[rec.RecordID] = rec.Clone()
	return nil
}

// LinkExternalUID sets the link edge when it is currently unset.
func (s *MemoryStore) LinkExternalUID(ctx context.Context, recordID, externalUID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok {
		return false, nil
	}
	if rec.IsLinked() {
		return false, nil
	}
	uid := externalUID
	rec.LinkedExternalUID = &uid
	rec.UpdatedAt = time.Now()
	return true, nil
}

// SetVerification replaces the verification sub-object.
func (s *MemoryStore) SetVerification(ctx context.Context, recordID string, v models.EmailVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok {
		return fmt.Errorf("record %q: %w", recordID, ErrNotFound)
	}
	if v.LastVerificationSentAt != nil {
		t := *v.LastVerificationSentAt
		v.LastVerificationSentAt = &t
	}
	rec.Verification = v
	rec.UpdatedAt = time.Now()
	return nil
}

// Delete removes the record.
func (s *MemoryStore) Delete(ctx context.Context, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteHook != nil {
		if err := s.DeleteHook(recordID); err != nil {
			return err
		}
	}
	if _, ok := s.records[recordID]; !ok {
		return fmt.Errorf("record %q: %w", recordID, ErrNotFound)
	}
	delete(s.records, recordID)
	return nil
}

// ListDuplicateEmails returns every email held by more than one record.
func (s *MemoryStore) ListDuplicateEmails(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, rec := range s.records {
		if rec.Email != "" {
			counts[rec.Email]++
		}
	}
	var emails []string
	for email, n := range counts {
		if n > 1 {
			emails = append(emails, email)
		}
	}
	return emails, nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

var _ RecordStore = (*MemoryStore)(nil)
