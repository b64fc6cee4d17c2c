package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rubenelhore/simonkey-identity/internal/models"
)

const createTableStatement = `
	CREATE TABLE IF NOT EXISTS user_records (
		record_id                 TEXT PRIMARY KEY,
		email                     TEXT NOT NULL DEFAULT '',
		display_name              TEXT,
		account_class             TEXT NOT NULL DEFAULT 'standard',
		linked_external_uid       TEXT,
		is_verified               BOOLEAN NOT NULL DEFAULT FALSE,
		verification_count        INTEGER NOT NULL DEFAULT 0,
		last_verification_sent_at TIMESTAMPTZ,
		created_at                TIMESTAMPTZ NOT NULL,
		updated_at                TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_user_records_email ON user_records (email);
	CREATE INDEX IF NOT EXISTS idx_user_records_linked_uid ON user_records (linked_external_uid);
`

// PostgresStore implements RecordStore on a single Postgres table. Every
// operation is a single statement, so per-record atomicity comes from the
// database; the conditional mutations carry their guard inside the statement
// (WHERE linked_external_uid IS NULL, ON CONFLICT DO NOTHING).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and ensures the schema exists.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithDB wraps an existing connection pool. The caller keeps
// ownership of the pool.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableStatement); err != nil {
		return fmt.Errorf("failed to ensure user_records schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database is reachable.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return &TransientError{Op: "health_check", Err: err}
	}
	return nil
}

const recordColumns = `record_id, email, display_name, account_class, linked_external_uid,
	is_verified, verification_count, last_verification_sent_at, created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (*models.UserRecord, error) {
	rec := &models.UserRecord{}
	var displayName, linkedUID sql.NullString
	var lastSent sql.NullTime

	err := row.Scan(
		&rec.RecordID,
		&rec.Email,
		&displayName,
		&rec.AccountClass,
		&linkedUID,
		&rec.Verification.IsVerified,
		&rec.Verification.VerificationCount,
		&lastSent,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if displayName.Valid {
		rec.DisplayName = &displayName.String
	}
	if linkedUID.Valid {
		rec.LinkedExternalUID = &linkedUID.String
	}
	if lastSent.Valid {
		t := lastSent.Time
		rec.Verification.LastVerificationSentAt = &t
	}
	return rec, nil
}

// GetByID retrieves a record by its key.
func (s *PostgresStore) GetByID(ctx context.Context, recordID string) (*models.UserRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM user_records WHERE record_id = $1`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, recordID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %q: %w", recordID, ErrNotFound)
	}
	if err != nil {
		return nil, &TransientError{Op: "get_by_id", Err: err}
	}
	return rec, nil
}

func (s *PostgresStore) queryRecords(ctx context.Context, op, query string, args ...any) ([]*models.UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*models.UserRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &TransientError{Op: op, Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}
	return records, nil
}

// GetByEmail retrieves all records with the given email.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) ([]*models.UserRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM user_records WHERE email = $1`
	return s.queryRecords(ctx, "get_by_email", query, email)
}

// GetByLinkedUID retrieves all records linked to the given external uid.
func (s *PostgresStore) GetByLinkedUID(ctx context.Context, externalUID string) ([]*models.UserRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM user_records WHERE linked_external_uid = $1`
	return s.queryRecords(ctx, "get_by_linked_uid", query, externalUID)
}

// Create inserts the record, failing with ErrDuplicateKey when the key exists.
func (s *PostgresStore) Create(ctx context.Context, rec *models.UserRecord) error {
	query := `
		INSERT INTO user_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (record_id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.RecordID,
		rec.Email,
		rec.DisplayName,
		rec.AccountClass,
		rec.LinkedExternalUID,
		rec.Verification.IsVerified,
		rec.Verification.VerificationCount,
		rec.Verification.LastVerificationSentAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("record %q: %w", rec.RecordID, ErrDuplicateKey)
		}
		return &TransientError{Op: "create", Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &TransientError{Op: "create", Err: err}
	}
	if affected == 0 {
		return fmt.Errorf("record %q: %w", rec.RecordID, ErrDuplicateKey)
	}
	return nil
}

// LinkExternalUID sets the link edge only when it is currently unset. The
// guard lives in the statement, so a losing racer observes applied == false
// instead of clobbering the winner.
func (s *PostgresStore) LinkExternalUID(ctx context.Context, recordID, externalUID string) (bool, error) {
	query := `
		UPDATE user_records
		SET linked_external_uid = $2, updated_at = $3
		WHERE record_id = $1 AND linked_external_uid IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, recordID, externalUID, time.Now())
	if err != nil {
		return false, &TransientError{Op: "link_external_uid", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, &TransientError{Op: "link_external_uid", Err: err}
	}
	return affected == 1, nil
}

// SetVerification updates only the verification columns.
func (s *PostgresStore) SetVerification(ctx context.Context, recordID string, v models.EmailVerification) error {
	query := `
		UPDATE user_records
		SET is_verified = $2, verification_count = $3, last_verification_sent_at = $4, updated_at = $5
		WHERE record_id = $1
	`

	result, err := s.db.ExecContext(ctx, query,
		recordID, v.IsVerified, v.VerificationCount, v.LastVerificationSentAt, time.Now())
	if err != nil {
		return &TransientError{Op: "set_verification", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &TransientError{Op: "set_verification", Err: err}
	}
	if affected == 0 {
		return fmt.Errorf("record %q: %w", recordID, ErrNotFound)
	}
	return nil
}

// Delete removes the record.
func (s *PostgresStore) Delete(ctx context.Context, recordID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM user_records WHERE record_id = $1`, recordID)
	if err != nil {
		return &TransientError{Op: "delete", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &TransientError{Op: "delete", Err: err}
	}
	if affected == 0 {
		return fmt.Errorf("record %q: %w", recordID, ErrNotFound)
	}
	return nil
}

// ListDuplicateEmails returns emails held by more than one record.
func (s *PostgresStore) ListDuplicateEmails(ctx context.Context) ([]string, error) {
	query := `
		SELECT email
		FROM user_records
		WHERE email <> ''
		GROUP BY email
		HAVING COUNT(*) > 1
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &TransientError{Op: "list_duplicate_emails", Err: err}
	}
	defer func() {
		_ = rows.Close()
	}()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, &TransientError{Op: "list_duplicate_emails", Err: err}
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, &TransientError{Op: "list_duplicate_emails", Err: err}
	}
	return emails, nil
}

var _ RecordStore = (*PostgresStore)(nil)
