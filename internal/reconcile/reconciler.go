// Package reconcile collapses duplicate user records that share an email into
// a single canonical record. Duplicates slip in despite the resolver's
// conditional writes when sign-ins race each other; reconciliation is the
// eventually-consistent cleanup, not a lock.
package reconcile

import (
	"context"
	"fmt"

	"github.com/rubenelhore/simonkey-identity/internal/identity"
	logpkg "github.com/rubenelhore/simonkey-identity/internal/logger"
	"github.com/rubenelhore/simonkey-identity/internal/store"
	"go.uber.org/zap"
)

// RecordError reports one record that failed to delete within a group.
type RecordError struct {
	RecordID string `json:"record_id"`
	Error    string `json:"error"`
}

// GroupReport is the outcome of reconciling one email group.
type GroupReport struct {
	Email       string        `json:"email"`
	CanonicalID string        `json:"canonical_id,omitempty"`
	DeletedIDs  []string      `json:"deleted_ids,omitempty"`
	Errors      []RecordError `json:"errors,omitempty"`
}

// HasErrors reports whether any record in the group failed to delete.
func (g *GroupReport) HasErrors() bool {
	return len(g.Errors) > 0
}

// Report is the outcome of a scan-all pass.
type Report struct {
	Groups         []GroupReport `json:"groups,omitempty"`
	ScannedGroups  int           `json:"scanned_groups"`
	DeletedRecords int           `json:"deleted_records"`
	FailedRecords  int           `json:"failed_records"`
}

// Reconciler deletes every non-canonical record in a same-email group. It is
// destructive and non-merging: resources keyed elsewhere by a deleted id are
// not reassigned; the report carries the deleted ids so a caller can.
type Reconciler struct {
	store      store.RecordStore
	precedence identity.PrecedenceOrder
	logger     *zap.Logger
}

// NewReconciler creates a reconciler sharing the resolver's precedence order.
func NewReconciler(s store.RecordStore, order identity.PrecedenceOrder, logger *zap.Logger) *Reconciler {
	if len(order) == 0 {
		order = identity.DefaultPrecedence()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: s, precedence: order, logger: logger}
}

// ReconcileEmail collapses the group holding one email. A group of zero or one
// records is a no-op. Deletion is per-record: a failed delete is recorded and
// the remaining deletes still run.
func (r *Reconciler) ReconcileEmail(ctx context.Context, email string) (*GroupReport, error) {
	report := &GroupReport{Email: email}

	records, err := r.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("fetch email group: %w", err)
	}

	if len(records) == 0 {
		return report, nil
	}
	if len(records) == 1 {
		report.CanonicalID = records[0].RecordID
		return report, nil
	}

	canonical := identity.SelectCanonical(records, r.precedence)
	report.CanonicalID = canonical.RecordID

	for _, rec := range records {
		if rec.RecordID == canonical.RecordID {
			continue
		}
		if err := r.store.Delete(ctx, rec.RecordID); err != nil {
			report.Errors = append(report.Errors, RecordError{
				RecordID: rec.RecordID,
				Error:    err.Error(),
			})
			r.logger.Error("failed_to_delete_duplicate_record",
				zap.String("record_id", logpkg.SanitizeUserID(rec.RecordID)),
				zap.String("email", logpkg.SanitizeEmail(email)),
				zap.Error(err),
			)
			continue
		}
		report.DeletedIDs = append(report.DeletedIDs, rec.RecordID)
	}

	r.logger.Info("reconciled_email_group",
		zap.String("email", logpkg.SanitizeEmail(email)),
		zap.String("canonical_id", logpkg.SanitizeUserID(canonical.RecordID)),
		zap.Int("deleted", len(report.DeletedIDs)),
		zap.Int("failed", len(report.Errors)),
	)
	return report, nil
}

// ReconcileAll scans every duplicate email group. A failing group is recorded
// and the pass continues; only the initial enumeration can abort the whole
// pass.
func (r *Reconciler) ReconcileAll(ctx context.Context) (*Report, error) {
	emails, err := r.store.ListDuplicateEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate duplicate emails: %w", err)
	}

	report := &Report{}
	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		group, err := r.ReconcileEmail(ctx, email)
		if err != nil {
			report.Groups = append(report.Groups, GroupReport{
				Email:  email,
				Errors: []RecordError{{Error: err.Error()}},
			})
			report.ScannedGroups++
			report.FailedRecords++
			continue
		}
		report.Groups = append(report.Groups, *group)
		report.ScannedGroups++
		report.DeletedRecords += len(group.DeletedIDs)
		report.FailedRecords += len(group.Errors)
	}

	r.logger.Info("reconciliation_pass_complete",
		zap.Int("scanned_groups", report.ScannedGroups),
		zap.Int("deleted_records", report.DeletedRecords),
		zap.Int("failed_records", report.FailedRecords),
	)
	return report, nil
}
