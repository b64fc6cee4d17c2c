package identity

import (
	"github.com/rubenelhore/simonkey-identity/internal/models"
)

// PrecedenceOrder ranks account classes for candidate selection. Classes
// earlier in the slice win; classes not listed rank after every listed one.
type PrecedenceOrder []models.AccountClass

// DefaultPrecedence prefers administratively provisioned accounts over
// self-registered ones.
func DefaultPrecedence() PrecedenceOrder {
	return PrecedenceOrder{models.AccountClassPrivileged, models.AccountClassStandard}
}

func (p PrecedenceOrder) rank(class models.AccountClass) int {
	for i, c := range p {
		if c == class {
			return i
		}
	}
	return len(p)
}

// SelectCanonical picks the record to treat as canonical among candidates
// sharing an email: highest precedence class first, then earliest CreatedAt,
// then lexicographically smallest RecordID so the choice is deterministic even
// for equal timestamps. Returns nil for an empty slice.
func SelectCanonical(candidates []*models.UserRecord, order PrecedenceOrder) *models.UserRecord {
	if len(order) == 0 {
		order = DefaultPrecedence()
	}

	var best *models.UserRecord
	for _, c := range candidates {
		if best == nil || beats(c, best, order) {
			best = c
		}
	}
	return best
}

func beats(a, b *models.UserRecord, order PrecedenceOrder) bool {
	ra, rb := order.rank(a.AccountClass), order.rank(b.AccountClass)
	if ra != rb {
		return ra < rb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.RecordID < b.RecordID
}
