// Package formula contains the core domain logic for supplement formulas:
// the persisted Formula aggregate, validation of AI-generated candidates
// against the ingredient catalog, and version diffing.
package formula

import (
	"time"

	"github.com/formulab/v2/internal/domain/catalog"
	"github.com/google/uuid"
)

// LineItem is a single ingredient line in a formula, with its resolved
// canonical name and validated amount.
type LineItem struct {
	Name     string        `json:"name"`
	Class    catalog.Class `json:"class"`
	AmountMg int           `json:"amount_mg"`
	Purpose  string        `json:"purpose,omitempty"`
}

// Customizations records user-applied additions layered onto a generated
// formula. Customizing produces a new version; the original is never edited
// in place.
type Customizations struct {
	AddedBases       []LineItem `json:"added_bases,omitempty"`
	AddedIndividuals []LineItem `json:"added_individuals,omitempty"`
}

// Formula is the persisted formula entity. Versions are monotonic per user,
// starting at 1; at most one formula per user is current (ArchivedAt == nil)
// at any time, while full history is retained.
type Formula struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	Version        int             `json:"version"`
	Bases          []LineItem      `json:"bases"`
	Additions      []LineItem      `json:"additions"`
	TotalMg        int             `json:"total_mg"`
	CapsuleCount   int             `json:"capsule_count"`
	Rationale      string          `json:"rationale"`
	Warnings       []string        `json:"warnings,omitempty"`
	Customizations *Customizations `json:"customizations,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ArchivedAt     *time.Time      `json:"archived_at,omitempty"`
}

// VersionChange is an append-only audit record written whenever a formula
// transitions (created, customized, archived, restored). Never mutated or
// deleted.
type VersionChange struct {
	ID          uuid.UUID `json:"id"`
	FormulaID   uuid.UUID `json:"formula_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// New assembles a Formula from a validated draft. Version is zero until the
// repository assigns it on create.
func New(userID uuid.UUID, draft *Draft) *Formula {
	return &Formula{
		ID:           uuid.New(),
		UserID:       userID,
		Bases:        draft.Bases,
		Additions:    draft.Additions,
		TotalMg:      draft.TotalMg,
		CapsuleCount: draft.CapsuleCount,
		Rationale:    draft.Rationale,
		Warnings:     draft.Warnings,
		CreatedAt:    time.Now().UTC(),
	}
}

// IsCurrent reports whether the formula has not been archived.
func (f *Formula) IsCurrent() bool {
	return f.ArchivedAt == nil
}

// Archive marks the formula archived. Idempotent: archiving an archived
// formula keeps the original timestamp.
func (f *Formula) Archive(at time.Time) {
	if f.ArchivedAt != nil {
		return
	}
	t := at.UTC()
	f.ArchivedAt = &t
}

// Restore clears the archived marker. The caller is responsible for first
// archiving whatever is currently current.
func (f *Formula) Restore() {
	f.ArchivedAt = nil
}

// Items returns bases followed by additions.
func (f *Formula) Items() []LineItem {
	items := make([]LineItem, 0, len(f.Bases)+len(f.Additions))
	items = append(items, f.Bases...)
	items = append(items, f.Additions...)
	return items
}

// RecomputeTotal resets TotalMg from the line items. The stored total is
// always derived, never declared.
func (f *Formula) RecomputeTotal() {
	total := 0
	for _, it := range f.Items() {
		total += it.AmountMg
	}
	f.TotalMg = total
}
