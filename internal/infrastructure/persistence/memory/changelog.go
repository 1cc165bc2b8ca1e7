package memory

import (
	"context"
	"sync"
	"time"

	"github.com/formulab/v2/internal/domain/formula"
	"github.com/google/uuid"
)

// ChangeLog is a mutex-guarded in-memory audit trail.
type ChangeLog struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]formula.VersionChange

	// FailWith, when set, makes every Record call fail with that error. Used
	// by tests that assert audit failures propagate.
	FailWith error
}

// NewChangeLog creates an empty in-memory change log.
func NewChangeLog() *ChangeLog {
	return &ChangeLog{entries: make(map[uuid.UUID][]formula.VersionChange)}
}

// Record appends one audit entry.
func (c *ChangeLog) Record(_ context.Context, formulaID uuid.UUID, description string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailWith != nil {
		return c.FailWith
	}
	c.entries[formulaID] = append(c.entries[formulaID], formula.VersionChange{
		ID:          uuid.New(),
		FormulaID:   formulaID,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	})
	return nil
}

// History returns the audit entries for a formula, oldest first.
func (c *ChangeLog) History(_ context.Context, formulaID uuid.UUID) ([]formula.VersionChange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]formula.VersionChange, len(c.entries[formulaID]))
	copy(out, c.entries[formulaID])
	return out, nil
}
