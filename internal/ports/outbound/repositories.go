// Package outbound defines the interfaces for outbound ports (secondary/driven adapters)
// These are the interfaces that the application uses to interact with external systems
package outbound

import (
	"context"
	"time"

	"github.com/formulab/v2/internal/domain/formula"
	"github.com/google/uuid"
)

// FormulaRepository defines the interface for formula persistence.
// The repository is the sole mutator of formula rows.
type FormulaRepository interface {
	// Create inserts the formula and assigns the next version number for its
	// user (max existing version + 1, starting at 1). Implementations must
	// serialize version allocation per user: two concurrent creates never
	// produce the same version.
	Create(ctx context.Context, f *formula.Formula) error

	FindByID(ctx context.Context, id uuid.UUID) (*formula.Formula, error)

	// CurrentByUser returns the most recent non-archived formula for the
	// user, or a not-found error when the user has none.
	CurrentByUser(ctx context.Context, userID uuid.UUID) (*formula.Formula, error)

	// HistoryByUser returns all of the user's formulas, newest first.
	HistoryByUser(ctx context.Context, userID uuid.UUID) ([]*formula.Formula, error)

	// Archive sets archived_at. Archiving an already-archived formula is a
	// no-op, not an error.
	Archive(ctx context.Context, id uuid.UUID) error

	// Restore clears archived_at. The caller is responsible for first
	// archiving whatever is currently current.
	Restore(ctx context.Context, id uuid.UUID) error

	// IngredientPopularity returns per-ingredient usage counts across all
	// current formulas. Read-only aggregation for admin analytics.
	IngredientPopularity(ctx context.Context) (map[string]int, error)
}

// ChangeLog is the append-only audit trail of formula transitions. Writes
// must never fail silently: the trail is a compliance requirement.
type ChangeLog interface {
	Record(ctx context.Context, formulaID uuid.UUID, description string) error
	History(ctx context.Context, formulaID uuid.UUID) ([]formula.VersionChange, error)
}

// CompletionCache caches raw provider completions keyed by request hash.
// A failing cache degrades to a direct provider call, never to an error.
type CompletionCache interface {
	Get(ctx context.Context, key string) (*CompletionResult, bool)
	Set(ctx context.Context, key string, result *CompletionResult, ttl time.Duration)
}
