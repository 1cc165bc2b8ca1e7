// Package memory provides in-memory repository implementations for tests and
// local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/formulab/v2/internal/domain/formula"
	"github.com/formulab/v2/pkg/errors"
	"github.com/google/uuid"
)

// FormulaRepository is a mutex-guarded in-memory formula store. Version
// allocation is serialized by the store lock.
type FormulaRepository struct {
	mu       sync.Mutex
	formulas map[uuid.UUID]*formula.Formula
}

// NewFormulaRepository creates an empty in-memory formula repository.
func NewFormulaRepository() *FormulaRepository {
	return &FormulaRepository{formulas: make(map[uuid.UUID]*formula.Formula)}
}

// Create assigns the next version for the user and stores a copy.
func (r *FormulaRepository) Create(_ context.Context, f *formula.Formula) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	max := 0
	for _, existing := range r.formulas {
		if existing.UserID == f.UserID && existing.Version > max {
			max = existing.Version
		}
	}
	f.Version = max + 1
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	stored := *f
	r.formulas[f.ID] = &stored
	return nil
}

// FindByID returns a copy of the stored formula.
func (r *FormulaRepository) FindByID(_ context.Context, id uuid.UUID) (*formula.Formula, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.formulas[id]
	if !ok {
		return nil, errors.NewFormulaNotFoundError(id.String())
	}
	out := *f
	return &out, nil
}

// CurrentByUser returns the user's non-archived formula.
func (r *FormulaRepository) CurrentByUser(_ context.Context, userID uuid.UUID) (*formula.Formula, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var current *formula.Formula
	for _, f := range r.formulas {
		if f.UserID != userID || f.ArchivedAt != nil {
			continue
		}
		if current == nil || f.Version > current.Version {
			current = f
		}
	}
	if current == nil {
		return nil, errors.New(errors.CodeNotFound,
			"No current formula", "the user has no active formula")
	}
	out := *current
	return &out, nil
}

// HistoryByUser returns all of the user's versions, newest first.
func (r *FormulaRepository) HistoryByUser(_ context.Context, userID uuid.UUID) ([]*formula.Formula, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*formula.Formula
	for _, f := range r.formulas {
		if f.UserID == userID {
			copied := *f
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

// Archive stamps archived_at, idempotently.
func (r *FormulaRepository) Archive(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.formulas[id]
	if !ok {
		return errors.NewFormulaNotFoundError(id.String())
	}
	if f.ArchivedAt == nil {
		now := time.Now().UTC()
		f.ArchivedAt = &now
	}
	return nil
}

// Restore clears archived_at.
func (r *FormulaRepository) Restore(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.formulas[id]
	if !ok {
		return errors.NewFormulaNotFoundError(id.String())
	}
	f.ArchivedAt = nil
	return nil
}

// IngredientPopularity counts ingredient usage across current formulas.
func (r *FormulaRepository) IngredientPopularity(_ context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int)
	for _, f := range r.formulas {
		if f.ArchivedAt != nil {
			continue
		}
		for _, item := range f.Items() {
			counts[item.Name]++
		}
	}
	return counts, nil
}
