package postgres

import (
	"context"
	"time"

	"github.com/formulab/v2/internal/domain/formula"
	"github.com/formulab/v2/pkg/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ChangeLogRepository is the append-only audit trail for formula transitions.
// Write failures always surface to the caller.
type ChangeLogRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewChangeLogRepository creates a PostgreSQL-backed change log.
func NewChangeLogRepository(pool *pgxpool.Pool, logger *zap.Logger) *ChangeLogRepository {
	return &ChangeLogRepository{pool: pool, logger: logger.Named("changelog-repository")}
}

// Record appends one audit entry.
func (r *ChangeLogRepository) Record(ctx context.Context, formulaID uuid.UUID, description string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO formula_changes (id, formula_id, description, created_at)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New(), formulaID, description, time.Now().UTC())
	if err != nil {
		return errors.NewChangeLogWriteError(formulaID.String(), err)
	}
	return nil
}

// History returns the audit entries for a formula, oldest first.
func (r *ChangeLogRepository) History(ctx context.Context, formulaID uuid.UUID) ([]formula.VersionChange, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, formula_id, description, created_at
		 FROM formula_changes WHERE formula_id = $1 ORDER BY created_at ASC`, formulaID)
	if err != nil {
		return nil, errors.NewPersistenceError("change history", err)
	}
	defer rows.Close()

	var out []formula.VersionChange
	for rows.Next() {
		var c formula.VersionChange
		if err := rows.Scan(&c.ID, &c.FormulaID, &c.Description, &c.CreatedAt); err != nil {
			return nil, errors.NewPersistenceError("scan change", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("change history", err)
	}
	return out, nil
}
