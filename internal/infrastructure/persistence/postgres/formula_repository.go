package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/formulab/v2/internal/domain/formula"
	"github.com/formulab/v2/pkg/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

// versionConflictRetries bounds how often Create re-reads the version counter
// when concurrent creates for the same user collide on (user_id, version).
const versionConflictRetries = 3

// FormulaRepository persists formulas in PostgreSQL. Line items and
// customizations are stored as JSONB, all numeric invariants live in the
// domain layer.
type FormulaRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewFormulaRepository creates a PostgreSQL-backed formula repository.
func NewFormulaRepository(pool *pgxpool.Pool, logger *zap.Logger) *FormulaRepository {
	return &FormulaRepository{pool: pool, logger: logger.Named("formula-repository")}
}

// Create inserts the formula with the next version for its user. Version
// allocation is serialized by the unique (user_id, version) constraint: a
// concurrent insert that grabs the same number fails with a unique violation
// and the insert is retried against the advanced counter.
func (r *FormulaRepository) Create(ctx context.Context, f *formula.Formula) error {
	bases, err := json.Marshal(f.Bases)
	if err != nil {
		return errors.NewPersistenceError("marshal bases", err)
	}
	additions, err := json.Marshal(f.Additions)
	if err != nil {
		return errors.NewPersistenceError("marshal additions", err)
	}
	warnings, err := json.Marshal(f.Warnings)
	if err != nil {
		return errors.NewPersistenceError("marshal warnings", err)
	}
	var customizations []byte
	if f.Customizations != nil {
		customizations, err = json.Marshal(f.Customizations)
		if err != nil {
			return errors.NewPersistenceError("marshal customizations", err)
		}
	}

	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	const insert = `
		INSERT INTO formulas
			(id, user_id, version, bases, additions, total_mg, capsule_count,
			 rationale, warnings, customizations, created_at, archived_at)
		VALUES
			($1, $2,
			 (SELECT COALESCE(MAX(version), 0) + 1 FROM formulas WHERE user_id = $2),
			 $3, $4, $5, $6, $7, $8, $9, $10, NULL)
		RETURNING version`

	for attempt := 0; ; attempt++ {
		err := r.pool.QueryRow(ctx, insert,
			f.ID, f.UserID, bases, additions, f.TotalMg, f.CapsuleCount,
			f.Rationale, warnings, customizations, f.CreatedAt,
		).Scan(&f.Version)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation && attempt < versionConflictRetries {
			r.logger.Debug("version conflict, retrying insert",
				zap.String("user_id", f.UserID.String()),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return errors.NewVersionConflictError(f.UserID.String())
		}
		return errors.NewPersistenceError("insert formula", err)
	}
}

const selectColumns = `
	id, user_id, version, bases, additions, total_mg, capsule_count,
	rationale, warnings, customizations, created_at, archived_at`

// FindByID returns one formula by primary key.
func (r *FormulaRepository) FindByID(ctx context.Context, id uuid.UUID) (*formula.Formula, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT`+selectColumns+` FROM formulas WHERE id = $1`, id)
	f, err := scanFormula(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewFormulaNotFoundError(id.String())
		}
		return nil, errors.NewPersistenceError("find formula", err)
	}
	return f, nil
}

// CurrentByUser returns the user's non-archived formula.
func (r *FormulaRepository) CurrentByUser(ctx context.Context, userID uuid.UUID) (*formula.Formula, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT`+selectColumns+` FROM formulas
		 WHERE user_id = $1 AND archived_at IS NULL
		 ORDER BY version DESC LIMIT 1`, userID)
	f, err := scanFormula(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New(errors.CodeNotFound,
				"No current formula", "the user has no active formula")
		}
		return nil, errors.NewPersistenceError("current formula", err)
	}
	return f, nil
}

// HistoryByUser returns every version for the user, newest first.
func (r *FormulaRepository) HistoryByUser(ctx context.Context, userID uuid.UUID) ([]*formula.Formula, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+selectColumns+` FROM formulas
		 WHERE user_id = $1 ORDER BY version DESC`, userID)
	if err != nil {
		return nil, errors.NewPersistenceError("formula history", err)
	}
	defer rows.Close()

	var out []*formula.Formula
	for rows.Next() {
		f, err := scanFormula(rows)
		if err != nil {
			return nil, errors.NewPersistenceError("scan formula", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("formula history", err)
	}
	return out, nil
}

// Archive stamps archived_at. Already-archived rows are left untouched.
func (r *FormulaRepository) Archive(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE formulas SET archived_at = NOW()
		 WHERE id = $1 AND archived_at IS NULL`, id)
	if err != nil {
		return errors.NewPersistenceError("archive formula", err)
	}
	if tag.RowsAffected() == 0 {
		// Either already archived (fine) or missing (error).
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM formulas WHERE id = $1)`, id).Scan(&exists); err != nil {
			return errors.NewPersistenceError("archive formula", err)
		}
		if !exists {
			return errors.NewFormulaNotFoundError(id.String())
		}
	}
	return nil
}

// Restore clears archived_at.
func (r *FormulaRepository) Restore(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE formulas SET archived_at = NULL WHERE id = $1`, id)
	if err != nil {
		return errors.NewPersistenceError("restore formula", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewFormulaNotFoundError(id.String())
	}
	return nil
}

// IngredientPopularity counts ingredient occurrences across current formulas.
func (r *FormulaRepository) IngredientPopularity(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT item->>'name', COUNT(*)
		FROM formulas,
		     LATERAL jsonb_array_elements(bases || additions) AS item
		WHERE archived_at IS NULL
		GROUP BY 1`)
	if err != nil {
		return nil, errors.NewPersistenceError("ingredient popularity", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, errors.NewPersistenceError("scan popularity", err)
		}
		counts[name] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("ingredient popularity", err)
	}
	return counts, nil
}

func scanFormula(row pgx.Row) (*formula.Formula, error) {
	var (
		f              formula.Formula
		bases          []byte
		additions      []byte
		warnings       []byte
		customizations []byte
	)
	err := row.Scan(&f.ID, &f.UserID, &f.Version, &bases, &additions,
		&f.TotalMg, &f.CapsuleCount, &f.Rationale, &warnings,
		&customizations, &f.CreatedAt, &f.ArchivedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(bases, &f.Bases); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(additions, &f.Additions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(warnings, &f.Warnings); err != nil {
		return nil, err
	}
	if len(customizations) > 0 {
		f.Customizations = &formula.Customizations{}
		if err := json.Unmarshal(customizations, f.Customizations); err != nil {
			return nil, err
		}
	}
	return &f, nil
}
