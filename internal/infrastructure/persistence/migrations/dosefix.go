package migrations

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/formulab/v2/internal/domain/catalog"
	"github.com/formulab/v2/internal/domain/formula"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DoseFix corrects historical formulas whose range-based amounts were stored
// at the wrong scale. Fixed-dose entries are never touched. A formula whose
// corrected amounts would leave the catalog range is skipped and reported,
// not partially rewritten.
type DoseFix struct {
	catalog *catalog.Catalog
	pool    *pgxpool.Pool
	logger  *zap.Logger
}

// DoseFixPlan is the computed correction for one formula.
type DoseFixPlan struct {
	FormulaID uuid.UUID
	Bases     []formula.LineItem
	Additions []formula.LineItem
	TotalMg   int
	Changed   bool
}

// DoseFixSkip reports a formula the fix refused to touch.
type DoseFixSkip struct {
	FormulaID  uuid.UUID
	Ingredient string
	Reason     string
}

// DoseFixReport summarizes one run.
type DoseFixReport struct {
	Examined int
	Updated  int
	Skipped  []DoseFixSkip
}

// NewDoseFix creates the dose correction utility.
func NewDoseFix(cat *catalog.Catalog, pool *pgxpool.Pool, logger *zap.Logger) *DoseFix {
	return &DoseFix{catalog: cat, pool: pool, logger: logger.Named("dosefix")}
}

// ValidMultiplier reports whether the requested correction factor is one the
// fix supports.
func ValidMultiplier(m int) bool {
	return m == 1 || m == 2 || m == 3
}

// Plan computes the correction for one formula without touching storage.
// The second return value is non-nil when the formula must be skipped.
func (d *DoseFix) Plan(f *formula.Formula, multiplier int) (*DoseFixPlan, *DoseFixSkip) {
	plan := &DoseFixPlan{FormulaID: f.ID}

	fix := func(items []formula.LineItem) ([]formula.LineItem, *DoseFixSkip) {
		out := make([]formula.LineItem, len(items))
		for i, item := range items {
			out[i] = item
			entry, ok := d.catalog.Lookup(item.Name)
			if !ok || entry.FixedDose() {
				continue
			}
			corrected := item.AmountMg * multiplier
			if corrected < entry.DoseRangeMinMg || corrected > entry.DoseRangeMaxMg {
				return nil, &DoseFixSkip{
					FormulaID:  f.ID,
					Ingredient: item.Name,
					Reason: fmt.Sprintf("corrected dose %dmg outside range %d-%dmg",
						corrected, entry.DoseRangeMinMg, entry.DoseRangeMaxMg),
				}
			}
			if corrected != item.AmountMg {
				out[i].AmountMg = corrected
				plan.Changed = true
			}
		}
		return out, nil
	}

	bases, skip := fix(f.Bases)
	if skip != nil {
		return nil, skip
	}
	additions, skip := fix(f.Additions)
	if skip != nil {
		return nil, skip
	}

	plan.Bases = bases
	plan.Additions = additions
	for _, item := range bases {
		plan.TotalMg += item.AmountMg
	}
	for _, item := range additions {
		plan.TotalMg += item.AmountMg
	}
	return plan, nil
}

// Run applies the multiplier to every stored formula. dryRun computes and
// logs the plans without writing.
func (d *DoseFix) Run(ctx context.Context, multiplier int, dryRun bool) (*DoseFixReport, error) {
	if !ValidMultiplier(multiplier) {
		return nil, fmt.Errorf("unsupported multiplier %d", multiplier)
	}

	rows, err := d.pool.Query(ctx,
		`SELECT id, user_id, version, bases, additions, total_mg, capsule_count
		 FROM formulas ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("load formulas: %w", err)
	}
	defer rows.Close()

	var formulas []*formula.Formula
	for rows.Next() {
		var (
			f                formula.Formula
			bases, additions []byte
		)
		if err := rows.Scan(&f.ID, &f.UserID, &f.Version, &bases, &additions,
			&f.TotalMg, &f.CapsuleCount); err != nil {
			return nil, fmt.Errorf("scan formula: %w", err)
		}
		if err := json.Unmarshal(bases, &f.Bases); err != nil {
			return nil, fmt.Errorf("decode bases for %s: %w", f.ID, err)
		}
		if err := json.Unmarshal(additions, &f.Additions); err != nil {
			return nil, fmt.Errorf("decode additions for %s: %w", f.ID, err)
		}
		formulas = append(formulas, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load formulas: %w", err)
	}

	report := &DoseFixReport{}
	for _, f := range formulas {
		report.Examined++

		plan, skip := d.Plan(f, multiplier)
		if skip != nil {
			report.Skipped = append(report.Skipped, *skip)
			d.logger.Warn("skipping formula",
				zap.String("formula_id", skip.FormulaID.String()),
				zap.String("ingredient", skip.Ingredient),
				zap.String("reason", skip.Reason),
			)
			continue
		}
		if !plan.Changed {
			continue
		}
		if dryRun {
			d.logger.Info("would update formula",
				zap.String("formula_id", f.ID.String()),
				zap.Int("total_mg", plan.TotalMg),
			)
			report.Updated++
			continue
		}
		if err := d.apply(ctx, plan); err != nil {
			return report, err
		}
		report.Updated++
	}
	return report, nil
}

func (d *DoseFix) apply(ctx context.Context, plan *DoseFixPlan) error {
	bases, err := json.Marshal(plan.Bases)
	if err != nil {
		return fmt.Errorf("encode bases: %w", err)
	}
	additions, err := json.Marshal(plan.Additions)
	if err != nil {
		return fmt.Errorf("encode additions: %w", err)
	}
	_, err = d.pool.Exec(ctx,
		`UPDATE formulas SET bases = $2, additions = $3, total_mg = $4 WHERE id = $1`,
		plan.FormulaID, bases, additions, plan.TotalMg)
	if err != nil {
		return fmt.Errorf("update formula %s: %w", plan.FormulaID, err)
	}
	return nil
}
