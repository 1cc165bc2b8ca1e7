package formula

import (
	"fmt"
	"strings"

	"github.com/formulab/v2/internal/domain/catalog"
)

// CandidateItem is one raw ingredient line from a provider tool payload.
// Produced fresh per generation attempt and discarded after validation.
type CandidateItem struct {
	Ingredient string `json:"ingredient"`
	Amount     int    `json:"amount"`
	Unit       string `json:"unit"`
	Purpose    string `json:"purpose,omitempty"`
}

// Candidate is the raw create_formula tool payload. TotalMg is the
// AI-declared total; it is advisory only and recomputed server-side.
type Candidate struct {
	Bases     []CandidateItem `json:"bases"`
	Additions []CandidateItem `json:"additions"`
	TotalMg   int             `json:"total_mg"`
	Rationale string          `json:"rationale"`
	Warnings  []string        `json:"warnings,omitempty"`
}

// ViolationCode identifies a validation rule.
type ViolationCode string

const (
	ViolationUnit             ViolationCode = "UNIT_NOT_MG"
	ViolationUnknown          ViolationCode = "UNKNOWN_INGREDIENT"
	ViolationDoseBelowFloor   ViolationCode = "DOSE_BELOW_FLOOR"
	ViolationDoseOutOfRange   ViolationCode = "DOSE_OUT_OF_RANGE"
	ViolationCountBounds      ViolationCode = "INGREDIENT_COUNT_OUT_OF_BOUNDS"
	ViolationCapacity         ViolationCode = "CAPSULE_CAPACITY_EXCEEDED"
	ViolationNoToolCall       ViolationCode = "NO_TOOL_CALL"
	ViolationMalformedPayload ViolationCode = "MALFORMED_PAYLOAD"
)

// Violation describes one violated rule with enough detail for an automatic
// re-prompt strategy.
type Violation struct {
	Code       ViolationCode `json:"code"`
	Ingredient string        `json:"ingredient,omitempty"`
	Normalized string        `json:"normalized,omitempty"`
	Detail     string        `json:"detail"`
}

// Rejection enumerates every violation found in a candidate, not just the
// first. It is a normal outcome of generation, not a system fault.
type Rejection struct {
	Violations []Violation `json:"violations"`
}

// Summary renders the violations as corrective feedback for the model.
func (r *Rejection) Summary() string {
	lines := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		lines = append(lines, fmt.Sprintf("- %s: %s", v.Code, v.Detail))
	}
	return strings.Join(lines, "\n")
}

// Has reports whether the rejection contains a violation with the given code.
func (r *Rejection) Has(code ViolationCode) bool {
	for _, v := range r.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// Draft is an accepted candidate: resolved names, coerced amounts, and a
// server-side recomputed total. It has no identity until persisted.
type Draft struct {
	Bases        []LineItem
	Additions    []LineItem
	TotalMg      int
	CapsuleCount int
	Rationale    string
	Warnings     []string
}

// Validator checks candidates against the catalog and the numeric invariants.
type Validator struct {
	catalog *catalog.Catalog
	opts    Options
}

// Options carries the numeric invariants. Zero values fall back to defaults.
type Options struct {
	CapsuleCapacityMg int // material budget per capsule
	MinIngredients    int
	MaxIngredients    int
	MinDoseMg         int
	AllowedCounts     []int
	DefaultCount      int
}

// DefaultOptions returns the production invariants.
func DefaultOptions() Options {
	return Options{
		CapsuleCapacityMg: 750,
		MinIngredients:    8,
		MaxIngredients:    50,
		MinDoseMg:         10,
		AllowedCounts:     []int{6, 9, 12, 15},
		DefaultCount:      9,
	}
}

// NewValidator creates a validator over the given catalog.
func NewValidator(cat *catalog.Catalog, opts Options) *Validator {
	def := DefaultOptions()
	if opts.CapsuleCapacityMg == 0 {
		opts.CapsuleCapacityMg = def.CapsuleCapacityMg
	}
	if opts.MinIngredients == 0 {
		opts.MinIngredients = def.MinIngredients
	}
	if opts.MaxIngredients == 0 {
		opts.MaxIngredients = def.MaxIngredients
	}
	if opts.MinDoseMg == 0 {
		opts.MinDoseMg = def.MinDoseMg
	}
	if len(opts.AllowedCounts) == 0 {
		opts.AllowedCounts = def.AllowedCounts
	}
	if opts.DefaultCount == 0 {
		opts.DefaultCount = def.DefaultCount
	}
	return &Validator{catalog: cat, opts: opts}
}

// CapsuleCountValid reports whether the requested capsule count is allowed.
func (v *Validator) CapsuleCountValid(count int) bool {
	for _, c := range v.opts.AllowedCounts {
		if c == count {
			return true
		}
	}
	return false
}

// DefaultCapsuleCount returns the capsule count used when the caller does not
// choose one.
func (v *Validator) DefaultCapsuleCount() int {
	return v.opts.DefaultCount
}

// CapsuleCapacityMg returns the fill capacity of a single capsule.
func (v *Validator) CapsuleCapacityMg() int {
	return v.opts.CapsuleCapacityMg
}

// Validate checks a candidate against all rules without short-circuiting, so
// the rejection names every violation at once. On success the returned draft
// carries coerced fixed-dose amounts and a recomputed total.
func (v *Validator) Validate(c Candidate, capsuleCount int) (*Draft, *Rejection) {
	if capsuleCount == 0 {
		capsuleCount = v.opts.DefaultCount
	}

	var violations []Violation
	bases, baseTotal, vs := v.checkItems(c.Bases)
	violations = append(violations, vs...)
	additions, addTotal, vs := v.checkItems(c.Additions)
	violations = append(violations, vs...)

	count := len(c.Bases) + len(c.Additions)
	if count < v.opts.MinIngredients || count > v.opts.MaxIngredients {
		violations = append(violations, Violation{
			Code: ViolationCountBounds,
			Detail: fmt.Sprintf("formula has %d ingredients, must have between %d and %d",
				count, v.opts.MinIngredients, v.opts.MaxIngredients),
		})
	}

	// Capacity is judged on coerced amounts: the catalog, not the model,
	// decides what a fixed-dose line weighs.
	total := baseTotal + addTotal
	target := v.opts.CapsuleCapacityMg * capsuleCount
	tolerance := target / 20
	if tolerance < 50 {
		tolerance = 50
	}
	if total > target+tolerance {
		violations = append(violations, Violation{
			Code: ViolationCapacity,
			Detail: fmt.Sprintf("total %dmg exceeds capacity %dmg (%d capsules x %dmg, tolerance %dmg)",
				total, target, capsuleCount, v.opts.CapsuleCapacityMg, tolerance),
		})
	}

	if len(violations) > 0 {
		return nil, &Rejection{Violations: violations}
	}

	return &Draft{
		Bases:        bases,
		Additions:    additions,
		TotalMg:      total,
		CapsuleCount: capsuleCount,
		Rationale:    c.Rationale,
		Warnings:     c.Warnings,
	}, nil
}

// checkItems validates one item list and returns the resolved line items plus
// their coerced total. Line items are only meaningful when no violations were
// produced for them, but totals are still accumulated best-effort so capacity
// reporting stays stable.
func (v *Validator) checkItems(items []CandidateItem) ([]LineItem, int, []Violation) {
	var (
		out        []LineItem
		total      int
		violations []Violation
	)

	for _, item := range items {
		if item.Unit != "mg" {
			violations = append(violations, Violation{
				Code:       ViolationUnit,
				Ingredient: item.Ingredient,
				Detail:     fmt.Sprintf("%q has unit %q, all amounts must be in mg", item.Ingredient, item.Unit),
			})
		}

		canonical, ok := v.catalog.Normalize(item.Ingredient)
		if !ok {
			violations = append(violations, Violation{
				Code:       ViolationUnknown,
				Ingredient: item.Ingredient,
				Normalized: canonical,
				Detail: fmt.Sprintf("%q (normalized %q) does not resolve to a catalog ingredient",
					item.Ingredient, canonical),
			})
			continue
		}

		entry, _ := v.catalog.Lookup(canonical)
		amount := item.Amount

		if entry.FixedDose() {
			// The AI-declared amount is advisory for fixed-dose entries: the
			// catalog is authoritative, so mismatches coerce rather than fail.
			amount = entry.DoseMg
		} else {
			if item.Amount < v.opts.MinDoseMg {
				violations = append(violations, Violation{
					Code:       ViolationDoseBelowFloor,
					Ingredient: item.Ingredient,
					Normalized: canonical,
					Detail: fmt.Sprintf("%q amount %dmg is below the %dmg minimum dose",
						canonical, item.Amount, v.opts.MinDoseMg),
				})
			} else if item.Amount < entry.DoseRangeMinMg || item.Amount > entry.DoseRangeMaxMg {
				violations = append(violations, Violation{
					Code:       ViolationDoseOutOfRange,
					Ingredient: item.Ingredient,
					Normalized: canonical,
					Detail: fmt.Sprintf("%q amount %dmg is outside the allowed range %d-%dmg",
						canonical, item.Amount, entry.DoseRangeMinMg, entry.DoseRangeMaxMg),
				})
			}
		}

		total += amount
		out = append(out, LineItem{
			Name:     entry.Name,
			Class:    entry.Class,
			AmountMg: amount,
			Purpose:  item.Purpose,
		})
	}

	return out, total, violations
}
