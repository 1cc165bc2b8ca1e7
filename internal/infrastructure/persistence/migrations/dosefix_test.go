package migrations

import (
	"testing"

	"github.com/formulab/v2/internal/domain/catalog"
	"github.com/formulab/v2/internal/domain/formula"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDoseFix(t *testing.T) *DoseFix {
	t.Helper()
	return NewDoseFix(catalog.Default(), nil, zap.NewNop())
}

func doseFixFormula() *formula.Formula {
	return &formula.Formula{
		ID: uuid.New(),
		Bases: []formula.LineItem{
			{Name: "Hawthorn Berry", Class: catalog.ClassIndividual, AmountMg: 200},
		},
		Additions: []formula.LineItem{
			{Name: "Ashwagandha", Class: catalog.ClassIndividual, AmountMg: 300},
			{Name: "Zinc Picolinate", Class: catalog.ClassIndividual, AmountMg: 30},
		},
		TotalMg: 530,
	}
}

func TestValidMultiplier(t *testing.T) {
	for _, m := range []int{1, 2, 3} {
		assert.True(t, ValidMultiplier(m), "multiplier %d", m)
	}
	for _, m := range []int{0, -1, 4, 10} {
		assert.False(t, ValidMultiplier(m), "multiplier %d", m)
	}
}

func TestPlanMultipliesRangeDosesOnly(t *testing.T) {
	fix := newDoseFix(t)
	f := doseFixFormula()

	plan, skip := fix.Plan(f, 2)
	require.Nil(t, skip)
	require.NotNil(t, plan)
	assert.True(t, plan.Changed)

	assert.Equal(t, 400, plan.Bases[0].AmountMg)
	assert.Equal(t, 600, plan.Additions[0].AmountMg)
	// Fixed-dose entries keep their catalog amount.
	assert.Equal(t, 30, plan.Additions[1].AmountMg)
	assert.Equal(t, 400+600+30, plan.TotalMg)

	// The source formula is untouched.
	assert.Equal(t, 200, f.Bases[0].AmountMg)
	assert.Equal(t, 300, f.Additions[0].AmountMg)
}

func TestPlanIdentityMultiplierChangesNothing(t *testing.T) {
	fix := newDoseFix(t)
	f := doseFixFormula()

	plan, skip := fix.Plan(f, 1)
	require.Nil(t, skip)
	assert.False(t, plan.Changed)
	assert.Equal(t, 530, plan.TotalMg)
}

func TestPlanSkipsWhenCorrectionLeavesRange(t *testing.T) {
	fix := newDoseFix(t)
	f := doseFixFormula()

	// Ashwagandha 300mg * 3 = 900mg, above its 600mg ceiling.
	plan, skip := fix.Plan(f, 3)
	assert.Nil(t, plan)
	require.NotNil(t, skip)
	assert.Equal(t, f.ID, skip.FormulaID)
	assert.Equal(t, "Ashwagandha", skip.Ingredient)
	assert.Contains(t, skip.Reason, "900mg")
}

func TestPlanIgnoresUnknownIngredients(t *testing.T) {
	fix := newDoseFix(t)
	f := &formula.Formula{
		ID: uuid.New(),
		Bases: []formula.LineItem{
			{Name: "Legacy Blend", AmountMg: 150},
		},
	}

	// Names that predate the catalog are left as they are rather than
	// failing the whole run.
	plan, skip := fix.Plan(f, 2)
	require.Nil(t, skip)
	assert.False(t, plan.Changed)
	assert.Equal(t, 150, plan.Bases[0].AmountMg)
}
