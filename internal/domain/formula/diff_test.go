package formula

import (
	"testing"

	"github.com/formulab/v2/internal/domain/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	from := &Formula{
		Version: 1,
		Bases: []LineItem{
			{Name: "Adrenal Support", Class: catalog.ClassSystemSupport, AmountMg: 420},
		},
		Additions: []LineItem{
			{Name: "Ashwagandha", Class: catalog.ClassIndividual, AmountMg: 300},
			{Name: "Melatonin", Class: catalog.ClassIndividual, AmountMg: 10},
		},
		TotalMg: 730,
	}
	to := &Formula{
		Version: 2,
		Bases: []LineItem{
			{Name: "Adrenal Support", Class: catalog.ClassSystemSupport, AmountMg: 420},
		},
		Additions: []LineItem{
			{Name: "Ashwagandha", Class: catalog.ClassIndividual, AmountMg: 450},
			{Name: "Zinc Picolinate", Class: catalog.ClassIndividual, AmountMg: 30},
		},
		TotalMg: 900,
	}

	d := Diff(from, to)

	assert.Equal(t, 1, d.FromVersion)
	assert.Equal(t, 2, d.ToVersion)
	assert.Equal(t, 170, d.TotalDelta)

	require.Len(t, d.Added, 1)
	assert.Equal(t, "Zinc Picolinate", d.Added[0].Name)

	require.Len(t, d.Removed, 1)
	assert.Equal(t, "Melatonin", d.Removed[0].Name)

	require.Len(t, d.Changed, 1)
	assert.Equal(t, "Ashwagandha", d.Changed[0].Name)
	assert.Equal(t, 300, d.Changed[0].FromAmountMg)
	assert.Equal(t, 450, d.Changed[0].ToAmountMg)
}

func TestDiffIdentical(t *testing.T) {
	f := &Formula{
		Version: 3,
		Bases: []LineItem{
			{Name: "C Boost", AmountMg: 320},
		},
		TotalMg: 320,
	}

	d := Diff(f, f)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Removed)
	assert.Empty(t, d.Changed)
	assert.Zero(t, d.TotalDelta)
}
