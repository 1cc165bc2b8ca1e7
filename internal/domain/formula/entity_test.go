package formula

import (
	"testing"
	"time"

	"github.com/formulab/v2/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDraft() *Draft {
	return &Draft{
		Bases: []LineItem{
			{Name: "Adrenal Support", Class: catalog.ClassSystemSupport, AmountMg: 420},
			{Name: "C Boost", Class: catalog.ClassSystemSupport, AmountMg: 320},
		},
		Additions: []LineItem{
			{Name: "Ashwagandha", Class: catalog.ClassIndividual, AmountMg: 300},
		},
		TotalMg:      1040,
		CapsuleCount: 9,
		Rationale:    "test",
	}
}

func TestNewFormula(t *testing.T) {
	userID := uuid.New()
	f := New(userID, testDraft())

	assert.NotEqual(t, uuid.Nil, f.ID)
	assert.Equal(t, userID, f.UserID)
	assert.Zero(t, f.Version, "version is assigned by the repository")
	assert.Equal(t, 1040, f.TotalMg)
	assert.Equal(t, 9, f.CapsuleCount)
	assert.True(t, f.IsCurrent())
	assert.False(t, f.CreatedAt.IsZero())
}

func TestArchiveIsIdempotent(t *testing.T) {
	f := New(uuid.New(), testDraft())

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.Archive(first)
	require.NotNil(t, f.ArchivedAt)
	assert.Equal(t, first, *f.ArchivedAt)
	assert.False(t, f.IsCurrent())

	// A second archive keeps the original timestamp.
	f.Archive(first.Add(time.Hour))
	assert.Equal(t, first, *f.ArchivedAt)
}

func TestRestore(t *testing.T) {
	f := New(uuid.New(), testDraft())
	f.Archive(time.Now())
	require.False(t, f.IsCurrent())

	f.Restore()
	assert.True(t, f.IsCurrent())
	assert.Nil(t, f.ArchivedAt)
}

func TestItemsOrder(t *testing.T) {
	f := New(uuid.New(), testDraft())

	items := f.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "Adrenal Support", items[0].Name)
	assert.Equal(t, "C Boost", items[1].Name)
	assert.Equal(t, "Ashwagandha", items[2].Name)
}

func TestRecomputeTotal(t *testing.T) {
	f := New(uuid.New(), testDraft())
	f.TotalMg = 0

	f.RecomputeTotal()
	assert.Equal(t, 1040, f.TotalMg)
}
