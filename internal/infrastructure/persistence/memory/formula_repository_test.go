package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/formulab/v2/internal/domain/catalog"
	"github.com/formulab/v2/internal/domain/formula"
	"github.com/formulab/v2/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type FormulaRepositorySuite struct {
	suite.Suite
	repo *FormulaRepository
	ctx  context.Context
}

func TestFormulaRepositorySuite(t *testing.T) {
	suite.Run(t, new(FormulaRepositorySuite))
}

func (s *FormulaRepositorySuite) SetupTest() {
	s.repo = NewFormulaRepository()
	s.ctx = context.Background()
}

func (s *FormulaRepositorySuite) storedFormula(userID uuid.UUID) *formula.Formula {
	return formula.New(userID, &formula.Draft{
		Bases: []formula.LineItem{
			{Name: "Adrenal Support", Class: catalog.ClassSystemSupport, AmountMg: 420},
		},
		Additions: []formula.LineItem{
			{Name: "Ashwagandha", Class: catalog.ClassIndividual, AmountMg: 300},
		},
		TotalMg:      720,
		CapsuleCount: 9,
	})
}

func (s *FormulaRepositorySuite) TestCreateAssignsMonotonicVersions() {
	userID := uuid.New()
	for want := 1; want <= 3; want++ {
		f := s.storedFormula(userID)
		s.Require().NoError(s.repo.Create(s.ctx, f))
		s.Equal(want, f.Version)
	}

	// A different user starts over at version 1.
	other := s.storedFormula(uuid.New())
	s.Require().NoError(s.repo.Create(s.ctx, other))
	s.Equal(1, other.Version)
}

func (s *FormulaRepositorySuite) TestCreateConcurrentVersionsAreUnique() {
	userID := uuid.New()

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.repo.Create(s.ctx, s.storedFormula(userID)))
		}()
	}
	wg.Wait()

	history, err := s.repo.HistoryByUser(s.ctx, userID)
	s.Require().NoError(err)
	s.Require().Len(history, n)

	seen := make(map[int]bool)
	for _, f := range history {
		s.False(seen[f.Version], "version %d assigned twice", f.Version)
		seen[f.Version] = true
	}
	s.True(seen[1])
	s.True(seen[n])
}

func (s *FormulaRepositorySuite) TestFindByIDReturnsCopy() {
	f := s.storedFormula(uuid.New())
	s.Require().NoError(s.repo.Create(s.ctx, f))

	got, err := s.repo.FindByID(s.ctx, f.ID)
	s.Require().NoError(err)

	// Mutating the returned value does not touch the stored one.
	got.TotalMg = 1
	again, err := s.repo.FindByID(s.ctx, f.ID)
	s.Require().NoError(err)
	s.Equal(720, again.TotalMg)
}

func (s *FormulaRepositorySuite) TestFindByIDNotFound() {
	_, err := s.repo.FindByID(s.ctx, uuid.New())
	s.Require().Error(err)
	s.True(errors.Is(err, errors.CodeFormulaNotFound))
}

func (s *FormulaRepositorySuite) TestCurrentByUserPicksLatestActive() {
	userID := uuid.New()

	v1 := s.storedFormula(userID)
	s.Require().NoError(s.repo.Create(s.ctx, v1))
	v2 := s.storedFormula(userID)
	s.Require().NoError(s.repo.Create(s.ctx, v2))
	s.Require().NoError(s.repo.Archive(s.ctx, v1.ID))

	current, err := s.repo.CurrentByUser(s.ctx, userID)
	s.Require().NoError(err)
	s.Equal(v2.ID, current.ID)

	// Archiving the remaining version leaves the user with none.
	s.Require().NoError(s.repo.Archive(s.ctx, v2.ID))
	_, err = s.repo.CurrentByUser(s.ctx, userID)
	s.Require().Error(err)
	s.True(errors.Is(err, errors.CodeNotFound))
}

func (s *FormulaRepositorySuite) TestHistoryByUserNewestFirst() {
	userID := uuid.New()
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.repo.Create(s.ctx, s.storedFormula(userID)))
	}
	s.Require().NoError(s.repo.Create(s.ctx, s.storedFormula(uuid.New())))

	history, err := s.repo.HistoryByUser(s.ctx, userID)
	s.Require().NoError(err)
	s.Require().Len(history, 3)
	s.Equal(3, history[0].Version)
	s.Equal(2, history[1].Version)
	s.Equal(1, history[2].Version)
}

func (s *FormulaRepositorySuite) TestArchiveIsIdempotent() {
	f := s.storedFormula(uuid.New())
	s.Require().NoError(s.repo.Create(s.ctx, f))

	s.Require().NoError(s.repo.Archive(s.ctx, f.ID))
	first, err := s.repo.FindByID(s.ctx, f.ID)
	s.Require().NoError(err)
	s.Require().NotNil(first.ArchivedAt)

	s.Require().NoError(s.repo.Archive(s.ctx, f.ID))
	second, err := s.repo.FindByID(s.ctx, f.ID)
	s.Require().NoError(err)
	s.Equal(first.ArchivedAt, second.ArchivedAt, "repeat archive keeps the original timestamp")
}

func (s *FormulaRepositorySuite) TestRestoreClearsArchivedAt() {
	f := s.storedFormula(uuid.New())
	s.Require().NoError(s.repo.Create(s.ctx, f))
	s.Require().NoError(s.repo.Archive(s.ctx, f.ID))

	s.Require().NoError(s.repo.Restore(s.ctx, f.ID))
	got, err := s.repo.FindByID(s.ctx, f.ID)
	s.Require().NoError(err)
	s.True(got.IsCurrent())
}

func (s *FormulaRepositorySuite) TestIngredientPopularityCountsCurrentOnly() {
	s.Require().NoError(s.repo.Create(s.ctx, s.storedFormula(uuid.New())))
	s.Require().NoError(s.repo.Create(s.ctx, s.storedFormula(uuid.New())))
	archived := s.storedFormula(uuid.New())
	s.Require().NoError(s.repo.Create(s.ctx, archived))
	s.Require().NoError(s.repo.Archive(s.ctx, archived.ID))

	counts, err := s.repo.IngredientPopularity(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, counts["Adrenal Support"])
	s.Equal(2, counts["Ashwagandha"])
}
