// Package formula provides the application layer for formula synthesis
// This implements the use cases defined in the inbound ports
package formula

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/formulab/v2/internal/domain/catalog"
	"github.com/formulab/v2/internal/domain/formula"
	"github.com/formulab/v2/internal/ports/inbound"
	"github.com/formulab/v2/internal/ports/outbound"
	"github.com/formulab/v2/pkg/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options tunes generation defaults. Zero values fall back to the documented
// defaults.
type Options struct {
	Temperature float64
	MaxTokens   int
	CacheTTL    time.Duration
}

// FormulaService implements the formula synthesis use cases: prompt
// construction, tool-constrained generation, validation with one bounded
// repair attempt, and persistence.
type FormulaService struct {
	provider    outbound.AIProvider
	catalog     *catalog.Catalog
	validator   *formula.Validator
	formulaRepo outbound.FormulaRepository
	changeLog   outbound.ChangeLog
	cache       outbound.CompletionCache
	opts        Options
	logger      *zap.Logger
}

// NewFormulaService creates a new formula service. cache may be nil.
func NewFormulaService(
	provider outbound.AIProvider,
	cat *catalog.Catalog,
	validator *formula.Validator,
	formulaRepo outbound.FormulaRepository,
	changeLog outbound.ChangeLog,
	cache outbound.CompletionCache,
	opts Options,
	logger *zap.Logger,
) inbound.FormulaService {
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = time.Hour
	}
	return &FormulaService{
		provider:    provider,
		catalog:     cat,
		validator:   validator,
		formulaRepo: formulaRepo,
		changeLog:   changeLog,
		cache:       cache,
		opts:        opts,
		logger:      logger.Named("formula-service"),
	}
}

// Generate synthesizes, validates and persists a new formula version.
func (s *FormulaService) Generate(ctx context.Context, cmd inbound.GenerateCommand) (*inbound.GenerateResult, error) {
	capsuleCount, err := s.capsuleCount(cmd.CapsuleCount)
	if err != nil {
		return nil, err
	}

	req := s.completionRequest(cmd, capsuleCount)

	draft, rejection, err := s.generateDraft(ctx, req, capsuleCount, nil)
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		// One bounded repair attempt with the violation list fed back.
		s.logger.Info("candidate rejected, attempting corrective regeneration",
			zap.String("user_id", cmd.UserID.String()),
			zap.Int("violations", len(rejection.Violations)),
		)
		draft, rejection, err = s.generateDraft(ctx, req, capsuleCount, rejection)
		if err != nil {
			return nil, err
		}
	}
	if rejection != nil {
		return &inbound.GenerateResult{Rejection: rejection}, nil
	}

	f, err := s.persistNewVersion(ctx, cmd.UserID, draft, nil)
	if err != nil {
		return nil, err
	}
	return &inbound.GenerateResult{Formula: f}, nil
}

// GenerateStream is the streamed variant of Generate. Text deltas are
// forwarded as they arrive; validation and persistence happen only after the
// full candidate list is assembled, so a cancelled stream never writes a
// partial formula.
func (s *FormulaService) GenerateStream(ctx context.Context, cmd inbound.GenerateCommand) (<-chan inbound.GenerationEvent, error) {
	capsuleCount, err := s.capsuleCount(cmd.CapsuleCount)
	if err != nil {
		return nil, err
	}

	req := s.completionRequest(cmd, capsuleCount)
	upstream, err := s.provider.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	events := make(chan inbound.GenerationEvent)
	go func() {
		defer close(events)

		emit := func(ev inbound.GenerationEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var toolCalls []outbound.ToolCall
		for ev := range upstream {
			switch ev.Kind {
			case outbound.StreamText:
				if !emit(inbound.GenerationEvent{Kind: inbound.EventText, Text: ev.Text}) {
					return
				}
			case outbound.StreamToolCall:
				toolCalls = append(toolCalls, *ev.ToolCall)
			case outbound.StreamError:
				emit(inbound.GenerationEvent{Kind: inbound.EventError, Err: ev.Err})
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		draft, rejection := s.validateToolCalls(toolCalls, capsuleCount)
		if rejection != nil {
			// The repair attempt runs buffered: the user already has the
			// streamed narration, only the corrected payload matters now.
			var err error
			draft, rejection, err = s.generateDraft(ctx, req, capsuleCount, rejection)
			if err != nil {
				emit(inbound.GenerationEvent{Kind: inbound.EventError, Err: err})
				return
			}
		}
		if rejection != nil {
			emit(inbound.GenerationEvent{
				Kind:   inbound.EventResult,
				Result: &inbound.GenerateResult{Rejection: rejection},
			})
			return
		}

		f, err := s.persistNewVersion(ctx, cmd.UserID, draft, nil)
		if err != nil {
			emit(inbound.GenerationEvent{Kind: inbound.EventError, Err: err})
			return
		}
		emit(inbound.GenerationEvent{
			Kind:   inbound.EventResult,
			Result: &inbound.GenerateResult{Formula: f},
		})
	}()

	return events, nil
}

// Customize layers user-chosen additions onto an existing formula, producing
// a new validated version.
func (s *FormulaService) Customize(ctx context.Context, cmd inbound.CustomizeCommand) (*inbound.GenerateResult, error) {
	existing, err := s.ownedFormula(ctx, cmd.UserID, cmd.FormulaID)
	if err != nil {
		return nil, err
	}

	candidate := formula.Candidate{
		Rationale: existing.Rationale,
		Warnings:  existing.Warnings,
	}
	for _, it := range existing.Bases {
		candidate.Bases = append(candidate.Bases, formula.CandidateItem{
			Ingredient: it.Name, Amount: it.AmountMg, Unit: "mg", Purpose: it.Purpose,
		})
	}
	for _, it := range existing.Additions {
		candidate.Additions = append(candidate.Additions, formula.CandidateItem{
			Ingredient: it.Name, Amount: it.AmountMg, Unit: "mg", Purpose: it.Purpose,
		})
	}
	candidate.Bases = append(candidate.Bases, cmd.AddedBases...)
	candidate.Additions = append(candidate.Additions, cmd.AddedIndividuals...)

	draft, rejection := s.validator.Validate(candidate, existing.CapsuleCount)
	if rejection != nil {
		return &inbound.GenerateResult{Rejection: rejection}, nil
	}

	custom := &formula.Customizations{}
	if existing.Customizations != nil {
		custom.AddedBases = append(custom.AddedBases, existing.Customizations.AddedBases...)
		custom.AddedIndividuals = append(custom.AddedIndividuals, existing.Customizations.AddedIndividuals...)
	}
	custom.AddedBases = append(custom.AddedBases, s.resolveItems(cmd.AddedBases)...)
	custom.AddedIndividuals = append(custom.AddedIndividuals, s.resolveItems(cmd.AddedIndividuals)...)

	f, err := s.persistNewVersion(ctx, cmd.UserID, draft, custom)
	if err != nil {
		return nil, err
	}
	return &inbound.GenerateResult{Formula: f}, nil
}

// ArchiveFormula archives a formula owned by the user.
func (s *FormulaService) ArchiveFormula(ctx context.Context, userID, formulaID uuid.UUID) error {
	f, err := s.ownedFormula(ctx, userID, formulaID)
	if err != nil {
		return err
	}
	if err := s.formulaRepo.Archive(ctx, f.ID); err != nil {
		return err
	}
	return s.changeLog.Record(ctx, f.ID, fmt.Sprintf("Archived version %d", f.Version))
}

// RestoreFormula makes an archived formula current again, archiving whatever
// currently holds that position first.
func (s *FormulaService) RestoreFormula(ctx context.Context, userID, formulaID uuid.UUID) error {
	f, err := s.ownedFormula(ctx, userID, formulaID)
	if err != nil {
		return err
	}

	current, err := s.formulaRepo.CurrentByUser(ctx, userID)
	if err != nil && !errors.Is(err, errors.CodeNotFound) {
		return err
	}
	if current != nil && current.ID != f.ID {
		if err := s.formulaRepo.Archive(ctx, current.ID); err != nil {
			return err
		}
		if err := s.changeLog.Record(ctx, current.ID, fmt.Sprintf("Archived version %d (superseded by restore)", current.Version)); err != nil {
			return err
		}
	}

	if err := s.formulaRepo.Restore(ctx, f.ID); err != nil {
		return err
	}
	return s.changeLog.Record(ctx, f.ID, fmt.Sprintf("Restored version %d", f.Version))
}

// CurrentFormula returns the user's current (non-archived) formula.
func (s *FormulaService) CurrentFormula(ctx context.Context, userID uuid.UUID) (*formula.Formula, error) {
	return s.formulaRepo.CurrentByUser(ctx, userID)
}

// FormulaHistory returns all versions for the user, newest first.
func (s *FormulaService) FormulaHistory(ctx context.Context, userID uuid.UUID) ([]*formula.Formula, error) {
	return s.formulaRepo.HistoryByUser(ctx, userID)
}

// FormulaChanges returns the audit trail for one formula.
func (s *FormulaService) FormulaChanges(ctx context.Context, userID, formulaID uuid.UUID) ([]formula.VersionChange, error) {
	if _, err := s.ownedFormula(ctx, userID, formulaID); err != nil {
		return nil, err
	}
	return s.changeLog.History(ctx, formulaID)
}

// DiffVersions compares two of the user's formula versions.
func (s *FormulaService) DiffVersions(ctx context.Context, userID, fromID, toID uuid.UUID) (*formula.VersionDiff, error) {
	from, err := s.ownedFormula(ctx, userID, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.ownedFormula(ctx, userID, toID)
	if err != nil {
		return nil, err
	}
	diff := formula.Diff(from, to)
	return &diff, nil
}

func (s *FormulaService) capsuleCount(requested int) (int, error) {
	if requested == 0 {
		return s.validator.DefaultCapsuleCount(), nil
	}
	if !s.validator.CapsuleCountValid(requested) {
		return 0, errors.New(errors.CodeInvalidCapsuleSize,
			"Invalid capsule count",
			fmt.Sprintf("capsule count %d is not one of the supported sizes", requested))
	}
	return requested, nil
}

func (s *FormulaService) completionRequest(cmd inbound.GenerateCommand, capsuleCount int) outbound.CompletionRequest {
	return outbound.CompletionRequest{
		Model:       cmd.Model,
		System:      buildSystemPrompt(s.catalog, capsuleCount, s.validator.CapsuleCapacityMg()),
		Messages:    buildMessages(cmd.Profile, cmd.History),
		Tools:       []outbound.ToolDef{createFormulaToolDef(s.catalog)},
		Temperature: s.temperature(cmd.Temperature),
		MaxTokens:   s.maxTokens(cmd.MaxTokens),
	}
}

func (s *FormulaService) temperature(override float64) float64 {
	if override > 0 {
		return override
	}
	return s.opts.Temperature
}

func (s *FormulaService) maxTokens(override int) int {
	if override > 0 {
		return override
	}
	return s.opts.MaxTokens
}

// generateDraft runs one buffered generation attempt. When corrective is
// non-nil the violation list is appended as feedback.
func (s *FormulaService) generateDraft(ctx context.Context, req outbound.CompletionRequest, capsuleCount int, corrective *formula.Rejection) (*formula.Draft, *formula.Rejection, error) {
	if corrective != nil {
		req.Messages = append(append([]outbound.Message{}, req.Messages...), correctiveMessage(corrective))
	}

	result, err := s.complete(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	draft, rejection := s.validateToolCalls(result.ToolCalls, capsuleCount)
	return draft, rejection, nil
}

// validateToolCalls extracts the create_formula payload and validates it.
// A missing tool call or unparseable payload is a rejection like any other,
// so the repair loop can correct it.
func (s *FormulaService) validateToolCalls(calls []outbound.ToolCall, capsuleCount int) (*formula.Draft, *formula.Rejection) {
	var payload json.RawMessage
	for _, call := range calls {
		if call.Name == CreateFormulaTool {
			payload = call.Arguments
			break
		}
	}
	if payload == nil {
		return nil, &formula.Rejection{Violations: []formula.Violation{{
			Code:   formula.ViolationNoToolCall,
			Detail: "the response did not invoke the create_formula tool",
		}}}
	}

	var candidate formula.Candidate
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return nil, &formula.Rejection{Violations: []formula.Violation{{
			Code:   formula.ViolationMalformedPayload,
			Detail: fmt.Sprintf("the create_formula payload was not valid JSON: %v", err),
		}}}
	}

	return s.validator.Validate(candidate, capsuleCount)
}

// complete runs a buffered completion through the optional cache.
func (s *FormulaService) complete(ctx context.Context, req outbound.CompletionRequest) (*outbound.CompletionResult, error) {
	key := completionKey(s.provider.Name(), req)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			s.logger.Debug("completion cache hit", zap.String("key", key))
			return cached, nil
		}
	}

	result, err := s.provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, result, s.opts.CacheTTL)
	}
	return result, nil
}

// persistNewVersion archives the prior current formula (if any), inserts the
// new version and records the audit entries. Validation and persistence are
// all-or-nothing: nothing is written before this point.
func (s *FormulaService) persistNewVersion(ctx context.Context, userID uuid.UUID, draft *formula.Draft, custom *formula.Customizations) (*formula.Formula, error) {
	prev, err := s.formulaRepo.CurrentByUser(ctx, userID)
	if err != nil && !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}
	if prev != nil {
		if err := s.formulaRepo.Archive(ctx, prev.ID); err != nil {
			return nil, err
		}
		if err := s.changeLog.Record(ctx, prev.ID, fmt.Sprintf("Archived version %d (superseded)", prev.Version)); err != nil {
			return nil, err
		}
	}

	f := formula.New(userID, draft)
	f.Customizations = custom
	if err := s.formulaRepo.Create(ctx, f); err != nil {
		return nil, err
	}

	description := fmt.Sprintf("Created version %d: %d ingredients, %dmg total",
		f.Version, len(f.Items()), f.TotalMg)
	if custom != nil {
		description = fmt.Sprintf("Customized into version %d: %d ingredients, %dmg total",
			f.Version, len(f.Items()), f.TotalMg)
	}
	if err := s.changeLog.Record(ctx, f.ID, description); err != nil {
		return nil, err
	}

	s.logger.Info("formula persisted",
		zap.String("formula_id", f.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Int("version", f.Version),
		zap.Int("total_mg", f.TotalMg),
	)
	return f, nil
}

func (s *FormulaService) ownedFormula(ctx context.Context, userID, formulaID uuid.UUID) (*formula.Formula, error) {
	f, err := s.formulaRepo.FindByID(ctx, formulaID)
	if err != nil {
		return nil, err
	}
	if f.UserID != userID {
		// Ownership failures are reported as not-found so ids cannot be probed.
		return nil, errors.NewFormulaNotFoundError(formulaID.String())
	}
	return f, nil
}

func (s *FormulaService) resolveItems(items []formula.CandidateItem) []formula.LineItem {
	var out []formula.LineItem
	for _, item := range items {
		canonical, ok := s.catalog.Normalize(item.Ingredient)
		if !ok {
			continue
		}
		entry, _ := s.catalog.Lookup(canonical)
		amount := item.Amount
		if entry.FixedDose() {
			amount = entry.DoseMg
		}
		out = append(out, formula.LineItem{
			Name:     entry.Name,
			Class:    entry.Class,
			AmountMg: amount,
			Purpose:  item.Purpose,
		})
	}
	return out
}

// completionKey hashes everything that shapes a completion, so two providers
// (or two sampling settings) never share a cached result.
func completionKey(provider string, req outbound.CompletionRequest) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(provider)
	_ = enc.Encode(req.Model)
	_ = enc.Encode(req.System)
	_ = enc.Encode(req.Messages)
	_ = enc.Encode(req.Temperature)
	_ = enc.Encode(req.MaxTokens)
	return "completion:" + hex.EncodeToString(h.Sum(nil))
}
