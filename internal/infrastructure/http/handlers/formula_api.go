// Package handlers provides the REST API handlers for formula operations
package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/formulab/v2/internal/domain/formula"
	"github.com/formulab/v2/internal/ports/inbound"
	"github.com/formulab/v2/internal/ports/outbound"
	"github.com/formulab/v2/pkg/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// userIDHeader carries the authenticated subject. Authentication itself is
// terminated upstream of this service.
const userIDHeader = "X-User-ID"

// FormulaAPI handles formula REST endpoints.
type FormulaAPI struct {
	service     inbound.FormulaService
	formulaRepo outbound.FormulaRepository
	logger      *zap.Logger
}

// NewFormulaAPI creates the formula API handler set.
func NewFormulaAPI(service inbound.FormulaService, formulaRepo outbound.FormulaRepository, logger *zap.Logger) *FormulaAPI {
	return &FormulaAPI{service: service, formulaRepo: formulaRepo, logger: logger.Named("formula-api")}
}

// Routes mounts the formula endpoints on a chi router.
func (h *FormulaAPI) Routes(r chi.Router) {
	r.Route("/formulas", func(r chi.Router) {
		r.Post("/generate", h.Generate)
		r.Get("/current", h.Current)
		r.Get("/", h.History)
		r.Get("/diff", h.Diff)
		r.Route("/{formulaID}", func(r chi.Router) {
			r.Post("/customize", h.Customize)
			r.Post("/archive", h.Archive)
			r.Post("/restore", h.Restore)
			r.Get("/changes", h.Changes)
		})
	})
	r.Get("/admin/ingredients/popularity", h.IngredientPopularity)
}

type generateRequest struct {
	Profile      inbound.HealthProfile         `json:"profile"`
	History      []inbound.ConversationMessage `json:"history,omitempty"`
	Model        string                        `json:"model,omitempty"`
	CapsuleCount int                           `json:"capsule_count,omitempty"`
	Temperature  float64                       `json:"temperature,omitempty"`
	MaxTokens    int                           `json:"max_tokens,omitempty"`
}

// Generate synthesizes a new formula. With ?stream=1 the response is a
// server-sent event stream of text deltas followed by a terminal result.
func (h *FormulaAPI) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewBadRequestError("invalid request body"))
		return
	}

	cmd := inbound.GenerateCommand{
		UserID:       userID,
		Profile:      req.Profile,
		History:      req.History,
		Model:        req.Model,
		CapsuleCount: req.CapsuleCount,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	}

	if r.URL.Query().Get("stream") == "1" {
		h.generateStream(w, r, cmd)
		return
	}

	result, err := h.service.Generate(r.Context(), cmd)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Rejection != nil {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, result)
}

func (h *FormulaAPI) generateStream(w http.ResponseWriter, r *http.Request, cmd inbound.GenerateCommand) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, errors.NewInternalError("streaming unsupported"))
		return
	}

	events, err := h.service.GenerateStream(r.Context(), cmd)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		switch ev.Kind {
		case inbound.EventText:
			writeSSE(w, "text", map[string]string{"text": ev.Text})
		case inbound.EventResult:
			writeSSE(w, "result", ev.Result)
		case inbound.EventError:
			writeSSE(w, "error", map[string]string{"error": ev.Err.Error()})
		}
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

type customizeRequest struct {
	AddedBases       []formula.CandidateItem `json:"added_bases,omitempty"`
	AddedIndividuals []formula.CandidateItem `json:"added_individuals,omitempty"`
}

// Customize adds catalog items to an existing formula and persists the
// resulting new version.
func (h *FormulaAPI) Customize(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	formulaID, ok := h.pathID(w, r, "formulaID")
	if !ok {
		return
	}

	var req customizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewBadRequestError("invalid request body"))
		return
	}

	result, err := h.service.Customize(r.Context(), inbound.CustomizeCommand{
		UserID:           userID,
		FormulaID:        formulaID,
		AddedBases:       req.AddedBases,
		AddedIndividuals: req.AddedIndividuals,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Rejection != nil {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, result)
}

// Current returns the user's active formula.
func (h *FormulaAPI) Current(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	f, err := h.service.CurrentFormula(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, f)
}

// History returns every version for the user, newest first.
func (h *FormulaAPI) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	history, err := h.service.FormulaHistory(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"formulas": history})
}

// Archive archives a formula.
func (h *FormulaAPI) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ArchiveFormula)
}

// Restore makes an archived formula current again.
func (h *FormulaAPI) Restore(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.RestoreFormula)
}

func (h *FormulaAPI) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, formulaID uuid.UUID) error) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	formulaID, ok := h.pathID(w, r, "formulaID")
	if !ok {
		return
	}
	if err := op(r.Context(), userID, formulaID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Changes returns the audit trail for a formula.
func (h *FormulaAPI) Changes(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	formulaID, ok := h.pathID(w, r, "formulaID")
	if !ok {
		return
	}
	changes, err := h.service.FormulaChanges(r.Context(), userID, formulaID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

// Diff compares two formula versions identified by ?from= and ?to=.
func (h *FormulaAPI) Diff(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	fromID, err := uuid.Parse(r.URL.Query().Get("from"))
	if err != nil {
		h.writeError(w, errors.NewBadRequestError("invalid from id"))
		return
	}
	toID, err := uuid.Parse(r.URL.Query().Get("to"))
	if err != nil {
		h.writeError(w, errors.NewBadRequestError("invalid to id"))
		return
	}

	diff, err := h.service.DiffVersions(r.Context(), userID, fromID, toID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, diff)
}

// IngredientPopularity returns per-ingredient usage counts across current
// formulas.
func (h *FormulaAPI) IngredientPopularity(w http.ResponseWriter, r *http.Request) {
	counts, err := h.formulaRepo.IngredientPopularity(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ingredients": counts})
}

func (h *FormulaAPI) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get(userIDHeader))
	if err != nil {
		h.writeError(w, errors.NewBadRequestError("missing or invalid "+userIDHeader+" header"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *FormulaAPI) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeError(w, errors.NewBadRequestError("invalid formula id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *FormulaAPI) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("write response failed", zap.Error(err))
	}
}

func (h *FormulaAPI) writeError(w http.ResponseWriter, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.NewInternalError("internal error")
	}
	if appErr.StatusCode() >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, appErr.StatusCode(), map[string]any{
		"error": map[string]any{
			"code":    appErr.Code,
			"message": appErr.Message,
			"details": appErr.Details,
		},
	})
}
