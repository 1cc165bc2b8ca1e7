// Package inbound defines the interfaces for inbound ports (primary/driving adapters)
// These are the interfaces that the application exposes to the outside world
package inbound

import (
	"context"

	"github.com/formulab/v2/internal/domain/formula"
	"github.com/google/uuid"
)

// FormulaService defines the use cases of the formula synthesis engine.
// This is the primary port that HTTP handlers and other driving adapters use.
type FormulaService interface {
	// Commands - operations that modify state

	// Generate synthesizes, validates and persists a new formula version.
	// A validation rejection is a normal branch of the result, not an error.
	Generate(ctx context.Context, cmd GenerateCommand) (*GenerateResult, error)

	// GenerateStream is the streamed variant: text deltas arrive as they are
	// produced, followed by a terminal result event. Nothing is persisted
	// unless the full candidate validated.
	GenerateStream(ctx context.Context, cmd GenerateCommand) (<-chan GenerationEvent, error)

	// Customize layers user-chosen additions onto an existing formula,
	// producing a new validated version.
	Customize(ctx context.Context, cmd CustomizeCommand) (*GenerateResult, error)

	ArchiveFormula(ctx context.Context, userID, formulaID uuid.UUID) error
	RestoreFormula(ctx context.Context, userID, formulaID uuid.UUID) error

	// Queries - operations that read state
	CurrentFormula(ctx context.Context, userID uuid.UUID) (*formula.Formula, error)
	FormulaHistory(ctx context.Context, userID uuid.UUID) ([]*formula.Formula, error)
	FormulaChanges(ctx context.Context, userID, formulaID uuid.UUID) ([]formula.VersionChange, error)
	DiffVersions(ctx context.Context, userID, fromID, toID uuid.UUID) (*formula.VersionDiff, error)
}

// HealthProfile is the read-only Health-domain snapshot used for prompt
// construction. Its medical accuracy is not validated here.
type HealthProfile struct {
	Age         int      `json:"age"`
	Sex         string   `json:"sex"`
	Conditions  []string `json:"conditions,omitempty"`
	Medications []string `json:"medications,omitempty"`
	Goals       []string `json:"goals,omitempty"`
}

// ConversationMessage is one role-tagged message from the consultation domain.
type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateCommand contains the inputs to formula generation. Model,
// CapsuleCount, Temperature and MaxTokens are optional overrides.
type GenerateCommand struct {
	UserID       uuid.UUID
	Profile      HealthProfile
	History      []ConversationMessage
	Model        string
	CapsuleCount int
	Temperature  float64
	MaxTokens    int
}

// CustomizeCommand adds catalog items to an existing formula.
type CustomizeCommand struct {
	UserID           uuid.UUID
	FormulaID        uuid.UUID
	AddedBases       []formula.CandidateItem
	AddedIndividuals []formula.CandidateItem
}

// GenerateResult is the typed outcome of generation: exactly one of Formula
// or Rejection is set.
type GenerateResult struct {
	Formula   *formula.Formula   `json:"formula,omitempty"`
	Rejection *formula.Rejection `json:"rejection,omitempty"`
}

// GenerationEventKind identifies a streamed generation event.
type GenerationEventKind string

const (
	// EventText is an incremental text delta from the model.
	EventText GenerationEventKind = "text"
	// EventResult carries the terminal formula or rejection.
	EventResult GenerationEventKind = "result"
	// EventError terminates a failed generation.
	EventError GenerationEventKind = "error"
)

// GenerationEvent is one event of a streamed generation.
type GenerationEvent struct {
	Kind   GenerationEventKind `json:"kind"`
	Text   string              `json:"text,omitempty"`
	Result *GenerateResult     `json:"result,omitempty"`
	Err    error               `json:"-"`
}
