package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/formulab/v2/internal/infrastructure/ai"
	"github.com/formulab/v2/internal/ports/outbound"
	"github.com/formulab/v2/pkg/errors"
)

// Streaming wire structures. Tool-call arguments arrive as string fragments
// keyed by index and are only parseable once the stream finishes.
type streamChunk struct {
	Choices []streamChoice `json:"choices"`
}

type streamChoice struct {
	Delta        streamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type streamDelta struct {
	Content   string           `json:"content"`
	ToolCalls []streamToolCall `json:"tool_calls"`
}

type streamToolCall struct {
	Index    int            `json:"index"`
	ID       string         `json:"id"`
	Function streamFunction `json:"function"`
}

type streamFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Stream performs a streamed completion over SSE. Text deltas are forwarded
// as they arrive; tool-call argument fragments are accumulated per index and
// parsed exactly once, after the stream closes them.
func (c *Client) Stream(ctx context.Context, req outbound.CompletionRequest) (<-chan outbound.StreamEvent, error) {
	resp, err := c.post(ctx, c.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, ai.StatusError(c.Name(), resp.StatusCode, body)
	}

	events := make(chan outbound.StreamEvent)
	go c.consume(ctx, resp.Body, events)
	return events, nil
}

func (c *Client) consume(ctx context.Context, body io.ReadCloser, events chan<- outbound.StreamEvent) {
	defer close(events)
	defer body.Close()

	// Close the upstream connection promptly when the caller goes away.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			body.Close()
		case <-done:
		}
	}()

	emit := func(ev outbound.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	acc := newToolAccumulator()
	finished := false

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			finished = true
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			emit(outbound.StreamEvent{
				Kind: outbound.StreamError,
				Err: errors.NewProviderFatalError(c.Name(), http.StatusOK,
					fmt.Errorf("malformed stream chunk: %w", err)),
			})
			return
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			if !emit(outbound.StreamEvent{Kind: outbound.StreamText, Text: choice.Delta.Content}) {
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			acc.add(tc)
		}
	}

	if err := scanner.Err(); err != nil && !finished {
		if ctx.Err() != nil {
			emit(outbound.StreamEvent{Kind: outbound.StreamError, Err: ctx.Err()})
			return
		}
		emit(outbound.StreamEvent{
			Kind: outbound.StreamError,
			Err:  errors.NewProviderTransientError(c.Name(), err),
		})
		return
	}

	for _, tc := range acc.finish() {
		call := tc
		if !emit(outbound.StreamEvent{Kind: outbound.StreamToolCall, ToolCall: &call}) {
			return
		}
	}
	emit(outbound.StreamEvent{Kind: outbound.StreamDone})
}

// toolAccumulator reassembles tool calls from partial deltas. Fragments are
// appended to their block's buffer; the buffer is never parsed before finish.
type toolAccumulator struct {
	order  []int
	blocks map[int]*toolBlock
}

type toolBlock struct {
	id   string
	name string
	args strings.Builder
}

func newToolAccumulator() *toolAccumulator {
	return &toolAccumulator{blocks: make(map[int]*toolBlock)}
}

func (a *toolAccumulator) add(tc streamToolCall) {
	block, ok := a.blocks[tc.Index]
	if !ok {
		block = &toolBlock{}
		a.blocks[tc.Index] = block
		a.order = append(a.order, tc.Index)
	}
	if tc.ID != "" {
		block.id = tc.ID
	}
	if tc.Function.Name != "" {
		block.name = tc.Function.Name
	}
	block.args.WriteString(tc.Function.Arguments)
}

func (a *toolAccumulator) finish() []outbound.ToolCall {
	calls := make([]outbound.ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		block := a.blocks[idx]
		calls = append(calls, outbound.ToolCall{
			ID:        block.id,
			Name:      block.name,
			Arguments: json.RawMessage(block.args.String()),
		})
	}
	return calls
}
