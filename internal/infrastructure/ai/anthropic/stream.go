package anthropic

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

// Streaming wire structures. The messages API frames its stream as typed SSE
// events around content-block lifecycles: a block opens, accumulates deltas,
// and closes. Tool input arrives as input_json_delta fragments that are only
// parseable once the block stops.
type streamEvent struct {
	Type         string            `json:"type"`
	Index        int               `json:"index"`
	ContentBlock *contentBlock     `json:"content_block,omitempty"`
	Delta        *streamDelta      `json:"delta,omitempty"`
	Message      *messagesResponse `json:"message,omitempty"`
	Usage        *wireUsage        `json:"usage,omitempty"`
	Error        *streamError      `json:"error,omitempty"`
}

type streamDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type streamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// blockState tracks one open content block: open, accumulate, close, parse
// once.
type blockState struct {
	kind string
	id   string
	name string
	buf  strings.Builder
}

// Stream performs a streamed completion. Text deltas are forwarded in arrival
// order; a tool_use block's accumulated JSON is parsed and emitted only when
// its content_block_stop arrives.
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

	blocks := make(map[int]*blockState)
	var usage outbound.Usage
	finished := false

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			emit(outbound.StreamEvent{
				Kind: outbound.StreamError,
				Err: errors.NewProviderFatalError(c.Name(), http.StatusOK,
					fmt.Errorf("malformed stream event: %w", err)),
			})
			return
		}

		switch ev.Type {
		case "content_block_start":
			state := &blockState{}
			if ev.ContentBlock != nil {
				state.kind = ev.ContentBlock.Type
				state.id = ev.ContentBlock.ID
				state.name = ev.ContentBlock.Name
			}
			blocks[ev.Index] = state

		case "content_block_delta":
			if ev.Delta == nil {
				continue
			}
			switch ev.Delta.Type {
			case "text_delta":
				if !emit(outbound.StreamEvent{Kind: outbound.StreamText, Text: ev.Delta.Text}) {
					return
				}
			case "input_json_delta":
				if state, ok := blocks[ev.Index]; ok {
					state.buf.WriteString(ev.Delta.PartialJSON)
				}
			}

		case "content_block_stop":
			state, ok := blocks[ev.Index]
			delete(blocks, ev.Index)
			if !ok || state.kind != "tool_use" {
				continue
			}
			args := state.buf.String()
			if args == "" {
				args = "{}"
			}
			call := outbound.ToolCall{
				ID:        state.id,
				Name:      state.name,
				Arguments: json.RawMessage(args),
			}
			if !emit(outbound.StreamEvent{Kind: outbound.StreamToolCall, ToolCall: &call}) {
				return
			}

		case "message_delta":
			if ev.Usage != nil {
				usage.OutputTokens = ev.Usage.OutputTokens
			}

		case "message_start":
			if ev.Message != nil {
				usage.InputTokens = ev.Message.Usage.InputTokens
			}

		case "message_stop":
			finished = true

		case "error":
			detail := "stream error"
			if ev.Error != nil {
				detail = ev.Error.Message
			}
			emit(outbound.StreamEvent{
				Kind: outbound.StreamError,
				Err:  errors.NewProviderTransientError(c.Name(), fmt.Errorf("%s", detail)),
			})
			return
		}

		if finished {
			break
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

	emit(outbound.StreamEvent{Kind: outbound.StreamDone, Usage: &usage})
}
