package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/formulab/v2/internal/ports/outbound"
	"github.com/formulab/v2/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "claude-sonnet-4-5",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestCompleteParsesContentBlocks(t *testing.T) {
	var gotVersion, gotKey string
	var gotReq messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVersion = r.Header.Get("anthropic-version")
		gotKey = r.Header.Get("x-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Write([]byte(`{
			"content": [
				{"type": "text", "text": "Formulating now."},
				{"type": "tool_use", "id": "toolu_1", "name": "create_formula",
				 "input": {"bases": [], "additions": []}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 200, "output_tokens": 80}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, err := c.Complete(context.Background(), outbound.CompletionRequest{
		System: "be precise",
		Messages: []outbound.Message{
			{Role: outbound.RoleSystem, Content: "legacy system turn"},
			{Role: outbound.RoleUser, Content: "build me a formula"},
		},
		Tools:     []outbound.ToolDef{{Name: "create_formula", Parameters: map[string]any{"type": "object"}}},
		MaxTokens: 1024,
	})
	require.NoError(t, err)

	assert.Equal(t, "2023-06-01", gotVersion)
	assert.Equal(t, "test-key", gotKey)

	// System prompt rides out-of-band; system-role history folds to user.
	assert.Equal(t, "be precise", gotReq.System)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	assert.Equal(t, 1024, gotReq.MaxTokens)
	require.Len(t, gotReq.Tools, 1)
	assert.NotNil(t, gotReq.Tools[0].InputSchema)

	assert.Equal(t, "Formulating now.", result.Text)
	assert.Equal(t, "tool_use", result.StopReason)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "toolu_1", result.ToolCalls[0].ID)
	assert.JSONEq(t, `{"bases":[],"additions":[]}`, string(result.ToolCalls[0].Arguments))
	assert.Equal(t, 200, result.Usage.InputTokens)
	assert.Equal(t, 80, result.Usage.OutputTokens)
}

func TestCompleteDefaultsMaxTokens(t *testing.T) {
	var gotReq messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{"content": [], "stop_reason": "end_turn", "usage": {}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Complete(context.Background(), outbound.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, defaultMaxTokens, gotReq.MaxTokens, "max_tokens is mandatory on this API")
}

func TestCompleteClassifiesStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid model"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Complete(context.Background(), outbound.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeProviderFatal))
}

func sse(events ...string) string {
	var out string
	for _, e := range events {
		out += "data: " + e + "\n\n"
	}
	return out
}

func TestStreamContentBlockLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(sse(
			`{"type":"message_start","message":{"usage":{"input_tokens":150}}}`,
			`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Building "}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"formula."}}`,
			`{"type":"content_block_stop","index":0}`,
			`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"create_formula"}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"bases\""}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":":[]}"}}`,
			`{"type":"content_block_stop","index":1}`,
			`{"type":"message_delta","usage":{"output_tokens":60}}`,
			`{"type":"message_stop"}`,
		)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	events, err := c.Stream(context.Background(), outbound.CompletionRequest{})
	require.NoError(t, err)

	var text string
	var toolCalls []outbound.ToolCall
	var usage *outbound.Usage
	for ev := range events {
		switch ev.Kind {
		case outbound.StreamText:
			text += ev.Text
		case outbound.StreamToolCall:
			toolCalls = append(toolCalls, *ev.ToolCall)
		case outbound.StreamDone:
			usage = ev.Usage
		case outbound.StreamError:
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
	}

	assert.Equal(t, "Building formula.", text)
	require.Len(t, toolCalls, 1)
	assert.Equal(t, "toolu_1", toolCalls[0].ID)
	assert.Equal(t, "create_formula", toolCalls[0].Name)
	// Partial JSON fragments were stitched and parsed once, on block stop.
	assert.JSONEq(t, `{"bases":[]}`, string(toolCalls[0].Arguments))

	require.NotNil(t, usage)
	assert.Equal(t, 150, usage.InputTokens)
	assert.Equal(t, 60, usage.OutputTokens)
}

func TestStreamEmptyToolInputBecomesEmptyObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(sse(
			`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"create_formula"}}`,
			`{"type":"content_block_stop","index":0}`,
			`{"type":"message_stop"}`,
		)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	events, err := c.Stream(context.Background(), outbound.CompletionRequest{})
	require.NoError(t, err)

	var toolCalls []outbound.ToolCall
	for ev := range events {
		if ev.Kind == outbound.StreamToolCall {
			toolCalls = append(toolCalls, *ev.ToolCall)
		}
	}
	require.Len(t, toolCalls, 1)
	assert.Equal(t, "{}", string(toolCalls[0].Arguments))
}

func TestStreamErrorEventIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(sse(
			`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
			`{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`,
		)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	events, err := c.Stream(context.Background(), outbound.CompletionRequest{})
	require.NoError(t, err)

	var last outbound.StreamEvent
	for ev := range events {
		last = ev
	}
	require.Equal(t, outbound.StreamError, last.Kind)
	assert.True(t, errors.Is(last.Err, errors.CodeProviderTransient))

	var appErr *errors.AppError
	require.ErrorAs(t, last.Err, &appErr)
	assert.Contains(t, appErr.Cause.Error(), "overloaded")
}

func TestStreamNon200FailsBeforeChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Stream(context.Background(), outbound.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeProviderFatal))
}
