package openai

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
		Model:   "gpt-4o",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestCompleteParsesToolCall(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{
				"message": {
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {
							"name": "create_formula",
							"arguments": "{\"bases\":[],\"additions\":[]}"
						}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 45}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, err := c.Complete(context.Background(), outbound.CompletionRequest{
		System: "be precise",
		Messages: []outbound.Message{
			{Role: outbound.RoleUser, Content: "build me a formula"},
		},
		Tools: []outbound.ToolDef{{Name: "create_formula", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gpt-4o", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	require.Len(t, gotReq.Tools, 1)
	assert.Equal(t, "function", gotReq.Tools[0].Type)

	assert.Equal(t, "tool_calls", result.StopReason)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "create_formula", result.ToolCalls[0].Name)
	assert.JSONEq(t, `{"bases":[],"additions":[]}`, string(result.ToolCalls[0].Arguments))
	assert.Equal(t, 120, result.Usage.InputTokens)
	assert.Equal(t, 45, result.Usage.OutputTokens)
}

func TestCompleteClassifiesStatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode errors.ErrorCode
	}{
		{"unauthorized is fatal", http.StatusUnauthorized, errors.CodeProviderFatal},
		{"rate limit is transient", http.StatusTooManyRequests, errors.CodeProviderTransient},
		{"server error is transient", http.StatusInternalServerError, errors.CodeProviderTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)
			_, err := c.Complete(context.Background(), outbound.CompletionRequest{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantCode))
		})
	}
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Complete(context.Background(), outbound.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeProviderFatal))
}

func sseBody(chunks ...string) string {
	var out string
	for _, c := range chunks {
		out += "data: " + c + "\n\n"
	}
	return out
}

func TestStreamTextAndToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(sseBody(
			`{"choices":[{"delta":{"content":"Here is "}}]}`,
			`{"choices":[{"delta":{"content":"your formula."}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"create_formula","arguments":"{\"ba"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ses\":[]}"}}]}}]}`,
			`[DONE]`,
		)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	events, err := c.Stream(context.Background(), outbound.CompletionRequest{})
	require.NoError(t, err)

	var text string
	var toolCalls []outbound.ToolCall
	var done bool
	for ev := range events {
		switch ev.Kind {
		case outbound.StreamText:
			text += ev.Text
		case outbound.StreamToolCall:
			toolCalls = append(toolCalls, *ev.ToolCall)
		case outbound.StreamDone:
			done = true
		case outbound.StreamError:
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
	}

	assert.True(t, done)
	assert.Equal(t, "Here is your formula.", text)
	require.Len(t, toolCalls, 1)
	assert.Equal(t, "call_1", toolCalls[0].ID)
	assert.Equal(t, "create_formula", toolCalls[0].Name)
	// Fragments were reassembled into parseable JSON.
	assert.JSONEq(t, `{"bases":[]}`, string(toolCalls[0].Arguments))
}

func TestStreamNon200FailsBeforeChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Stream(context.Background(), outbound.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeProviderFatal))
}

func TestStreamMalformedChunkEmitsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("data: {not json}\n\n"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	events, err := c.Stream(context.Background(), outbound.CompletionRequest{})
	require.NoError(t, err)

	var sawError bool
	for ev := range events {
		if ev.Kind == outbound.StreamError {
			sawError = true
			assert.True(t, errors.Is(ev.Err, errors.CodeProviderFatal))
		}
	}
	assert.True(t, sawError)
}

func TestToolAccumulatorPreservesOrder(t *testing.T) {
	acc := newToolAccumulator()
	acc.add(streamToolCall{Index: 1, ID: "b", Function: streamFunction{Name: "second", Arguments: "{}"}})
	acc.add(streamToolCall{Index: 0, ID: "a", Function: streamFunction{Name: "first", Arguments: `{"x"`}})
	acc.add(streamToolCall{Index: 0, Function: streamFunction{Arguments: `:1}`}})

	calls := acc.finish()
	require.Len(t, calls, 2)
	assert.Equal(t, "second", calls[0].Name)
	assert.Equal(t, "first", calls[1].Name)
	assert.JSONEq(t, `{"x":1}`, string(calls[1].Arguments))
}
