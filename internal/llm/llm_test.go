package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/learnchat/learnchat/internal/llm/prompts"
	"github.com/learnchat/learnchat/internal/model"
	"github.com/learnchat/learnchat/internal/tool"
)

// recordingProvider resolves every call with a fixed payload and records
// the inputs it saw.
type recordingProvider struct {
	mu     sync.Mutex
	calls  []string
	inputs []json.RawMessage
}

func (p *recordingProvider) Definitions() []openai.Tool {
	return []openai.Tool{{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:       tool.NameGetItem,
			Parameters: json.RawMessage(`{"type":"object"}`),
		},
	}}
}

func (p *recordingProvider) Execute(ctx context.Context, name string, input json.RawMessage) tool.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
	p.inputs = append(p.inputs, input)
	return tool.Result{Success: true, Data: map[string]string{"id": "js-closures-001"}}
}

// fakeUpstream is an OpenAI-compatible completion endpoint scripted per
// test: toolRounds tool-call responses, then a plain stop, and streaming
// requests emit the given deltas.
type fakeUpstream struct {
	mu         sync.Mutex
	toolRounds int
	deltas     []string
	requests   []openai.ChatCompletionRequest
	streamed   int
}

func (f *fakeUpstream) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req openai.ChatCompletionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.requests = append(f.requests, req)
		rounds := f.toolRounds
		f.mu.Unlock()

		if req.Stream {
			f.mu.Lock()
			f.streamed++
			f.mu.Unlock()
			w.Header().Set("Content-Type", "text/event-stream")
			for _, d := range f.deltas {
				chunk := fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":%q}}]}`, d)
				fmt.Fprintf(w, "data: %s\n\n", chunk)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		nonStream := 0
		f.mu.Lock()
		for _, r := range f.requests {
			if !r.Stream {
				nonStream++
			}
		}
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if nonStream <= rounds {
			fmt.Fprint(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"learning_get_item","arguments":"{\"topic\":\"js-closures\"}"}}]},"finish_reason":"tool_calls"}]}`)
			return
		}
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"done"},"finish_reason":"stop"}]}`)
	}
}

func newTestClient(t *testing.T, upstream *fakeUpstream, provider tool.Provider, maxRounds int) *Client {
	t.Helper()
	srv := httptest.NewServer(upstream.handler(t))
	t.Cleanup(srv.Close)

	mgr := tool.NewManager(func() (tool.Provider, error) { return provider, nil })
	c, err := New(Config{
		BaseURL:       srv.URL + "/v1",
		APIKey:        "test-key",
		Model:         "test-model",
		MaxToolRounds: maxRounds,
		Variant:       prompts.VariantFull,
		Topics:        []string{"js-closures"},
	}, mgr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestRunTurnToolLoopThenStream(t *testing.T) {
	upstream := &fakeUpstream{toolRounds: 2, deltas: []string{"Hello ", "world"}}
	provider := &recordingProvider{}
	c := newTestClient(t, upstream, provider, 8)

	var got strings.Builder
	err := c.RunTurn(context.Background(),
		[]model.ChatMessage{{Role: model.RoleUser, Content: "quiz me on closures"}},
		nil,
		func(d string) error { got.WriteString(d); return nil })
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if got.String() != "Hello world" {
		t.Errorf("streamed text = %q, want %q", got.String(), "Hello world")
	}
	if len(provider.calls) != 2 {
		t.Fatalf("tool executed %d times, want 2", len(provider.calls))
	}
	if provider.calls[0] != tool.NameGetItem {
		t.Errorf("tool call name = %q", provider.calls[0])
	}

	// The conversation sent upstream must carry the tool results matched
	// to the call id.
	last := upstream.requests[len(upstream.requests)-1]
	var sawToolResult bool
	for _, m := range last.Messages {
		if m.Role == openai.ChatMessageRoleTool && m.ToolCallID == "call_1" {
			sawToolResult = true
		}
	}
	if !sawToolResult {
		t.Error("final request is missing the tool result message")
	}
	if len(last.Tools) != 0 {
		t.Error("streaming request must not declare tools")
	}
}

func TestRunTurnNoToolCalls(t *testing.T) {
	upstream := &fakeUpstream{toolRounds: 0, deltas: []string{"plain answer"}}
	provider := &recordingProvider{}
	c := newTestClient(t, upstream, provider, 8)

	var got strings.Builder
	err := c.RunTurn(context.Background(),
		[]model.ChatMessage{{Role: model.RoleUser, Content: "hi"}},
		nil,
		func(d string) error { got.WriteString(d); return nil })
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if got.String() != "plain answer" {
		t.Errorf("streamed text = %q", got.String())
	}
	if len(provider.calls) != 0 {
		t.Errorf("no tools should have run, got %d calls", len(provider.calls))
	}
}

func TestRunTurnRoundBudgetForcesAnswer(t *testing.T) {
	// Upstream requests tools on every non-streaming call. The client must
	// stop after maxToolRounds and still produce a streamed answer.
	upstream := &fakeUpstream{toolRounds: 1000, deltas: []string{"forced"}}
	provider := &recordingProvider{}
	c := newTestClient(t, upstream, provider, 3)

	var got strings.Builder
	err := c.RunTurn(context.Background(),
		[]model.ChatMessage{{Role: model.RoleUser, Content: "loop forever"}},
		nil,
		func(d string) error { got.WriteString(d); return nil })
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if got.String() != "forced" {
		t.Errorf("streamed text = %q", got.String())
	}
	if len(provider.calls) != 3 {
		t.Errorf("tool executed %d times, want 3", len(provider.calls))
	}
	if upstream.streamed != 1 {
		t.Errorf("streaming requests = %d, want 1", upstream.streamed)
	}
}

func TestRunTurnMergesExcludeIDs(t *testing.T) {
	upstream := &fakeUpstream{toolRounds: 1, deltas: []string{"ok"}}
	provider := &recordingProvider{}
	c := newTestClient(t, upstream, provider, 8)

	err := c.RunTurn(context.Background(),
		[]model.ChatMessage{{Role: model.RoleUser, Content: "next question"}},
		[]string{"js-closures-002", "js-closures-003"},
		func(string) error { return nil })
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if len(provider.inputs) != 1 {
		t.Fatalf("tool executed %d times, want 1", len(provider.inputs))
	}
	var in struct {
		Topic      string   `json:"topic"`
		ExcludeIDs []string `json:"exclude_ids"`
	}
	if err := json.Unmarshal(provider.inputs[0], &in); err != nil {
		t.Fatalf("decode merged input: %v", err)
	}
	if in.Topic != "js-closures" {
		t.Errorf("topic = %q, model-supplied argument was lost", in.Topic)
	}
	if len(in.ExcludeIDs) != 2 {
		t.Errorf("exclude_ids = %v, want both session ids", in.ExcludeIDs)
	}
}

func TestRunTurnMissingAPIKey(t *testing.T) {
	mgr := tool.NewManager(func() (tool.Provider, error) { return &recordingProvider{}, nil })
	c, err := New(Config{Model: "test-model"}, mgr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = c.RunTurn(context.Background(), nil, nil, func(string) error { return nil })
	var cerr *ClassifiedError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected classified error, got %v", err)
	}
	if cerr.Kind != KindMissingAPIKey {
		t.Errorf("kind = %s, want %s", cerr.Kind, KindMissingAPIKey)
	}
}

func TestMergeExcludeIDs(t *testing.T) {
	tests := []struct {
		name  string
		args  string
		extra []string
		want  []string
	}{
		{"no extras passes through", `{"topic":"t"}`, nil, nil},
		{"adds to empty", `{"topic":"t"}`, []string{"a", "b"}, []string{"a", "b"}},
		{"unions with existing", `{"topic":"t","exclude_ids":["a"]}`, []string{"b"}, []string{"a", "b"}},
		{"deduplicates", `{"topic":"t","exclude_ids":["a"]}`, []string{"a", "b"}, []string{"a", "b"}},
		{"empty args", ``, []string{"a"}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mergeExcludeIDs(json.RawMessage(tt.args), tt.extra)
			if tt.extra == nil {
				if string(out) != tt.args {
					t.Errorf("expected passthrough, got %s", out)
				}
				return
			}
			var in struct {
				ExcludeIDs []string `json:"exclude_ids"`
			}
			if err := json.Unmarshal(out, &in); err != nil {
				t.Fatalf("decode: %v (raw %s)", err, out)
			}
			if len(in.ExcludeIDs) != len(tt.want) {
				t.Fatalf("exclude_ids = %v, want %v", in.ExcludeIDs, tt.want)
			}
			for i := range tt.want {
				if in.ExcludeIDs[i] != tt.want[i] {
					t.Errorf("exclude_ids = %v, want %v", in.ExcludeIDs, tt.want)
					break
				}
			}
		})
	}

	t.Run("malformed args pass through", func(t *testing.T) {
		out := mergeExcludeIDs(json.RawMessage(`not json`), []string{"a"})
		if string(out) != "not json" {
			t.Errorf("expected passthrough, got %s", out)
		}
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"missing key", ErrMissingAPIKey, KindMissingAPIKey},
		{"401", &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}, KindInvalidAPIKey},
		{"429", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, KindRateLimited},
		{"500", &openai.APIError{HTTPStatusCode: 500, Message: "boom"}, KindOverloaded},
		{"529", &openai.APIError{HTTPStatusCode: 529, Message: "busy"}, KindOverloaded},
		{"502", &openai.APIError{HTTPStatusCode: 502, Message: "bad gateway"}, KindOverloaded},
		{"400", &openai.APIError{HTTPStatusCode: 400, Message: "bad request"}, KindUnknown},
		{"request error with status", &openai.RequestError{HTTPStatusCode: 401, Err: errors.New("unauthorized")}, KindInvalidAPIKey},
		{"request error without status", &openai.RequestError{Err: errors.New("dial refused")}, KindNetwork},
		{"url error", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("refused")}, KindNetwork},
		{"deadline", context.DeadlineExceeded, KindNetwork},
		{"plain error", errors.New("mystery"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got == nil {
				t.Fatal("Classify returned nil")
			}
			if got.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", got.Kind, tt.kind)
			}
			if !errors.Is(got, tt.err) && got.Err != tt.err {
				t.Error("classified error must wrap the original")
			}
		})
	}

	if Classify(nil) != nil {
		t.Error("Classify(nil) must be nil")
	}
}
