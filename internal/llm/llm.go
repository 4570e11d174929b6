// Package llm drives conversations against an OpenAI-compatible chat API:
// it resolves tool calls in a bounded loop, then streams the final answer.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/learnchat/learnchat/internal/llm/prompts"
	"github.com/learnchat/learnchat/internal/model"
	"github.com/learnchat/learnchat/internal/tool"
)

const maxResponseTokens = 4096

// DefaultMaxToolRounds bounds how many consecutive tool-call rounds a single
// turn may spend before the model is forced to answer in prose.
const DefaultMaxToolRounds = 8

// Config carries the connection and behavior settings for a Client.
type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	MaxToolRounds int
	Variant       prompts.Variant
	// Topics is the curated topic list rendered into the system prompt.
	Topics []string
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api           *openai.Client
	model         string
	apiKey        string
	maxToolRounds int
	variant       prompts.Variant
	topics        []string
	tools         *tool.Manager
}

// New creates a new LLM client. The tool manager supplies the declared
// tools and resolves their calls.
func New(cfg Config, tools *tool.Manager) (*Client, error) {
	if err := prompts.Load(); err != nil {
		return nil, err
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	rounds := cfg.MaxToolRounds
	if rounds <= 0 {
		rounds = DefaultMaxToolRounds
	}
	variant := cfg.Variant
	if variant == "" {
		variant = prompts.VariantFull
	}

	return &Client{
		api:           openai.NewClientWithConfig(apiCfg),
		model:         cfg.Model,
		apiKey:        cfg.APIKey,
		maxToolRounds: rounds,
		variant:       variant,
		topics:        cfg.Topics,
		tools:         tools,
	}, nil
}

// Ping verifies the upstream API is reachable with the configured key.
func (c *Client) Ping(ctx context.Context) error {
	if c.apiKey == "" {
		return Classify(ErrMissingAPIKey)
	}
	if _, err := c.api.ListModels(ctx); err != nil {
		return Classify(err)
	}
	return nil
}

// RunTurn resolves one chat turn. Tool calls are executed round by round
// until the model stops requesting them or the round budget runs out, then
// the final answer is generated with a streaming request and every text
// delta is forwarded to onDelta in arrival order. excludeIDs are item ids
// the session has already seen; they are merged into every item lookup so
// the learner never gets a repeat.
//
// Errors returned are *ClassifiedError except for context cancellation,
// which is passed through untouched.
func (c *Client) RunTurn(ctx context.Context, messages []model.ChatMessage, excludeIDs []string, onDelta func(string) error) error {
	if c.apiKey == "" {
		return Classify(ErrMissingAPIKey)
	}

	provider, err := c.tools.Acquire()
	if err != nil {
		return Classify(fmt.Errorf("acquire tool provider: %w", err))
	}

	systemPrompt, err := prompts.BuildSystemPrompt(c.variant, c.topics)
	if err != nil {
		return Classify(err)
	}

	chatMsgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == model.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	chatMsgs, err = c.resolveToolCalls(ctx, provider, chatMsgs, excludeIDs)
	if err != nil {
		return err
	}

	return c.streamFinal(ctx, chatMsgs, onDelta)
}

// resolveToolCalls runs non-streaming completions while the model keeps
// requesting tools, appending each round's assistant message and one tool
// result per call. Results keep the call order; each is matched to its call
// by id. When the round budget is exhausted the loop stops with the tool
// results of the last round appended, so the follow-up streaming request
// (which declares no tools) forces a prose answer.
func (c *Client) resolveToolCalls(ctx context.Context, provider tool.Provider, chatMsgs []openai.ChatCompletionMessage, excludeIDs []string) ([]openai.ChatCompletionMessage, error) {
	defs := provider.Definitions()

	for round := 0; round < c.maxToolRounds; round++ {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     c.model,
			Messages:  chatMsgs,
			MaxTokens: maxResponseTokens,
			Tools:     defs,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, Classify(err)
		}
		if len(resp.Choices) == 0 {
			return nil, Classify(errors.New("llm returned no choices"))
		}

		choice := resp.Choices[0]
		if choice.FinishReason != openai.FinishReasonToolCalls || len(choice.Message.ToolCalls) == 0 {
			return chatMsgs, nil
		}

		chatMsgs = append(chatMsgs, choice.Message)
		for _, call := range choice.Message.ToolCalls {
			input := json.RawMessage(call.Function.Arguments)
			if call.Function.Name == tool.NameGetItem {
				input = mergeExcludeIDs(input, excludeIDs)
			}

			result := provider.Execute(ctx, call.Function.Name, input)
			if !result.Success {
				slog.Warn("tool call failed", "tool", call.Function.Name, "error", result.Error)
			}
			chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    result.Payload(),
			})
		}
	}

	slog.Warn("tool round budget exhausted, forcing final answer", "rounds", c.maxToolRounds)
	return chatMsgs, nil
}

// streamFinal generates the answer the client sees. No tools are declared
// here, so the model must answer in text.
func (c *Client) streamFinal(ctx context.Context, chatMsgs []openai.ChatCompletionMessage, onDelta func(string) error) error {
	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  chatMsgs,
		MaxTokens: maxResponseTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return Classify(err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return Classify(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			if err := onDelta(delta); err != nil {
				return err
			}
		}
	}
}

// mergeExcludeIDs unions the session's already-seen item ids into a
// learning_get_item argument payload, preserving any ids the model supplied.
// Malformed arguments pass through untouched; the registry reports them.
func mergeExcludeIDs(args json.RawMessage, extra []string) json.RawMessage {
	if len(extra) == 0 {
		return args
	}

	input := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &input); err != nil {
			return args
		}
	}

	seen := make(map[string]bool)
	var merged []string
	if existing, ok := input["exclude_ids"].([]any); ok {
		for _, v := range existing {
			if s, ok := v.(string); ok && !seen[s] {
				seen[s] = true
				merged = append(merged, s)
			}
		}
	}
	for _, s := range extra {
		if !seen[s] {
			seen[s] = true
			merged = append(merged, s)
		}
	}
	input["exclude_ids"] = merged

	out, err := json.Marshal(input)
	if err != nil {
		return args
	}
	return out
}
