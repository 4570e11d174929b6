package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/go-playground/validator/v10"
	openai "github.com/sashabaranov/go-openai"

	"github.com/learnchat/learnchat/internal/model"
)

// Tool names declared to the model.
const (
	NameGetItem    = "learning_get_item"
	NameListTopics = "learning_list_topics"
	NameListSkills = "learning_list_skills"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Result is the outcome of one tool invocation. A failed invocation is a
// value, never a panic: the model gets the error back and may recover.
// Success with a nil Data means "no error, nothing found"; callers must
// not conflate the two.
type Result struct {
	Success bool
	Data    any
	Error   string
}

// Payload renders the result as the JSON string handed back to the model.
func (r Result) Payload() string {
	if !r.Success {
		data, _ := json.Marshal(map[string]string{"error": r.Error})
		return string(data)
	}
	data, err := json.Marshal(r.Data)
	if err != nil {
		return `{"error":"unencodable tool result"}`
	}
	return string(data)
}

func failure(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// TopicInfo summarizes one curated topic for the list_topics tool.
type TopicInfo struct {
	Topic        string `json:"topic"`
	Description  string `json:"description"`
	ItemCount    int    `json:"itemCount"`
	Difficulties struct {
		Easy   int `json:"easy"`
		Medium int `json:"medium"`
		Hard   int `json:"hard"`
	} `json:"difficulties"`
}

// GetItemInput is the declared input of the get_item tool.
type GetItemInput struct {
	Topic      string   `json:"topic" validate:"required"`
	Difficulty string   `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	ExcludeIDs []string `json:"exclude_ids,omitempty"`
}

// ListSkillsInput is the declared input of the list_skills tool.
type ListSkillsInput struct {
	ParentID string `json:"parent_id,omitempty"`
	Depth    int    `json:"depth,omitempty" validate:"omitempty,min=1,max=4"`
}

// Registry maps the closed set of tool names to their implementations.
type Registry struct {
	catalog *Catalog
	// pick returns a uniform random index in [0, n); injectable for tests.
	pick func(n int) int
}

// NewRegistry creates a registry over the embedded catalog.
func NewRegistry() (*Registry, error) {
	c, err := LoadCatalog()
	if err != nil {
		return nil, err
	}
	return &Registry{catalog: c, pick: rand.Intn}, nil
}

// Definitions returns the tool declarations sent to the model with every
// request.
func (r *Registry) Definitions() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        NameGetItem,
				Description: "Retrieves a validated assessment question from the item bank. Returns a single MCQ item with stem, code snippet (if applicable), options, and feedback. Use this to present questions during an assessment.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"topic": {"type": "string", "enum": ["js-this", "js-closures", "js-async", "js-prototypes", "js-timers", "js-patterns", "html-events"], "description": "The topic area for the question"},
						"difficulty": {"type": "string", "enum": ["easy", "medium", "hard"], "description": "Optional difficulty level. If not specified, returns any difficulty."},
						"exclude_ids": {"type": "array", "items": {"type": "string"}, "description": "Item IDs to exclude (e.g., questions already asked in this session)"}
					},
					"required": ["topic"]
				}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        NameListTopics,
				Description: "Lists all available assessment topics with descriptions and item counts. Use this to help learners choose what to study.",
				Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        NameListSkills,
				Description: "Returns the skill tree for frontend engineering topics. The tree is hierarchical: Frontend -> JavaScript/React/HTML-CSS/TypeScript -> specific skills. Returns the full tree by default, or a subtree if parent_id is given.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"parent_id": {"type": "string", "description": "Optional. If provided, returns only the subtree under this skill ID."},
						"depth": {"type": "number", "description": "Optional. Limits tree depth (1-4). Default returns the full tree."}
					}
				}`),
			},
		},
	}
}

// Execute resolves one tool call. It never returns an error and never
// panics: every failure mode is encoded in the Result.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) Result {
	switch name {
	case NameGetItem:
		return r.getItem(input)
	case NameListTopics:
		return r.listTopics()
	case NameListSkills:
		return r.listSkills(input)
	default:
		return failure("unknown tool: %s", name)
	}
}

// getItem picks a random catalog item matching topic, optional difficulty,
// and not present in exclude_ids. Zero remaining candidates is a success
// with nil data, not an error.
func (r *Registry) getItem(input json.RawMessage) Result {
	var in GetItemInput
	if err := decodeInput(input, &in); err != nil {
		return failure("invalid get_item input: %v", err)
	}

	excluded := make(map[string]bool, len(in.ExcludeIDs))
	for _, id := range in.ExcludeIDs {
		excluded[id] = true
	}

	var candidates []model.Item
	for _, item := range r.catalog.Items() {
		if item.Topic != in.Topic {
			continue
		}
		if in.Difficulty != "" && item.Difficulty != model.Difficulty(in.Difficulty) {
			continue
		}
		if excluded[item.ID] {
			continue
		}
		candidates = append(candidates, item)
	}

	if len(candidates) == 0 {
		return Result{Success: true, Data: nil}
	}
	return Result{Success: true, Data: candidates[r.pick(len(candidates))]}
}

func (r *Registry) listTopics() Result {
	var infos []TopicInfo
	for _, topic := range r.catalog.KnownTopics() {
		info := TopicInfo{
			Topic:       topic,
			Description: r.catalog.TopicDescription(topic),
		}
		for _, item := range r.catalog.Items() {
			if item.Topic != topic {
				continue
			}
			info.ItemCount++
			switch item.Difficulty {
			case model.DifficultyEasy:
				info.Difficulties.Easy++
			case model.DifficultyMedium:
				info.Difficulties.Medium++
			case model.DifficultyHard:
				info.Difficulties.Hard++
			}
		}
		infos = append(infos, info)
	}
	return Result{Success: true, Data: infos}
}

func (r *Registry) listSkills(input json.RawMessage) Result {
	var in ListSkillsInput
	if err := decodeInput(input, &in); err != nil {
		return failure("invalid list_skills input: %v", err)
	}

	tree := r.catalog.Tree()
	start := &tree
	if in.ParentID != "" {
		start = findNode(&tree, in.ParentID)
		if start == nil {
			return Result{Success: true, Data: nil}
		}
	}

	if in.Depth > 0 {
		truncated := truncateTree(*start, in.Depth, 1)
		return Result{Success: true, Data: truncated}
	}
	return Result{Success: true, Data: *start}
}

// decodeInput unmarshals and schema-validates a tool input. An empty raw
// input means "no arguments".
func decodeInput(input json.RawMessage, v any) error {
	if len(input) > 0 {
		if err := json.Unmarshal(input, v); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
	}
	return validate.Struct(v)
}
