// Package tool implements the fixed tool registry the chat loop exposes to
// the model: item lookup, topic listing and the skill tree. Tools are pure
// and synchronous; they consult the embedded catalog and never touch the
// network.
package tool

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/learnchat/learnchat/internal/model"
)

//go:embed data/*.json
var dataFS embed.FS

// ItemBank is the embedded catalog of curated assessment items.
type ItemBank struct {
	Version string       `json:"version"`
	Items   []model.Item `json:"items"`
}

// SkillNode is one node of the skill hierarchy.
type SkillNode struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Children []SkillNode `json:"children,omitempty"`
}

// Catalog bundles the static data sources the tools read from.
type Catalog struct {
	bank ItemBank
	tree SkillNode
}

var (
	catalogOnce sync.Once
	catalog     *Catalog
	catalogErr  error
)

// topicDescriptions documents the curated topics for the list_topics tool.
var topicDescriptions = map[string]string{
	"js-this":      "JavaScript `this` binding rules and context",
	"js-closures":  "Closures, lexical scoping, and function scope",
	"js-async":     "Promises, async/await, and the event loop",
	"js-prototypes": "Prototypal inheritance and the prototype chain",
	"js-timers":    "setTimeout, setInterval, and microtask/macrotask ordering",
	"js-patterns":  "Common JavaScript patterns: destructuring, spread, getters",
	"html-events":  "DOM events: bubbling, capturing, and delegation",
}

// knownTopics is the fixed presentation order of curated topics.
var knownTopics = []string{
	"js-this",
	"js-closures",
	"js-async",
	"js-prototypes",
	"js-timers",
	"js-patterns",
	"html-events",
}

// LoadCatalog parses the embedded item bank and skill tree once and returns
// the shared catalog.
func LoadCatalog() (*Catalog, error) {
	catalogOnce.Do(func() {
		c := &Catalog{}

		data, err := dataFS.ReadFile("data/item_bank.json")
		if err != nil {
			catalogErr = fmt.Errorf("read item bank: %w", err)
			return
		}
		if err := json.Unmarshal(data, &c.bank); err != nil {
			catalogErr = fmt.Errorf("parse item bank: %w", err)
			return
		}

		data, err = dataFS.ReadFile("data/skill_tree.json")
		if err != nil {
			catalogErr = fmt.Errorf("read skill tree: %w", err)
			return
		}
		var wrapper struct {
			Tree SkillNode `json:"tree"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			catalogErr = fmt.Errorf("parse skill tree: %w", err)
			return
		}
		c.tree = wrapper.Tree

		catalog = c
	})
	return catalog, catalogErr
}

// Items returns all curated items.
func (c *Catalog) Items() []model.Item {
	return c.bank.Items
}

// Tree returns the root of the skill hierarchy.
func (c *Catalog) Tree() SkillNode {
	return c.tree
}

// KnownTopics returns the curated topic names in presentation order.
func (c *Catalog) KnownTopics() []string {
	return knownTopics
}

// TopicDescription returns the human description for a curated topic.
func (c *Catalog) TopicDescription(topic string) string {
	if d, ok := topicDescriptions[topic]; ok {
		return d
	}
	return "No description available"
}

// findNode locates a node by ID anywhere in the subtree, or nil.
func findNode(node *SkillNode, id string) *SkillNode {
	if node.ID == id {
		return node
	}
	for i := range node.Children {
		if found := findNode(&node.Children[i], id); found != nil {
			return found
		}
	}
	return nil
}

// truncateTree copies a subtree down to maxDepth levels.
func truncateTree(node SkillNode, maxDepth, depth int) SkillNode {
	if depth >= maxDepth || len(node.Children) == 0 {
		return SkillNode{ID: node.ID, Name: node.Name}
	}
	out := SkillNode{ID: node.ID, Name: node.Name}
	for _, child := range node.Children {
		out.Children = append(out.Children, truncateTree(child, maxDepth, depth+1))
	}
	return out
}
