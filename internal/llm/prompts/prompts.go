// Package prompts holds the embedded system-prompt templates for the chat
// loop. Templates are loaded once and rendered with the curated topic list.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.txt
var templateFS embed.FS

// Variant selects a system-prompt persona.
type Variant string

const (
	// VariantFull is the learning-mode persona with the block wire formats
	// and tool instructions.
	VariantFull Variant = "full"
	// VariantPlain is the plain assistant persona used when learning mode
	// is off.
	VariantPlain Variant = "plain"
)

var validVariants = map[Variant]bool{
	VariantFull:  true,
	VariantPlain: true,
}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[Variant(v)]
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Variant]*template.Template
)

// systemData holds template data for system prompts.
type systemData struct {
	Topics string
}

// Load parses the embedded templates. It uses sync.Once to ensure templates
// are loaded only once.
func Load() error {
	loadOnce.Do(func() {
		templates = make(map[Variant]*template.Template)

		for _, v := range []Variant{VariantFull, VariantPlain} {
			name := "templates/system_" + string(v) + ".txt"

			content, err := templateFS.ReadFile(name)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + name + ": " + err.Error())
				return
			}

			tmpl, err := template.New("system").Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + name + ": " + err.Error())
				return
			}
			templates[v] = tmpl
		}
	})
	return loadErr
}

// BuildSystemPrompt renders the system prompt for the given variant,
// listing the curated topics the item bank covers.
func BuildSystemPrompt(variant Variant, topics []string) (string, error) {
	if templates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := templates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data := systemData{Topics: strings.Join(topics, ", ")}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
