// Package prompts resolves instructional text for tools and guides from an
// embedded YAML document, addressed by dotted key paths.
package prompts

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsFS embed.FS

// Manager loads prompt text by dotted key (e.g. "guides.codesearch_guide").
type Manager struct {
	doc map[string]any
}

// NewManager parses the embedded prompts document.
func NewManager() (*Manager, error) {
	raw, err := promptsFS.ReadFile("prompts.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading prompts document: %w", err)
	}

	doc := map[string]any{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing prompts document: %w", err)
	}
	return &Manager{doc: doc}, nil
}

// Load returns the text at the given dotted key path. It fails when any
// segment is absent or the leaf is not a string; the caller decides whether
// absence is fatal.
func (m *Manager) Load(dottedKey string) (string, error) {
	node := any(m.doc)
	for _, part := range strings.Split(dottedKey, ".") {
		section, ok := node.(map[string]any)
		if !ok {
			return "", fmt.Errorf("prompt key %q: %q is not a section", dottedKey, part)
		}
		node, ok = section[part]
		if !ok {
			return "", fmt.Errorf("prompt key %q not found", dottedKey)
		}
	}

	text, ok := node.(string)
	if !ok {
		return "", fmt.Errorf("prompt key %q is not text", dottedKey)
	}
	return text, nil
}

// LoadOptional returns the text at the key, or "" when the key is absent.
func (m *Manager) LoadOptional(dottedKey string) string {
	text, err := m.Load(dottedKey)
	if err != nil {
		return ""
	}
	return text
}
