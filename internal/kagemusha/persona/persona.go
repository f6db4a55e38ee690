// Package persona loads optional per-user persona hints from a YAML file.
//
// Hints refine generation only: a gender hint keeps grammatical forms
// consistent in gendered languages, and free-form notes are appended to the
// style instructions. Users without hints are imitated from samples alone.
package persona

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Hint is one user's persona configuration.
type Hint struct {
	// Username identifies the user the hint applies to (without "@").
	Username string `yaml:"username"`
	// Gender is "male", "female", or empty for no hint.
	Gender string `yaml:"gender,omitempty"`
	// Notes is free-form guidance appended to the style instructions.
	Notes string `yaml:"notes,omitempty"`
}

type document struct {
	Personas []Hint `yaml:"personas"`
}

// Hints is the loaded set of persona hints, keyed by username.
type Hints struct {
	byUsername map[string]Hint
}

// Empty returns a Hints set with no entries.
func Empty() *Hints {
	return &Hints{byUsername: map[string]Hint{}}
}

// Parse decodes and validates a persona YAML document.
func Parse(data []byte) (*Hints, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("persona parse: %w", err)
	}

	hints := Empty()
	for i, h := range doc.Personas {
		username := strings.TrimPrefix(strings.TrimSpace(h.Username), "@")
		if username == "" {
			return nil, fmt.Errorf("personas[%d]: username must not be empty", i)
		}
		switch h.Gender {
		case "", "male", "female":
		default:
			return nil, fmt.Errorf("personas[%d] (%q): gender must be male, female, or empty, got %q", i, username, h.Gender)
		}
		if _, dup := hints.byUsername[username]; dup {
			return nil, fmt.Errorf("personas[%d]: duplicate username %q", i, username)
		}
		h.Username = username
		hints.byUsername[username] = h
	}
	return hints, nil
}

// Load reads and parses the persona file at path.
func Load(path string) (*Hints, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona load: %w", err)
	}
	return Parse(data)
}

// Lookup returns the hint for a username (with or without a leading "@").
func (h *Hints) Lookup(username string) (Hint, bool) {
	hint, ok := h.byUsername[strings.TrimPrefix(username, "@")]
	return hint, ok
}

// Len returns the number of loaded hints.
func (h *Hints) Len() int {
	return len(h.byUsername)
}
