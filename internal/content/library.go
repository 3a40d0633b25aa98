// Package content holds the passages children read during a session.
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPassage is read when no passage is chosen.
const DefaultPassage = "peer-reading"

var (
	ErrPassageNotFound = errors.New("passage not found")
	ErrInvalidPassage  = errors.New("invalid passage")
)

//go:embed passages.yaml
var builtin []byte

// Passage is a titled list of sentences, read one sentence per turn.
type Passage struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Theme       string   `yaml:"theme" json:"theme"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Sentences   []string `yaml:"sentences" json:"sentences"`
}

// Len returns the number of sentences.
func (p Passage) Len() int {
	return len(p.Sentences)
}

type catalogue struct {
	Passages []Passage `yaml:"passages"`
}

// Library is an immutable set of passages keyed by id.
type Library struct {
	passages map[string]Passage
}

// Load returns the built-in library.
func Load() (*Library, error) {
	return Parse(builtin)
}

// LoadFile returns the built-in library with the passages from path added.
// A passage in the file replaces a built-in one with the same id.
func LoadFile(path string) (*Library, error) {
	lib, err := Load()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return lib, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read passages file: %w", err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for id, p := range extra.passages {
		lib.passages[id] = p
	}
	return lib, nil
}

// Parse decodes a YAML passage catalogue.
func Parse(data []byte) (*Library, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse passages: %w", err)
	}

	lib := &Library{passages: make(map[string]Passage, len(c.Passages))}
	for i, p := range c.Passages {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("%w: passage %d has no id", ErrInvalidPassage, i)
		}
		if _, dup := lib.passages[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidPassage, p.ID)
		}
		sentences := p.Sentences[:0]
		for _, s := range p.Sentences {
			if s = strings.TrimSpace(s); s != "" {
				sentences = append(sentences, s)
			}
		}
		if len(sentences) == 0 {
			return nil, fmt.Errorf("%w: %q has no sentences", ErrInvalidPassage, p.ID)
		}
		p.Sentences = sentences
		lib.passages[p.ID] = p
	}
	return lib, nil
}

// Get returns the passage with the given id.
func (l *Library) Get(id string) (Passage, error) {
	p, ok := l.passages[id]
	if !ok {
		return Passage{}, fmt.Errorf("%w: %s", ErrPassageNotFound, id)
	}
	out := p
	out.Sentences = append([]string(nil), p.Sentences...)
	return out, nil
}

// List returns every passage ordered by id.
func (l *Library) List() []Passage {
	out := make([]Passage, 0, len(l.passages))
	for _, p := range l.passages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByTheme returns the passages tagged with theme.
func (l *Library) ByTheme(theme string) []Passage {
	var out []Passage
	for _, p := range l.List() {
		if strings.EqualFold(p.Theme, theme) {
			out = append(out, p)
		}
	}
	return out
}
