// Package models contains domain models for promptrium.
package models

import "slices"

// Prompt is a stored, reusable piece of text with tags and usage metadata.
// Timestamps are milliseconds since the Unix epoch.
type Prompt struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
	UsageCount  int      `json:"usage_count"`
	IsFavorite  bool     `json:"is_favorite"`
}

// Clone returns a copy of the prompt that shares no memory with p.
func (p Prompt) Clone() Prompt {
	c := p
	if p.Tags != nil {
		c.Tags = slices.Clone(p.Tags)
	}
	return c
}

// HasTag reports whether the prompt carries tag (exact match).
func (p Prompt) HasTag(tag string) bool {
	return slices.Contains(p.Tags, tag)
}

// FormData holds the user-editable fields of a prompt, as submitted by a form.
type FormData struct {
	Title       string   `json:"title" yaml:"title"`
	Content     string   `json:"content" yaml:"content"`
	Description string   `json:"description" yaml:"description"`
	Tags        []string `json:"tags" yaml:"tags"`
}

// ClonePrompts deep-copies a prompt slice. A nil input yields an empty slice.
func ClonePrompts(prompts []Prompt) []Prompt {
	out := make([]Prompt, len(prompts))
	for i := range prompts {
		out[i] = prompts[i].Clone()
	}
	return out
}
