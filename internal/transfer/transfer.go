// Package transfer exports the prompt library to a portable JSON document and
// restores it from one. Imported documents are untrusted: the shape is
// checked against a JSON schema and every field is decoded by type.
package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/thebtf/promptrium/pkg/models"
)

const (
	// Version is written to every exported document.
	Version = "1.0.0"
	// MIMEType is the content type of exported documents.
	MIMEType = "application/json"
	// MaxImportSize bounds how much ImportReader will read.
	MaxImportSize = 32 << 20
)

// documentSchema is the only structural requirement on imports: an object
// whose prompts field is an array.
var documentSchema = jsonschema.MustCompileString("promptrium-export.json", `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["prompts"],
	"properties": {
		"prompts": {"type": "array"}
	}
}`)

// Document is the export file layout.
type Document struct {
	Prompts    []models.Prompt `json:"prompts"`
	Settings   models.Settings `json:"settings"`
	ExportDate string          `json:"exportDate"`
	Version    string          `json:"version"`
}

// Snapshot is a decoded import.
type Snapshot struct {
	Prompts  []models.Prompt
	Settings models.SettingsPatch
	// Dropped counts prompts entries that were not JSON objects.
	Dropped    int
	Version    string
	ExportDate string
}

// ImportFormatError reports a document that cannot be imported.
type ImportFormatError struct {
	Reason string
	Err    error
}

func (e *ImportFormatError) Error() string {
	return "invalid data format: " + e.Reason
}

func (e *ImportFormatError) Unwrap() error {
	return e.Err
}

// Export builds the document for prompts and settings at time now.
func Export(prompts []models.Prompt, settings models.Settings, now time.Time) Document {
	return Document{
		Prompts:    models.ClonePrompts(prompts),
		Settings:   settings,
		ExportDate: FormatExportDate(now),
		Version:    Version,
	}
}

// FormatExportDate renders t as an ISO-8601 UTC timestamp with milliseconds.
func FormatExportDate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Marshal encodes doc with two-space indentation.
func Marshal(doc Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return data, nil
}

// Filename returns the suggested download name for an export made at now.
func Filename(now time.Time) string {
	return "promptrium-export-" + now.UTC().Format("2006-01-02") + ".json"
}

// ImportReader reads at most MaxImportSize bytes from r and decodes them.
func ImportReader(ctx context.Context, r io.Reader) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(io.LimitReader(r, MaxImportSize+1))
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	if len(raw) > MaxImportSize {
		return nil, &ImportFormatError{Reason: "file too large"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Import(raw)
}

// Import decodes raw. It fails with *ImportFormatError when raw is not JSON
// or its prompts field is missing or not an array. Prompt records are not
// validated; settings are reduced to the allowed, well-typed fields.
func Import(raw []byte) (*Snapshot, error) {
	if !json.Valid(raw) {
		return nil, &ImportFormatError{Reason: "not valid JSON"}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &ImportFormatError{Reason: "not valid JSON", Err: err}
	}

	if err := documentSchema.Validate(doc); err != nil {
		return nil, &ImportFormatError{Reason: shapeReason(doc), Err: err}
	}

	root := doc.(map[string]any)
	items := root["prompts"].([]any)

	snap := &Snapshot{Prompts: make([]models.Prompt, 0, len(items))}
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			snap.Dropped++
			continue
		}
		snap.Prompts = append(snap.Prompts, decodePrompt(obj))
	}
	if obj, ok := root["settings"].(map[string]any); ok {
		snap.Settings = decodeSettings(obj)
	}
	snap.Version, _ = root["version"].(string)
	snap.ExportDate, _ = root["exportDate"].(string)
	return snap, nil
}

func shapeReason(doc any) string {
	root, ok := doc.(map[string]any)
	if !ok {
		return "document must be a JSON object"
	}
	if _, ok := root["prompts"]; !ok {
		return "missing prompts"
	}
	return "prompts must be an array"
}

func decodePrompt(obj map[string]any) models.Prompt {
	var p models.Prompt
	p.ID, _ = obj["id"].(string)
	p.Title, _ = obj["title"].(string)
	p.Content, _ = obj["content"].(string)
	p.Description, _ = obj["description"].(string)
	p.IsFavorite, _ = obj["is_favorite"].(bool)
	if n, ok := integer(obj["created_at"]); ok {
		p.CreatedAt = n
	}
	if n, ok := integer(obj["updated_at"]); ok {
		p.UpdatedAt = n
	}
	if n, ok := integer(obj["usage_count"]); ok && n >= 0 {
		p.UsageCount = int(n)
	}
	if list, ok := obj["tags"].([]any); ok {
		p.Tags = make([]string, 0, len(list))
		for _, v := range list {
			if tag, ok := v.(string); ok {
				p.Tags = append(p.Tags, tag)
			}
		}
	}
	return p
}

func decodeSettings(obj map[string]any) models.SettingsPatch {
	var patch models.SettingsPatch
	if v, ok := obj["theme"].(string); ok {
		t := models.Theme(v)
		patch.Theme = &t
	}
	if v, ok := obj["view_mode"].(string); ok {
		m := models.ViewMode(v)
		patch.ViewMode = &m
	}
	if v, ok := obj["layout_density"].(string); ok {
		d := models.LayoutDensity(v)
		patch.LayoutDensity = &d
	}
	if n, ok := integer(obj["last_backup"]); ok {
		patch.LastBackup = &n
	}
	return patch.Sanitized()
}

// integer converts a decoded JSON number to int64, truncating fractions.
func integer(v any) (int64, bool) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if n, err := num.Int64(); err == nil {
		return n, true
	}
	f, err := num.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
