// Package seed loads starter prompts from a YAML file.
package seed

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thebtf/promptrium/pkg/models"
)

// Entry is one starter prompt as written in the seed file.
type Entry struct {
	Title       string   `yaml:"title"`
	Content     string   `yaml:"content"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

// File is the top-level YAML structure.
type File struct {
	Prompts []Entry `yaml:"prompts"`
}

// Load reads the seed file at path. Entries without tags receive
// defaultTags. If the file does not exist, Load returns nil (not an error).
func Load(path string, defaultTags []string) ([]models.FormData, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	seeds, err := Parse(data, defaultTags)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return seeds, nil
}

// Parse decodes seed YAML. Entries with a blank title and blank content are
// skipped; the store validates the rest.
func Parse(data []byte, defaultTags []string) ([]models.FormData, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	out := make([]models.FormData, 0, len(f.Prompts))
	for _, e := range f.Prompts {
		if strings.TrimSpace(e.Title) == "" && strings.TrimSpace(e.Content) == "" {
			continue
		}
		tags := e.Tags
		if len(tags) == 0 {
			tags = slices.Clone(defaultTags)
		}
		out = append(out, models.FormData{
			Title:       e.Title,
			Content:     e.Content,
			Description: e.Description,
			Tags:        tags,
		})
	}
	return out, nil
}
