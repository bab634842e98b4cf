package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	seeds, err := Load("/nonexistent/path/that/does/not/exist.yaml", nil)
	require.NoError(t, err)
	assert.Nil(t, seeds)

	seeds, err = Load("", nil)
	require.NoError(t, err)
	assert.Nil(t, seeds)
}

func TestLoadValidYAML(t *testing.T) {
	const yamlContent = `
prompts:
  - title: Code review
    content: Review this diff for correctness.
    description: Asks for a careful review
    tags: [code, review]
  - title: Summarise
    content: Summarise the following text in three bullets.
`
	dir := t.TempDir()
	path := filepath.Join(dir, "seeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0600))

	seeds, err := Load(path, []string{"starter"})
	require.NoError(t, err)
	require.Len(t, seeds, 2)

	assert.Equal(t, "Code review", seeds[0].Title)
	assert.Equal(t, "Asks for a careful review", seeds[0].Description)
	assert.Equal(t, []string{"code", "review"}, seeds[0].Tags)

	assert.Equal(t, "Summarise", seeds[1].Title)
	assert.Empty(t, seeds[1].Description)
	assert.Equal(t, []string{"starter"}, seeds[1].Tags)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\tinvalid:\tyaml:\t[unclosed"), 0600))

	seeds, err := Load(path, nil)
	assert.Error(t, err)
	assert.Nil(t, seeds)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		defaultTags []string
		wantTitles  []string
	}{
		{
			name:       "empty document",
			yaml:       "",
			wantTitles: []string{},
		},
		{
			name:       "no prompts key",
			yaml:       "other: 1\n",
			wantTitles: []string{},
		},
		{
			name: "blank entries skipped",
			yaml: `
prompts:
  - title: "  "
    content: ""
  - title: Kept
    content: body
`,
			wantTitles: []string{"Kept"},
		},
		{
			name: "order preserved",
			yaml: `
prompts:
  - {title: B, content: b}
  - {title: A, content: a}
`,
			wantTitles: []string{"B", "A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seeds, err := Parse([]byte(tt.yaml), tt.defaultTags)
			require.NoError(t, err)
			titles := []string{}
			for _, s := range seeds {
				titles = append(titles, s.Title)
			}
			assert.Equal(t, tt.wantTitles, titles)
		})
	}
}

func TestParse_DefaultTagsAreCopied(t *testing.T) {
	defaults := []string{"starter"}
	seeds, err := Parse([]byte("prompts:\n  - {title: A, content: a}\n  - {title: B, content: b}\n"), defaults)
	require.NoError(t, err)
	require.Len(t, seeds, 2)

	seeds[0].Tags[0] = "changed"
	assert.Equal(t, "starter", seeds[1].Tags[0])
	assert.Equal(t, "starter", defaults[0])
}
