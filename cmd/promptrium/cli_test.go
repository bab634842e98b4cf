package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/promptrium/internal/clipboard"
	"github.com/thebtf/promptrium/internal/transfer"
	"github.com/thebtf/promptrium/pkg/models"
)

// cliEnv runs commands against a database in a temporary data directory and
// records clipboard writes.
type cliEnv struct {
	dir string
	db  string

	mu     sync.Mutex
	copies []string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PROMPTRIUM_DATA_DIR", dir)

	env := &cliEnv{dir: dir, db: filepath.Join(dir, "cli.db")}
	orig := primaryClipboard
	primaryClipboard = clipboard.WriterFunc(func(_ context.Context, text string) error {
		env.mu.Lock()
		env.copies = append(env.copies, text)
		env.mu.Unlock()
		return nil
	})
	t.Cleanup(func() { primaryClipboard = orig })
	return env
}

// run executes one command and returns its stdout and stderr.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags()

	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(append(args, "--db", e.db))
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, stderr, err := e.run(t, stdin, args...)
	require.NoError(t, err, stderr)
	return out
}

func (e *cliEnv) list(t *testing.T, args ...string) []models.Prompt {
	t.Helper()
	out := e.mustRun(t, "", append([]string{"list", "--json"}, args...)...)
	var prompts []models.Prompt
	require.NoError(t, json.Unmarshal([]byte(out), &prompts), out)
	return prompts
}

func (e *cliEnv) add(t *testing.T, title, content string, tags ...string) string {
	t.Helper()
	args := []string{"add", "--title", title, "--content", content}
	for _, tag := range tags {
		args = append(args, "--tag", tag)
	}
	return strings.TrimSpace(e.mustRun(t, "", args...))
}

func (e *cliEnv) exportDoc(t *testing.T) transfer.Document {
	t.Helper()
	out := e.mustRun(t, "", "export", "-o", "-")
	var doc transfer.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc), out)
	return doc
}

// resetFlags restores every flag to its default; cobra keeps parsed values
// in package variables between executions.
func resetFlags() {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	rootCmd.Flags().VisitAll(reset)
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(reset)
	}
}

func titles(prompts []models.Prompt) []string {
	out := make([]string, len(prompts))
	for i, p := range prompts {
		out[i] = p.Title
	}
	return out
}

func TestCLI_AddAndList(t *testing.T) {
	env := newCLIEnv(t)

	review := env.add(t, "Code review", "Review this diff carefully.", "code", "review")
	require.NotEmpty(t, review)
	out := env.mustRun(t, "Summarize the text below.\n", "add", "--title", "Summarize", "--content", "-", "--tag", "writing")
	summarize := strings.TrimSpace(out)
	require.NotEmpty(t, summarize)

	all := env.list(t)
	require.Len(t, all, 2)
	for _, p := range all {
		if p.ID == summarize {
			assert.Contains(t, p.Content, "Summarize the text below.")
		}
	}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "tag", args: []string{"--tag", "code"}, want: []string{"Code review"}},
		{name: "every tag required", args: []string{"--tag", "code", "--tag", "writing"}, want: []string{}},
		{name: "query ignores case", args: []string{"--query", "SUMMARIZE"}, want: []string{"Summarize"}},
		{name: "query matches tags", args: []string{"-q", "review"}, want: []string{"Code review"}},
		{name: "name ascending", args: []string{"--sort", "name", "--order", "asc"}, want: []string{"Code review", "Summarize"}},
		{name: "name descending", args: []string{"--sort", "name", "--order", "desc"}, want: []string{"Summarize", "Code review"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, titles(env.list(t, tt.args...)))
		})
	}

	table := env.mustRun(t, "", "list")
	assert.Contains(t, table, "Code review")
	assert.Contains(t, table, "code, review")
}

func TestCLI_AddRejectsInvalidPrompt(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "", "add", "--title", "ab", "--content", "short")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid prompt:")
	assert.Contains(t, err.Error(), "Title must be at least 3 characters")
	assert.Contains(t, err.Error(), "Content must be at least 10 characters")
	assert.Empty(t, env.list(t))
}

func TestCLI_FavoriteCopyDelete(t *testing.T) {
	env := newCLIEnv(t)
	review := env.add(t, "Code review", "Review this diff carefully.")
	other := env.add(t, "Summarize", "Summarize the text below.")

	out := env.mustRun(t, "", "favorite", other)
	assert.Equal(t, other+" favorite=true\n", out)
	favorites := env.list(t, "--favorites")
	require.Len(t, favorites, 1)
	assert.Equal(t, other, favorites[0].ID)

	_, stderr, err := env.run(t, "", "copy", review)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Copied to clipboard!")
	env.mu.Lock()
	assert.Equal(t, []string{"Review this diff carefully."}, env.copies)
	env.mu.Unlock()

	byUsage := env.list(t, "--sort", "usage")
	require.Len(t, byUsage, 2)
	assert.Equal(t, review, byUsage[0].ID)
	assert.Equal(t, 1, byUsage[0].UsageCount)

	_, _, err = env.run(t, "", "copy", "missing-id")
	assert.Error(t, err)

	env.mustRun(t, "", "delete", review)
	_, _, err = env.run(t, "", "delete", review)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.Equal(t, []string{"Summarize"}, titles(env.list(t)))
}

func TestCLI_Export(t *testing.T) {
	env := newCLIEnv(t)
	env.add(t, "Code review", "Review this diff carefully.", "code")

	doc := env.exportDoc(t)
	require.Len(t, doc.Prompts, 1)
	assert.Equal(t, "Code review", doc.Prompts[0].Title)
	assert.Equal(t, transfer.Version, doc.Version)

	path := filepath.Join(env.dir, "backup.json")
	_, stderr, err := env.run(t, "", "export", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Exported 1 prompts to "+path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Code review")

	assert.Positive(t, env.exportDoc(t).Settings.LastBackup)
}

func TestCLI_FailedExportDoesNotRecordBackup(t *testing.T) {
	env := newCLIEnv(t)
	env.add(t, "Code review", "Review this diff carefully.")

	_, _, err := env.run(t, "", "export", "-o", filepath.Join(env.dir, "missing", "out.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write export")

	// The stdout export renders settings as they were before it commits.
	assert.Zero(t, env.exportDoc(t).Settings.LastBackup)
}

func TestCLI_Import(t *testing.T) {
	env := newCLIEnv(t)
	keep := env.add(t, "Keep me", "This prompt must survive.")

	tests := []struct {
		name string
		body string
	}{
		{name: "prompts not an array", body: `{"prompts": "nope"}`},
		{name: "missing prompts", body: `{"settings": {"theme": "dark"}}`},
		{name: "not json", body: `prompts: []`},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(env.dir, fmt.Sprintf("bad-%d.json", i))
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0600))

			_, _, err := env.run(t, "", "import", path)
			require.Error(t, err)

			prompts := env.list(t)
			require.Len(t, prompts, 1)
			assert.Equal(t, keep, prompts[0].ID)
		})
	}

	_, _, err := env.run(t, "", "import", filepath.Join(env.dir, "absent.json"))
	assert.Error(t, err)

	body := `{"prompts":[{"id":"a1","title":"First","content":"First imported prompt."},{"id":"a2","title":"Second","content":"Second imported prompt."}],"settings":{"theme":"dark"}}`
	_, stderr, err := env.run(t, body, "import", "-")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Imported 2 prompts")
	assert.ElementsMatch(t, []string{"First", "Second"}, titles(env.list(t)))
	assert.Equal(t, models.ThemeDark, env.exportDoc(t).Settings.Theme)
}

func TestCLI_Clear(t *testing.T) {
	env := newCLIEnv(t)
	env.add(t, "Code review", "Review this diff carefully.")

	_, _, err := env.run(t, "", "clear")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
	assert.Len(t, env.list(t), 1)

	env.mustRun(t, "", "clear", "--yes")
	assert.Empty(t, env.list(t))
}

func TestCLI_EphemeralLeavesDatabaseUntouched(t *testing.T) {
	env := newCLIEnv(t)

	env.mustRun(t, "", "add", "--ephemeral", "--title", "Temporary", "--content", "Only lives in memory.")
	_, err := os.Stat(env.db)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, env.list(t))
}

func TestCLI_Version(t *testing.T) {
	env := newCLIEnv(t)
	assert.Equal(t, "promptrium "+Version+"\n", env.mustRun(t, "", "version"))
}
