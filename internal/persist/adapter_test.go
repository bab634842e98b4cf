package persist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/promptrium/pkg/models"
)

func TestLoad_MissingKeyReturnsDefault(t *testing.T) {
	a := NewAdapter(NewMemoryBackend())
	got := Load(context.Background(), a, KeySettings, models.DefaultSettings())
	assert.Equal(t, models.DefaultSettings(), got)
}

func TestLoad_NoBackendReturnsDefault(t *testing.T) {
	a := NewAdapter(nil)
	assert.False(t, a.Available())

	got := Load(context.Background(), a, KeyPrompts, []models.Prompt{})
	assert.NotNil(t, got)
	assert.Empty(t, got)

	assert.ErrorIs(t, a.Save(context.Background(), KeyPrompts, got), ErrUnavailable)
	assert.False(t, a.Exists(context.Background(), KeyPrompts))
}

func TestLoad_ShallowMergesObjects(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	require.NoError(t, mem.Set(ctx, KeySettings, []byte(`{"theme":"dark"}`)))

	got := Load(ctx, NewAdapter(mem), KeySettings, models.DefaultSettings())

	assert.Equal(t, models.ThemeDark, got.Theme)
	assert.Equal(t, models.ViewModeGrid, got.ViewMode)
	assert.Equal(t, models.DensityComfortable, got.LayoutDensity)
}

func TestLoad_ArrayReplacesDefault(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	require.NoError(t, mem.Set(ctx, KeyPrompts, []byte(`[{"id":"a","title":"One"}]`)))

	def := []models.Prompt{{ID: "seed"}}
	got := Load(ctx, NewAdapter(mem), KeyPrompts, def)

	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "One", got[0].Title)
}

func TestLoad_BadValuesReturnDefault(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "whitespace", raw: "   "},
		{name: "null", raw: "null"},
		{name: "truncated", raw: `{"theme":`},
		{name: "garbage", raw: "not json"},
		{name: "wrong type", raw: `{"theme":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mem := NewMemoryBackend()
			require.NoError(t, mem.Set(ctx, KeySettings, []byte(tt.raw)))

			got := Load(ctx, NewAdapter(mem), KeySettings, models.DefaultSettings())
			assert.Equal(t, models.DefaultSettings(), got)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	a := NewAdapter(mem)

	prompts := []models.Prompt{{ID: "x", Title: "Hello", Tags: []string{"t"}, UsageCount: 2}}
	require.NoError(t, a.Save(ctx, KeyPrompts, prompts))
	assert.True(t, a.Exists(ctx, KeyPrompts))
	assert.Equal(t, prompts, Load(ctx, a, KeyPrompts, []models.Prompt{}))
}

func TestSave_WriteFailureIsReturned(t *testing.T) {
	boom := errors.New("quota exceeded")
	mem := NewMemoryBackend()
	mem.FailWrites = boom

	err := NewAdapter(mem).Save(context.Background(), KeySettings, models.DefaultSettings())
	assert.ErrorIs(t, err, boom)
}

func TestSetBackend(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter(nil)
	assert.False(t, a.Exists(ctx, KeySettings))

	mem := NewMemoryBackend()
	a.SetBackend(mem)
	assert.True(t, a.Available())
	require.NoError(t, a.Save(ctx, KeySettings, models.DefaultSettings()))
	assert.JSONEq(t, `{"theme":"light","view_mode":"grid","layout_density":"comfortable","last_backup":0}`, mem.Raw(KeySettings))
}
