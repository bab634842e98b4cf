package transfer

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/promptrium/pkg/models"
)

var exportTime = time.Date(2024, 3, 9, 17, 4, 5, 123_000_000, time.UTC)

func samplePrompts() []models.Prompt {
	return []models.Prompt{
		{
			ID: "a", Title: "First prompt", Content: "Content number one",
			Description: "desc", Tags: []string{"go", "Go"},
			CreatedAt: 1_700_000_000_000, UpdatedAt: 1_700_000_001_000,
			UsageCount: 3, IsFavorite: true,
		},
		{
			ID: "b", Title: "Second prompt", Content: "Content number two",
			Tags: []string{}, CreatedAt: 1_700_000_002_000, UpdatedAt: 1_700_000_002_000,
		},
		{ID: "c", Title: "Legacy", Content: "Imported earlier without tags"},
	}
}

func TestExport(t *testing.T) {
	settings := models.Settings{Theme: models.ThemeDark, ViewMode: models.ViewModeList, LastBackup: 5}
	doc := Export(samplePrompts(), settings, exportTime)

	assert.Equal(t, Version, doc.Version)
	assert.Equal(t, "2024-03-09T17:04:05.123Z", doc.ExportDate)
	assert.Equal(t, settings, doc.Settings)
	assert.Equal(t, samplePrompts(), doc.Prompts)

	data, err := Marshal(doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n  \"prompts\": ["))
	assert.Contains(t, string(data), `"exportDate": "2024-03-09T17:04:05.123Z"`)
	assert.Contains(t, string(data), `"version": "1.0.0"`)
}

func TestExport_EmptyCollectionEncodesArray(t *testing.T) {
	data, err := Marshal(Export(nil, models.DefaultSettings(), exportTime))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"prompts": []`)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "promptrium-export-2024-03-09.json", Filename(exportTime))

	late := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600))
	assert.Equal(t, "promptrium-export-2024-03-10.json", Filename(late))
}

func TestRoundTrip(t *testing.T) {
	settings := models.Settings{Theme: models.ThemeDark, ViewMode: models.ViewModeList, LayoutDensity: models.DensityCompact, LastBackup: 1_700_000_000_000}
	data, err := Marshal(Export(samplePrompts(), settings, exportTime))
	require.NoError(t, err)

	snap, err := Import(data)
	require.NoError(t, err)

	assert.Equal(t, samplePrompts(), snap.Prompts)
	assert.Equal(t, settings, snap.Settings.Apply(models.DefaultSettings()))
	assert.Equal(t, Version, snap.Version)
	assert.Equal(t, "2024-03-09T17:04:05.123Z", snap.ExportDate)
	assert.Zero(t, snap.Dropped)
}

func TestImport_RejectsBadShapes(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{name: "not json", raw: `{"prompts": [`, reason: "not valid JSON"},
		{name: "empty", raw: ``, reason: "not valid JSON"},
		{name: "array root", raw: `[]`, reason: "document must be a JSON object"},
		{name: "string root", raw: `"prompts"`, reason: "document must be a JSON object"},
		{name: "missing prompts", raw: `{"settings":{}}`, reason: "missing prompts"},
		{name: "string prompts", raw: `{"prompts":"not-an-array"}`, reason: "prompts must be an array"},
		{name: "null prompts", raw: `{"prompts":null}`, reason: "prompts must be an array"},
		{name: "object prompts", raw: `{"prompts":{"0":{}}}`, reason: "prompts must be an array"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Import([]byte(tt.raw))
			assert.Nil(t, snap)

			var ferr *ImportFormatError
			require.True(t, errors.As(err, &ferr), "got %v", err)
			assert.Equal(t, tt.reason, ferr.Reason)
			assert.Equal(t, "invalid data format: "+tt.reason, err.Error())
		})
	}
}

func TestImport_LenientPrompts(t *testing.T) {
	raw := `{"prompts":[
		{"id":"ok","title":"Fine","content":"c","tags":["x",3,"y"],"usage_count":2.0,"is_favorite":"yes"},
		42,
		"text",
		{"title":7,"created_at":"yesterday","usage_count":-4},
		{}
	]}`

	snap, err := Import([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Dropped)
	require.Len(t, snap.Prompts, 3)

	assert.Equal(t, models.Prompt{ID: "ok", Title: "Fine", Content: "c", Tags: []string{"x", "y"}, UsageCount: 2}, snap.Prompts[0])
	assert.Equal(t, models.Prompt{}, snap.Prompts[1])
	assert.Equal(t, models.Prompt{}, snap.Prompts[2])
	assert.True(t, snap.Settings.IsEmpty())
}

func TestImport_SettingsAllowList(t *testing.T) {
	tests := []struct {
		name     string
		settings string
		want     models.Settings
	}{
		{
			name:     "all valid",
			settings: `{"theme":"dark","view_mode":"list","layout_density":"expanded","last_backup":1700000000000}`,
			want:     models.Settings{Theme: models.ThemeDark, ViewMode: models.ViewModeList, LayoutDensity: models.DensityExpanded, LastBackup: 1700000000000},
		},
		{
			name:     "bad enums dropped",
			settings: `{"theme":"neon","view_mode":"table","layout_density":"roomy"}`,
			want:     models.DefaultSettings(),
		},
		{
			name:     "wrong types dropped",
			settings: `{"theme":1,"view_mode":true,"last_backup":"soon"}`,
			want:     models.DefaultSettings(),
		},
		{
			name:     "non-positive backup dropped",
			settings: `{"last_backup":0,"theme":"dark"}`,
			want:     models.Settings{Theme: models.ThemeDark, ViewMode: models.ViewModeGrid, LayoutDensity: models.DensityComfortable},
		},
		{
			name:     "unknown keys ignored",
			settings: `{"admin":true,"view_mode":"list"}`,
			want:     models.Settings{Theme: models.ThemeLight, ViewMode: models.ViewModeList, LayoutDensity: models.DensityComfortable},
		},
		{
			name:     "non-object settings ignored",
			settings: `"dark"`,
			want:     models.DefaultSettings(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Import([]byte(`{"prompts":[],"settings":` + tt.settings + `}`))
			require.NoError(t, err)
			assert.Equal(t, tt.want, snap.Settings.Apply(models.DefaultSettings()))
		})
	}
}

func TestImportReader(t *testing.T) {
	snap, err := ImportReader(context.Background(), strings.NewReader(`{"prompts":[{"id":"r"}]}`))
	require.NoError(t, err)
	require.Len(t, snap.Prompts, 1)
	assert.Equal(t, "r", snap.Prompts[0].ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ImportReader(ctx, strings.NewReader(`{"prompts":[]}`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImportReader_TooLarge(t *testing.T) {
	big := strings.NewReader(`{"prompts":["` + strings.Repeat("x", MaxImportSize) + `"]}`)
	_, err := ImportReader(context.Background(), big)

	var ferr *ImportFormatError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "file too large", ferr.Reason)
}

func TestInteger(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   int64
		wantOK bool
	}{
		{name: "integer", in: json.Number("1700000000000"), want: 1700000000000, wantOK: true},
		{name: "fraction truncated", in: json.Number("12.9"), want: 12, wantOK: true},
		{name: "negative fraction", in: json.Number("-3.5"), want: -3, wantOK: true},
		{name: "min int64", in: json.Number("-9223372036854775808"), want: math.MinInt64, wantOK: true},
		{name: "two to the 63", in: json.Number("9223372036854775808"), wantOK: false},
		{name: "exponent overflow", in: json.Number("1e19"), wantOK: false},
		{name: "below min", in: json.Number("-1e19"), wantOK: false},
		{name: "string", in: "42", wantOK: false},
		{name: "nil", in: nil, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := integer(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
