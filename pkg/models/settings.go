package models

// Theme is the colour scheme preference.
type Theme string

// ViewMode controls how prompt cards are laid out.
type ViewMode string

// LayoutDensity controls spacing between prompt cards.
type LayoutDensity string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"

	ViewModeGrid ViewMode = "grid"
	ViewModeList ViewMode = "list"

	DensityCompact     LayoutDensity = "compact"
	DensityComfortable LayoutDensity = "comfortable"
	DensityExpanded    LayoutDensity = "expanded"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Valid reports whether v is a known view mode.
func (v ViewMode) Valid() bool {
	return v == ViewModeGrid || v == ViewModeList
}

// Valid reports whether d is a known layout density.
func (d LayoutDensity) Valid() bool {
	switch d {
	case DensityCompact, DensityComfortable, DensityExpanded:
		return true
	}
	return false
}

// Settings is the singleton preferences record.
type Settings struct {
	Theme         Theme         `json:"theme"`
	ViewMode      ViewMode      `json:"view_mode"`
	LayoutDensity LayoutDensity `json:"layout_density,omitempty"`
	LastBackup    int64         `json:"last_backup"`
}

// DefaultSettings returns the settings used on first load and after a reset.
func DefaultSettings() Settings {
	return Settings{
		Theme:         ThemeLight,
		ViewMode:      ViewModeGrid,
		LayoutDensity: DensityComfortable,
		LastBackup:    0,
	}
}

// SettingsPatch is a partial settings update. Nil fields are left untouched.
type SettingsPatch struct {
	Theme         *Theme         `json:"theme,omitempty"`
	ViewMode      *ViewMode      `json:"view_mode,omitempty"`
	LayoutDensity *LayoutDensity `json:"layout_density,omitempty"`
	LastBackup    *int64         `json:"last_backup,omitempty"`
}

// Sanitized drops every field whose value is outside the allowed set.
func (p SettingsPatch) Sanitized() SettingsPatch {
	var out SettingsPatch
	if p.Theme != nil && p.Theme.Valid() {
		out.Theme = p.Theme
	}
	if p.ViewMode != nil && p.ViewMode.Valid() {
		out.ViewMode = p.ViewMode
	}
	if p.LayoutDensity != nil && p.LayoutDensity.Valid() {
		out.LayoutDensity = p.LayoutDensity
	}
	if p.LastBackup != nil && *p.LastBackup > 0 {
		out.LastBackup = p.LastBackup
	}
	return out
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.Theme == nil && p.ViewMode == nil && p.LayoutDensity == nil && p.LastBackup == nil
}

// Apply returns s with the patch merged over it field by field.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.ViewMode != nil {
		s.ViewMode = *p.ViewMode
	}
	if p.LayoutDensity != nil {
		s.LayoutDensity = *p.LayoutDensity
	}
	if p.LastBackup != nil {
		s.LastBackup = *p.LastBackup
	}
	return s
}
