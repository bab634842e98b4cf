// Package view derives the filtered, sorted prompt list shown to the user.
// Everything here is a pure function of its inputs.
package view

import (
	"cmp"
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/thebtf/promptrium/pkg/models"
)

// SortKey selects the field prompts are ordered by.
type SortKey string

const (
	SortUpdated SortKey = "updated"
	SortCreated SortKey = "created"
	SortName    SortKey = "name"
	SortUsage   SortKey = "usage"
)

// Order is the sort direction.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Criteria are the ephemeral filter settings owned by the UI.
type Criteria struct {
	Query         string   `json:"query"`
	SortBy        SortKey  `json:"sort_by"`
	Order         Order    `json:"sort_order"`
	Tags          []string `json:"tags"`
	FavoritesOnly bool     `json:"favorites_only"`
}

// DefaultCriteria shows everything, most recently updated first.
func DefaultCriteria() Criteria {
	return Criteria{SortBy: SortUpdated, Order: OrderDesc, Tags: []string{}}
}

// ParseSortKey maps user input to a SortKey. Unknown keys fall back to SortUpdated.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortUpdated, SortCreated, SortName, SortUsage:
		return k
	}
	return SortUpdated
}

// ParseOrder maps user input to an Order. Anything but "asc" is descending.
func ParseOrder(s string) Order {
	if Order(strings.ToLower(strings.TrimSpace(s))) == OrderAsc {
		return OrderAsc
	}
	return OrderDesc
}

// Derive returns the prompts matching c, ordered by c.SortBy. The input slice
// is never modified. Prompts that compare equal keep their input order.
func Derive(prompts []models.Prompt, c Criteria) []models.Prompt {
	out := make([]models.Prompt, 0, len(prompts))
	needle := ""
	if strings.TrimSpace(c.Query) != "" {
		needle = strings.ToLower(c.Query)
	}

	for _, p := range prompts {
		if needle != "" && !matchesQuery(p, needle) {
			continue
		}
		if !hasAllTags(p, c.Tags) {
			continue
		}
		if c.FavoritesOnly && !p.IsFavorite {
			continue
		}
		out = append(out, p)
	}

	compare := comparator(c.SortBy)
	desc := c.Order != OrderAsc
	slices.SortStableFunc(out, func(a, b models.Prompt) int {
		if desc {
			return -compare(a, b)
		}
		return compare(a, b)
	})
	return out
}

// AllTags returns every distinct tag across prompts, sorted.
func AllTags(prompts []models.Prompt) []string {
	set := make(map[string]struct{})
	for _, p := range prompts {
		for _, tag := range p.Tags {
			set[tag] = struct{}{}
		}
	}
	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func matchesQuery(p models.Prompt, needle string) bool {
	if strings.Contains(strings.ToLower(p.Title), needle) ||
		strings.Contains(strings.ToLower(p.Content), needle) ||
		strings.Contains(strings.ToLower(p.Description), needle) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

func hasAllTags(p models.Prompt, required []string) bool {
	for _, tag := range required {
		if !p.HasTag(tag) {
			return false
		}
	}
	return true
}

func comparator(key SortKey) func(a, b models.Prompt) int {
	switch key {
	case SortName:
		// Collators keep scratch buffers, so each derivation gets its own.
		col := collate.New(language.Und)
		return func(a, b models.Prompt) int {
			return col.CompareString(a.Title, b.Title)
		}
	case SortCreated:
		return func(a, b models.Prompt) int { return cmp.Compare(a.CreatedAt, b.CreatedAt) }
	case SortUsage:
		return func(a, b models.Prompt) int { return cmp.Compare(a.UsageCount, b.UsageCount) }
	default:
		return func(a, b models.Prompt) int { return cmp.Compare(a.UpdatedAt, b.UpdatedAt) }
	}
}
