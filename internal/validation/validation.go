// Package validation checks prompt form fields before they reach the store.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/thebtf/promptrium/pkg/models"
)

// Field limits. Lengths are measured on trimmed text, in characters.
const (
	TitleMinLength       = 3
	TitleMaxLength       = 100
	ContentMinLength     = 10
	DescriptionMaxLength = 200
	TagsMaxCount         = 10
	TagMaxLength         = 20
)

// Field names a validated form field.
type Field string

const (
	FieldTitle       Field = "title"
	FieldContent     Field = "content"
	FieldDescription Field = "description"
	FieldTags        Field = "tags"
)

// Code identifies the violated rule.
type Code string

const (
	CodeRequired Code = "required"
	CodeTooShort Code = "too_short"
	CodeTooLong  Code = "too_long"
	CodeTooMany  Code = "too_many"
)

// FieldError is a single rule violation.
type FieldError struct {
	Field   Field  `json:"field"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Result is the outcome of Validate.
type Result struct {
	Errors []FieldError `json:"errors"`
	Valid  bool         `json:"is_valid"`
}

// Validate checks every rule and collects all violations; it never stops at
// the first one.
func Validate(data models.FormData) Result {
	var errs []FieldError
	add := func(f Field, c Code, msg string) {
		errs = append(errs, FieldError{Field: f, Code: c, Message: msg})
	}

	title := utf8.RuneCountInString(strings.TrimSpace(data.Title))
	switch {
	case title == 0:
		add(FieldTitle, CodeRequired, "Title is required")
	case title < TitleMinLength:
		add(FieldTitle, CodeTooShort, fmt.Sprintf("Title must be at least %d characters", TitleMinLength))
	case title > TitleMaxLength:
		add(FieldTitle, CodeTooLong, fmt.Sprintf("Title must be less than %d characters", TitleMaxLength))
	}

	content := utf8.RuneCountInString(strings.TrimSpace(data.Content))
	switch {
	case content == 0:
		add(FieldContent, CodeRequired, "Content is required")
	case content < ContentMinLength:
		add(FieldContent, CodeTooShort, fmt.Sprintf("Content must be at least %d characters", ContentMinLength))
	}

	if utf8.RuneCountInString(strings.TrimSpace(data.Description)) > DescriptionMaxLength {
		add(FieldDescription, CodeTooLong, fmt.Sprintf("Description must be less than %d characters", DescriptionMaxLength))
	}

	tags := trimTags(data.Tags)
	if len(tags) > TagsMaxCount {
		add(FieldTags, CodeTooMany, fmt.Sprintf("Maximum %d tags allowed", TagsMaxCount))
	}
	for _, tag := range tags {
		if utf8.RuneCountInString(tag) > TagMaxLength {
			add(FieldTags, CodeTooLong, fmt.Sprintf("Tag %q must be less than %d characters", tag, TagMaxLength))
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Messages returns the human-readable message of every violation, in rule order.
func (r Result) Messages() []string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return msgs
}

// ByField returns the first violation for each field, for inline display.
func (r Result) ByField() map[Field]FieldError {
	out := make(map[Field]FieldError, len(r.Errors))
	for _, e := range r.Errors {
		if _, ok := out[e.Field]; !ok {
			out[e.Field] = e
		}
	}
	return out
}

// Err returns nil for a valid result and an *Error otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &Error{Errors: r.Errors}
}

// Error is returned by store operations rejected by validation.
type Error struct {
	Errors []FieldError
}

func (e *Error) Error() string {
	return strings.Join(Result{Errors: e.Errors}.Messages(), ", ")
}

// Has reports whether the error contains a violation of code on field.
func (e *Error) Has(field Field, code Code) bool {
	for _, fe := range e.Errors {
		if fe.Field == field && fe.Code == code {
			return true
		}
	}
	return false
}

// NormalizeTags trims tags, drops empty ones and removes exact duplicates,
// keeping the first occurrence. Comparison is case-sensitive.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range trimTags(tags) {
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func trimTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if t := strings.TrimSpace(tag); t != "" {
			out = append(out, t)
		}
	}
	return out
}
