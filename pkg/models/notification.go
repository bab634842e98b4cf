package models

// Severity classifies a notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Notification is transient user feedback (a toast). It is never persisted.
// Duration is in milliseconds.
type Notification struct {
	ID       string   `json:"id"`
	Type     Severity `json:"type"`
	Title    string   `json:"title"`
	Message  string   `json:"message,omitempty"`
	Duration int      `json:"duration,omitempty"`
}
