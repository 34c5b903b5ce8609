// Package model defines the core legal research data types.
package model

import (
	"strings"
	"time"
)

// Kind identifies which entity table a record lives in.
type Kind string

const (
	KindEvent   Kind = "event"
	KindSnippet Kind = "snippet"
)

// DefaultGroup is the partition used when a caller does not name one.
const DefaultGroup = "default"

// DateLayout is the calendar date format for event dates.
const DateLayout = "2006-01-02"

// Event is a chronology entry.
type Event struct {
	ID             string    `json:"id"`
	Date           string    `json:"date"`
	Description    string    `json:"description"`
	Parties        []string  `json:"parties"`
	DocumentSource string    `json:"document_source,omitempty"`
	Excerpts       string    `json:"excerpts,omitempty"`
	Tags           []string  `json:"tags"`
	Significance   string    `json:"significance,omitempty"`
	GroupID        string    `json:"group_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Snippet is a legal research excerpt, usually from a precedent.
type Snippet struct {
	ID          string    `json:"id"`
	Citation    string    `json:"citation"`
	KeyLanguage string    `json:"key_language"`
	Tags        []string  `json:"tags"`
	Context     string    `json:"context,omitempty"`
	CaseType    string    `json:"case_type,omitempty"`
	GroupID     string    `json:"group_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ManualLink is an explicit relationship between one event and one snippet.
type ManualLink struct {
	ID               string    `json:"id"`
	EventID          string    `json:"event_id"`
	SnippetID        string    `json:"snippet_id"`
	RelationshipType string    `json:"relationship_type"`
	Confidence       float64   `json:"confidence"`
	Notes            string    `json:"notes,omitempty"`
	GroupID          string    `json:"group_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// ParseDate parses an event date, which must be YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// EmbeddingText is the text sent to the embedding provider for the event.
func (e *Event) EmbeddingText() string {
	return joinNonEmpty(e.Description, e.Excerpts, e.Significance)
}

// Title is a short human label for listings.
func (e *Event) Title() string {
	return e.Date + ": " + truncate(e.Description, 80)
}

// EmbeddingText is the text sent to the embedding provider for the snippet.
func (s *Snippet) EmbeddingText() string {
	return joinNonEmpty(s.Citation, s.KeyLanguage, s.Context)
}

// Title is a short human label for listings.
func (s *Snippet) Title() string {
	return s.Citation
}

// VectorPayload is the denormalized metadata stored next to the event vector.
func (e *Event) VectorPayload() map[string]any {
	return map[string]any{
		"type":        string(KindEvent),
		"date":        e.Date,
		"description": e.Description,
		"parties":     e.Parties,
		"tags":        e.Tags,
		"group_id":    e.GroupID,
	}
}

// VectorPayload is the denormalized metadata stored next to the snippet vector.
func (s *Snippet) VectorPayload() map[string]any {
	return map[string]any{
		"type":         string(KindSnippet),
		"citation":     s.Citation,
		"key_language": truncate(s.KeyLanguage, 200),
		"tags":         s.Tags,
		"case_type":    s.CaseType,
		"group_id":     s.GroupID,
	}
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
