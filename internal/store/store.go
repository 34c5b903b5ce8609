// Package store provides the authoritative relational store for events, snippets and links.
package store

import (
	"errors"

	"github.com/medelman17/suechef/internal/model"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidID    = errors.New("invalid id format")
	ErrInvalidDate  = errors.New("invalid date format, use YYYY-MM-DD")
	ErrMissingField = errors.New("missing required field")
	ErrNoChanges    = errors.New("no fields provided for update")
	ErrOutOfRange   = errors.New("value out of range")
)

// DefaultListLimit is the page size used when a list call does not set one.
const DefaultListLimit = 50

// EventInput holds the fields for creating an event.
type EventInput struct {
	Date           string
	Description    string
	Parties        []string
	DocumentSource string
	Excerpts       string
	Tags           []string
	Significance   string
	GroupID        string
}

// EventPatch holds the fields to change on an event. Nil means unchanged.
type EventPatch struct {
	Date           *string
	Description    *string
	Parties        *[]string
	DocumentSource *string
	Excerpts       *string
	Tags           *[]string
	Significance   *string
}

// Empty reports whether the patch changes nothing.
func (p EventPatch) Empty() bool {
	return p.Date == nil && p.Description == nil && p.Parties == nil && p.DocumentSource == nil &&
		p.Excerpts == nil && p.Tags == nil && p.Significance == nil
}

// TextChanged reports whether the patch touches any field that feeds the embedding.
func (p EventPatch) TextChanged() bool {
	return p.Description != nil || p.Excerpts != nil || p.Significance != nil
}

// SnippetInput holds the fields for creating a snippet.
type SnippetInput struct {
	Citation    string
	KeyLanguage string
	Tags        []string
	Context     string
	CaseType    string
	GroupID     string
}

// SnippetPatch holds the fields to change on a snippet. Nil means unchanged.
type SnippetPatch struct {
	Citation    *string
	KeyLanguage *string
	Tags        *[]string
	Context     *string
	CaseType    *string
}

// Empty reports whether the patch changes nothing.
func (p SnippetPatch) Empty() bool {
	return p.Citation == nil && p.KeyLanguage == nil && p.Tags == nil && p.Context == nil && p.CaseType == nil
}

// TextChanged reports whether the patch touches any field that feeds the embedding.
func (p SnippetPatch) TextChanged() bool {
	return p.Citation != nil || p.KeyLanguage != nil || p.Context != nil
}

// EventFilter holds parameters for listing events.
type EventFilter struct {
	GroupID  string
	DateFrom string
	DateTo   string
	Parties  []string // match any
	Tags     []string // match any
	Limit    int
	Offset   int
}

// SnippetFilter holds parameters for listing snippets.
type SnippetFilter struct {
	GroupID  string
	CaseType string
	Tags     []string // match any
	Limit    int
	Offset   int
}

// EventPage is one page of a filtered event listing.
type EventPage struct {
	Events []model.Event `json:"events"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// SnippetPage is one page of a filtered snippet listing.
type SnippetPage struct {
	Snippets []model.Snippet `json:"snippets"`
	Total    int             `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

// LinkInput holds parameters for creating or updating a manual link.
type LinkInput struct {
	EventID          string
	SnippetID        string
	RelationshipType string
	Confidence       *float64 // nil means 1.0
	Notes            string
	GroupID          string
}

// Counts holds row counts for one group, or for the whole store when the group is empty.
type Counts struct {
	Events   int `json:"events"`
	Snippets int `json:"snippets"`
	Links    int `json:"links"`
}

func normalizeGroup(g string) string {
	if g == "" {
		return model.DefaultGroup
	}
	return g
}

func pageLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return n
}
