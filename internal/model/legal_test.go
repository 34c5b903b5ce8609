package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventEmbeddingText(t *testing.T) {
	e := &Event{Description: "Water leak reported", Significance: "notice to landlord"}
	assert.Equal(t, "Water leak reported notice to landlord", e.EmbeddingText())

	e.Excerpts = "ceiling dripping"
	assert.Equal(t, "Water leak reported ceiling dripping notice to landlord", e.EmbeddingText())
}

func TestSnippetPayloadAndEmbeddingText(t *testing.T) {
	s := &Snippet{Citation: "Smith v. Jones", KeyLanguage: strings.Repeat("x", 250), GroupID: "case-1"}
	p := s.VectorPayload()
	assert.Len(t, p["key_language"], 200)
	assert.Equal(t, "snippet", p["type"])
	assert.Equal(t, "case-1", p["group_id"])
	assert.Equal(t, "Smith v. Jones "+strings.Repeat("x", 250), s.EmbeddingText(), "embedding text keeps the full key language")

	s.KeyLanguage = ""
	s.Context = "lease clause"
	assert.Equal(t, "Smith v. Jones lease clause", s.EmbeddingText())
}

func TestParseDate(t *testing.T) {
	_, err := ParseDate("2024-01-15")
	assert.NoError(t, err)
	_, err = ParseDate("01/15/2024")
	assert.Error(t, err)
	_, err = ParseDate("2024-02-30")
	assert.Error(t, err)
}
