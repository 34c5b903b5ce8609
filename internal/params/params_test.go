package params

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringList(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"nil", nil, nil},
		{"empty string", "   ", nil},
		{"native list", []string{"Landlord Co", "Tenant A"}, []string{"Landlord Co", "Tenant A"}},
		{"any list", []any{"a", 2.0, nil, "b"}, []string{"a", "2", "b"}},
		{"json array string", `["water-damage", "habitability"]`, []string{"water-damage", "habitability"}},
		{"csv string", "water-damage, habitability ,", []string{"water-damage", "habitability"}},
		{"single value", "Tenant A", []string{"Tenant A"}},
		{"broken json falls back to csv", `[a, b`, []string{"[a", "b"}},
		{"duplicates removed", []string{"x", "y", "x", " y "}, []string{"x", "y"}},
		{"raw message", json.RawMessage(`["x"]`), []string{"x"}},
		{"scalar number", 7, []string{"7"}},
		{"only blanks", []any{"", " "}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StringList(tt.in))
		})
	}
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitCSV("a,,b,a"))
	assert.Nil(t, SplitCSV(""))
}
