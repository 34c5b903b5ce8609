package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedder maps text to a bag-of-words vector using feature hashing.
// It needs no network and is deterministic, so texts sharing vocabulary
// score high against each other. Used for offline runs and tests.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hashing embedder. Default: 256 dims.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := make(Vector, e.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		sum := h.Sum32()
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		v[int(sum%uint32(e.dims))] += sign
	}
	return v, nil
}

func (e *HashEmbedder) Dims() int { return e.dims }
