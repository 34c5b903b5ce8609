// Package vector is a named-collection vector index persisted in BadgerDB.
//
// Each collection has a fixed dimension and uses cosine similarity. Points are
// stored L2-normalized, so a search is a dot product over every point in the
// collection followed by a bounded min-heap for the top K.
package vector

import (
	"bytes"
	"container/heap"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrClosed            = errors.New("vector store closed")
)

const (
	prefixCollection byte = 0x01
	prefixPoint      byte = 0x02
)

// Options configures the store.
type Options struct {
	// Dir holds the badger files. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	Logger   *zap.Logger
}

// Collection describes one named collection.
type Collection struct {
	Name     string `json:"name"`
	Dim      int    `json:"dim"`
	Distance string `json:"distance"`
}

// Hit is one search result.
type Hit struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Filter keeps only points whose payload has every key equal to the given value.
type Filter map[string]any

type point struct {
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Store is a BadgerDB backed vector store.
type Store struct {
	db     *badger.DB
	closed atomic.Bool
}

// Open opens or creates a store.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.Logger != nil {
		bopts = bopts.WithLogger(badgerLogger{opts.Logger.Named("badger").Sugar()})
	} else {
		bopts = bopts.WithLogger(nil)
	}
	bopts = bopts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

func collectionKey(name string) []byte {
	return append([]byte{prefixCollection}, name...)
}

func pointPrefix(collection string) []byte {
	k := append([]byte{prefixPoint}, collection...)
	return append(k, 0x00)
}

func pointKey(collection, id string) []byte {
	return append(pointPrefix(collection), id...)
}

// EnsureCollection creates the collection if it does not exist. An existing
// collection with a different dimension is an error.
func (s *Store) EnsureCollection(ctx context.Context, name string, dim int) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if dim <= 0 {
		return fmt.Errorf("collection %s: dimension must be positive", name)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		c, err := getCollection(txn, name)
		if err == nil {
			if c.Dim != dim {
				return fmt.Errorf("collection %s has dim %d, want %d: %w", name, c.Dim, dim, ErrDimensionMismatch)
			}
			return nil
		}
		if !errors.Is(err, ErrUnknownCollection) {
			return err
		}
		b, _ := json.Marshal(Collection{Name: name, Dim: dim, Distance: "cosine"})
		return txn.Set(collectionKey(name), b)
	})
}

func getCollection(txn *badger.Txn, name string) (*Collection, error) {
	item, err := txn.Get(collectionKey(name))
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownCollection)
	}
	if err != nil {
		return nil, err
	}
	var c Collection
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &c)
	})
	return &c, err
}

// Collections lists all collections.
func (s *Store) Collections(ctx context.Context) ([]Collection, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var out []Collection
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte{prefixCollection}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var c Collection
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			}); err != nil {
				return err
			}
			out = append(out, c)
		}
		return nil
	})
	return out, err
}

// Upsert writes or replaces one point.
func (s *Store) Upsert(ctx context.Context, collection, id string, vec []float32, payload map[string]any) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		c, err := getCollection(txn, collection)
		if err != nil {
			return err
		}
		if len(vec) != c.Dim {
			return fmt.Errorf("collection %s: got %d, want %d: %w", collection, len(vec), c.Dim, ErrDimensionMismatch)
		}
		b, err := json.Marshal(point{Vector: normalize(vec), Payload: payload})
		if err != nil {
			return fmt.Errorf("encode point: %w", err)
		}
		return txn.Set(pointKey(collection, id), b)
	})
}

// Delete removes points by id. Missing ids are ignored.
func (s *Store) Delete(ctx context.Context, collection string, ids ...string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := getCollection(txn, collection); err != nil {
			return err
		}
		for _, id := range ids {
			if err := txn.Delete(pointKey(collection, id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of points in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := getCollection(txn, collection); err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := pointPrefix(collection)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Search returns up to limit points most similar to vec, best first.
func (s *Store) Search(ctx context.Context, collection string, vec []float32, limit int, filter Filter) ([]Hit, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 10
	}
	query := normalize(vec)
	h := &hitHeap{}

	err := s.db.View(func(txn *badger.Txn) error {
		c, err := getCollection(txn, collection)
		if err != nil {
			return err
		}
		if len(query) != c.Dim {
			return fmt.Errorf("collection %s: got %d, want %d: %w", collection, len(query), c.Dim, ErrDimensionMismatch)
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := pointPrefix(collection)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var p point
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			if !filter.match(p.Payload) {
				continue
			}
			id := string(bytes.TrimPrefix(item.KeyCopy(nil), prefix))
			hit := Hit{ID: id, Score: dot(query, p.Vector), Payload: p.Payload}
			if h.Len() < limit {
				heap.Push(h, hit)
			} else if hit.Score > (*h)[0].Score {
				(*h)[0] = hit
				heap.Fix(h, 0)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Hit, h.Len())
	copy(out, *h)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// Ping verifies the store is open.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() || s.db.IsClosed() {
		return ErrClosed
	}
	return s.db.View(func(txn *badger.Txn) error { return nil })
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool { return s.closed.Load() }

// Close releases the underlying database.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (f Filter) match(payload map[string]any) bool {
	for k, want := range f {
		if fmt.Sprint(payload[k]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// hitHeap is a min-heap on score.
type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
