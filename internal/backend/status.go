package backend

import (
	"context"
	"time"

	"github.com/medelman17/suechef/internal/store"
)

// Health is the probe result for one backend.
type Health struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Millis int64  `json:"latency_ms"`
}

// CollectionStatus describes one vector collection.
type CollectionStatus struct {
	Name   string `json:"name"`
	Dim    int    `json:"dim"`
	Points int    `json:"points"`
}

// Status is a point-in-time health report across backends.
type Status struct {
	Ready       bool               `json:"ready"`
	Relational  Health             `json:"relational"`
	Vector      Health             `json:"vector"`
	Graph       Health             `json:"graph"`
	Totals      *store.Counts      `json:"totals,omitempty"`
	Collections []CollectionStatus `json:"collections,omitempty"`
	EmbedDims   int                `json:"embedding_dims"`
}

// Status probes every backend. It never initializes the manager.
func (m *Manager) Status(ctx context.Context) *Status {
	b := m.current()
	st := &Status{Ready: m.Ready(), EmbedDims: m.embedder.Dims()}
	if b.Relational == nil {
		st.Relational.Error = "not initialized"
		st.Vector.Error = "not initialized"
		st.Graph.Error = "not initialized"
		return st
	}

	st.Relational = m.probe(ctx, b.Relational.Ping)
	st.Vector = m.probe(ctx, b.Vectors.Ping)
	st.Graph = m.probe(ctx, b.Graph.Ping)

	if st.Relational.OK {
		cctx, cancel := m.CallContext(ctx)
		if c, err := b.Relational.Count(cctx, ""); err == nil {
			st.Totals = &c
		}
		cancel()
	}
	if st.Vector.OK {
		cctx, cancel := m.CallContext(ctx)
		defer cancel()
		if cols, err := b.Vectors.Collections(cctx); err == nil {
			for _, c := range cols {
				n, _ := b.Vectors.Count(cctx, c.Name)
				st.Collections = append(st.Collections, CollectionStatus{Name: c.Name, Dim: c.Dim, Points: n})
			}
		}
	}
	return st
}

func (m *Manager) probe(ctx context.Context, ping func(context.Context) error) Health {
	cctx, cancel := m.CallContext(ctx)
	defer cancel()
	start := time.Now()
	err := ping(cctx)
	h := Health{OK: err == nil, Millis: time.Since(start).Milliseconds()}
	if err != nil {
		h.Error = err.Error()
	}
	return h
}
