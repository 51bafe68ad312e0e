package store

import (
	"context"
	"fmt"
	"strconv"
)

// vectorIndexSet is one HNSW graph per indexable Kind, standing in for a
// loadable vector-index SQLite extension (spec §4.1): loading it is
// best-effort, and a failure here leaves the store running without vector
// tables (spec §4.1, §3 I3).
type vectorIndexSet struct {
	basePath string
	dim      int
	graphs   map[Kind]*HNSWStore
}

func loadVectorIndexSet(basePath string, dim int) (*vectorIndexSet, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", dim)
	}
	vs := &vectorIndexSet{basePath: basePath, dim: dim, graphs: make(map[Kind]*HNSWStore)}
	for _, kind := range []Kind{KindPackage, KindFunction, KindType, KindExample} {
		g, err := NewHNSWStore(DefaultVectorStoreConfig(dim))
		if err != nil {
			return nil, err
		}
		if basePath != "" {
			path := vs.pathFor(kind)
			if err := g.Load(path); err == nil {
				// existing graph restored
			}
		}
		vs.graphs[kind] = g
	}
	return vs, nil
}

func (vs *vectorIndexSet) pathFor(kind Kind) string {
	return vs.basePath + "." + string(kind) + ".hnsw"
}

func (vs *vectorIndexSet) add(kind Kind, id int64, vector []float32) error {
	g, ok := vs.graphs[kind]
	if !ok {
		return fmt.Errorf("no vector graph for kind %q", kind)
	}
	return g.Add(context.Background(), []string{strconv.FormatInt(id, 10)}, [][]float32{vector})
}

func (vs *vectorIndexSet) search(kind Kind, query []float32, k int) ([]VectorHit, error) {
	g, ok := vs.graphs[kind]
	if !ok {
		return nil, fmt.Errorf("no vector graph for kind %q", kind)
	}
	results, err := g.Search(context.Background(), query, k)
	if err != nil {
		return nil, err
	}
	hits := make([]VectorHit, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		hits = append(hits, VectorHit{ID: id, Distance: r.Distance})
	}
	return hits, nil
}

func (vs *vectorIndexSet) close() error {
	for kind, g := range vs.graphs {
		if vs.basePath != "" {
			if err := g.Save(vs.pathFor(kind)); err != nil {
				return err
			}
		}
		if err := g.Close(); err != nil {
			return err
		}
	}
	return nil
}
