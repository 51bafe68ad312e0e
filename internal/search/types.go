// Package search implements the hybrid keyword+vector search core over the
// indexed package registry: per-kind parallel FTS and vector lookups, a
// weighted merge, cross-kind ranking, and detail/import resolution (spec
// §4.8).
package search

import "github.com/dregistry/docsearch/internal/store"

// DefaultLimit is the result count used when Options.Limit is unset.
const DefaultLimit = 20

// DefaultFTSWeight and DefaultVectorWeight are the weights applied when both
// an FTS and a vector score fire for the same id.
const (
	DefaultFTSWeight    = 0.3
	DefaultVectorWeight = 0.7
)

// Options configures one hybrid search call.
type Options struct {
	Query         string
	PackageFilter string
	Kind          store.Kind // empty means search every kind
	Limit         int
	UseVectors    bool
	FTSWeight     float64
	VectorWeight  float64
}

// withDefaults returns a copy of o with zero-valued fields filled in.
func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.FTSWeight == 0 && o.VectorWeight == 0 {
		o.FTSWeight = DefaultFTSWeight
		o.VectorWeight = DefaultVectorWeight
	}
	return o
}

// Hit is one ranked, detail-populated search result.
type Hit struct {
	ID           int64
	Kind         store.Kind
	Name         string
	FQN          string
	Signature    string
	ModuleName   string
	PackageName  string
	DocComment   string
	FTSScore     float64
	VectorScore  float64
	CombinedScore float64
}

// scored is the pre-detail-fetch merge state for one id within one kind.
type scored struct {
	id       int64
	fts      float64
	vec      float64
	combined float64
}

// combine applies the weighted-merge formula (spec §4.8 step 3): the weighted sum is
// used only when both signals fire; otherwise the lone signal survives
// unattenuated.
func combine(fts, vec, ftsWeight, vecWeight float64) float64 {
	if fts > 0 && vec > 0 {
		return fts*ftsWeight + vec*vecWeight
	}
	if fts > vec {
		return fts
	}
	return vec
}

var allKinds = []store.Kind{store.KindPackage, store.KindFunction, store.KindType, store.KindExample}
