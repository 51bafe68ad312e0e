package search

import (
	"context"
	"fmt"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dregistry/docsearch/internal/embed"
	searcherrors "github.com/dregistry/docsearch/internal/errors"
	"github.com/dregistry/docsearch/internal/store"
)

// Engine runs hybrid FTS+vector search over the indexed registry and
// resolves detail rows and import requirements for the surviving hits
// (spec §4.8).
type Engine struct {
	Store      store.Store
	Embeddings *embed.Manager
}

// New constructs an Engine. st must not be nil; em may be nil, in which
// case vector search is always skipped regardless of Options.UseVectors.
func New(st store.Store, em *embed.Manager) *Engine {
	return &Engine{Store: st, Embeddings: em}
}

// Search executes one hybrid search. When opts.Kind is unset, every kind is
// searched in parallel and the per-kind truncated lists are merged and
// re-truncated to the requested limit (spec §4.8 cross-kind merge).
func (e *Engine) Search(ctx context.Context, opts Options) ([]*Hit, error) {
	opts = opts.withDefaults()
	if strings.TrimSpace(opts.Query) == "" {
		return nil, nil
	}

	kinds := allKinds
	if opts.Kind != "" {
		kinds = []store.Kind{opts.Kind}
	}

	perKind := make([][]*Hit, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			hits, err := e.searchKind(gctx, kind, opts)
			if err != nil {
				return fmt.Errorf("search kind %s: %w", kind, err)
			}
			perKind[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, searcherrors.Wrap(searcherrors.ErrCodeSearchFailed, err)
	}

	if len(kinds) == 1 {
		return perKind[0], nil
	}

	var merged []*Hit
	for _, hits := range perKind {
		merged = append(merged, hits...)
	}
	sortHitsDescending(merged)
	return truncate(merged, opts.Limit), nil
}

// searchKind runs the FTS and, optionally, vector sub-searches for one kind,
// merges them by id, and resolves detail rows for the survivors.
func (e *Engine) searchKind(ctx context.Context, kind store.Kind, opts Options) ([]*Hit, error) {
	ftsQuery := escapeFTSQuery(opts.Query)
	fetchWidth := 2 * opts.Limit

	byID := make(map[int64]*scored)

	if ftsQuery != "" {
		ftsHits, err := e.Store.SearchFTS(ctx, kind, ftsQuery, fetchWidth)
		if err != nil {
			return nil, err
		}
		for _, h := range ftsHits {
			byID[h.ID] = &scored{id: h.ID, fts: h.FTSScore}
		}
	}

	if opts.UseVectors && e.Embeddings != nil && e.Store.VectorSupported() {
		embedder, err := e.Embeddings.Get(ctx)
		if err != nil {
			return nil, err
		}
		queryVector, err := embedder.Embed(ctx, opts.Query)
		if err != nil {
			return nil, err
		}
		vecHits, err := e.Store.SearchVectors(ctx, kind, queryVector, fetchWidth)
		if err != nil {
			return nil, err
		}
		for _, h := range vecHits {
			vecScore := 0.0
			if d := float64(h.Distance); !math.IsInf(d, 0) && !math.IsNaN(d) {
				vecScore = 1 - d
			}
			s, ok := byID[h.ID]
			if !ok {
				s = &scored{id: h.ID}
				byID[h.ID] = s
			}
			s.vec = vecScore
		}
	}

	var candidates []*scored
	for _, s := range byID {
		s.combined = combine(s.fts, s.vec, opts.FTSWeight, opts.VectorWeight)
		if s.combined <= 0 {
			continue
		}
		candidates = append(candidates, s)
	}

	hits := make([]*Hit, len(candidates))
	for i, s := range candidates {
		hits[i] = &Hit{ID: s.id, Kind: kind, FTSScore: s.fts, VectorScore: s.vec, CombinedScore: s.combined}
	}
	sortHitsDescending(hits)
	hits = truncate(hits, opts.Limit)

	return e.fetchDetails(ctx, kind, hits, opts.PackageFilter)
}

// fetchDetails populates name/FQN/signature/module/package/doc-comment on
// each hit via one canonical-table lookup keyed by the surviving ids (spec
// §4.8 step 5); hits whose resolved package does not match packageFilter
// are dropped. The store's SearchFTS/SearchVectors take no join filter, so
// package_filter is applied here as a post-fetch predicate.
func (e *Engine) fetchDetails(ctx context.Context, kind store.Kind, hits []*Hit, packageFilter string) ([]*Hit, error) {
	if len(hits) == 0 {
		return nil, nil
	}
	scores := make(map[int64]*Hit, len(hits))
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = h
	}

	var out []*Hit
	switch kind {
	case store.KindPackage:
		pkgs, err := e.Store.GetPackagesByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, p := range pkgs {
			if packageFilter != "" && p.Name != packageFilter {
				continue
			}
			h := scores[p.ID]
			h.Name, h.FQN, h.PackageName, h.DocComment = p.Name, p.Name, p.Name, p.Description
			out = append(out, h)
		}

	case store.KindFunction:
		fns, err := e.Store.GetFunctionsByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		moduleByID, packageByID, err := e.resolveModulesAndPackages(ctx, functionModuleIDs(fns))
		if err != nil {
			return nil, err
		}
		for _, f := range fns {
			modName, pkgName := moduleAndPackageNames(moduleByID, packageByID, f.ModuleID)
			if packageFilter != "" && pkgName != packageFilter {
				continue
			}
			h := scores[f.ID]
			h.Name, h.FQN, h.Signature = f.Name, f.FullyQualifiedName, f.Signature
			h.ModuleName, h.PackageName, h.DocComment = modName, pkgName, f.DocComment
			out = append(out, h)
		}

	case store.KindType:
		types, err := e.Store.GetTypesByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		moduleByID, packageByID, err := e.resolveModulesAndPackages(ctx, typeModuleIDs(types))
		if err != nil {
			return nil, err
		}
		for _, t := range types {
			modName, pkgName := moduleAndPackageNames(moduleByID, packageByID, t.ModuleID)
			if packageFilter != "" && pkgName != packageFilter {
				continue
			}
			h := scores[t.ID]
			h.Name, h.FQN = t.Name, t.FullyQualifiedName
			h.ModuleName, h.PackageName, h.DocComment = modName, pkgName, t.DocComment
			out = append(out, h)
		}

	case store.KindExample:
		examples, err := e.Store.GetExamplesByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		out, err = e.resolveExampleDetails(ctx, examples, scores, packageFilter)
		if err != nil {
			return nil, err
		}
	}

	sortHitsDescending(out)
	return out, nil
}

func functionModuleIDs(fns []*store.Function) []int64 {
	ids := make([]int64, len(fns))
	for i, f := range fns {
		ids[i] = f.ModuleID
	}
	return ids
}

func typeModuleIDs(types []*store.Type) []int64 {
	ids := make([]int64, len(types))
	for i, t := range types {
		ids[i] = t.ModuleID
	}
	return ids
}

// resolveModulesAndPackages batch-fetches the modules for moduleIDs and the
// packages owning them, returning lookup maps keyed by id.
func (e *Engine) resolveModulesAndPackages(ctx context.Context, moduleIDs []int64) (map[int64]*store.Module, map[int64]*store.Package, error) {
	modules, err := e.Store.GetModulesByIDs(ctx, dedupInt64(moduleIDs))
	if err != nil {
		return nil, nil, err
	}
	moduleByID := make(map[int64]*store.Module, len(modules))
	var packageIDs []int64
	for _, m := range modules {
		moduleByID[m.ID] = m
		packageIDs = append(packageIDs, m.PackageID)
	}
	packages, err := e.Store.GetPackagesByIDs(ctx, dedupInt64(packageIDs))
	if err != nil {
		return nil, nil, err
	}
	packageByID := make(map[int64]*store.Package, len(packages))
	for _, p := range packages {
		packageByID[p.ID] = p
	}
	return moduleByID, packageByID, nil
}

func moduleAndPackageNames(moduleByID map[int64]*store.Module, packageByID map[int64]*store.Package, moduleID int64) (moduleName, packageName string) {
	mod, ok := moduleByID[moduleID]
	if !ok {
		return "", ""
	}
	moduleName = mod.FullPath
	if pkg, ok := packageByID[mod.PackageID]; ok {
		packageName = pkg.Name
	}
	return moduleName, packageName
}

// resolveExampleDetails resolves each code example's owning function, type,
// or package to fill in display fields, since an example's "symbol" is
// whichever of those three owns it.
func (e *Engine) resolveExampleDetails(ctx context.Context, examples []*store.CodeExample, scores map[int64]*Hit, packageFilter string) ([]*Hit, error) {
	var functionIDs, typeIDs, packageIDs []int64
	for _, ex := range examples {
		if ex.FunctionID != nil {
			functionIDs = append(functionIDs, *ex.FunctionID)
		}
		if ex.TypeID != nil {
			typeIDs = append(typeIDs, *ex.TypeID)
		}
		if ex.PackageID != nil {
			packageIDs = append(packageIDs, *ex.PackageID)
		}
	}

	fns, err := e.Store.GetFunctionsByIDs(ctx, dedupInt64(functionIDs))
	if err != nil {
		return nil, err
	}
	fnByID := make(map[int64]*store.Function, len(fns))
	for _, f := range fns {
		fnByID[f.ID] = f
	}
	types, err := e.Store.GetTypesByIDs(ctx, dedupInt64(typeIDs))
	if err != nil {
		return nil, err
	}
	typeByID := make(map[int64]*store.Type, len(types))
	for _, t := range types {
		typeByID[t.ID] = t
	}

	moduleByID, packageByID, err := e.resolveModulesAndPackages(ctx, append(functionModuleIDs(fns), typeModuleIDs(types)...))
	if err != nil {
		return nil, err
	}
	directPackages, err := e.Store.GetPackagesByIDs(ctx, dedupInt64(packageIDs))
	if err != nil {
		return nil, err
	}
	for _, p := range directPackages {
		packageByID[p.ID] = p
	}

	var out []*Hit
	for _, ex := range examples {
		var name, fqn, modName, pkgName string
		switch {
		case ex.FunctionID != nil:
			if f, ok := fnByID[*ex.FunctionID]; ok {
				name, fqn = f.Name, f.FullyQualifiedName
				modName, pkgName = moduleAndPackageNames(moduleByID, packageByID, f.ModuleID)
			}
		case ex.TypeID != nil:
			if t, ok := typeByID[*ex.TypeID]; ok {
				name, fqn = t.Name, t.FullyQualifiedName
				modName, pkgName = moduleAndPackageNames(moduleByID, packageByID, t.ModuleID)
			}
		case ex.PackageID != nil:
			if p, ok := packageByID[*ex.PackageID]; ok {
				name, fqn, pkgName = p.Name, p.Name, p.Name
			}
		}

		if packageFilter != "" && pkgName != packageFilter {
			continue
		}

		h := scores[ex.ID]
		h.Name, h.FQN, h.ModuleName, h.PackageName = name, fqn, modName, pkgName
		h.Signature = ex.Code
		h.DocComment = ex.Description
		out = append(out, h)
	}
	return out, nil
}

func dedupInt64(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// GetImportsForSymbol resolves the import requirements for one symbol FQN.
// When none are recorded directly against the symbol, it falls back to the
// enclosing module, derived by stripping the symbol's final dotted
// component (spec §4.8 import resolution).
func (e *Engine) GetImportsForSymbol(ctx context.Context, fqn string) ([]string, error) {
	imports, err := e.Store.GetImportsForSymbolFQN(ctx, fqn)
	if err != nil {
		return nil, err
	}
	if len(imports) > 0 {
		return imports, nil
	}
	if idx := strings.LastIndex(fqn, "."); idx > 0 {
		return []string{fqn[:idx]}, nil
	}
	return nil, nil
}

// GetImportsForSymbols unions and dedups GetImportsForSymbol across fqns,
// preserving first-seen order.
func (e *Engine) GetImportsForSymbols(ctx context.Context, fqns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, fqn := range fqns {
		imports, err := e.GetImportsForSymbol(ctx, fqn)
		if err != nil {
			return nil, err
		}
		for _, imp := range imports {
			if !seen[imp] {
				seen[imp] = true
				out = append(out, imp)
			}
		}
	}
	return out, nil
}
