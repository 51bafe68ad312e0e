// Package patterns mines co-occurring import groups and function
// relationships out of already-ingested data, as a post-ingestion batch job
// (spec §4.7).
package patterns

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dregistry/docsearch/internal/store"
)

const (
	defaultMinOccurrences  = 2
	defaultTopN            = 100
	usagePatternMinCount   = 3
	usagePatternMinImports = 2
	relationshipLimit      = 1000
)

// Miner runs the pattern-mining batch job against a Store (spec §4.7).
type Miner struct {
	Store store.Store
}

// New returns a Miner backed by st.
func New(st store.Store) *Miner {
	return &Miner{Store: st}
}

// Result summarizes one mining run.
type Result struct {
	ImportPatternsFound   int
	UsagePatternsStored   int
	RelationshipsInserted int
}

// Run executes the full mining pass: import-pattern mining, usage-pattern
// storage, and function-relationship mining, in that order (spec §4.7).
func (m *Miner) Run(ctx context.Context) (*Result, error) {
	groups, err := m.Store.MineImportPatterns(ctx, defaultMinOccurrences, defaultTopN)
	if err != nil {
		return nil, fmt.Errorf("mine import patterns: %w", err)
	}

	stored := 0
	for _, g := range groups {
		imports := splitImports(g.Imports)
		if g.Count < usagePatternMinCount || len(imports) < usagePatternMinImports {
			continue
		}
		pattern := &store.UsagePattern{
			PatternName:  "imports:" + g.Imports,
			Description:  fmt.Sprintf("%d code examples commonly import together: %s", g.Count, strings.Join(imports, ", ")),
			FunctionIDs:  "",
			CodeTemplate: codeTemplate(imports),
			UseCase:      "imports",
			Popularity:   g.Count,
		}
		if err := m.Store.UpsertUsagePattern(ctx, pattern); err != nil {
			slog.Warn("patterns_usage_upsert_failed", slog.String("pattern", pattern.PatternName), slog.String("error", err.Error()))
			continue
		}
		stored++
	}

	relationships, err := m.Store.MineFunctionRelationships(ctx, relationshipLimit)
	if err != nil {
		return nil, fmt.Errorf("mine function relationships: %w", err)
	}

	return &Result{
		ImportPatternsFound:   len(groups),
		UsagePatternsStored:   stored,
		RelationshipsInserted: relationships,
	}, nil
}

// codeTemplate renders a set of dotted module paths as import statements,
// the convention the indexed language uses (spec §4.7 code_template).
func codeTemplate(imports []string) string {
	lines := make([]string, len(imports))
	for i, imp := range imports {
		lines[i] = "import " + imp + ";"
	}
	return strings.Join(lines, "\n")
}

// SuggestImports returns the containing module path for each dotted symbol
// in symbols, deduplicated, preserving first-seen order (spec §4.7
// suggest_imports).
func SuggestImports(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	var out []string
	for _, sym := range symbols {
		idx := strings.LastIndexByte(sym, '.')
		if idx <= 0 {
			continue
		}
		module := sym[:idx]
		if seen[module] {
			continue
		}
		seen[module] = true
		out = append(out, module)
	}
	return out
}

// splitImports mirrors internal/store's comma-split convention for the raw
// required_imports string, which store.ImportPatternGroup intentionally
// leaves opaque (spec §3).
func splitImports(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}
