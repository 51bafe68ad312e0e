package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dregistry/docsearch/internal/search"
	"github.com/dregistry/docsearch/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	kind          string
	packageFilter string
	limit         int
	noVectors     bool
	jsonOutput    bool
	showImports   bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid keyword+vector search over the index",
		Long: `Search combines FTS5 keyword matching with vector similarity
search, merging the two signals per the configured weights.

Examples:
  docsearch search "sort an array"
  docsearch search "json parser" --kind function --limit 5
  docsearch search "red black tree" --package std --imports`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "", "Restrict to one kind: package, function, type, example")
	cmd.Flags().StringVarP(&opts.packageFilter, "package", "p", "", "Restrict results to one package")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (0 = use configured default)")
	cmd.Flags().BoolVar(&opts.noVectors, "no-vectors", false, "Skip vector search, FTS only")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.showImports, "imports", false, "Also resolve import requirements for each hit")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if opts.kind != "" {
		if _, ok := validKinds[store.Kind(opts.kind)]; !ok {
			return fmt.Errorf("invalid --kind %q: must be one of package, function, type, example", opts.kind)
		}
	}

	engine := search.New(a.Store, a.Embed)

	limit := opts.limit
	if limit <= 0 {
		limit = a.Config.Search.DefaultLimit
	}

	searchOpts := search.Options{
		Query:         query,
		Kind:          store.Kind(opts.kind),
		PackageFilter: opts.packageFilter,
		Limit:         limit,
		UseVectors:    !opts.noVectors && a.Config.Search.UseVectors,
		FTSWeight:     a.Config.Search.FTSWeight,
		VectorWeight:  a.Config.Search.VectorWeight,
	}

	hits, err := engine.Search(ctx, searchOpts)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	var imports []string
	if opts.showImports && len(hits) > 0 {
		fqns := make([]string, len(hits))
		for i, h := range hits {
			fqns[i] = h.FQN
		}
		imports, err = engine.GetImportsForSymbols(ctx, fqns)
		if err != nil {
			return fmt.Errorf("resolve imports: %w", err)
		}
	}

	if opts.jsonOutput {
		return printJSON(cmd, struct {
			Hits    []*search.Hit `json:"hits"`
			Imports []string      `json:"imports,omitempty"`
		}{Hits: hits, Imports: imports})
	}

	return printSearchResults(cmd, hits, imports)
}

var validKinds = map[store.Kind]bool{
	store.KindPackage:  true,
	store.KindFunction: true,
	store.KindType:     true,
	store.KindExample:  true,
}

func printSearchResults(cmd *cobra.Command, hits []*search.Hit, imports []string) error {
	w := cmd.OutOrStdout()

	if len(hits) == 0 {
		fmt.Fprintln(w, "No results.")
		return nil
	}

	for i, h := range hits {
		fmt.Fprintf(w, "%d. [%s] %s", i+1, h.Kind, h.FQN)
		if h.Signature != "" {
			fmt.Fprintf(w, "  %s", h.Signature)
		}
		fmt.Fprintf(w, "  (score %.3f)\n", h.CombinedScore)
		if h.DocComment != "" {
			fmt.Fprintf(w, "   %s\n", h.DocComment)
		}
	}

	if len(imports) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Imports:")
		for _, imp := range imports {
			fmt.Fprintf(w, "  %s\n", imp)
		}
	}

	return nil
}
