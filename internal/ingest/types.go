// Package ingest drives single-package and batch ingestion: fetching a
// package's metadata and source, parsing it into the store's entity
// tables, and keeping the resumable batch checkpoint (spec §4.6).
package ingest

// DumpLookup resolves the compiler-produced JSON AST dump for one source
// file, if one exists. A package whose dump is unavailable for a given
// file falls back to the raw-source unittest/import extractors (spec
// §4.4's "raw-source fallback", for packages that failed to compile).
//
// The core does not itself invoke a compiler: producing the dump is an
// external build step. DefaultDumpLookup implements the conventional
// on-disk layout — a dump sits alongside its source file as
// "<file>.ast.json" — which a caller's build pipeline is expected to
// populate before ingestion runs.
type DumpLookup func(sourceFile string) ([]byte, bool)

// PackageResult summarizes one package's ingestion outcome.
type PackageResult struct {
	Package   string
	Succeeded bool
	Error     string

	ModulesInserted  int
	FunctionsInserted int
	TypesInserted    int
	ExamplesInserted int
}

// BatchOptions configures a full batch run (spec §4.6 ingest_all).
type BatchOptions struct {
	// Limit caps the number of packages ingested; 0 means no limit.
	Limit int
	// Fresh, when true, ignores any in-progress checkpoint and starts
	// from the beginning of the registry's package list.
	Fresh bool
}

// BatchResult summarizes a completed or partially-completed batch run.
type BatchResult struct {
	TotalPackages int
	Succeeded     int
	Failed        int
	Results       []PackageResult
}
