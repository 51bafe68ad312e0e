// Package store provides the embedded relational database for the indexing
// and search core: entity tables, FTS5 keyword indexes, and an optional
// HNSW-backed vector index, all reachable through one Store value per
// process (spec §4.1, §3).
package store

import (
	"context"
	"fmt"
)

// Kind identifies one of the four indexable entity types that carry both an
// FTS index and, when vector support is loaded, a vector index.
type Kind string

const (
	KindPackage Kind = "package"
	KindFunction Kind = "function"
	KindType     Kind = "type"
	KindExample  Kind = "example"
)

// Package is the top-level registry entity (spec §3).
type Package struct {
	ID          int64
	Name        string
	Version     string
	Description string
	Repository  string
	Homepage    string
	License     string
	Authors     []string
	Tags        []string
}

// Module belongs to exactly one Package.
type Module struct {
	ID         int64
	PackageID  int64
	ShortName  string
	FullPath   string
	DocComment string
}

// Function belongs to exactly one Module.
type Function struct {
	ID                int64
	ModuleID          int64
	Name              string
	FullyQualifiedName string
	Signature         string
	ReturnType        string
	DocComment        string
	Parameters        []string
	Examples          []string
	IsTemplate        bool
	TimeComplexity    string
	SpaceComplexity   string
	IsNoGC            bool
	IsNoThrow         bool
	IsPure            bool
	IsSafe            bool
}

// TypeKind enumerates the supported declaration kinds for Type.
type TypeKind string

const (
	TypeKindClass     TypeKind = "class"
	TypeKindStruct    TypeKind = "struct"
	TypeKindInterface TypeKind = "interface"
	TypeKindEnum      TypeKind = "enum"
)

// Type belongs to exactly one Module.
type Type struct {
	ID                 int64
	ModuleID           int64
	Name               string
	FullyQualifiedName string
	Kind               TypeKind
	DocComment         string
	BaseClasses        []string
	Interfaces         []string
}

// CodeExample is owned by exactly one of Function, Type, or Package.
type CodeExample struct {
	ID               int64
	FunctionID       *int64
	TypeID           *int64
	PackageID        *int64
	Code             string
	Description      string
	IsUnittest       bool
	IsRunnable       bool
	RequiredImports  []string
}

// TemplateConstraint is a child row keyed by FunctionID or TypeID.
type TemplateConstraint struct {
	ID         int64
	FunctionID *int64
	TypeID     *int64
	Constraint string
}

// ImportRequirement is a child row keyed by FunctionID or TypeID.
type ImportRequirement struct {
	ID         int64
	FunctionID *int64
	TypeID     *int64
	ImportPath string
}

// RelationshipType enumerates the known relationship kinds.
type RelationshipType string

const (
	RelationshipCalls   RelationshipType = "calls"
	RelationshipRelated RelationshipType = "related"
)

// FunctionRelationship connects two functions; unique on (from, to, type).
type FunctionRelationship struct {
	FromID           int64
	ToID             int64
	RelationshipType RelationshipType
	Weight           int
}

// TypeRelationship connects two types.
type TypeRelationship struct {
	FromID           int64
	ToID             int64
	RelationshipType RelationshipType
}

// UsagePattern is a mined, named pattern of co-occurring imports or functions.
type UsagePattern struct {
	ID          int64
	PatternName string
	Description string
	FunctionIDs string // opaque, comma-joined per spec §3
	CodeTemplate string
	UseCase     string
	Popularity  int
}

// ProgressStatus enumerates IngestionProgress.Status.
type ProgressStatus string

const (
	ProgressIdle      ProgressStatus = "idle"
	ProgressRunning   ProgressStatus = "running"
	ProgressCompleted ProgressStatus = "completed"
	ProgressError     ProgressStatus = "error"
)

// IngestionProgress tracks batch ingestion; the row with the maximum ID is
// authoritative (spec §3).
type IngestionProgress struct {
	ID                int64
	LastPackage       string
	LastUpdated       string
	PackagesProcessed int
	TotalPackages     int
	Status            ProgressStatus
	ErrorMessage      string
}

// VectorStoreConfig configures one per-kind HNSW graph.
type VectorStoreConfig struct {
	Dimensions     int
	Metric         string // "cos" or "l2"
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns sensible defaults for a vector graph of
// the given dimensionality (spec §3 default D=384).
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              16,
		EfConstruction: 128,
		EfSearch:       20,
	}
}

// VectorResult is a single raw result from a per-kind HNSW graph, keyed by
// the string form of the entity's surrogate id.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorStore is one HNSW-backed approximate k-NN graph, keyed by string id.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// ImportPatternGroup is one group of code examples sharing the same raw
// (comma-joined) required_imports string (spec §4.7 import-pattern mining).
type ImportPatternGroup struct {
	Imports string
	Count   int
}

// Stats summarizes row counts across the canonical tables (spec §4.1
// get_stats).
type Stats struct {
	Packages int
	Modules  int
	Functions int
	Types    int
	Examples int
}

// ErrDimensionMismatch indicates a vector dimension mismatch between a
// caller-supplied vector and the store's configured dimension D.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Store is the public surface of the embedded relational database (spec
// §4.1). All operations either succeed or fail atomically relative to the
// surrounding transaction; callers must serialize access (spec §5).
type Store interface {
	InsertPackage(ctx context.Context, p *Package) (int64, error)
	InsertModule(ctx context.Context, packageID int64, m *Module) (int64, error)
	InsertFunction(ctx context.Context, moduleID int64, f *Function) (int64, error)
	InsertType(ctx context.Context, moduleID int64, t *Type) (int64, error)
	InsertCodeExample(ctx context.Context, ex *CodeExample) (int64, error)

	StoreEmbedding(ctx context.Context, kind Kind, id int64, vector []float32) error
	SearchVectors(ctx context.Context, kind Kind, query []float32, k int) ([]VectorHit, error)
	VectorSupported() bool

	UpdateFTSPackage(ctx context.Context, id int64, text string) error
	UpdateFTSFunction(ctx context.Context, id int64, text string) error
	UpdateFTSType(ctx context.Context, id int64, text string) error
	UpdateFTSExample(ctx context.Context, id int64, text string) error
	SearchFTS(ctx context.Context, kind Kind, ftsQuery string, limit int) ([]FTSHit, error)

	GetAllDocumentTexts(ctx context.Context) ([]string, error)
	GetStats(ctx context.Context) (*Stats, error)

	GetFunctionByFQN(ctx context.Context, fqn string) (*Function, error)
	GetFunction(ctx context.Context, id int64) (*Function, error)
	GetTypeByFQN(ctx context.Context, fqn string) (*Type, error)

	GetModulesByIDs(ctx context.Context, ids []int64) ([]*Module, error)
	GetPackagesByIDs(ctx context.Context, ids []int64) ([]*Package, error)
	GetFunctionsByIDs(ctx context.Context, ids []int64) ([]*Function, error)
	GetTypesByIDs(ctx context.Context, ids []int64) ([]*Type, error)
	GetExamplesByIDs(ctx context.Context, ids []int64) ([]*CodeExample, error)
	GetImportsForSymbolFQN(ctx context.Context, fqn string) ([]string, error)

	MineImportPatterns(ctx context.Context, minOccurrences, topN int) ([]ImportPatternGroup, error)
	UpsertUsagePattern(ctx context.Context, p *UsagePattern) error
	MineFunctionRelationships(ctx context.Context, limit int) (int, error)

	Begin(ctx context.Context) (Transaction, error)

	SaveProgress(ctx context.Context, p *IngestionProgress) (int64, error)
	LatestProgress(ctx context.Context) (*IngestionProgress, error)

	Close() error
}

// FTSHit is one row returned from an FTS5 match, BM25-scored and negated so
// that higher is better (spec §4.8 step 1, GLOSSARY).
type FTSHit struct {
	ID       int64
	FTSScore float64
}

// VectorHit is one row returned from a k-nearest query over a vector table.
type VectorHit struct {
	ID       int64
	Distance float32
}

// Transaction is a scoped guard: it acquires on construction and rolls back
// unless Commit is called explicitly (spec §9 RAII re-architecture note).
type Transaction interface {
	Store
	Commit() error
	Rollback() error
}
