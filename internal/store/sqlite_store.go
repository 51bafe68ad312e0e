package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	searcherrors "github.com/dregistry/docsearch/internal/errors"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting the CRUD helpers
// below run identically inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore is the embedded relational database backing the indexing and
// search core (spec §4.1). It owns the single process-wide connection; the
// public operations are not themselves thread-safe, callers must serialize
// (spec §5).
type SQLiteStore struct {
	db  *sql.DB
	vec *vectorIndexSet // nil if the vector index failed to load
	dim int
}

// Open creates or opens the database at path, configures durability
// pragmas, and attempts to load the vector index. A vector-load failure is
// not fatal: the store continues without vector tables (spec §4.1).
func Open(path string, dim int) (*SQLiteStore, error) {
	if path != ":memory:" && path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, searcherrors.New(searcherrors.ErrCodeFilePermission, "create data directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, searcherrors.Wrap(searcherrors.ErrCodeMissingDatabase, err)
	}

	// Single-writer policy: one connection for the whole process (spec §5).
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-65536", // ~64 MiB
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, searcherrors.Wrap(searcherrors.ErrCodeMissingDatabase, err)
		}
	}

	s := &SQLiteStore{db: db, dim: dim}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	vecPath := vectorExtensionPath()
	vec, err := loadVectorIndexSet(vecPath, dim)
	if err != nil {
		slog.Warn("vector index unavailable, continuing without vector tables", "error", err, "path", vecPath)
	} else {
		s.vec = vec
	}

	return s, nil
}

// vectorExtensionPath resolves the location of the vector index's persisted
// state the way the store resolves a loadable SQLite extension: an
// environment override wins, otherwise a platform-specific ordered search of
// well-known locations under the data root (spec §4.1, §6).
func vectorExtensionPath() string {
	if v := os.Getenv("SQLITE_VEC_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	candidates := []string{
		filepath.Join(home, ".docsearch", "models", "vec0"),
		filepath.Join("/usr/local/lib", "vec0"),
		filepath.Join("/usr/lib", "vec0"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	// No persisted graph found yet; the first candidate becomes the save
	// location once the store is written to.
	return candidates[0]
}

// initSchema creates every table idempotently (spec §4.1).
func (s *SQLiteStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS packages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			version TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			repository TEXT NOT NULL DEFAULT '',
			homepage TEXT NOT NULL DEFAULT '',
			license TEXT NOT NULL DEFAULT '',
			authors TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS modules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
			short_name TEXT NOT NULL,
			full_path TEXT NOT NULL,
			doc_comment TEXT NOT NULL DEFAULT '',
			UNIQUE(package_id, full_path)
		)`,
		`CREATE TABLE IF NOT EXISTS functions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			module_id INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			fully_qualified_name TEXT NOT NULL UNIQUE,
			signature TEXT NOT NULL DEFAULT '',
			return_type TEXT NOT NULL DEFAULT '',
			doc_comment TEXT NOT NULL DEFAULT '',
			parameters TEXT NOT NULL DEFAULT '',
			is_template INTEGER NOT NULL DEFAULT 0,
			time_complexity TEXT NOT NULL DEFAULT '',
			space_complexity TEXT NOT NULL DEFAULT '',
			is_nogc INTEGER NOT NULL DEFAULT 0,
			is_nothrow INTEGER NOT NULL DEFAULT 0,
			is_pure INTEGER NOT NULL DEFAULT 0,
			is_safe INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS types (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			module_id INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			fully_qualified_name TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			doc_comment TEXT NOT NULL DEFAULT '',
			base_classes TEXT NOT NULL DEFAULT '',
			interfaces TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS code_examples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			function_id INTEGER REFERENCES functions(id) ON DELETE CASCADE,
			type_id INTEGER REFERENCES types(id) ON DELETE CASCADE,
			package_id INTEGER REFERENCES packages(id) ON DELETE CASCADE,
			code TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_unittest INTEGER NOT NULL DEFAULT 0,
			is_runnable INTEGER NOT NULL DEFAULT 0,
			required_imports TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS template_constraints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			function_id INTEGER REFERENCES functions(id) ON DELETE CASCADE,
			type_id INTEGER REFERENCES types(id) ON DELETE CASCADE,
			constraint_text TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS import_requirements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			function_id INTEGER REFERENCES functions(id) ON DELETE CASCADE,
			type_id INTEGER REFERENCES types(id) ON DELETE CASCADE,
			import_path TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS function_relationships (
			from_id INTEGER NOT NULL REFERENCES functions(id) ON DELETE CASCADE,
			to_id INTEGER NOT NULL REFERENCES functions(id) ON DELETE CASCADE,
			relationship_type TEXT NOT NULL,
			weight INTEGER NOT NULL DEFAULT 1,
			UNIQUE(from_id, to_id, relationship_type)
		)`,
		`CREATE TABLE IF NOT EXISTS type_relationships (
			from_id INTEGER NOT NULL REFERENCES types(id) ON DELETE CASCADE,
			to_id INTEGER NOT NULL REFERENCES types(id) ON DELETE CASCADE,
			relationship_type TEXT NOT NULL,
			UNIQUE(from_id, to_id, relationship_type)
		)`,
		`CREATE TABLE IF NOT EXISTS usage_patterns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pattern_name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			function_ids TEXT NOT NULL DEFAULT '',
			code_template TEXT NOT NULL DEFAULT '',
			use_case TEXT NOT NULL DEFAULT '',
			popularity INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS ingestion_progress (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			last_package TEXT NOT NULL DEFAULT '',
			last_updated TEXT NOT NULL DEFAULT '',
			packages_processed INTEGER NOT NULL DEFAULT 0,
			total_packages INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'idle',
			error_message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_packages USING fts5(doc_id UNINDEXED, content, tokenize='porter unicode61')`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_functions USING fts5(doc_id UNINDEXED, content, tokenize='porter unicode61')`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_types USING fts5(doc_id UNINDEXED, content, tokenize='porter unicode61')`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_examples USING fts5(doc_id UNINDEXED, content, tokenize='porter unicode61')`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, fmt.Errorf("init schema: %w", err))
		}
	}
	return nil
}

func joinCSV(vals []string) string { return strings.Join(vals, ",") }

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

// --- Store interface, delegating to the shared querier-based helpers ---

func (s *SQLiteStore) InsertPackage(ctx context.Context, p *Package) (int64, error) {
	return insertPackage(ctx, s.db, p)
}

func (s *SQLiteStore) InsertModule(ctx context.Context, packageID int64, m *Module) (int64, error) {
	return insertModule(ctx, s.db, packageID, m)
}

func (s *SQLiteStore) InsertFunction(ctx context.Context, moduleID int64, f *Function) (int64, error) {
	return insertFunction(ctx, s.db, moduleID, f)
}

func (s *SQLiteStore) InsertType(ctx context.Context, moduleID int64, t *Type) (int64, error) {
	return insertType(ctx, s.db, moduleID, t)
}

func (s *SQLiteStore) InsertCodeExample(ctx context.Context, ex *CodeExample) (int64, error) {
	return insertCodeExample(ctx, s.db, ex)
}

func (s *SQLiteStore) UpdateFTSPackage(ctx context.Context, id int64, text string) error {
	return updateFTS(ctx, s.db, "fts_packages", id, text)
}
func (s *SQLiteStore) UpdateFTSFunction(ctx context.Context, id int64, text string) error {
	return updateFTS(ctx, s.db, "fts_functions", id, text)
}
func (s *SQLiteStore) UpdateFTSType(ctx context.Context, id int64, text string) error {
	return updateFTS(ctx, s.db, "fts_types", id, text)
}
func (s *SQLiteStore) UpdateFTSExample(ctx context.Context, id int64, text string) error {
	return updateFTS(ctx, s.db, "fts_examples", id, text)
}

func (s *SQLiteStore) SearchFTS(ctx context.Context, kind Kind, ftsQuery string, limit int) ([]FTSHit, error) {
	return searchFTS(ctx, s.db, kind, ftsQuery, limit)
}

func (s *SQLiteStore) GetAllDocumentTexts(ctx context.Context) ([]string, error) {
	return getAllDocumentTexts(ctx, s.db)
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	return getStats(ctx, s.db)
}

func (s *SQLiteStore) GetFunctionByFQN(ctx context.Context, fqn string) (*Function, error) {
	return getFunctionByFQN(ctx, s.db, fqn)
}

func (s *SQLiteStore) GetFunction(ctx context.Context, id int64) (*Function, error) {
	return getFunction(ctx, s.db, id)
}

func (s *SQLiteStore) GetTypeByFQN(ctx context.Context, fqn string) (*Type, error) {
	return getTypeByFQN(ctx, s.db, fqn)
}

func (s *SQLiteStore) GetModulesByIDs(ctx context.Context, ids []int64) ([]*Module, error) {
	return getModulesByIDs(ctx, s.db, ids)
}
func (s *SQLiteStore) GetPackagesByIDs(ctx context.Context, ids []int64) ([]*Package, error) {
	return getPackagesByIDs(ctx, s.db, ids)
}
func (s *SQLiteStore) GetFunctionsByIDs(ctx context.Context, ids []int64) ([]*Function, error) {
	return getFunctionsByIDs(ctx, s.db, ids)
}
func (s *SQLiteStore) GetTypesByIDs(ctx context.Context, ids []int64) ([]*Type, error) {
	return getTypesByIDs(ctx, s.db, ids)
}
func (s *SQLiteStore) GetExamplesByIDs(ctx context.Context, ids []int64) ([]*CodeExample, error) {
	return getExamplesByIDs(ctx, s.db, ids)
}
func (s *SQLiteStore) GetImportsForSymbolFQN(ctx context.Context, fqn string) ([]string, error) {
	return getImportsForSymbolFQN(ctx, s.db, fqn)
}

func (s *SQLiteStore) MineImportPatterns(ctx context.Context, minOccurrences, topN int) ([]ImportPatternGroup, error) {
	return mineImportPatterns(ctx, s.db, minOccurrences, topN)
}
func (s *SQLiteStore) UpsertUsagePattern(ctx context.Context, p *UsagePattern) error {
	return upsertUsagePattern(ctx, s.db, p)
}
func (s *SQLiteStore) MineFunctionRelationships(ctx context.Context, limit int) (int, error) {
	return mineFunctionRelationships(ctx, s.db, limit)
}

func (s *SQLiteStore) SaveProgress(ctx context.Context, p *IngestionProgress) (int64, error) {
	return saveProgress(ctx, s.db, p)
}

func (s *SQLiteStore) LatestProgress(ctx context.Context) (*IngestionProgress, error) {
	return latestProgress(ctx, s.db)
}

// VectorSupported reports whether the optional vector index loaded (spec
// §4.1, §3 I3).
func (s *SQLiteStore) VectorSupported() bool { return s.vec != nil }

// StoreEmbedding replaces then inserts a vector for (kind, id). It is a
// no-op if vector support is unavailable or the vector is empty; a failure
// inside the optional index is logged and never propagated as a hard error
// (spec §4.1 failure semantics, §7 vector-op failure).
func (s *SQLiteStore) StoreEmbedding(ctx context.Context, kind Kind, id int64, vector []float32) error {
	if s.vec == nil || len(vector) == 0 {
		return nil
	}
	if len(vector) != s.dim {
		slog.Warn("vector dimension mismatch, skipping", "kind", kind, "id", id, "expected", s.dim, "got", len(vector))
		return nil
	}
	if err := s.vec.add(kind, id, vector); err != nil {
		slog.Warn("vector store insert failed, skipping", "kind", kind, "id", id, "error", err)
	}
	return nil
}

func (s *SQLiteStore) SearchVectors(ctx context.Context, kind Kind, query []float32, k int) ([]VectorHit, error) {
	if s.vec == nil {
		return nil, nil
	}
	return s.vec.search(kind, query, k)
}

// Begin acquires a scoped transaction guard that rolls back unless Commit is
// called on every exit path (spec §9 RAII re-architecture note).
func (s *SQLiteStore) Begin(ctx context.Context) (Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
	}
	return &sqliteTx{tx: tx, parent: s}, nil
}

func (s *SQLiteStore) Close() error {
	if s.vec != nil {
		if err := s.vec.close(); err != nil {
			slog.Warn("vector index close failed", "error", err)
		}
	}
	// WAL checkpoint for durability before close.
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// sqliteTx is the Transaction implementation: every Store method runs
// against the underlying *sql.Tx instead of the shared *sql.DB.
type sqliteTx struct {
	tx        *sql.Tx
	parent    *SQLiteStore
	committed bool
}

func (t *sqliteTx) InsertPackage(ctx context.Context, p *Package) (int64, error) {
	return insertPackage(ctx, t.tx, p)
}
func (t *sqliteTx) InsertModule(ctx context.Context, packageID int64, m *Module) (int64, error) {
	return insertModule(ctx, t.tx, packageID, m)
}
func (t *sqliteTx) InsertFunction(ctx context.Context, moduleID int64, f *Function) (int64, error) {
	return insertFunction(ctx, t.tx, moduleID, f)
}
func (t *sqliteTx) InsertType(ctx context.Context, moduleID int64, ty *Type) (int64, error) {
	return insertType(ctx, t.tx, moduleID, ty)
}
func (t *sqliteTx) InsertCodeExample(ctx context.Context, ex *CodeExample) (int64, error) {
	return insertCodeExample(ctx, t.tx, ex)
}
func (t *sqliteTx) UpdateFTSPackage(ctx context.Context, id int64, text string) error {
	return updateFTS(ctx, t.tx, "fts_packages", id, text)
}
func (t *sqliteTx) UpdateFTSFunction(ctx context.Context, id int64, text string) error {
	return updateFTS(ctx, t.tx, "fts_functions", id, text)
}
func (t *sqliteTx) UpdateFTSType(ctx context.Context, id int64, text string) error {
	return updateFTS(ctx, t.tx, "fts_types", id, text)
}
func (t *sqliteTx) UpdateFTSExample(ctx context.Context, id int64, text string) error {
	return updateFTS(ctx, t.tx, "fts_examples", id, text)
}
func (t *sqliteTx) SearchFTS(ctx context.Context, kind Kind, ftsQuery string, limit int) ([]FTSHit, error) {
	return searchFTS(ctx, t.tx, kind, ftsQuery, limit)
}
func (t *sqliteTx) GetAllDocumentTexts(ctx context.Context) ([]string, error) {
	return getAllDocumentTexts(ctx, t.tx)
}
func (t *sqliteTx) GetStats(ctx context.Context) (*Stats, error) {
	return getStats(ctx, t.tx)
}
func (t *sqliteTx) GetFunctionByFQN(ctx context.Context, fqn string) (*Function, error) {
	return getFunctionByFQN(ctx, t.tx, fqn)
}
func (t *sqliteTx) GetFunction(ctx context.Context, id int64) (*Function, error) {
	return getFunction(ctx, t.tx, id)
}
func (t *sqliteTx) GetTypeByFQN(ctx context.Context, fqn string) (*Type, error) {
	return getTypeByFQN(ctx, t.tx, fqn)
}
func (t *sqliteTx) GetModulesByIDs(ctx context.Context, ids []int64) ([]*Module, error) {
	return getModulesByIDs(ctx, t.tx, ids)
}
func (t *sqliteTx) GetPackagesByIDs(ctx context.Context, ids []int64) ([]*Package, error) {
	return getPackagesByIDs(ctx, t.tx, ids)
}
func (t *sqliteTx) GetFunctionsByIDs(ctx context.Context, ids []int64) ([]*Function, error) {
	return getFunctionsByIDs(ctx, t.tx, ids)
}
func (t *sqliteTx) GetTypesByIDs(ctx context.Context, ids []int64) ([]*Type, error) {
	return getTypesByIDs(ctx, t.tx, ids)
}
func (t *sqliteTx) GetExamplesByIDs(ctx context.Context, ids []int64) ([]*CodeExample, error) {
	return getExamplesByIDs(ctx, t.tx, ids)
}
func (t *sqliteTx) GetImportsForSymbolFQN(ctx context.Context, fqn string) ([]string, error) {
	return getImportsForSymbolFQN(ctx, t.tx, fqn)
}
func (t *sqliteTx) MineImportPatterns(ctx context.Context, minOccurrences, topN int) ([]ImportPatternGroup, error) {
	return mineImportPatterns(ctx, t.tx, minOccurrences, topN)
}
func (t *sqliteTx) UpsertUsagePattern(ctx context.Context, p *UsagePattern) error {
	return upsertUsagePattern(ctx, t.tx, p)
}
func (t *sqliteTx) MineFunctionRelationships(ctx context.Context, limit int) (int, error) {
	return mineFunctionRelationships(ctx, t.tx, limit)
}

func (t *sqliteTx) SaveProgress(ctx context.Context, p *IngestionProgress) (int64, error) {
	return saveProgress(ctx, t.tx, p)
}
func (t *sqliteTx) LatestProgress(ctx context.Context) (*IngestionProgress, error) {
	return latestProgress(ctx, t.tx)
}

// StoreEmbedding inside a transaction writes straight to the vector index:
// the vector index is not part of the SQL transaction, so a vector-insertion
// failure never fails the enclosing transaction (spec §4.1).
func (t *sqliteTx) StoreEmbedding(ctx context.Context, kind Kind, id int64, vector []float32) error {
	return t.parent.StoreEmbedding(ctx, kind, id, vector)
}
func (t *sqliteTx) SearchVectors(ctx context.Context, kind Kind, query []float32, k int) ([]VectorHit, error) {
	return t.parent.SearchVectors(ctx, kind, query, k)
}
func (t *sqliteTx) VectorSupported() bool { return t.parent.VectorSupported() }

func (t *sqliteTx) Begin(ctx context.Context) (Transaction, error) {
	return nil, fmt.Errorf("nested transactions are not supported")
}

func (t *sqliteTx) Close() error { return t.Rollback() }

func (t *sqliteTx) Commit() error {
	t.committed = true
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	if t.committed {
		return nil
	}
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// serializeVector encodes a float32 vector as little-endian IEEE-754 bytes
// (spec §4.1 store_embedding, §6).
func serializeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeVector(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func parseBool(i int64) bool { return i != 0 }
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
