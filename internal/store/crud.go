package store

import (
	"context"
	"database/sql"
	"fmt"

	searcherrors "github.com/dregistry/docsearch/internal/errors"
)

// insertPackage upserts by name (spec §4.1 insert_package).
func insertPackage(ctx context.Context, q querier, p *Package) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO packages (name, version, description, repository, homepage, license, authors, tags, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			version = excluded.version,
			description = excluded.description,
			repository = excluded.repository,
			homepage = excluded.homepage,
			license = excluded.license,
			authors = excluded.authors,
			tags = excluded.tags,
			updated_at = CURRENT_TIMESTAMP
	`, p.Name, p.Version, p.Description, p.Repository, p.Homepage, p.License, joinCSV(p.Authors), joinCSV(p.Tags))
	if err != nil {
		return 0, searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, fmt.Errorf("insert package: %w", err))
	}
	return idForUpsert(ctx, q, "packages", "name", p.Name, res)
}

// insertModule upserts by (package_id, full_path).
func insertModule(ctx context.Context, q querier, packageID int64, m *Module) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO modules (package_id, short_name, full_path, doc_comment)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(package_id, full_path) DO UPDATE SET
			short_name = excluded.short_name,
			doc_comment = excluded.doc_comment
	`, packageID, m.ShortName, m.FullPath, m.DocComment)
	if err != nil {
		return 0, searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, fmt.Errorf("insert module: %w", err))
	}
	if id, ok := lastInsertOK(res); ok {
		return id, nil
	}
	var id int64
	err = q.QueryRowContext(ctx, `SELECT id FROM modules WHERE package_id = ? AND full_path = ?`, packageID, m.FullPath).Scan(&id)
	return id, err
}

// insertFunction upserts by fully_qualified_name (spec §3 I2 enforces the
// FQN law at construction time, not here).
func insertFunction(ctx context.Context, q querier, moduleID int64, f *Function) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO functions (
			module_id, name, fully_qualified_name, signature, return_type, doc_comment,
			parameters, is_template, time_complexity, space_complexity,
			is_nogc, is_nothrow, is_pure, is_safe
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fully_qualified_name) DO UPDATE SET
			module_id = excluded.module_id,
			name = excluded.name,
			signature = excluded.signature,
			return_type = excluded.return_type,
			doc_comment = excluded.doc_comment,
			parameters = excluded.parameters,
			is_template = excluded.is_template,
			time_complexity = excluded.time_complexity,
			space_complexity = excluded.space_complexity,
			is_nogc = excluded.is_nogc,
			is_nothrow = excluded.is_nothrow,
			is_pure = excluded.is_pure,
			is_safe = excluded.is_safe
	`, moduleID, f.Name, f.FullyQualifiedName, f.Signature, f.ReturnType, f.DocComment,
		joinCSV(f.Parameters), boolToInt(f.IsTemplate), f.TimeComplexity, f.SpaceComplexity,
		boolToInt(f.IsNoGC), boolToInt(f.IsNoThrow), boolToInt(f.IsPure), boolToInt(f.IsSafe))
	if err != nil {
		return 0, searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, fmt.Errorf("insert function: %w", err))
	}
	if id, ok := lastInsertOK(res); ok {
		return id, nil
	}
	var id int64
	err = q.QueryRowContext(ctx, `SELECT id FROM functions WHERE fully_qualified_name = ?`, f.FullyQualifiedName).Scan(&id)
	return id, err
}

// insertType upserts by fully_qualified_name.
func insertType(ctx context.Context, q querier, moduleID int64, t *Type) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO types (module_id, name, fully_qualified_name, kind, doc_comment, base_classes, interfaces)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fully_qualified_name) DO UPDATE SET
			module_id = excluded.module_id,
			name = excluded.name,
			kind = excluded.kind,
			doc_comment = excluded.doc_comment,
			base_classes = excluded.base_classes,
			interfaces = excluded.interfaces
	`, moduleID, t.Name, t.FullyQualifiedName, string(t.Kind), t.DocComment, joinCSV(t.BaseClasses), joinCSV(t.Interfaces))
	if err != nil {
		return 0, searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, fmt.Errorf("insert type: %w", err))
	}
	if id, ok := lastInsertOK(res); ok {
		return id, nil
	}
	var id int64
	err = q.QueryRowContext(ctx, `SELECT id FROM types WHERE fully_qualified_name = ?`, t.FullyQualifiedName).Scan(&id)
	return id, err
}

// insertCodeExample is a strict insert: examples accumulate (spec §4.1).
func insertCodeExample(ctx context.Context, q querier, ex *CodeExample) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO code_examples (function_id, type_id, package_id, code, description, is_unittest, is_runnable, required_imports)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, nullableID(ex.FunctionID), nullableID(ex.TypeID), nullableID(ex.PackageID),
		ex.Code, ex.Description, boolToInt(ex.IsUnittest), boolToInt(ex.IsRunnable), joinCSV(ex.RequiredImports))
	if err != nil {
		return 0, searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, fmt.Errorf("insert code example: %w", err))
	}
	return res.LastInsertId()
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

// lastInsertOK returns (id, true) when res carries a freshly assigned
// rowid; ON CONFLICT...DO UPDATE leaves LastInsertId at 0 on SQLite, which
// callers fall back on a lookup query for.
func lastInsertOK(res sql.Result) (int64, bool) {
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func idForUpsert(ctx context.Context, q querier, table, col, val string, res sql.Result) (int64, error) {
	if id, ok := lastInsertOK(res); ok {
		return id, nil
	}
	var id int64
	err := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE %s = ?`, table, col), val).Scan(&id)
	return id, err
}

// updateFTS inserts a row into the named FTS5 virtual table. FTS5 has no
// REPLACE semantics, so any existing row for doc_id is deleted first.
func updateFTS(ctx context.Context, q querier, table string, id int64, text string) error {
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE doc_id = ?`, table), id); err != nil {
		return searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
	}
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (doc_id, content) VALUES (?, ?)`, table), id, text); err != nil {
		return searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
	}
	return nil
}

func ftsTableFor(kind Kind) (string, error) {
	switch kind {
	case KindPackage:
		return "fts_packages", nil
	case KindFunction:
		return "fts_functions", nil
	case KindType:
		return "fts_types", nil
	case KindExample:
		return "fts_examples", nil
	default:
		return "", fmt.Errorf("unknown kind %q", kind)
	}
}

// searchFTS runs an FTS5 MATCH query and negates bm25() so that higher
// scores are better (spec §4.8 step 1, GLOSSARY).
func searchFTS(ctx context.Context, q querier, kind Kind, ftsQuery string, limit int) ([]FTSHit, error) {
	table, err := ftsTableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT doc_id, -bm25(%s) AS score
		FROM %s
		WHERE %s MATCH ?
		ORDER BY score DESC
		LIMIT ?
	`, table, table, table), ftsQuery, limit)
	if err != nil {
		return nil, searcherrors.Wrap(searcherrors.ErrCodeMalformedField, err)
	}
	defer rows.Close()

	var hits []FTSHit
	for rows.Next() {
		var h FTSHit
		if err := rows.Scan(&h.ID, &h.FTSScore); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// getAllDocumentTexts enumerates package, function, type, and example text
// suitable for training the TF-IDF vocabulary (spec §4.1).
func getAllDocumentTexts(ctx context.Context, q querier) ([]string, error) {
	var texts []string

	rows, err := q.QueryContext(ctx, `SELECT name || ' ' || description || ' ' || tags FROM packages`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return nil, err
		}
		texts = append(texts, t)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `SELECT name || ' ' || signature || ' ' || doc_comment FROM functions`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return nil, err
		}
		texts = append(texts, t)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `SELECT name || ' ' || doc_comment FROM types`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return nil, err
		}
		texts = append(texts, t)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `SELECT description || ' ' || code FROM code_examples`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return nil, err
		}
		texts = append(texts, t)
	}
	rows.Close()

	return texts, nil
}

func getStats(ctx context.Context, q querier) (*Stats, error) {
	s := &Stats{}
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM packages`).Scan(&s.Packages); err != nil {
		return nil, err
	}
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM modules`).Scan(&s.Modules); err != nil {
		return nil, err
	}
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM functions`).Scan(&s.Functions); err != nil {
		return nil, err
	}
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM types`).Scan(&s.Types); err != nil {
		return nil, err
	}
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_examples`).Scan(&s.Examples); err != nil {
		return nil, err
	}
	return s, nil
}

func scanFunction(row interface{ Scan(...any) error }) (*Function, error) {
	var f Function
	var params string
	var isTemplate, isNoGC, isNoThrow, isPure, isSafe int
	err := row.Scan(&f.ID, &f.ModuleID, &f.Name, &f.FullyQualifiedName, &f.Signature, &f.ReturnType,
		&f.DocComment, &params, &isTemplate, &f.TimeComplexity, &f.SpaceComplexity,
		&isNoGC, &isNoThrow, &isPure, &isSafe)
	if err != nil {
		return nil, err
	}
	f.Parameters = splitCSV(params)
	f.IsTemplate = parseBool(int64(isTemplate))
	f.IsNoGC = parseBool(int64(isNoGC))
	f.IsNoThrow = parseBool(int64(isNoThrow))
	f.IsPure = parseBool(int64(isPure))
	f.IsSafe = parseBool(int64(isSafe))
	return &f, nil
}

const functionColumns = `id, module_id, name, fully_qualified_name, signature, return_type, doc_comment, parameters, is_template, time_complexity, space_complexity, is_nogc, is_nothrow, is_pure, is_safe`

func getFunctionByFQN(ctx context.Context, q querier, fqn string) (*Function, error) {
	row := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM functions WHERE fully_qualified_name = ?`, functionColumns), fqn)
	f, err := scanFunction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func getFunction(ctx context.Context, q querier, id int64) (*Function, error) {
	row := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM functions WHERE id = ?`, functionColumns), id)
	f, err := scanFunction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func getTypeByFQN(ctx context.Context, q querier, fqn string) (*Type, error) {
	var t Type
	var baseClasses, interfaces, kind string
	row := q.QueryRowContext(ctx, `SELECT id, module_id, name, fully_qualified_name, kind, doc_comment, base_classes, interfaces FROM types WHERE fully_qualified_name = ?`, fqn)
	err := row.Scan(&t.ID, &t.ModuleID, &t.Name, &t.FullyQualifiedName, &kind, &t.DocComment, &baseClasses, &interfaces)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.Kind = TypeKind(kind)
	t.BaseClasses = splitCSV(baseClasses)
	t.Interfaces = splitCSV(interfaces)
	return &t, nil
}

// saveProgress inserts a new ingestion_progress row; the row with the
// maximum id is authoritative (spec §3).
func saveProgress(ctx context.Context, q querier, p *IngestionProgress) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO ingestion_progress (last_package, last_updated, packages_processed, total_packages, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.LastPackage, p.LastUpdated, p.PackagesProcessed, p.TotalPackages, string(p.Status), p.ErrorMessage)
	if err != nil {
		return 0, searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
	}
	return res.LastInsertId()
}

// latestProgress returns the row with the maximum id, or nil if none exists.
// A scan failure is treated as resume-state corruption: callers should
// proceed as status idle (spec §7).
func latestProgress(ctx context.Context, q querier) (*IngestionProgress, error) {
	var p IngestionProgress
	var status string
	row := q.QueryRowContext(ctx, `
		SELECT id, last_package, last_updated, packages_processed, total_packages, status, error_message
		FROM ingestion_progress ORDER BY id DESC LIMIT 1
	`)
	err := row.Scan(&p.ID, &p.LastPackage, &p.LastUpdated, &p.PackagesProcessed, &p.TotalPackages, &status, &p.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, searcherrors.Wrap(searcherrors.ErrCodeProgressCorrupt, err)
	}
	p.Status = ProgressStatus(status)
	return &p, nil
}
