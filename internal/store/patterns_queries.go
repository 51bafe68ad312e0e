package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	searcherrors "github.com/dregistry/docsearch/internal/errors"
)

// idsPlaceholder returns "?,?,...,?" for n ids.
func idsPlaceholder(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ",")
}

func idsToArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// getModulesByIDs resolves a function/type hit's owning module, in turn
// used to resolve the owning package for package_filter and detail display
// (spec §4.8 step 5 detail fetch).
func getModulesByIDs(ctx context.Context, q querier, ids []int64) ([]*Module, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT id, package_id, short_name, full_path, doc_comment
		FROM modules WHERE id IN (%s)`, idsPlaceholder(len(ids)))
	rows, err := q.QueryContext(ctx, query, idsToArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.PackageID, &m.ShortName, &m.FullPath, &m.DocComment); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// getPackagesByIDs fetches detail rows for a search merge's surviving ids
// (spec §4.8 step 5 detail fetch).
func getPackagesByIDs(ctx context.Context, q querier, ids []int64) ([]*Package, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT id, name, version, description, repository, homepage, license, authors, tags
		FROM packages WHERE id IN (%s)`, idsPlaceholder(len(ids)))
	rows, err := q.QueryContext(ctx, query, idsToArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Package
	for rows.Next() {
		var p Package
		var authors, tags string
		if err := rows.Scan(&p.ID, &p.Name, &p.Version, &p.Description, &p.Repository, &p.Homepage, &p.License, &authors, &tags); err != nil {
			return nil, err
		}
		p.Authors = splitCSV(authors)
		p.Tags = splitCSV(tags)
		out = append(out, &p)
	}
	return out, rows.Err()
}

func getFunctionsByIDs(ctx context.Context, q querier, ids []int64) ([]*Function, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM functions WHERE id IN (%s)`, functionColumns, idsPlaceholder(len(ids)))
	rows, err := q.QueryContext(ctx, query, idsToArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Function
	for rows.Next() {
		f, err := scanFunction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func getTypesByIDs(ctx context.Context, q querier, ids []int64) ([]*Type, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT id, module_id, name, fully_qualified_name, kind, doc_comment, base_classes, interfaces
		FROM types WHERE id IN (%s)`, idsPlaceholder(len(ids)))
	rows, err := q.QueryContext(ctx, query, idsToArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Type
	for rows.Next() {
		var t Type
		var kind, baseClasses, interfaces string
		if err := rows.Scan(&t.ID, &t.ModuleID, &t.Name, &t.FullyQualifiedName, &kind, &t.DocComment, &baseClasses, &interfaces); err != nil {
			return nil, err
		}
		t.Kind = TypeKind(kind)
		t.BaseClasses = splitCSV(baseClasses)
		t.Interfaces = splitCSV(interfaces)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func getExamplesByIDs(ctx context.Context, q querier, ids []int64) ([]*CodeExample, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT id, function_id, type_id, package_id, code, description, is_unittest, is_runnable, required_imports
		FROM code_examples WHERE id IN (%s)`, idsPlaceholder(len(ids)))
	rows, err := q.QueryContext(ctx, query, idsToArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CodeExample
	for rows.Next() {
		var ex CodeExample
		var functionID, typeID, packageID sql.NullInt64
		var imports string
		var isUnittest, isRunnable int
		if err := rows.Scan(&ex.ID, &functionID, &typeID, &packageID, &ex.Code, &ex.Description, &isUnittest, &isRunnable, &imports); err != nil {
			return nil, err
		}
		if functionID.Valid {
			v := functionID.Int64
			ex.FunctionID = &v
		}
		if typeID.Valid {
			v := typeID.Int64
			ex.TypeID = &v
		}
		if packageID.Valid {
			v := packageID.Int64
			ex.PackageID = &v
		}
		ex.IsUnittest = parseBool(int64(isUnittest))
		ex.IsRunnable = parseBool(int64(isRunnable))
		ex.RequiredImports = splitCSV(imports)
		out = append(out, &ex)
	}
	return out, rows.Err()
}

// getImportsForSymbolFQN selects from import_requirements joined to functions
// and types with matching FQN (spec §4.8 get_imports_for_symbol, first step;
// the enclosing-module fallback for an empty result lives in internal/search,
// since it is query-shaping, not storage).
func getImportsForSymbolFQN(ctx context.Context, q querier, fqn string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ir.import_path FROM import_requirements ir
		JOIN functions f ON ir.function_id = f.id
		WHERE f.fully_qualified_name = ?
		UNION
		SELECT ir.import_path FROM import_requirements ir
		JOIN types t ON ir.type_id = t.id
		WHERE t.fully_qualified_name = ?
	`, fqn, fqn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		out = append(out, path)
	}
	return out, rows.Err()
}

// mineImportPatterns groups code_examples by their raw required_imports
// string, keeping groups at or above minOccurrences and returning at most
// topN, most frequent first (spec §4.7 import-pattern mining).
func mineImportPatterns(ctx context.Context, q querier, minOccurrences, topN int) ([]ImportPatternGroup, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT required_imports, COUNT(*) AS occurrences
		FROM code_examples
		WHERE required_imports != ''
		GROUP BY required_imports
		HAVING COUNT(*) >= ?
		ORDER BY occurrences DESC
		LIMIT ?
	`, minOccurrences, topN)
	if err != nil {
		return nil, searcherrors.Wrap(searcherrors.ErrCodeMalformedField, err)
	}
	defer rows.Close()

	var out []ImportPatternGroup
	for rows.Next() {
		var g ImportPatternGroup
		if err := rows.Scan(&g.Imports, &g.Count); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// upsertUsagePattern writes or replaces a usage_patterns row keyed by
// pattern_name (spec §4.7 store usage patterns).
func upsertUsagePattern(ctx context.Context, q querier, p *UsagePattern) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO usage_patterns (pattern_name, description, function_ids, code_template, use_case, popularity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern_name) DO UPDATE SET
			description = excluded.description,
			function_ids = excluded.function_ids,
			code_template = excluded.code_template,
			use_case = excluded.use_case,
			popularity = excluded.popularity
	`, p.PatternName, p.Description, p.FunctionIDs, p.CodeTemplate, p.UseCase, p.Popularity)
	if err != nil {
		return searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
	}
	return nil
}

// mineFunctionRelationships self-joins functions on equal module_id,
// excluding self-pairs, capped at limit pairs, and upsert-ignores each pair
// into function_relationships as "related" with weight 1 (spec §4.7
// function relationships). Returns the count of newly inserted rows.
func mineFunctionRelationships(ctx context.Context, q querier, limit int) (int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT a.id, b.id
		FROM functions a
		JOIN functions b ON a.module_id = b.module_id AND a.id < b.id
		LIMIT ?
	`, limit)
	if err != nil {
		return 0, searcherrors.Wrap(searcherrors.ErrCodeMalformedField, err)
	}
	type pair struct{ from, to int64 }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.from, &p.to); err != nil {
			rows.Close()
			return 0, err
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	inserted := 0
	for _, p := range pairs {
		res, err := q.ExecContext(ctx, `
			INSERT INTO function_relationships (from_id, to_id, relationship_type, weight)
			VALUES (?, ?, 'related', 1)
			ON CONFLICT(from_id, to_id, relationship_type) DO NOTHING
		`, p.from, p.to)
		if err != nil {
			return inserted, searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}
