package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dregistry/docsearch/internal/astdump"
	"github.com/dregistry/docsearch/internal/crawler"
	"github.com/dregistry/docsearch/internal/embed"
	searcherrors "github.com/dregistry/docsearch/internal/errors"
	"github.com/dregistry/docsearch/internal/store"
)

// DefaultDumpLookup implements the on-disk dump convention described on
// DumpLookup: a sibling "<file>.ast.json".
func DefaultDumpLookup(sourceFile string) ([]byte, bool) {
	data, err := os.ReadFile(sourceFile + ".ast.json")
	if err != nil {
		return nil, false
	}
	return data, true
}

// Pipeline drives ingestion for one or many packages (spec §4.6).
type Pipeline struct {
	Store      store.Store
	Crawler    *crawler.Crawler
	Embeddings *embed.Manager
	DumpLookup DumpLookup
}

// New returns a Pipeline with DumpLookup defaulted to DefaultDumpLookup.
func New(st store.Store, cr *crawler.Crawler, em *embed.Manager) *Pipeline {
	return &Pipeline{Store: st, Crawler: cr, Embeddings: em, DumpLookup: DefaultDumpLookup}
}

// IngestPackage runs the single-package sequence wrapped in one
// transaction: fetch metadata, download and locate source, parse each
// source file into code examples (and, where a dump is available,
// modules/functions/types), index everything for FTS and vector search,
// and embed the package's own description. Any error aborts the
// transaction, records an error progress row, and is returned to the
// caller (spec §4.6).
func (p *Pipeline) IngestPackage(ctx context.Context, name string) (*PackageResult, error) {
	result := &PackageResult{Package: name}

	info, err := p.Crawler.GetPackageInfo(ctx, name)
	if err != nil {
		p.recordFailure(ctx, name, err)
		return result, err
	}

	sourceRoot, err := p.Crawler.DownloadSource(ctx, info.Name, info.Version)
	if err != nil {
		p.recordFailure(ctx, name, err)
		return result, err
	}

	tx, err := p.Store.Begin(ctx)
	if err != nil {
		p.recordFailure(ctx, name, err)
		return result, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := p.ingestInto(ctx, tx, info, sourceRoot, result); err != nil {
		p.recordFailure(ctx, name, err)
		return result, err
	}

	if err := tx.Commit(); err != nil {
		wrapped := searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
		p.recordFailure(ctx, name, wrapped)
		return result, wrapped
	}
	committed = true
	result.Succeeded = true
	return result, nil
}

func (p *Pipeline) ingestInto(ctx context.Context, tx store.Transaction, info *crawler.PackageInfo, sourceRoot string, result *PackageResult) error {
	pkgID, err := tx.InsertPackage(ctx, &store.Package{
		Name:        info.Name,
		Version:     info.Version,
		Description: info.Description,
		Repository:  info.Repository,
		Homepage:    info.Homepage,
		License:     info.License,
		Authors:     info.Authors,
		Tags:        info.Tags,
	})
	if err != nil {
		return searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
	}

	sourceDir := crawler.FindSourceDirectory(sourceRoot)
	files, err := crawler.FindSourceFiles(sourceDir)
	if err != nil {
		return searcherrors.Wrap(searcherrors.ErrCodeFilePermission, err)
	}

	embedder, embedErr := p.Embeddings.Get(ctx)
	if embedErr != nil {
		slog.Warn("ingest_embedder_unavailable", slog.String("package", info.Name), slog.String("error", embedErr.Error()))
		embedder = nil
	}

	for _, file := range files {
		source, err := os.ReadFile(file)
		if err != nil {
			slog.Warn("ingest_source_read_failed", slog.String("package", info.Name), slog.String("file", file), slog.String("error", err.Error()))
			continue
		}

		if dump, ok := p.DumpLookup(file); ok {
			if err := p.ingestFromDump(ctx, tx, pkgID, dump, string(source), embedder, result); err != nil {
				return err
			}
			continue
		}

		p.ingestFromRawSource(ctx, tx, pkgID, string(source), embedder, result)
	}

	fullText := info.Name + " " + info.Description + " " + strings.Join(info.Tags, " ")
	if err := tx.UpdateFTSPackage(ctx, pkgID, fullText); err != nil {
		return searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
	}

	if embedder != nil && embedder.Available(ctx) {
		vec, err := embedder.Embed(ctx, fullText)
		if err != nil {
			slog.Warn("ingest_package_embed_failed", slog.String("package", info.Name), slog.String("error", err.Error()))
		} else if err := tx.StoreEmbedding(ctx, store.KindPackage, pkgID, vec); err != nil {
			slog.Warn("ingest_package_embedding_store_failed", slog.String("package", info.Name), slog.String("error", err.Error()))
		}
	}

	return nil
}

// ingestFromDump parses a compiler AST dump for one source file, inserting
// its modules, functions, and types, and recovering each associated
// unittest's code body from the raw source text to store as a CodeExample.
func (p *Pipeline) ingestFromDump(ctx context.Context, tx store.Transaction, pkgID int64, dump []byte, source string, embedder embed.Embedder, result *PackageResult) error {
	modules, err := astdump.ParseDump(dump)
	if err != nil {
		return err
	}

	for _, mod := range modules {
		moduleID, err := tx.InsertModule(ctx, pkgID, &store.Module{
			PackageID:  pkgID,
			ShortName:  lastDottedComponent(mod.Name),
			FullPath:   mod.Name,
			DocComment: mod.DocComment,
		})
		if err != nil {
			return searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
		}
		result.ModulesInserted++

		for _, fn := range mod.Functions {
			fnID, err := p.insertFunction(ctx, tx, moduleID, mod.Name, fn, embedder, result)
			if err != nil {
				return err
			}
			if err := p.storeUnittestExamples(ctx, tx, pkgID, &fnID, nil, fn.Unittests, source, embedder, result); err != nil {
				return err
			}
		}

		for _, typ := range mod.Types {
			typID, err := p.insertType(ctx, tx, moduleID, mod.Name, typ, embedder, result)
			if err != nil {
				return err
			}
			if err := p.storeUnittestExamples(ctx, tx, pkgID, nil, &typID, typ.Unittests, source, embedder, result); err != nil {
				return err
			}
			for _, method := range typ.Methods {
				methodFQN := mod.Name + "." + typ.Name + "." + method.Name
				methodID, err := p.insertFunctionFQN(ctx, tx, moduleID, methodFQN, method, embedder, result)
				if err != nil {
					return err
				}
				if err := p.storeUnittestExamples(ctx, tx, pkgID, &methodID, nil, method.Unittests, source, embedder, result); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (p *Pipeline) insertFunction(ctx context.Context, tx store.Transaction, moduleID int64, modulePath string, fn astdump.FuncInfo, embedder embed.Embedder, result *PackageResult) (int64, error) {
	return p.insertFunctionFQN(ctx, tx, moduleID, modulePath+"."+fn.Name, fn, embedder, result)
}

func (p *Pipeline) insertFunctionFQN(ctx context.Context, tx store.Transaction, moduleID int64, fqn string, fn astdump.FuncInfo, embedder embed.Embedder, result *PackageResult) (int64, error) {
	id, err := tx.InsertFunction(ctx, moduleID, &store.Function{
		ModuleID:           moduleID,
		Name:               fn.Name,
		FullyQualifiedName: fqn,
		Signature:          fn.Signature,
		ReturnType:         fn.ReturnType,
		DocComment:         fn.DocComment,
		Parameters:         fn.Parameters,
		IsTemplate:         fn.IsTemplate,
		IsNoGC:             fn.IsNoGC,
		IsNoThrow:          fn.IsNoThrow,
		IsPure:             fn.IsPure,
		IsSafe:             fn.IsSafe,
	})
	if err != nil {
		return 0, searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
	}
	result.FunctionsInserted++

	text := fn.Signature + " " + fn.DocComment
	if err := tx.UpdateFTSFunction(ctx, id, text); err != nil {
		return 0, searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
	}
	p.embedAndStore(ctx, tx, store.KindFunction, id, text, embedder)
	return id, nil
}

func (p *Pipeline) insertType(ctx context.Context, tx store.Transaction, moduleID int64, modulePath string, typ astdump.ParsedType, embedder embed.Embedder, result *PackageResult) (int64, error) {
	id, err := tx.InsertType(ctx, moduleID, &store.Type{
		ModuleID:           moduleID,
		Name:               typ.Name,
		FullyQualifiedName: modulePath + "." + typ.Name,
		Kind:               store.TypeKind(typ.Kind),
		DocComment:         typ.DocComment,
		BaseClasses:        nonEmpty(typ.BaseClass),
		Interfaces:         typ.Interfaces,
	})
	if err != nil {
		return 0, searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
	}
	result.TypesInserted++

	text := typ.Name + " " + typ.DocComment
	if err := tx.UpdateFTSType(ctx, id, text); err != nil {
		return 0, searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
	}
	p.embedAndStore(ctx, tx, store.KindType, id, text, embedder)
	return id, nil
}

// storeUnittestExamples recovers each unittest's code body from the raw
// source text (the dump itself never carries it, only the line) and
// inserts it as a CodeExample linked to its owning function or type.
func (p *Pipeline) storeUnittestExamples(ctx context.Context, tx store.Transaction, pkgID int64, functionID, typeID *int64, unittests []astdump.UnittestEntry, source string, embedder embed.Embedder, result *PackageResult) error {
	for _, u := range unittests {
		body, ok := astdump.ExtractUnittestBody(source, u.Line)
		if !ok {
			continue
		}
		if err := p.insertExample(ctx, tx, &store.CodeExample{
			FunctionID:      functionID,
			TypeID:          typeID,
			PackageID:       &pkgID,
			Code:            body,
			Description:     u.Doc,
			IsUnittest:      true,
			IsRunnable:      true,
			RequiredImports: astdump.ExtractRawImports(body),
		}, embedder, result); err != nil {
			return err
		}
	}
	return nil
}

// ingestFromRawSource handles a source file whose compiler dump never
// materialized: it recovers unittests and their imports directly from the
// source text, attaching each as a package-level CodeExample. Per-package
// failures here are logged, not raised, since a missing dump is an
// expected condition, not a parse error (spec §4.4 raw-source fallback).
func (p *Pipeline) ingestFromRawSource(ctx context.Context, tx store.Transaction, pkgID int64, source string, embedder embed.Embedder, result *PackageResult) {
	imports := astdump.ExtractRawImports(source)
	for _, u := range astdump.ExtractRawUnittests(source) {
		if err := p.insertExample(ctx, tx, &store.CodeExample{
			PackageID:       &pkgID,
			Code:            u.Code,
			IsUnittest:      true,
			IsRunnable:      true,
			RequiredImports: imports,
		}, embedder, result); err != nil {
			slog.Warn("ingest_raw_example_failed", slog.Int64("package_id", pkgID), slog.String("error", err.Error()))
		}
	}
}

func (p *Pipeline) insertExample(ctx context.Context, tx store.Transaction, ex *store.CodeExample, embedder embed.Embedder, result *PackageResult) error {
	id, err := tx.InsertCodeExample(ctx, ex)
	if err != nil {
		return searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
	}
	result.ExamplesInserted++

	text := ex.Description + " " + ex.Code
	if err := tx.UpdateFTSExample(ctx, id, text); err != nil {
		return searcherrors.Wrap(searcherrors.ErrCodeConstraintViolation, err)
	}
	p.embedAndStore(ctx, tx, store.KindExample, id, text, embedder)
	return nil
}

// embedAndStore computes and stores an entity's embedding. Failure is
// logged and swallowed, never aborting the transaction (spec §4.1 vector-
// insertion failure semantics, §7 vector-op failure).
func (p *Pipeline) embedAndStore(ctx context.Context, tx store.Transaction, kind store.Kind, id int64, text string, embedder embed.Embedder) {
	if embedder == nil || !embedder.Available(ctx) || !tx.VectorSupported() {
		return
	}
	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("ingest_embed_failed", slog.String("kind", string(kind)), slog.Int64("id", id), slog.String("error", err.Error()))
		return
	}
	if err := tx.StoreEmbedding(ctx, kind, id, vec); err != nil {
		slog.Warn("ingest_embedding_store_failed", slog.String("kind", string(kind)), slog.Int64("id", id), slog.String("error", err.Error()))
	}
}

func (p *Pipeline) recordFailure(ctx context.Context, name string, cause error) {
	_, err := p.Store.SaveProgress(ctx, &store.IngestionProgress{
		LastPackage:  name,
		Status:       store.ProgressError,
		ErrorMessage: fmt.Sprintf("%s: %s", name, cause.Error()),
	})
	if err != nil {
		slog.Warn("ingest_progress_save_failed", slog.String("package", name), slog.String("error", err.Error()))
	}
}

func lastDottedComponent(dotted string) string {
	if idx := strings.LastIndexByte(dotted, '.'); idx >= 0 {
		return dotted[idx+1:]
	}
	return dotted
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
