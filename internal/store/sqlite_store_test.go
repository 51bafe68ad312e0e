package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "search.db"), 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertPackageUpsertsByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.InsertPackage(ctx, &Package{Name: "test-fixture-pkg", Version: "0.1.0", Description: "a fixture"})
	require.NoError(t, err)

	id2, err := s.InsertPackage(ctx, &Package{Name: "test-fixture-pkg", Version: "0.2.0", Description: "updated"})
	require.NoError(t, err)

	assert.Equal(t, id1, id2)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Packages)
}

func TestInsertFunctionUpsertsByFQN(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pkgID, err := s.InsertPackage(ctx, &Package{Name: "test-fixture-pkg"})
	require.NoError(t, err)
	modID, err := s.InsertModule(ctx, pkgID, &Module{ShortName: "mathutil", FullPath: "mathutil"})
	require.NoError(t, err)

	fn := &Function{
		ModuleID:           modID,
		Name:               "add",
		FullyQualifiedName: "mathutil.add",
		IsSafe:             true,
		IsNoGC:             true,
		IsPure:             true,
		IsNoThrow:          true,
	}
	id1, err := s.InsertFunction(ctx, modID, fn)
	require.NoError(t, err)

	fn.DocComment = "adds two numbers"
	id2, err := s.InsertFunction(ctx, modID, fn)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := s.GetFunctionByFQN(ctx, "mathutil.add")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsSafe && got.IsNoGC && got.IsPure && got.IsNoThrow)
	assert.Equal(t, "adds two numbers", got.DocComment)
}

func TestUpdateFTSAndSearchFTS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pkgID, err := s.InsertPackage(ctx, &Package{Name: "test-fixture-pkg"})
	require.NoError(t, err)
	modID, err := s.InsertModule(ctx, pkgID, &Module{ShortName: "mathutil", FullPath: "mathutil"})
	require.NoError(t, err)
	fnID, err := s.InsertFunction(ctx, modID, &Function{ModuleID: modID, Name: "add", FullyQualifiedName: "mathutil.add"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateFTSFunction(ctx, fnID, `"add" int add int int`))

	hits, err := s.SearchFTS(ctx, KindFunction, `"add"`, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, fnID, hits[0].ID)
	assert.Greater(t, hits[0].FTSScore, 0.0)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.InsertPackage(ctx, &Package{Name: "rollback-me"})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Packages)
}

func TestTransactionCommits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.InsertPackage(ctx, &Package{Name: "commit-me"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Packages)
}

func TestStoreEmbeddingAndSearchVectors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.True(t, s.VectorSupported())

	v := make([]float32, 8)
	v[0] = 1.0
	require.NoError(t, s.StoreEmbedding(ctx, KindFunction, 42, v))

	hits, err := s.SearchVectors(ctx, KindFunction, v, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, int64(42), hits[0].ID)
}

func TestStoreEmbeddingSkipsOnDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.StoreEmbedding(ctx, KindFunction, 1, []float32{1, 2, 3})
	assert.NoError(t, err) // logged and skipped, never a hard failure
}

func TestLatestProgressIsMaxID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveProgress(ctx, &IngestionProgress{Status: ProgressRunning, LastPackage: "a"})
	require.NoError(t, err)
	_, err = s.SaveProgress(ctx, &IngestionProgress{Status: ProgressCompleted, LastPackage: "b"})
	require.NoError(t, err)

	p, err := s.LatestProgress(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, ProgressCompleted, p.Status)
	assert.Equal(t, "b", p.LastPackage)
}
