package crawler

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"

	searcherrors "github.com/dregistry/docsearch/internal/errors"
	"github.com/dregistry/docsearch/internal/fetch"
)

const metadataCacheSize = 256

// sourceExtension is the indexed language's source file suffix.
const sourceExtension = ".d"

// candidateSourceDirs are probed, in order, beneath an extracted package
// root, and beneath each of its immediate children.
var candidateSourceDirs = []string{"source", "src"}

// Config configures a Crawler.
type Config struct {
	CacheRoot   string
	APIBase     string
	ArchiveBase string
}

// Crawler fetches package metadata and source archives from the registry,
// caching both under CacheRoot (spec §4.5). The filesystem cache is a
// single-writer resource keyed by package name and version (spec §5); a
// Crawler value is not safe for concurrent ingestion of the same package.
type Crawler struct {
	cfg    Config
	client *fetch.Client

	metaCache *lru.Cache[string, *PackageInfo]
}

// New returns a Crawler backed by client, caching under cfg.CacheRoot.
func New(cfg Config, client *fetch.Client) (*Crawler, error) {
	cache, err := lru.New[string, *PackageInfo](metadataCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create metadata cache: %w", err)
	}
	return &Crawler{cfg: cfg, client: client, metaCache: cache}, nil
}

func (c *Crawler) metadataDir() string  { return filepath.Join(c.cfg.CacheRoot, "metadata") }
func (c *Crawler) sourcesDir() string   { return filepath.Join(c.cfg.CacheRoot, "sources") }
func (c *Crawler) metadataPath(name string) string {
	return filepath.Join(c.metadataDir(), name+".json")
}
func (c *Crawler) sourceDirPath(name, version string) string {
	return filepath.Join(c.sourcesDir(), name+"-"+version)
}
func (c *Crawler) archivePath(name, version string) string {
	return filepath.Join(c.sourcesDir(), name+"-"+version+".zip")
}

// lockPath returns the filesystem lock file guarding concurrent access to
// one package+version's cache entries.
func (c *Crawler) lockPath(name, version string) string {
	return filepath.Join(c.cfg.CacheRoot, ".locks", name+"-"+version+".lock")
}

// withPackageLock serializes access to one package+version's cache entries
// across processes, per spec §5's single-writer cache policy.
func (c *Crawler) withPackageLock(name, version string, fn func() error) error {
	lockPath := c.lockPath(name, version)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return searcherrors.Wrap(searcherrors.ErrCodeFilePermission, err)
	}
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return searcherrors.Wrap(searcherrors.ErrCodeFilePermission, err)
	}
	defer fl.Unlock()
	return fn()
}

// ListPackages fetches the registry's package dump and returns the set of
// package names, accommodating both documented response shapes: a bare
// array of strings, or an array of {name, ...} objects (spec §6).
func (c *Crawler) ListPackages(ctx context.Context) ([]string, error) {
	body, err := c.client.Get(ctx, c.cfg.APIBase+"/packages/dump")
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(body, &names); err == nil {
		return names, nil
	}

	var entries []rawPackageListEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, searcherrors.Wrap(searcherrors.ErrCodeMalformedField, err)
	}
	names = make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name != "" {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// GetPackageInfo returns package metadata, reading from the on-disk cache
// when present and falling through to the registry API on a miss (spec
// §4.5 get_package_info). A successful network fetch refreshes the cache.
func (c *Crawler) GetPackageInfo(ctx context.Context, name string) (*PackageInfo, error) {
	if info, ok := c.metaCache.Get(name); ok {
		return info, nil
	}

	if data, err := os.ReadFile(c.metadataPath(name)); err == nil {
		var info PackageInfo
		if jsonErr := json.Unmarshal(data, &info); jsonErr == nil {
			c.metaCache.Add(name, &info)
			return &info, nil
		}
		slog.Warn("crawler_cache_corrupt", slog.String("package", name))
	}

	url := fmt.Sprintf("%s/packages/%s/latest/info", c.cfg.APIBase, name)
	body, err := c.client.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	var info PackageInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, searcherrors.Wrap(searcherrors.ErrCodeMalformedField, err)
	}

	if err := os.MkdirAll(c.metadataDir(), 0o755); err != nil {
		return nil, searcherrors.Wrap(searcherrors.ErrCodeFilePermission, err)
	}
	if err := os.WriteFile(c.metadataPath(name), body, 0o644); err != nil {
		slog.Warn("crawler_cache_write_failed", slog.String("package", name), slog.String("error", err.Error()))
	}

	c.metaCache.Add(name, &info)
	return &info, nil
}

// DownloadSource downloads and extracts a package's source archive,
// returning the extracted tree's root. If the tree already exists under
// the cache it is returned without any network access (spec §4.5
// download_source).
func (c *Crawler) DownloadSource(ctx context.Context, name, version string) (string, error) {
	dir := c.sourceDirPath(name, version)

	var result string
	err := c.withPackageLock(name, version, func() error {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			result = dir
			return nil
		}

		archivePath := c.archivePath(name, version)
		if err := os.MkdirAll(c.sourcesDir(), 0o755); err != nil {
			return searcherrors.Wrap(searcherrors.ErrCodeFilePermission, err)
		}

		if _, err := os.Stat(archivePath); err != nil {
			url := fmt.Sprintf("%s/packages/%s/%s.zip", c.cfg.ArchiveBase, name, version)
			if err := c.client.Download(ctx, url, archivePath); err != nil {
				return err
			}
		}

		if err := extractZip(archivePath, dir); err != nil {
			return searcherrors.Wrap(searcherrors.ErrCodeArchiveCorrupt, err)
		}
		result = dir
		return nil
	})
	return result, err
}

// extractZip extracts archivePath into destDir, creating parent directories
// for every member before writing its expanded contents.
func extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive member escapes destination: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		closeErr := out.Close()
		if copyErr != nil {
			return copyErr
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return nil
}

// FindSourceDirectory probes root/source, root/src, and each immediate
// child directory's source/src, returning the first match; else root
// itself (spec §4.5 find_source_directory).
func FindSourceDirectory(root string) string {
	for _, candidate := range candidateSourceDirs {
		p := filepath.Join(root, candidate)
		if isDir(p) {
			return p
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return root
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		for _, candidate := range candidateSourceDirs {
			p := filepath.Join(root, entry.Name(), candidate)
			if isDir(p) {
				return p
			}
		}
	}
	return root
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FindSourceFiles recursively walks dir collecting source files (spec §4.5
// find_source_files).
func FindSourceFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), sourceExtension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// GetCacheStats reports counts and on-disk sizes for the metadata and
// source caches (spec §4.5 get_cache_stats).
func (c *Crawler) GetCacheStats() (*CacheStats, error) {
	stats := &CacheStats{}

	if entries, err := os.ReadDir(c.metadataDir()); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			stats.MetadataFiles++
			if info, err := e.Info(); err == nil {
				stats.TotalBytes += info.Size()
			}
		}
	}

	entries, err := os.ReadDir(c.sourcesDir())
	if err != nil {
		return stats, nil
	}
	for _, e := range entries {
		if e.IsDir() {
			stats.SourceDirs++
			size, err := dirSize(filepath.Join(c.sourcesDir(), e.Name()))
			if err == nil {
				stats.TotalBytes += size
			}
			continue
		}
		if strings.HasSuffix(e.Name(), ".zip") {
			stats.ArchiveFiles++
		}
		if info, err := e.Info(); err == nil {
			stats.TotalBytes += info.Size()
		}
	}
	return stats, nil
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// ClearCache removes and recreates the cache root (spec §4.5 clear_cache).
func (c *Crawler) ClearCache() error {
	if err := os.RemoveAll(c.cfg.CacheRoot); err != nil {
		return searcherrors.Wrap(searcherrors.ErrCodeFilePermission, err)
	}
	if err := os.MkdirAll(c.metadataDir(), 0o755); err != nil {
		return searcherrors.Wrap(searcherrors.ErrCodeFilePermission, err)
	}
	if err := os.MkdirAll(c.sourcesDir(), 0o755); err != nil {
		return searcherrors.Wrap(searcherrors.ErrCodeFilePermission, err)
	}
	c.metaCache.Purge()
	return nil
}
