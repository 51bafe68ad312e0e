// Package crawler fetches package metadata and source archives from the
// registry, caching both on disk, and locates the source files a package
// ships (spec §4.5).
package crawler

// PackageInfo is the subset of registry metadata the core consumes (spec §6).
type PackageInfo struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Repository  string   `json:"repository"`
	Homepage    string   `json:"homepage"`
	License     string   `json:"license"`
	Authors     []string `json:"authors"`
	Tags        []string `json:"tags"`
}

// CacheStats summarizes the on-disk footprint of the metadata and source
// caches.
type CacheStats struct {
	MetadataFiles int
	SourceDirs    int
	ArchiveFiles  int
	TotalBytes    int64
}

// rawPackageListEntry accommodates both registry dump shapes: a bare array
// of name strings, or an array of {name, ...} objects (spec §6).
type rawPackageListEntry struct {
	Name string `json:"name"`
}
