// Package astdump parses a compiler's JSON AST dump into the typed symbol
// records the store persists: functions, types, doc-comment sections, and
// the unittest blocks attached to the declaration that precedes them
// (spec §4.4).
package astdump

// FuncInfo is one parsed function or method declaration.
type FuncInfo struct {
	Name       string
	Line       int
	File       string
	ReturnType string
	Parameters []string // "type name" strings, in declaration order
	DocComment string
	Doc        DocComment
	IsTemplate bool
	IsSafe     bool
	IsTrusted  bool
	IsNoGC     bool
	IsNoThrow  bool
	IsPure     bool
	Signature  string
	Unittests  []UnittestEntry
}

// ParsedType is one parsed class/struct/interface/enum declaration.
type ParsedType struct {
	Name       string
	Kind       string // "class", "struct", "interface", "enum"
	Line       int
	File       string
	DocComment string
	Doc        DocComment
	BaseClass  string
	Interfaces []string
	Methods    []FuncInfo
	Unittests  []UnittestEntry
}

// UnittestEntry is a `__unittest*` function member, before association.
type UnittestEntry struct {
	Line int
	Doc  string
}

// ModuleResult is one parsed top-level module.
type ModuleResult struct {
	Name       string
	DocComment string
	Functions  []FuncInfo
	Types      []ParsedType
}

// DocComment is the parsed shape of a documentation comment: a summary
// preceding the first recognized section, the recognized sections keyed by
// name, and any "---"-delimited code example blocks found anywhere in the
// comment.
type DocComment struct {
	Summary  string
	Sections map[string]string
	Examples []string
}
