package astdump

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	searcherrors "github.com/dregistry/docsearch/internal/errors"
)

// rawModule is one top-level module element in the compiler's AST dump.
type rawModule struct {
	Name    string      `json:"name"`
	Comment string      `json:"comment"`
	Members []rawMember `json:"members"`
}

// rawMember is one declaration member: a function, or a class/struct/
// interface/enum carrying its own nested members.
type rawMember struct {
	Kind         string      `json:"kind"`
	Name         string      `json:"name"`
	Line         int         `json:"line"`
	File         string      `json:"file"`
	Comment      string      `json:"comment"`
	Type         string      `json:"type"`
	ReturnType   string      `json:"returnType"`
	OriginalType string      `json:"originalType"`
	Parameters   []string    `json:"parameters"`
	Attributes   []string    `json:"attributes"`
	Deco         string      `json:"deco"`
	IsTemplate   bool        `json:"isTemplate"`
	Base         string      `json:"base"`
	Interfaces   []string    `json:"interfaces"`
	Members      []rawMember `json:"members"`
}

const unittestPrefix = "__unittest"

var typeKinds = map[string]bool{"class": true, "struct": true, "interface": true, "enum": true}

// ParseDump parses a compiler AST dump (a JSON array of top-level module
// elements) into its ModuleResult records. A malformed top-level element is
// skipped with a logged warning rather than aborting the whole dump (a
// malformed member therefore drops its whole module); a document that is
// not a JSON array is reported as a structured parse error.
func ParseDump(data []byte) ([]*ModuleResult, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, searcherrors.Wrap(searcherrors.ErrCodeMalformedDump, err)
	}

	results := make([]*ModuleResult, 0, len(elements))
	for i, el := range elements {
		var m rawModule
		if err := json.Unmarshal(el, &m); err != nil {
			slog.Warn("astdump_skipped_module", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		results = append(results, parseModule(m))
	}
	return results, nil
}

// parseModule runs phases A-C over one module's members.
func parseModule(m rawModule) *ModuleResult {
	result := &ModuleResult{Name: m.Name, DocComment: m.Comment}

	type declaration struct {
		line      int
		addExample func(UnittestEntry)
	}
	var declarations []declaration
	var pending []UnittestEntry

	for _, member := range m.Members {
		switch {
		case member.Kind == "function" && strings.HasPrefix(member.Name, unittestPrefix):
			pending = append(pending, UnittestEntry{Line: member.Line, Doc: member.Comment})

		case member.Kind == "function":
			fn := parseFunction(member)
			result.Functions = append(result.Functions, fn)
			idx := len(result.Functions) - 1
			declarations = append(declarations, declaration{
				line: fn.Line,
				addExample: func(u UnittestEntry) {
					result.Functions[idx].Unittests = append(result.Functions[idx].Unittests, u)
				},
			})

		case typeKinds[member.Kind]:
			t := parseType(member)
			result.Types = append(result.Types, t)
			idx := len(result.Types) - 1
			declarations = append(declarations, declaration{
				line: t.Line,
				addExample: func(u UnittestEntry) {
					result.Types[idx].Unittests = append(result.Types[idx].Unittests, u)
				},
			})

		default:
			slog.Warn("astdump_skipped_member",
				slog.String("module", m.Name), slog.String("kind", member.Kind), slog.String("name", member.Name))
		}
	}

	// Phase C: attach each unittest to the nearest preceding declaration.
	sort.Slice(declarations, func(i, j int) bool { return declarations[i].line < declarations[j].line })
	for _, u := range pending {
		best := -1
		for i, d := range declarations {
			if d.line <= u.Line {
				best = i
			} else {
				break
			}
		}
		if best >= 0 {
			declarations[best].addExample(u)
		}
	}

	return result
}

// parseFunction implements Phase B for one function member.
func parseFunction(m rawMember) FuncInfo {
	fn := FuncInfo{
		Name:       m.Name,
		Line:       m.Line,
		File:       m.File,
		DocComment: m.Comment,
		Doc:        ParseDocComment(m.Comment),
		Parameters: append([]string(nil), m.Parameters...),
		IsTemplate: m.IsTemplate,
	}

	fn.ReturnType = m.ReturnType
	if fn.ReturnType == "" && m.Type != "" {
		if fields := strings.Fields(m.Type); len(fields) > 0 {
			fn.ReturnType = fields[0]
		}
	}

	for _, a := range m.Attributes {
		switch a {
		case "safe":
			fn.IsSafe = true
		case "trusted":
			fn.IsTrusted = true
		case "nogc":
			fn.IsNoGC = true
		case "nothrow":
			fn.IsNoThrow = true
		case "pure":
			fn.IsPure = true
		}
	}

	needsEnrichment := false
	for _, p := range fn.Parameters {
		if !strings.Contains(strings.TrimSpace(p), " ") {
			needsEnrichment = true
			break
		}
	}
	if needsEnrichment {
		enrichParameters(&fn, m)
	}

	if fn.ReturnType == "" && m.Deco != "" {
		fn.ReturnType = ReturnTypeFromDeco(m.Deco)
	}

	if len(m.Attributes) == 0 && m.Deco != "" {
		attrs := AttributesFromDeco(m.Deco)
		fn.IsPure = fn.IsPure || attrs.Pure
		fn.IsNoThrow = fn.IsNoThrow || attrs.NoThrow
		fn.IsSafe = fn.IsSafe || attrs.Safe
		fn.IsTrusted = fn.IsTrusted || attrs.Trusted
		fn.IsNoGC = fn.IsNoGC || attrs.NoGC
	}

	fn.Signature = BuildSignature(fn.ReturnType, fn.Name, fn.Parameters, fn.IsSafe, fn.IsNoGC, fn.IsNoThrow, fn.IsPure)
	return fn
}

// enrichParameters fills in missing "type name" parameters from the
// sibling originalType field when it yields one entry per parameter.
// Per-parameter deco strings are not decoded.
func enrichParameters(fn *FuncInfo, m rawMember) {
	if m.OriginalType != "" {
		if parsed := parseParamsFromOriginalType(m.OriginalType); len(parsed) == len(fn.Parameters) {
			fn.Parameters = parsed
			return
		}
	}
	// Best-effort: without per-parameter deco strings in this dump shape,
	// leave names as-is; callers still get name-only parameters rather
	// than losing them.
}

// parseParamsFromOriginalType extracts "type name" pairs from a signature
// string shaped like "ReturnType(type1 name1, type2 name2)".
func parseParamsFromOriginalType(originalType string) []string {
	open := strings.IndexByte(originalType, '(')
	closeIdx := strings.LastIndexByte(originalType, ')')
	if open < 0 || closeIdx <= open {
		return nil
	}
	inner := strings.TrimSpace(originalType[open+1 : closeIdx])
	if inner == "" {
		return nil
	}
	parts := strings.Split(inner, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// parseType implements the type-mirrors-function-parsing pass for one
// class/struct/interface/enum member.
func parseType(m rawMember) ParsedType {
	t := ParsedType{
		Name:       m.Name,
		Kind:       m.Kind,
		Line:       m.Line,
		File:       m.File,
		DocComment: m.Comment,
		Doc:        ParseDocComment(m.Comment),
		BaseClass:  m.Base,
		Interfaces: append([]string(nil), m.Interfaces...),
	}
	for _, nested := range m.Members {
		if nested.Kind == "function" {
			t.Methods = append(t.Methods, parseFunction(nested))
		}
	}
	return t
}
