package astdump

import (
	"regexp"
	"strings"
)

// unittestHeaderRegex matches the start of a unittest block.
var unittestHeaderRegex = regexp.MustCompile(`unittest\s*\{`)

// importRegex matches `import <dotted>(:...)?;` statements.
var importRegex = regexp.MustCompile(`import\s+([A-Za-z_][A-Za-z0-9_.]*)(?:\s*:[^;]*)?\s*;`)

// RawUnittest is one unittest block recovered directly from source text,
// independent of any AST dump.
type RawUnittest struct {
	Code string
	Line int
}

// ExtractRawUnittests scans source for `unittest { ... }` blocks using
// balanced-brace matching after each `unittest` keyword, for packages whose
// compile-produced AST dump is unavailable.
func ExtractRawUnittests(source string) []RawUnittest {
	var out []RawUnittest
	locs := unittestHeaderRegex.FindAllStringIndex(source, -1)
	for _, loc := range locs {
		openBrace := loc[1] - 1
		body, end := extractBalanced(source, openBrace)
		if body == "" {
			continue
		}
		out = append(out, RawUnittest{
			Code: body,
			Line: 1 + strings.Count(source[:loc[0]], "\n"),
		})
		_ = end
	}
	return out
}

// extractBalanced returns the text spanned by the brace pair starting at
// openBrace (inclusive), and the index one past the closing brace. It
// returns "" if the braces never balance before EOF.
func extractBalanced(source string, openBrace int) (string, int) {
	if openBrace >= len(source) || source[openBrace] != '{' {
		return "", openBrace
	}
	depth := 0
	for i := openBrace; i < len(source); i++ {
		switch source[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return source[openBrace : i+1], i + 1
			}
		}
	}
	return "", len(source)
}

// ExtractRawImports scans source for `import <dotted>(:...)?;` statements
// and returns the dotted module paths, in order of appearance.
func ExtractRawImports(source string) []string {
	matches := importRegex.FindAllStringSubmatch(source, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// ExtractUnittestBody locates the first `unittest { ... }` block at or
// after startLine (1-indexed) in source and returns its full text. It is
// used to recover the body of a UnittestEntry the JSON dump only located
// by line number.
func ExtractUnittestBody(source string, startLine int) (string, bool) {
	lineOffsets := lineStartOffsets(source)
	if startLine < 1 || startLine > len(lineOffsets) {
		return "", false
	}
	from := lineOffsets[startLine-1]

	loc := unittestHeaderRegex.FindStringIndex(source[from:])
	if loc == nil {
		return "", false
	}
	openBrace := from + loc[1] - 1
	body, _ := extractBalanced(source, openBrace)
	if body == "" {
		return "", false
	}
	return body, true
}

func lineStartOffsets(source string) []int {
	offsets := []int{0}
	for i, c := range source {
		if c == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}
