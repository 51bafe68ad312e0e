package astdump

import "strings"

// sectionNames is the closed set of recognized doc-comment section headers.
// A line opens a section only on an exact-case match immediately followed
// by a colon.
var sectionNames = map[string]bool{
	"Authors": true, "Bugs": true, "Date": true, "Deprecated": true,
	"Examples": true, "History": true, "License": true, "Params": true,
	"Returns": true, "See_Also": true, "Standards": true, "Throws": true,
	"Version": true, "Note": true, "Warning": true,
}

// ParseDocComment splits raw into a summary, its named sections, and any
// "---"-delimited code example blocks (captured wherever they occur, and an
// unterminated trailing block is captured too).
func ParseDocComment(raw string) DocComment {
	doc := DocComment{Sections: make(map[string]string)}

	lines := strings.Split(raw, "\n")
	currentName := ""
	var buf []string
	var exampleBuf []string
	inExample := false
	var examples []string

	flush := func() {
		content := strings.TrimSpace(strings.Join(buf, "\n"))
		if currentName == "" {
			doc.Summary = content
		} else if content != "" {
			doc.Sections[currentName] = content
		}
		buf = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if trimmed == "---" {
			if inExample {
				examples = append(examples, strings.TrimRight(strings.Join(exampleBuf, "\n"), "\n"))
				exampleBuf = nil
				inExample = false
			} else {
				inExample = true
				exampleBuf = nil
			}
			continue
		}
		if inExample {
			exampleBuf = append(exampleBuf, line)
			continue
		}

		if name, rest, ok := matchSectionHeader(trimmed); ok {
			flush()
			currentName = name
			if rest != "" {
				buf = append(buf, rest)
			}
			continue
		}
		buf = append(buf, line)
	}

	if inExample && len(exampleBuf) > 0 {
		examples = append(examples, strings.TrimRight(strings.Join(exampleBuf, "\n"), "\n"))
	}
	flush()
	doc.Examples = examples
	return doc
}

// matchSectionHeader reports whether trimmed opens one of the recognized
// sections ("Name:" exact-case, immediate colon), returning the section
// name and any trailing content on the same line.
func matchSectionHeader(trimmed string) (name, rest string, ok bool) {
	idx := strings.IndexByte(trimmed, ':')
	if idx <= 0 {
		return "", "", false
	}
	candidate := trimmed[:idx]
	if !sectionNames[candidate] {
		return "", "", false
	}
	return candidate, strings.TrimSpace(trimmed[idx+1:]), true
}
