package astdump

import "strings"

// BuildSignature reconstructs a function's display signature:
// `return_type name(params...) [safety_attrs]`.
func BuildSignature(returnType, name string, parameters []string, isSafe, isNoGC, isNoThrow, isPure bool) string {
	var b strings.Builder
	b.WriteString(returnType)
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteByte('(')
	b.WriteString(strings.Join(parameters, ", "))
	b.WriteByte(')')

	var attrs []string
	if isSafe {
		attrs = append(attrs, "@safe")
	}
	if isNoGC {
		attrs = append(attrs, "@nogc")
	}
	if isNoThrow {
		attrs = append(attrs, "nothrow")
	}
	if isPure {
		attrs = append(attrs, "pure")
	}
	if len(attrs) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Join(attrs, " "))
	}
	return b.String()
}
