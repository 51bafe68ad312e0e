package astdump

import "strings"

// primitiveDeco maps single-letter mangled primitives to their readable
// names.
var primitiveDeco = map[byte]string{
	'v': "void", 'i': "int", 'k': "uint", 'l': "long", 'm': "ulong",
	'f': "float", 'd': "double", 'e': "real", 'b': "bool", 'a': "char",
	'u': "wchar", 'w': "dchar", 'g': "byte", 'h': "ubyte", 's': "short",
	't': "ushort", 'n': "typeof(null)",
}

// aliasDeco normalizes the three string-like array aliases.
var aliasDeco = map[string]string{
	"immutable(char)[]":  "string",
	"immutable(wchar)[]": "wstring",
	"immutable(dchar)[]": "dstring",
}

// DecodeType decodes a single deco-mangled type string into its readable
// form, e.g. "AxaZ" is never passed here directly — callers pass the type
// portion only (see ReturnTypeFromDeco for locating it within a function's
// full deco string).
func DecodeType(deco string) string {
	d := &decoDecoder{s: deco}
	t := d.decodeType()
	if alias, ok := aliasDeco[t]; ok {
		return alias
	}
	return t
}

type decoDecoder struct {
	s   string
	pos int
}

func (d *decoDecoder) decodeType() string {
	if d.pos >= len(d.s) {
		return ""
	}
	c := d.s[d.pos]

	if name, ok := primitiveDeco[c]; ok {
		d.pos++
		return name
	}

	switch c {
	case 'A': // dynamic array
		d.pos++
		result := d.decodeType() + "[]"
		if alias, ok := aliasDeco[result]; ok {
			return alias
		}
		return result
	case 'G': // static array: G<n><elem>
		d.pos++
		n := d.readDigits()
		return d.decodeType() + "[" + n + "]"
	case 'H': // associative array: value then key
		d.pos++
		value := d.decodeType()
		key := d.decodeType()
		return value + "[" + key + "]"
	case 'P': // pointer
		d.pos++
		return d.decodeType() + "*"
	case 'x': // const
		d.pos++
		return "const(" + d.decodeType() + ")"
	case 'y': // immutable
		d.pos++
		return "immutable(" + d.decodeType() + ")"
	case 'O': // shared
		d.pos++
		return "shared(" + d.decodeType() + ")"
	case 'N': // Ng -> inout; any other N-pair is an attribute marker, not a type
		if d.pos+1 < len(d.s) && d.s[d.pos+1] == 'g' {
			d.pos += 2
			return "inout(" + d.decodeType() + ")"
		}
		d.pos++
		return ""
	case 'E', 'S', 'C', 'I': // qualified name: class/struct/enum/interface
		d.pos++
		return d.decodeQualifiedName()
	default:
		d.pos++
		return ""
	}
}

// readDigits consumes a run of ASCII digits and returns them as text.
func (d *decoDecoder) readDigits() string {
	start := d.pos
	for d.pos < len(d.s) && d.s[d.pos] >= '0' && d.s[d.pos] <= '9' {
		d.pos++
	}
	return d.s[start:d.pos]
}

// decodeQualifiedName consumes a run of <len><name> pairs and returns only
// the final dotted component, for readability.
func (d *decoDecoder) decodeQualifiedName() string {
	var last string
	for d.pos < len(d.s) && d.s[d.pos] >= '0' && d.s[d.pos] <= '9' {
		lenStr := d.readDigits()
		n := 0
		for _, r := range lenStr {
			n = n*10 + int(r-'0')
		}
		if n <= 0 || d.pos+n > len(d.s) {
			break
		}
		last = d.s[d.pos : d.pos+n]
		d.pos += n
	}
	return last
}

// attributeMarkers maps the deco N-pair second letter to the attribute it
// sets.
var attributeMarkers = map[byte]string{
	'a': "pure", 'b': "nothrow", 'f': "safe", 'e': "trusted", 'i': "nogc",
}

// DecodedAttributes holds the function attributes recovered from a deco
// string's N-pairs.
type DecodedAttributes struct {
	Pure, NoThrow, Safe, Trusted, NoGC bool
}

// AttributesFromDeco scans deco for `N?` pairs up to the final `Z`
// separator, setting the corresponding flag for each recognized pair.
func AttributesFromDeco(deco string) DecodedAttributes {
	var attrs DecodedAttributes
	i := 0
	for i < len(deco) {
		if deco[i] == 'Z' {
			break
		}
		if deco[i] == 'N' && i+1 < len(deco) {
			switch attributeMarkers[deco[i+1]] {
			case "pure":
				attrs.Pure = true
			case "nothrow":
				attrs.NoThrow = true
			case "safe":
				attrs.Safe = true
			case "trusted":
				attrs.Trusted = true
			case "nogc":
				attrs.NoGC = true
			}
			i += 2
			continue
		}
		i++
	}
	return attrs
}

// ReturnTypeFromDeco locates the final `Z` separator in a function's own
// deco string and decodes what follows as the return type.
func ReturnTypeFromDeco(deco string) string {
	idx := strings.LastIndexByte(deco, 'Z')
	if idx < 0 || idx+1 >= len(deco) {
		return ""
	}
	return DecodeType(deco[idx+1:])
}
