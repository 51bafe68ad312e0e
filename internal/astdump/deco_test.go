package astdump

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeTypePrimitives(t *testing.T) {
	assert.Equal(t, "int", DecodeType("i"))
	assert.Equal(t, "void", DecodeType("v"))
	assert.Equal(t, "ulong", DecodeType("m"))
}

func TestDecodeTypeDynamicArray(t *testing.T) {
	assert.Equal(t, "int[]", DecodeType("Ai"))
}

func TestDecodeTypeStaticArray(t *testing.T) {
	assert.Equal(t, "int[4]", DecodeType("G4i"))
}

func TestDecodeTypeAssociativeArrayValueThenKey(t *testing.T) {
	assert.Equal(t, "int[string]", DecodeType("HiAya"))
}

func TestDecodeTypePointer(t *testing.T) {
	assert.Equal(t, "int*", DecodeType("Pi"))
}

func TestDecodeTypeQualifiers(t *testing.T) {
	assert.Equal(t, "const(int)", DecodeType("xi"))
	assert.Equal(t, "shared(int)", DecodeType("Oi"))
	assert.Equal(t, "inout(int)", DecodeType("Ngi"))
}

func TestDecodeTypeStringAliases(t *testing.T) {
	assert.Equal(t, "string", DecodeType("Aya"))
}

func TestDecodeQualifiedNameReturnsFinalComponent(t *testing.T) {
	// E<len>name<len>name..., e.g. "E3std4json" -> "json"
	assert.Equal(t, "json", DecodeType("E3std4json"))
}

func TestReturnTypeFromDecoLocatesFinalZ(t *testing.T) {
	assert.Equal(t, "int", ReturnTypeFromDeco("FNaNbZi"))
}

func TestReturnTypeFromDecoNoZReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", ReturnTypeFromDeco("Fi"))
}

func TestAttributesFromDecoStopsAtZ(t *testing.T) {
	attrs := AttributesFromDeco("NaNbNfNiZi")
	assert.True(t, attrs.Pure)
	assert.True(t, attrs.NoThrow)
	assert.True(t, attrs.Safe)
	assert.True(t, attrs.NoGC)
	assert.False(t, attrs.Trusted)
}
