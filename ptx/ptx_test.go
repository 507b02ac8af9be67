package ptx

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupTotal(t *testing.T) {
	for _, typ := range TypeValues() {
		info := Lookup(typ)
		if typ == Invalid {
			assert.Equal(t, -1, info.Size)
			continue
		}
		assert.Greater(t, info.Size, 0, "type %s", typ)
		assert.NotEmpty(t, info.Name, "type %s", typ)
		assert.NotEmpty(t, info.BinName, "type %s", typ)
		assert.NotEmpty(t, info.RegPrefix, "type %s", typ)
	}
	err := exceptions.TryCatch[error](func() { Lookup(Type(NumTypes)) })
	require.Error(t, err)
}

func TestSizes(t *testing.T) {
	assert.Equal(t, 1, Bool.Size())
	assert.Equal(t, 2, F16.Size())
	assert.Equal(t, 8, Pointer.Size())
	for _, typ := range []Type{I8, U8, I16, U16, I32, U32, I64, U64, F16, F32, F64} {
		require.Equal(t, int(typ.DType().Size()), typ.Size(), "type %s", typ)
	}
}

func TestDTypeRoundTrip(t *testing.T) {
	for _, typ := range TypeValues() {
		if typ == Invalid || typ == Pointer {
			continue
		}
		require.Equal(t, typ, FromDType(typ.DType()), "type %s", typ)
	}
	assert.Equal(t, Invalid, FromDType(dtypes.BFloat16))
	assert.Equal(t, U64, FromDType(Pointer.DType()))
}

func TestRegisterFilePrefixes(t *testing.T) {
	prefixes := make(map[string]bool)
	for _, f := range RegisterFiles {
		assert.False(t, prefixes[f.Prefix], "duplicate register prefix %s", f.Prefix)
		prefixes[f.Prefix] = true
	}
	for _, typ := range TypeValues() {
		if typ == Invalid {
			continue
		}
		assert.True(t, prefixes[Lookup(typ).RegPrefix],
			"type %s has no register file for prefix %s", typ, Lookup(typ).RegPrefix)
	}
}
