package corefile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueReadIntegers(t *testing.T) {
	fp := newFakeProgram(t)
	mem := newMemory(0x4000, 16)
	mem.putUint32(0x4000, 0xfffffffe)
	mem.putUint64(0x4008, 0x4000)
	fp.mapBytes(mem.base, mem.data)

	i32, err := fp.Value(0x4000, fp.MakeNumericType(NumericInt32))
	require.NoError(t, err)
	assert.Equal(t, int64(-2), i32.ReadInt())
	assert.Equal(t, uint64(0xfffffffe), i32.ReadUint())
	assert.True(t, i32.IsInteger())

	u32, err := fp.Value(0x4000, fp.MakeNumericType(NumericUint32))
	require.NoError(t, err)
	assert.Equal(t, int64(0xfffffffe), u32.ReadInt())

	f64, err := fp.Value(0x4008, fp.MakeNumericType(NumericFloat64))
	require.NoError(t, err)
	assert.False(t, f64.IsInteger())
	assert.Panics(t, func() { f64.ReadInt() })

	ptr, err := fp.Value(0x4008, fp.MakePtrType(fp.MakeNumericType(NumericInt32)))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x4000), ptr.ReadUint())
	target, err := ptr.Deref()
	require.NoError(t, err)
	assert.Equal(t, int64(-2), target.ReadInt())
}

func TestValueBounds(t *testing.T) {
	fp := newFakeProgram(t)
	fp.mapBytes(0x4000, make([]byte, 16))
	u64 := fp.MakeNumericType(NumericUint64)

	_, err := fp.Value(0, u64)
	assert.ErrorIs(t, err, ErrNil)
	_, err = fp.Value(0x400c, u64)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	arr, err := fp.Value(0x4000, fp.MakeArrayType(u64, 2))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), arr.Len())
	assert.True(t, arr.ContainsAddress(0x400f))
	assert.False(t, arr.ContainsAddress(0x4010))
	assert.True(t, arr.IsZero())

	e1, err := arr.Index(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x4008), e1.Addr)
	_, err = arr.Index(2)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	nilPtr, err := fp.Value(0x4000, fp.MakePtrType(u64))
	require.NoError(t, err)
	_, err = nilPtr.Deref()
	assert.ErrorIs(t, err, ErrNil)
	_, err = nilPtr.Index(3)
	assert.ErrorIs(t, err, ErrNil)
}

func TestValueFields(t *testing.T) {
	fp := newFakeProgram(t)
	u32 := fp.MakeNumericType(NumericUint32)
	st := fp.structType("JSC::Pair", 8,
		StructField{Name: "first", Type: u32, Offset: 0},
		StructField{Name: "second", Type: u32, Offset: 4},
	)
	mem := newMemory(0x5000, 8)
	mem.putUint32(0x5000, 1)
	mem.putUint32(0x5004, 2)
	fp.mapBytes(mem.base, mem.data)

	v, err := fp.Value(0x5000, st)
	require.NoError(t, err)
	assert.Equal(t, "JSC::Pair", v.TypeName())

	got, err := v.ReadUintFieldByName("second")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got)

	_, err = v.ReadUintFieldByName("third")
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := v.FieldByName("first")
	require.NoError(t, err)
	assert.Equal(t, "", first.TypeName(), "numeric values have no tag")
}

func TestValueReadCString(t *testing.T) {
	fp := newFakeProgram(t)
	char := fp.MakeNumericType(NumericInt8)
	mem := newMemory(0x6000, 64)
	mem.putUint64(0x6000, 0x6010)
	mem.putString(0x6010, "JSC::LLInt::entry")
	fp.mapBytes(mem.base, mem.data)

	ptr, err := fp.Value(0x6000, fp.MakePtrType(char))
	require.NoError(t, err)
	s, err := ptr.ReadCString(100)
	require.NoError(t, err)
	assert.Equal(t, "JSC::LLInt::entry", s)

	s, err = ptr.ReadCString(3)
	require.NoError(t, err)
	assert.Equal(t, "JSC", s)

	arr, err := fp.Value(0x6010, fp.MakeArrayType(char, 8))
	require.NoError(t, err)
	s, err = arr.ReadCString(100)
	require.NoError(t, err)
	assert.Equal(t, "JSC::LLI", s, "unterminated arrays are read in full")

	nilPtr, err := fp.Value(0x6008, fp.MakePtrType(char))
	require.NoError(t, err)
	s, err = nilPtr.ReadCString(100)
	require.NoError(t, err)
	assert.Equal(t, "", s)
}
