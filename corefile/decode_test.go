package corefile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Metrological/jscinspect/compinfo"
)

const (
	ringAddr    = 0x10000
	stringsAddr = 0x10800
	entrySize   = 24
)

type testEntry struct {
	name        string // "" writes a null name pointer
	start, size uint64
}

// ringFixture builds a JSC::CompilationInfo with the given entries in a fake
// Program. Entry names are stored out of line as const char*.
type ringFixture struct {
	fp     fakeProgram
	entryT *StructType
	ringT  *StructType
	mem    *memory
}

func newRingFixture(t *testing.T, capacity uint64, lastKind NumericKind) *ringFixture {
	fp := newFakeProgram(t)
	u64 := fp.MakeNumericType(NumericUint64)
	char := fp.MakeNumericType(NumericInt8)
	entryT := fp.structType("JSC::CompilationInfoEntry", entrySize,
		StructField{Name: "name", Type: fp.MakePtrType(char), Offset: 0},
		StructField{Name: "start", Type: fp.MakePtrType(fp.MakeOpaqueType("void", 0)), Offset: 8},
		StructField{Name: "size", Type: u64, Offset: 16},
	)
	lastT := fp.MakeNumericType(lastKind)
	ringT := fp.structType("JSC::CompilationInfo", capacity*entrySize+8,
		StructField{Name: "entries", Type: fp.MakeArrayType(entryT, capacity), Offset: 0},
		StructField{Name: "last", Type: lastT, Offset: capacity * entrySize},
	)
	return &ringFixture{
		fp:     fp,
		entryT: entryT,
		ringT:  ringT,
		mem:    newMemory(ringAddr, stringsAddr-ringAddr+0x800),
	}
}

func (f *ringFixture) write(entries []testEntry, last uint64) {
	str := uint64(stringsAddr)
	for i, e := range entries {
		addr := ringAddr + uint64(i)*entrySize
		if e.name != "" {
			f.mem.putString(str, e.name)
			f.mem.putUint64(addr, str)
			str += uint64(len(e.name)) + 1
		}
		f.mem.putUint64(addr+8, e.start)
		f.mem.putUint64(addr+16, e.size)
	}
	lastAddr := ringAddr + f.ringT.Size() - 8
	switch numericKindToSize(f.ringT.Fields[1].Type.(*NumericType).Kind) {
	case 4:
		f.mem.putUint32(lastAddr, uint32(last))
	case 8:
		f.mem.putUint64(lastAddr, last)
	}
	f.fp.mapBytes(f.mem.base, f.mem.data)
}

func (f *ringFixture) ring() Value {
	v, err := f.fp.Value(ringAddr, f.ringT)
	require.NoError(f.fp.t, err)
	return v
}

func printRing(t *testing.T, d *compinfo.Dispatcher, obj compinfo.Object) (string, error) {
	pr, ok := d.Lookup(obj)
	require.True(t, ok, "no printer for %s", obj.TypeName())
	var buf bytes.Buffer
	err := pr.Print(&buf)
	return buf.String(), err
}

func TestDecodeRing(t *testing.T) {
	tests := []struct {
		desc     string
		capacity uint64
		entries  []testEntry
		last     uint64
		want     string
	}{
		{
			desc:     "one entry",
			capacity: 4,
			entries:  []testEntry{{"a", 0x1000, 16}},
			last:     0,
			want:     `JSC::CompilationInfo = {("a", 0x1000, 16)}`,
		},
		{
			desc:     "wrapped",
			capacity: 3,
			entries:  []testEntry{{"c", 0x3000, 48}, {"a", 0x1000, 16}, {"b", 0x2000, 32}},
			last:     0,
			want:     `JSC::CompilationInfo = {("a", 0x1000, 16), ("b", 0x2000, 32), ("c", 0x3000, 48)}`,
		},
		{
			desc:     "full, not wrapped",
			capacity: 2,
			entries:  []testEntry{{"x", 0x10, 1}, {"y", 0x20, 2}},
			last:     1,
			want:     `JSC::CompilationInfo = {("x", 0x10, 1), ("y", 0x20, 2)}`,
		},
		{
			desc:     "empty",
			capacity: 4,
			last:     3,
			want:     `JSC::CompilationInfo = {}`,
		},
		{
			desc:     "null name",
			capacity: 2,
			entries:  []testEntry{{"", 0xdead, 4}},
			last:     0,
			want:     `JSC::CompilationInfo = {("", 0xdead, 4)}`,
		},
	}

	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			f := newRingFixture(t, test.capacity, NumericUint32)
			f.write(test.entries, test.last)
			got, err := printRing(t, NewDispatcher(DefaultLayout()), f.ring())
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestDecodeRingMalformed(t *testing.T) {
	tests := []struct {
		desc     string
		kind     NumericKind
		capacity uint64
		last     uint64
	}{
		{"last past end", NumericUint32, 4, 5},
		{"last at capacity", NumericUint32, 4, 4},
		{"negative last", NumericInt32, 4, uint64(0xffffffff)},
		{"unsigned last wraps negative", NumericUint64, 4, 1 << 63},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			f := newRingFixture(t, test.capacity, test.kind)
			f.write([]testEntry{{"a", 0x1000, 16}}, test.last)
			_, err := printRing(t, NewDispatcher(DefaultLayout()), f.ring())
			require.Error(t, err)
			assert.ErrorIs(t, err, compinfo.ErrMalformedBuffer)
		})
	}
}

func TestDecodeRingLastIsSignExtended(t *testing.T) {
	f := newRingFixture(t, 4, NumericInt32)
	f.write(nil, uint64(0xffffffff))
	_, last, err := NewDecoder(DefaultLayout()).DecodeBuffer(f.ring())
	require.NoError(t, err)
	assert.Equal(t, int64(-1), last)
}

func TestDecodeEntry(t *testing.T) {
	f := newRingFixture(t, 2, NumericUint32)
	f.write([]testEntry{{"JSC::DFG::compile", 0x7f0012345000, 4096}}, 0)
	ring := f.ring()
	ev, err := ring.FieldByName("entries")
	require.NoError(t, err)

	slot0, err := ev.Index(0)
	require.NoError(t, err)
	assert.Equal(t, "JSC::CompilationInfoEntry", slot0.TypeName())

	d := NewDispatcher(DefaultLayout())
	got, err := printRing(t, d, &slot0)
	require.NoError(t, err)
	assert.Equal(t, `("JSC::DFG::compile", 0x7f0012345000, 4096)`, got)

	// An unwritten slot is a tombstone and has no printable form.
	slot1, err := ev.Index(1)
	require.NoError(t, err)
	_, err = printRing(t, d, slot1)
	assert.ErrorIs(t, err, compinfo.ErrTombstone)

	e, err := NewDecoder(DefaultLayout()).DecodeEntry(slot1)
	require.NoError(t, err)
	assert.True(t, e.IsTombstone())
}

func TestDecodeInlineName(t *testing.T) {
	fp := newFakeProgram(t)
	u64 := fp.MakeNumericType(NumericUint64)
	nameT := fp.MakeArrayType(fp.MakeNumericType(NumericInt8), 8)
	entryT := fp.structType("Entry", 24,
		StructField{Name: "label", Type: nameT, Offset: 0},
		StructField{Name: "addr", Type: u64, Offset: 8},
		StructField{Name: "len", Type: u64, Offset: 16},
	)
	mem := newMemory(0x2000, 24)
	copy(mem.data, "inline\x00")
	mem.putUint64(0x2008, 0xabc)
	mem.putUint64(0x2010, 7)
	fp.mapBytes(mem.base, mem.data)

	layout, err := ParseLayout([]byte(`
tags:
  buffer: Ring
  entry: Entry
fields:
  name: label
  start: addr
  size: len
`))
	require.NoError(t, err)

	v, err := fp.Value(0x2000, entryT)
	require.NoError(t, err)
	got, err := printRing(t, NewDispatcher(layout), v)
	require.NoError(t, err)
	assert.Equal(t, `("inline", 0xabc, 7)`, got)
}

func TestDecodeErrors(t *testing.T) {
	f := newRingFixture(t, 2, NumericUint32)
	f.write([]testEntry{{"a", 0x1000, 16}}, 0)
	dec := NewDecoder(DefaultLayout())

	_, _, err := dec.DecodeBuffer(stringObject("JSC::CompilationInfo"))
	assert.Error(t, err, "not a Value")

	u32 := f.fp.MakeNumericType(NumericUint32)
	notStruct, err := f.fp.Value(ringAddr, u32)
	require.NoError(t, err)
	_, _, err = dec.DecodeBuffer(notStruct)
	assert.Error(t, err, "not a struct")

	_, _, err = dec.DecodeBuffer((*Value)(nil))
	assert.Error(t, err, "nil *Value")
	_, err = dec.DecodeEntry(Value{Addr: ringAddr})
	assert.Error(t, err, "untyped Value")

	layout := DefaultLayout()
	layout.Fields.Last = "count"
	_, _, err = NewDecoder(layout).DecodeBuffer(f.ring())
	assert.ErrorIs(t, err, ErrNotFound)

	// A dangling name pointer is reported, not printed as garbage.
	f.mem.putUint64(ringAddr, 0x90000)
	_, err = printRing(t, NewDispatcher(DefaultLayout()), f.ring())
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestDecodeZeroSizedEntries(t *testing.T) {
	fp := newFakeProgram(t)
	emptyT := fp.structType("JSC::CompilationInfoEntry", 0)
	ringT := fp.structType("JSC::CompilationInfo", 8,
		StructField{Name: "entries", Type: fp.MakeArrayType(emptyT, 4), Offset: 0},
		StructField{Name: "last", Type: fp.MakeNumericType(NumericUint64), Offset: 0},
	)
	fp.mapBytes(ringAddr, make([]byte, 8))
	v, err := fp.Value(ringAddr, ringT)
	require.NoError(t, err)

	_, _, err = NewDecoder(DefaultLayout()).DecodeBuffer(v)
	assert.ErrorIs(t, err, compinfo.ErrMalformedBuffer)
}

type stringObject string

func (s stringObject) TypeName() string { return string(s) }
