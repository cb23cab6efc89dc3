package corefile

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func testArch() Arch {
	return Arch{Name: "amd64", ByteOrder: binary.LittleEndian, PointerSize: 8}
}

// fakeProgram is a Program whose memory is built by hand.
type fakeProgram struct {
	*Program
	t *testing.T
}

func newFakeProgram(t *testing.T) fakeProgram {
	p := newProgram(testLog)
	p.Arch = testArch()
	return fakeProgram{Program: p, t: t}
}

// mapBytes adds a readable segment holding data at addr.
func (fp fakeProgram) mapBytes(addr uint64, data []byte) {
	err := fp.dataSegments.insert(addr, uint64(len(data)), func(a, size uint64) (dataSegment, error) {
		return dataSegment{addr: a, data: data[a-addr : a-addr+size], readable: true, source: "test"}, nil
	})
	require.NoError(fp.t, err)
}

func (fp fakeProgram) structType(name string, size uint64, fields ...StructField) *StructType {
	st, err := fp.NewStructType(name, fields, size)
	require.NoError(fp.t, err)
	return st
}

// memory builds a little-endian image of a region starting at base.
type memory struct {
	base uint64
	data []byte
}

func newMemory(base, size uint64) *memory {
	return &memory{base: base, data: make([]byte, size)}
}

func (m *memory) putUint64(addr, v uint64) {
	binary.LittleEndian.PutUint64(m.data[addr-m.base:], v)
}

func (m *memory) putUint32(addr uint64, v uint32) {
	binary.LittleEndian.PutUint32(m.data[addr-m.base:], v)
}

func (m *memory) putString(addr uint64, s string) {
	copy(m.data[addr-m.base:], s)
	m.data[addr-m.base+uint64(len(s))] = 0
}
