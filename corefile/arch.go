package corefile

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Arch describes the machine a core file was produced on.
type Arch struct {
	Name        string // e.g., "amd64"
	ByteOrder   binary.ByteOrder
	PointerSize int
}

func archForELF(f *elf.File) (Arch, error) {
	var a Arch
	switch f.Machine {
	case elf.EM_X86_64:
		a = Arch{Name: "amd64", PointerSize: 8}
	case elf.EM_386:
		a = Arch{Name: "386", PointerSize: 4}
	case elf.EM_AARCH64:
		a = Arch{Name: "arm64", PointerSize: 8}
	case elf.EM_ARM:
		a = Arch{Name: "arm", PointerSize: 4}
	default:
		return Arch{}, errors.Errorf("unsupported ELF machine type %s", f.Machine)
	}
	if f.ByteOrder != binary.LittleEndian {
		return Arch{}, errors.Errorf("unsupported byte order %v for %s", f.ByteOrder, a.Name)
	}
	a.ByteOrder = f.ByteOrder
	return a, nil
}

// Uint decodes an unsigned integer of len(b) bytes, which must be 1, 2, 4, or 8.
func (a Arch) Uint(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(a.ByteOrder.Uint16(b))
	case 4:
		return uint64(a.ByteOrder.Uint32(b))
	case 8:
		return a.ByteOrder.Uint64(b)
	}
	panic(fmt.Sprintf("bad integer size %d", len(b)))
}

// Int is like Uint, but sign-extends the result.
func (a Arch) Int(b []byte) int64 {
	switch len(b) {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(a.ByteOrder.Uint16(b)))
	case 4:
		return int64(int32(a.ByteOrder.Uint32(b)))
	case 8:
		return int64(a.ByteOrder.Uint64(b))
	}
	panic(fmt.Sprintf("bad integer size %d", len(b)))
}

// Uintptr decodes a pointer.
func (a Arch) Uintptr(b []byte) uint64 {
	return a.Uint(b[:a.PointerSize])
}
