// Package corefiletest writes small ELF core files and executables for
// testing code that reads them with package corefile.
//
// The files are built byte by byte: a little-endian x86-64 ELF image with
// program headers, optional sections, and DWARF 4 debug info produced by a
// minimal encoder. They carry just enough for corefile.Open to load globals.
package corefiletest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var le = binary.LittleEndian

// Prog is one program header and the bytes of its segment.
type Prog struct {
	Type  elf.ProgType
	Flags elf.ProgFlag
	Vaddr uint64
	Memsz uint64 // defaults to len(Data)
	Data  []byte
}

// Section is a named SHT_PROGBITS section.
type Section struct {
	Name string
	Data []byte
}

// ELFImage describes a little-endian x86-64 ELF64 file.
type ELFImage struct {
	Type     elf.Type
	Entry    uint64
	Progs    []Prog
	Sections []Section
}

// Bytes lays out the file: the header, program headers, segment and section
// contents, and finally the section headers.
func (img *ELFImage) Bytes(t testing.TB) []byte {
	const (
		ehsize    = 64
		phentsize = 56
		shentsize = 64
	)
	base := uint64(ehsize + phentsize*len(img.Progs))
	var body []byte
	place := func(data []byte) uint64 {
		off := base + uint64(len(body))
		body = append(body, data...)
		return off
	}

	var phdrs []elf.Prog64
	for _, p := range img.Progs {
		memsz := p.Memsz
		if memsz == 0 {
			memsz = uint64(len(p.Data))
		}
		phdrs = append(phdrs, elf.Prog64{
			Type:   uint32(p.Type),
			Flags:  uint32(p.Flags),
			Off:    place(p.Data),
			Vaddr:  p.Vaddr,
			Paddr:  p.Vaddr,
			Filesz: uint64(len(p.Data)),
			Memsz:  memsz,
			Align:  1,
		})
	}

	var (
		shdrs    []elf.Section64
		shoff    uint64
		shstrndx int
	)
	if len(img.Sections) > 0 {
		shstrtab := []byte{0}
		addName := func(name string) uint32 {
			off := uint32(len(shstrtab))
			shstrtab = append(append(shstrtab, name...), 0)
			return off
		}
		shdrs = append(shdrs, elf.Section64{}) // SHN_UNDEF
		for _, s := range img.Sections {
			shdrs = append(shdrs, elf.Section64{
				Name:      addName(s.Name),
				Type:      uint32(elf.SHT_PROGBITS),
				Off:       place(s.Data),
				Size:      uint64(len(s.Data)),
				Addralign: 1,
			})
		}
		name := addName(".shstrtab")
		shstrndx = len(shdrs)
		shdrs = append(shdrs, elf.Section64{
			Name:      name,
			Type:      uint32(elf.SHT_STRTAB),
			Off:       place(shstrtab),
			Size:      uint64(len(shstrtab)),
			Addralign: 1,
		})
		for len(body)%8 != 0 {
			body = append(body, 0)
		}
		shoff = base + uint64(len(body))
	}

	hdr := elf.Header64{
		Type:      uint16(img.Type),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     img.Entry,
		Phoff:     ehsize,
		Shoff:     shoff,
		Ehsize:    ehsize,
		Phentsize: phentsize,
		Phnum:     uint16(len(phdrs)),
		Shentsize: shentsize,
		Shnum:     uint16(len(shdrs)),
		Shstrndx:  uint16(shstrndx),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, le, &hdr))
	for k := range phdrs {
		require.NoError(t, binary.Write(&buf, le, &phdrs[k]))
	}
	buf.Write(body)
	for k := range shdrs {
		require.NoError(t, binary.Write(&buf, le, &shdrs[k]))
	}
	return buf.Bytes()
}

// WriteFile writes the image to path.
func (img *ELFImage) WriteFile(t testing.TB, path string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, img.Bytes(t), 0o600))
}

// AppendNote appends a "CORE" note to b. If pad is false the descriptor is
// not padded to 4 bytes, as the kernel may do for the last note.
func AppendNote(b []byte, typ uint32, desc []byte, pad bool) []byte {
	b = le.AppendUint32(b, 5) // len("CORE\x00")
	b = le.AppendUint32(b, uint32(len(desc)))
	b = le.AppendUint32(b, typ)
	b = append(b, "CORE\x00\x00\x00\x00"...)
	b = append(b, desc...)
	for pad && len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

// Linux note types, see /usr/include/linux/elf.h.
const (
	NTPrpsinfo = 3
	NTAuxv     = 6
)

// prpsinfo64 is struct elf_prpsinfo from /usr/include/linux/elfcore.h.
type prpsinfo64 struct {
	State  uint8
	Sname  byte
	Zombie uint8
	Nice   int8
	_      uint32
	Flag   uint64
	Uid    uint32
	Gid    uint32
	Pid    uint32
	Ppid   uint32
	Pgrp   uint32
	Sid    uint32
	Fname  [16]byte
	Psargs [80]byte
}

// Prpsinfo returns an NT_PRPSINFO descriptor for a 64-bit process.
func Prpsinfo(t testing.TB, pid uint32, fname string) []byte {
	ps := prpsinfo64{Pid: pid}
	copy(ps.Fname[:], fname)
	copy(ps.Psargs[:], fname)
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, le, &ps))
	return buf.Bytes()
}

// Auxv returns an NT_AUXV descriptor holding the given (key, value) pairs
// followed by AT_NULL.
func Auxv(pairs ...[2]uint64) []byte {
	var b []byte
	for _, kv := range append(pairs, [2]uint64{0, 0}) {
		b = le.AppendUint64(b, kv[0])
		b = le.AppendUint64(b, kv[1])
	}
	return b
}
