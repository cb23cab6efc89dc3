package corefile

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"
	"sort"

	"github.com/pkg/errors"
)

// rawProgram collects what the ELF readers find before the Program is built.
type rawProgram struct {
	arch     Arch
	execpath string // from NT_PRPSINFO; truncated to 16 bytes by the kernel
	pid      uint64
	atEntry  uint64 // AT_ENTRY from NT_AUXV, or 0 if unknown
	hasEntry bool
}

func (p *Program) readELFCore(mmapf *mmapFile, rp *rawProgram) error {
	f, err := elf.NewFile(mmapf)
	if err != nil {
		return err
	}
	if f.Type != elf.ET_CORE {
		return errors.Errorf("%s is a %s file, not a core file", mmapf.Name(), f.Type)
	}
	a, err := archForELF(f)
	if err != nil {
		return err
	}
	rp.arch = a
	p.Arch = a
	if err := p.readELFSegments(mmapf, f, 0, true); err != nil {
		return err
	}
	return p.readELFCoreNotes(f, rp)
}

func (p *Program) readELFExec(mmapf *mmapFile, rp *rawProgram) error {
	f, err := elf.NewFile(mmapf)
	if err != nil {
		return err
	}
	a, err := archForELF(f)
	if err != nil {
		return err
	}
	if a.Name != rp.arch.Name {
		return errors.Errorf("mismatched machine types: core is %s, executable is %s", rp.arch.Name, a.Name)
	}

	// Position-independent executables are linked at 0 and relocated at
	// load time. The kernel records the relocated entry point in the auxv.
	var bias uint64
	if f.Type == elf.ET_DYN {
		if !rp.hasEntry {
			return errors.New("core file has no AT_ENTRY; cannot relocate position-independent executable")
		}
		bias = rp.atEntry - f.Entry
		p.log.logf("%s is position-independent, load bias 0x%x", mmapf.Name(), bias)
	}

	if err := p.readELFSegments(mmapf, f, bias, false); err != nil {
		return err
	}

	dw, err := f.DWARF()
	if err != nil {
		return errors.Wrap(err, "could not load DWARF")
	}
	vars, err := p.typeCache.indexDWARF(dw, p.Arch, bias)
	if err != nil {
		return err
	}
	p.loadGlobalVars(vars)
	return nil
}

type elfSortedProgHeaders []elf.ProgHeader

func (ph elfSortedProgHeaders) Len() int           { return len(ph) }
func (ph elfSortedProgHeaders) Swap(i, k int)      { ph[i], ph[k] = ph[k], ph[i] }
func (ph elfSortedProgHeaders) Less(i, k int) bool { return ph[i].Vaddr < ph[k].Vaddr }

// readELFSegments maps every PT_LOAD segment of f. Segments from the core
// file are inserted first, so the executable only fills the gaps the kernel
// did not dump (usually read-only text and data).
func (p *Program) readELFSegments(mmapf *mmapFile, f *elf.File, bias uint64, isCoreFile bool) error {
	var progs elfSortedProgHeaders
	for _, ph := range f.Progs {
		p.log.verbosef("ReadELF: %#v", ph.ProgHeader)
		if ph.Type != elf.PT_LOAD || ph.Memsz == 0 {
			continue
		}
		if ph.Memsz < ph.Filesz {
			return errors.Errorf("unexpected Memsz < Filesz at %#v", ph.ProgHeader)
		}
		progs = append(progs, ph.ProgHeader)
	}
	sort.Sort(progs)

	for _, ph := range progs {
		ph := ph
		vaddr := ph.Vaddr + bias
		readable := ph.Flags&elf.PF_R != 0
		if ph.Filesz > 0 {
			err := p.dataSegments.insert(vaddr, ph.Filesz, func(addr, size uint64) (dataSegment, error) {
				data, err := mmapf.ReadSliceAt(ph.Off+(addr-vaddr), size)
				if err != nil {
					return dataSegment{}, errors.Wrapf(err, "bad ELF segment %+v", ph)
				}
				s := dataSegment{addr: addr, data: data, readable: readable, source: mmapf.Name()}
				p.log.logf("loading %s", s)
				return s, nil
			})
			if err != nil {
				return err
			}
		}
		// In an executable, Memsz > Filesz means the rest is zero-filled (BSS).
		// In a core file, the rest was not dumped and must come from the executable.
		if ph.Memsz > ph.Filesz && !isCoreFile {
			err := p.dataSegments.insert(vaddr+ph.Filesz, ph.Memsz-ph.Filesz, func(addr, size uint64) (dataSegment, error) {
				if int(size) < 0 || uint64(int(size)) != size {
					return dataSegment{}, errors.Errorf("BSS segment too large: %v", size)
				}
				anonf, err := mmapAnonymous(int(size))
				if err != nil {
					return dataSegment{}, errors.Wrapf(err, "MAP_ANONYMOUS failed on size=%v", size)
				}
				p.filemaps = append(p.filemaps, anonf)
				s := dataSegment{addr: addr, data: anonf.data, readable: true, source: "bss"}
				p.log.logf("loading %s", s)
				return s, nil
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Parsing ELF notes. Only Linux notes are supported.

// See /usr/include/linux/elf.h.
const (
	elfNTPrpsinfo = 3
	elfNTAuxv     = 6
)

// AT_ENTRY, see /usr/include/elf.h.
const auxvATEntry = 9

type elfNote struct {
	Namesz uint32
	Descsz uint32
	Ntype  uint32
}

// See /usr/include/linux/elfcore.h.
type elfLinuxPsinfo32 struct {
	State  uint8 // numeric process state
	Sname  byte  // process state as a character
	Zombie uint8
	Nice   int8
	Flag   uint32
	Uid    uint16
	Gid    uint16
	Pid    uint32
	Ppid   uint32
	Pgrp   uint32
	Sid    uint32
	Fname  [16]byte // file name, truncated, usually no directory
	Psargs [80]byte // executable args, truncated
}

type elfLinuxPsinfo64 struct {
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

func (p *Program) readELFCoreNotes(f *elf.File, rp *rawProgram) error {
	bo := rp.arch.ByteOrder
	for _, ph := range f.Progs {
		if ph.Type != elf.PT_NOTE {
			continue
		}
		p.log.verbosef("ReadELFNote: %#v", ph.ProgHeader)
		r := ph.Open()

		for {
			var note elfNote
			err := binary.Read(r, bo, &note)
			if err == io.EOF {
				break
			}
			if err != nil {
				return errors.Wrapf(err, "reading PT_NOTE at offset %v", ph.Off)
			}

			// Names and descriptors are padded to 4-byte alignment. The
			// final note of a segment may omit its padding.
			namesz := (int64(note.Namesz) + 3) &^ 3
			pos, err := r.Seek(namesz, io.SeekCurrent)
			if err != nil {
				return errors.Wrapf(err, "reading PT_NOTE at offset %v+%v", ph.Off, namesz)
			}
			if remaining := int64(ph.Filesz) - pos; int64(note.Descsz) > remaining {
				return errors.Errorf("PT_NOTE at offset %v: descriptor type %d has size %d, only %d bytes remain", ph.Off, note.Ntype, note.Descsz, max(remaining, 0))
			}
			desc := make([]byte, note.Descsz)
			if _, err := io.ReadFull(r, desc); err != nil {
				return errors.Wrapf(err, "reading PT_NOTE descriptor type %d", note.Ntype)
			}
			if pad := (4 - int64(note.Descsz)%4) % 4; pad > 0 {
				if _, err := r.Seek(pad, io.SeekCurrent); err != nil {
					return errors.Wrapf(err, "reading PT_NOTE at offset %v", ph.Off)
				}
			}

			switch note.Ntype {
			case elfNTPrpsinfo:
				var fname []byte
				switch f.Class {
				case elf.ELFCLASS32:
					var psinfo elfLinuxPsinfo32
					if err := binary.Read(bytes.NewReader(desc), bo, &psinfo); err != nil {
						return errors.Wrap(err, "reading psinfo32")
					}
					fname, rp.pid = psinfo.Fname[:], uint64(psinfo.Pid)
				case elf.ELFCLASS64:
					var psinfo elfLinuxPsinfo64
					if err := binary.Read(bytes.NewReader(desc), bo, &psinfo); err != nil {
						return errors.Wrap(err, "reading psinfo64")
					}
					fname, rp.pid = psinfo.Fname[:], uint64(psinfo.Pid)
				}
				if k := bytes.IndexByte(fname, 0); k >= 0 {
					fname = fname[:k]
				}
				rp.execpath = string(fname)
				p.log.verbosef("ReadELFNote: NT_PRPSINFO has pid=%d execpath=%q", rp.pid, rp.execpath)

			case elfNTAuxv:
				rp.atEntry, rp.hasEntry = parseAuxv(desc, rp.arch, auxvATEntry)
				p.log.verbosef("ReadELFNote: NT_AUXV AT_ENTRY=0x%x found=%v", rp.atEntry, rp.hasEntry)
			}
		}
	}
	return nil
}

// parseAuxv looks up key in an auxiliary vector, a list of (key, value)
// pointer-sized pairs.
func parseAuxv(auxv []byte, a Arch, key uint64) (uint64, bool) {
	w := a.PointerSize
	for len(auxv) >= 2*w {
		k, v := a.Uint(auxv[:w]), a.Uint(auxv[w:2*w])
		if k == key {
			return v, true
		}
		auxv = auxv[2*w:]
	}
	return 0, false
}
