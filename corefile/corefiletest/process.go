package corefiletest

import (
	"debug/elf"
	"path/filepath"
	"testing"
)

// Link-time addresses of the globals in the process written by WriteProcess.
// Add Process.Bias for their addresses in the core.
const (
	CompilationInfoAddr = 0x10000 // JSC::compilationInfo
	AliasedInfoAddr     = 0x10040 // JSC::aliasedInfo, through typedef JSC::InfoAlias
	FrozenInfoAddr      = 0x10080 // JSC::frozenInfo, const-qualified
	StaticInfoAddr      = 0x100c0 // JSC::Options::s_compilationInfo
	AnonValueAddr       = 0x10100 // anonValue, of typedef'd anonymous struct Anon
	CounterAddr         = 0x10108 // static local of main, not a global
	RodataAddr          = 0x20000 // entry names, in the executable

	dataSize = 0x200

	// EntrySize is the size of JSC::CompilationInfoEntry.
	EntrySize = 24
)

// PID and ExecName are recorded in the core's NT_PRPSINFO note.
const (
	PID      = 4242
	ExecName = "jsc"
)

// PIEBias is the load bias of the position-independent variant.
const PIEBias = 0x555555550000

// Process locates the files written by WriteProcess.
type Process struct {
	CorePath string
	ExecPath string // dir/ExecName, where corefile.Open looks by default
	Bias     uint64
}

// WriteProcess writes a core file and the executable that produced it to
// dir. The executable's DWARF describes
//
//	namespace JSC {
//	struct CompilationInfoEntry { const char* name; void* start; unsigned long size; };
//	struct CompilationInfo { CompilationInfoEntry entries[2]; unsigned int last; };
//	struct Other { unsigned long a; unsigned long b; };
//	typedef CompilationInfo InfoAlias;
//	CompilationInfo compilationInfo;
//	InfoAlias aliasedInfo;
//	const CompilationInfo frozenInfo;
//	class Options { static CompilationInfo s_compilationInfo; };
//	}
//	typedef struct { unsigned long x; } Anon;
//	Anon anonValue;
//	int main() { struct Local { unsigned long y; }; static unsigned long counter; }
//
// compilationInfo holds ("b", 0x2000, 32) in slot 0 and ("a", 0x1000, 16)
// in slot 1 with last = 0, so it prints oldest first as a, b. The other
// rings are all zero, and anonValue.x is 7.
//
// If pie is set, the executable is position-independent and loaded at
// PIEBias.
func WriteProcess(t testing.TB, dir string, pie bool) Process {
	proc := Process{
		CorePath: filepath.Join(dir, "core"),
		ExecPath: filepath.Join(dir, ExecName),
	}
	execType := elf.ET_EXEC
	if pie {
		execType = elf.ET_DYN
		proc.Bias = PIEBias
	}
	const entry = 0x1000

	exec := ELFImage{
		Type:  execType,
		Entry: entry,
		Progs: []Prog{{
			Type:  elf.PT_LOAD,
			Flags: elf.PF_R,
			Vaddr: RodataAddr,
			Data:  []byte("a\x00b\x00"),
		}},
		Sections: processDWARF().sections(t),
	}
	exec.WriteFile(t, proc.ExecPath)

	bias := proc.Bias
	data := make([]byte, dataSize)
	put64 := func(addr, v uint64) { le.PutUint64(data[addr-CompilationInfoAddr:], v) }
	put64(CompilationInfoAddr+0, bias+RodataAddr+2) // "b"
	put64(CompilationInfoAddr+8, 0x2000)
	put64(CompilationInfoAddr+16, 32)
	put64(CompilationInfoAddr+EntrySize+0, bias+RodataAddr) // "a"
	put64(CompilationInfoAddr+EntrySize+8, 0x1000)
	put64(CompilationInfoAddr+EntrySize+16, 16)
	put64(AnonValueAddr, 7)

	var notes []byte
	notes = AppendNote(notes, NTPrpsinfo, Prpsinfo(t, PID, ExecName), true)
	notes = AppendNote(notes, NTAuxv, Auxv([2]uint64{9, bias + entry}), true) // AT_ENTRY

	core := ELFImage{
		Type: elf.ET_CORE,
		Progs: []Prog{
			{Type: elf.PT_NOTE, Data: notes},
			{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_W, Vaddr: bias + CompilationInfoAddr, Data: data},
		},
	}
	core.WriteFile(t, proc.CorePath)
	return proc
}

func processDWARF() *dwarfBuilder {
	const (
		encSignedChar = 0x06
		encUnsigned   = 0x07
	)
	b := newDWARFBuilder()
	b.die("", abbrevCU).str("jsc.cpp")

	b.die("uint", abbrevBaseType).str("unsigned int").data1(encUnsigned).data1(4)
	b.die("ulong", abbrevBaseType).str("long unsigned int").data1(encUnsigned).data1(8)
	b.die("char", abbrevBaseType).str("char").data1(encSignedChar).data1(1)
	b.die("constChar", abbrevConst).ref("char")
	b.die("charPtr", abbrevPointer).ref("constChar")
	b.die("voidPtr", abbrevVoidPointer)

	b.die("", abbrevNamespace).str("JSC")
	{
		b.die("entry", abbrevStruct).str("CompilationInfoEntry").data1(EntrySize)
		b.die("", abbrevMember).str("name").ref("charPtr").data1(0)
		b.die("", abbrevMember).str("start").ref("voidPtr").data1(8)
		b.die("", abbrevMember).str("size").ref("ulong").data1(16)
		b.end()

		b.die("entries", abbrevArray).ref("entry")
		b.die("", abbrevSubrange).data1(1)
		b.end()

		b.die("info", abbrevStruct).str("CompilationInfo").data1(2*EntrySize + 8)
		b.die("", abbrevMember).str("entries").ref("entries").data1(0)
		b.die("", abbrevMember).str("last").ref("uint").data1(2 * EntrySize)
		b.end()

		b.die("", abbrevStruct).str("Other").data1(16)
		b.die("", abbrevMember).str("a").ref("ulong").data1(0)
		b.die("", abbrevMember).str("b").ref("ulong").data1(8)
		b.end()

		b.die("alias", abbrevTypedef).str("InfoAlias").ref("info")
		b.die("constInfo", abbrevConst).ref("info")

		b.die("", abbrevVariable).str("compilationInfo").ref("info").addr(CompilationInfoAddr)
		b.die("", abbrevVariable).str("aliasedInfo").ref("alias").addr(AliasedInfoAddr)
		b.die("", abbrevVariable).str("frozenInfo").ref("constInfo").addr(FrozenInfoAddr)

		b.die("", abbrevClass).str("Options").data1(1)
		b.die("staticDecl", abbrevStaticDecl).str("s_compilationInfo").ref("info")
		b.end()
		b.die("", abbrevStaticDef).ref("staticDecl").addr(StaticInfoAddr)
	}
	b.end()

	b.die("anon", abbrevAnonStruct).data1(8)
	b.die("", abbrevMember).str("x").ref("ulong").data1(0)
	b.end()
	b.die("anonT", abbrevTypedef).str("Anon").ref("anon")
	b.die("", abbrevVariable).str("anonValue").ref("anonT").addr(AnonValueAddr)

	b.die("", abbrevSubprogram).str("main")
	{
		b.die("", abbrevStruct).str("Local").data1(8)
		b.die("", abbrevMember).str("y").ref("ulong").data1(0)
		b.end()
		b.die("", abbrevVariable).str("counter").ref("ulong").addr(CounterAddr)
	}
	b.end()

	b.end() // compile unit
	return b
}
