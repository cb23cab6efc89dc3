package corefile

import (
	"fmt"
	"iter"
	"path/filepath"
	"sort"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
)

// Program describes the memory image of a process in a core file.
type Program struct {
	// GlobalVars enumerates global and static variables that have a fixed
	// address, as described by the executable's DWARF.
	GlobalVars *VarSet

	// Arch describes the machine the core file was produced on.
	Arch Arch

	// ExecPath is the executable that was loaded to interpret the core.
	ExecPath string

	// PID is the process ID recorded in the core file, if any.
	PID uint64

	// Internal info.
	typeCache    typeCache    // for canonicalizing types
	dataSegments dataSegments // virtual memory mappings
	filemaps     []*mmapFile  // each dataSegment points into one of these mmaps
	log          debugLogger
}

// OpenOptions configures Open.
type OpenOptions struct {
	// ExecutablePath is the binary that produced the core file. It must be
	// built with DWARF. If empty, the name recorded in the core is used.
	ExecutablePath string

	// Logger receives debug messages. Defaults to a no-op logger.
	Logger log.Logger

	// Verbose enables very chatty per-type and per-segment debug messages.
	Verbose bool
}

// Open loads the core file at corePath and the executable that produced it.
// The files are mmap'd, not copied; call Close when done with the Program
// and every Value read from it.
func Open(corePath string, opts *OpenOptions) (*Program, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}
	p := newProgram(newDebugLogger(opts.Logger, opts.Verbose))

	coref, err := mmapOpen(corePath)
	if err != nil {
		return nil, err
	}
	p.filemaps = append(p.filemaps, coref)

	var rp rawProgram
	if err := p.readELFCore(coref, &rp); err != nil {
		p.Close()
		return nil, errors.Wrapf(err, "reading core file %s", corePath)
	}
	p.PID = rp.pid

	execPath := opts.ExecutablePath
	if execPath == "" {
		if rp.execpath == "" {
			p.Close()
			return nil, errors.Errorf("core file %s does not name its executable; set ExecutablePath", corePath)
		}
		execPath = filepath.Join(filepath.Dir(corePath), rp.execpath)
		p.log.logf("using executable %s named by the core file", execPath)
	}
	p.ExecPath = execPath

	execf, err := mmapOpen(execPath)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.filemaps = append(p.filemaps, execf)
	if err := p.readELFExec(execf, &rp); err != nil {
		p.Close()
		return nil, errors.Wrapf(err, "reading executable %s", execPath)
	}
	return p, nil
}

func newProgram(l debugLogger) *Program {
	p := &Program{
		GlobalVars: &VarSet{},
		log:        l,
	}
	p.typeCache.initialize(p)
	return p
}

// Close releases the mmap'd files.
func (p *Program) Close() error {
	var first error
	for _, f := range p.filemaps {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.filemaps = nil
	p.dataSegments = nil
	return first
}

// FindType looks up a named type by its fully qualified name, e.g.,
// "JSC::CompilationInfo". Returns nil if there is no such type.
// FindType is safe for concurrent use.
func (p *Program) FindType(name string) Type {
	p.typeCache.mu.Lock()
	defer p.typeCache.mu.Unlock()
	if t := p.typeCache.nameCache[name]; t != nil {
		return t
	}
	off, ok := p.typeCache.typeDIEs[name]
	if !ok {
		return nil
	}
	t, err := p.typeCache.findDWARF(off)
	if err != nil {
		p.log.warn("cannot convert type", "type", name, "err", err)
		return nil
	}
	return t
}

// loadGlobalVars converts the types of DWARF variables and adds them to
// GlobalVars. Variables whose memory is not in the core are skipped.
func (p *Program) loadGlobalVars(vars []dwarfVar) {
	for _, dv := range vars {
		p.typeCache.mu.Lock()
		t, err := p.typeCache.findDWARF(dv.typeOff)
		p.typeCache.mu.Unlock()
		if err != nil {
			p.log.warn("skipping variable with unsupported type", "var", dv.name, "err", err)
			continue
		}
		v, err := p.Value(dv.addr, t)
		if err != nil {
			p.log.verbosef("skipping variable %s at 0x%x: %v", dv.name, dv.addr, err)
			continue
		}
		scope, name := splitQualifiedName(dv.name)
		if err := p.GlobalVars.insert(Var{Name: name, Scope: scope, Value: v}); err != nil {
			p.log.verbosef("skipping variable: %v", err)
		}
	}
	p.log.logf("loaded %d global variables", p.GlobalVars.Len())
}

// Var describes a global or static variable. A Var is simply a named value.
type Var struct {
	Name  string // unqualified name of the variable
	Scope string // enclosing namespaces and classes, e.g., "JSC::VM"; can be empty
	Value Value
}

// FullName returns the qualified name of v.
func (v *Var) FullName() string {
	if v.Scope != "" {
		return v.Scope + "::" + v.Name
	}
	return v.Name
}

type sortVarByAddr []*Var

func (a sortVarByAddr) Len() int           { return len(a) }
func (a sortVarByAddr) Swap(i, k int)      { a[i], a[k] = a[k], a[i] }
func (a sortVarByAddr) Less(i, k int) bool { return a[i].Value.Addr < a[k].Value.Addr }

// VarSet describes a set of variables.
type VarSet struct {
	list  sortVarByAddr   // kept sorted
	names map[string]*Var // indexed by full name
}

// Len returns the number of variables in the set.
func (vs *VarSet) Len() int {
	return len(vs.list)
}

// All yields the variables in address order.
func (vs *VarSet) All() iter.Seq[Var] {
	return func(yield func(Var) bool) {
		for _, v := range vs.list {
			if !yield(*v) {
				return
			}
		}
	}
}

// FindAddr looks up the variable that contains the given address.
func (vs *VarSet) FindAddr(addr uint64) (Var, bool) {
	// Binary search for an upper-bound, then check if the previous var contains addr.
	k := sort.Search(len(vs.list), func(k int) bool {
		return addr < vs.list[k].Value.Addr
	})
	k--
	if k >= 0 && vs.list[k].Value.ContainsAddress(addr) {
		return *vs.list[k], true
	}
	return Var{}, false
}

// FindName looks up the variable with the given fully qualified name.
func (vs *VarSet) FindName(fullname string) (Var, bool) {
	if v := vs.names[fullname]; v != nil {
		return *v, true
	}
	return Var{}, false
}

// insert adds v to the set.
// Returns an error if v overlaps any Var already in the set.
func (vs *VarSet) insert(v Var) error {
	reportConflict := func(old *Var) error {
		return errors.Errorf("cannot insert %s (addr=0x%x, size=0x%x): conflicts with %s (addr=0x%x, size=0x%x)",
			v.FullName(), v.Value.Addr, v.Value.Size(),
			old.FullName(), old.Value.Addr, old.Value.Size())
	}

	if vs.names == nil {
		vs.names = make(map[string]*Var)
	}

	// Binary search for an upper-bound.
	k := sort.Search(len(vs.list), func(k int) bool {
		return v.Value.Addr < vs.list[k].Value.Addr
	})

	// Check for a conflict.
	if k < len(vs.list) && v.Value.Size() > 0 && vs.list[k].Value.Addr < v.Value.Addr+v.Value.Size() {
		return reportConflict(vs.list[k])
	}
	if k > 0 && vs.list[k-1].Value.ContainsAddress(v.Value.Addr) {
		return reportConflict(vs.list[k-1])
	}
	if old, has := vs.names[v.FullName()]; has {
		return reportConflict(old)
	}

	// Insert before k.
	vs.list = append(vs.list, nil)
	copy(vs.list[k+1:], vs.list[k:])
	vs.list[k] = &v
	vs.names[v.FullName()] = &v

	if sanityChecks && !sort.IsSorted(vs.list) {
		panic(fmt.Sprintf("vars are not sorted after insert(0x%x, 0x%x)", v.Value.Addr, v.Value.Size()))
	}
	return nil
}
