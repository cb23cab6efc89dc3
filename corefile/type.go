package corefile

import (
	"debug/dwarf"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Type is the interface implemented by all types.
//
// Type values defined in the same Program are comparable with the == and !=
// operators. Two Type values are equal iff they represent identical types.
type Type interface {
	// Program returns the program that defined this type.
	Program() *Program

	// String prints the type as a string, in C syntax.
	// For named types, this is the fully qualified name, e.g., "JSC::CompilationInfo".
	String() string

	// Name is the fully qualified name of the type, or "" for unnamed types.
	Name() string

	// Size in bytes of values of this type.
	Size() uint64

	// base returns the shared type info.
	base() *baseType
}

type baseType struct {
	program *Program
	name    string // qualified, if named
	size    uint64
}

func (t *baseType) Program() *Program { return t.program }
func (t *baseType) Name() string      { return t.name }
func (t *baseType) Size() uint64      { return t.size }
func (t *baseType) base() *baseType   { return t }
func (t *baseType) String() string    { return t.name }

// NumericKind gives the various kinds of numeric types.
type NumericKind string

const (
	NumericBool NumericKind = "bool"

	NumericUint8  NumericKind = "uint8"
	NumericUint16 NumericKind = "uint16"
	NumericUint32 NumericKind = "uint32"
	NumericUint64 NumericKind = "uint64"

	NumericInt8  NumericKind = "int8"
	NumericInt16 NumericKind = "int16"
	NumericInt32 NumericKind = "int32"
	NumericInt64 NumericKind = "int64"

	NumericFloat32 NumericKind = "float32"
	NumericFloat64 NumericKind = "float64"
)

// Signed reports whether k is a signed integer kind.
func (k NumericKind) Signed() bool {
	switch k {
	case NumericInt8, NumericInt16, NumericInt32, NumericInt64:
		return true
	}
	return false
}

// Integer reports whether k is an integer kind. Booleans are not integers.
func (k NumericKind) Integer() bool {
	switch k {
	case NumericBool, NumericFloat32, NumericFloat64:
		return false
	}
	return true
}

func numericKindToSize(k NumericKind) uint64 {
	switch k {
	case NumericBool, NumericUint8, NumericInt8:
		return 1
	case NumericUint16, NumericInt16:
		return 2
	case NumericUint32, NumericInt32, NumericFloat32:
		return 4
	case NumericUint64, NumericInt64, NumericFloat64:
		return 8
	default:
		panic(fmt.Sprintf("bad NumericKind %q", k))
	}
}

func intKindForSize(size int64, signed bool) (NumericKind, bool) {
	kinds := map[int64][2]NumericKind{
		1: {NumericUint8, NumericInt8},
		2: {NumericUint16, NumericInt16},
		4: {NumericUint32, NumericInt32},
		8: {NumericUint64, NumericInt64},
	}
	k, ok := kinds[size]
	if !ok {
		return "", false
	}
	if signed {
		return k[1], true
	}
	return k[0], true
}

// NumericType is the type of booleans, characters, enums, and all numbers.
type NumericType struct {
	baseType
	Kind NumericKind
}

func (t *NumericType) String() string {
	if t.Name() != "" {
		return t.Name()
	}
	return string(t.Kind)
}

// ArrayType is the type of fixed-length arrays.
type ArrayType struct {
	baseType
	Elem Type
	Len  uint64
}

func (t *ArrayType) String() string {
	if t.Name() != "" {
		return t.Name()
	}
	return fmt.Sprintf("%s[%d]", t.Elem, t.Len)
}

// PtrType is the type of pointers.
type PtrType struct {
	baseType
	Elem Type
}

func (t *PtrType) String() string {
	if t.Name() != "" {
		return t.Name()
	}
	return t.Elem.String() + "*"
}

// StructType is the type of C structs and classes.
type StructType struct {
	baseType
	Fields []StructField // sorted by offset
}

func (t *StructType) String() string {
	if t.Name() != "" {
		return t.Name()
	}
	var buf strings.Builder
	buf.WriteString("struct {")
	for k, f := range t.Fields {
		if k > 0 {
			buf.WriteString(";")
		}
		fmt.Fprintf(&buf, " %s %s", f.Type, f.Name)
	}
	buf.WriteString(" }")
	return buf.String()
}

// FieldByName looks up the field with the given name.
func (t *StructType) FieldByName(name string) (StructField, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return StructField{}, false
}

// StructField describes a single field of a StructType.
type StructField struct {
	Name   string
	Type   Type
	Offset uint64
}

// OpaqueType stands in for types whose values cannot be decoded: void,
// functions, unions, bit fields, and anything else the DWARF reader does not
// support. Values of OpaqueType can still be addressed and compared.
type OpaqueType struct {
	baseType
	Desc string // what the type was, e.g., "void"
}

func (t *OpaqueType) String() string {
	if t.Name() != "" {
		return t.Name()
	}
	return t.Desc
}

// typeCache canonicalizes types.
// Named types are converted from DWARF lazily, the first time they are
// requested through Program.FindType or reached from a variable.
type typeCache struct {
	program *Program

	// mu guards everything below, including reads through dwarf, which
	// caches the types it decodes. Conversions may run on behalf of
	// concurrent callers of Program.FindType.
	mu        sync.Mutex
	nameCache map[string]Type      // cache of named types
	anonCache map[interface{}]Type // cache of anonymous types

	// for DWARF conversions
	dwarf      *dwarf.Data
	dwarfCache map[dwarfCacheKey]Type
	typeDIEs   map[string]dwarf.Offset // qualified name -> defining DIE
	qualNames  map[dwarf.Type]string   // named DWARF type -> qualified name

	// for verbosef debugging during conversions
	depth int
}

// dwarfCacheKey identifies a DWARF type by its pointer. dwarf.Data.Type
// returns the same pointer for every read of a given DIE.
type dwarfCacheKey struct {
	dt       dwarf.Type
	typename string
}

type anonPtrKey struct{ elem Type }
type anonArrayKey struct {
	elem Type
	n    uint64
}
type anonOpaqueKey struct {
	desc string
	size uint64
}

func (tc *typeCache) initialize(p *Program) {
	tc.program = p
	tc.nameCache = make(map[string]Type)
	tc.anonCache = make(map[interface{}]Type)
	tc.dwarfCache = make(map[dwarfCacheKey]Type)
	tc.typeDIEs = make(map[string]dwarf.Offset)
	tc.qualNames = make(map[dwarf.Type]string)
}

func (tc *typeCache) verbosef(format string, args ...interface{}) {
	tc.program.log.verbosef(strings.Repeat(" ", tc.depth)+format, args...)
}

// add records a named type. Anonymous types are cached by the Make* methods.
func (tc *typeCache) add(t Type) {
	if t.Name() == "" {
		return
	}
	if old := tc.nameCache[t.Name()]; old != nil && old != t {
		tc.verbosef("WARNING: named type %s already exists as %T; overriding", t.Name(), old)
	}
	tc.nameCache[t.Name()] = t
}

// MakeNumericType returns the unnamed numeric type of the given kind.
func (p *Program) MakeNumericType(k NumericKind) *NumericType {
	p.typeCache.mu.Lock()
	defer p.typeCache.mu.Unlock()
	return p.typeCache.makeNumeric(k)
}

// MakePtrType returns the unnamed pointer type with the given element.
func (p *Program) MakePtrType(elem Type) *PtrType {
	p.typeCache.mu.Lock()
	defer p.typeCache.mu.Unlock()
	return p.typeCache.makePtr(elem)
}

// MakeArrayType returns the unnamed array type elem[n].
func (p *Program) MakeArrayType(elem Type, n uint64) *ArrayType {
	p.typeCache.mu.Lock()
	defer p.typeCache.mu.Unlock()
	return p.typeCache.makeArray(elem, n)
}

// MakeOpaqueType returns an unnamed opaque type of the given size.
func (p *Program) MakeOpaqueType(desc string, size uint64) *OpaqueType {
	p.typeCache.mu.Lock()
	defer p.typeCache.mu.Unlock()
	return p.typeCache.makeOpaque(desc, size)
}

// The make* methods require tc.mu.

func (tc *typeCache) makeNumeric(k NumericKind) *NumericType {
	if t := tc.anonCache[k]; t != nil {
		return t.(*NumericType)
	}
	t := &NumericType{baseType: baseType{program: tc.program, size: numericKindToSize(k)}, Kind: k}
	tc.anonCache[k] = t
	return t
}

func (tc *typeCache) makePtr(elem Type) *PtrType {
	key := anonPtrKey{elem}
	if t := tc.anonCache[key]; t != nil {
		return t.(*PtrType)
	}
	t := &PtrType{baseType: baseType{program: tc.program, size: uint64(tc.program.Arch.PointerSize)}, Elem: elem}
	tc.anonCache[key] = t
	return t
}

func (tc *typeCache) makeArray(elem Type, n uint64) *ArrayType {
	key := anonArrayKey{elem, n}
	if t := tc.anonCache[key]; t != nil {
		return t.(*ArrayType)
	}
	t := &ArrayType{baseType: baseType{program: tc.program, size: elem.Size() * n}, Elem: elem, Len: n}
	tc.anonCache[key] = t
	return t
}

func (tc *typeCache) makeOpaque(desc string, size uint64) *OpaqueType {
	key := anonOpaqueKey{desc, size}
	if t := tc.anonCache[key]; t != nil {
		return t.(*OpaqueType)
	}
	t := &OpaqueType{baseType: baseType{program: tc.program, size: size}, Desc: desc}
	tc.anonCache[key] = t
	return t
}

// NewStructType creates a struct type with the given fields.
// If name is not empty, the type is registered so FindType can find it.
// Fields must be sorted by offset and must fit within size.
func (p *Program) NewStructType(name string, fields []StructField, size uint64) (*StructType, error) {
	for k, f := range fields {
		if f.Offset+f.Type.Size() > size {
			return nil, errors.Errorf("field %s (offset=%d, size=%d) is outside of %s (size %d)", f.Name, f.Offset, f.Type.Size(), name, size)
		}
		if k > 0 && f.Offset < fields[k-1].Offset {
			return nil, errors.Errorf("fields of %s are not sorted by offset", name)
		}
	}
	t := &StructType{baseType: baseType{program: p, name: name, size: size}, Fields: fields}
	p.typeCache.mu.Lock()
	p.typeCache.add(t)
	p.typeCache.mu.Unlock()
	return t, nil
}
