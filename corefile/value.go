package corefile

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

// Errors commonly returned by Value methods.
var (
	ErrNil         = errors.New("nil pointer")
	ErrOutOfBounds = errors.New("access is out-of-bounds")
	ErrNotFound    = errors.New("not found")
)

// Value describes a typed region of memory.
type Value struct {
	Type  Type
	Addr  uint64 // base address of Bytes
	Bytes []byte // raw bytes that define this value
}

// TypeName returns the name of v's struct type, or "" if v is not a named
// struct. This is the tag used to pick a printer.
func (v Value) TypeName() string {
	if st, ok := v.Type.(*StructType); ok {
		return st.Name()
	}
	return ""
}

// IsZero reports whether v.Bytes contains all zeros.
func (v Value) IsZero() bool {
	for _, b := range v.Bytes {
		if b != 0 {
			return false
		}
	}
	return true
}

// Size reports the size of v in bytes.
func (v Value) Size() uint64 {
	return v.Type.Size()
}

// ContainsAddress reports whether addr is in [v.Addr, v.Addr+v.Size()).
func (v Value) ContainsAddress(addr uint64) bool {
	return v.Addr <= addr && addr < v.Addr+v.Type.Size()
}

// Deref dereferences v.
// Fails with ErrNil if v is nil or ErrOutOfBounds if v points to memory that
// is not in the core file. Panics if v.Type is not PtrType.
func (v Value) Deref() (Value, error) {
	t, ok := v.Type.(*PtrType)
	if !ok {
		panic(fmt.Sprintf("bad type for Value.Deref(): %s (%T)", v.Type, v.Type))
	}
	return v.Type.Program().Value(v.ReadUint(), t.Elem)
}

// typedSlice casts the value at v.Addr+offset to type t.
// Fails if [offset, offset+t.Size()) is out-of-bounds.
func (v Value) typedSlice(offset uint64, t Type) (Value, error) {
	end := offset + t.Size()
	if end > uint64(len(v.Bytes)) {
		return Value{}, ErrOutOfBounds
	}
	return Value{
		Addr:  v.Addr + offset,
		Type:  t,
		Bytes: v.Bytes[offset:end:end],
	}, nil
}

// Field returns the given field. Fails with ErrOutOfBounds if f is out-of-bounds.
// Panics if v.Type is not StructType.
func (v Value) Field(f StructField) (Value, error) {
	if _, ok := v.Type.(*StructType); !ok {
		panic(fmt.Sprintf("bad type for Value.Field(): %s (%T)", v.Type, v.Type))
	}
	fv, err := v.typedSlice(f.Offset, f.Type)
	if err != nil {
		return Value{}, errors.Wrapf(err, "reading field %s.%s, type %s", v.Type, f.Name, f.Type)
	}
	return fv, nil
}

// FieldByName is a shorthand for v.Type.FieldByName followed by v.Field.
// Panics if v.Type is not StructType.
func (v Value) FieldByName(name string) (Value, error) {
	st, ok := v.Type.(*StructType)
	if !ok {
		panic(fmt.Sprintf("bad type for Value.FieldByName(): %s (%T)", v.Type, v.Type))
	}
	f, ok := st.FieldByName(name)
	if !ok {
		return Value{}, errors.Wrapf(ErrNotFound, "field %s in %s", name, st)
	}
	return v.Field(f)
}

// Len returns the number of elements in an array.
// Panics if v.Type is not ArrayType.
func (v Value) Len() uint64 {
	t, ok := v.Type.(*ArrayType)
	if !ok {
		panic(fmt.Sprintf("bad type for Value.Len(): %s (%T)", v.Type, v.Type))
	}
	return t.Len
}

// Index returns v's n'th element.
// For ArrayType, fails with ErrOutOfBounds if n >= v.Len().
// For PtrType, Index does pointer arithmetic, as in C's p[n].
// Panics if v.Type is not ArrayType or PtrType.
func (v Value) Index(n uint64) (Value, error) {
	switch t := v.Type.(type) {
	case *ArrayType:
		if n >= t.Len {
			return Value{}, ErrOutOfBounds
		}
		return v.typedSlice(n*t.Elem.Size(), t.Elem)
	case *PtrType:
		addr := v.ReadUint()
		if addr == 0 {
			return Value{}, ErrNil
		}
		return v.Type.Program().Value(addr+n*t.Elem.Size(), t.Elem)
	default:
		panic(fmt.Sprintf("bad type for Value.Index(): %s (%T)", v.Type, v.Type))
	}
}

// ReadUint parses v into a uint64. Signed integers are returned in two's
// complement. Panics if v is not an integer, boolean, or pointer.
func (v Value) ReadUint() uint64 {
	a := v.Type.Program().Arch
	switch t := v.Type.(type) {
	case *NumericType:
		if t.Kind == NumericBool || t.Kind.Integer() {
			return a.Uint(v.Bytes)
		}
	case *PtrType:
		return a.Uintptr(v.Bytes)
	}
	panic(fmt.Sprintf("bad type for Value.ReadUint(): %s (%T)", v.Type, v.Type))
}

// ReadInt parses v into an int64, sign-extending signed integer kinds.
// Panics if v is not an integer.
func (v Value) ReadInt() int64 {
	t, ok := v.Type.(*NumericType)
	if !ok || !t.Kind.Integer() {
		panic(fmt.Sprintf("bad type for Value.ReadInt(): %s (%T)", v.Type, v.Type))
	}
	a := v.Type.Program().Arch
	if t.Kind.Signed() {
		return a.Int(v.Bytes)
	}
	return int64(a.Uint(v.Bytes))
}

// IsInteger reports whether ReadUint can be called on v.
func (v Value) IsInteger() bool {
	switch t := v.Type.(type) {
	case *NumericType:
		return t.Kind.Integer()
	case *PtrType:
		return true
	}
	return false
}

// ReadUintFieldByName is a shorthand for v.FieldByName followed by ReadUint.
func (v Value) ReadUintFieldByName(name string) (uint64, error) {
	fv, err := v.FieldByName(name)
	if err != nil {
		return 0, err
	}
	if !fv.IsInteger() {
		return 0, errors.Errorf("field %s of %s has type %s, want an integer or pointer", name, v.Type, fv.Type)
	}
	return fv.ReadUint(), nil
}

// ReadCString reads a C string of at most max bytes.
// If v is a pointer, the string is read from the memory it points to, and a
// nil pointer reads as "". If v is an array, the string is stored inline.
// Panics if v is not PtrType or ArrayType.
func (v Value) ReadCString(max int) (string, error) {
	switch v.Type.(type) {
	case *PtrType:
		addr := v.ReadUint()
		if addr == 0 {
			return "", nil
		}
		s, ok := v.Type.Program().dataSegments.cstring(addr, max)
		if !ok {
			return "", errors.Wrapf(ErrOutOfBounds, "reading string at 0x%x", addr)
		}
		return s, nil
	case *ArrayType:
		data := v.Bytes
		if len(data) > max {
			data = data[:max]
		}
		if k := bytes.IndexByte(data, 0); k >= 0 {
			data = data[:k]
		}
		return string(data), nil
	default:
		panic(fmt.Sprintf("bad type for Value.ReadCString(): %s (%T)", v.Type, v.Type))
	}
}

// Value casts the given address to the given type.
// Returns ErrNil or ErrOutOfBounds if the address is out-of-bounds.
func (p *Program) Value(addr uint64, t Type) (Value, error) {
	if addr == 0 {
		return Value{}, ErrNil
	}
	ds, ok := p.dataSegments.slice(addr, t.Size())
	if !ok {
		return Value{}, errors.Wrapf(ErrOutOfBounds, "%s at 0x%x", t, addr)
	}
	return Value{
		Addr:  addr,
		Type:  t,
		Bytes: ds.data,
	}, nil
}
