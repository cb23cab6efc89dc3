package corefiletest

import (
	"debug/dwarf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// DWARF 4 attribute forms, see section 7.5.6 of the standard.
const (
	formString      = 0x08
	formData1       = 0x0b
	formRef4        = 0x13
	formExprloc     = 0x18
	formFlagPresent = 0x19
)

const opAddr = 0x03

type attrForm struct {
	attr dwarf.Attr
	form int
}

type abbrev struct {
	tag      dwarf.Tag
	children bool
	attrs    []attrForm
}

// Abbreviation codes. Each DIE written by dwarfBuilder uses one of these;
// the attribute values must follow in the listed order.
const (
	abbrevCU          = iota + 1 // name; children
	abbrevNamespace              // name; children
	abbrevBaseType               // name, encoding, byte_size
	abbrevStruct                 // name, byte_size; children
	abbrevAnonStruct             // byte_size; children
	abbrevClass                  // name, byte_size; children
	abbrevMember                 // name, type, data_member_location
	abbrevPointer                // type
	abbrevVoidPointer            //
	abbrevArray                  // type; children
	abbrevSubrange               // upper_bound
	abbrevTypedef                // name, type
	abbrevConst                  // type
	abbrevVariable               // name, type, location
	abbrevStaticDecl             // name, type, declaration
	abbrevStaticDef              // specification, location
	abbrevSubprogram             // name; children
)

var abbrevs = map[int]abbrev{
	abbrevCU:          {dwarf.TagCompileUnit, true, []attrForm{{dwarf.AttrName, formString}}},
	abbrevNamespace:   {dwarf.TagNamespace, true, []attrForm{{dwarf.AttrName, formString}}},
	abbrevBaseType:    {dwarf.TagBaseType, false, []attrForm{{dwarf.AttrName, formString}, {dwarf.AttrEncoding, formData1}, {dwarf.AttrByteSize, formData1}}},
	abbrevStruct:      {dwarf.TagStructType, true, []attrForm{{dwarf.AttrName, formString}, {dwarf.AttrByteSize, formData1}}},
	abbrevAnonStruct:  {dwarf.TagStructType, true, []attrForm{{dwarf.AttrByteSize, formData1}}},
	abbrevClass:       {dwarf.TagClassType, true, []attrForm{{dwarf.AttrName, formString}, {dwarf.AttrByteSize, formData1}}},
	abbrevMember:      {dwarf.TagMember, false, []attrForm{{dwarf.AttrName, formString}, {dwarf.AttrType, formRef4}, {dwarf.AttrDataMemberLoc, formData1}}},
	abbrevPointer:     {dwarf.TagPointerType, false, []attrForm{{dwarf.AttrType, formRef4}}},
	abbrevVoidPointer: {dwarf.TagPointerType, false, nil},
	abbrevArray:       {dwarf.TagArrayType, true, []attrForm{{dwarf.AttrType, formRef4}}},
	abbrevSubrange:    {dwarf.TagSubrangeType, false, []attrForm{{dwarf.AttrUpperBound, formData1}}},
	abbrevTypedef:     {dwarf.TagTypedef, false, []attrForm{{dwarf.AttrName, formString}, {dwarf.AttrType, formRef4}}},
	abbrevConst:       {dwarf.TagConstType, false, []attrForm{{dwarf.AttrType, formRef4}}},
	abbrevVariable:    {dwarf.TagVariable, false, []attrForm{{dwarf.AttrName, formString}, {dwarf.AttrType, formRef4}, {dwarf.AttrLocation, formExprloc}}},
	abbrevStaticDecl:  {dwarf.TagVariable, false, []attrForm{{dwarf.AttrName, formString}, {dwarf.AttrType, formRef4}, {dwarf.AttrDeclaration, formFlagPresent}}},
	abbrevStaticDef:   {dwarf.TagVariable, false, []attrForm{{dwarf.AttrSpecification, formRef4}, {dwarf.AttrLocation, formExprloc}}},
	abbrevSubprogram:  {dwarf.TagSubprogram, true, []attrForm{{dwarf.AttrName, formString}}},
}

// abbrevTable encodes abbrevs as a .debug_abbrev section.
func abbrevTable() []byte {
	var b []byte
	for code := 1; code <= len(abbrevs); code++ {
		a := abbrevs[code]
		b = binary.AppendUvarint(b, uint64(code))
		b = binary.AppendUvarint(b, uint64(a.tag))
		if a.children {
			b = append(b, 1)
		} else {
			b = append(b, 0)
		}
		for _, af := range a.attrs {
			b = binary.AppendUvarint(b, uint64(af.attr))
			b = binary.AppendUvarint(b, uint64(af.form))
		}
		b = append(b, 0, 0)
	}
	return append(b, 0)
}

// dwarfBuilder writes a single 64-bit compilation unit. DIEs can refer to
// each other by label, in either direction.
type dwarfBuilder struct {
	info   []byte
	labels map[string]int
	refs   map[int]string // position of a ref4 -> label it points to
}

func newDWARFBuilder() *dwarfBuilder {
	b := &dwarfBuilder{labels: map[string]int{}, refs: map[int]string{}}
	b.info = le.AppendUint32(b.info, 0) // unit_length, patched by sections
	b.info = le.AppendUint16(b.info, 4) // version
	b.info = le.AppendUint32(b.info, 0) // debug_abbrev_offset
	b.info = append(b.info, 8)          // address_size
	return b
}

// die starts a DIE. A non-empty label makes it a target for ref.
func (b *dwarfBuilder) die(label string, code int) *dwarfBuilder {
	if label != "" {
		b.labels[label] = len(b.info)
	}
	b.info = binary.AppendUvarint(b.info, uint64(code))
	return b
}

func (b *dwarfBuilder) str(s string) *dwarfBuilder {
	b.info = append(append(b.info, s...), 0)
	return b
}

func (b *dwarfBuilder) data1(v uint8) *dwarfBuilder {
	b.info = append(b.info, v)
	return b
}

func (b *dwarfBuilder) ref(label string) *dwarfBuilder {
	b.refs[len(b.info)] = label
	b.info = append(b.info, 0, 0, 0, 0)
	return b
}

// addr writes the location expression "DW_OP_addr a".
func (b *dwarfBuilder) addr(a uint64) *dwarfBuilder {
	b.info = append(b.info, 9, opAddr)
	b.info = le.AppendUint64(b.info, a)
	return b
}

// end closes the children of the innermost open DIE.
func (b *dwarfBuilder) end() *dwarfBuilder {
	b.info = append(b.info, 0)
	return b
}

// sections resolves refs and returns the .debug_abbrev and .debug_info sections.
func (b *dwarfBuilder) sections(t testing.TB) []Section {
	for pos, label := range b.refs {
		off, ok := b.labels[label]
		require.True(t, ok, "undefined DWARF label %q", label)
		le.PutUint32(b.info[pos:], uint32(off))
	}
	le.PutUint32(b.info, uint32(len(b.info)-4))
	return []Section{
		{Name: ".debug_abbrev", Data: abbrevTable()},
		{Name: ".debug_info", Data: b.info},
	}
}
