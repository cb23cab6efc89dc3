package corefile

import (
	"debug/dwarf"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// dwarfVar is a global variable found in the DWARF, before its type has been
// converted.
type dwarfVar struct {
	name    string // qualified, e.g., "JSC::compilationInfo"
	addr    uint64 // load bias already applied
	typeOff dwarf.Offset
}

type dwarfScope struct {
	name string // "" for scopes that do not contribute to qualified names
	tag  dwarf.Tag
}

// qualify joins the enclosing namespace and class names with "::".
func qualify(scopes []dwarfScope, name string) string {
	if name == "" {
		return ""
	}
	var parts []string
	for _, s := range scopes {
		if s.name != "" {
			parts = append(parts, s.name)
		}
	}
	return strings.Join(append(parts, name), "::")
}

// splitQualifiedName splits "JSC::CompilationInfo" into "JSC" and "CompilationInfo".
// Template arguments are not inspected, so "A::B<C::D>" splits into "A" and "B<C::D>".
func splitQualifiedName(fullname string) (scope, name string) {
	depth := 0
	for k := len(fullname) - 1; k > 0; k-- {
		switch fullname[k] {
		case '>':
			depth++
		case '<':
			depth--
		case ':':
			if depth == 0 && fullname[k-1] == ':' {
				return fullname[:k-1], fullname[k+1:]
			}
		}
	}
	return "", fullname
}

func isScopeTag(tag dwarf.Tag) bool {
	switch tag {
	case dwarf.TagNamespace, dwarf.TagStructType, dwarf.TagClassType, dwarf.TagUnionType:
		return true
	}
	return false
}

func isLocalScope(scopes []dwarfScope) bool {
	for _, s := range scopes {
		if s.tag == dwarf.TagSubprogram || s.tag == dwarf.TagLexDwarfBlock || s.tag == dwarf.TagInlinedSubroutine {
			return true
		}
	}
	return false
}

// indexDWARF walks every DIE in d once. It records the qualified name of each
// named type, and returns every global variable that has a static address.
// Types are not converted here; that happens lazily in FindType.
func (tc *typeCache) indexDWARF(d *dwarf.Data, a Arch, bias uint64) ([]dwarfVar, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.dwarf = d

	type pendingVar struct {
		name    string
		spec    dwarf.Offset
		hasSpec bool
		typeOff dwarf.Offset
		hasType bool
		addr    uint64
		dieOff  dwarf.Offset
	}
	var (
		scopes   []dwarfScope
		pending  []pendingVar
		declName = make(map[dwarf.Offset]string)
		declType = make(map[dwarf.Offset]dwarf.Offset)
	)

	r := d.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			return nil, errors.Wrap(err, "reading DWARF")
		}
		if e == nil {
			break
		}
		if e.Tag == 0 {
			if len(scopes) > 0 {
				scopes = scopes[:len(scopes)-1]
			}
			continue
		}

		name, _ := e.Val(dwarf.AttrName).(string)
		local := isLocalScope(scopes)

		switch e.Tag {
		case dwarf.TagStructType, dwarf.TagClassType, dwarf.TagUnionType, dwarf.TagEnumerationType,
			dwarf.TagTypedef, dwarf.TagBaseType:
			if name == "" || local {
				break
			}
			qual := qualify(scopes, name)
			// dwarf.Type carries no DIE offset, so names are keyed by the
			// decoded type, which d caches per offset.
			dt, err := d.Type(e.Offset)
			if err != nil {
				tc.verbosef("skipping type %s at DIE 0x%x: %v", qual, e.Offset, err)
				break
			}
			tc.qualNames[dt] = qual
			if decl, _ := e.Val(dwarf.AttrDeclaration).(bool); !decl {
				if _, dup := tc.typeDIEs[qual]; !dup {
					tc.typeDIEs[qual] = e.Offset
				}
			}

		case dwarf.TagVariable, dwarf.TagMember:
			if local {
				break
			}
			if name != "" {
				declName[e.Offset] = qualify(scopes, name)
			}
			toff, hasType := e.Val(dwarf.AttrType).(dwarf.Offset)
			if hasType {
				declType[e.Offset] = toff
			}
			if e.Tag != dwarf.TagVariable {
				break
			}
			addr, ok := staticAddress(e, a)
			if !ok {
				break
			}
			spec, hasSpec := e.Val(dwarf.AttrSpecification).(dwarf.Offset)
			pending = append(pending, pendingVar{
				name:    declName[e.Offset],
				spec:    spec,
				hasSpec: hasSpec,
				typeOff: toff,
				hasType: hasType,
				addr:    addr + bias,
				dieOff:  e.Offset,
			})
		}

		if e.Children {
			s := dwarfScope{tag: e.Tag}
			if isScopeTag(e.Tag) {
				s.name = name
			}
			scopes = append(scopes, s)
		}
	}

	// Definitions of static class members and of variables declared in a
	// header refer back to their declaration for the name and type.
	var vars []dwarfVar
	for _, pv := range pending {
		if pv.hasSpec {
			if pv.name == "" {
				pv.name = declName[pv.spec]
			}
			if !pv.hasType {
				pv.typeOff, pv.hasType = declType[pv.spec]
			}
		}
		if pv.name == "" || !pv.hasType {
			tc.verbosef("skipping variable at DIE 0x%x: name=%q hasType=%v", pv.dieOff, pv.name, pv.hasType)
			continue
		}
		vars = append(vars, dwarfVar{name: pv.name, addr: pv.addr, typeOff: pv.typeOff})
	}
	tc.program.log.logf("DWARF index: %d named types, %d global variables", len(tc.typeDIEs), len(vars))
	return vars, nil
}

// staticAddress decodes a DW_AT_location of the form "DW_OP_addr <addr>".
// Other location expressions (registers, TLS, DW_OP_addrx) are not static.
func staticAddress(e *dwarf.Entry, a Arch) (uint64, bool) {
	const opAddr = 0x03
	expr, ok := e.Val(dwarf.AttrLocation).([]byte)
	if !ok || len(expr) != 1+a.PointerSize || expr[0] != opAddr {
		return 0, false
	}
	if a.PointerSize == 4 {
		return uint64(a.ByteOrder.Uint32(expr[1:])), true
	}
	return a.ByteOrder.Uint64(expr[1:]), true
}

// typeName returns the qualified name of dt, or "" if it is unnamed.
// Types declared inside functions are not indexed and keep their plain name.
func (tc *typeCache) typeName(dt dwarf.Type) string {
	if n, ok := tc.qualNames[dt]; ok {
		return n
	}
	switch dt := dt.(type) {
	case *dwarf.StructType:
		return dt.StructName
	case *dwarf.EnumType:
		return dt.EnumName
	}
	return dt.Common().Name
}

// findDWARF converts the type defined at the given DIE. Requires tc.mu.
func (tc *typeCache) findDWARF(off dwarf.Offset) (Type, error) {
	if tc.dwarf == nil {
		return nil, errors.New("no DWARF loaded")
	}
	dt, err := tc.dwarf.Type(off)
	if err != nil {
		return nil, errors.Wrapf(err, "reading DWARF type at 0x%x", off)
	}
	return tc.addDWARF(dt)
}

// addDWARF builds a Type for dt if it does not yet exist.
func (tc *typeCache) addDWARF(dt dwarf.Type) (Type, error) {
	tc.depth++
	defer func() { tc.depth-- }()
	t, err := tc.addDWARFWithTypedef(dt, "")
	if err != nil {
		return nil, err
	}
	tc.verbosef("converted (%s, %T) -> (%s, %T, sz=%d)", dt, dt, t, t, t.Size())
	return t, nil
}

// addDWARFWithTypedef converts dt. If typename is not empty, it names an
// otherwise anonymous dt, as in "typedef struct { ... } Foo".
func (tc *typeCache) addDWARFWithTypedef(dt dwarf.Type, typename string) (Type, error) {
	if typename == "" {
		typename = tc.typeName(dt)
	}

	tc.verbosef("convert (%s, %T, name=%s)", dt, dt, typename)

	key := dwarfCacheKey{dt, typename}
	if t := tc.dwarfCache[key]; t != nil {
		return t, nil
	}
	p := tc.program
	add := func(t Type) Type {
		tc.dwarfCache[key] = t
		tc.add(t)
		return t
	}
	addNumeric := func(k NumericKind) Type {
		// Base types such as "int" are repeated in every compilation unit.
		if old, ok := tc.nameCache[typename].(*NumericType); ok && old.Kind == k {
			tc.dwarfCache[key] = old
			return old
		}
		if typename == "" {
			t := tc.makeNumeric(k)
			tc.dwarfCache[key] = t
			return t
		}
		return add(&NumericType{baseType: baseType{program: p, name: typename, size: numericKindToSize(k)}, Kind: k})
	}
	addInt := func(size int64, signed bool) (Type, error) {
		k, ok := intKindForSize(size, signed)
		if !ok {
			return tc.addOpaque(key, dt, typename), nil
		}
		return addNumeric(k), nil
	}

	switch dt := dt.(type) {
	// Numeric types.

	case *dwarf.BoolType:
		return addNumeric(NumericBool), nil
	case *dwarf.CharType:
		return addNumeric(NumericInt8), nil
	case *dwarf.UcharType:
		return addNumeric(NumericUint8), nil
	case *dwarf.IntType:
		return addInt(dt.ByteSize, true)
	case *dwarf.UintType:
		return addInt(dt.ByteSize, false)
	case *dwarf.AddrType:
		return addInt(dt.ByteSize, false)
	case *dwarf.EnumType:
		signed := false
		for _, v := range dt.Val {
			if v.Val < 0 {
				signed = true
			}
		}
		return addInt(dt.ByteSize, signed)
	case *dwarf.FloatType:
		switch dt.ByteSize {
		case 4:
			return addNumeric(NumericFloat32), nil
		case 8:
			return addNumeric(NumericFloat64), nil
		}
		return tc.addOpaque(key, dt, typename), nil

	// Composites.
	// Named composites are allocated before their subtypes are converted so
	// that a subtype can refer back to them.

	case *dwarf.PtrType:
		var t *PtrType
		if typename != "" {
			t = &PtrType{baseType: baseType{program: p, name: typename, size: uint64(p.Arch.PointerSize)}}
			add(t)
		}
		elem, err := tc.addDWARF(dt.Type)
		if err != nil {
			return nil, err
		}
		if t == nil {
			t = tc.makePtr(elem)
			tc.dwarfCache[key] = t
		}
		t.Elem = elem
		return t, nil

	case *dwarf.ArrayType:
		elem, err := tc.addDWARF(dt.Type)
		if err != nil {
			return nil, err
		}
		n := uint64(0)
		if dt.Count > 0 {
			n = uint64(dt.Count)
		}
		if typename == "" {
			t := tc.makeArray(elem, n)
			tc.dwarfCache[key] = t
			return t, nil
		}
		return add(&ArrayType{baseType: baseType{program: p, name: typename, size: elem.Size() * n}, Elem: elem, Len: n}), nil

	case *dwarf.StructType:
		if dt.Kind == "union" || dt.Incomplete {
			return tc.addOpaque(key, dt, typename), nil
		}
		// Classes are repeated in every compilation unit that uses them.
		if old, ok := tc.nameCache[typename].(*StructType); ok && typename != "" && old.Size() == uint64(dt.ByteSize) {
			tc.dwarfCache[key] = old
			return old, nil
		}
		t := &StructType{baseType: baseType{program: p, name: typename, size: uint64(dt.ByteSize)}}
		add(t)
		for _, df := range dt.Field {
			if df.BitSize != 0 {
				tc.verbosef("skipping bit field %s.%s", typename, df.Name)
				continue
			}
			ft, err := tc.addDWARF(df.Type)
			if err != nil {
				return nil, err
			}
			if uint64(df.ByteOffset)+ft.Size() > t.size {
				return nil, errors.Errorf("field %s (offset=%d, size=%d) is outside of %s (size %d)", df.Name, df.ByteOffset, ft.Size(), dt, dt.ByteSize)
			}
			t.Fields = append(t.Fields, StructField{Name: df.Name, Type: ft, Offset: uint64(df.ByteOffset)})
		}
		sort.SliceStable(t.Fields, func(i, k int) bool { return t.Fields[i].Offset < t.Fields[k].Offset })
		return t, nil

	case *dwarf.TypedefType:
		// A typedef is an alias. It only lends its name to anonymous types.
		concrete := dwarf.Type(dt)
		for {
			td, ok := concrete.(*dwarf.TypedefType)
			if !ok {
				break
			}
			concrete = td.Type
		}
		var t Type
		var err error
		if tc.typeName(concrete) == "" {
			t, err = tc.addDWARFWithTypedef(concrete, typename)
		} else {
			t, err = tc.addDWARF(concrete)
		}
		if err != nil {
			return nil, err
		}
		tc.dwarfCache[key] = t
		return t, nil

	case *dwarf.QualType:
		t, err := tc.addDWARF(dt.Type)
		if err != nil {
			return nil, err
		}
		tc.dwarfCache[key] = t
		return t, nil

	case *dwarf.VoidType:
		t := tc.makeOpaque("void", 0)
		tc.dwarfCache[key] = t
		return t, nil

	case *dwarf.FuncType:
		t := tc.makeOpaque("func", 0)
		tc.dwarfCache[key] = t
		return t, nil

	default:
		return tc.addOpaque(key, dt, typename), nil
	}
}

func (tc *typeCache) addOpaque(key dwarfCacheKey, dt dwarf.Type, typename string) Type {
	size := uint64(0)
	if dt.Size() > 0 {
		size = uint64(dt.Size())
	}
	var t Type
	if typename == "" {
		t = tc.makeOpaque(dt.String(), size)
	} else {
		t = &OpaqueType{baseType: baseType{program: tc.program, name: typename, size: size}, Desc: dt.String()}
		tc.add(t)
	}
	tc.dwarfCache[key] = t
	return t
}
