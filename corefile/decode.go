package corefile

import (
	"github.com/pkg/errors"

	"github.com/Metrological/jscinspect/compinfo"
)

// Decoder reads compilation-info rings out of a Program.
// It implements compinfo.Decoder for Objects that are Values.
type Decoder struct {
	layout Layout
}

var _ compinfo.Decoder = (*Decoder)(nil)

// NewDecoder returns a Decoder that finds fields by the names in layout.
func NewDecoder(layout Layout) *Decoder {
	return &Decoder{layout: layout}
}

// NewDispatcher returns a compinfo.Dispatcher that decodes Values with a
// Decoder for layout.
func NewDispatcher(layout Layout) *compinfo.Dispatcher {
	return compinfo.NewDispatcher(NewDecoder(layout), layout.Tags)
}

func asStruct(obj compinfo.Object) (Value, error) {
	var v Value
	switch o := obj.(type) {
	case Value:
		v = o
	case *Value:
		if o == nil {
			return Value{}, errors.New("cannot decode a nil *corefile.Value")
		}
		v = *o
	default:
		return Value{}, errors.Errorf("cannot decode %T, want corefile.Value", obj)
	}
	if v.Type == nil {
		return Value{}, errors.Errorf("value at 0x%x has no type", v.Addr)
	}
	if _, ok := v.Type.(*StructType); !ok {
		return Value{}, errors.Errorf("value at 0x%x has type %s, want a struct", v.Addr, v.Type)
	}
	return v, nil
}

// DecodeEntry reads one entry struct.
func (d *Decoder) DecodeEntry(obj compinfo.Object) (compinfo.Entry, error) {
	v, err := asStruct(obj)
	if err != nil {
		return compinfo.Entry{}, err
	}
	return d.decodeEntry(v)
}

func (d *Decoder) decodeEntry(v Value) (compinfo.Entry, error) {
	f := d.layout.Fields
	start, err := v.ReadUintFieldByName(f.Start)
	if err != nil {
		return compinfo.Entry{}, err
	}
	size, err := v.ReadUintFieldByName(f.Size)
	if err != nil {
		return compinfo.Entry{}, err
	}
	e := compinfo.Entry{Start: start, Size: size}
	if e.IsTombstone() {
		// Unwritten slots have no meaningful name.
		return e, nil
	}

	nv, err := v.FieldByName(f.Name)
	if err != nil {
		return compinfo.Entry{}, err
	}
	switch nv.Type.(type) {
	case *PtrType, *ArrayType:
	default:
		return compinfo.Entry{}, errors.Errorf("field %s of %s has type %s, want a string", f.Name, v.Type, nv.Type)
	}
	e.Name, err = nv.ReadCString(d.layout.MaxNameLen)
	if err != nil {
		return compinfo.Entry{}, errors.Wrapf(err, "reading %s of entry at 0x%x", f.Name, v.Addr)
	}
	return e, nil
}

// DecodeBuffer reads every slot of a ring struct and its last-written index.
// The number of slots is the byte size of the entries array divided by the
// byte size of one entry.
func (d *Decoder) DecodeBuffer(obj compinfo.Object) ([]compinfo.Entry, int64, error) {
	v, err := asStruct(obj)
	if err != nil {
		return nil, 0, err
	}
	f := d.layout.Fields

	lv, err := v.FieldByName(f.Last)
	if err != nil {
		return nil, 0, err
	}
	nt, ok := lv.Type.(*NumericType)
	if !ok || !nt.Kind.Integer() {
		return nil, 0, errors.Errorf("field %s of %s has type %s, want an integer", f.Last, v.Type, lv.Type)
	}
	// An unsigned index above MaxInt64 wraps negative and is rejected as
	// malformed by compinfo.NewRingBuffer.
	last := lv.ReadInt()

	ev, err := v.FieldByName(f.Entries)
	if err != nil {
		return nil, 0, err
	}
	at, ok := ev.Type.(*ArrayType)
	if !ok {
		return nil, 0, errors.Errorf("field %s of %s has type %s, want an array", f.Entries, v.Type, ev.Type)
	}
	elemSize := at.Elem.Size()
	if elemSize == 0 {
		return nil, 0, &compinfo.MalformedBufferError{Last: last, Reason: "entry type " + at.Elem.String() + " has zero size"}
	}
	if _, ok := at.Elem.(*StructType); !ok {
		return nil, 0, errors.Errorf("field %s of %s has element type %s, want a struct", f.Entries, v.Type, at.Elem)
	}

	capacity := at.Size() / elemSize
	entries := make([]compinfo.Entry, capacity)
	for i := range entries {
		slot, err := ev.Index(uint64(i))
		if err != nil {
			return nil, 0, errors.Wrapf(err, "reading %s[%d]", f.Entries, i)
		}
		if entries[i], err = d.decodeEntry(slot); err != nil {
			return nil, 0, errors.Wrapf(err, "reading %s[%d]", f.Entries, i)
		}
	}
	return entries, last, nil
}
