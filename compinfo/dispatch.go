package compinfo

import (
	"fmt"
	"io"
	"iter"
)

// Object is a typed value read from a process image.
// It is opaque to this package except for its type name.
type Object interface {
	TypeName() string
}

// Decoder extracts ring data from Objects. It is implemented by the layer
// that reads process memory.
type Decoder interface {
	// DecodeEntry reads a single entry.
	DecodeEntry(obj Object) (Entry, error)

	// DecodeBuffer reads the backing array and the last-written index of a
	// whole ring. The returned slice has one element per slot.
	DecodeBuffer(obj Object) (entries []Entry, last int64, err error)
}

// Tags are the type names that select a Printer.
type Tags struct {
	Buffer string // type of the whole ring
	Entry  string // type of one slot
}

// DefaultTags returns the type names used by JavaScriptCore.
func DefaultTags() Tags {
	return Tags{
		Buffer: "JSC::CompilationInfo",
		Entry:  "JSC::CompilationInfoEntry",
	}
}

// Dispatcher routes Objects to Printers by type name.
// A Dispatcher is immutable and safe for concurrent use.
type Dispatcher struct {
	dec  Decoder
	tags Tags
}

// NewDispatcher returns a Dispatcher that decodes Objects with dec.
func NewDispatcher(dec Decoder, tags Tags) *Dispatcher {
	return &Dispatcher{dec: dec, tags: tags}
}

// Tags returns the type names d matches.
func (d *Dispatcher) Tags() Tags {
	return d.tags
}

// Matches reports whether a type with the given name has a Printer.
func (d *Dispatcher) Matches(typeName string) bool {
	return typeName != "" && (typeName == d.tags.Buffer || typeName == d.tags.Entry)
}

// Lookup returns the Printer for obj. It returns false if obj's type is not
// one d knows about, so that some other printer can handle it.
func (d *Dispatcher) Lookup(obj Object) (Printer, bool) {
	if obj == nil {
		return nil, false
	}
	name := obj.TypeName()
	switch {
	case name == "":
		return nil, false
	case name == d.tags.Buffer:
		return &BufferPrinter{obj: obj, dec: d.dec, tag: name}, true
	case name == d.tags.Entry:
		return &EntryPrinter{obj: obj, dec: d.dec, tag: name}, true
	}
	return nil, false
}

// Printer renders one Object. It is either a *BufferPrinter or an *EntryPrinter.
type Printer interface {
	// TypeName is the tag that selected this Printer.
	TypeName() string

	// DisplayHint tells the renderer how to lay out the output.
	// "array" means Print emits a list of children.
	DisplayHint() string

	// Print decodes the object and writes it to w.
	Print(w io.Writer) error

	printer()
}

// BufferPrinter prints a whole ring as a list of entries.
type BufferPrinter struct {
	obj Object
	dec Decoder
	tag string
}

func (*BufferPrinter) printer() {}

func (p *BufferPrinter) TypeName() string    { return p.tag }
func (p *BufferPrinter) DisplayHint() string { return "array" }

// Summary is the one-line description shown before the children.
func (p *BufferPrinter) Summary() string {
	return p.tag
}

// Ring decodes the object into a RingBuffer. Each call reads the object again.
func (p *BufferPrinter) Ring() (*RingBuffer, error) {
	entries, last, err := p.dec.DecodeBuffer(p.obj)
	if err != nil {
		return nil, err
	}
	return NewRingBuffer(entries, last)
}

// Children returns the formatted entries of the ring, oldest first.
func (p *BufferPrinter) Children() (iter.Seq[string], error) {
	rb, err := p.Ring()
	if err != nil {
		return nil, err
	}
	return func(yield func(string) bool) {
		for e := range rb.All() {
			// All never yields tombstones, so FormatEntry cannot fail.
			s, _ := FormatEntry(e)
			if !yield(s) {
				return
			}
		}
	}, nil
}

// Print writes "<summary> = {child, child, ...}".
func (p *BufferPrinter) Print(w io.Writer) error {
	children, err := p.Children()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s = {", p.Summary()); err != nil {
		return err
	}
	sep := ""
	for s := range children {
		if _, err := io.WriteString(w, sep+s); err != nil {
			return err
		}
		sep = ", "
	}
	_, err = io.WriteString(w, "}")
	return err
}

// EntryPrinter prints a single entry.
type EntryPrinter struct {
	obj Object
	dec Decoder
	tag string
}

func (*EntryPrinter) printer() {}

func (p *EntryPrinter) TypeName() string    { return p.tag }
func (p *EntryPrinter) DisplayHint() string { return "" }

// Format decodes the entry and formats it with FormatEntry.
func (p *EntryPrinter) Format() (string, error) {
	e, err := p.dec.DecodeEntry(p.obj)
	if err != nil {
		return "", err
	}
	return FormatEntry(e)
}

func (p *EntryPrinter) Print(w io.Writer) error {
	s, err := p.Format()
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, s)
	return err
}
