package main

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"html/template"
	"io"
	"math"

	"github.com/go-kit/log/level"

	"github.com/Metrological/jscinspect/compinfo"
	"github.com/Metrological/jscinspect/corefile"
)

var errFieldLimit = errors.New("too many fields")

// maxStringLen bounds strings read through char pointers.
const maxStringLen = 256

// linkObj creates a link to the /obj page for the given address and type.
func (s *server) linkObj(addr uint64, t corefile.Type) template.HTML {
	return template.HTML(fmt.Sprintf("<a href=\"/obj?addr=%x&type=%d\">0x%x</a>", addr, s.types.id(t), addr))
}

func (s *server) linkValue(v corefile.Value) template.HTML {
	return s.linkObj(v.Addr, v.Type)
}

// limitedWriter returns EOF after writing N bytes.
type limitedWriter struct {
	io.Writer
	N int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.N <= 0 {
		return 0, io.EOF
	}
	// Always write the entire chunk as it may include HTML.
	n, err := w.Writer.Write(p)
	w.N -= n
	if err == nil && w.N < 0 {
		err = io.EOF
	}
	return n, err
}

type varInfo struct {
	Name  string
	Addr  template.HTML
	Type  string
	Value template.HTML
}

func (s *server) makeVarInfo(v corefile.Var) varInfo {
	var buf bytes.Buffer
	if pr, ok := s.dispatcher().Lookup(v.Value); ok {
		// Rings are shown through their printer, not field by field.
		p := renderPrinter(pr)
		buf.WriteString(html.EscapeString(p.oneLine()))
	} else {
		w := &limitedWriter{&buf, 1000}
		isFirst := true
		writeField := func(_ corefile.Value, name string, value template.HTML) error {
			sep := "<br/>"
			if isFirst {
				sep, isFirst = "", false
			}
			_, err := fmt.Fprintf(w, "%s%s=%s", sep, html.EscapeString(name), value)
			return err
		}
		if err := s.fmtValue(v.Value, "", writeField); err != nil {
			buf.WriteString(" ...")
		}
	}
	return varInfo{
		Name:  v.FullName(),
		Addr:  s.linkValue(v.Value),
		Type:  v.Value.Type.String(),
		Value: template.HTML(buf.String()),
	}
}

// fmtValue calls writeField for every leaf of v. Structs and arrays are
// flattened into dotted and indexed names.
func (s *server) fmtValue(v corefile.Value, fieldName string, writeField func(v corefile.Value, name string, value template.HTML) error) error {
	text := func(format string, args ...any) template.HTML {
		return template.HTML(html.EscapeString(fmt.Sprintf(format, args...)))
	}

	switch t := v.Type.(type) {
	case *corefile.NumericType:
		switch {
		case t.Kind == corefile.NumericBool:
			return writeField(v, fieldName, text("%v", v.ReadUint() != 0))
		case t.Kind == corefile.NumericFloat32:
			return writeField(v, fieldName, text("%v", math.Float32frombits(uint32(s.program.Arch.Uint(v.Bytes)))))
		case t.Kind == corefile.NumericFloat64:
			return writeField(v, fieldName, text("%v", math.Float64frombits(s.program.Arch.Uint(v.Bytes))))
		case t.Kind.Signed():
			return writeField(v, fieldName, text("%d", v.ReadInt()))
		default:
			return writeField(v, fieldName, text("%d", v.ReadUint()))
		}

	case *corefile.ArrayType:
		if isChar(t.Elem) {
			str, _ := v.ReadCString(int(t.Len))
			return writeField(v, fieldName, text("%q", str))
		}
		for k := uint64(0); k < t.Len; k++ {
			kname := fieldName + fmt.Sprintf("[%d]", k)
			kv, err := v.Index(k)
			if err != nil {
				if err := writeField(kv, kname, "???"); err != nil {
					return err
				}
				continue
			}
			if err := s.fmtValue(kv, kname, writeField); err != nil {
				return err
			}
		}
		return nil

	case *corefile.PtrType:
		if v.IsZero() {
			return writeField(v, fieldName, "nil")
		}
		link := s.linkObj(v.ReadUint(), t.Elem)
		if isChar(t.Elem) {
			if str, err := v.ReadCString(maxStringLen); err == nil {
				link += " " + text("%q", str)
			}
		}
		return writeField(v, fieldName, link)

	case *corefile.StructType:
		for _, f := range t.Fields {
			fname := f.Name
			if fname == "" {
				fname = fmt.Sprintf("$offset_%d", f.Offset)
			}
			if fieldName != "" {
				fname = fieldName + "." + fname
			}
			fv, err := v.Field(f)
			if err != nil {
				level.Debug(s.logger).Log("msg", "reading field", "field", fname, "err", err)
				if err := writeField(fv, fname, "???"); err != nil {
					return err
				}
				continue
			}
			if err := s.fmtValue(fv, fname, writeField); err != nil {
				return err
			}
		}
		return nil

	case *corefile.OpaqueType:
		return writeField(v, fieldName, "???")

	default:
		panic(fmt.Sprintf("unexpected type %s %T", t, t))
	}
}

func isChar(t corefile.Type) bool {
	nt, ok := t.(*corefile.NumericType)
	return ok && (nt.Kind == corefile.NumericInt8 || nt.Kind == corefile.NumericUint8)
}

// printedInfo is what a compinfo.Printer made of an object.
type printedInfo struct {
	TypeName    string
	DisplayHint string
	Summary     string
	Children    []string // for the "array" hint
	Text        string   // otherwise
	Err         string
}

func renderPrinter(pr compinfo.Printer) *printedInfo {
	p := &printedInfo{TypeName: pr.TypeName(), DisplayHint: pr.DisplayHint()}
	switch pr := pr.(type) {
	case *compinfo.BufferPrinter:
		p.Summary = pr.Summary()
		children, err := pr.Children()
		if err != nil {
			p.Err = err.Error()
			return p
		}
		for c := range children {
			p.Children = append(p.Children, c)
		}
	case *compinfo.EntryPrinter:
		s, err := pr.Format()
		if err != nil {
			p.Err = err.Error()
			return p
		}
		p.Text = s
	}
	return p
}

// oneLine renders p the way a debugger would print it inline.
func (p *printedInfo) oneLine() string {
	if p.Err != "" {
		return "<unreadable: " + p.Err + ">"
	}
	if p.DisplayHint != "array" {
		return p.Text
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s = {", p.Summary)
	for k, c := range p.Children {
		if k > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(c)
	}
	buf.WriteString("}")
	return buf.String()
}
