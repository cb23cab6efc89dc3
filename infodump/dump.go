package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/Metrological/jscinspect/compinfo"
)

// dumper prints objects through a Dispatcher and totals what it printed.
type dumper struct {
	w    io.Writer
	disp *compinfo.Dispatcher

	bold *color.Color
	bad  *color.Color

	objects int
	entries int
	bytes   uint64
}

func newDumper(w io.Writer, disp *compinfo.Dispatcher) *dumper {
	return &dumper{
		w:    w,
		disp: disp,
		bold: color.New(color.Bold),
		bad:  color.New(color.FgRed),
	}
}

func (d *dumper) dump(name string, obj compinfo.Object) {
	d.bold.Fprintf(d.w, "%s:\n", name)
	d.objects++

	p, ok := d.disp.Lookup(obj)
	if !ok {
		d.bad.Fprintf(d.w, "\t<no printer for type %q>\n", obj.TypeName())
		return
	}

	switch p := p.(type) {
	case *compinfo.BufferPrinter:
		rb, err := p.Ring()
		if err != nil {
			d.unreadable(err)
			return
		}
		fmt.Fprintf(d.w, "\t%s (capacity %d, %d used)\n", p.Summary(), rb.Capacity(), rb.Len())
		for e := range rb.All() {
			s, _ := compinfo.FormatEntry(e)
			fmt.Fprintf(d.w, "\t\t%s\n", s)
			d.entries++
			d.bytes += e.Size
		}

	case *compinfo.EntryPrinter:
		s, err := p.Format()
		if err != nil {
			d.unreadable(err)
			return
		}
		fmt.Fprintf(d.w, "\t%s\n", s)
		d.entries++
	}
}

func (d *dumper) unreadable(err error) {
	d.bad.Fprintf(d.w, "\t<unreadable: %v>\n", err)
}

func (d *dumper) summary() {
	fmt.Fprintf(d.w, "%d objects, %s entries, %s of code\n",
		d.objects, humanize.Comma(int64(d.entries)), humanize.IBytes(d.bytes))
}
