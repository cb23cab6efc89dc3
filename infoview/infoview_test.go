package main

import (
	"bytes"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Metrological/jscinspect/compinfo"
)

type object struct {
	typeName string
	entries  []compinfo.Entry
	last     int64
}

func (o object) TypeName() string { return o.typeName }

type decoder struct{}

func (decoder) DecodeEntry(obj compinfo.Object) (compinfo.Entry, error) {
	return obj.(object).entries[0], nil
}

func (decoder) DecodeBuffer(obj compinfo.Object) ([]compinfo.Entry, int64, error) {
	o := obj.(object)
	return o.entries, o.last, nil
}

func TestLookupParam(t *testing.T) {
	q := url.Values{"addr": {"7f00"}, "n": {"12"}, "two": {"1", "2"}, "bad": {"xyz"}}

	got, err := lookupParam(q, "addr", 16)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x7f00), got)

	got, err = lookupParam(q, "n", 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), got)

	for _, p := range []string{"missing", "two", "bad"} {
		_, err := lookupParam(q, p, 10)
		assert.Error(t, err, p)
	}
}

func TestLimitedWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &limitedWriter{&buf, 5}

	n, err := w.Write([]byte("abc"))
	assert.Equal(t, 3, n)
	assert.NoError(t, err)

	// The chunk that crosses the limit is written whole.
	n, err = w.Write([]byte("<br/>"))
	assert.Equal(t, 5, n)
	assert.Error(t, err)

	n, err = w.Write([]byte("x"))
	assert.Equal(t, 0, n)
	assert.Error(t, err)
	assert.Equal(t, "abc<br/>", buf.String())
}

func TestRenderPrinter(t *testing.T) {
	tags := compinfo.DefaultTags()
	d := compinfo.NewDispatcher(decoder{}, tags)

	ring := object{
		typeName: tags.Buffer,
		entries:  []compinfo.Entry{{Name: "b", Start: 0x20, Size: 2}, {Name: "a", Start: 0x10, Size: 1}},
		last:     0,
	}
	pr, ok := d.Lookup(ring)
	require.True(t, ok)
	p := renderPrinter(pr)
	assert.Equal(t, "array", p.DisplayHint)
	assert.Equal(t, []string{`("a", 0x10, 1)`, `("b", 0x20, 2)`}, p.Children)
	assert.Equal(t, `JSC::CompilationInfo = {("a", 0x10, 1), ("b", 0x20, 2)}`, p.oneLine())

	ring.last = 2
	pr, _ = d.Lookup(ring)
	p = renderPrinter(pr)
	assert.NotEmpty(t, p.Err)
	assert.Contains(t, p.oneLine(), "<unreadable: ")

	pr, ok = d.Lookup(object{typeName: tags.Entry, entries: []compinfo.Entry{{Name: "x", Start: 0xff, Size: 9}}})
	require.True(t, ok)
	assert.Equal(t, `("x", 0xff, 9)`, renderPrinter(pr).oneLine())
}

func TestTemplates(t *testing.T) {
	var buf bytes.Buffer
	err := mainTemplate.Execute(&buf, mainInfo{
		ExecPath: "/usr/bin/WPEWebProcess",
		Arch:     "arm",
		Tags:     compinfo.DefaultTags(),
		Rings: []varInfo{{
			Name:  "JSC::s_compilationInfo",
			Type:  "JSC::CompilationInfo",
			Value: `JSC::CompilationInfo = {}`,
		}},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "/usr/bin/WPEWebProcess")
	assert.Contains(t, buf.String(), `href="/var/JSC::s_compilationInfo"`)

	buf.Reset()
	err = objTemplate.Execute(&buf, objInfo{
		Name: "0x1000",
		Type: "JSC::CompilationInfo",
		Printed: &printedInfo{
			TypeName:    "JSC::CompilationInfo",
			DisplayHint: "array",
			Summary:     "JSC::CompilationInfo",
			Children:    []string{`("a", 0x10, 1)`},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "<li>(&#34;a&#34;, 0x10, 1)</li>")

	buf.Reset()
	err = scopesTemplate.Execute(&buf, globalsInfo{Scopes: []string{"", "JSC"}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "(global namespace)")
	assert.Contains(t, buf.String(), `href="/globals?scope=JSC"`)
}
