package corefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Metrological/jscinspect/compinfo"
)

func TestDefaultLayout(t *testing.T) {
	l := DefaultLayout()
	require.NoError(t, l.Validate())
	assert.Equal(t, compinfo.DefaultTags(), l.Tags)
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout([]byte("fields:\n  last: m_last\nmaxNameLen: 64\n"))
	require.NoError(t, err)

	want := DefaultLayout()
	want.Fields.Last = "m_last"
	want.MaxNameLen = 64
	assert.Equal(t, want, l)
}

func TestParseLayoutErrors(t *testing.T) {
	tests := []struct {
		desc string
		doc  string
	}{
		{"bad yaml", "fields: [entries"},
		{"empty field", "fields:\n  name: \"\"\n"},
		{"same tags", "tags:\n  buffer: X\n  entry: X\n"},
		{"bad max", "maxNameLen: 0\n"},
	}
	for _, test := range tests {
		_, err := ParseLayout([]byte(test.doc))
		assert.Error(t, err, test.desc)
	}
}

func TestLoadLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tags:\n  buffer: WTF::Ring\n"), 0o600))

	l, err := LoadLayout(path)
	require.NoError(t, err)
	assert.Equal(t, "WTF::Ring", l.Tags.Buffer)
	assert.Equal(t, compinfo.DefaultTags().Entry, l.Tags.Entry)

	_, err = LoadLayout(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
