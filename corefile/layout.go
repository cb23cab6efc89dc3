package corefile

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Metrological/jscinspect/compinfo"
)

// Layout names the types and fields that hold the ring. The defaults match
// JSC::CompilationInfo; other rings with the same shape can be read by
// overriding the names in a YAML file.
type Layout struct {
	Tags       compinfo.Tags `yaml:"tags"`
	Fields     Fields        `yaml:"fields"`
	MaxNameLen int           `yaml:"maxNameLen"` // longest entry name read from memory
}

// Fields names the members of the ring and entry structs.
type Fields struct {
	Entries string `yaml:"entries"` // fixed-size array of entries
	Last    string `yaml:"last"`    // index of the most recently written slot
	Name    string `yaml:"name"`    // const char* or inline char array
	Start   string `yaml:"start"`   // address; 0 marks an unwritten slot
	Size    string `yaml:"size"`    // byte count
}

// DefaultLayout returns the layout of JSC::CompilationInfo.
func DefaultLayout() Layout {
	return Layout{
		Tags: compinfo.DefaultTags(),
		Fields: Fields{
			Entries: "entries",
			Last:    "last",
			Name:    "name",
			Start:   "start",
			Size:    "size",
		},
		MaxNameLen: 4096,
	}
}

// LoadLayout reads a YAML layout file. Keys missing from the file keep
// their DefaultLayout values.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Layout{}, errors.Wrap(err, "reading layout file")
	}
	return ParseLayout(data)
}

// ParseLayout is like LoadLayout, but parses an in-memory document.
func ParseLayout(data []byte) (Layout, error) {
	l := DefaultLayout()
	if err := yaml.Unmarshal(data, &l); err != nil {
		return Layout{}, errors.Wrap(err, "parsing layout")
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Validate checks that every name is set.
func (l Layout) Validate() error {
	required := []struct{ key, val string }{
		{"tags.buffer", l.Tags.Buffer},
		{"tags.entry", l.Tags.Entry},
		{"fields.entries", l.Fields.Entries},
		{"fields.last", l.Fields.Last},
		{"fields.name", l.Fields.Name},
		{"fields.start", l.Fields.Start},
		{"fields.size", l.Fields.Size},
	}
	for _, r := range required {
		if r.val == "" {
			return errors.Errorf("layout: %s must not be empty", r.key)
		}
	}
	if l.Tags.Buffer == l.Tags.Entry {
		return errors.Errorf("layout: buffer and entry tags are both %q", l.Tags.Buffer)
	}
	if l.MaxNameLen <= 0 {
		return errors.Errorf("layout: maxNameLen must be positive, got %d", l.MaxNameLen)
	}
	return nil
}
