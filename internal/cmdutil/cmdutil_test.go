package cmdutil

import (
	"bytes"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Metrological/jscinspect/corefile"
)

func TestParseAddr(t *testing.T) {
	for in, want := range map[string]uint64{
		"0x7f001000": 0x7f001000,
		"0X10":       0x10,
		"dead":       0xdead,
	} {
		got, err := ParseAddr(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "0x", "12zz", "-1"} {
		_, err := ParseAddr(in)
		assert.Error(t, err, in)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn")
	require.NoError(t, err)

	level.Info(logger).Log("msg", "dropped")
	level.Warn(logger).Log("msg", "kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")
	assert.Contains(t, buf.String(), "level=warn")

	_, err = NewLogger(&buf, "trace")
	assert.Error(t, err)
}

func TestLoadLayoutDefault(t *testing.T) {
	var f CoreFlags
	l, err := f.LoadLayout()
	require.NoError(t, err)
	assert.Equal(t, corefile.DefaultLayout(), l)
}
