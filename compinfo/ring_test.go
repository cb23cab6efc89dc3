package compinfo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tomb = Entry{}

func TestRingTraverse(t *testing.T) {
	tests := []struct {
		label   string
		entries []Entry
		last    int64
		want    []Entry
	}{
		{
			label:   "not wrapped, one entry",
			entries: []Entry{{Name: "f", Start: 0x10, Size: 5}, tomb, tomb, tomb},
			last:    0,
			want:    []Entry{{Name: "f", Start: 0x10, Size: 5}},
		},
		{
			label:   "wrapped",
			entries: []Entry{{"a", 0x1, 1}, {"b", 0x2, 2}, {"c", 0x3, 3}},
			last:    1,
			want:    []Entry{{"c", 0x3, 3}, {"a", 0x1, 1}, {"b", 0x2, 2}},
		},
		{
			label:   "not wrapped, partly full",
			entries: []Entry{{"a", 0x1, 1}, {"b", 0x2, 2}, tomb, tomb, tomb},
			last:    1,
			want:    []Entry{{"a", 0x1, 1}, {"b", 0x2, 2}},
		},
		{
			label:   "full, last at end",
			entries: []Entry{{"a", 0x1, 1}, {"b", 0x2, 2}, {"c", 0x3, 3}},
			last:    2,
			want:    []Entry{{"a", 0x1, 1}, {"b", 0x2, 2}, {"c", 0x3, 3}},
		},
		{
			label:   "all tombstones",
			entries: []Entry{tomb, tomb, tomb},
			last:    1,
			want:    nil,
		},
		{
			label:   "only last written",
			entries: []Entry{tomb, tomb, {"z", 0x99, 7}, tomb},
			last:    2,
			want:    []Entry{{"z", 0x99, 7}},
		},
		{
			label:   "capacity 1",
			entries: []Entry{{"one", 0xabc, 12}},
			last:    0,
			want:    []Entry{{"one", 0xabc, 12}},
		},
		{
			label:   "capacity 1, tombstone",
			entries: []Entry{tomb},
			last:    0,
			want:    nil,
		},
		{
			label:   "empty name",
			entries: []Entry{{"", 0x5, 0}},
			last:    0,
			want:    []Entry{{"", 0x5, 0}},
		},
		{
			label:   "capacity 0",
			entries: nil,
			last:    0,
			want:    nil,
		},
	}

	for _, test := range tests {
		t.Run(test.label, func(t *testing.T) {
			got, err := Traverse(test.entries, test.last)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestRingMalformed(t *testing.T) {
	tests := []struct {
		capacity int
		last     int64
	}{
		{4, 5},
		{4, 4},
		{4, -1},
		{1, 1},
	}

	for _, test := range tests {
		rb, err := NewRingBuffer(make([]Entry, test.capacity), test.last)
		require.Error(t, err, "capacity=%d last=%d", test.capacity, test.last)
		assert.Nil(t, rb)
		assert.True(t, errors.Is(err, ErrMalformedBuffer))

		var merr *MalformedBufferError
		require.True(t, errors.As(err, &merr))
		assert.Equal(t, test.capacity, merr.Capacity)
		assert.Equal(t, test.last, merr.Last)
	}

	// A zero-capacity ring ignores last.
	rb, err := NewRingBuffer(nil, 5)
	require.NoError(t, err)
	assert.Empty(t, rb.Entries())
}

func TestRingVisitsEverySlotOnce(t *testing.T) {
	for capacity := 1; capacity <= 9; capacity++ {
		for last := 0; last < capacity; last++ {
			rb, err := NewRingBuffer(make([]Entry, capacity), int64(last))
			require.NoError(t, err)

			var order []int
			for i := range rb.Indices() {
				order = append(order, i)
			}
			require.Len(t, order, capacity, "capacity=%d last=%d", capacity, last)
			assert.Equal(t, last, order[len(order)-1], "capacity=%d last=%d", capacity, last)

			seen := make(map[int]bool)
			for k, i := range order {
				assert.False(t, seen[i], "index %d visited twice", i)
				seen[i] = true
				assert.Equal(t, (last+1+k)%capacity, i)
			}
		}
	}
}

// TestRingTombstoneMasks checks every combination of written and unwritten
// slots for small rings against a direct computation.
func TestRingTombstoneMasks(t *testing.T) {
	for capacity := 1; capacity <= 6; capacity++ {
		for mask := 0; mask < 1<<capacity; mask++ {
			entries := make([]Entry, capacity)
			for i := range entries {
				if mask&(1<<i) != 0 {
					entries[i] = Entry{Name: string(rune('a' + i)), Start: uint64(0x100 + i), Size: uint64(i)}
				}
			}
			for last := 0; last < capacity; last++ {
				var want []Entry
				for k := 1; k <= capacity; k++ {
					if e := entries[(last+k)%capacity]; e.Start != 0 {
						want = append(want, e)
					}
				}
				got, err := Traverse(entries, int64(last))
				require.NoError(t, err)
				assert.Equal(t, want, got, "capacity=%d mask=%b last=%d", capacity, mask, last)
			}
		}
	}
}

func TestRingFullOrder(t *testing.T) {
	entries := []Entry{{"a", 1, 1}, {"b", 2, 2}, {"c", 3, 3}, {"d", 4, 4}, {"e", 5, 5}}
	for last := range entries {
		rb, err := NewRingBuffer(entries, int64(last))
		require.NoError(t, err)
		got := rb.Entries()
		require.Len(t, got, len(entries))
		assert.Equal(t, entries[last], got[len(got)-1])
		assert.Equal(t, len(entries), rb.Len())
	}
}

func TestRingRestartable(t *testing.T) {
	entries := []Entry{{"a", 1, 1}, tomb, {"c", 3, 3}, {"d", 4, 4}}
	snapshot := append([]Entry(nil), entries...)
	rb, err := NewRingBuffer(entries, 2)
	require.NoError(t, err)

	first := rb.Entries()
	second := rb.Entries()
	assert.Equal(t, first, second)
	assert.Equal(t, []Entry{{"d", 4, 4}, {"a", 1, 1}, {"c", 3, 3}}, first)
	assert.Equal(t, snapshot, entries)

	// Stopping early does not disturb later traversals.
	for e := range rb.All() {
		assert.Equal(t, "d", e.Name)
		break
	}
	assert.Equal(t, first, rb.Entries())
	assert.Equal(t, 4, rb.Capacity())
	assert.Equal(t, 2, rb.Last())
}

func TestFormatEntry(t *testing.T) {
	tests := []struct {
		e    Entry
		want string
	}{
		{Entry{"f", 0x10, 5}, `("f", 0x10, 5)`},
		{Entry{"", 0x1, 0}, `("", 0x1, 0)`},
		{Entry{"JSC::foo", 0x7fffdeadbeef, 4096}, `("JSC::foo", 0x7fffdeadbeef, 4096)`},
		{Entry{"x", 0xABCDEF, 1}, `("x", 0xabcdef, 1)`},
	}
	for _, test := range tests {
		got, err := FormatEntry(test.e)
		require.NoError(t, err)
		assert.Equal(t, test.want, got)
	}

	_, err := FormatEntry(Entry{Name: "dead", Start: 0, Size: 3})
	assert.ErrorIs(t, err, ErrTombstone)
}
