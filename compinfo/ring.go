package compinfo

import "iter"

// RingBuffer is a read-only view over one snapshot of the ring.
//
// The target writes slots in increasing index order, wrapping to 0 after the
// last slot. Before the first wrap, every slot after last is a tombstone.
// After it, the oldest entry sits just after last. Either way, one lap that
// starts at next(last) and ends at last visits the slots oldest first.
type RingBuffer struct {
	entries []Entry
	last    int
}

// NewRingBuffer returns a view over entries whose most recently written slot
// is last. The capacity is len(entries). An empty entries slice gives a view
// with nothing in it. A last outside [0, len(entries)) means the snapshot is
// corrupt, and NewRingBuffer fails with a *MalformedBufferError.
func NewRingBuffer(entries []Entry, last int64) (*RingBuffer, error) {
	if len(entries) == 0 {
		return &RingBuffer{}, nil
	}
	if last < 0 || last >= int64(len(entries)) {
		return nil, &MalformedBufferError{
			Capacity: len(entries),
			Last:     last,
			Reason:   "last index out of range",
		}
	}
	return &RingBuffer{entries: entries, last: int(last)}, nil
}

// Traverse returns the written entries of the ring, oldest first.
func Traverse(entries []Entry, last int64) ([]Entry, error) {
	rb, err := NewRingBuffer(entries, last)
	if err != nil {
		return nil, err
	}
	return rb.Entries(), nil
}

// Capacity returns the number of slots in the ring.
func (rb *RingBuffer) Capacity() int {
	return len(rb.entries)
}

// Last returns the index of the most recently written slot.
func (rb *RingBuffer) Last() int {
	return rb.last
}

func (rb *RingBuffer) next(i int) int {
	if i == len(rb.entries)-1 {
		return 0
	}
	return i + 1
}

// Indices yields every slot index exactly once, in the order the slots were
// written: from next(last) around to last.
func (rb *RingBuffer) Indices() iter.Seq[int] {
	return func(yield func(int) bool) {
		if len(rb.entries) == 0 {
			return
		}
		for i := rb.next(rb.last); ; i = rb.next(i) {
			if !yield(i) || i == rb.last {
				return
			}
		}
	}
}

// All yields the written entries, oldest first. Tombstones are skipped.
// Each call starts a fresh traversal.
func (rb *RingBuffer) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for i := range rb.Indices() {
			e := rb.entries[i]
			if e.IsTombstone() {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// Entries is like All, but collects the result into a slice.
func (rb *RingBuffer) Entries() []Entry {
	var out []Entry
	for e := range rb.All() {
		out = append(out, e)
	}
	return out
}

// Len returns the number of written entries.
func (rb *RingBuffer) Len() int {
	n := 0
	for _, e := range rb.entries {
		if !e.IsTombstone() {
			n++
		}
	}
	return n
}
