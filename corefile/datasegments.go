package corefile

import (
	"bytes"
	"fmt"
	"sort"
)

// dataSegment describes a range of the target's virtual memory.
type dataSegment struct {
	addr uint64
	data []byte // points into an mmap'd file

	// readable is false for ranges the target could not read, e.g. guard pages.
	readable bool

	// source names the file the bytes came from, for debugging.
	source string
}

func (s dataSegment) String() string {
	mode := "-"
	if s.readable {
		mode = "R"
	}
	return fmt.Sprintf("dataSegment{addr:0x%x, size:0x%x, mode:%v, source:%s}", s.addr, s.size(), mode, s.source)
}

// contains reports whether the segment contains the given address.
func (s dataSegment) contains(addr uint64) bool {
	return s.addr <= addr && addr < s.addr+s.size()
}

// size reports the size of the segment in bytes.
func (s dataSegment) size() uint64 {
	return uint64(len(s.data))
}

// end is the first address past the segment.
func (s dataSegment) end() uint64 {
	return s.addr + s.size()
}

// slice takes a slice of the given segment. addr is an absolute address.
// Returns false if [addr,addr+size) is out-of-bounds of s.
func (s dataSegment) slice(addr, size uint64) (dataSegment, bool) {
	if addr < s.addr {
		return dataSegment{}, false
	}
	offset := addr - s.addr
	if offset > s.size() || size > s.size()-offset {
		return dataSegment{}, false
	}
	return dataSegment{
		addr:     addr,
		data:     s.data[offset : offset+size : offset+size],
		readable: s.readable,
		source:   s.source,
	}, true
}

// dataSegments is a sorted list of non-overlapping segments.
type dataSegments []dataSegment

func (ss dataSegments) Len() int           { return len(ss) }
func (ss dataSegments) Swap(i, k int)      { ss[i], ss[k] = ss[k], ss[i] }
func (ss dataSegments) Less(i, k int) bool { return ss[i].addr < ss[k].addr }

// findSegment finds the segment that contains the given address.
func (ss dataSegments) findSegment(addr uint64) (dataSegment, bool) {
	// Binary search for an upper-bound segment, then check
	// if the previous segment contains addr.
	k := sort.Search(len(ss), func(k int) bool {
		return addr < ss[k].addr
	})
	k--
	if k >= 0 && ss[k].contains(addr) {
		return ss[k], true
	}
	return dataSegment{}, false
}

// slice takes a slice at the given address. Fails if the slice is not
// contained within a single readable segment.
func (ss dataSegments) slice(addr, size uint64) (dataSegment, bool) {
	s, ok := ss.findSegment(addr)
	if !ok || !s.readable {
		return dataSegment{}, false
	}
	return s.slice(addr, size)
}

// cstring reads a NUL-terminated string starting at addr. At most max bytes
// are scanned. The string must not cross a segment boundary.
func (ss dataSegments) cstring(addr uint64, max int) (string, bool) {
	s, ok := ss.findSegment(addr)
	if !ok || !s.readable {
		return "", false
	}
	data := s.data[addr-s.addr:]
	truncated := false
	if len(data) > max {
		data = data[:max]
		truncated = true
	}
	if k := bytes.IndexByte(data, 0); k >= 0 {
		return string(data[:k]), true
	}
	return string(data), truncated
}

// insert adds the range [addr, addr+size) to ss. Parts of the range that are
// already covered by an existing segment are skipped, so segments inserted
// first take precedence. makeSegment is called once for each uncovered
// subrange and must return a segment with exactly that address and size.
func (ss *dataSegments) insert(addr, size uint64, makeSegment func(addr, size uint64) (dataSegment, error)) error {
	if size == 0 {
		return nil
	}

	if sanityChecks {
		defer func() {
			if !sort.IsSorted(*ss) {
				panic(fmt.Sprintf("dataSegments are not sorted after insert(0x%x, 0x%x): %v", addr, size, *ss))
			}
		}()
	}

	add := func(k int, addr, size uint64) error {
		s, err := makeSegment(addr, size)
		if err != nil {
			return err
		}
		if s.addr != addr || s.size() != size {
			panic(fmt.Sprintf("makeSegment(0x%x, 0x%x) returned %s", addr, size, s))
		}
		*ss = append(*ss, dataSegment{})
		copy((*ss)[k+1:], (*ss)[k:])
		(*ss)[k] = s
		return nil
	}

	end := addr + size

	// Skip every segment that ends at or before addr.
	k := sort.Search(len(*ss), func(k int) bool {
		return (*ss)[k].end() > addr
	})

	// Fill the gaps in [addr, end) between the remaining segments.
	for addr < end {
		if k == len(*ss) || end <= (*ss)[k].addr {
			return add(k, addr, end-addr)
		}
		next := (*ss)[k]
		if addr < next.addr {
			if err := add(k, addr, next.addr-addr); err != nil {
				return err
			}
			k++
		}
		addr = next.end()
		k++
	}
	return nil
}
