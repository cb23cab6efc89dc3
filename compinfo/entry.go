package compinfo

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned by the ring and the formatter.
var (
	ErrMalformedBuffer = errors.New("malformed compilation info buffer")
	ErrTombstone       = errors.New("entry was never written")
)

// Entry is one slot of the ring.
type Entry struct {
	Name  string // may be empty
	Start uint64 // 0 means the slot was never written
	Size  uint64 // in bytes
}

// IsTombstone reports whether e is a slot that was never written.
func (e Entry) IsTombstone() bool {
	return e.Start == 0
}

// FormatEntry renders e as ("name", 0xstart, size).
// Tombstones cannot be formatted and fail with ErrTombstone.
func FormatEntry(e Entry) (string, error) {
	if e.IsTombstone() {
		return "", ErrTombstone
	}
	return fmt.Sprintf("(\"%s\", 0x%x, %d)", e.Name, e.Start, e.Size), nil
}

// MalformedBufferError describes a buffer whose layout cannot be traversed.
type MalformedBufferError struct {
	Capacity int
	Last     int64
	Reason   string
}

func (e *MalformedBufferError) Error() string {
	return fmt.Sprintf("%v: %s (capacity=%d, last=%d)", ErrMalformedBuffer, e.Reason, e.Capacity, e.Last)
}

// Is makes errors.Is(err, ErrMalformedBuffer) true for every MalformedBufferError.
func (e *MalformedBufferError) Is(target error) bool {
	return target == ErrMalformedBuffer
}
