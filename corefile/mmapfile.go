package corefile

import (
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

var errMmapClosed = errors.New("mmap: closed")

// mmapFile wraps a read-only memory-mapped file. Unlike a plain io.ReaderAt,
// mmapFile allows creating []byte slices that refer directly to the
// underlying mmap'd memory segment.
type mmapFile struct {
	filename string
	m        mmap.MMap // nil for empty files
	data     []byte    // nil once closed
}

// mmapOpen maps the named file for reading.
func mmapOpen(filename string) (*mmapFile, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := st.Size()
	if size == 0 {
		return &mmapFile{filename: filename, data: []byte{}}, nil
	}
	if size != int64(int(size)) {
		return nil, errors.Errorf("mmap: file %q is too large", filename)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap: %s", filename)
	}
	return &mmapFile{filename: filename, m: m, data: m}, nil
}

// mmapAnonymous creates a zero-filled anonymous mapping of the given size.
// Pages are only materialized when touched, so this is cheap for large BSS
// sections that are mostly never read.
func mmapAnonymous(size int) (*mmapFile, error) {
	m, err := mmap.MapRegion(nil, size, mmap.RDONLY, mmap.ANON, 0)
	if err != nil {
		return nil, err
	}
	return &mmapFile{m: m, data: m}, nil
}

// Name returns the name of the file.
func (f *mmapFile) Name() string {
	return f.filename
}

// Size returns the size of the mapped file.
func (f *mmapFile) Size() uint64 {
	return uint64(len(f.data))
}

// ReadAt implements io.ReaderAt.
func (f *mmapFile) ReadAt(p []byte, offset int64) (int, error) {
	if f.data == nil {
		return 0, errMmapClosed
	}
	if offset < 0 {
		return 0, errors.Errorf("negative offset: %v", offset)
	}
	if uint64(offset) >= f.Size() {
		return 0, io.EOF
	}
	n := copy(p, f.data[offset:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// ReadSliceAt returns a slice of size n at the given offset that points
// directly at the underlying mapped file. There is no copying.
func (f *mmapFile) ReadSliceAt(offset, n uint64) ([]byte, error) {
	if f.data == nil {
		return nil, errMmapClosed
	}
	if offset+n < offset || offset+n > f.Size() {
		return nil, errors.Errorf("mmap: out-of-bounds ReadSliceAt(%d, %d), file size is %d", offset, n, f.Size())
	}
	end := offset + n
	return f.data[offset:end:end], nil
}

// Close unmaps the file. Slices returned by ReadSliceAt must not be used
// after Close.
func (f *mmapFile) Close() error {
	if f.data == nil {
		return nil
	}
	var err error
	if f.m != nil {
		err = f.m.Unmap()
	}
	*f = mmapFile{filename: f.filename}
	return err
}
