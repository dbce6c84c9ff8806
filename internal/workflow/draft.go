package workflow

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is one piece of evidence attached to a draft.
type File interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// LocalFile is a file on disk, opened only when it is uploaded.
type LocalFile struct {
	path string
	size int64
}

// OpenLocal stats path and returns it as an attachable file.
func OpenLocal(path string) (*LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("attach %s: is a directory", path)
	}
	return &LocalFile{path: path, size: info.Size()}, nil
}

func (f *LocalFile) Name() string                 { return filepath.Base(f.path) }
func (f *LocalFile) Size() int64                  { return f.size }
func (f *LocalFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }

// MemFile is an in-memory attachment.
type MemFile struct {
	name string
	data []byte
}

// NewMemFile wraps data as an attachment called name.
func NewMemFile(name string, data []byte) *MemFile {
	return &MemFile{name: name, data: data}
}

func (f *MemFile) Name() string { return f.name }
func (f *MemFile) Size() int64  { return int64(len(f.data)) }
func (f *MemFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// Draft is the not-yet-submitted claim: notes plus ordered evidence files.
type Draft struct {
	AdditionalInfo string
	Files          []File
}

// FileCount is the number of attached files; it is what create-claim receives.
func (d *Draft) FileCount() int { return len(d.Files) }

// AddFile appends files in order.
func (d *Draft) AddFile(files ...File) {
	d.Files = append(d.Files, files...)
}

// RemoveFile drops the file at index i.
func (d *Draft) RemoveFile(i int) error {
	if i < 0 || i >= len(d.Files) {
		return fmt.Errorf("remove file: index %d out of range [0,%d)", i, len(d.Files))
	}
	d.Files = append(d.Files[:i:i], d.Files[i+1:]...)
	return nil
}

// SetNotes replaces the free-text notes.
func (d *Draft) SetNotes(notes string) { d.AdditionalInfo = notes }

// TotalSize sums the attached file sizes.
func (d *Draft) TotalSize() int64 {
	var n int64
	for _, f := range d.Files {
		n += f.Size()
	}
	return n
}

func (d *Draft) clone() Draft {
	return Draft{AdditionalInfo: d.AdditionalInfo, Files: append([]File(nil), d.Files...)}
}
