package pngraw

import (
	"errors"
	"io"
	"os"
)

// ByteSource is a random-access, read-only view of an encoded image.
//
// ReadAt returns up to n bytes starting at off. Returning fewer than n bytes
// is a short read; the decoder treats it as a TruncatedInputError regardless
// of the accompanying error. Len reports the total length of the source.
//
// Implementations used by concurrent decodes must tolerate independent
// concurrent ReadAt calls, or each decode must get its own source.
type ByteSource interface {
	ReadAt(off int64, n int) ([]byte, error)
	Len() int64
}

// BytesSource serves reads from an in-memory encoded image.
type BytesSource []byte

func (s BytesSource) ReadAt(off int64, n int) ([]byte, error) {
	if off < 0 {
		return nil, errors.New("pngraw: negative offset")
	}
	if off >= int64(len(s)) {
		return nil, io.EOF
	}
	end := off + int64(n)
	if end > int64(len(s)) {
		return s[off:], io.ErrUnexpectedEOF
	}
	return s[off:end], nil
}

func (s BytesSource) Len() int64 { return int64(len(s)) }

// ReaderAtSource adapts an io.ReaderAt of known size.
type ReaderAtSource struct {
	R    io.ReaderAt
	Size int64
}

func (s ReaderAtSource) ReadAt(off int64, n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.New("pngraw: negative read length")
	}
	if rem := s.Size - off; rem < int64(n) {
		if rem <= 0 {
			return nil, io.EOF
		}
		buf := make([]byte, rem)
		got, err := s.R.ReadAt(buf, off)
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return buf[:got], err
	}
	buf := make([]byte, n)
	got, err := s.R.ReadAt(buf, off)
	if got == n {
		// io.ReaderAt may report io.EOF alongside a full read at the end.
		return buf, nil
	}
	return buf[:got], err
}

func (s ReaderAtSource) Len() int64 { return s.Size }

// FileSource is a ByteSource backed by an open file. os.File.ReadAt is safe
// for concurrent use, so one FileSource may serve several decodes.
type FileSource struct {
	ReaderAtSource
	f *os.File
}

// OpenFile opens path for decoding. The caller closes it.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileSource{
		ReaderAtSource: ReaderAtSource{R: f, Size: info.Size()},
		f:              f,
	}, nil
}

func (s *FileSource) Name() string { return s.f.Name() }

func (s *FileSource) Close() error { return s.f.Close() }

// readFull reads exactly n bytes at off or fails with a TruncatedInputError.
func readFull(src ByteSource, off int64, n int) ([]byte, error) {
	b, err := src.ReadAt(off, n)
	if len(b) < n {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = nil
		}
		return nil, &TruncatedInputError{Offset: off, Want: n, Got: len(b), Err: err}
	}
	if err != nil && err != io.EOF {
		return nil, &TruncatedInputError{Offset: off, Want: n, Got: len(b), Err: err}
	}
	return b[:n], nil
}
