package pngraw

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// DefaultInflateBufferSize is the scratch buffer drained on every inflate
// cycle. Output of any size is accumulated across cycles.
const DefaultInflateBufferSize = 4096

const maxPrealloc = 64 << 20

var errNoImageData = errors.New("no IDAT data")

var zlibReaderPool sync.Pool

func getZlibReader(r io.Reader) (io.ReadCloser, error) {
	if zr, ok := zlibReaderPool.Get().(io.ReadCloser); ok {
		if err := zr.(zlib.Resetter).Reset(r, nil); err != nil {
			zlibReaderPool.Put(zr)
			return nil, err
		}
		return zr, nil
	}
	return zlib.NewReader(r)
}

func putZlibReader(zr io.ReadCloser) {
	zlibReaderPool.Put(zr)
}

// inflate decompresses the concatenated IDAT payload. want is the exact
// filtered scanline size; bufSize is the scratch buffer drained per cycle.
//
// Only the n bytes produced by each Read are appended. Appending the whole
// scratch buffer corrupts the tail of the image on the final, partial cycle.
func inflate(compressed []byte, want, bufSize int) ([]byte, error) {
	if len(compressed) == 0 {
		return nil, &DecompressionError{Err: errNoImageData}
	}
	if bufSize <= 0 {
		bufSize = DefaultInflateBufferSize
	}

	zr, err := getZlibReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, &DecompressionError{Err: err}
	}
	defer putZlibReader(zr)

	// A header can claim far more data than the stream holds; grow past
	// this on demand.
	prealloc := want
	if prealloc > maxPrealloc {
		prealloc = maxPrealloc
	}
	out := make([]byte, 0, prealloc)
	scratch := make([]byte, bufSize)
	for {
		n, err := zr.Read(scratch)
		out = append(out, scratch[:n]...)
		if len(out) > want {
			return nil, &SizeMismatchError{Want: want, Got: len(out), AtLeast: true}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &DecompressionError{Err: err}
		}
	}
	if err := zr.Close(); err != nil {
		return nil, &DecompressionError{Err: err}
	}

	if len(out) != want {
		return nil, &SizeMismatchError{Want: want, Got: len(out)}
	}
	return out, nil
}
