package pngraw

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Raw dumps hold a decoded pixel buffer for display collaborators that take
// a flat buffer plus dimensions:
//
//	magic "PXRAW\n" | width u32 BE | height u32 BE | bit depth | color mode | zstd(pix)
const rawMagic = "PXRAW\n"

var ErrInvalidMagic = errors.New("pngraw: not a raw pixel dump")

// Single-threaded, low-memory zstd coders shared across dumps.
var (
	rawEncoders = sync.Pool{New: func() any {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderConcurrency(1),
			zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
			zstd.WithLowerEncoderMem(true),
		)
		if err != nil {
			panic(err)
		}
		return enc
	}}
	rawDecoders = sync.Pool{New: func() any {
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(true),
			zstd.WithDecoderMaxWindow(maxPrealloc),
		)
		if err != nil {
			panic(err)
		}
		return dec
	}}
)

// WriteRaw writes img as a raw pixel dump.
func WriteRaw(w io.Writer, img *Image) error {
	var b bytes.Buffer
	b.WriteString(rawMagic)
	if err := binary.Write(&b, binary.BigEndian, img.Header.Width); err != nil {
		return err
	}
	if err := binary.Write(&b, binary.BigEndian, img.Header.Height); err != nil {
		return err
	}
	b.WriteByte(img.Header.BitDepth)
	b.WriteByte(uint8(img.Header.ColorMode))

	enc := rawEncoders.Get().(*zstd.Encoder)
	out := enc.EncodeAll(img.Pix, b.Bytes())
	rawEncoders.Put(enc)

	_, err := w.Write(out)
	return err
}

// ReadRaw reads a raw pixel dump written by WriteRaw.
func ReadRaw(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	const headerSize = len(rawMagic) + 4 + 4 + 2
	if len(data) < headerSize {
		return nil, fmt.Errorf("pngraw: raw dump: truncated header")
	}
	if string(data[:len(rawMagic)]) != rawMagic {
		return nil, ErrInvalidMagic
	}
	pos := len(rawMagic)

	payload := make([]byte, headerLength)
	copy(payload, data[pos:pos+10])
	hdr, err := parseHeader(payload, AllModes)
	if err != nil {
		return nil, fmt.Errorf("pngraw: raw dump: %w", err)
	}
	pos += 10

	pix, err := unzstdRaw(data[pos:], hdr.RowStride()*int(hdr.Height))
	if err != nil {
		return nil, err
	}
	return &Image{
		Header:        hdr,
		BytesPerPixel: hdr.BytesPerPixel(),
		Stride:        hdr.RowStride(),
		Pix:           pix,
	}, nil
}

// unzstdRaw streams the dump payload, stopping as soon as it produces more
// than want bytes. The header is untrusted, so want only bounds the output.
func unzstdRaw(compressed []byte, want int) ([]byte, error) {
	dec := rawDecoders.Get().(*zstd.Decoder)
	defer rawDecoders.Put(dec)
	if err := dec.Reset(bytes.NewReader(compressed)); err != nil {
		return nil, fmt.Errorf("pngraw: raw dump: zstd decode: %w", err)
	}

	prealloc := want
	if prealloc > maxPrealloc {
		prealloc = maxPrealloc
	}
	pix := make([]byte, 0, prealloc)
	scratch := make([]byte, 32<<10)
	for {
		n, err := dec.Read(scratch)
		pix = append(pix, scratch[:n]...)
		if len(pix) > want {
			return nil, &SizeMismatchError{Want: want, Got: len(pix), AtLeast: true}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pngraw: raw dump: zstd decode: %w", err)
		}
	}
	if len(pix) != want {
		return nil, &SizeMismatchError{Want: want, Got: len(pix)}
	}
	return pix, nil
}
