package pngraw

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"
)

// FilterAdaptive picks, per row, the filter with the smallest sum of absolute
// signed residuals.
const FilterAdaptive FilterType = 0xff

// EncodeOptions tunes Encode. A nil *EncodeOptions uses FilterNone.
type EncodeOptions struct {
	// Filter applied to every row, or FilterAdaptive.
	Filter FilterType
	// ChunkSize splits the compressed stream into IDAT chunks of at most this
	// many bytes. Zero writes a single IDAT chunk.
	ChunkSize int
	// Level is a zlib compression level; zero means zlib.DefaultCompression.
	Level int
}

// Encode writes pix as a non-interlaced PNG described by hdr. The compression,
// filter and interlace methods of hdr are ignored and written as zero.
func Encode(w io.Writer, hdr ImageHeader, pix []byte, opts *EncodeOptions) error {
	if opts == nil {
		opts = &EncodeOptions{}
	}
	hdr.CompressionMethod, hdr.FilterMethod, hdr.InterlaceMethod = 0, 0, 0
	if _, err := parseHeader(hdr.marshal(), AllModes); err != nil {
		return err
	}
	if opts.Filter >= nFilter && opts.Filter != FilterAdaptive {
		return fmt.Errorf("pngraw: cannot encode with filter type %d", opts.Filter)
	}

	bpp := hdr.BytesPerPixel()
	stride := hdr.RowStride()
	height := int(hdr.Height)
	if len(pix) != stride*height {
		return &SizeMismatchError{Want: stride * height, Got: len(pix)}
	}

	level := opts.Level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	var compressed bytes.Buffer
	zw, err := zlib.NewWriterLevel(&compressed, level)
	if err != nil {
		return err
	}
	row := make([]byte, 1+stride)
	zero := make([]byte, stride)
	pdat := zero
	for y := 0; y < height; y++ {
		cdat := pix[y*stride : (y+1)*stride]
		ft := opts.Filter
		if ft == FilterAdaptive {
			ft = pickFilter(cdat, pdat, bpp, row[1:])
		}
		row[0] = byte(ft)
		filterRow(ft, row[1:], cdat, pdat, bpp)
		if _, err := zw.Write(row); err != nil {
			return err
		}
		pdat = cdat
	}
	if err := zw.Close(); err != nil {
		return err
	}

	if _, err := io.WriteString(w, pngSignature); err != nil {
		return err
	}
	if err := writeChunk(w, TagHeader, hdr.marshal()); err != nil {
		return err
	}
	data := compressed.Bytes()
	size := opts.ChunkSize
	if size <= 0 || size > maxChunkLength {
		size = len(data)
	}
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		if err := writeChunk(w, TagData, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return writeChunk(w, TagTrailer, nil)
}

func writeChunk(w io.Writer, tag Tag, payload []byte) error {
	var head [8]byte
	binary.BigEndian.PutUint32(head[0:4], uint32(len(payload)))
	copy(head[4:8], tag[:])
	crc := crc32.NewIEEE()
	crc.Write(head[4:8])
	crc.Write(payload)
	var tail [4]byte
	binary.BigEndian.PutUint32(tail[:], crc.Sum32())

	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.Write(tail[:])
	return err
}

// filterRow writes the ft-filtered form of cdat into dst. pdat is the
// previous unfiltered row.
func filterRow(ft FilterType, dst, cdat, pdat []uint8, bpp int) {
	for i := range cdat {
		var left, up, upLeft uint8
		if i >= bpp {
			left = cdat[i-bpp]
			upLeft = pdat[i-bpp]
		}
		up = pdat[i]
		switch ft {
		case FilterNone:
			dst[i] = cdat[i]
		case FilterSub:
			dst[i] = cdat[i] - left
		case FilterUp:
			dst[i] = cdat[i] - up
		case FilterAverage:
			dst[i] = cdat[i] - uint8((int(left)+int(up))/2)
		case FilterPaeth:
			dst[i] = cdat[i] - paeth(left, up, upLeft)
		}
	}
}

func pickFilter(cdat, pdat []uint8, bpp int, scratch []uint8) FilterType {
	best, bestSum := FilterNone, -1
	for ft := FilterNone; ft < nFilter; ft++ {
		filterRow(ft, scratch, cdat, pdat, bpp)
		sum := 0
		for _, b := range scratch {
			sum += abs(int(int8(b)))
		}
		if bestSum < 0 || sum < bestSum {
			best, bestSum = ft, sum
		}
	}
	return best
}
