package pngraw

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------
// Test helpers
// -----------------------------

func makeTestImage(mode ColorMode, depth uint8, w, h int) (ImageHeader, []byte) {
	hdr := ImageHeader{Width: uint32(w), Height: uint32(h), BitDepth: depth, ColorMode: mode}
	bpp := hdr.BytesPerPixel()
	pix := make([]byte, hdr.RowStride()*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for i := 0; i < bpp; i++ {
				pix[(y*w+x)*bpp+i] = uint8((x*17)^(y*31)) + uint8(i*43)
			}
		}
	}
	return hdr, pix
}

// pngBuilder assembles containers chunk by chunk, including malformed ones.
type pngBuilder struct {
	buf bytes.Buffer
}

func newPNG() *pngBuilder {
	b := &pngBuilder{}
	b.buf.WriteString(pngSignature)
	return b
}

func (b *pngBuilder) chunk(tag string, payload []byte) *pngBuilder {
	var t Tag
	copy(t[:], tag)
	writeChunk(&b.buf, t, payload)
	return b
}

func (b *pngBuilder) header(hdr ImageHeader) *pngBuilder {
	return b.chunk("IHDR", hdr.marshal())
}

func (b *pngBuilder) end() *pngBuilder {
	return b.chunk("IEND", nil)
}

func (b *pngBuilder) bytes() []byte {
	return b.buf.Bytes()
}

func compress(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(data)
	require.Nil(t, err)
	require.Nil(t, zw.Close())
	return buf.Bytes()
}

// filterRows prefixes every row of pix with ft and applies the filter.
func filterRows(hdr ImageHeader, pix []byte, ft FilterType) []byte {
	stride := hdr.RowStride()
	bpp := hdr.BytesPerPixel()
	out := make([]byte, 0, (stride+1)*int(hdr.Height))
	pdat := make([]byte, stride)
	row := make([]byte, stride)
	for y := 0; y < int(hdr.Height); y++ {
		cdat := pix[y*stride : (y+1)*stride]
		filterRow(ft, row, cdat, pdat, bpp)
		out = append(out, byte(ft))
		out = append(out, row...)
		pdat = cdat
	}
	return out
}

func buildPNG(t testing.TB, hdr ImageHeader, filtered []byte) []byte {
	return newPNG().header(hdr).chunk("IDAT", compress(t, filtered)).end().bytes()
}

// shortSource returns at most limit bytes from any read past its cut.
type shortSource struct {
	BytesSource
	cut int64
}

func (s shortSource) ReadAt(off int64, n int) ([]byte, error) {
	b, err := s.BytesSource.ReadAt(off, n)
	if off+int64(len(b)) > s.cut {
		keep := s.cut - off
		if keep < 0 {
			keep = 0
		}
		return b[:keep], nil
	}
	return b, err
}

// -----------------------------
// Round trips
// -----------------------------

func TestDecode_RoundTripNone(t *testing.T) {
	for _, tc := range []struct {
		name  string
		mode  ColorMode
		depth uint8
	}{
		{name: "gray8", mode: Grayscale, depth: 8},
		{name: "gray16", mode: Grayscale, depth: 16},
		{name: "rgb8", mode: Truecolor, depth: 8},
		{name: "rgb16", mode: Truecolor, depth: 16},
		{name: "graya8", mode: GrayscaleAlpha, depth: 8},
		{name: "rgba8", mode: TruecolorAlpha, depth: 8},
		{name: "rgba16", mode: TruecolorAlpha, depth: 16},
	} {
		t.Run(tc.name, func(t *testing.T) {
			hdr, pix := makeTestImage(tc.mode, tc.depth, 13, 7)
			data := buildPNG(t, hdr, filterRows(hdr, pix, FilterNone))

			img, err := Decode(BytesSource(data), nil)
			require.Nil(t, err)
			assert.Equal(t, hdr, img.Header)
			assert.Equal(t, hdr.BytesPerPixel(), img.BytesPerPixel)
			assert.Equal(t, 13*hdr.BytesPerPixel(), img.Stride)
			assert.Equal(t, pix, img.Pix)
			assert.Empty(t, img.Notes)
		})
	}
}

func TestDecode_RoundTripEveryFilter(t *testing.T) {
	hdr, pix := makeTestImage(TruecolorAlpha, 8, 31, 17)
	for ft := FilterNone; ft < nFilter; ft++ {
		t.Run(ft.String(), func(t *testing.T) {
			img, err := Decode(BytesSource(buildPNG(t, hdr, filterRows(hdr, pix, ft))), nil)
			require.Nil(t, err)
			assert.Equal(t, pix, img.Pix)
		})
	}
}

func TestDecode_EncodeRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		mode ColorMode
		opts EncodeOptions
	}{
		{name: "adaptive", mode: Truecolor, opts: EncodeOptions{Filter: FilterAdaptive}},
		{name: "paeth_small_chunks", mode: TruecolorAlpha, opts: EncodeOptions{Filter: FilterPaeth, ChunkSize: 10}},
		{name: "average_best", mode: GrayscaleAlpha, opts: EncodeOptions{Filter: FilterAverage, Level: zlib.BestCompression}},
		{name: "indexed", mode: Indexed, opts: EncodeOptions{Filter: FilterSub}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			hdr, pix := makeTestImage(tc.mode, 8, 40, 9)
			var buf bytes.Buffer
			require.Nil(t, Encode(&buf, hdr, pix, &tc.opts))

			img, err := Decode(BytesSource(buf.Bytes()), &Options{Modes: AllModes, VerifyChecksums: true})
			require.Nil(t, err)
			assert.Equal(t, pix, img.Pix)
		})
	}
}

func TestEncode_Rejects(t *testing.T) {
	hdr, pix := makeTestImage(Truecolor, 8, 4, 4)
	var buf bytes.Buffer

	err := Encode(&buf, hdr, pix[:len(pix)-1], nil)
	assert.Equal(t, "size-mismatch", Kind(err))

	err = Encode(&buf, hdr, pix, &EncodeOptions{Filter: 7})
	assert.NotNil(t, err)

	bad := hdr
	bad.BitDepth = 4
	err = Encode(&buf, bad, pix, nil)
	assert.Equal(t, "unsupported-bit-depth", Kind(err))
}

func TestEncode_SplitsData(t *testing.T) {
	hdr, pix := makeTestImage(Truecolor, 8, 20, 20)
	var buf bytes.Buffer
	require.Nil(t, Encode(&buf, hdr, pix, &EncodeOptions{ChunkSize: 64}))

	var lengths []uint32
	err := WalkChunks(BytesSource(buf.Bytes()), false, true, func(info ChunkInfo) error {
		assert.True(t, info.ChecksumOK, "chunk %v", info.Tag)
		if info.Tag == TagData {
			lengths = append(lengths, info.Length)
		}
		return nil
	})
	require.Nil(t, err)
	require.Greater(t, len(lengths), 1)
	for _, l := range lengths[:len(lengths)-1] {
		assert.Equal(t, uint32(64), l)
	}
	assert.LessOrEqual(t, lengths[len(lengths)-1], uint32(64))
}

func TestPickFilterPrefersSmallResiduals(t *testing.T) {
	// A horizontal ramp is flat after Sub.
	cdat := []byte{10, 20, 30, 40, 50, 60, 70, 80}
	pdat := []byte{200, 13, 7, 255, 1, 99, 3, 180}
	scratch := make([]byte, len(cdat))
	assert.Equal(t, FilterSub, pickFilter(cdat, pdat, 1, scratch))

	// A row equal to the one above is all zeros after Up.
	assert.Equal(t, FilterUp, pickFilter(pdat, pdat, 1, scratch))
}

func TestWriteChunkLayout(t *testing.T) {
	var buf bytes.Buffer
	require.Nil(t, writeChunk(&buf, TagTrailer, nil))
	b := buf.Bytes()
	require.Len(t, b, 12)
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(b[0:4]))
	assert.Equal(t, "IEND", string(b[4:8]))
	assert.Equal(t, uint32(0xae426082), binary.BigEndian.Uint32(b[8:12]))
}
