package pngraw

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInflate_BufferSizes(t *testing.T) {
	// Lengths that are not a multiple of the buffer size leave a partial
	// final read, whose unused tail must not reach the output.
	raw := bytes.Repeat([]byte("scanline data 0123456789"), 1000)
	raw = append(raw, 1, 2, 3)
	compressed := compress(t, raw)

	for _, size := range []int{1, 7, 64, 4096, 1 << 20} {
		out, err := inflate(compressed, len(raw), size)
		require.Nil(t, err, "buffer size %d", size)
		assert.Equal(t, raw, out, "buffer size %d", size)
	}
}

func TestInflate_Errors(t *testing.T) {
	raw := bytes.Repeat([]byte{7}, 500)
	compressed := compress(t, raw)

	t.Run("empty", func(t *testing.T) {
		_, err := inflate(nil, 10, 0)
		var inflateErr *DecompressionError
		require.ErrorAs(t, err, &inflateErr)
		assert.ErrorIs(t, err, errNoImageData)
	})

	t.Run("corrupt_header", func(t *testing.T) {
		_, err := inflate([]byte{0x12, 0x34, 0x56}, 10, 0)
		assert.Equal(t, "decompression", Kind(err))
	})

	t.Run("corrupt_checksum", func(t *testing.T) {
		bad := append([]byte{}, compressed...)
		bad[len(bad)-1] ^= 0xff
		_, err := inflate(bad, len(raw), 0)
		assert.Equal(t, "decompression", Kind(err))
	})

	t.Run("truncated_stream", func(t *testing.T) {
		_, err := inflate(compressed[:len(compressed)/2], len(raw), 0)
		assert.Equal(t, "decompression", Kind(err))
	})

	t.Run("too_short", func(t *testing.T) {
		_, err := inflate(compressed, len(raw)+1, 0)
		var sizeErr *SizeMismatchError
		require.ErrorAs(t, err, &sizeErr)
		assert.Equal(t, len(raw)+1, sizeErr.Want)
		assert.Equal(t, len(raw), sizeErr.Got)
		assert.False(t, sizeErr.AtLeast)
	})

	t.Run("too_long", func(t *testing.T) {
		_, err := inflate(compressed, 100, 16)
		var sizeErr *SizeMismatchError
		require.ErrorAs(t, err, &sizeErr)
		assert.True(t, sizeErr.AtLeast)
		assert.Greater(t, sizeErr.Got, 100)
	})
}

func TestInflate_ReusesPooledReaders(t *testing.T) {
	a := compress(t, []byte("first stream"))
	b := compress(t, []byte("second, longer stream"))
	for i := 0; i < 4; i++ {
		out, err := inflate(a, 12, 5)
		require.Nil(t, err)
		assert.Equal(t, "first stream", string(out))
		out, err = inflate(b, 21, 5)
		require.Nil(t, err)
		assert.Equal(t, "second, longer stream", string(out))
	}
}

func TestDecode_DataSizeMismatch(t *testing.T) {
	hdr, pix := makeTestImage(Truecolor, 8, 5, 5)
	filtered := filterRows(hdr, pix, FilterNone)

	short := buildPNG(t, hdr, filtered[:len(filtered)-1])
	_, err := Decode(BytesSource(short), nil)
	assert.Equal(t, "size-mismatch", Kind(err))

	long := buildPNG(t, hdr, append(filtered, 0))
	_, err = Decode(BytesSource(long), nil)
	assert.Equal(t, "size-mismatch", Kind(err))

	noData := newPNG().header(hdr).end().bytes()
	_, err = Decode(BytesSource(noData), nil)
	assert.Equal(t, "decompression", Kind(err))
}
