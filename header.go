package pngraw

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ColorMode is the PNG color type byte.
type ColorMode uint8

const (
	Grayscale      ColorMode = 0
	Truecolor      ColorMode = 2
	Indexed        ColorMode = 3
	GrayscaleAlpha ColorMode = 4
	TruecolorAlpha ColorMode = 6
)

var colorModeNames = map[ColorMode]string{
	Grayscale:      "gray",
	Truecolor:      "rgb",
	Indexed:        "indexed",
	GrayscaleAlpha: "graya",
	TruecolorAlpha: "rgba",
}

func (m ColorMode) String() string {
	if name, ok := colorModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ColorMode(%d)", uint8(m))
}

func (m ColorMode) valid() bool {
	_, ok := colorModeNames[m]
	return ok
}

// Channels returns the number of samples per pixel, or 0 for an unknown mode.
func (m ColorMode) Channels() int {
	switch m {
	case Grayscale, Indexed:
		return 1
	case GrayscaleAlpha:
		return 2
	case Truecolor:
		return 3
	case TruecolorAlpha:
		return 4
	}
	return 0
}

// ParseColorMode accepts the names printed by ColorMode.String.
func ParseColorMode(s string) (ColorMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range colorModeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown color mode %q", s)
}

// ModeSet is the set of color modes a decoder accepts.
type ModeSet uint8

// DefaultModes enables every direct-color mode. Indexed images are left out
// because palette expansion is not performed.
var DefaultModes = NewModeSet(Grayscale, Truecolor, GrayscaleAlpha, TruecolorAlpha)

// AllModes also accepts Indexed images, decoded to raw palette indices.
var AllModes = NewModeSet(Grayscale, Truecolor, Indexed, GrayscaleAlpha, TruecolorAlpha)

func NewModeSet(modes ...ColorMode) ModeSet {
	var s ModeSet
	for _, m := range modes {
		s |= 1 << m
	}
	return s
}

func (s ModeSet) Has(m ColorMode) bool {
	return m < 8 && s&(1<<m) != 0
}

// ParseModeSet parses a comma separated list such as "rgb,rgba".
func ParseModeSet(s string) (ModeSet, error) {
	var set ModeSet
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		m, err := ParseColorMode(part)
		if err != nil {
			return 0, err
		}
		set |= NewModeSet(m)
	}
	if set == 0 {
		return 0, fmt.Errorf("no color modes in %q", s)
	}
	return set, nil
}

func (s ModeSet) String() string {
	var names []string
	for _, m := range []ColorMode{Grayscale, Truecolor, Indexed, GrayscaleAlpha, TruecolorAlpha} {
		if s.Has(m) {
			names = append(names, m.String())
		}
	}
	return strings.Join(names, ",")
}

const headerLength = 13

// ImageHeader is the decoded IHDR chunk.
type ImageHeader struct {
	Width             uint32
	Height            uint32
	BitDepth          uint8
	ColorMode         ColorMode
	CompressionMethod uint8
	FilterMethod      uint8
	InterlaceMethod   uint8
}

// BytesPerPixel is channels * bitDepth/8. It is only meaningful for a header
// that passed validation.
func (h ImageHeader) BytesPerPixel() int {
	return h.ColorMode.Channels() * int(h.BitDepth/8)
}

// RowStride is the reconstructed row length in bytes, without the filter byte.
func (h ImageHeader) RowStride() int {
	return int(h.Width) * h.BytesPerPixel()
}

func (h ImageHeader) marshal() []byte {
	b := make([]byte, headerLength)
	binary.BigEndian.PutUint32(b[0:4], h.Width)
	binary.BigEndian.PutUint32(b[4:8], h.Height)
	b[8] = h.BitDepth
	b[9] = uint8(h.ColorMode)
	b[10] = h.CompressionMethod
	b[11] = h.FilterMethod
	b[12] = h.InterlaceMethod
	return b
}

// parseHeader decodes and validates an IHDR payload. No header is returned
// unless every check passed.
func parseHeader(payload []byte, modes ModeSet) (ImageHeader, error) {
	// width:              4 bytes
	// height:             4 bytes
	// bit depth:          1 byte
	// color type:         1 byte
	// compression method: 1 byte
	// filter method:      1 byte
	// interlace method:   1 byte
	if len(payload) != headerLength {
		return ImageHeader{}, &FormatError{Msg: fmt.Sprintf("bad IHDR length %d", len(payload))}
	}

	h := ImageHeader{
		Width:             binary.BigEndian.Uint32(payload[0:4]),
		Height:            binary.BigEndian.Uint32(payload[4:8]),
		BitDepth:          payload[8],
		ColorMode:         ColorMode(payload[9]),
		CompressionMethod: payload[10],
		FilterMethod:      payload[11],
		InterlaceMethod:   payload[12],
	}

	if h.Width == 0 || h.Height == 0 {
		return ImageHeader{}, &FormatError{Msg: fmt.Sprintf("zero dimension %dx%d", h.Width, h.Height)}
	}
	if h.Width > maxChunkLength || h.Height > maxChunkLength {
		return ImageHeader{}, &FormatError{Msg: fmt.Sprintf("dimension %dx%d out of range", h.Width, h.Height)}
	}
	if !h.ColorMode.valid() {
		return ImageHeader{}, &UnsupportedColorModeError{Mode: h.ColorMode}
	}
	switch {
	case h.BitDepth < 8:
		return ImageHeader{}, &UnsupportedBitDepthError{Depth: h.BitDepth, ColorMode: h.ColorMode}
	case h.BitDepth == 8:
	case h.BitDepth == 16 && h.ColorMode != Indexed:
	default:
		return ImageHeader{}, &UnsupportedBitDepthError{Depth: h.BitDepth, ColorMode: h.ColorMode}
	}
	if !modes.Has(h.ColorMode) {
		return ImageHeader{}, &UnsupportedColorModeError{Mode: h.ColorMode}
	}
	if h.CompressionMethod != 0 {
		return ImageHeader{}, &UnsupportedFeatureError{Feature: fmt.Sprintf("compression method %d", h.CompressionMethod)}
	}
	if h.FilterMethod != 0 {
		return ImageHeader{}, &UnsupportedFeatureError{Feature: fmt.Sprintf("filter method %d", h.FilterMethod)}
	}
	if h.InterlaceMethod != 0 {
		return ImageHeader{}, &UnsupportedFeatureError{Feature: fmt.Sprintf("interlace method %d", h.InterlaceMethod)}
	}

	// The filtered buffer is the larger of the two and must fit in an int.
	rowSize := 1 + int64(h.Width)*int64(h.BytesPerPixel())
	total := rowSize * int64(h.Height)
	if total/int64(h.Height) != rowSize || total != int64(int(total)) {
		return ImageHeader{}, &UnsupportedFeatureError{Feature: "dimension overflow"}
	}
	return h, nil
}
