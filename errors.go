package pngraw

import (
	"errors"
	"fmt"
)

// A FormatError reports that the input is not a valid PNG container.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string { return "pngraw: invalid format: " + e.Msg }

var errChunkOrder = &FormatError{Msg: "chunk out of order"}

// A TruncatedInputError reports that the byte source returned fewer bytes than
// requested at Offset.
type TruncatedInputError struct {
	Offset int64
	Want   int
	Got    int
	Err    error
}

func (e *TruncatedInputError) Error() string {
	msg := fmt.Sprintf("pngraw: truncated input at offset %d: need %d bytes, have %d", e.Offset, e.Want, e.Got)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TruncatedInputError) Unwrap() error { return e.Err }

// UnsupportedBitDepthError reports a bit depth the decoder cannot reconstruct
// for the header's color mode.
type UnsupportedBitDepthError struct {
	Depth     uint8
	ColorMode ColorMode
}

func (e *UnsupportedBitDepthError) Error() string {
	return fmt.Sprintf("pngraw: unsupported bit depth %d for color mode %v", e.Depth, e.ColorMode)
}

// An UnsupportedColorModeError is returned both for color mode bytes outside
// the PNG set and for valid modes that are not enabled in Options.Modes.
type UnsupportedColorModeError struct {
	Mode ColorMode
}

func (e *UnsupportedColorModeError) Error() string {
	if !e.Mode.valid() {
		return fmt.Sprintf("pngraw: unknown color mode %d", uint8(e.Mode))
	}
	return fmt.Sprintf("pngraw: color mode %v is not enabled", e.Mode)
}

// A MissingHeaderError reports an IDAT or IEND chunk seen before IHDR.
type MissingHeaderError struct {
	Tag    Tag
	Offset int64
}

func (e *MissingHeaderError) Error() string {
	return fmt.Sprintf("pngraw: %v chunk at offset %d precedes the IHDR chunk", e.Tag, e.Offset)
}

// DecompressionError wraps a zlib stream failure.
type DecompressionError struct {
	Err error
}

func (e *DecompressionError) Error() string { return "pngraw: decompression failed: " + e.Err.Error() }

func (e *DecompressionError) Unwrap() error { return e.Err }

// A SizeMismatchError reports that the inflated scanline data does not match
// height * (1 + width*bytesPerPixel). When AtLeast is set, inflation stopped as
// soon as Got exceeded Want.
type SizeMismatchError struct {
	Want    int
	Got     int
	AtLeast bool
}

func (e *SizeMismatchError) Error() string {
	if e.AtLeast {
		return fmt.Sprintf("pngraw: too much pixel data: want %d bytes, got at least %d", e.Want, e.Got)
	}
	return fmt.Sprintf("pngraw: pixel data size mismatch: want %d bytes, got %d", e.Want, e.Got)
}

// An InvalidFilterTypeError reports a filter byte outside 0-4. Offset is the
// position of the filter byte in the inflated scanline data.
type InvalidFilterTypeError struct {
	Row    int
	Offset int
	Filter byte
}

func (e *InvalidFilterTypeError) Error() string {
	return fmt.Sprintf("pngraw: invalid filter type %d in row %d (byte offset %d)", e.Filter, e.Row, e.Offset)
}

// ChecksumError reports a chunk whose stored CRC does not match its contents.
type ChecksumError struct {
	Tag    Tag
	Offset int64
	Want   uint32
	Got    uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("pngraw: invalid checksum for %v chunk at offset %d: stored %08x, computed %08x", e.Tag, e.Offset, e.Want, e.Got)
}

// An UnsupportedFeatureError reports a valid but unimplemented PNG feature.
type UnsupportedFeatureError struct {
	Feature string
}

func (e *UnsupportedFeatureError) Error() string { return "pngraw: unsupported feature: " + e.Feature }

// Kind returns a short name for the kind of decode error in err's chain, or
// "error" if err is not one of the package's error types.
func Kind(err error) string {
	var (
		formatErr      *FormatError
		truncatedErr   *TruncatedInputError
		depthErr       *UnsupportedBitDepthError
		modeErr        *UnsupportedColorModeError
		headerErr      *MissingHeaderError
		inflateErr     *DecompressionError
		sizeErr        *SizeMismatchError
		filterErr      *InvalidFilterTypeError
		checksumErr    *ChecksumError
		unsupportedErr *UnsupportedFeatureError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &truncatedErr):
		return "truncated-input"
	case errors.As(err, &formatErr):
		return "format"
	case errors.As(err, &depthErr):
		return "unsupported-bit-depth"
	case errors.As(err, &modeErr):
		return "unsupported-color-mode"
	case errors.As(err, &headerErr):
		return "missing-header"
	case errors.As(err, &inflateErr):
		return "decompression"
	case errors.As(err, &sizeErr):
		return "size-mismatch"
	case errors.As(err, &filterErr):
		return "invalid-filter-type"
	case errors.As(err, &checksumErr):
		return "checksum"
	case errors.As(err, &unsupportedErr):
		return "unsupported-feature"
	}
	return "error"
}
