package pngraw

import (
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// FilterType is the per-row prediction filter selector.
type FilterType uint8

const (
	FilterNone FilterType = iota
	FilterSub
	FilterUp
	FilterAverage
	FilterPaeth
	nFilter
)

var filterNames = [nFilter]string{"none", "sub", "up", "average", "paeth"}

func (f FilterType) String() string {
	if f < nFilter {
		return filterNames[f]
	}
	return "invalid"
}

// ParseFilterType accepts the names printed by FilterType.String and
// "adaptive".
func ParseFilterType(s string) (FilterType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "adaptive" {
		return FilterAdaptive, nil
	}
	for i, name := range filterNames {
		if name == s {
			return FilterType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown filter type %q", s)
}

// paeth returns whichever of left, up and upLeft is closest to
// left + up - upLeft, preferring left, then up.
func paeth(left, up, upLeft uint8) uint8 {
	p := int(left) + int(up) - int(upLeft)
	pa := abs(p - int(left))
	pb := abs(p - int(up))
	pc := abs(p - int(upLeft))
	if pa <= pb && pa <= pc {
		return left
	} else if pb <= pc {
		return up
	}
	return upLeft
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// unfilterRow reconstructs cdat in place. pdat is the previous reconstructed
// row, all zeros for the first row. Arithmetic wraps modulo 256.
func unfilterRow(ft FilterType, cdat, pdat []uint8, bpp int) {
	switch ft {
	case FilterNone:
		// No-op.
	case FilterSub:
		for i := bpp; i < len(cdat); i++ {
			cdat[i] += cdat[i-bpp]
		}
	case FilterUp:
		for i, p := range pdat {
			cdat[i] += p
		}
	case FilterAverage:
		// The first pixel has nothing to its left.
		for i := 0; i < bpp && i < len(cdat); i++ {
			cdat[i] += pdat[i] / 2
		}
		for i := bpp; i < len(cdat); i++ {
			cdat[i] += uint8((int(cdat[i-bpp]) + int(pdat[i])) / 2)
		}
	case FilterPaeth:
		// With left and upLeft both zero the predictor is up.
		for i := 0; i < bpp && i < len(cdat); i++ {
			cdat[i] += pdat[i]
		}
		for i := bpp; i < len(cdat); i++ {
			cdat[i] += paeth(cdat[i-bpp], pdat[i], pdat[i-bpp])
		}
	}
}

// defilter reverses the row filters of an inflated scanline buffer of
// height rows, each 1 + width*bpp bytes, into a new pixel buffer.
func defilter(filtered []byte, width, height, bpp int) ([]byte, error) {
	stride := width * bpp
	rowSize := stride + 1
	if want := rowSize * height; len(filtered) != want {
		return nil, &SizeMismatchError{Want: want, Got: len(filtered)}
	}

	pix := make([]byte, stride*height)
	zero := make([]byte, stride)
	pdat := zero
	for y := 0; y < height; y++ {
		row := filtered[y*rowSize : (y+1)*rowSize]
		ft := FilterType(row[0])
		if ft >= nFilter {
			return nil, &InvalidFilterTypeError{Row: y, Offset: y * rowSize, Filter: row[0]}
		}
		cdat := pix[y*stride : (y+1)*stride]
		copy(cdat, row[1:])
		unfilterRow(ft, cdat, pdat, bpp)
		pdat = cdat
	}
	return pix, nil
}

// defilterParallel produces the same output as defilter. Rows filtered with
// None depend on no other row and are copied concurrently first; every other
// row is then reconstructed in order, since it needs the row above it.
func defilterParallel(filtered []byte, width, height, bpp int) ([]byte, error) {
	stride := width * bpp
	rowSize := stride + 1
	if want := rowSize * height; len(filtered) != want {
		return nil, &SizeMismatchError{Want: want, Got: len(filtered)}
	}

	var noneRows []int
	for y := 0; y < height; y++ {
		f := filtered[y*rowSize]
		if f >= byte(nFilter) {
			return nil, &InvalidFilterTypeError{Row: y, Offset: y * rowSize, Filter: f}
		}
		if FilterType(f) == FilterNone {
			noneRows = append(noneRows, y)
		}
	}

	pix := make([]byte, stride*height)

	workers := runtime.NumCPU()
	var g errgroup.Group
	g.SetLimit(workers)
	per := (len(noneRows) + workers - 1) / workers
	for start := 0; start < len(noneRows); start += per {
		end := start + per
		if end > len(noneRows) {
			end = len(noneRows)
		}
		rows := noneRows[start:end]
		g.Go(func() error {
			for _, y := range rows {
				copy(pix[y*stride:(y+1)*stride], filtered[y*rowSize+1:(y+1)*rowSize])
			}
			return nil
		})
	}
	g.Wait()

	zero := make([]byte, stride)
	pdat := zero
	for y := 0; y < height; y++ {
		cdat := pix[y*stride : (y+1)*stride]
		ft := FilterType(filtered[y*rowSize])
		if ft != FilterNone {
			copy(cdat, filtered[y*rowSize+1:(y+1)*rowSize])
			unfilterRow(ft, cdat, pdat, bpp)
		}
		pdat = cdat
	}
	return pix, nil
}
