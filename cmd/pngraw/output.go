package main

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/svanichkin/pngraw"
	"github.com/svanichkin/pngraw/internal/oops"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Preview bounds for --fit.
const (
	maxPreviewWidth  = 900
	maxPreviewHeight = 500
)

// fitSize shrinks width and height by the largest whole factor by which the
// image exceeds the preview bounds. Images within the bounds keep their size.
func fitSize(width, height int) (int, int) {
	scale := height / maxPreviewHeight
	if ws := width / maxPreviewWidth; ws > scale {
		scale = ws
	}
	if scale <= 1 {
		return width, height
	}
	return width / scale, height / scale
}

// fit returns img scaled down to the preview bounds, or img itself if it
// already fits.
func fit(img *pngraw.Image) *pngraw.Image {
	w, h := fitSize(img.Width(), img.Height())
	if w == img.Width() && h == img.Height() {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	src := img.ToImage()
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return pngraw.FromImage(dst)
}

type outputFormat func(w io.Writer, img *pngraw.Image) error

var outputFormats = map[string]outputFormat{
	".png": writePNG,
	".bmp": writeBMP,
	".ppm": writePNM,
	".pnm": writePNM,
	".pgm": writePNM,
	".pxz": pngraw.WriteRaw,
}

func formatFor(path string) (outputFormat, error) {
	ext := strings.ToLower(filepath.Ext(path))
	format, ok := outputFormats[ext]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q", ext)
	}
	return format, nil
}

// writeOutput writes img to path in the format named by its extension. A
// failed write removes the partial file.
func writeOutput(path string, img *pngraw.Image) (err error) {
	format, err := formatFor(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return oops.New(err, "failed to create output file")
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	bw := bufio.NewWriter(f)
	if err := format(bw, img); err != nil {
		return oops.New(err, "failed to write %s", path)
	}
	return bw.Flush()
}

// writePNG re-encodes img losslessly. Indexed images are written as gray
// since no palette is kept.
func writePNG(w io.Writer, img *pngraw.Image) error {
	hdr := img.Header
	if hdr.ColorMode == pngraw.Indexed {
		hdr.ColorMode = pngraw.Grayscale
	}
	return pngraw.Encode(w, hdr, img.Pix, &pngraw.EncodeOptions{Filter: pngraw.FilterAdaptive})
}

func writeBMP(w io.Writer, img *pngraw.Image) error {
	return bmp.Encode(w, img.ToImage())
}

// writePNM writes a binary PGM (P5) for gray images or PPM (P6) otherwise.
// Alpha is dropped; 16-bit samples are written big-endian with maxval 65535.
func writePNM(w io.Writer, img *pngraw.Image) error {
	hdr := img.Header
	sample := int(hdr.BitDepth) / 8
	maxval := 1<<hdr.BitDepth - 1

	magic, keep := "P6", 3
	switch hdr.ColorMode {
	case pngraw.Grayscale, pngraw.GrayscaleAlpha, pngraw.Indexed:
		magic, keep = "P5", 1
	}
	if _, err := fmt.Fprintf(w, "%s\n%d %d\n%d\n", magic, hdr.Width, hdr.Height, maxval); err != nil {
		return err
	}

	if keep == hdr.ColorMode.Channels() {
		_, err := w.Write(img.Pix)
		return err
	}
	px := hdr.ColorMode.Channels() * sample
	out := make([]byte, 0, img.Width()*keep*sample)
	for y := 0; y < img.Height(); y++ {
		out = out[:0]
		row := img.Pix[y*img.Stride : (y+1)*img.Stride]
		for x := 0; x < img.Width(); x++ {
			out = append(out, row[x*px:x*px+keep*sample]...)
		}
		if _, err := w.Write(out); err != nil {
			return err
		}
	}
	return nil
}
