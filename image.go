package pngraw

import (
	"image"

	"golang.org/x/image/draw"
)

// ToImage returns img as an image.Image for display. 8-bit gray, 16-bit gray,
// 8-bit RGBA and 16-bit RGBA images share Pix; other modes are converted.
// Indexed images come back as gray palette indices.
func (img *Image) ToImage() image.Image {
	w, h := img.Width(), img.Height()
	rect := image.Rect(0, 0, w, h)
	deep := img.Header.BitDepth == 16

	switch img.Header.ColorMode {
	case Grayscale, Indexed:
		if deep {
			return &image.Gray16{Pix: img.Pix, Stride: img.Stride, Rect: rect}
		}
		return &image.Gray{Pix: img.Pix, Stride: img.Stride, Rect: rect}
	case TruecolorAlpha:
		if deep {
			return &image.NRGBA64{Pix: img.Pix, Stride: img.Stride, Rect: rect}
		}
		return &image.NRGBA{Pix: img.Pix, Stride: img.Stride, Rect: rect}
	}

	// Gray+alpha and truecolor expand to RGBA sample by sample. Samples are
	// big-endian in both the PNG data and image.NRGBA64.
	sample := 1
	if deep {
		sample = 2
	}
	channels := img.Header.ColorMode.Channels()
	var dstPix []byte
	var dst image.Image
	if deep {
		nrgba := image.NewNRGBA64(rect)
		dstPix, dst = nrgba.Pix, nrgba
	} else {
		nrgba := image.NewNRGBA(rect)
		dstPix, dst = nrgba.Pix, nrgba
	}
	d := 0
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : (y+1)*img.Stride]
		for x := 0; x < w; x++ {
			px := row[x*channels*sample : (x+1)*channels*sample]
			var r, g, b, a []byte
			switch img.Header.ColorMode {
			case GrayscaleAlpha:
				r, a = px[:sample], px[sample:]
				g, b = r, r
			case Truecolor:
				r, g, b = px[:sample], px[sample:2*sample], px[2*sample:]
			}
			d += copy(dstPix[d:], r)
			d += copy(dstPix[d:], g)
			d += copy(dstPix[d:], b)
			if a != nil {
				d += copy(dstPix[d:], a)
			} else {
				for i := 0; i < sample; i++ {
					dstPix[d] = 0xff
					d++
				}
			}
		}
	}
	return dst
}

// FromImage copies any image.Image into an 8-bit truecolor+alpha Image with
// bounds starting at (0,0).
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return &Image{
		Header: ImageHeader{
			Width:     uint32(b.Dx()),
			Height:    uint32(b.Dy()),
			BitDepth:  8,
			ColorMode: TruecolorAlpha,
		},
		BytesPerPixel: 4,
		Stride:        dst.Stride,
		Pix:           dst.Pix,
	}
}
