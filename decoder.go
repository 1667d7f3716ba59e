// Package pngraw decodes non-interlaced PNG images into raw, unfiltered pixel
// buffers. It walks the chunk container through a random-access ByteSource,
// inflates the concatenated IDAT payload and reverses the per-row filters.
package pngraw

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/svanichkin/pngraw/internal/oops"
)

// Stage names reported to an Observer.
const (
	StageRead     = "read"
	StageInflate  = "inflate"
	StageDefilter = "defilter"
)

// Observer is told when each decode stage starts and ends. Stages never
// overlap and always end, including on failure.
type Observer interface {
	StartStage(name string)
	EndStage(name string)
}

type nopObserver struct{}

func (nopObserver) StartStage(string) {}
func (nopObserver) EndStage(string)   {}

// Options specifies decoding parameters. The zero value decodes every
// direct-color mode permissively without checksum verification.
type Options struct {
	// Logger receives diagnostic output. Nil disables logging.
	Logger *zerolog.Logger
	// Observer receives stage timings. Nil disables it.
	Observer Observer
	// Modes is the set of accepted color modes. Zero means DefaultModes.
	Modes ModeSet
	// VerifyChecksums checks the CRC of every chunk, skipped chunks included.
	VerifyChecksums bool
	// Strict follows the container format exactly: a zero-length chunk other
	// than IEND is skipped instead of ending the chunk walk.
	Strict bool
	// Parallel copies None-filtered rows concurrently before reconstructing
	// the remaining rows in order.
	Parallel bool
	// InflateBufferSize is the scratch buffer size of the inflate loop.
	// Zero means DefaultInflateBufferSize.
	InflateBufferSize int
}

// Image is a decoded PNG. Pix holds Height rows of Stride bytes each.
type Image struct {
	Header        ImageHeader
	BytesPerPixel int
	Stride        int
	Pix           []byte
	// Notes lists compatibility relaxations applied during decoding.
	Notes []string
}

func (img *Image) Width() int  { return int(img.Header.Width) }
func (img *Image) Height() int { return int(img.Header.Height) }

// Decoder holds decode options. It keeps no per-decode state and is safe for
// concurrent use.
type Decoder struct {
	opts Options
}

// NewDecoder fills in defaults for the unset fields of opts.
func NewDecoder(opts Options) *Decoder {
	if opts.Modes == 0 {
		opts.Modes = DefaultModes
	}
	if opts.InflateBufferSize <= 0 {
		opts.InflateBufferSize = DefaultInflateBufferSize
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &Decoder{opts: opts}
}

// Decode decodes the PNG in src with opts, which may be nil.
func Decode(src ByteSource, opts *Options) (*Image, error) {
	if opts == nil {
		opts = &Options{}
	}
	return NewDecoder(*opts).Decode(src)
}

// DecodeFile opens path and decodes it.
func DecodeFile(path string, opts *Options) (*Image, error) {
	src, err := OpenFile(path)
	if err != nil {
		return nil, oops.New(err, "failed to open image")
	}
	defer src.Close()
	return Decode(src, opts)
}

// Decode runs the chunk walk, inflate and defilter stages. It returns either
// a complete image or an error, never both.
func (d *Decoder) Decode(src ByteSource) (*Image, error) {
	log := d.opts.Logger.With().Str("decode_id", uuid.NewString()).Logger()

	d.opts.Observer.StartStage(StageRead)
	hdr, compressed, notes, err := d.readChunks(src, &log)
	d.opts.Observer.EndStage(StageRead)
	if err != nil {
		return nil, oops.New(err, "failed to read chunks")
	}
	for _, note := range notes {
		log.Warn().Msg(note)
	}

	bpp := hdr.BytesPerPixel()
	width, height := int(hdr.Width), int(hdr.Height)
	want := (1 + width*bpp) * height

	d.opts.Observer.StartStage(StageInflate)
	filtered, err := inflate(compressed, want, d.opts.InflateBufferSize)
	d.opts.Observer.EndStage(StageInflate)
	if err != nil {
		return nil, oops.New(err, "failed to inflate image data")
	}
	log.Debug().
		Int("compressed", len(compressed)).
		Int("inflated", len(filtered)).
		Msg("inflated image data")

	d.opts.Observer.StartStage(StageDefilter)
	var pix []byte
	if d.opts.Parallel {
		pix, err = defilterParallel(filtered, width, height, bpp)
	} else {
		pix, err = defilter(filtered, width, height, bpp)
	}
	d.opts.Observer.EndStage(StageDefilter)
	if err != nil {
		return nil, oops.New(err, "failed to reconstruct scanlines")
	}

	log.Debug().
		Uint32("width", hdr.Width).
		Uint32("height", hdr.Height).
		Stringer("mode", hdr.ColorMode).
		Uint8("depth", hdr.BitDepth).
		Msg("decoded image")

	return &Image{
		Header:        hdr,
		BytesPerPixel: bpp,
		Stride:        width * bpp,
		Pix:           pix,
		Notes:         notes,
	}, nil
}

// readChunks walks the container, parsing IHDR and collecting IDAT payloads
// in encounter order.
func (d *Decoder) readChunks(src ByteSource, log *zerolog.Logger) (ImageHeader, []byte, []string, error) {
	w, err := newWalk(src, d.opts.Strict, d.opts.VerifyChecksums)
	if err != nil {
		return ImageHeader{}, nil, nil, err
	}

	var (
		hdr        ImageHeader
		seenHeader bool
		seenData   bool
		compressed []byte
		notes      []string
	)
	for {
		c, ok, err := w.next()
		if err != nil {
			return ImageHeader{}, nil, nil, err
		}
		if !ok {
			break
		}
		log.Debug().
			Stringer("tag", c.Tag).
			Int64("offset", c.Offset).
			Uint32("length", c.Length).
			Msg("chunk")

		switch c.Tag {
		case TagHeader:
			if seenHeader || seenData {
				return ImageHeader{}, nil, nil, errChunkOrder
			}
			payload, err := w.payload(c)
			if err != nil {
				return ImageHeader{}, nil, nil, err
			}
			hdr, err = parseHeader(payload, d.opts.Modes)
			if err != nil {
				return ImageHeader{}, nil, nil, err
			}
			seenHeader = true
		case TagData:
			if !seenHeader {
				return ImageHeader{}, nil, nil, &MissingHeaderError{Tag: c.Tag, Offset: c.Offset}
			}
			payload, err := w.payload(c)
			if err != nil {
				return ImageHeader{}, nil, nil, err
			}
			compressed = append(compressed, payload...)
			seenData = true
		case TagTrailer:
			if !seenHeader {
				return ImageHeader{}, nil, nil, &MissingHeaderError{Tag: c.Tag, Offset: c.Offset}
			}
			if err := w.skip(c); err != nil {
				return ImageHeader{}, nil, nil, err
			}
		default:
			if err := w.skip(c); err != nil {
				return ImageHeader{}, nil, nil, err
			}
		}
	}

	if w.zeroStop != nil {
		notes = append(notes, "chunk walk stopped at zero-length "+w.zeroStop.Tag.String()+" chunk before IEND")
	}
	if !seenHeader {
		missing := &MissingHeaderError{Tag: TagTrailer, Offset: w.offset}
		if w.zeroStop != nil {
			missing.Tag, missing.Offset = w.zeroStop.Tag, w.zeroStop.Offset
		}
		return ImageHeader{}, nil, nil, missing
	}
	return hdr, compressed, notes, nil
}
