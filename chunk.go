package pngraw

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const pngSignature = "\x89PNG\r\n\x1a\n"

const (
	signatureLength = 8
	// length field, tag and trailing checksum
	chunkOverhead  = 12
	maxChunkLength = 0x7fffffff
)

// Tag is a chunk type. Tags are raw bytes and may contain zeros.
type Tag [4]byte

var (
	TagHeader  = Tag{'I', 'H', 'D', 'R'}
	TagData    = Tag{'I', 'D', 'A', 'T'}
	TagTrailer = Tag{'I', 'E', 'N', 'D'}
)

func (t Tag) String() string {
	for _, c := range t {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("%q", string(t[:]))
		}
	}
	return string(t[:])
}

// Critical reports whether the tag's first letter is upper case.
func (t Tag) Critical() bool {
	return t[0]&0x20 == 0
}

// Chunk is a view of one chunk record in a ByteSource. The payload starts at
// Offset+8 and the checksum follows the payload.
type Chunk struct {
	Offset int64
	Length uint32
	Tag    Tag
}

func (c Chunk) PayloadOffset() int64 { return c.Offset + 8 }

func (c Chunk) ChecksumOffset() int64 { return c.Offset + 8 + int64(c.Length) }

// next is the offset of the following chunk.
func (c Chunk) next() int64 { return c.Offset + chunkOverhead + int64(c.Length) }

// walkState carries the per-walk stopping rules shared by decode and
// WalkChunks.
type walkState struct {
	src    ByteSource
	strict bool
	verify bool
	offset int64
	done   bool
	// set when the walk ended on a zero-length chunk that is not IEND
	zeroStop *Chunk
}

func newWalk(src ByteSource, strict, verify bool) (*walkState, error) {
	sig, err := readFull(src, 0, signatureLength)
	if err != nil {
		return nil, err
	}
	if string(sig) != pngSignature {
		return nil, &FormatError{Msg: "not a PNG file"}
	}
	return &walkState{src: src, strict: strict, verify: verify, offset: signatureLength}, nil
}

// next reads the next chunk's length and tag. It returns ok=false once the
// walk has terminated.
func (w *walkState) next() (Chunk, bool, error) {
	if w.done {
		return Chunk{}, false, nil
	}
	head, err := readFull(w.src, w.offset, 8)
	if err != nil {
		return Chunk{}, false, err
	}
	c := Chunk{Offset: w.offset, Length: binary.BigEndian.Uint32(head[0:4])}
	copy(c.Tag[:], head[4:8])
	if c.Length > maxChunkLength {
		return Chunk{}, false, &FormatError{Msg: fmt.Sprintf("bad chunk length %d at offset %d", c.Length, c.Offset)}
	}
	if end := c.next(); end > w.src.Len() {
		return Chunk{}, false, &TruncatedInputError{
			Offset: c.Offset,
			Want:   int(chunkOverhead + int64(c.Length)),
			Got:    int(w.src.Len() - c.Offset),
		}
	}
	w.offset = c.next()

	switch {
	case c.Tag == TagTrailer:
		w.done = true
	case c.Length == 0 && !w.strict:
		// Permissive: the walk treats any empty chunk as the end of the
		// image. Strict readers skip it like any other chunk.
		w.done = true
		stop := c
		w.zeroStop = &stop
	}
	return c, true, nil
}

// payload reads the chunk payload, verifying the checksum when enabled.
func (w *walkState) payload(c Chunk) ([]byte, error) {
	if !w.verify {
		return readFull(w.src, c.PayloadOffset(), int(c.Length))
	}
	// tag + payload + checksum in one read
	b, err := readFull(w.src, c.Offset+4, int(c.Length)+8)
	if err != nil {
		return nil, err
	}
	if err := checkCRC(c, b); err != nil {
		return nil, err
	}
	return b[4 : 4+c.Length], nil
}

// skip verifies the checksum of a chunk whose payload is otherwise ignored.
func (w *walkState) skip(c Chunk) error {
	if !w.verify {
		return nil
	}
	_, err := w.payload(c)
	return err
}

// checkCRC checks a tag+payload+checksum record.
func checkCRC(c Chunk, b []byte) error {
	n := len(b) - 4
	want := binary.BigEndian.Uint32(b[n:])
	got := crc32.ChecksumIEEE(b[:n])
	if want != got {
		return &ChecksumError{Tag: c.Tag, Offset: c.Offset, Want: want, Got: got}
	}
	return nil
}

// ChunkInfo is passed to WalkChunks callbacks.
type ChunkInfo struct {
	Chunk
	// ChecksumOK is only meaningful when Checked is set.
	Checked    bool
	ChecksumOK bool
	// Terminal is set on the chunk that ended the walk.
	Terminal bool
}

// WalkChunks calls fn for every chunk in src in file order, using the same
// termination rules as Decode. When verify is set each chunk's checksum is
// computed and reported instead of failing the walk.
func WalkChunks(src ByteSource, strict, verify bool, fn func(ChunkInfo) error) error {
	w, err := newWalk(src, strict, false)
	if err != nil {
		return err
	}
	for {
		c, ok, err := w.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		info := ChunkInfo{Chunk: c, Terminal: w.done}
		if verify {
			b, err := readFull(src, c.Offset+4, int(c.Length)+8)
			if err != nil {
				return err
			}
			info.Checked = true
			info.ChecksumOK = checkCRC(c, b) == nil
		}
		if err := fn(info); err != nil {
			return err
		}
	}
}
