package ppm

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"flipnote-backend/models"
)

// Cursor is a little-endian reader over an in-memory file with explicit positioning
type Cursor struct {
	data []byte
	pos  int
}

func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

func (c *Cursor) Pos() int { return c.pos }
func (c *Cursor) Len() int { return len(c.data) }

// Remaining is the number of unread bytes
func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

func (c *Cursor) Seek(offset int) error {
	if offset < 0 || offset > len(c.data) {
		return fmt.Errorf("%w: seek to 0x%X past end of data (0x%X)", models.ErrFormat, offset, len(c.data))
	}
	c.pos = offset
	return nil
}

func (c *Cursor) Skip(n int) error {
	return c.Seek(c.pos + n)
}

// AlignPadding is the number of bytes needed to bring pos up to a multiple of align
func AlignPadding(pos, align int) int {
	return (align - pos%align) % align
}

// SkipPadding advances to the next multiple of align
func (c *Cursor) SkipPadding(align int) error {
	return c.Skip(AlignPadding(c.pos, align))
}

func (c *Cursor) take(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.data) {
		return nil, fmt.Errorf("%w: read of %d bytes at 0x%X overruns data (0x%X)", models.ErrFormat, n, c.pos, len(c.data))
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadBytes returns a copy of the next n bytes
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	b, err := c.take(n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b), nil
}

func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) ReadI8() (int8, error) {
	v, err := c.ReadU8()
	return int8(v), err
}

func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU32BE reads the big-endian chunk flag words of coded lines
func (c *Cursor) ReadU32BE() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Writer is the little-endian counterpart of Cursor
type Writer struct {
	buf bytes.Buffer
}

func (w *Writer) Pos() int      { return w.buf.Len() }
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) WriteU8(v uint8)     { w.buf.WriteByte(v) }
func (w *Writer) WriteI8(v int8)      { w.buf.WriteByte(byte(v)) }
func (w *Writer) WriteBytes(b []byte) { w.buf.Write(b) }

func (w *Writer) WriteU16(v uint16) {
	w.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
}

func (w *Writer) WriteU32(v uint32) {
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func (w *Writer) WriteU64(v uint64) {
	w.buf.Write(binary.LittleEndian.AppendUint64(nil, v))
}

func (w *Writer) WriteU32BE(v uint32) {
	w.buf.Write(binary.BigEndian.AppendUint32(nil, v))
}

// Pad writes n zero bytes
func (w *Writer) Pad(n int) {
	for range n {
		w.buf.WriteByte(0)
	}
}

// Align pads with zeros to the next multiple of align
func (w *Writer) Align(align int) {
	w.Pad(AlignPadding(w.Pos(), align))
}
