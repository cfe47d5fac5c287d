package ppm

import (
	"fmt"

	"flipnote-backend/models"
)

// LineEncoding selects how one 256 pixel scanline is packed
type LineEncoding uint8

const (
	LineSkip LineEncoding = iota
	LineCoded
	LineInvertedCoded
	LineRaw
)

func (e LineEncoding) String() string {
	switch e {
	case LineSkip:
		return "skip"
	case LineCoded:
		return "coded"
	case LineInvertedCoded:
		return "inverted"
	case LineRaw:
		return "raw"
	}
	return fmt.Sprintf("LineEncoding(%d)", uint8(e))
}

const (
	chunkCount = ScreenWidth / 8
	rawLineLen = ScreenWidth / 8
)

// Line is one scanline of 0/1 pixels
type Line [ScreenWidth]uint8

// Layer is one binary raster plane
type Layer [ScreenHeight]Line

func (l *Layer) Get(x, y int) (uint8, error) {
	if x < 0 || x >= ScreenWidth || y < 0 || y >= ScreenHeight {
		return 0, fmt.Errorf("%w: pixel (%d, %d) outside layer", models.ErrBounds, x, y)
	}
	return l[y][x], nil
}

func (l *Layer) Set(x, y int, v uint8) error {
	if x < 0 || x >= ScreenWidth || y < 0 || y >= ScreenHeight {
		return fmt.Errorf("%w: pixel (%d, %d) outside layer", models.ErrBounds, x, y)
	}
	l[y][x] = v & 1
	return nil
}

// unpackSelectors expands a 48 byte selector block, two bits per line.
// Line 0 sits in bits 0-1 of the first byte, the order the handheld writes.
func unpackSelectors(block []byte) [ScreenHeight]LineEncoding {
	var out [ScreenHeight]LineEncoding
	for i := range out {
		out[i] = LineEncoding(block[i/4]>>((i%4)*2)) & 0x3
	}
	return out
}

func packSelectors(encodings *[ScreenHeight]LineEncoding) []byte {
	block := make([]byte, lineSelectorSize)
	for i, e := range encodings {
		block[i/4] |= byte(e&0x3) << ((i % 4) * 2)
	}
	return block
}

func unpackByte(b byte, dst []uint8) {
	for k := range 8 {
		dst[k] = (b >> k) & 1
	}
}

func packByte(src []uint8) byte {
	var b byte
	for k := range 8 {
		b |= (src[k] & 1) << k
	}
	return b
}

func decodeLine(c *Cursor, enc LineEncoding, line *Line) error {
	switch enc {
	case LineSkip:
		*line = Line{}
	case LineCoded, LineInvertedCoded:
		fill := uint8(0)
		if enc == LineInvertedCoded {
			fill = 1
		}
		for i := range line {
			line[i] = fill
		}

		flags, err := c.ReadU32BE()
		if err != nil {
			return err
		}
		for chunk := range chunkCount {
			if flags&(0x80000000>>chunk) == 0 {
				continue
			}
			b, err := c.ReadU8()
			if err != nil {
				return err
			}
			unpackByte(b, line[chunk*8:chunk*8+8])
		}
	case LineRaw:
		raw, err := c.take(rawLineLen)
		if err != nil {
			return err
		}
		for i, b := range raw {
			unpackByte(b, line[i*8:i*8+8])
		}
	default:
		return fmt.Errorf("%w: unknown line encoding %d", models.ErrFormat, enc)
	}
	return nil
}

// chooseEncoding picks the smallest encoding that reproduces the line.
// Ties prefer coded, then inverted, then raw.
func chooseEncoding(line *Line) LineEncoding {
	zeroChunks, oneChunks := 0, 0
	for chunk := range chunkCount {
		b := packByte(line[chunk*8 : chunk*8+8])
		if b == 0x00 {
			zeroChunks++
		}
		if b == 0xFF {
			oneChunks++
		}
	}
	if zeroChunks == chunkCount {
		return LineSkip
	}

	coded := 4 + chunkCount - zeroChunks
	inverted := 4 + chunkCount - oneChunks
	switch {
	case coded <= inverted && coded <= rawLineLen:
		return LineCoded
	case inverted <= rawLineLen:
		return LineInvertedCoded
	}
	return LineRaw
}

func encodeLine(w *Writer, enc LineEncoding, line *Line) {
	switch enc {
	case LineCoded, LineInvertedCoded:
		skip := byte(0x00)
		if enc == LineInvertedCoded {
			skip = 0xFF
		}
		var flags uint32
		var chunks []byte
		for chunk := range chunkCount {
			b := packByte(line[chunk*8 : chunk*8+8])
			if b == skip {
				continue
			}
			flags |= 0x80000000 >> chunk
			chunks = append(chunks, b)
		}
		w.WriteU32BE(flags)
		w.WriteBytes(chunks)
	case LineRaw:
		for chunk := range chunkCount {
			w.WriteU8(packByte(line[chunk*8 : chunk*8+8]))
		}
	}
}
