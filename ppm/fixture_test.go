package ppm

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unicode/utf16"
)

type fixture struct {
	frames   [][]byte
	flags    uint16
	effects  []byte
	tracks   [4][]byte
	speed    uint8
	bgmSpeed uint8
	author   string
}

// firstFrame is a normal frame on white paper with a red layer 2:
//
//	layer 1 line 0 raw 0xAA (odd pixels set)
//	layer 1 line 1 coded, chunk 0 = 0x0F, chunk 31 = 0xF0
//	layer 1 line 2 inverted, chunk 1 cleared
//	layer 2 line 0 coded, chunk 0 = 0xFF
func firstFrame() []byte {
	var b bytes.Buffer
	b.WriteByte(0x80 | 0x01 | 2<<3)

	sel1 := make([]byte, 0x30)
	sel1[0] = 3 | 1<<2 | 2<<4
	sel2 := make([]byte, 0x30)
	sel2[0] = 1
	b.Write(sel1)
	b.Write(sel2)

	b.Write(bytes.Repeat([]byte{0xAA}, 32))
	b.Write([]byte{0x80, 0x00, 0x00, 0x01, 0x0F, 0xF0})
	b.Write([]byte{0x40, 0x00, 0x00, 0x00, 0x00})
	b.Write([]byte{0x80, 0x00, 0x00, 0x00, 0xFF})
	return b.Bytes()
}

// shiftedFrame is a diffed frame with an empty delta, translated one pixel right
func shiftedFrame() []byte {
	var b bytes.Buffer
	b.WriteByte(0x20 | 0x01)
	b.WriteByte(1)
	b.WriteByte(0)
	b.Write(make([]byte, 0x60))
	return b.Bytes()
}

func defaultFixture() fixture {
	return fixture{
		frames:   [][]byte{firstFrame(), shiftedFrame()},
		flags:    0x02,
		effects:  []byte{0x01, 0x00},
		tracks:   [4][]byte{nil, {0x77, 0x77, 0x07, 0x00}, nil, nil},
		speed:    3,
		bgmSpeed: 3,
		author:   "Alice",
	}
}

func (fx fixture) build(t *testing.T) []byte {
	t.Helper()
	le := binary.LittleEndian

	var blob []byte
	var offsets []uint32
	for _, fr := range fx.frames {
		offsets = append(offsets, uint32(len(blob)))
		blob = append(blob, fr...)
	}
	tableSize := len(offsets) * 4
	animSize := 8 + tableSize + len(blob)

	soundSize := 0
	for _, tr := range fx.tracks {
		soundSize += len(tr)
	}

	var b bytes.Buffer
	b.WriteString("PARA")
	binary.Write(&b, le, uint32(animSize))
	binary.Write(&b, le, uint32(soundSize))
	binary.Write(&b, le, uint16(len(fx.frames)-1))
	binary.Write(&b, le, uint16(0x24))

	meta := make([]byte, 0x90)
	le.PutUint16(meta[0x00:], 1) // locked
	for i, u := range utf16.Encode([]rune(fx.author)) {
		le.PutUint16(meta[0x30+i*2:], u) // current author at 0x40
	}
	le.PutUint64(meta[0x4E:], 0x1122334455667788) // current author id at 0x5E
	copy(meta[0x68:], []byte{0xAB, 0xCD, 0xEF})   // current filename at 0x78
	copy(meta[0x6B:], "0123456789ABC")
	le.PutUint16(meta[0x78:], 7)
	le.PutUint32(meta[0x8A:], 86400) // timestamp at 0x9A
	b.Write(meta)

	thumb := make([]byte, ThumbnailSize)
	thumb[0] = 0x41
	b.Write(thumb)

	binary.Write(&b, le, uint16(tableSize))
	b.Write(make([]byte, 4))
	binary.Write(&b, le, fx.flags)
	for _, off := range offsets {
		binary.Write(&b, le, off)
	}
	b.Write(blob)

	b.Write(fx.effects)
	for b.Len()%4 != 0 {
		b.WriteByte(0)
	}
	for _, tr := range fx.tracks {
		binary.Write(&b, le, uint32(len(tr)))
	}
	b.WriteByte(fx.speed)
	b.WriteByte(fx.bgmSpeed)
	b.Write(make([]byte, 14))
	for _, tr := range fx.tracks {
		b.Write(tr)
	}

	b.Write(make([]byte, 0x90))
	return b.Bytes()
}

func loadFixture(t *testing.T, fx fixture) *File {
	t.Helper()
	f, err := Load(fx.build(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return f
}
