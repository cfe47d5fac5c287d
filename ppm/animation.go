package ppm

import (
	"fmt"

	"flipnote-backend/models"
)

// AnimationSection is the frame offset table and the packed frame data
type AnimationSection struct {
	Flags    AnimationFlags
	Reserved [4]byte
	Offsets  []uint32
	Data     []byte

	tableSize uint16
	frames    []*Frame
}

// parseAnimation reads the section at 0x6A0. frameCount is the real number of frames.
func parseAnimation(c *Cursor, frameCount int, size uint32) (*AnimationSection, error) {
	if err := c.Seek(offsetAnimation); err != nil {
		return nil, err
	}

	a := &AnimationSection{}
	var err error
	if a.tableSize, err = c.ReadU16(); err != nil {
		return nil, err
	}
	reserved, err := c.take(len(a.Reserved))
	if err != nil {
		return nil, err
	}
	copy(a.Reserved[:], reserved)
	flags, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	a.Flags = AnimationFlags(flags)

	if int(a.tableSize) < frameCount*4 {
		return nil, fmt.Errorf("%w: offset table holds %d bytes, %d frames need %d", models.ErrFormat, a.tableSize, frameCount, frameCount*4)
	}
	a.Offsets = make([]uint32, frameCount)
	for i := range a.Offsets {
		if a.Offsets[i], err = c.ReadU32(); err != nil {
			return nil, err
		}
	}

	dataLen := int64(size) - animationHeaderSize - int64(a.tableSize)
	if dataLen < 0 {
		return nil, fmt.Errorf("%w: animation size 0x%X smaller than its offset table", models.ErrFormat, size)
	}
	if err := c.Seek(offsetFrameTable + int(a.tableSize)); err != nil {
		return nil, err
	}
	if a.Data, err = c.ReadBytes(int(dataLen)); err != nil {
		return nil, err
	}

	if a.frames, err = a.decodeFrames(); err != nil {
		return nil, err
	}
	return a, nil
}

// decodeFrames is a left fold over the offset table, carrying the last decoded frame
func (a *AnimationSection) decodeFrames() ([]*Frame, error) {
	frames := make([]*Frame, 0, len(a.Offsets))
	var prev *Frame
	for i, off := range a.Offsets {
		c := NewCursor(a.Data)
		if int64(off) >= int64(len(a.Data)) {
			return nil, fmt.Errorf("%w: frame %d offset 0x%X past frame data (0x%X)", models.ErrFormat, i, off, len(a.Data))
		}
		if err := c.Seek(int(off)); err != nil {
			return nil, err
		}
		f, err := decodeFrame(c, prev)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		frames = append(frames, f)
		prev = f
	}
	return frames, nil
}

func (a *AnimationSection) FrameCount() int {
	return len(a.Offsets)
}

// Frames returns the decoded frames cached at load
func (a *AnimationSection) Frames() []*Frame {
	return a.frames
}

func (a *AnimationSection) Frame(i int) (*Frame, error) {
	if i < 0 || i >= len(a.frames) {
		return nil, fmt.Errorf("%w: frame %d of %d", models.ErrBounds, i, len(a.frames))
	}
	return a.frames[i], nil
}

// SetFrames re-encodes the section from decoded frames
func (a *AnimationSection) SetFrames(frames []*Frame) error {
	if len(frames) == 0 || len(frames) > MaxFrames {
		return fmt.Errorf("%w: frame count must be between 1 and %d, got %d", models.ErrArgument, MaxFrames, len(frames))
	}

	var w Writer
	offsets := make([]uint32, len(frames))
	cached := make([]*Frame, len(frames))
	var prev *Frame
	for i, f := range frames {
		offsets[i] = uint32(w.Pos())
		w.WriteBytes(encodeFrame(f, prev))
		cached[i] = f.Clone()
		cached[i].Header.SetTranslated(false)
		cached[i].TranslateX, cached[i].TranslateY = 0, 0
		prev = f
	}

	a.Offsets = offsets
	a.Data = w.Bytes()
	a.tableSize = uint16(len(offsets) * 4)
	a.frames = cached
	return nil
}

// Size is the animation_data_size header value
func (a *AnimationSection) Size() uint32 {
	return animationHeaderSize + uint32(a.tableSize) + uint32(len(a.Data))
}

func (a *AnimationSection) write(w *Writer) {
	w.WriteU16(a.tableSize)
	w.WriteBytes(a.Reserved[:])
	w.WriteU16(uint16(a.Flags))
	for _, off := range a.Offsets {
		w.WriteU32(off)
	}
	w.Pad(int(a.tableSize) - len(a.Offsets)*4)
	w.WriteBytes(a.Data)
}
