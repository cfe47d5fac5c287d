package ppm

import (
	"fmt"

	"flipnote-backend/models"
)

// FrameHeader is the one-byte frame bitfield:
//
//	bit 7     frame type, 1 = normal, 0 = diffed
//	bits 5-6  translation present when non-zero
//	bits 3-4  layer 2 colour
//	bits 1-2  layer 1 colour
//	bit 0     paper colour, 1 = white
type FrameHeader uint8

const (
	headerTypeMask      = 0x80
	headerTranslateMask = 0x60
	headerTranslateBit  = 0x20
	headerLayer2Mask    = 0x18
	headerLayer1Mask    = 0x06
	headerPaperMask     = 0x01
)

type FrameType int

const (
	FrameDiffed FrameType = iota
	FrameNormal
)

func (t FrameType) String() string {
	if t == FrameNormal {
		return "normal"
	}
	return "diffed"
}

type PaperColor int

const (
	PaperColorBlack PaperColor = iota
	PaperColorWhite
)

func (p PaperColor) RGBA() [4]uint8 {
	c := PaperBlack
	if p == PaperColorWhite {
		c = PaperWhite
	}
	return [4]uint8{c.R, c.G, c.B, c.A}
}

// Inverse is the opposite paper colour
func (p PaperColor) Inverse() PaperColor {
	if p == PaperColorWhite {
		return PaperColorBlack
	}
	return PaperColorWhite
}

// LayerColor is a layer ink. Stored values 0 and 1 both mean the inverse of the paper.
type LayerColor uint8

const (
	LayerInverse LayerColor = 1
	LayerRed     LayerColor = 2
	LayerBlue    LayerColor = 3
)

func (lc LayerColor) String() string {
	switch lc {
	case LayerRed:
		return "red"
	case LayerBlue:
		return "blue"
	}
	return "inverse"
}

// Resolve returns the RGBA ink for the given paper
func (lc LayerColor) Resolve(paper PaperColor) [4]uint8 {
	switch lc {
	case LayerRed:
		return [4]uint8{InkRed.R, InkRed.G, InkRed.B, InkRed.A}
	case LayerBlue:
		return [4]uint8{InkBlue.R, InkBlue.G, InkBlue.B, InkBlue.A}
	}
	return paper.Inverse().RGBA()
}

func (h FrameHeader) Type() FrameType {
	if h&headerTypeMask != 0 {
		return FrameNormal
	}
	return FrameDiffed
}

func (h *FrameHeader) SetType(t FrameType) {
	*h &^= headerTypeMask
	if t == FrameNormal {
		*h |= headerTypeMask
	}
}

func (h FrameHeader) Translated() bool {
	return h&headerTranslateMask != 0
}

func (h *FrameHeader) SetTranslated(on bool) {
	*h &^= headerTranslateMask
	if on {
		*h |= headerTranslateBit
	}
}

func (h FrameHeader) Paper() PaperColor {
	if h&headerPaperMask != 0 {
		return PaperColorWhite
	}
	return PaperColorBlack
}

func (h *FrameHeader) SetPaper(p PaperColor) {
	*h &^= headerPaperMask
	if p == PaperColorWhite {
		*h |= headerPaperMask
	}
}

// LayerColor returns the ink of layer 1 or 2
func (h FrameHeader) LayerColor(layer int) (LayerColor, error) {
	var v uint8
	switch layer {
	case 1:
		v = uint8(h&headerLayer1Mask) >> 1
	case 2:
		v = uint8(h&headerLayer2Mask) >> 3
	default:
		return 0, fmt.Errorf("%w: layer %d does not exist", models.ErrArgument, layer)
	}
	if v == 0 {
		return LayerInverse, nil
	}
	return LayerColor(v), nil
}

func (h *FrameHeader) SetLayerColor(layer int, c LayerColor) error {
	if c > LayerBlue {
		return fmt.Errorf("%w: invalid layer colour %d", models.ErrArgument, c)
	}
	switch layer {
	case 1:
		*h = *h&^headerLayer1Mask | FrameHeader(c)<<1
	case 2:
		*h = *h&^headerLayer2Mask | FrameHeader(c)<<3
	default:
		return fmt.Errorf("%w: layer %d does not exist", models.ErrArgument, layer)
	}
	return nil
}

// AnimationFlags is the 16-bit flag word of the animation section
type AnimationFlags uint16

const (
	flagLoop       = 0x02
	flagHideLayer1 = 0x10
	flagHideLayer2 = 0x20
)

func (f AnimationFlags) Loop() bool { return f&flagLoop != 0 }

func (f *AnimationFlags) SetLoop(on bool) {
	f.set(flagLoop, on)
}

func (f AnimationFlags) HideLayer(layer int) (bool, error) {
	mask, err := hideMask(layer)
	if err != nil {
		return false, err
	}
	return f&mask != 0, nil
}

func (f *AnimationFlags) SetHideLayer(layer int, hide bool) error {
	mask, err := hideMask(layer)
	if err != nil {
		return err
	}
	f.set(mask, hide)
	return nil
}

func (f *AnimationFlags) set(mask AnimationFlags, on bool) {
	if on {
		*f |= mask
	} else {
		*f &^= mask
	}
}

func hideMask(layer int) (AnimationFlags, error) {
	switch layer {
	case 1:
		return flagHideLayer1, nil
	case 2:
		return flagHideLayer2, nil
	}
	return 0, fmt.Errorf("%w: layer %d does not exist", models.ErrArgument, layer)
}
