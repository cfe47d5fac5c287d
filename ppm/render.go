package ppm

import (
	"fmt"
	"image"
	"image/color"

	"flipnote-backend/models"
)

// PaletteMapper is the image collaborator used for thumbnail and frame imports
type PaletteMapper interface {
	// Resize scales img to exactly width x height
	Resize(img image.Image, width, height int) image.Image
	// Quantize maps every pixel to a palette index, row-major
	Quantize(img image.Image, palette color.Palette) []uint8
}

// Image composites the frame: paper, then layer 2, then layer 1.
// Hidden layers come from the animation flags.
func (f *Frame) Image(flags AnimationFlags) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, ScreenWidth, ScreenHeight))
	f.draw(img.Pix, flags)
	return img
}

// RGBA returns the composited frame as packed 8-bit RGBA
func (f *Frame) RGBA(flags AnimationFlags) []byte {
	pix := make([]byte, ScreenWidth*ScreenHeight*4)
	f.draw(pix, flags)
	return pix
}

func (f *Frame) draw(pix []byte, flags AnimationFlags) {
	paper := f.Header.Paper()
	paperRGBA := paper.RGBA()
	ink1, _ := f.Header.LayerColor(1)
	ink2, _ := f.Header.LayerColor(2)
	rgba1 := ink1.Resolve(paper)
	rgba2 := ink2.Resolve(paper)
	hide1, _ := flags.HideLayer(1)
	hide2, _ := flags.HideLayer(2)

	for y := range ScreenHeight {
		for x := range ScreenWidth {
			c := paperRGBA
			if !hide2 && f.Layers[1][y][x] != 0 {
				c = rgba2
			}
			if !hide1 && f.Layers[0][y][x] != 0 {
				c = rgba1
			}
			copy(pix[(y*ScreenWidth+x)*4:], c[:])
		}
	}
}

// FrameFromImage converts a picture into a normal frame on white paper.
// Black pixels go to layer 1. Red and blue pixels go to layer 2, inked with
// whichever of the two is more common.
func FrameFromImage(img image.Image, mapper PaletteMapper) (*Frame, error) {
	if img == nil || mapper == nil {
		return nil, fmt.Errorf("%w: image and palette mapper are required", models.ErrArgument)
	}

	b := img.Bounds()
	if b.Dx() != ScreenWidth || b.Dy() != ScreenHeight {
		img = mapper.Resize(img, ScreenWidth, ScreenHeight)
	}
	indices := mapper.Quantize(img, FramePalette)
	if len(indices) != ScreenWidth*ScreenHeight {
		return nil, fmt.Errorf("%w: quantized %d pixels, want %d", models.ErrBounds, len(indices), ScreenWidth*ScreenHeight)
	}

	f := NewFrame()
	red, blue := 0, 0
	for i, idx := range indices {
		y, x := i/ScreenWidth, i%ScreenWidth
		switch idx {
		case 1:
			f.Layers[0][y][x] = 1
		case 2:
			red++
			f.Layers[1][y][x] = 1
		case 3:
			blue++
			f.Layers[1][y][x] = 1
		}
	}

	ink := LayerRed
	if blue > red {
		ink = LayerBlue
	}
	if err := f.Header.SetLayerColor(2, ink); err != nil {
		return nil, err
	}
	return f, nil
}
