package ppm

import (
	"fmt"
	"image"

	"flipnote-backend/models"
)

// Thumbnail is 48 tiles of 8x8 pixels at 4 bits per pixel, tiles left to right
// then top to bottom. Within a byte the low nibble is the left pixel.
type Thumbnail [ThumbnailSize]byte

const tilesPerRow = ThumbnailWidth / 8

func thumbnailByteIndex(x, y int) int {
	tile := (y/8)*tilesPerRow + x/8
	return tile*32 + (y%8)*4 + (x%8)/2
}

// Index is the palette index of one pixel
func (t *Thumbnail) Index(x, y int) (uint8, error) {
	if x < 0 || x >= ThumbnailWidth || y < 0 || y >= ThumbnailHeight {
		return 0, fmt.Errorf("%w: thumbnail pixel (%d, %d)", models.ErrBounds, x, y)
	}
	b := t[thumbnailByteIndex(x, y)]
	if x%2 == 0 {
		return b & 0xF, nil
	}
	return b >> 4, nil
}

func (t *Thumbnail) setIndex(x, y int, idx uint8) {
	i := thumbnailByteIndex(x, y)
	if x%2 == 0 {
		t[i] = t[i]&0xF0 | idx&0xF
	} else {
		t[i] = t[i]&0x0F | idx<<4
	}
}

func (t *Thumbnail) Image() *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, ThumbnailWidth, ThumbnailHeight), ThumbnailPalette)
	for y := range ThumbnailHeight {
		for x := range ThumbnailWidth {
			idx, _ := t.Index(x, y)
			img.SetColorIndex(x, y, idx)
		}
	}
	return img
}

// SetImage resizes img to 64x48 and quantizes it to the thumbnail palette
func (t *Thumbnail) SetImage(img image.Image, mapper PaletteMapper) error {
	if img == nil || mapper == nil {
		return fmt.Errorf("%w: image and palette mapper are required", models.ErrArgument)
	}
	b := img.Bounds()
	if b.Dx() != ThumbnailWidth || b.Dy() != ThumbnailHeight {
		img = mapper.Resize(img, ThumbnailWidth, ThumbnailHeight)
	}
	indices := mapper.Quantize(img, ThumbnailPalette)
	if len(indices) != ThumbnailWidth*ThumbnailHeight {
		return fmt.Errorf("%w: quantized %d pixels, want %d", models.ErrBounds, len(indices), ThumbnailWidth*ThumbnailHeight)
	}
	for i, idx := range indices {
		t.setIndex(i%ThumbnailWidth, i/ThumbnailWidth, idx)
	}
	return nil
}
