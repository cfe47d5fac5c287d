// Package ppm reads and writes Flipnote Studio animation files
package ppm

import "image/color"

const (
	Magic         = "PARA"
	FormatVersion = 0x24
	Extension     = ".ppm"

	ScreenWidth  = 256
	ScreenHeight = 192

	ThumbnailWidth  = 64
	ThumbnailHeight = 48
	ThumbnailSize   = 1536

	// BaseSampleRate is the rate the handheld records and stores every track at
	BaseSampleRate = 8180
	// PlaybackSampleRate is the rate used for exports
	PlaybackSampleRate = 32720

	MaxFrames = 999
)

// Fixed file offsets
const (
	offsetAnimationSize = 0x04
	offsetSoundSize     = 0x08
	offsetFrameCount    = 0x0C
	offsetVersion       = 0x0E
	offsetMetadata      = 0x10
	offsetThumbnail     = 0xA0
	offsetAnimation     = 0x6A0
	offsetFrameTable    = 0x6A8

	animationHeaderSize = 8
	soundReservedSize   = 14
	signatureSize       = 0x80
	signaturePadding    = 0x10
	signatureBlockSize  = signatureSize + signaturePadding
	lineSelectorSize    = 0x30
	unixEpochOffset     = 946684800
)

// Framerates is indexed by 8 - playback speed
var Framerates = [9]float64{0.5, 0.5, 1, 2, 4, 6, 12, 20, 30}

var (
	PaperWhite = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	PaperBlack = color.RGBA{R: 14, G: 14, B: 14, A: 255}
	InkRed     = color.RGBA{R: 255, G: 42, B: 42, A: 255}
	InkBlue    = color.RGBA{R: 10, G: 57, B: 255, A: 255}
)

// FramePalette is the palette frame imports quantize against
var FramePalette = color.Palette{PaperWhite, PaperBlack, InkRed, InkBlue}

// ThumbnailPalette is the 16 colour thumbnail palette. Unused slots are green.
var ThumbnailPalette = color.Palette{
	color.RGBA{0xFF, 0xFF, 0xFF, 0xFF},
	color.RGBA{0x52, 0x52, 0x52, 0xFF},
	color.RGBA{0xFF, 0xFF, 0xFF, 0xFF},
	color.RGBA{0x9C, 0x9C, 0x9C, 0xFF},
	color.RGBA{0xFF, 0x48, 0x44, 0xFF},
	color.RGBA{0xC8, 0x51, 0x4F, 0xFF},
	color.RGBA{0xFF, 0xAD, 0xAC, 0xFF},
	color.RGBA{0x00, 0xFF, 0x00, 0xFF},
	color.RGBA{0x48, 0x40, 0xFF, 0xFF},
	color.RGBA{0x51, 0x4F, 0xB8, 0xFF},
	color.RGBA{0xAD, 0xAB, 0xFF, 0xFF},
	color.RGBA{0x00, 0xFF, 0x00, 0xFF},
	color.RGBA{0xB6, 0x57, 0xB7, 0xFF},
	color.RGBA{0x00, 0xFF, 0x00, 0xFF},
	color.RGBA{0x00, 0xFF, 0x00, 0xFF},
	color.RGBA{0x00, 0xFF, 0x00, 0xFF},
}
