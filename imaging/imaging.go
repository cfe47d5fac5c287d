// Package imaging loads, scales and palette-maps pictures for flipnote thumbnails and frames
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"flipnote-backend/models"

	"github.com/lucasb-eyer/go-colorful"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Mapper resizes with nearest-neighbour scaling and maps colours by Euclidean RGB distance
type Mapper struct {
	// Dither spreads quantization error with Floyd-Steinberg
	Dither bool
}

func NewMapper(dither bool) *Mapper {
	return &Mapper{Dither: dither}
}

// Decode reads any registered image format
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", models.ErrFormat, err)
	}
	return img, nil
}

func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIO, err)
	}
	defer f.Close()
	return Decode(f)
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: failed to encode PNG: %v", models.ErrIO, err)
	}
	return buf.Bytes(), nil
}

// SavePNG writes img to a .png path
func SavePNG(img image.Image, path string) error {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".png" {
		return fmt.Errorf("%w: images are saved as .png, got %q", models.ErrArgument, ext)
	}
	data, err := EncodePNG(img)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", models.ErrIO, err)
	}
	return nil
}

func (m *Mapper) Resize(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func (m *Mapper) Quantize(img image.Image, palette color.Palette) []uint8 {
	if m.Dither {
		return Dither(img, palette).Pix
	}

	b := img.Bounds()
	targets := make([]colorful.Color, len(palette))
	for i, c := range palette {
		targets[i], _ = colorful.MakeColor(c)
	}

	out := make([]uint8, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out = append(out, uint8(Nearest(img.At(x, y), targets)))
		}
	}
	return out
}

// Nearest is the index of the closest palette colour. Transparent pixels count as white.
func Nearest(c color.Color, palette []colorful.Color) int {
	src, ok := colorful.MakeColor(c)
	if !ok {
		src = colorful.Color{R: 1, G: 1, B: 1}
	}
	best, bestDist := 0, -1.0
	for i, p := range palette {
		if d := src.DistanceRgb(p); bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Dither renders img onto palette with Floyd-Steinberg error diffusion
func Dither(img image.Image, palette color.Palette) *image.Paletted {
	b := img.Bounds()
	dst := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), palette)
	draw.FloydSteinberg.Draw(dst, dst.Bounds(), img, b.Min)
	return dst
}
