package ppm

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"flipnote-backend/imaging"
)

func lineOf(fn func(x int) uint8) Line {
	var l Line
	for x := range l {
		l[x] = fn(x)
	}
	return l
}

func TestLineCodecRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		name string
		line Line
		want LineEncoding
	}{
		{"all zero", Line{}, LineSkip},
		{"all one", lineOf(func(int) uint8 { return 1 }), LineInvertedCoded},
		{"sparse", lineOf(func(x int) uint8 { return uint8(btoi(x == 17 || x == 200)) }), LineCoded},
		{"mostly ink", lineOf(func(x int) uint8 { return uint8(btoi(x != 40)) }), LineInvertedCoded},
		{"noise", lineOf(func(int) uint8 { return uint8(rng.Intn(2)) }), LineRaw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := chooseEncoding(&tt.line)
			if enc != tt.want {
				t.Errorf("chose %s, want %s", enc, tt.want)
			}
			for _, e := range []LineEncoding{enc, LineRaw} {
				var w Writer
				encodeLine(&w, e, &tt.line)
				var got Line
				c := NewCursor(w.Bytes())
				if err := decodeLine(c, e, &got); err != nil {
					t.Fatalf("%s: %v", e, err)
				}
				if got != tt.line {
					t.Errorf("%s: decoded line differs", e)
				}
				if c.Remaining() != 0 {
					t.Errorf("%s: %d bytes left over", e, c.Remaining())
				}
			}
		})
	}
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestSelectorPacking(t *testing.T) {
	var enc [ScreenHeight]LineEncoding
	for i := range enc {
		enc[i] = LineEncoding(i % 4)
	}
	block := packSelectors(&enc)
	if block[0] != 0xE4 {
		t.Errorf("first selector byte = 0x%02X, want 0xE4", block[0])
	}
	if unpackSelectors(block) != enc {
		t.Error("selectors did not round trip")
	}
}

func randomFrame(rng *rand.Rand) *Frame {
	f := NewFrame()
	for i := range f.Layers {
		for y := range ScreenHeight {
			if rng.Intn(3) == 0 {
				continue
			}
			for x := range ScreenWidth {
				f.Layers[i][y][x] = uint8(rng.Intn(2))
			}
		}
	}
	return f
}

func TestDeltaIsSelfInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	prev := randomFrame(rng)

	for _, shift := range [][2]int8{{0, 0}, {5, -3}, {-20, 17}, {127, -128}} {
		stored := randomFrame(rng)
		stored.TranslateX, stored.TranslateY = shift[0], shift[1]

		f := stored.Clone()
		f.xorPrevious(prev)
		f.xorPrevious(prev)
		if f.Layers != stored.Layers {
			t.Errorf("shift %v: double XOR did not restore the stored delta", shift)
		}
	}
}

func TestDeltaClipsOutOfRange(t *testing.T) {
	prev := NewFrame()
	for y := range ScreenHeight {
		for x := range ScreenWidth {
			prev.Layers[0][y][x] = 1
		}
	}
	f := NewFrame()
	f.TranslateX, f.TranslateY = -10, 4
	f.xorPrevious(prev)

	if f.Layers[0][0][0] != 0 {
		t.Error("row above the translated source was modified")
	}
	if f.Layers[0][4][ScreenWidth-1] != 0 {
		t.Error("column past the source edge was modified")
	}
	if f.Layers[0][4][0] != 1 || f.Layers[0][ScreenHeight-1][ScreenWidth-11] != 1 {
		t.Error("in-range pixels were not reconstructed")
	}
}

func TestEncodeFramePrefersDelta(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	prev := randomFrame(rng)
	next := prev.Clone()
	next.Layers[1][50][50] ^= 1

	data := encodeFrame(next, prev)
	if FrameHeader(data[0]).Type() != FrameDiffed {
		t.Fatal("nearly identical frame was not stored as a delta")
	}
	got, err := decodeFrame(NewCursor(data), prev)
	if err != nil {
		t.Fatal(err)
	}
	if got.Layers != next.Layers {
		t.Error("delta frame did not decode to the input")
	}

	first, err := decodeFrame(NewCursor(encodeFrame(prev, nil)), nil)
	if err != nil {
		t.Fatal(err)
	}
	if first.Header.Type() != FrameNormal || first.Layers != prev.Layers {
		t.Error("first frame did not round trip as a normal frame")
	}
}

func TestFrameHeaderAccessors(t *testing.T) {
	var h FrameHeader
	h.SetType(FrameNormal)
	h.SetPaper(PaperColorWhite)
	h.SetTranslated(true)
	if err := h.SetLayerColor(1, LayerBlue); err != nil {
		t.Fatal(err)
	}
	if err := h.SetLayerColor(2, LayerRed); err != nil {
		t.Fatal(err)
	}
	if h != 0x80|0x20|0x10|0x06|0x01 {
		t.Errorf("header = %08b", uint8(h))
	}

	h.SetTranslated(false)
	h.SetType(FrameDiffed)
	h.SetPaper(PaperColorBlack)
	if h.Translated() || h.Type() != FrameDiffed || h.Paper() != PaperColorBlack {
		t.Errorf("header = %08b", uint8(h))
	}
	if c, _ := FrameHeader(0).LayerColor(1); c != LayerInverse {
		t.Errorf("colour 0 = %s, want inverse", c)
	}
	if _, err := h.LayerColor(3); err == nil {
		t.Error("layer 3 accepted")
	}
}

func TestAnimationFlags(t *testing.T) {
	var f AnimationFlags
	f.SetLoop(true)
	if err := f.SetHideLayer(2, true); err != nil {
		t.Fatal(err)
	}
	if f != 0x22 {
		t.Errorf("flags = 0x%X", uint16(f))
	}
	if hidden, _ := f.HideLayer(1); hidden {
		t.Error("layer 1 hidden")
	}
	if err := f.SetHideLayer(0, true); err == nil {
		t.Error("layer 0 accepted")
	}
}

func TestFrameImageCompositing(t *testing.T) {
	f := NewFrame()
	f.Header.SetLayerColor(2, LayerBlue)
	f.Layers[0][0][0] = 1
	f.Layers[1][0][0] = 1
	f.Layers[1][0][1] = 1

	img := f.Image(0)
	if got := img.RGBAAt(0, 0); got != PaperBlack {
		t.Errorf("layer 1 over layer 2 = %v, want inverse of white paper", got)
	}
	if got := img.RGBAAt(1, 0); got != InkBlue {
		t.Errorf("layer 2 = %v, want blue", got)
	}
	if got := img.RGBAAt(2, 0); got != PaperWhite {
		t.Errorf("paper = %v", got)
	}

	var flags AnimationFlags
	flags.SetHideLayer(1, true)
	if got := f.Image(flags).RGBAAt(0, 0); got != InkBlue {
		t.Errorf("hidden layer 1 still drawn: %v", got)
	}
}

func TestFrameFromImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, ScreenWidth, ScreenHeight))
	for i := 0; i < len(img.Pix); i++ {
		img.Pix[i] = 255
	}
	img.Set(3, 4, color.Black)
	img.Set(5, 6, color.RGBA{250, 40, 40, 255})

	f, err := FrameFromImage(img, imaging.NewMapper(false))
	if err != nil {
		t.Fatal(err)
	}
	if f.Layers[0][4][3] != 1 || f.Layers[1][6][5] != 1 || f.Layers[0][0][0] != 0 {
		t.Error("pixels not split onto layers")
	}
	if c, _ := f.Header.LayerColor(2); c != LayerRed {
		t.Errorf("layer 2 colour = %s", c)
	}
}

func TestThumbnailImage(t *testing.T) {
	var th Thumbnail
	img := image.NewRGBA(image.Rect(0, 0, 128, 96))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := 0; y < 2; y++ {
		for x := 18; x < 20; x++ {
			img.Set(x, y, color.RGBA{0xFF, 0x48, 0x44, 0xFF})
		}
	}

	if err := th.SetImage(img, imaging.NewMapper(false)); err != nil {
		t.Fatal(err)
	}
	if idx, _ := th.Index(9, 0); idx != 4 {
		t.Errorf("index (9,0) = %d, want 4", idx)
	}
	if idx, _ := th.Index(0, 0); idx != 0 {
		t.Errorf("index (0,0) = %d, want 0", idx)
	}
	if th[32] != 0x40 {
		t.Errorf("tile 1 byte 0 = 0x%02X, want 0x40", th[32])
	}

	out := th.Image()
	if out.ColorIndexAt(9, 0) != 4 {
		t.Error("Image disagrees with Index")
	}
	if _, err := th.Index(64, 0); err == nil {
		t.Error("out of range pixel accepted")
	}
}
