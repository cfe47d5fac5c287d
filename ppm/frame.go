package ppm

// Frame is one decoded animation frame. Layers[0] is layer 1, painted on top.
type Frame struct {
	Header     FrameHeader
	TranslateX int8
	TranslateY int8
	Layers     [2]Layer
}

// NewFrame returns a blank normal frame on white paper
func NewFrame() *Frame {
	f := &Frame{}
	f.Header.SetType(FrameNormal)
	f.Header.SetPaper(PaperColorWhite)
	f.Header.SetLayerColor(1, LayerInverse)
	f.Header.SetLayerColor(2, LayerInverse)
	return f
}

// decodeFrame reads one frame at the cursor. prev is the previously decoded frame, or nil for the first.
func decodeFrame(c *Cursor, prev *Frame) (*Frame, error) {
	b, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	f := &Frame{Header: FrameHeader(b)}

	if f.Header.Translated() {
		if f.TranslateX, err = c.ReadI8(); err != nil {
			return nil, err
		}
		if f.TranslateY, err = c.ReadI8(); err != nil {
			return nil, err
		}
	}

	var selectors [2][ScreenHeight]LineEncoding
	for i := range selectors {
		block, err := c.take(lineSelectorSize)
		if err != nil {
			return nil, err
		}
		selectors[i] = unpackSelectors(block)
	}

	for i := range f.Layers {
		for y := range ScreenHeight {
			if err := decodeLine(c, selectors[i][y], &f.Layers[i][y]); err != nil {
				return nil, err
			}
		}
	}

	if f.Header.Type() == FrameDiffed && prev != nil {
		f.xorPrevious(prev)
	}
	return f, nil
}

// xorPrevious folds the translated previous frame into f. Source pixels that
// fall outside the screen are clipped.
func (f *Frame) xorPrevious(prev *Frame) {
	tx, ty := int(f.TranslateX), int(f.TranslateY)
	for y := range ScreenHeight {
		sy := y - ty
		if sy < 0 || sy >= ScreenHeight {
			continue
		}
		for x := range ScreenWidth {
			sx := x - tx
			if sx < 0 || sx >= ScreenWidth {
				continue
			}
			f.Layers[0][y][x] ^= prev.Layers[0][sy][sx]
			f.Layers[1][y][x] ^= prev.Layers[1][sy][sx]
		}
	}
}

// Clone returns a deep copy
func (f *Frame) Clone() *Frame {
	c := *f
	return &c
}

// encodeFrame stores f, as a delta against prev when that is smaller
func encodeFrame(f *Frame, prev *Frame) []byte {
	normal := f.Clone()
	normal.Header.SetType(FrameNormal)
	normal.Header.SetTranslated(false)
	normal.TranslateX, normal.TranslateY = 0, 0
	best := encodeLayers(normal)

	if prev != nil {
		delta := normal.Clone()
		delta.Header.SetType(FrameDiffed)
		for i := range delta.Layers {
			for y := range ScreenHeight {
				for x := range ScreenWidth {
					delta.Layers[i][y][x] ^= prev.Layers[i][y][x]
				}
			}
		}
		if diffed := encodeLayers(delta); len(diffed) < len(best) {
			best = diffed
		}
	}
	return best
}

// encodeLayers writes f's pixels exactly as stored, without applying any delta
func encodeLayers(f *Frame) []byte {
	var w Writer
	w.WriteU8(uint8(f.Header))
	if f.Header.Translated() {
		w.WriteI8(f.TranslateX)
		w.WriteI8(f.TranslateY)
	}

	var selectors [2][ScreenHeight]LineEncoding
	for i := range f.Layers {
		for y := range ScreenHeight {
			selectors[i][y] = chooseEncoding(&f.Layers[i][y])
		}
		w.WriteBytes(packSelectors(&selectors[i]))
	}
	for i := range f.Layers {
		for y := range ScreenHeight {
			encodeLine(&w, selectors[i][y], &f.Layers[i][y])
		}
	}
	return w.Bytes()
}
