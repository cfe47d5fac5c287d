package ppm

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"flipnote-backend/crypto"
	"flipnote-backend/models"
)

func TestLoadFixture(t *testing.T) {
	f := loadFixture(t, defaultFixture())

	if f.FrameCount() != 2 || len(f.Animation.Offsets) != 2 || len(f.Frames()) != 2 {
		t.Fatalf("frames = %d, offsets = %d", len(f.Frames()), len(f.Animation.Offsets))
	}
	if f.FormatVersion != FormatVersion {
		t.Errorf("version = 0x%X", f.FormatVersion)
	}
	if !f.Animation.Flags.Loop() {
		t.Error("loop flag not set")
	}
	if !f.Metadata.Locked() {
		t.Error("lock flag not set")
	}
	if got := f.Metadata.CurrentAuthor(); got != "Alice" {
		t.Errorf("author = %q", got)
	}
	if got := FormatID(f.Metadata.CurrentAuthorID); got != "1122334455667788" {
		t.Errorf("author id = %q", got)
	}
	if got := FormatFilename(f.Metadata.CurrentFilename); got != "ABCDEF_0123456789ABC_007" {
		t.Errorf("filename = %q", got)
	}
	if got := f.Metadata.Time(); !got.Equal(time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("time = %s", got)
	}
	if idx, _ := f.Thumbnail.Index(0, 0); idx != 1 {
		t.Errorf("thumbnail (0,0) = %d", idx)
	}
	if idx, _ := f.Thumbnail.Index(1, 0); idx != 4 {
		t.Errorf("thumbnail (1,0) = %d", idx)
	}
}

func TestFixtureFramePixels(t *testing.T) {
	f := loadFixture(t, defaultFixture())
	first, second := f.Frames()[0], f.Frames()[1]

	l1 := &first.Layers[0]
	for x := range ScreenWidth {
		if want := uint8(x % 2); l1[0][x] != want {
			t.Fatalf("raw line pixel %d = %d, want %d", x, l1[0][x], want)
		}
		wantCoded := uint8(0)
		if x < 4 || x >= 252 {
			wantCoded = 1
		}
		if l1[1][x] != wantCoded {
			t.Fatalf("coded line pixel %d = %d, want %d", x, l1[1][x], wantCoded)
		}
		wantInv := uint8(1)
		if x >= 8 && x < 16 {
			wantInv = 0
		}
		if l1[2][x] != wantInv {
			t.Fatalf("inverted line pixel %d = %d, want %d", x, l1[2][x], wantInv)
		}
		if l1[3][x] != 0 {
			t.Fatalf("skip line pixel %d set", x)
		}
	}
	if c, _ := first.Header.LayerColor(2); c != LayerRed {
		t.Errorf("layer 2 colour = %s", c)
	}

	if second.Header.Type() != FrameDiffed || second.TranslateX != 1 {
		t.Fatalf("second frame header = %08b, tx = %d", second.Header, second.TranslateX)
	}
	for x := range ScreenWidth {
		want := uint8(0)
		if x > 0 {
			want = l1[0][x-1]
		}
		if second.Layers[0][0][x] != want {
			t.Fatalf("shifted pixel %d = %d, want %d", x, second.Layers[0][0][x], want)
		}
	}
	if second.Layers[1][0][0] != 0 || second.Layers[1][0][8] != 1 || second.Layers[1][0][9] != 0 {
		t.Error("layer 2 not shifted with translation")
	}
}

func TestRoundTripIsByteExact(t *testing.T) {
	data := defaultFixture().build(t)
	f, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(f.Bytes(), data) {
		t.Fatal("serialized file differs from input")
	}

	again, err := Load(f.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if again.Metadata != f.Metadata || again.Thumbnail != f.Thumbnail || again.Animation.Flags != f.Animation.Flags {
		t.Error("structural fields changed across round trip")
	}
}

func TestLoadErrors(t *testing.T) {
	good := defaultFixture().build(t)

	badMagic := bytes.Clone(good)
	copy(badMagic, "KWZ ")

	hugeAnim := bytes.Clone(good)
	hugeAnim[4], hugeAnim[5], hugeAnim[6], hugeAnim[7] = 0xFF, 0xFF, 0xFF, 0x00

	fx := defaultFixture()
	fx.speed = 9
	badSpeed := fx.build(t)

	tests := []struct {
		name string
		data []byte
	}{
		{"bad magic", badMagic},
		{"truncated header", good[:0x20]},
		{"truncated signature", good[:len(good)-0x10]},
		{"animation size past end", hugeAnim},
		{"invalid playback speed", badSpeed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.data); !errors.Is(err, models.ErrFormat) {
				t.Errorf("got %v, want ErrFormat", err)
			}
		})
	}
}

func TestSoundTimeline(t *testing.T) {
	f := loadFixture(t, defaultFixture())

	fps, err := f.Framerate()
	if err != nil || fps != 6 {
		t.Fatalf("framerate = %v, %v", fps, err)
	}

	mixed, err := f.MixedAudio(BaseSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	want := int(math.Ceil(2.0 / 6.0 * BaseSampleRate))
	if len(mixed) != want {
		t.Fatalf("mixed length = %d, want %d", len(mixed), want)
	}

	se1, err := f.Sound.Track(TrackSE1, BaseSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	if len(se1) != 8 {
		t.Fatalf("SE1 decoded to %d samples", len(se1))
	}
	for i, s := range se1 {
		if mixed[i] != s/2 {
			t.Errorf("mixed[%d] = %d, want %d", i, mixed[i], s/2)
		}
	}

	up, err := f.MixedAudio(PlaybackSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	if want := int(math.Ceil(2.0 / 6.0 * PlaybackSampleRate)); len(up) != want {
		t.Errorf("playback-rate mix length = %d, want %d", len(up), want)
	}

	bgm, err := f.Sound.Track(TrackBGM, BaseSampleRate)
	if err != nil || bgm != nil {
		t.Errorf("empty BGM = %v, %v", bgm, err)
	}
}

func TestReplaceTrack(t *testing.T) {
	f := loadFixture(t, defaultFixture())

	pcm := make([]int16, 8180)
	for i := range pcm {
		pcm[i] = int16(3000 * math.Sin(2*math.Pi*200*float64(i)/8180))
	}
	psnr, err := f.ReplaceTrack(TrackBGM, pcm, 8180)
	if err != nil {
		t.Fatal(err)
	}
	if psnr < 20 {
		t.Errorf("PSNR = %.2f dB", psnr)
	}
	if f.Sound.TrackSize(TrackBGM) != 4090 {
		t.Errorf("BGM size = %d", f.Sound.TrackSize(TrackBGM))
	}

	reloaded, err := Load(f.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := reloaded.Sound.RawTrack(TrackBGM)
	orig, _ := f.Sound.RawTrack(TrackBGM)
	if !bytes.Equal(raw, orig) {
		t.Error("BGM bytes changed across save")
	}

	if _, err := f.ReplaceTrack(TrackSE2, nil, 8180); !errors.Is(err, models.ErrCodec) {
		t.Errorf("empty track: got %v, want ErrCodec", err)
	}

	if err := f.Sound.RemoveTrack(TrackBGM); err != nil {
		t.Fatal(err)
	}
	if f.Sound.TrackSize(TrackBGM) != 0 {
		t.Errorf("removed BGM size = %d", f.Sound.TrackSize(TrackBGM))
	}
	if err := f.Sound.RemoveTrack(TrackKind(7)); !errors.Is(err, models.ErrArgument) {
		t.Errorf("got %v, want ErrArgument", err)
	}
}

func TestReplaceFramesRoundTrip(t *testing.T) {
	f := loadFixture(t, defaultFixture())
	orig := f.Frames()

	third := orig[1].Clone()
	third.Layers[0][100][100] = 1
	frames := []*Frame{orig[0], orig[1], third}

	if err := f.ReplaceFrames(frames); err != nil {
		t.Fatal(err)
	}
	if flags := f.Sound.EffectFlags(); len(flags) != 3 || flags[0] != 0x01 {
		t.Errorf("effect flags = %v", flags)
	}

	reloaded, err := Load(f.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.FrameCount() != 3 {
		t.Fatalf("frame count = %d", reloaded.FrameCount())
	}
	for i, fr := range reloaded.Frames() {
		if fr.Layers != frames[i].Layers {
			t.Errorf("frame %d pixels differ after re-encode", i)
		}
	}

	if err := f.ReplaceFrames(nil); !errors.Is(err, models.ErrArgument) {
		t.Errorf("got %v, want ErrArgument", err)
	}
}

func TestSignAndVerify(t *testing.T) {
	f := loadFixture(t, defaultFixture())
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	svc := crypto.NewServiceWithKey(&key.PublicKey)

	if f.VerifySignatureWith(svc) {
		t.Fatal("zero signature verified")
	}
	if err := f.Sign(key); err != nil {
		t.Fatal(err)
	}
	if !f.VerifySignatureWith(svc) {
		t.Fatal("signed file does not verify")
	}

	signed, err := Load(f.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !signed.VerifyOriginalSignatureWith(svc) {
		t.Error("original bytes do not verify")
	}

	tampered := f.Bytes()
	tampered[0x40] ^= 0x01
	tf, err := Load(tampered)
	if err != nil {
		t.Fatal(err)
	}
	if tf.VerifySignatureWith(svc) || tf.VerifyOriginalSignatureWith(svc) {
		t.Error("tampered file still verifies")
	}

	ok, err := f.VerifySignature()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("test key signature verified against vendor key")
	}
}

func TestSave(t *testing.T) {
	f := loadFixture(t, defaultFixture())
	dir := t.TempDir()

	path, err := f.Save(filepath.Join(dir, "note"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(path) != Extension {
		t.Errorf("saved to %q", path)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.FrameCount() != 2 {
		t.Errorf("frame count = %d", loaded.FrameCount())
	}

	if _, err := f.Save(filepath.Join(dir, "note.kwz")); !errors.Is(err, models.ErrArgument) {
		t.Errorf("got %v, want ErrArgument", err)
	}
	if _, err := f.Save(filepath.Join(dir, "missing", "note.ppm")); !errors.Is(err, models.ErrIO) {
		t.Errorf("got %v, want ErrIO", err)
	}
	if _, err := LoadFile(filepath.Join(dir, "nope.ppm")); !errors.Is(err, models.ErrIO) {
		t.Errorf("got %v, want ErrIO", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "note.kwz")); err == nil {
		t.Error("rejected save still wrote a file")
	}
}

func TestNewIsLoadable(t *testing.T) {
	f := New()
	loaded, err := Load(f.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if loaded.FrameCount() != 1 || loaded.Frames()[0].Layers != (NewFrame()).Layers {
		t.Error("blank flipnote did not round trip")
	}
	if fps, _ := loaded.Framerate(); fps != 12 {
		t.Errorf("framerate = %v", fps)
	}
}
