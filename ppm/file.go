package ppm

import (
	"bytes"
	"crypto/rsa"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"flipnote-backend/crypto"
	"flipnote-backend/models"
)

// File is a fully parsed flipnote
type File struct {
	FormatVersion uint16
	Metadata      Metadata
	Thumbnail     Thumbnail
	Animation     *AnimationSection
	Sound         *SoundSection
	Signature     [signatureSize]byte
	SigPadding    [signaturePadding]byte

	original []byte
}

// New returns an unsigned flipnote holding one blank frame at 12 fps
func New() *File {
	f := &File{
		FormatVersion: FormatVersion,
		Animation:     &AnimationSection{},
		Sound:         &SoundSection{speed: 2, bgmSpeed: 2},
	}
	f.Animation.SetFrames([]*Frame{NewFrame()})
	f.Sound.resizeFlags(1)
	return f
}

// Load parses a whole file held in memory
func Load(data []byte) (*File, error) {
	c := NewCursor(data)
	magic, err := c.take(len(Magic))
	if err != nil {
		return nil, err
	}
	if string(magic) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", models.ErrFormat, magic)
	}

	animSize, err := c.ReadU32()
	if err != nil {
		return nil, err
	}
	if _, err := c.ReadU32(); err != nil { // sound size is recomputed from the track sizes
		return nil, err
	}
	storedCount, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	frameCount := int(storedCount) + 1

	f := &File{original: bytes.Clone(data)}
	if f.FormatVersion, err = c.ReadU16(); err != nil {
		return nil, err
	}
	if f.Metadata, err = parseMetadata(c); err != nil {
		return nil, err
	}

	if err := c.Seek(offsetThumbnail); err != nil {
		return nil, err
	}
	thumb, err := c.take(ThumbnailSize)
	if err != nil {
		return nil, err
	}
	copy(f.Thumbnail[:], thumb)

	if f.Animation, err = parseAnimation(c, frameCount, animSize); err != nil {
		return nil, err
	}

	soundStart := int64(offsetAnimation) + int64(animSize)
	if soundStart > int64(len(data)) {
		return nil, fmt.Errorf("%w: sound section at 0x%X past end of file (0x%X)", models.ErrFormat, soundStart, len(data))
	}
	if err := c.Seek(int(soundStart)); err != nil {
		return nil, err
	}
	if f.Sound, err = parseSound(c, frameCount); err != nil {
		return nil, err
	}

	sig, err := c.take(signatureSize)
	if err != nil {
		return nil, err
	}
	copy(f.Signature[:], sig)
	pad, err := c.take(signaturePadding)
	if err != nil {
		return nil, err
	}
	copy(f.SigPadding[:], pad)

	return f, nil
}

// LoadFile reads and parses the file at path
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIO, err)
	}
	return Load(data)
}

// FrameCount is the real number of frames
func (f *File) FrameCount() int {
	return f.Animation.FrameCount()
}

func (f *File) Frames() []*Frame {
	return f.Animation.Frames()
}

// Original returns the bytes the file was loaded from
func (f *File) Original() []byte {
	return f.original
}

// Bytes serializes the file, recomputing section sizes and padding
func (f *File) Bytes() []byte {
	var w Writer
	w.WriteBytes([]byte(Magic))
	w.WriteU32(f.Animation.Size())
	w.WriteU32(f.Sound.Size())
	w.WriteU16(uint16(f.FrameCount() - 1))
	w.WriteU16(f.FormatVersion)
	f.Metadata.write(&w)
	w.WriteBytes(f.Thumbnail[:])
	f.Animation.write(&w)
	f.Sound.write(&w)
	w.WriteBytes(f.Signature[:])
	w.WriteBytes(f.SigPadding[:])
	return w.Bytes()
}

// SignedBody is the serialized file without the trailing signature block
func (f *File) SignedBody() []byte {
	b := f.Bytes()
	return b[:len(b)-signatureBlockSize]
}

// Save writes the file to path. A missing extension gets .ppm appended.
func (f *File) Save(path string) (string, error) {
	switch ext := filepath.Ext(path); {
	case ext == "":
		path += Extension
	case !strings.EqualFold(ext, Extension):
		return "", fmt.Errorf("%w: flipnotes must be saved as %s, got %q", models.ErrArgument, Extension, ext)
	}
	if err := os.WriteFile(path, f.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrIO, err)
	}
	return path, nil
}

// VerifySignature checks the re-serialized file against the vendor key
func (f *File) VerifySignature() (bool, error) {
	svc, err := crypto.NewService()
	if err != nil {
		return false, err
	}
	return f.VerifySignatureWith(svc), nil
}

func (f *File) VerifySignatureWith(svc *crypto.Service) bool {
	return svc.Verify(crypto.HashBody(f.SignedBody()), f.Signature[:])
}

// VerifyOriginalSignature checks the bytes as they were loaded
func (f *File) VerifyOriginalSignature() (bool, error) {
	svc, err := crypto.NewService()
	if err != nil {
		return false, err
	}
	return f.VerifyOriginalSignatureWith(svc), nil
}

func (f *File) VerifyOriginalSignatureWith(svc *crypto.Service) bool {
	if len(f.original) < signatureBlockSize {
		return false
	}
	body := f.original[:len(f.original)-signatureBlockSize]
	sig := f.original[len(f.original)-signatureBlockSize : len(f.original)-signaturePadding]
	return svc.Verify(crypto.HashBody(body), sig)
}

// Sign replaces the signature and checks it against the key's public half
func (f *File) Sign(key *rsa.PrivateKey) error {
	digest := crypto.HashBody(f.SignedBody())
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return err
	}
	copy(f.Signature[:], sig)

	if !crypto.NewServiceWithKey(&key.PublicKey).Verify(digest, f.Signature[:]) {
		return fmt.Errorf("%w: new signature does not verify", models.ErrCrypto)
	}
	return nil
}

func (f *File) Framerate() (float64, error) {
	return f.Sound.Framerate()
}

// FrameImage composites frame i
func (f *File) FrameImage(i int) (*image.RGBA, error) {
	frame, err := f.Animation.Frame(i)
	if err != nil {
		return nil, err
	}
	return frame.Image(f.Animation.Flags), nil
}

// FrameRGBA is frame i as packed RGBA bytes
func (f *File) FrameRGBA(i int) ([]byte, error) {
	frame, err := f.Animation.Frame(i)
	if err != nil {
		return nil, err
	}
	return frame.RGBA(f.Animation.Flags), nil
}

// MixedAudio is the full soundtrack at rate
func (f *File) MixedAudio(rate int) ([]int16, error) {
	return f.Sound.Mixed(rate)
}

func (f *File) ReplaceThumbnail(img image.Image, mapper PaletteMapper) error {
	return f.Thumbnail.SetImage(img, mapper)
}

// ReplaceTrack re-encodes one track and returns the ADPCM round trip PSNR
func (f *File) ReplaceTrack(kind TrackKind, samples []int16, rate int) (float64, error) {
	return f.Sound.ReplaceTrack(kind, samples, rate)
}

// ReplaceFrames re-encodes the animation. Effect flags are kept per frame index.
func (f *File) ReplaceFrames(frames []*Frame) error {
	if err := f.Animation.SetFrames(frames); err != nil {
		return err
	}
	if int(f.Metadata.ThumbnailIndex) >= len(frames) {
		f.Metadata.ThumbnailIndex = 0
	}
	return f.Sound.resizeFlags(len(frames))
}
