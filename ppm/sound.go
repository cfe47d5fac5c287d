package ppm

import (
	"fmt"
	"math"

	"flipnote-backend/audio"
	"flipnote-backend/models"
)

// TrackKind names one of the four stored audio tracks
type TrackKind int

const (
	TrackBGM TrackKind = iota
	TrackSE1
	TrackSE2
	TrackSE3
)

var trackNames = [...]string{"bgm", "se1", "se2", "se3"}

func (k TrackKind) String() string {
	if k < TrackBGM || k > TrackSE3 {
		return fmt.Sprintf("TrackKind(%d)", int(k))
	}
	return trackNames[k]
}

// ParseTrackKind accepts bgm, se1, se2 or se3
func ParseTrackKind(s string) (TrackKind, error) {
	for i, name := range trackNames {
		if s == name {
			return TrackKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown track %q", models.ErrArgument, s)
}

// SoundSection holds the per-frame effect flags, playback speeds and the four ADPCM tracks
type SoundSection struct {
	Reserved [soundReservedSize]byte

	effectFlags []byte
	speed       uint8
	bgmSpeed    uint8

	raw   [4][]byte
	pcm   [4][]int16
	mixed []int16
}

// parseSound reads the section starting at the cursor. frameCount is the real number of frames.
func parseSound(c *Cursor, frameCount int) (*SoundSection, error) {
	s := &SoundSection{}
	var err error
	if s.effectFlags, err = c.ReadBytes(frameCount); err != nil {
		return nil, err
	}
	if err := c.SkipPadding(4); err != nil {
		return nil, err
	}

	var sizes [4]uint32
	for i := range sizes {
		if sizes[i], err = c.ReadU32(); err != nil {
			return nil, err
		}
	}
	if s.speed, err = c.ReadU8(); err != nil {
		return nil, err
	}
	if s.bgmSpeed, err = c.ReadU8(); err != nil {
		return nil, err
	}
	reserved, err := c.take(soundReservedSize)
	if err != nil {
		return nil, err
	}
	copy(s.Reserved[:], reserved)

	if _, err := s.Framerate(); err != nil {
		return nil, err
	}
	if _, err := s.BGMFramerate(); err != nil {
		return nil, err
	}

	for i, size := range sizes {
		if int64(size) > int64(c.Remaining()) {
			return nil, fmt.Errorf("%w: %s track of 0x%X bytes overruns file", models.ErrFormat, TrackKind(i), size)
		}
		if s.raw[i], err = c.ReadBytes(int(size)); err != nil {
			return nil, err
		}
		s.pcm[i] = audio.DecodeADPCM(s.raw[i])
	}

	if s.mixed, err = s.mix(BaseSampleRate); err != nil {
		return nil, err
	}
	return s, nil
}

func framerateFor(speed uint8) (float64, error) {
	idx := 8 - int(speed)
	if idx < 0 || idx >= len(Framerates) {
		return 0, fmt.Errorf("%w: invalid playback speed %d", models.ErrFormat, speed)
	}
	return Framerates[idx], nil
}

// Framerate is the playback rate in frames per second
func (s *SoundSection) Framerate() (float64, error) {
	return framerateFor(s.speed)
}

// BGMFramerate is the playback rate at the time the BGM was recorded
func (s *SoundSection) BGMFramerate() (float64, error) {
	return framerateFor(s.bgmSpeed)
}

// Speed is the current playback speed byte
func (s *SoundSection) Speed() uint8 { return s.speed }

// BGMSpeed is the playback speed byte at the time the BGM was recorded
func (s *SoundSection) BGMSpeed() uint8 { return s.bgmSpeed }

// SetSpeed changes the playback speed and rebuilds the cached mix
func (s *SoundSection) SetSpeed(speed uint8) error {
	if _, err := framerateFor(speed); err != nil {
		return fmt.Errorf("%w: %v", models.ErrArgument, err)
	}
	s.speed = speed
	return s.remix()
}

// SetBGMSpeed changes the recorded BGM speed and rebuilds the cached mix
func (s *SoundSection) SetBGMSpeed(speed uint8) error {
	if _, err := framerateFor(speed); err != nil {
		return fmt.Errorf("%w: %v", models.ErrArgument, err)
	}
	s.bgmSpeed = speed
	return s.remix()
}

// EffectFlags returns a copy of the per-frame sound effect flags
func (s *SoundSection) EffectFlags() []byte {
	out := make([]byte, len(s.effectFlags))
	copy(out, s.effectFlags)
	return out
}

// SetEffectFlags sets which sound effects start on a frame. Bits 0..2 select SE1..SE3.
func (s *SoundSection) SetEffectFlags(frame int, flags byte) error {
	if frame < 0 || frame >= len(s.effectFlags) {
		return fmt.Errorf("%w: frame %d of %d", models.ErrBounds, frame, len(s.effectFlags))
	}
	if flags&^0x07 != 0 {
		return fmt.Errorf("%w: effect flags 0x%02X use bits past SE3", models.ErrArgument, flags)
	}
	s.effectFlags[frame] = flags
	return s.remix()
}

func (s *SoundSection) remix() error {
	mixed, err := s.mix(BaseSampleRate)
	if err != nil {
		return err
	}
	s.mixed = mixed
	return nil
}

// Duration is the animation length in seconds
func (s *SoundSection) Duration() (float64, error) {
	fps, err := s.Framerate()
	if err != nil {
		return 0, err
	}
	return float64(len(s.effectFlags)) / fps, nil
}

// Size is the sound_data_size header value
func (s *SoundSection) Size() uint32 {
	var total uint32
	for _, t := range s.raw {
		total += uint32(len(t))
	}
	return total
}

// TrackSize is the stored ADPCM length of a track
func (s *SoundSection) TrackSize(kind TrackKind) int {
	if kind < TrackBGM || kind > TrackSE3 {
		return 0
	}
	return len(s.raw[kind])
}

// RawTrack returns the stored ADPCM bytes of a track
func (s *SoundSection) RawTrack(kind TrackKind) ([]byte, error) {
	if kind < TrackBGM || kind > TrackSE3 {
		return nil, fmt.Errorf("%w: unknown track %d", models.ErrArgument, kind)
	}
	return s.raw[kind], nil
}

// sourceRate is the rate a track's decoded samples play at. BGM follows the
// ratio of the current framerate to the one it was recorded at.
func (s *SoundSection) sourceRate(kind TrackKind) (int, error) {
	if kind != TrackBGM {
		return BaseSampleRate, nil
	}
	fps, err := s.Framerate()
	if err != nil {
		return 0, err
	}
	bgmFps, err := s.BGMFramerate()
	if err != nil {
		return 0, err
	}
	adjust := (1 / bgmFps) / (1 / fps)
	return int(BaseSampleRate * adjust), nil
}

// Track returns one track's PCM at the given rate. An empty track yields nil.
func (s *SoundSection) Track(kind TrackKind, frequency int) ([]int16, error) {
	if kind < TrackBGM || kind > TrackSE3 {
		return nil, fmt.Errorf("%w: unknown track %d", models.ErrArgument, kind)
	}
	if len(s.pcm[kind]) == 0 {
		return nil, nil
	}
	src, err := s.sourceRate(kind)
	if err != nil {
		return nil, err
	}
	return audio.Resample(s.pcm[kind], src, frequency)
}

// Mixed returns the whole soundtrack with effects placed on their frames
func (s *SoundSection) Mixed(frequency int) ([]int16, error) {
	if frequency == BaseSampleRate && s.mixed != nil {
		out := make([]int16, len(s.mixed))
		copy(out, s.mixed)
		return out, nil
	}
	return s.mix(frequency)
}

func (s *SoundSection) mix(frequency int) ([]int16, error) {
	if frequency <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", models.ErrArgument, frequency)
	}
	fps, err := s.Framerate()
	if err != nil {
		return nil, err
	}
	duration, err := s.Duration()
	if err != nil {
		return nil, err
	}
	master := make([]int16, int(math.Ceil(duration*float64(frequency))))

	bgm, err := s.Track(TrackBGM, frequency)
	if err != nil {
		return nil, err
	}
	if err := audio.MixChannels(bgm, audio.Channels, master, audio.Channels, 0); err != nil {
		return nil, err
	}

	var effects [3][]int16
	for i := range effects {
		if effects[i], err = s.Track(TrackSE1+TrackKind(i), frequency); err != nil {
			return nil, err
		}
	}

	samplesPerFrame := float64(frequency) / fps
	for i, flag := range s.effectFlags {
		offset := int(math.Ceil(float64(i) * samplesPerFrame))
		for bit, se := range effects {
			if flag&(1<<bit) == 0 || len(se) == 0 {
				continue
			}
			if err := audio.MixChannels(se, audio.Channels, master, audio.Channels, offset); err != nil {
				return nil, err
			}
		}
	}
	return master, nil
}

// ReplaceTrack encodes new PCM recorded at rate into a track and returns the
// PSNR of the ADPCM round trip. Replacing the BGM resets the recording speed
// to the current speed.
func (s *SoundSection) ReplaceTrack(kind TrackKind, samples []int16, rate int) (float64, error) {
	if kind < TrackBGM || kind > TrackSE3 {
		return 0, fmt.Errorf("%w: unknown track %d", models.ErrArgument, kind)
	}
	resampled, err := audio.Resample(samples, rate, BaseSampleRate)
	if err != nil {
		return 0, err
	}

	psnr := audio.RoundTripPSNR(resampled)
	encoded := audio.EncodeADPCM(resampled)

	if kind == TrackBGM {
		s.bgmSpeed = s.speed
	}
	s.raw[kind] = encoded
	s.pcm[kind] = audio.DecodeADPCM(encoded)
	if err := s.remix(); err != nil {
		return 0, err
	}
	return psnr, nil
}

// RemoveTrack empties a track
func (s *SoundSection) RemoveTrack(kind TrackKind) error {
	if kind < TrackBGM || kind > TrackSE3 {
		return fmt.Errorf("%w: unknown track %d", models.ErrArgument, kind)
	}
	s.raw[kind] = nil
	s.pcm[kind] = nil
	return s.remix()
}

// resizeFlags keeps one effect flag byte per frame
func (s *SoundSection) resizeFlags(frameCount int) error {
	flags := make([]byte, frameCount)
	copy(flags, s.effectFlags)
	s.effectFlags = flags
	return s.remix()
}

func (s *SoundSection) write(w *Writer) {
	w.WriteBytes(s.effectFlags)
	w.Align(4)
	for _, t := range s.raw {
		w.WriteU32(uint32(len(t)))
	}
	w.WriteU8(s.speed)
	w.WriteU8(s.bgmSpeed)
	w.WriteBytes(s.Reserved[:])
	for _, t := range s.raw {
		w.WriteBytes(t)
	}
}
