package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"flipnote-backend/models"

	"github.com/bogem/id3v2"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/tosone/minimp3"
)

const (
	BitDepth = 16
	Channels = 1
)

// AudioDecoder converts between mono 16-bit PCM and audio container files
type AudioDecoder struct {
	lamePath string
}

func NewAudioDecoder(lamePath string) *AudioDecoder {
	if lamePath == "" {
		lamePath = "lame"
	}
	return &AudioDecoder{lamePath: lamePath}
}

// Decode picks a container decoder from the file extension and returns mono PCM
func (ad *AudioDecoder) Decode(filename string, data []byte) ([]int16, *models.AudioMetadata, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return ad.DecodeWAV(data)
	case ".mp3":
		return ad.DecodeMP3(data)
	case ".ogg":
		return ad.DecodeOgg(data)
	case ".flac":
		return ad.DecodeFLAC(data)
	}
	return nil, nil, fmt.Errorf("%w: unsupported audio file %q", models.ErrArgument, filename)
}

func (ad *AudioDecoder) DecodeWAV(wavData []byte) ([]int16, *models.AudioMetadata, error) {
	decoder := wav.NewDecoder(bytes.NewReader(wavData))
	if !decoder.IsValidFile() {
		return nil, nil, fmt.Errorf("%w: not a valid WAV file", models.ErrFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to decode WAV: %v", models.ErrFormat, err)
	}

	channels := int(decoder.NumChans)
	if channels == 0 {
		return nil, nil, fmt.Errorf("%w: WAV file has no channels", models.ErrFormat)
	}
	shift := int(decoder.BitDepth) - BitDepth

	samples := make([]int16, len(buf.Data)/channels)
	for i := range samples {
		var sum int
		for c := range channels {
			v := buf.Data[i*channels+c]
			if shift > 0 {
				v >>= shift
			} else if shift < 0 {
				v <<= -shift
			}
			sum += v
		}
		samples[i] = int16(clampSample(int32(sum / channels)))
	}

	metadata := &models.AudioMetadata{
		SampleRate: int(decoder.SampleRate),
		Channels:   channels,
		BitDepth:   int(decoder.BitDepth),
		Duration:   float64(len(samples)) / float64(decoder.SampleRate),
		TotalBytes: len(wavData),
	}
	return samples, metadata, nil
}

func (ad *AudioDecoder) DecodeMP3(mp3Data []byte) ([]int16, *models.AudioMetadata, error) {
	decoder, data, err := minimp3.DecodeFull(mp3Data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to decode MP3: %v", models.ErrFormat, err)
	}
	defer decoder.Close()

	if decoder.Channels == 0 {
		return nil, nil, fmt.Errorf("%w: MP3 stream has no channels", models.ErrFormat)
	}

	// minimp3 yields interleaved little-endian 16-bit samples
	frames := len(data) / 2 / decoder.Channels
	samples := make([]int16, frames)
	for i := range frames {
		var sum int32
		for c := range decoder.Channels {
			off := (i*decoder.Channels + c) * 2
			sum += int32(int16(binary.LittleEndian.Uint16(data[off:])))
		}
		samples[i] = int16(sum / int32(decoder.Channels))
	}

	metadata := &models.AudioMetadata{
		SampleRate: decoder.SampleRate,
		Channels:   decoder.Channels,
		BitDepth:   BitDepth,
		Duration:   float64(frames) / float64(decoder.SampleRate),
		TotalBytes: len(mp3Data),
	}
	return samples, metadata, nil
}

func (ad *AudioDecoder) DecodeOgg(oggData []byte) ([]int16, *models.AudioMetadata, error) {
	streamer, format, err := vorbis.Decode(io.NopCloser(bytes.NewReader(oggData)))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to decode Ogg Vorbis: %v", models.ErrFormat, err)
	}
	defer streamer.Close()
	return drainStreamer(streamer, format, len(oggData))
}

func (ad *AudioDecoder) DecodeFLAC(flacData []byte) ([]int16, *models.AudioMetadata, error) {
	streamer, format, err := flac.Decode(bytes.NewReader(flacData))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to decode FLAC: %v", models.ErrFormat, err)
	}
	defer streamer.Close()
	return drainStreamer(streamer, format, len(flacData))
}

// drainStreamer reads a beep stream to the end and folds it to mono
func drainStreamer(streamer beep.Streamer, format beep.Format, size int) ([]int16, *models.AudioMetadata, error) {
	var samples []int16
	buf := make([][2]float64, 4096)
	for {
		n, ok := streamer.Stream(buf)
		for _, frame := range buf[:n] {
			v := (frame[0] + frame[1]) / 2 * 32767
			samples = append(samples, int16(clampSample(int32(v))))
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read audio stream: %v", models.ErrFormat, err)
	}

	rate := int(format.SampleRate)
	metadata := &models.AudioMetadata{
		SampleRate: rate,
		Channels:   format.NumChannels,
		BitDepth:   format.Precision * 8,
		Duration:   float64(len(samples)) / float64(rate),
		TotalBytes: size,
	}
	return samples, metadata, nil
}

// EncodeWAV writes mono 16-bit PCM as a WAV file
func (ad *AudioDecoder) EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", models.ErrArgument, sampleRate)
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: Channels,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: BitDepth,
	}

	// wav.NewEncoder needs a WriteSeeker
	tempFile, err := os.CreateTemp("", "flipnote_*.wav")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create temp file: %v", models.ErrIO, err)
	}
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	encoder := wav.NewEncoder(tempFile, sampleRate, BitDepth, Channels, 1)
	if err := encoder.Write(buf); err != nil {
		return nil, fmt.Errorf("%w: failed to encode WAV: %v", models.ErrIO, err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("%w: failed to close WAV encoder: %v", models.ErrIO, err)
	}

	if _, err := tempFile.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: failed to rewind WAV file: %v", models.ErrIO, err)
	}
	wavData, err := io.ReadAll(tempFile)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read WAV data: %v", models.ErrIO, err)
	}
	return wavData, nil
}

// SaveWAV writes mono PCM to path. The path must end in .wav.
func (ad *AudioDecoder) SaveWAV(path string, samples []int16, sampleRate int) error {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".wav" {
		return fmt.Errorf("%w: audio must be saved with a .wav extension, got %q", models.ErrArgument, ext)
	}
	wavData, err := ad.EncodeWAV(samples, sampleRate)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, wavData, 0o644); err != nil {
		return fmt.Errorf("%w: %v", models.ErrIO, err)
	}
	return nil
}

// EncodeMP3 runs the PCM through lame and tags the result with metadata.Title and metadata.Artist
func (ad *AudioDecoder) EncodeMP3(samples []int16, metadata *models.AudioMetadata) ([]byte, error) {
	tempWAV, err := os.CreateTemp("", "flipnote_*.wav")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create temporary WAV file: %v", models.ErrIO, err)
	}
	defer os.Remove(tempWAV.Name())
	defer tempWAV.Close()

	tempMP3, err := os.CreateTemp("", "flipnote_*.mp3")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create temporary MP3 file: %v", models.ErrIO, err)
	}
	defer os.Remove(tempMP3.Name())
	defer tempMP3.Close()

	wavData, err := ad.EncodeWAV(samples, metadata.SampleRate)
	if err != nil {
		return nil, err
	}
	if _, err := tempWAV.Write(wavData); err != nil {
		return nil, fmt.Errorf("%w: failed to write WAV data: %v", models.ErrIO, err)
	}
	tempWAV.Close()

	var stderr bytes.Buffer
	cmd := exec.Command(ad.lamePath, "--preset", "standard", "-h", "--add-id3v2", "--pad-id3v2", "--nohist", tempWAV.Name(), tempMP3.Name())
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: lame failed: %v: %s", models.ErrExternalProcess, err, strings.TrimSpace(stderr.String()))
	}
	tempMP3.Close()

	if err := tagMP3(tempMP3.Name(), metadata); err != nil {
		return nil, err
	}

	mp3Data, err := os.ReadFile(tempMP3.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read MP3 file: %v", models.ErrIO, err)
	}
	return mp3Data, nil
}

func tagMP3(path string, metadata *models.AudioMetadata) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("%w: failed to open MP3 tag: %v", models.ErrIO, err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(metadata.Title)
	tag.SetArtist(metadata.Artist)
	tag.SetAlbum("Flipnote Studio")

	if err := tag.Save(); err != nil {
		return fmt.Errorf("%w: failed to save MP3 tag: %v", models.ErrIO, err)
	}
	return nil
}
