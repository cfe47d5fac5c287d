// Package video renders flipnotes to video files with an external ffmpeg process
package video

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"flipnote-backend/models"

	"golang.org/x/sync/errgroup"
)

const (
	FrameWidth  = 256
	FrameHeight = 192
	Extension   = ".mp4"
)

// Source is what the exporter needs from an animation
type Source interface {
	FrameCount() int
	FrameRGBA(i int) ([]byte, error)
	Framerate() (float64, error)
	MixedAudio(rate int) ([]int16, error)
}

type Exporter struct {
	ffmpegPath string
	sampleRate int
}

// NewExporter resolves the ffmpeg binary. An empty name means "ffmpeg" on PATH.
func NewExporter(ffmpeg string, sampleRate int) (*Exporter, error) {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	path, err := exec.LookPath(ffmpeg)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found: %v", models.ErrExternalProcess, err)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", models.ErrArgument, sampleRate)
	}
	return &Exporter{ffmpegPath: path, sampleRate: sampleRate}, nil
}

// Export streams raw RGBA frames on fd 3 and s16le PCM on fd 4 into ffmpeg.
// Both pipes exist before the process starts. Callers bound the run with ctx.
func (e *Exporter) Export(ctx context.Context, src Source, outPath string) (string, error) {
	switch ext := filepath.Ext(outPath); {
	case ext == "":
		outPath += Extension
	case !strings.EqualFold(ext, Extension):
		return "", fmt.Errorf("%w: video must be saved as %s, got %q", models.ErrArgument, Extension, ext)
	}

	fps, err := src.Framerate()
	if err != nil {
		return "", err
	}
	samples, err := src.MixedAudio(e.sampleRate)
	if err != nil {
		return "", err
	}

	videoR, videoW, err := os.Pipe()
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrIO, err)
	}
	audioR, audioW, err := os.Pipe()
	if err != nil {
		videoR.Close()
		videoW.Close()
		return "", fmt.Errorf("%w: %v", models.ErrIO, err)
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", FrameWidth, FrameHeight),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "pipe:3",
		"-f", "s16le",
		"-ar", strconv.Itoa(e.sampleRate),
		"-ac", "1",
		"-i", "pipe:4",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		outPath,
	)
	cmd.ExtraFiles = []*os.File{videoR, audioR}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	startErr := cmd.Start()
	// the child holds its own copies of the read ends
	videoR.Close()
	audioR.Close()
	if startErr != nil {
		videoW.Close()
		audioW.Close()
		return "", fmt.Errorf("%w: failed to start ffmpeg: %v", models.ErrExternalProcess, startErr)
	}

	var g errgroup.Group
	g.Go(func() error {
		defer videoW.Close()
		return writeFrames(videoW, src)
	})
	g.Go(func() error {
		defer audioW.Close()
		return writeSamples(audioW, samples)
	})
	writeErr := g.Wait()

	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("%w: ffmpeg failed: %v: %s", models.ErrExternalProcess, err, lastLine(stderr.String()))
	}
	if writeErr != nil {
		return "", fmt.Errorf("%w: %v", models.ErrIO, writeErr)
	}
	return outPath, nil
}

func writeFrames(w io.Writer, src Source) error {
	bw := bufio.NewWriter(w)
	for i := range src.FrameCount() {
		pix, err := src.FrameRGBA(i)
		if err != nil {
			return err
		}
		if _, err := bw.Write(pix); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeSamples(w io.Writer, samples []int16) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, samples); err != nil {
		return err
	}
	return bw.Flush()
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
