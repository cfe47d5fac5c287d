// Package handlers is made to handle requests
package handlers

import (
	"bytes"
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"flipnote-backend/audio"
	"flipnote-backend/crypto"
	"flipnote-backend/imaging"
	"flipnote-backend/models"
	"flipnote-backend/ppm"
	"flipnote-backend/video"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zstd"
)

const (
	RequestIDKey    = "request_id"
	RequestIDHeader = "X-Request-ID"

	videoTimeout = 2 * time.Minute

	// below this the re-encoded track is audibly degraded
	minTrackPSNR = 20.0
)

// Options configures a FlipnoteHandler
type Options struct {
	FFmpeg           string
	Lame             string
	ExportSampleRate int
	MaxUploadBytes   int64
	SigningKey       *rsa.PrivateKey
}

type FlipnoteHandler struct {
	audioDecoder *audio.AudioDecoder
	opts         Options
}

func NewFlipnoteHandler(opts Options) *FlipnoteHandler {
	if opts.ExportSampleRate <= 0 {
		opts.ExportSampleRate = ppm.PlaybackSampleRate
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	return &FlipnoteHandler{
		audioDecoder: audio.NewAudioDecoder(opts.Lame),
		opts:         opts,
	}
}

var zstdEncPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderConcurrency(1),
			zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
		)
		if err != nil {
			panic(err)
		}
		return enc
	},
}

func compressZstd(data []byte) []byte {
	enc := zstdEncPool.Get().(*zstd.Encoder)
	out := enc.EncodeAll(data, nil)
	zstdEncPool.Put(enc)
	return out
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrFormat), errors.Is(err, models.ErrArgument),
		errors.Is(err, models.ErrBounds), errors.Is(err, models.ErrCodec):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrCrypto):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, status int, message string) {
	requestID := c.GetString(RequestIDKey)
	log.Printf("[%s] %s %s: %d %s", requestID, c.Request.Method, c.Request.URL.Path, status, message)
	c.JSON(status, models.APIResponse{
		Success:   false,
		Message:   message,
		RequestID: requestID,
	})
}

func failErr(c *gin.Context, action string, err error) {
	fail(c, statusFor(err), fmt.Sprintf("%s: %v", action, err))
}

func sendFile(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Transfer-Encoding", "binary")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, contentType, data)
}

// readUpload returns the bytes and filename of a multipart file field
func (h *FlipnoteHandler) readUpload(c *gin.Context, field string, required bool) ([]byte, string, bool) {
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		if required {
			fail(c, http.StatusBadRequest, fmt.Sprintf("Form file %q is required", field))
		}
		return nil, "", !required
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Sprintf("Failed to read %q: %v", field, err))
		return nil, "", false
	}
	return data, header.Filename, true
}

// loadFlipnote parses the form and the uploaded flipnote
func (h *FlipnoteHandler) loadFlipnote(c *gin.Context) (*ppm.File, string, bool) {
	if err := c.Request.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		fail(c, http.StatusBadRequest, fmt.Sprintf("Failed to parse form: %v", err))
		return nil, "", false
	}

	data, filename, ok := h.readUpload(c, "flipnote", true)
	if !ok {
		return nil, "", false
	}
	if ext := filepath.Ext(filename); ext != "" && !strings.EqualFold(ext, ppm.Extension) {
		fail(c, http.StatusBadRequest, "Invalid file format. Only .ppm flipnotes are supported")
		return nil, "", false
	}

	f, err := ppm.Load(data)
	if err != nil {
		failErr(c, "Failed to parse flipnote", err)
		return nil, "", false
	}
	return f, strings.TrimSuffix(filename, filepath.Ext(filename)), true
}

// stampEdit records an edit: the optional "author" form field becomes the
// current author and the timestamp moves to now
func stampEdit(c *gin.Context, f *ppm.File) bool {
	if author := c.PostForm("author"); author != "" {
		if err := f.Metadata.SetCurrentAuthor(author); err != nil {
			failErr(c, "Invalid author", err)
			return false
		}
	}
	if err := f.Metadata.SetTime(time.Now()); err != nil {
		failErr(c, "Failed to stamp edit time", err)
		return false
	}
	return true
}

func (h *FlipnoteHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "Flipnote API is running",
		"version": "1.0.0",
	})
}

func (h *FlipnoteHandler) Inspect(c *gin.Context) {
	f, _, ok := h.loadFlipnote(c)
	if !ok {
		return
	}

	fps, err := f.Framerate()
	if err != nil {
		failErr(c, "Invalid playback speed", err)
		return
	}
	bgmFps, err := f.Sound.BGMFramerate()
	if err != nil {
		failErr(c, "Invalid BGM playback speed", err)
		return
	}
	valid, err := f.VerifyOriginalSignature()
	if err != nil {
		failErr(c, "Failed to check signature", err)
		return
	}

	m := &f.Metadata
	hide1, _ := f.Animation.Flags.HideLayer(1)
	hide2, _ := f.Animation.Flags.HideLayer(2)

	c.JSON(http.StatusOK, models.FlipnoteSummary{
		Success:         true,
		FormatVersion:   f.FormatVersion,
		FrameCount:      f.FrameCount(),
		Framerate:       fps,
		BGMFramerate:    bgmFps,
		Locked:          m.Locked(),
		Loop:            f.Animation.Flags.Loop(),
		HideLayer1:      hide1,
		HideLayer2:      hide2,
		ThumbnailIndex:  m.ThumbnailIndex,
		Timestamp:       m.Time().Format(time.RFC3339),
		RootAuthor:      models.AuthorSummary{Name: m.RootAuthor(), ID: ppm.FormatID(m.RootAuthorID)},
		ParentAuthor:    models.AuthorSummary{Name: m.ParentAuthor(), ID: ppm.FormatID(m.ParentAuthorID)},
		CurrentAuthor:   models.AuthorSummary{Name: m.CurrentAuthor(), ID: ppm.FormatID(m.CurrentAuthorID)},
		ParentFilename:  ppm.FormatFilename(m.ParentFilename),
		CurrentFilename: ppm.FormatFilename(m.CurrentFilename),
		RootFragment:    m.RootFragment(),
		Tracks: models.TrackSummary{
			BGM: f.Sound.TrackSize(ppm.TrackBGM),
			SE1: f.Sound.TrackSize(ppm.TrackSE1),
			SE2: f.Sound.TrackSize(ppm.TrackSE2),
			SE3: f.Sound.TrackSize(ppm.TrackSE3),
		},
		SignatureValid: valid,
	})
}

// Verify checks the signature against the vendor key, or an uploaded "public_key" PEM
func (h *FlipnoteHandler) Verify(c *gin.Context) {
	f, _, ok := h.loadFlipnote(c)
	if !ok {
		return
	}

	keyPEM, _, ok := h.readUpload(c, "public_key", false)
	if !ok {
		return
	}

	var svc *crypto.Service
	var err error
	if keyPEM != nil {
		key, err := crypto.ParsePublicKey(keyPEM)
		if err != nil {
			failErr(c, "Invalid public key", err)
			return
		}
		svc = crypto.NewServiceWithKey(key)
	} else if svc, err = crypto.NewService(); err != nil {
		failErr(c, "Failed to load vendor key", err)
		return
	}

	c.JSON(http.StatusOK, models.VerifyResponse{
		Success:          true,
		Valid:            f.VerifySignatureWith(svc),
		OriginalValid:    f.VerifyOriginalSignatureWith(svc),
		CustomKeyChecked: keyPEM != nil,
	})
}

// Sign re-signs with an uploaded "private_key" PEM or the configured key
func (h *FlipnoteHandler) Sign(c *gin.Context) {
	f, name, ok := h.loadFlipnote(c)
	if !ok {
		return
	}

	keyPEM, _, ok := h.readUpload(c, "private_key", false)
	if !ok {
		return
	}
	key := h.opts.SigningKey
	if keyPEM != nil {
		parsed, err := crypto.ParsePrivateKey(keyPEM)
		if err != nil {
			failErr(c, "Invalid private key", err)
			return
		}
		key = parsed
	}
	if key == nil {
		fail(c, http.StatusBadRequest, "No signing key uploaded or configured")
		return
	}
	if c.PostForm("author") != "" && !stampEdit(c, f) {
		return
	}

	if err := f.Sign(key); err != nil {
		failErr(c, "Failed to sign flipnote", err)
		return
	}

	c.Header("X-Flipnote-Signed", "true")
	sendFile(c, name+ppm.Extension, "application/octet-stream", f.Bytes())
}

// Audio exports the mixed soundtrack or one track as WAV or MP3
func (h *FlipnoteHandler) Audio(c *gin.Context) {
	f, name, ok := h.loadFlipnote(c)
	if !ok {
		return
	}

	rate := h.opts.ExportSampleRate
	if s := c.PostForm("sample_rate"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			fail(c, http.StatusBadRequest, "sample_rate must be a positive integer")
			return
		}
		rate = v
	}

	track := c.DefaultPostForm("track", "mixed")
	var samples []int16
	var err error
	if track == "mixed" {
		samples, err = f.MixedAudio(rate)
	} else {
		kind, kerr := ppm.ParseTrackKind(track)
		if kerr != nil {
			failErr(c, "Invalid track", kerr)
			return
		}
		samples, err = f.Sound.Track(kind, rate)
	}
	if err != nil {
		failErr(c, "Failed to decode audio", err)
		return
	}

	switch format := c.DefaultPostForm("format", "wav"); format {
	case "wav":
		data, err := h.audioDecoder.EncodeWAV(samples, rate)
		if err != nil {
			failErr(c, "Failed to encode WAV", err)
			return
		}
		sendFile(c, fmt.Sprintf("%s_%s.wav", name, track), "audio/wav", data)
	case "mp3":
		data, err := h.audioDecoder.EncodeMP3(samples, &models.AudioMetadata{
			SampleRate: rate,
			Channels:   audio.Channels,
			BitDepth:   audio.BitDepth,
			Title:      ppm.FormatFilename(f.Metadata.CurrentFilename),
			Artist:     f.Metadata.CurrentAuthor(),
		})
		if err != nil {
			failErr(c, "Failed to encode MP3", err)
			return
		}
		sendFile(c, fmt.Sprintf("%s_%s.mp3", name, track), "audio/mpeg", data)
	default:
		fail(c, http.StatusBadRequest, fmt.Sprintf("Unsupported audio format %q", format))
	}
}

func (h *FlipnoteHandler) Thumbnail(c *gin.Context) {
	f, name, ok := h.loadFlipnote(c)
	if !ok {
		return
	}
	data, err := imaging.EncodePNG(f.Thumbnail.Image())
	if err != nil {
		failErr(c, "Failed to encode thumbnail", err)
		return
	}
	sendFile(c, name+"_thumb.png", "image/png", data)
}

// Frame renders the frame at form field "index" as PNG
func (h *FlipnoteHandler) Frame(c *gin.Context) {
	f, name, ok := h.loadFlipnote(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.DefaultPostForm("index", "0"))
	if err != nil {
		fail(c, http.StatusBadRequest, "index must be an integer")
		return
	}
	img, err := f.FrameImage(index)
	if err != nil {
		failErr(c, "Failed to render frame", err)
		return
	}
	data, err := imaging.EncodePNG(img)
	if err != nil {
		failErr(c, "Failed to encode frame", err)
		return
	}
	sendFile(c, fmt.Sprintf("%s_%03d.png", name, index), "image/png", data)
}

// Frames returns every composited frame as zstd-compressed packed RGBA
func (h *FlipnoteHandler) Frames(c *gin.Context) {
	f, name, ok := h.loadFlipnote(c)
	if !ok {
		return
	}
	fps, err := f.Framerate()
	if err != nil {
		failErr(c, "Invalid playback speed", err)
		return
	}

	raw := make([]byte, 0, f.FrameCount()*ppm.ScreenWidth*ppm.ScreenHeight*4)
	for i := range f.FrameCount() {
		pix, err := f.FrameRGBA(i)
		if err != nil {
			failErr(c, "Failed to render frames", err)
			return
		}
		raw = append(raw, pix...)
	}

	c.Header("X-Frame-Count", strconv.Itoa(f.FrameCount()))
	c.Header("X-Frame-Width", strconv.Itoa(ppm.ScreenWidth))
	c.Header("X-Frame-Height", strconv.Itoa(ppm.ScreenHeight))
	c.Header("X-Framerate", strconv.FormatFloat(fps, 'f', -1, 64))
	sendFile(c, name+".rgba.zst", "application/zstd", compressZstd(raw))
}

// ReplaceThumbnail quantizes the uploaded "image" into the thumbnail
func (h *FlipnoteHandler) ReplaceThumbnail(c *gin.Context) {
	f, name, ok := h.loadFlipnote(c)
	if !ok {
		return
	}
	data, _, ok := h.readUpload(c, "image", true)
	if !ok {
		return
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		failErr(c, "Failed to read image", err)
		return
	}

	mapper := imaging.NewMapper(c.PostForm("dither") == "true")
	if err := f.ReplaceThumbnail(img, mapper); err != nil {
		failErr(c, "Failed to replace thumbnail", err)
		return
	}
	if !stampEdit(c, f) {
		return
	}

	c.Header("X-Flipnote-Signed", "false")
	sendFile(c, name+ppm.Extension, "application/octet-stream", f.Bytes())
}

// ReplaceTrack encodes the uploaded "audio" file into the track named by "track"
func (h *FlipnoteHandler) ReplaceTrack(c *gin.Context) {
	f, name, ok := h.loadFlipnote(c)
	if !ok {
		return
	}
	kind, err := ppm.ParseTrackKind(c.DefaultPostForm("track", "bgm"))
	if err != nil {
		failErr(c, "Invalid track", err)
		return
	}
	data, filename, ok := h.readUpload(c, "audio", true)
	if !ok {
		return
	}

	samples, meta, err := h.audioDecoder.Decode(filename, data)
	if err != nil {
		failErr(c, "Failed to decode audio", err)
		return
	}
	psnr, err := f.ReplaceTrack(kind, samples, meta.SampleRate)
	if err != nil {
		failErr(c, "Failed to encode track", err)
		return
	}
	if !stampEdit(c, f) {
		return
	}

	c.Header("X-Flipnote-PSNR", strconv.FormatFloat(psnr, 'f', 2, 64))
	if !audio.ValidatePSNR(psnr, minTrackPSNR) {
		log.Printf("[%s] %s track PSNR %.2f dB is below %.0f dB", c.GetString(RequestIDKey), kind, psnr, minTrackPSNR)
		c.Header("X-Flipnote-PSNR-Warning", "true")
	}
	c.Header("X-Flipnote-Signed", "false")
	sendFile(c, name+ppm.Extension, "application/octet-stream", f.Bytes())
}

// Video renders the flipnote to MP4 through ffmpeg
func (h *FlipnoteHandler) Video(c *gin.Context) {
	f, name, ok := h.loadFlipnote(c)
	if !ok {
		return
	}

	exporter, err := video.NewExporter(h.opts.FFmpeg, h.opts.ExportSampleRate)
	if err != nil {
		failErr(c, "Video export unavailable", err)
		return
	}

	dir, err := os.MkdirTemp("", "flipnote_video_*")
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Sprintf("Failed to create temp dir: %v", err))
		return
	}
	defer os.RemoveAll(dir)

	ctx, cancel := context.WithTimeout(c.Request.Context(), videoTimeout)
	defer cancel()

	out, err := exporter.Export(ctx, f, filepath.Join(dir, "video"+video.Extension))
	if err != nil {
		failErr(c, "Failed to export video", err)
		return
	}
	data, err := os.ReadFile(out)
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Sprintf("Failed to read video: %v", err))
		return
	}
	sendFile(c, name+video.Extension, "video/mp4", data)
}
