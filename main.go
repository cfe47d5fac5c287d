package main

import (
	"crypto/rsa"
	"log"
	"os"
	"os/exec"

	"flipnote-backend/crypto"
	"flipnote-backend/handlers"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {
	cfg, err := loadConfig(os.Getenv("FLIPNOTE_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := checkToolAvailability(cfg.Tools.Lame, "--version"); err != nil {
		log.Printf("⚠ LAME encoder not found, MP3 export disabled: %v", err)
	} else {
		log.Printf("✓ LAME encoder found and ready for MP3 encoding")
	}
	if err := checkToolAvailability(cfg.Tools.FFmpeg, "-version"); err != nil {
		log.Printf("⚠ ffmpeg not found, video export disabled: %v", err)
	} else {
		log.Printf("✓ ffmpeg found and ready for video export")
	}

	signingKey, err := loadSigningKey(cfg.Signing.PrivateKey)
	if err != nil {
		log.Fatalf("Failed to load signing key: %v", err)
	}

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Origins()
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", handlers.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{
		"X-Flipnote-PSNR", "X-Flipnote-PSNR-Warning", "X-Flipnote-Signed",
		"X-Frame-Count", "X-Frame-Width", "X-Frame-Height", "X-Framerate",
		handlers.RequestIDHeader, "Content-Disposition",
	}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))
	router.Use(requestID())

	flipnoteHandler := handlers.NewFlipnoteHandler(handlers.Options{
		FFmpeg:           cfg.Tools.FFmpeg,
		Lame:             cfg.Tools.Lame,
		ExportSampleRate: cfg.Audio.ExportSampleRate,
		MaxUploadBytes:   cfg.Server.MaxUploadMB << 20,
		SigningKey:       signingKey,
	})

	api := router.Group("/api/v1")
	{
		api.GET("/health", flipnoteHandler.HealthCheck)

		flipnote := api.Group("/flipnote")
		{
			flipnote.POST("/inspect", flipnoteHandler.Inspect)
			flipnote.POST("/verify", flipnoteHandler.Verify)
			flipnote.POST("/sign", flipnoteHandler.Sign)
			flipnote.POST("/audio", flipnoteHandler.Audio)
			flipnote.POST("/thumbnail", flipnoteHandler.Thumbnail)
			flipnote.POST("/frame", flipnoteHandler.Frame)
			flipnote.POST("/frames", flipnoteHandler.Frames)
			flipnote.POST("/thumbnail/replace", flipnoteHandler.ReplaceThumbnail)
			flipnote.POST("/track/replace", flipnoteHandler.ReplaceTrack)
			flipnote.POST("/video", flipnoteHandler.Video)
		}
	}

	log.Printf("Server starting on port %s", cfg.Server.Port)
	log.Printf("API endpoints:")
	log.Printf("  POST /api/v1/flipnote/inspect           - Header, metadata and signature summary (JSON)")
	log.Printf("  POST /api/v1/flipnote/verify            - Check the RSA signature (vendor key or uploaded PEM)")
	log.Printf("  POST /api/v1/flipnote/sign              - Re-sign with an uploaded or configured private key")
	log.Printf("  POST /api/v1/flipnote/audio             - Export mixed soundtrack or one track (WAV/MP3)")
	log.Printf("  POST /api/v1/flipnote/thumbnail         - Export thumbnail (PNG)")
	log.Printf("  POST /api/v1/flipnote/frame             - Export one composited frame (PNG)")
	log.Printf("  POST /api/v1/flipnote/frames            - Export all frames as zstd-compressed RGBA")
	log.Printf("  POST /api/v1/flipnote/thumbnail/replace - Replace the thumbnail from an image")
	log.Printf("  POST /api/v1/flipnote/track/replace     - Replace BGM or a sound effect from WAV/MP3/OGG/FLAC")
	log.Printf("  POST /api/v1/flipnote/video             - Render to MP4 through ffmpeg")
	log.Printf("  GET  /api/v1/health                     - Health check")

	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// requestID tags every request with an id, reusing one sent by the client
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(handlers.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(handlers.RequestIDKey, id)
		c.Header(handlers.RequestIDHeader, id)
		c.Next()
	}
}

// loadSigningKey reads the PEM private key at path. An empty path means signing needs an uploaded key.
func loadSigningKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := crypto.ParsePrivateKey(data)
	if err != nil {
		return nil, err
	}
	log.Printf("✓ Signing key loaded from %s (%d bits)", path, key.N.BitLen())
	return key, nil
}

// checkToolAvailability verifies that an external encoder is installed and accessible
func checkToolAvailability(tool, versionFlag string) error {
	cmd := exec.Command(tool, versionFlag)
	return cmd.Run()
}
