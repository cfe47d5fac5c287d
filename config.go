package main

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

//go:embed resources/defaultConfig.ini
var defaultConfig []byte

type Config struct {
	Server struct {
		Port         string `ini:"Port"`
		AllowOrigins string `ini:"AllowOrigins"`
		MaxUploadMB  int64  `ini:"MaxUploadMB"`
	} `ini:"Server"`
	Audio struct {
		ExportSampleRate int `ini:"ExportSampleRate"`
	} `ini:"Audio"`
	Tools struct {
		FFmpeg string `ini:"FFmpeg"`
		Lame   string `ini:"Lame"`
	} `ini:"Tools"`
	Signing struct {
		PrivateKey string `ini:"PrivateKey"`
	} `ini:"Signing"`
}

// loadConfig layers the optional file at path over the embedded defaults
func loadConfig(path string) (*Config, error) {
	options := ini.LoadOptions{
		SkipUnrecognizableLines: true,
	}

	var iniFile *ini.File
	var err error
	if path == "" {
		iniFile, err = ini.LoadSources(options, defaultConfig)
	} else {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, fmt.Errorf("config file %s: %v", path, statErr)
		}
		iniFile, err = ini.LoadSources(options, defaultConfig, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %v", err)
	}

	var c Config
	if err := iniFile.MapTo(&c); err != nil {
		return nil, fmt.Errorf("failed to map config: %v", err)
	}

	if port := os.Getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = 32
	}
	if c.Audio.ExportSampleRate <= 0 {
		return nil, fmt.Errorf("invalid [Audio] ExportSampleRate %d", c.Audio.ExportSampleRate)
	}
	return &c, nil
}

func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.Server.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
