package models

import "errors"

// Error kinds returned by the flipnote packages. Callers match them with errors.Is.
var (
	ErrFormat          = errors.New("format error")
	ErrBounds          = errors.New("bounds error")
	ErrCodec           = errors.New("codec error")
	ErrAudio           = errors.New("audio error")
	ErrCrypto          = errors.New("crypto error")
	ErrIO              = errors.New("io error")
	ErrArgument        = errors.New("argument error")
	ErrExternalProcess = errors.New("external process error")
)
