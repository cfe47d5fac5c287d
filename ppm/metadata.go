package ppm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"flipnote-backend/models"

	"golang.org/x/text/encoding/unicode"
)

const (
	authorNameSize  = 22
	authorNameChars = authorNameSize / 2
	filenameSize    = 18
	metadataSize    = offsetThumbnail - offsetMetadata
)

// Metadata is the fixed block between the file header and the thumbnail
type Metadata struct {
	Lock              uint16
	ThumbnailIndex    uint16
	RootAuthorName    [authorNameSize]byte
	ParentAuthorName  [authorNameSize]byte
	CurrentAuthorName [authorNameSize]byte
	ParentAuthorID    uint64
	CurrentAuthorID   uint64
	ParentFilename    [filenameSize]byte
	CurrentFilename   [filenameSize]byte
	RootAuthorID      uint64
	RootFileFragment  [8]byte
	Timestamp         uint32
	Padding           [2]byte
}

func parseMetadata(c *Cursor) (Metadata, error) {
	var m Metadata
	if err := c.Seek(offsetMetadata); err != nil {
		return m, err
	}
	raw, err := c.take(metadataSize)
	if err != nil {
		return m, err
	}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &m); err != nil {
		return m, fmt.Errorf("%w: metadata: %v", models.ErrFormat, err)
	}
	return m, nil
}

// write emits the fields in the order parseMetadata reads them
func (m *Metadata) write(w *Writer) {
	w.WriteU16(m.Lock)
	w.WriteU16(m.ThumbnailIndex)
	w.WriteBytes(m.RootAuthorName[:])
	w.WriteBytes(m.ParentAuthorName[:])
	w.WriteBytes(m.CurrentAuthorName[:])
	w.WriteU64(m.ParentAuthorID)
	w.WriteU64(m.CurrentAuthorID)
	w.WriteBytes(m.ParentFilename[:])
	w.WriteBytes(m.CurrentFilename[:])
	w.WriteU64(m.RootAuthorID)
	w.WriteBytes(m.RootFileFragment[:])
	w.WriteU32(m.Timestamp)
	w.WriteBytes(m.Padding[:])
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DecodeAuthorName turns a stored UTF-16LE name into a string
func DecodeAuthorName(raw [authorNameSize]byte) string {
	s, err := utf16le.NewDecoder().Bytes(raw[:])
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(s), "\x00")
}

// EncodeAuthorName packs at most 11 UTF-16 code units, zero padded
func EncodeAuthorName(name string) ([authorNameSize]byte, error) {
	var out [authorNameSize]byte
	if n := len(utf16.Encode([]rune(name))); n > authorNameChars {
		return out, fmt.Errorf("%w: author name %q is %d characters, limit is %d", models.ErrArgument, name, n, authorNameChars)
	}
	b, err := utf16le.NewEncoder().Bytes([]byte(name))
	if err != nil {
		return out, fmt.Errorf("%w: author name %q: %v", models.ErrArgument, name, err)
	}
	copy(out[:], b)
	return out, nil
}

// FormatFilename renders a stored filename as MAC_NAME_EDITS
func FormatFilename(raw [filenameSize]byte) string {
	edits := binary.LittleEndian.Uint16(raw[16:])
	return fmt.Sprintf("%02X%02X%02X_%s_%03d", raw[0], raw[1], raw[2], string(raw[3:16]), edits)
}

// FormatID renders an author id the way the handheld shows it
func FormatID(id uint64) string {
	return fmt.Sprintf("%016X", id)
}

func (m *Metadata) Locked() bool { return m.Lock != 0 }

func (m *Metadata) RootAuthor() string    { return DecodeAuthorName(m.RootAuthorName) }
func (m *Metadata) ParentAuthor() string  { return DecodeAuthorName(m.ParentAuthorName) }
func (m *Metadata) CurrentAuthor() string { return DecodeAuthorName(m.CurrentAuthorName) }

// SetCurrentAuthor stores the name of whoever last edited the flipnote
func (m *Metadata) SetCurrentAuthor(name string) error {
	raw, err := EncodeAuthorName(name)
	if err != nil {
		return err
	}
	m.CurrentAuthorName = raw
	return nil
}

func (m *Metadata) RootFragment() string {
	return fmt.Sprintf("%X", m.RootFileFragment[:])
}

// Time is the last edit time
func (m *Metadata) Time() time.Time {
	return time.Unix(int64(m.Timestamp)+unixEpochOffset, 0).UTC()
}

// SetTime stamps the last edit time. Times before 2000 cannot be stored.
func (m *Metadata) SetTime(t time.Time) error {
	secs := t.Unix() - unixEpochOffset
	if secs < 0 || secs > 0xFFFFFFFF {
		return fmt.Errorf("%w: time %s cannot be stored", models.ErrArgument, t)
	}
	m.Timestamp = uint32(secs)
	return nil
}
