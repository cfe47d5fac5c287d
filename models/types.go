// Package models contain needed models
package models

// APIResponse is the error/status body returned by every endpoint
type APIResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// FlipnoteSummary is the result of the inspect endpoint
type FlipnoteSummary struct {
	Success         bool          `json:"success"`
	FormatVersion   uint16        `json:"format_version"`
	FrameCount      int           `json:"frame_count"`
	Framerate       float64       `json:"framerate"`
	BGMFramerate    float64       `json:"bgm_framerate"`
	Locked          bool          `json:"locked"`
	Loop            bool          `json:"loop"`
	HideLayer1      bool          `json:"hide_layer_1"`
	HideLayer2      bool          `json:"hide_layer_2"`
	ThumbnailIndex  uint16        `json:"thumbnail_index"`
	Timestamp       string        `json:"timestamp"`
	RootAuthor      AuthorSummary `json:"root_author"`
	ParentAuthor    AuthorSummary `json:"parent_author"`
	CurrentAuthor   AuthorSummary `json:"current_author"`
	ParentFilename  string        `json:"parent_filename"`
	CurrentFilename string        `json:"current_filename"`
	RootFragment    string        `json:"root_fragment"`
	Tracks          TrackSummary  `json:"tracks"`
	SignatureValid  bool          `json:"signature_valid"`
}

// AuthorSummary holds one author name/id pair
type AuthorSummary struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// TrackSummary holds the stored ADPCM byte size of each track
type TrackSummary struct {
	BGM int `json:"bgm"`
	SE1 int `json:"se1"`
	SE2 int `json:"se2"`
	SE3 int `json:"se3"`
}

// VerifyResponse represents the result of a signature check
type VerifyResponse struct {
	Success          bool `json:"success"`
	Valid            bool `json:"valid"`
	OriginalValid    bool `json:"original_valid"`
	CustomKeyChecked bool `json:"custom_key_checked"`
}

// AudioMetadata represents metadata about an audio file
type AudioMetadata struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   float64
	TotalBytes int
	Title      string
	Artist     string
}
