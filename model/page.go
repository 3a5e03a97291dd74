package model

import (
	"time"
)

// Page represents one scanned/photographed note page in the batch.
type Page struct {
	ID         string      `json:"id"`
	Index      int         `json:"index"`
	Filename   string      `json:"filename"`
	Owner      string      `json:"owner,omitempty"`
	Image      SourceImage `json:"-"`
	ObjectName string      `json:"-"`
	ImageURL   string      `json:"image_url,omitempty"`
	Status     string      `json:"status"` // pending, processing, completed, error
	Progress   float64     `json:"progress"`
	ResultText string      `json:"result_text,omitempty"`
	ErrorMsg   string      `json:"error_msg,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// SourceImage holds the raw image bytes plus where they can be fetched from.
// Data is never mutated after ingestion.
type SourceImage struct {
	Data        []byte
	ContentType string
	// URL is a presigned link to the stored object, used by engines that
	// consume the image by reference instead of by value.
	URL string
}

// Page status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// OCRConfig is an immutable snapshot of transcription parameters. It is
// passed by value into each transcription call and never mutated mid-run.
type OCRConfig struct {
	Language  string  `json:"language"`
	Grayscale bool    `json:"grayscale"`
	Contrast  float64 `json:"contrast"`
	Threshold int     `json:"threshold"`
}
