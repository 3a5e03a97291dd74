package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/zheomara/ScribbleToDoc/model"
)

// TesseractEngine is the local transcription engine, backed by gosseract.
// Each call uses a fresh client; the library is not safe for concurrent use
// of a single client across goroutines.
type TesseractEngine struct {
	maxDimension  int
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine constructs a Tesseract-backed engine. maxDimension caps
// the longer image edge before recognition (0 disables downscaling).
func NewTesseractEngine(maxDimension int) *TesseractEngine {
	return &TesseractEngine{
		maxDimension:  maxDimension,
		clientFactory: gosseract.NewClient,
	}
}

// Transcribe implements Transcriber. The image is enhanced per cfg
// (grayscale/contrast/threshold) before recognition; progress is coarse since
// Tesseract reports none of its own.
func (e *TesseractEngine) Transcribe(ctx context.Context, image model.SourceImage, cfg model.OCRConfig, onProgress func(float64)) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if len(image.Data) == 0 {
		return "", fmt.Errorf("no image bytes for local transcription")
	}

	if onProgress != nil {
		onProgress(0)
	}

	data, err := EnhanceImage(image.Data, cfg, e.maxDimension)
	if err != nil {
		return "", fmt.Errorf("enhance image: %w", err)
	}
	if onProgress != nil {
		onProgress(0.3)
	}

	client := e.clientFactory()
	defer client.Close()

	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if cfg.Language != "" {
		if err := client.SetLanguage(cfg.Language); err != nil {
			return "", fmt.Errorf("set language: %w", err)
		}
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}

	if onProgress != nil {
		onProgress(1)
	}
	return strings.TrimSpace(text), nil
}
