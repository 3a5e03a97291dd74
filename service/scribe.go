package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/zheomara/ScribbleToDoc/config"
	"github.com/zheomara/ScribbleToDoc/model"
)

// ScribeService is the remote transcription engine. It drives the hosted
// handwriting-OCR API: create a task from an image URL, then poll the task
// until it settles, forwarding fractional progress along the way.
type ScribeService struct {
	config       *config.ScribeConfig
	httpClient   *http.Client
	pollInterval time.Duration
}

// scribeTaskRequest is the body for task creation.
type scribeTaskRequest struct {
	ImageURL  string  `json:"image_url"`
	Language  string  `json:"language,omitempty"`
	Grayscale bool    `json:"grayscale,omitempty"`
	Contrast  float64 `json:"contrast,omitempty"`
	Threshold int     `json:"threshold,omitempty"`
}

// scribeTaskResponse is the response from task creation.
type scribeTaskResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
}

// scribeTaskStatusResponse is the task status query response.
type scribeTaskStatusResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		TaskID   string `json:"task_id"`
		State    string `json:"state"` // pending, running, done, failed
		Text     string `json:"text,omitempty"`
		ErrorMsg string `json:"err_msg,omitempty"`
		Progress struct {
			DoneRegions  int `json:"done_regions"`
			TotalRegions int `json:"total_regions"`
		} `json:"progress,omitempty"`
	} `json:"data"`
}

func NewScribeService(cfg *config.ScribeConfig) *ScribeService {
	interval := time.Duration(cfg.PollIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &ScribeService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		pollInterval: interval,
	}
}

// Configured reports whether the remote backend can be called at all.
func (s *ScribeService) Configured() error {
	if s.config.APIURL == "" || s.config.APIToken == "" {
		return ErrCredentialsRequired
	}
	return nil
}

// Transcribe implements Transcriber against the remote task API. The image is
// consumed by reference: the backend fetches it from the presigned URL minted
// at ingestion.
func (s *ScribeService) Transcribe(ctx context.Context, image model.SourceImage, cfg model.OCRConfig, onProgress func(float64)) (string, error) {
	if err := s.Configured(); err != nil {
		return "", err
	}
	if image.URL == "" {
		return "", errors.New("remote transcription requires a stored image URL")
	}

	task, err := s.CreateTask(ctx, image.URL, cfg)
	if err != nil {
		return "", err
	}

	return s.awaitTask(ctx, task.Data.TaskID, onProgress)
}

// CreateTask submits a new transcription task for the given image URL.
func (s *ScribeService) CreateTask(ctx context.Context, imageURL string, cfg model.OCRConfig) (*scribeTaskResponse, error) {
	reqBody := scribeTaskRequest{
		ImageURL:  imageURL,
		Language:  cfg.Language,
		Grayscale: cfg.Grayscale,
		Contrast:  cfg.Contrast,
		Threshold: cfg.Threshold,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.APIURL+"/v1/transcriptions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result scribeTaskResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w, body: %s", err, string(body))
	}

	if result.Code != 0 {
		return nil, fmt.Errorf("scribe API error: %s", result.Message)
	}

	return &result, nil
}

// GetTaskStatus queries the status of a task.
func (s *ScribeService) GetTaskStatus(ctx context.Context, taskID string) (*scribeTaskStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/v1/transcriptions/%s", s.config.APIURL, taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
	req.Header.Set("Accept", "*/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result scribeTaskStatusResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Code != 0 {
		return nil, fmt.Errorf("scribe API error: %s", result.Message)
	}

	return &result, nil
}

// awaitTask polls until the task settles. Transient poll failures are logged
// and retried on the next tick; only a terminal state or attempt exhaustion
// ends the wait.
func (s *ScribeService) awaitTask(ctx context.Context, taskID string, onProgress func(float64)) (string, error) {
	interval := s.pollInterval
	maxAttempts := s.config.MaxPollAttempts
	if maxAttempts <= 0 {
		maxAttempts = 100
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		status, err := s.GetTaskStatus(ctx, taskID)
		if err != nil {
			slog.Warn("scribe poll failed", "task_id", taskID, "attempt", attempt, "error", err)
			continue
		}

		switch status.Data.State {
		case "done":
			if onProgress != nil {
				onProgress(1)
			}
			return status.Data.Text, nil
		case "failed":
			msg := status.Data.ErrorMsg
			if msg == "" {
				msg = "task failed"
			}
			return "", fmt.Errorf("scribe task failed: %s", msg)
		case "running":
			if onProgress != nil && status.Data.Progress.TotalRegions > 0 {
				onProgress(float64(status.Data.Progress.DoneRegions) / float64(status.Data.Progress.TotalRegions))
			}
		}
	}

	return "", fmt.Errorf("scribe task %s did not settle after %d polls", taskID, maxAttempts)
}
