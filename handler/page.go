package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zheomara/ScribbleToDoc/middleware"
	"github.com/zheomara/ScribbleToDoc/model"
	"github.com/zheomara/ScribbleToDoc/service"
)

// ImageStorage persists page images and mints presigned URLs for them.
// Implemented by service.MinioService.
type ImageStorage interface {
	UploadImage(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, objectName string) (string, error)
	DeleteImage(ctx context.Context, objectName string) error
	DeleteImages(ctx context.Context, objectNames []string) error
}

var allowedImageExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

type PageHandler struct {
	storage        ImageStorage
	store          *service.PageStore
	runner         *service.BatchRunner
	maxUploadBytes int64
}

func NewPageHandler(storage ImageStorage, store *service.PageStore, runner *service.BatchRunner, maxUploadSizeMB int) *PageHandler {
	return &PageHandler{
		storage:        storage,
		store:          store,
		runner:         runner,
		maxUploadBytes: int64(maxUploadSizeMB) * 1024 * 1024,
	}
}

// Upload ingests one or more page images. Pages are appended to the batch in
// the order the files appear in the form.
func (h *PageHandler) Upload(c *gin.Context) {
	owner := middleware.GetUsername(c)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form"})
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}

	created := make([]gin.H, 0, len(files))
	for _, header := range files {
		page, err := h.ingestFile(c, header, owner)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":    fmt.Sprintf("%s: %v", header.Filename, err),
				"uploaded": created,
			})
			return
		}
		created = append(created, gin.H{
			"id":       page.ID,
			"index":    page.Index,
			"filename": page.Filename,
			"status":   page.Status,
		})
	}

	c.JSON(http.StatusOK, gin.H{"pages": created})
}

func (h *PageHandler) ingestFile(c *gin.Context, header *multipart.FileHeader, owner string) (*model.Page, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	expectedContentType, ok := allowedImageExts[ext]
	if !ok {
		return nil, fmt.Errorf("only JPEG, PNG and GIF images are allowed")
	}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		return nil, fmt.Errorf("file exceeds the %d MB upload limit", h.maxUploadBytes/(1024*1024))
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if h.maxUploadBytes > 0 && int64(len(data)) > h.maxUploadBytes {
		return nil, fmt.Errorf("file exceeds the %d MB upload limit", h.maxUploadBytes/(1024*1024))
	}

	// Sniff the actual content; the declared header is often octet-stream.
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("file content is not an image")
	}
	if contentType == "application/octet-stream" {
		contentType = expectedContentType
	}

	pageID := uuid.New().String()
	objectName := fmt.Sprintf("pages/%s/%s", pageID, header.Filename)

	ctx := c.Request.Context()
	if err := h.storage.UploadImage(ctx, objectName, strings.NewReader(string(data)), int64(len(data)), contentType); err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	imageURL, err := h.storage.PresignedURL(ctx, objectName)
	if err != nil {
		return nil, fmt.Errorf("failed to generate image URL: %w", err)
	}

	page := &model.Page{
		ID:       pageID,
		Filename: header.Filename,
		Owner:    owner,
		Image: model.SourceImage{
			Data:        data,
			ContentType: contentType,
			URL:         imageURL,
		},
		ObjectName: objectName,
		ImageURL:   imageURL,
		Status:     model.StatusPending,
		CreatedAt:  time.Now(),
	}

	if _, err := h.store.Append(page); err != nil {
		if derr := h.storage.DeleteImage(ctx, objectName); derr != nil {
			slog.Warn("failed to clean up stored image", "object", objectName, "error", derr)
		}
		return nil, err
	}

	return page, nil
}

// List returns all pages in original order with live status and progress.
func (h *PageHandler) List(c *gin.Context) {
	pages := h.store.List()

	// Result text is omitted from the list view
	result := make([]gin.H, len(pages))
	for i, page := range pages {
		result[i] = gin.H{
			"id":         page.ID,
			"index":      page.Index,
			"filename":   page.Filename,
			"status":     page.Status,
			"progress":   page.Progress,
			"error_msg":  page.ErrorMsg,
			"image_url":  page.ImageURL,
			"created_at": page.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			"updated_at": page.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	c.JSON(http.StatusOK, gin.H{"pages": result})
}

// Get returns a single page including its transcribed text.
func (h *PageHandler) Get(c *gin.Context) {
	page := h.store.Get(c.Param("id"))
	if page == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Page not found"})
		return
	}

	c.JSON(http.StatusOK, page)
}

// Image redirects to a fresh presigned URL for the page's stored image. The
// URL minted at upload time expires, so clients fetch through here instead.
func (h *PageHandler) Image(c *gin.Context) {
	page := h.store.Get(c.Param("id"))
	if page == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Page not found"})
		return
	}

	url, err := h.storage.PresignedURL(c.Request.Context(), page.ObjectName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate image URL"})
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, url)
}

// Retry resets an errored page to pending so the next batch run picks it up.
func (h *PageHandler) Retry(c *gin.Context) {
	if h.runner.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": "Cannot retry while a batch run is in progress"})
		return
	}

	id := c.Param("id")
	if h.store.Get(id) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Page not found"})
		return
	}
	if err := h.store.ResetToPending(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Page reset to pending"})
}

// Delete removes a single page. Rejected while a run is active because it
// invalidates the run's index bookkeeping.
func (h *PageHandler) Delete(c *gin.Context) {
	if h.runner.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": "Cannot delete pages while a batch run is in progress"})
		return
	}

	removed := h.store.Remove(c.Param("id"))
	if removed == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Page not found"})
		return
	}

	if err := h.storage.DeleteImage(c.Request.Context(), removed.ObjectName); err != nil {
		slog.Warn("failed to delete stored image", "object", removed.ObjectName, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Page deleted"})
}

// Clear resets the page list and the assembled output text.
func (h *PageHandler) Clear(c *gin.Context) {
	if h.runner.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": "Cannot clear pages while a batch run is in progress"})
		return
	}

	removed := h.store.Clear()
	h.runner.ResetOutput()

	objectNames := make([]string, 0, len(removed))
	for _, page := range removed {
		objectNames = append(objectNames, page.ObjectName)
	}
	if err := h.storage.DeleteImages(c.Request.Context(), objectNames); err != nil {
		slog.Warn("failed to delete stored images on clear", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"message": "All pages cleared", "removed": len(removed)})
}
