package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zheomara/ScribbleToDoc/model"
	"github.com/zheomara/ScribbleToDoc/service"
)

type ExportHandler struct {
	store  *service.PageStore
	runner *service.BatchRunner
}

func NewExportHandler(store *service.PageStore, runner *service.BatchRunner) *ExportHandler {
	return &ExportHandler{store: store, runner: runner}
}

func (h *ExportHandler) assembledOutput(c *gin.Context) (string, bool) {
	output := h.runner.Output()
	if output == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "Nothing to export, run a batch first"})
		return "", false
	}
	return output, true
}

// Text downloads the assembled document as plain text.
func (h *ExportHandler) Text(c *gin.Context) {
	output, ok := h.assembledOutput(c)
	if !ok {
		return
	}

	c.Header("Content-Disposition", `attachment; filename="document.txt"`)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(output))
}

// Docx downloads the assembled document as a Word file. The optional title
// query parameter becomes the document heading.
func (h *ExportHandler) Docx(c *gin.Context) {
	output, ok := h.assembledOutput(c)
	if !ok {
		return
	}

	title := c.DefaultQuery("title", "Transcribed Notes")
	data, err := service.RenderDocument(output, title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render document"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="document.docx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", data)
}

// Archive downloads a ZIP holding the assembled document in both formats plus
// one text file per transcribed page.
func (h *ExportHandler) Archive(c *gin.Context) {
	output, ok := h.assembledOutput(c)
	if !ok {
		return
	}

	docx, err := service.RenderDocument(output, c.DefaultQuery("title", "Transcribed Notes"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render document"})
		return
	}

	entries := []service.ArchiveEntry{
		{Name: "document.txt", Data: []byte(output)},
		{Name: "document.docx", Data: docx},
	}
	for _, page := range h.store.List() {
		if page.Status != model.StatusCompleted && page.Status != model.StatusError {
			continue
		}
		entries = append(entries, service.ArchiveEntry{
			Name: fmt.Sprintf("pages/%03d-%s.txt", page.Index+1, page.ID),
			Data: []byte(page.ResultText),
		})
	}

	data, err := service.RenderArchive(entries)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render archive"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="transcription.zip"`)
	c.Data(http.StatusOK, "application/zip", data)
}
