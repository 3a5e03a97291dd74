package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zheomara/ScribbleToDoc/model"
	"github.com/zheomara/ScribbleToDoc/service"
)

type BatchHandler struct {
	store  *service.PageStore
	runner *service.BatchRunner
}

func NewBatchHandler(store *service.PageStore, runner *service.BatchRunner) *BatchHandler {
	return &BatchHandler{store: store, runner: runner}
}

// Start launches a batch run over all pages that are not yet completed. The
// run proceeds in the background; callers track it via Status or Events.
func (h *BatchHandler) Start(c *gin.Context) {
	// The run outlives the HTTP request.
	run, err := h.runner.Start(context.Background())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRunInProgress):
			c.JSON(http.StatusConflict, gin.H{"code": "run_in_progress", "error": err.Error()})
		case errors.Is(err, service.ErrCredentialsRequired):
			c.JSON(http.StatusPreconditionFailed, gin.H{"code": "credentials_required", "error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"started": len(run.Pending) > 0,
		"pending": len(run.Pending),
	})
}

// Status reports whether a run is active and the per-status page counts.
func (h *BatchHandler) Status(c *gin.Context) {
	pages := h.store.List()
	counts := map[string]int{
		model.StatusPending:    0,
		model.StatusProcessing: 0,
		model.StatusCompleted:  0,
		model.StatusError:      0,
	}
	for _, page := range pages {
		counts[page.Status]++
	}

	c.JSON(http.StatusOK, gin.H{
		"running": h.runner.Running(),
		"total":   len(pages),
		"counts":  counts,
	})
}

// Output returns the assembled document text flushed so far.
func (h *BatchHandler) Output(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running": h.runner.Running(),
		"output":  h.runner.Output(),
	})
}

// Events streams store change notifications over SSE until the client
// disconnects.
func (h *BatchHandler) Events(c *gin.Context) {
	id, ch := h.store.Subscribe()
	defer h.store.Unsubscribe(id)

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(event.Type), event)
			return true
		case <-clientGone:
			return false
		}
	})
}
