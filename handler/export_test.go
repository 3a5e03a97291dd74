package handler

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zheomara/ScribbleToDoc/model"
	"github.com/zheomara/ScribbleToDoc/service"
)

func newExportHandlerForTest(t *testing.T) (*ExportHandler, *service.PageStore, *service.BatchRunner) {
	t.Helper()
	store := service.NewPageStore(0)
	runner := service.NewBatchRunner(store, echoEngine{}, model.OCRConfig{})
	return NewExportHandler(store, runner), store, runner
}

func runBatch(t *testing.T, store *service.PageStore, runner *service.BatchRunner, texts ...string) {
	t.Helper()
	for i, text := range texts {
		addBatchPage(store, "page-"+string(rune('a'+i)), text)
	}
	run, err := runner.Start(context.Background())
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}
	run.Wait()
}

func TestExportHandlerText(t *testing.T) {
	handler, store, runner := newExportHandlerForTest(t)
	runBatch(t, store, runner, "page one", "page two")

	router := gin.New()
	router.GET("/export/text", handler.Text)

	req := httptest.NewRequest("GET", "/export/text", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "page one\n\npage two" {
		t.Errorf("Unexpected text body %q", got)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "document.txt") {
		t.Errorf("Expected attachment disposition, got %q", cd)
	}
}

func TestExportHandlerEmptyOutput(t *testing.T) {
	handler, _, _ := newExportHandlerForTest(t)

	router := gin.New()
	router.GET("/export/text", handler.Text)
	router.GET("/export/docx", handler.Docx)
	router.GET("/export/archive", handler.Archive)

	for _, path := range []string{"/export/text", "/export/docx", "/export/archive"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusConflict {
			t.Errorf("%s: expected status 409 before any run, got %d", path, w.Code)
		}
	}
}

func TestExportHandlerDocx(t *testing.T) {
	handler, store, runner := newExportHandlerForTest(t)
	runBatch(t, store, runner, "hello notes")

	router := gin.New()
	router.GET("/export/docx", handler.Docx)

	req := httptest.NewRequest("GET", "/export/docx?title=Field+Notes", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "wordprocessingml") {
		t.Errorf("Expected DOCX content type, got %q", ct)
	}

	reader, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("Expected valid DOCX package: %v", err)
	}
	var sawDocument bool
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			sawDocument = true
		}
	}
	if !sawDocument {
		t.Error("Expected word/document.xml in the package")
	}
}

func TestExportHandlerArchive(t *testing.T) {
	handler, store, runner := newExportHandlerForTest(t)
	runBatch(t, store, runner, "page one", "page two")

	// An extra pending page must not produce an archive entry.
	store.Append(&model.Page{ID: "pending", Status: model.StatusPending, CreatedAt: time.Now()})

	router := gin.New()
	router.GET("/export/archive", handler.Archive)

	req := httptest.NewRequest("GET", "/export/archive", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	reader, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("Expected valid ZIP archive: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range reader.File {
		names[f.Name] = true
	}
	if !names["document.txt"] {
		t.Error("Expected document.txt entry")
	}
	if !names["document.docx"] {
		t.Error("Expected document.docx entry")
	}
	pageEntries := 0
	for name := range names {
		if strings.HasPrefix(name, "pages/") {
			pageEntries++
		}
	}
	if pageEntries != 2 {
		t.Errorf("Expected 2 page entries, got %d", pageEntries)
	}
}
