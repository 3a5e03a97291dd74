package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zheomara/ScribbleToDoc/model"
)

// ConcurrencyLimit caps simultaneous transcription calls. Three keeps the
// outbound connections to the transcription backend below its rate limits
// while still overlapping network latency.
const ConcurrencyLimit = 3

// PlaceholderText is the chunk recorded for a failed page so the pages after
// it are never starved out of the assembled document.
const PlaceholderText = "[transcription failed]"

var (
	// ErrRunInProgress signals that StartBatch was called while a run is active.
	ErrRunInProgress = errors.New("a batch run is already in progress")
	// ErrCredentialsRequired signals that the transcription backend credential
	// is missing; no work is started.
	ErrCredentialsRequired = errors.New("transcription backend credentials are required")
)

// Transcriber turns one page image into text. Implementations are expected to
// be slow (network or CPU bound) and may report fractional progress in [0,1]
// zero or more times before settling. The batch core never retries a failed
// call; a failure is terminal for that page within the run.
type Transcriber interface {
	Transcribe(ctx context.Context, image model.SourceImage, cfg model.OCRConfig, onProgress func(float64)) (string, error)
}

// Configurable is implemented by engines that need external configuration
// before they can accept work.
type Configurable interface {
	Configured() error
}

// Run is the handle for one batch invocation.
type Run struct {
	// Pending holds the original indices dispatched by this run, ascending.
	Pending []int
	started time.Time
	done    chan struct{}
}

// Done is closed when every claimed page has published its result.
func (run *Run) Done() <-chan struct{} { return run.done }

// Wait blocks until the run has finished.
func (run *Run) Wait() { <-run.done }

// BatchRunner drives a bounded worker pool over the page store's pending
// pages and reassembles the results in original page order into a single
// growing output text.
type BatchRunner struct {
	store  *PageStore
	engine Transcriber
	ocr    model.OCRConfig

	mu      sync.Mutex
	running bool

	outMu  sync.RWMutex
	output string
}

// NewBatchRunner creates a runner. ocr is the immutable parameter snapshot
// passed by value into every transcription call.
func NewBatchRunner(store *PageStore, engine Transcriber, ocr model.OCRConfig) *BatchRunner {
	return &BatchRunner{
		store:  store,
		engine: engine,
		ocr:    ocr,
	}
}

// Running reports whether a batch run is currently active.
func (r *BatchRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Output returns the assembled document text flushed so far. Callers may
// observe partial output while a run is still active.
func (r *BatchRunner) Output() string {
	r.outMu.RLock()
	defer r.outMu.RUnlock()
	return r.output
}

// ResetOutput discards the assembled text. Only valid between runs; the
// caller enforces that.
func (r *BatchRunner) ResetOutput() {
	r.outMu.Lock()
	r.output = ""
	r.outMu.Unlock()
}

// Start begins a batch run over every page that is not already completed.
//
// It returns ErrRunInProgress while a run is active and ErrCredentialsRequired
// when the engine is missing its external configuration; in both cases no
// work is started. With nothing pending it returns an already-finished run.
// Otherwise it launches min(ConcurrencyLimit, pending) workers and returns
// immediately; the run completes in the background when all workers join.
func (r *BatchRunner) Start(ctx context.Context) (*Run, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrRunInProgress
	}
	if c, ok := r.engine.(Configurable); ok {
		if err := c.Configured(); err != nil {
			r.mu.Unlock()
			return nil, err
		}
	}

	run := &Run{
		Pending: r.store.PendingIndices(),
		started: time.Now(),
		done:    make(chan struct{}),
	}
	if len(run.Pending) == 0 {
		r.mu.Unlock()
		close(run.done)
		slog.Info("batch run skipped, no pending pages")
		return run, nil
	}
	r.running = true
	r.mu.Unlock()

	reasm := NewReassembler(run.Pending, r.appendChunk)

	workers := ConcurrencyLimit
	if len(run.Pending) < workers {
		workers = len(run.Pending)
	}

	slog.Info("batch run started", "pending", len(run.Pending), "workers", workers)
	r.store.Broadcast(Event{Type: EventRun, Running: true})

	// Shared claim cursor: each increment reserves one offset into
	// run.Pending for exactly one worker.
	var cursor atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.work(ctx, run, reasm, &cursor)
		}()
	}

	go func() {
		wg.Wait()
		if !reasm.Done() {
			// Every claimed page publishes exactly once, so a non-empty
			// buffer after the join means a publish was lost.
			slog.Error("reassembly incomplete after worker join",
				"buffered", reasm.Buffered(),
				"frontier", reasm.Frontier(),
			)
		}
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		slog.Info("batch run finished",
			"pages", len(run.Pending),
			"elapsed_ms", time.Since(run.started).Milliseconds(),
		)
		r.store.Broadcast(Event{Type: EventRun, Running: false})
		close(run.done)
	}()

	return run, nil
}

// work claims offsets from the shared cursor until the pending list is
// exhausted. Claim order follows strictly increasing original index;
// completion order is unconstrained.
func (r *BatchRunner) work(ctx context.Context, run *Run, reasm *Reassembler, cursor *atomic.Int64) {
	for {
		claim := int(cursor.Add(1)) - 1
		if claim >= len(run.Pending) {
			return
		}
		r.processPage(ctx, run.Pending[claim], reasm)
	}
}

// processPage runs one page through the transcription port. The publish to
// the reassembler is deferred so it happens exactly once on every path.
func (r *BatchRunner) processPage(ctx context.Context, index int, reasm *Reassembler) {
	chunk := PlaceholderText
	defer func() {
		reasm.Publish(index, chunk)
	}()

	page := r.store.ByIndex(index)
	if page == nil {
		// The caller guarantees no removal during a run; an empty chunk
		// keeps the frontier moving if that guarantee is ever broken.
		chunk = ""
		return
	}

	r.store.SetProcessing(index)

	text, err := r.engine.Transcribe(ctx, page.Image, r.ocr, func(p float64) {
		r.store.SetProgress(index, p)
	})
	if err != nil {
		slog.Error("page transcription failed",
			"page_id", page.ID,
			"index", index,
			"error", err,
		)
		r.store.SetResult(index, model.StatusError, PlaceholderText, err.Error())
		return
	}

	chunk = text
	r.store.SetResult(index, model.StatusCompleted, text, "")
}

// appendChunk receives flushed chunks from the reassembler in index order.
// Consecutive non-empty chunks are joined with one blank line; empty chunks
// advance the frontier without leaving separator artifacts.
func (r *BatchRunner) appendChunk(chunk string) {
	if chunk == "" {
		return
	}
	r.outMu.Lock()
	if r.output != "" {
		r.output += "\n\n"
	}
	r.output += chunk
	out := r.output
	r.outMu.Unlock()

	r.store.Broadcast(Event{Type: EventOutput, Output: out})
}
