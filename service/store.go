package service

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zheomara/ScribbleToDoc/model"
)

// ErrStoreFull is returned when the page list has reached its configured cap.
var ErrStoreFull = errors.New("page store is full")

// EventType classifies store change notifications.
type EventType string

const (
	// EventPage signals that a single page's status/progress/result changed.
	EventPage EventType = "page"
	// EventOutput signals that the assembled output text grew.
	EventOutput EventType = "output"
	// EventRun signals a batch run starting or finishing.
	EventRun EventType = "run"
	// EventClear signals that the page list was reset.
	EventClear EventType = "clear"
)

// Event is a change notification. Page carries a snapshot copy so receivers
// never observe later mutations.
type Event struct {
	Type     EventType   `json:"type"`
	Revision uint64      `json:"revision"`
	Page     *model.Page `json:"page,omitempty"`
	Running  bool        `json:"running,omitempty"`
	Output   string      `json:"output,omitempty"`
}

// PageStore is the ordered in-memory collection of batch pages. Pages are
// append-only; point updates address a single page by index or id and never
// reorder the list. Mutations are broadcast to subscribers instead of
// replacing the whole collection.
type PageStore struct {
	mu       sync.RWMutex
	pages    []*model.Page
	byID     map[string]*model.Page
	maxPages int
	revision uint64

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewPageStore creates a store capped at maxPages entries (0 = unlimited).
func NewPageStore(maxPages int) *PageStore {
	if maxPages < 0 {
		maxPages = 0
	}
	return &PageStore{
		pages:    make([]*model.Page, 0),
		byID:     make(map[string]*model.Page),
		maxPages: maxPages,
		subs:     make(map[int]chan Event),
	}
}

// Append adds a page at index = current list length and returns that index.
func (s *PageStore) Append(page *model.Page) (int, error) {
	s.mu.Lock()
	if s.maxPages > 0 && len(s.pages) >= s.maxPages {
		s.mu.Unlock()
		return 0, ErrStoreFull
	}

	page.Index = len(s.pages)
	page.UpdatedAt = time.Now()
	s.pages = append(s.pages, page)
	s.byID[page.ID] = page
	s.revision++
	snapshot := *page
	rev := s.revision
	s.mu.Unlock()

	s.broadcast(Event{Type: EventPage, Revision: rev, Page: &snapshot})
	return page.Index, nil
}

// Get returns a snapshot copy of the page with the given id, or nil.
func (s *PageStore) Get(id string) *model.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil
	}
	snapshot := *p
	return &snapshot
}

// ByIndex returns a snapshot copy of the page at the given index, or nil.
func (s *PageStore) ByIndex(index int) *model.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.pages) {
		return nil
	}
	snapshot := *s.pages[index]
	return &snapshot
}

// List returns snapshot copies of all pages in original order.
func (s *PageStore) List() []model.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.Page, len(s.pages))
	for i, p := range s.pages {
		result[i] = *p
	}
	return result
}

// Count returns the number of pages in the store.
func (s *PageStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// PendingIndices returns, in ascending order, the indices of all pages whose
// status is not completed. This is the work list for a batch run.
func (s *PageStore) PendingIndices() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var indices []int
	for i, p := range s.pages {
		if p.Status != model.StatusCompleted {
			indices = append(indices, i)
		}
	}
	return indices
}

// SetProcessing transitions the page at index to processing with progress 0.
func (s *PageStore) SetProcessing(index int) {
	s.updateAt(index, func(p *model.Page) {
		p.Status = model.StatusProcessing
		p.Progress = 0
		p.ErrorMsg = ""
	})
}

// SetProgress records transcription progress for the page at index. Values
// are clamped to [0,1] and may never decrease while the page is processing.
func (s *PageStore) SetProgress(index int, progress float64) {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	s.updateAt(index, func(p *model.Page) {
		if progress > p.Progress {
			p.Progress = progress
		}
	})
}

// SetResult records the terminal outcome of the page at index.
func (s *PageStore) SetResult(index int, status, text, errMsg string) {
	s.updateAt(index, func(p *model.Page) {
		p.Status = status
		p.ResultText = text
		p.ErrorMsg = errMsg
		if status == model.StatusCompleted {
			p.Progress = 1
		}
	})
}

// ResetToPending moves an errored page back to pending so the next run picks
// it up. Only valid between runs; the caller enforces that.
func (s *PageStore) ResetToPending(id string) error {
	s.mu.Lock()
	p, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return errors.New("page not found")
	}
	if p.Status != model.StatusError {
		s.mu.Unlock()
		return errors.New("only errored pages can be retried")
	}
	p.Status = model.StatusPending
	p.Progress = 0
	p.ResultText = ""
	p.ErrorMsg = ""
	p.UpdatedAt = time.Now()
	s.revision++
	snapshot := *p
	rev := s.revision
	s.mu.Unlock()

	s.broadcast(Event{Type: EventPage, Revision: rev, Page: &snapshot})
	return nil
}

// Remove deletes the page with the given id and reindexes the pages that
// follow it. Removal during an active run is the caller's responsibility to
// prevent; it would invalidate in-flight index bookkeeping.
func (s *PageStore) Remove(id string) *model.Page {
	s.mu.Lock()
	p, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.byID, id)
	s.pages = append(s.pages[:p.Index], s.pages[p.Index+1:]...)
	for i := p.Index; i < len(s.pages); i++ {
		s.pages[i].Index = i
	}
	s.revision++
	rev := s.revision
	snapshot := *p
	s.mu.Unlock()

	s.broadcast(Event{Type: EventClear, Revision: rev})
	return &snapshot
}

// Clear resets the page list. Only valid between runs.
func (s *PageStore) Clear() []model.Page {
	s.mu.Lock()
	removed := make([]model.Page, len(s.pages))
	for i, p := range s.pages {
		removed[i] = *p
	}
	s.pages = s.pages[:0]
	s.byID = make(map[string]*model.Page)
	s.revision++
	rev := s.revision
	s.mu.Unlock()

	s.broadcast(Event{Type: EventClear, Revision: rev})
	return removed
}

// Subscribe registers a change listener. The returned channel is buffered;
// events are dropped for receivers that fall behind rather than blocking
// store mutations.
func (s *PageStore) Subscribe() (int, <-chan Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, 64)
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (s *PageStore) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// Broadcast publishes an event to all subscribers. Used by the batch runner
// for output and run lifecycle notifications.
func (s *PageStore) Broadcast(event Event) {
	s.mu.Lock()
	s.revision++
	event.Revision = s.revision
	s.mu.Unlock()
	s.broadcast(event)
}

func (s *PageStore) broadcast(event Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- event:
		default:
			slog.Debug("dropping store event for slow subscriber", "subscriber", id)
		}
	}
}

func (s *PageStore) updateAt(index int, fn func(*model.Page)) {
	s.mu.Lock()
	if index < 0 || index >= len(s.pages) {
		s.mu.Unlock()
		return
	}
	p := s.pages[index]
	fn(p)
	p.UpdatedAt = time.Now()
	s.revision++
	snapshot := *p
	rev := s.revision
	s.mu.Unlock()

	s.broadcast(Event{Type: EventPage, Revision: rev, Page: &snapshot})
}
