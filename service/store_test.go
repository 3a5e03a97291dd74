package service

import (
	"testing"
	"time"

	"github.com/zheomara/ScribbleToDoc/model"
)

func newStorePage(id, filename string) *model.Page {
	return &model.Page{
		ID:        id,
		Filename:  filename,
		Status:    model.StatusPending,
		CreatedAt: time.Now(),
	}
}

func TestPageStoreAppendAssignsIndices(t *testing.T) {
	store := NewPageStore(100)

	for i, id := range []string{"a", "b", "c"} {
		index, err := store.Append(newStorePage(id, id+".jpg"))
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if index != i {
			t.Errorf("Expected index %d, got %d", i, index)
		}
	}

	if store.Count() != 3 {
		t.Errorf("Expected 3 pages, got %d", store.Count())
	}

	page := store.ByIndex(1)
	if page == nil || page.ID != "b" {
		t.Errorf("Expected page b at index 1, got %+v", page)
	}

	if store.ByIndex(5) != nil {
		t.Error("Expected nil for out-of-range index")
	}
}

func TestPageStoreFull(t *testing.T) {
	store := NewPageStore(2)

	store.Append(newStorePage("a", "a.jpg"))
	store.Append(newStorePage("b", "b.jpg"))

	if _, err := store.Append(newStorePage("c", "c.jpg")); err != ErrStoreFull {
		t.Errorf("Expected ErrStoreFull, got %v", err)
	}
}

func TestPageStoreGetSnapshot(t *testing.T) {
	store := NewPageStore(100)
	store.Append(newStorePage("a", "a.jpg"))

	snapshot := store.Get("a")
	if snapshot == nil {
		t.Fatal("Expected to retrieve page")
	}

	// Mutating the snapshot must not leak into the store.
	snapshot.Status = model.StatusCompleted
	if store.Get("a").Status != model.StatusPending {
		t.Error("Snapshot mutation leaked into the store")
	}

	if store.Get("missing") != nil {
		t.Error("Expected nil for unknown id")
	}
}

func TestPageStorePendingIndices(t *testing.T) {
	store := NewPageStore(100)
	for _, id := range []string{"a", "b", "c", "d"} {
		store.Append(newStorePage(id, id+".jpg"))
	}

	store.SetResult(1, model.StatusCompleted, "done", "")
	store.SetResult(3, model.StatusError, PlaceholderText, "boom")

	pending := store.PendingIndices()
	// Completed pages are excluded; errored pages are re-dispatched.
	expected := []int{0, 2, 3}
	if len(pending) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, pending)
	}
	for i := range expected {
		if pending[i] != expected[i] {
			t.Fatalf("Expected %v, got %v", expected, pending)
		}
	}
}

func TestPageStoreProgressMonotonic(t *testing.T) {
	store := NewPageStore(100)
	store.Append(newStorePage("a", "a.jpg"))

	store.SetProcessing(0)
	store.SetProgress(0, 0.5)
	store.SetProgress(0, 0.3) // must not regress
	if got := store.ByIndex(0).Progress; got != 0.5 {
		t.Errorf("Expected progress 0.5, got %f", got)
	}

	store.SetProgress(0, 2.0) // clamped
	if got := store.ByIndex(0).Progress; got != 1.0 {
		t.Errorf("Expected progress clamped to 1.0, got %f", got)
	}

	store.SetProcessing(0) // transition resets progress
	if got := store.ByIndex(0).Progress; got != 0 {
		t.Errorf("Expected progress reset to 0, got %f", got)
	}
}

func TestPageStoreSetResult(t *testing.T) {
	store := NewPageStore(100)
	store.Append(newStorePage("a", "a.jpg"))

	store.SetResult(0, model.StatusCompleted, "hello", "")
	page := store.ByIndex(0)
	if page.Status != model.StatusCompleted || page.ResultText != "hello" {
		t.Errorf("Unexpected result state: %+v", page)
	}
	if page.Progress != 1 {
		t.Errorf("Expected completion to pin progress at 1, got %f", page.Progress)
	}

	store.SetResult(0, model.StatusError, PlaceholderText, "boom")
	page = store.ByIndex(0)
	if page.Status != model.StatusError || page.ErrorMsg != "boom" {
		t.Errorf("Unexpected error state: %+v", page)
	}

	// Out-of-range update must not panic.
	store.SetResult(42, model.StatusCompleted, "x", "")
}

func TestPageStoreResetToPending(t *testing.T) {
	store := NewPageStore(100)
	store.Append(newStorePage("a", "a.jpg"))

	if err := store.ResetToPending("a"); err == nil {
		t.Error("Expected error resetting a non-errored page")
	}

	store.SetResult(0, model.StatusError, PlaceholderText, "boom")
	if err := store.ResetToPending("a"); err != nil {
		t.Fatalf("ResetToPending failed: %v", err)
	}

	page := store.Get("a")
	if page.Status != model.StatusPending || page.ResultText != "" || page.ErrorMsg != "" {
		t.Errorf("Expected clean pending page, got %+v", page)
	}

	if err := store.ResetToPending("missing"); err == nil {
		t.Error("Expected error for unknown id")
	}
}

func TestPageStoreRemoveReindexes(t *testing.T) {
	store := NewPageStore(100)
	for _, id := range []string{"a", "b", "c"} {
		store.Append(newStorePage(id, id+".jpg"))
	}

	removed := store.Remove("b")
	if removed == nil || removed.ID != "b" {
		t.Fatalf("Expected to remove page b, got %+v", removed)
	}

	if store.Count() != 2 {
		t.Errorf("Expected 2 pages after removal, got %d", store.Count())
	}
	if page := store.ByIndex(1); page == nil || page.ID != "c" {
		t.Errorf("Expected page c reindexed to 1, got %+v", page)
	}
	if store.Get("b") != nil {
		t.Error("Expected removed page to be gone")
	}
	if store.Remove("missing") != nil {
		t.Error("Expected nil removing unknown id")
	}
}

func TestPageStoreClear(t *testing.T) {
	store := NewPageStore(100)
	store.Append(newStorePage("a", "a.jpg"))
	store.Append(newStorePage("b", "b.jpg"))

	removed := store.Clear()
	if len(removed) != 2 {
		t.Errorf("Expected 2 removed pages, got %d", len(removed))
	}
	if store.Count() != 0 {
		t.Errorf("Expected empty store, got %d", store.Count())
	}

	// Indices restart at zero after a clear.
	index, err := store.Append(newStorePage("c", "c.jpg"))
	if err != nil {
		t.Fatalf("Append after clear failed: %v", err)
	}
	if index != 0 {
		t.Errorf("Expected index 0 after clear, got %d", index)
	}
}

func TestPageStoreSubscribe(t *testing.T) {
	store := NewPageStore(100)

	id, events := store.Subscribe()
	defer store.Unsubscribe(id)

	store.Append(newStorePage("a", "a.jpg"))

	select {
	case event := <-events:
		if event.Type != EventPage {
			t.Errorf("Expected page event, got %s", event.Type)
		}
		if event.Page == nil || event.Page.ID != "a" {
			t.Errorf("Expected page snapshot for a, got %+v", event.Page)
		}
		if event.Revision == 0 {
			t.Error("Expected non-zero revision")
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for append event")
	}

	store.SetProcessing(0)
	select {
	case event := <-events:
		if event.Page == nil || event.Page.Status != model.StatusProcessing {
			t.Errorf("Expected processing snapshot, got %+v", event.Page)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for update event")
	}
}

func TestPageStoreUnsubscribeClosesChannel(t *testing.T) {
	store := NewPageStore(100)

	id, events := store.Subscribe()
	store.Unsubscribe(id)

	if _, ok := <-events; ok {
		t.Error("Expected closed channel after unsubscribe")
	}

	// Further mutations must not panic with the subscriber gone.
	store.Append(newStorePage("a", "a.jpg"))
}
