package service

import (
	"sync"
)

// Reassembler buffers out-of-order page results and flushes them strictly in
// dispatch order. It is the classic reordering buffer: results may arrive in
// any order, but the sink only ever sees the chunk for the smallest
// not-yet-flushed index, then the next, and so on.
//
// order is the ascending list of original page indices dispatched in this
// run; frontier is an offset into it. A result for order[frontier] unblocks
// the flush loop, which drains every contiguous buffered entry.
type Reassembler struct {
	mu       sync.Mutex
	order    []int
	frontier int
	buffered map[int]string
	sink     func(chunk string)
}

// NewReassembler creates a reassembler for one run. order must be the
// strictly ascending sequence of indices that will be published; sink is
// called once per flushed chunk, in order.
func NewReassembler(order []int, sink func(chunk string)) *Reassembler {
	return &Reassembler{
		order:    order,
		buffered: make(map[int]string),
		sink:     sink,
	}
}

// Publish hands in the result for one original index. Every dispatched index
// must be published exactly once; failed pages publish their placeholder.
func (r *Reassembler) Publish(index int, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffered[index] = text

	for r.frontier < len(r.order) {
		next := r.order[r.frontier]
		chunk, ok := r.buffered[next]
		if !ok {
			break
		}
		delete(r.buffered, next)
		r.frontier++
		r.sink(chunk)
	}
}

// Done reports whether every index in the dispatch order has been flushed.
func (r *Reassembler) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frontier == len(r.order) && len(r.buffered) == 0
}

// Buffered returns the number of results waiting for the frontier to catch up.
func (r *Reassembler) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffered)
}

// Frontier returns the original index the reassembler is waiting on, or one
// past the last dispatched index once everything has flushed.
func (r *Reassembler) Frontier() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frontier >= len(r.order) {
		if len(r.order) == 0 {
			return 0
		}
		return r.order[len(r.order)-1] + 1
	}
	return r.order[r.frontier]
}
