// Package hotbuf keeps the most recently appended records of a session
// in memory so page fetches over recent history never touch disk.
package hotbuf

import (
	"container/list"
	"sync"

	"github.com/capview/capview/pkg/metrics"
	"github.com/capview/capview/pkg/types"
)

// Buffer is a bounded double-ended sequence of records plus an
// index-to-record map kept in lock-step with it. Under normal append
// traffic it holds exactly the capacity highest indices written so far.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	order    *list.List // front = oldest, back = newest
	byIndex  map[uint64]*list.Element
}

// New creates a buffer holding at most capacity records.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		capacity: capacity,
		order:    list.New(),
		byIndex:  make(map[uint64]*list.Element, capacity),
	}
}

// Push inserts rec, evicting the single oldest record first when at
// capacity. Sequence and map are updated together so a record never
// exists in one but not the other.
func (b *Buffer) Push(rec types.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.push(rec)
}

func (b *Buffer) push(rec types.Record) {
	if b.order.Len() >= b.capacity {
		oldest := b.order.Front()
		b.order.Remove(oldest)
		delete(b.byIndex, oldest.Value.(types.Record).Index)
		metrics.HotBufferEvictions.Inc()
	}
	b.byIndex[rec.Index] = b.order.PushBack(rec)
}

// Get looks up a record by index in O(1). A miss is not an error; it
// tells the caller to fall back to the disk path.
func (b *Buffer) Get(index uint64) (types.Record, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	el, ok := b.byIndex[index]
	if !ok {
		return types.Record{}, false
	}
	return el.Value.(types.Record), true
}

// Reload clears the buffer and rebuilds it from the tail of recs,
// keeping at most capacity of the most recent entries. recs must be
// sorted ascending by index.
func (b *Buffer) Reload(recs []types.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.order.Init()
	b.byIndex = make(map[uint64]*list.Element, b.capacity)

	start := 0
	if len(recs) > b.capacity {
		start = len(recs) - b.capacity
	}
	for _, rec := range recs[start:] {
		b.push(rec)
	}
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.order.Len()
}

// Capacity returns the buffer's configured bound.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// OldestIndex returns the lowest buffered index, or false when empty.
func (b *Buffer) OldestIndex() (uint64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	front := b.order.Front()
	if front == nil {
		return 0, false
	}
	return front.Value.(types.Record).Index, true
}
