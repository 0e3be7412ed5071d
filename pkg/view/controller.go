// Package view maps the growing record index space onto fixed-size
// pages and reconciles new arrivals with the page being displayed.
package view

import (
	"fmt"
	"sort"
	"sync"

	"github.com/capview/capview/pkg/metrics"
	"github.com/capview/capview/pkg/types"
)

// Mode is the controller's browsing state.
type Mode int

const (
	// BrowsingLatest follows the newest page as the stream grows.
	BrowsingLatest Mode = iota
	// BrowsingHistory holds a fixed page while new records accumulate.
	BrowsingHistory
)

// RecordSource supplies records no longer resident in memory.
type RecordSource interface {
	RangeRead(start, end uint64) ([]types.Record, error)
}

// HotLookup is the in-memory fast path consulted before RecordSource.
type HotLookup interface {
	Get(index uint64) (types.Record, bool)
}

// Controller tracks the current page over [0, next). Pages are 1-based
// and derived purely from next and the page size, never stored.
type Controller struct {
	mu          sync.Mutex
	pageSize    int
	autoAdvance bool
	hot         HotLookup
	source      RecordSource

	next    uint64 // records written so far cover [0, next)
	page    int
	mode    Mode
	pending int
	dirty   bool
}

// NewController starts in browsing-latest over an empty stream.
func NewController(pageSize int, autoAdvance bool, hot HotLookup, source RecordSource) *Controller {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Controller{
		pageSize:    pageSize,
		autoAdvance: autoAdvance,
		hot:         hot,
		source:      source,
		page:        1,
		mode:        BrowsingLatest,
	}
}

func pagesFor(total uint64, size int) int {
	if total == 0 {
		return 0
	}
	return int((total + uint64(size) - 1) / uint64(size))
}

func (c *Controller) pageStart(page int) uint64 {
	return uint64(page-1) * uint64(c.pageSize)
}

// OnAppend reconciles the view with a newly committed record. It must
// be called by the same consumer that persisted the record so the view
// never observes an index that is not yet readable.
func (c *Controller) OnAppend(index uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevTotal := pagesFor(c.next, c.pageSize)
	if prevTotal == 0 {
		prevTotal = 1
	}
	if index >= c.next {
		c.next = index + 1
	}
	total := pagesFor(c.next, c.pageSize)

	switch {
	case c.autoAdvance && c.mode == BrowsingLatest && c.page == prevTotal && total > prevTotal:
		c.page = total
		c.pending = 0
		c.dirty = true
	case c.page == total && c.pageStart(c.page) <= index:
		// The displayed last page just grew.
		c.dirty = true
	case c.page < total:
		c.mode = BrowsingHistory
		c.pending++
		metrics.PendingPageRecords.Inc()
	}
}

// JumpToLatest snaps the view to the newest page and clears the
// pending-new counter.
func (c *Controller) JumpToLatest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jumpToLatest()
}

func (c *Controller) jumpToLatest() {
	total := pagesFor(c.next, c.pageSize)
	if total == 0 {
		total = 1
	}
	c.page = total
	c.pending = 0
	c.dirty = true
	c.mode = BrowsingLatest
}

// NextPage moves forward one page, clamped to the last page. Entering
// the last page resumes following the latest.
func (c *Controller) NextPage() {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := pagesFor(c.next, c.pageSize)
	if total == 0 || c.page >= total {
		return
	}
	c.page++
	c.dirty = true
	if c.page == total {
		c.mode = BrowsingLatest
		c.pending = 0
	} else {
		c.mode = BrowsingHistory
	}
}

// PrevPage moves back one page, clamped to page 1.
func (c *Controller) PrevPage() {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := pagesFor(c.next, c.pageSize)
	if total == 0 || c.page <= 1 {
		return
	}
	c.page--
	c.dirty = true
	c.mode = BrowsingHistory
}

// SetPageSize changes the page size and snaps back to the newest page;
// a mid-history page has no stable anchor across sizes.
func (c *Controller) SetPageSize(p int) error {
	if p <= 0 {
		return fmt.Errorf("page size must be positive, got %d", p)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageSize = p
	c.jumpToLatest()
	return nil
}

// Reset re-anchors the controller on a reloaded stream of next records.
func (c *Controller) Reset(next uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = next
	c.jumpToLatest()
}

// CurrentView fetches the records of the page being viewed.
func (c *Controller) CurrentView() (types.View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchView(c.page)
}

// FetchView fetches an explicit page, clamping numbers past the end to
// the last valid page rather than failing.
func (c *Controller) FetchView(page int) (types.View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchView(page)
}

func (c *Controller) fetchView(page int) (types.View, error) {
	if c.next == 0 {
		c.dirty = false
		return types.View{PageNumber: 1, TotalPages: 0, PendingNew: c.pending}, nil
	}

	total := pagesFor(c.next, c.pageSize)
	if page < 1 {
		page = 1
	}
	if page > total {
		page = total
	}

	start := c.pageStart(page)
	end := start + uint64(c.pageSize) - 1
	if end > c.next-1 {
		end = c.next - 1
	}

	// Hot-buffer hits first; one disk range read per contiguous run of
	// misses. The two sources are disjoint under correct operation, but
	// the hot value wins if they ever overlap.
	merged := make(map[uint64]types.Record, c.pageSize)
	var missStart uint64
	missing := false
	flush := func(upTo uint64) error {
		recs, err := c.source.RangeRead(missStart, upTo)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if _, ok := merged[rec.Index]; !ok {
				merged[rec.Index] = rec
			}
		}
		return nil
	}

	for i := start; i <= end; i++ {
		if rec, ok := c.hot.Get(i); ok {
			if missing {
				if err := flush(i - 1); err != nil {
					return types.View{}, err
				}
				missing = false
			}
			merged[i] = rec
		} else if !missing {
			missing = true
			missStart = i
		}
	}
	if missing {
		if err := flush(end); err != nil {
			return types.View{}, err
		}
	}

	records := make([]types.Record, 0, len(merged))
	for _, rec := range merged {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Index < records[j].Index })

	c.page = page
	c.dirty = false
	return types.View{
		Records:    records,
		Start:      start,
		End:        end,
		PageNumber: page,
		TotalPages: total,
		PendingNew: c.pending,
	}, nil
}

// Page returns the 1-based page currently being viewed.
func (c *Controller) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// TotalPages returns the page count for the current stream length.
func (c *Controller) TotalPages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return pagesFor(c.next, c.pageSize)
}

// PendingNew returns how many records arrived while browsing history.
func (c *Controller) PendingNew() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Dirty reports whether the displayed page must be refetched.
func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// CurrentMode returns the browsing state.
func (c *Controller) CurrentMode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}
