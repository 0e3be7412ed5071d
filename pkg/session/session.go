// Package session ties one capture stream together: the segment
// writer, the hot buffer, the disk read path, and the paged view.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/capview/capview/pkg/config"
	"github.com/capview/capview/pkg/hotbuf"
	"github.com/capview/capview/pkg/storage"
	"github.com/capview/capview/pkg/types"
	"github.com/capview/capview/pkg/view"
	"github.com/capview/capview/util"
)

// Session is a named, time-bounded logical stream of records. It owns
// exactly one active writer and a single consumer goroutine that, per
// record, persists, caches, and notifies the view as one step. That
// total ordering is what keeps disk, hot buffer, and page state agreed.
type Session struct {
	name string
	dir  string

	writer  *storage.SegmentWriter
	scanner *storage.Scanner
	hot     *hotbuf.Buffer
	view    *view.Controller

	intake       chan json.RawMessage
	done         chan struct{}
	wg           sync.WaitGroup
	drainTimeout time.Duration

	next atomic.Uint64

	mu        sync.Mutex
	stopped   bool
	drained   bool
	closeOnce sync.Once
}

// Open starts a session in cfg.DataDir. An empty name gets a generated
// capture name. A name with segments already on disk resumes: writes
// continue after the highest stored index, and the hot buffer and view
// are rebuilt from the persisted tail.
func Open(cfg *config.Config, name string) (*Session, error) {
	if name == "" {
		name = fmt.Sprintf("capture_%s_%s", time.Now().Format("20060102_150405"), uuid.NewString()[:8])
	}

	writer, err := storage.OpenWriter(cfg.DataDir, name, cfg.MaxSegmentBytes)
	if err != nil {
		return nil, err
	}

	s := &Session{
		name:         name,
		dir:          cfg.DataDir,
		writer:       writer,
		scanner:      storage.NewScanner(cfg.DataDir, cfg.FileCacheFiles),
		hot:          hotbuf.New(cfg.HotBufferSize),
		intake:       make(chan json.RawMessage, cfg.QueueSize),
		done:         make(chan struct{}),
		drainTimeout: time.Duration(cfg.DrainTimeoutMS) * time.Millisecond,
	}
	s.view = view.NewController(cfg.PageSize, cfg.AutoAdvance, s.hot, readSource{s})

	next, err := s.scanner.NextIndex(name)
	if err != nil {
		writer.Close()
		return nil, err
	}
	if next > 0 {
		s.next.Store(next)
		start := uint64(0)
		if capacity := uint64(cfg.HotBufferSize); next > capacity {
			start = next - capacity
		}
		if recs, err := s.scanner.RangeRead(name, start, next-1, writer.ActivePath()); err == nil {
			s.hot.Reload(recs)
		}
		s.view.Reset(next)
	}

	s.wg.Add(1)
	go s.consume()

	if next > 0 {
		util.Info("session %s resumed at index %d in %s", name, next, cfg.DataDir)
	} else {
		util.Info("session %s started in %s", name, cfg.DataDir)
	}
	return s, nil
}

// readSource adapts the session's disk path for the view controller.
type readSource struct{ s *Session }

func (r readSource) RangeRead(start, end uint64) ([]types.Record, error) {
	return r.s.RangeRead(start, end)
}

// Name returns the session's name, the filename prefix of its segments.
func (s *Session) Name() string { return s.name }

// View returns the session's page controller.
func (s *Session) View() *view.Controller { return s.view }

// NextIndex returns the index the next accepted record will receive.
func (s *Session) NextIndex() uint64 { return s.next.Load() }

// Offer hands a producer payload to the pipeline. It reports false when
// the session has stopped; such payloads are discarded, never retried.
func (s *Session) Offer(payload json.RawMessage) bool {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return false
	}

	select {
	case s.intake <- payload:
		return true
	case <-s.done:
		return false
	}
}

// consume is the single consumer: it drains the intake queue and, for
// each record, persists, caches, and notifies the view in that order.
// On stop it finishes in-flight work within the drain timeout.
func (s *Session) consume() {
	defer s.wg.Done()
	for {
		select {
		case payload := <-s.intake:
			s.ingest(payload)
		case <-s.done:
			deadline := time.NewTimer(s.drainTimeout)
			defer deadline.Stop()
			for {
				select {
				case payload := <-s.intake:
					s.ingest(payload)
				case <-deadline.C:
					util.Warn("session %s: drain timed out with %d records still queued", s.name, len(s.intake))
					return
				default:
					return
				}
			}
		}
	}
}

func (s *Session) ingest(payload json.RawMessage) {
	index := s.next.Load()
	rec := types.Record{Index: index, Timestamp: time.Now(), Data: payload}

	// A storage fault is non-fatal: the record keeps its index and stays
	// readable from the hot buffer while it remains resident.
	if err := s.writer.Append(rec); err != nil {
		util.Error("session %s: append %d failed: %v", s.name, index, err)
	}
	s.hot.Push(rec)
	s.view.OnAppend(index)

	s.next.Add(1)
}

// Stop closes the intake, waits (bounded) for the queue to drain, then
// closes the writer. Safe to call more than once.
func (s *Session) Stop() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		close(s.done)
		s.wg.Wait()
		err = s.writer.Close()

		s.mu.Lock()
		s.drained = true
		s.mu.Unlock()
		util.Info("session %s stopped at %d records", s.name, s.next.Load())
	})
	return err
}

// activePath names the segment reads must bypass. It keeps reporting
// the writer's segment until the stop drain has finished; only then is
// every segment closed and safe to cache.
func (s *Session) activePath() string {
	s.mu.Lock()
	drained := s.drained
	s.mu.Unlock()
	if drained {
		return ""
	}
	return s.writer.ActivePath()
}

// RangeRead returns the session's records in [start, end] from disk,
// re-reading the active segment on every call.
func (s *Session) RangeRead(start, end uint64) ([]types.Record, error) {
	return s.scanner.RangeRead(s.name, start, end, s.activePath())
}

// PointRead serves index from the hot buffer when possible and falls
// back to a disk scan otherwise.
func (s *Session) PointRead(index uint64) (types.Record, bool, error) {
	if rec, ok := s.hot.Get(index); ok {
		return rec, true, nil
	}
	return s.scanner.PointRead(s.name, index, s.activePath())
}

// Export writes every readable record of the session to a single JSON
// array file.
func (s *Session) Export(path string) error {
	next := s.next.Load()
	recs := []types.Record{}
	if next > 0 {
		var err error
		recs, err = s.RangeRead(0, next-1)
		if err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Import replaces the session's in-memory state with the contents of an
// exported capture file: the hot buffer is rebuilt from the tail of the
// loaded set and the view snaps to the newest page. Only a stopped
// session can be loaded into.
func (s *Session) Import(path string) (int, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if !stopped {
		return 0, fmt.Errorf("session %s is still capturing", s.name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var recs []types.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return 0, fmt.Errorf("decode capture file %s: %w", path, err)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Index < recs[j].Index })

	s.hot.Reload(recs)
	next := uint64(0)
	if len(recs) > 0 {
		next = recs[len(recs)-1].Index + 1
	}
	s.next.Store(next)
	s.view.Reset(next)

	util.Info("session %s: loaded %d records from %s", s.name, len(recs), path)
	return len(recs), nil
}
