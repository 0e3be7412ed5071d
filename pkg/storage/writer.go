package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/capview/capview/pkg/metrics"
	"github.com/capview/capview/pkg/types"
	"github.com/capview/capview/util"
)

// maxConsecutiveFaults is the number of back-to-back append failures
// after which the writer stops attempting I/O.
const maxConsecutiveFaults = 5

// ErrDegraded is returned by Append once the writer has given up on I/O.
var ErrDegraded = errors.New("segment writer degraded after repeated storage faults")

// SegmentWriter appends records to a rotating series of segment files.
// Segments are named <session>_<NNNN>.jsonl with 1-based ordinals and
// become immutable once a newer segment is opened.
type SegmentWriter struct {
	dir      string
	session  string
	maxBytes int64

	mu       sync.Mutex
	ordinal  int
	file     *os.File
	writer   *bufio.Writer
	size     int64
	faults   int
	degraded bool

	closeOnce sync.Once
	closeErr  error
}

// OpenWriter opens the session's active segment in dir. A session that
// already has segments on disk resumes appending to its highest
// ordinal; a fresh session starts at ordinal 1.
func OpenWriter(dir, session string, maxSegmentBytes int64) (*SegmentWriter, error) {
	if maxSegmentBytes <= 0 {
		return nil, fmt.Errorf("max segment bytes must be positive, got %d", maxSegmentBytes)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}

	ordinal, err := highestOrdinal(dir, session)
	if err != nil {
		return nil, err
	}
	if ordinal == 0 {
		ordinal = 1
	}

	w := &SegmentWriter{dir: dir, session: session, maxBytes: maxSegmentBytes}
	if err := w.openSegment(ordinal); err != nil {
		return nil, err
	}
	return w, nil
}

var segmentOrdinal = regexp.MustCompile(`_(\d{4})\.jsonl$`)

// highestOrdinal reports the largest segment ordinal already on disk
// for session, or 0 when the session has none.
func highestOrdinal(dir, session string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, session+"_[0-9][0-9][0-9][0-9].jsonl"))
	if err != nil {
		return 0, err
	}
	max := 0
	for _, f := range files {
		match := segmentOrdinal.FindStringSubmatch(filepath.Base(f))
		if match == nil {
			continue
		}
		if n, err := strconv.Atoi(match[1]); err == nil && n > max {
			max = n
		}
	}
	return max, nil
}

// SegmentPath returns the path of the segment with the given ordinal.
func (w *SegmentWriter) SegmentPath(ordinal int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%04d.jsonl", w.session, ordinal))
}

// ActivePath returns the path of the segment currently open for writing.
func (w *SegmentWriter) ActivePath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.SegmentPath(w.ordinal)
}

// Append serializes rec as one JSONL line and writes it to the active
// segment, rotating first when the write would push the segment past
// the size threshold. A failed append is counted and reported but the
// writer stays usable; after maxConsecutiveFaults failures in a row it
// degrades and further appends short-circuit without touching disk.
func (w *SegmentWriter) Append(rec types.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.degraded {
		metrics.StorageFaults.Inc()
		return ErrDegraded
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return w.fault(fmt.Errorf("encode record %d: %w", rec.Index, err))
	}
	line = append(line, '\n')

	if w.writer == nil {
		// A previous rotation failed mid-way; retry the open.
		if err := w.openSegment(w.ordinal + 1); err != nil {
			return w.fault(fmt.Errorf("reopen segment: %w", err))
		}
	}

	if w.size > 0 && w.size+int64(len(line)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return w.fault(fmt.Errorf("rotate segment: %w", err))
		}
	}

	if _, err := w.writer.Write(line); err != nil {
		return w.fault(fmt.Errorf("write record %d: %w", rec.Index, err))
	}
	if err := w.writer.Flush(); err != nil {
		return w.fault(fmt.Errorf("flush record %d: %w", rec.Index, err))
	}

	w.size += int64(len(line))
	w.faults = 0
	metrics.RecordsAppended.Inc()
	return nil
}

func (w *SegmentWriter) fault(err error) error {
	metrics.StorageFaults.Inc()
	w.faults++
	if w.faults >= maxConsecutiveFaults && !w.degraded {
		w.degraded = true
		util.Error("segment writer for %q degraded after %d consecutive faults", w.session, w.faults)
	}
	return err
}

// Degraded reports whether the writer has stopped attempting I/O.
func (w *SegmentWriter) Degraded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.degraded
}

// Ordinal returns the 1-based ordinal of the active segment.
func (w *SegmentWriter) Ordinal() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ordinal
}

func (w *SegmentWriter) rotate() error {
	if w.writer != nil {
		if err := w.writer.Flush(); err != nil {
			util.Error("flush failed during segment rotation: %v", err)
		}
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			util.Error("close failed during segment rotation: %v", err)
		}
	}
	w.file = nil
	w.writer = nil
	return w.openSegment(w.ordinal + 1)
}

func (w *SegmentWriter) openSegment(ordinal int) error {
	path := filepath.Join(w.dir, fmt.Sprintf("%s_%04d.jsonl", w.session, ordinal))
	f, err := openSegmentFile(path)
	if err != nil {
		return err
	}

	size := int64(0)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	w.ordinal = ordinal
	w.file = f
	w.writer = bufio.NewWriter(f)
	w.size = size
	util.Info("opened segment %s", path)
	return nil
}

// Close flushes and closes the active segment. It performs no retries
// and returns promptly so shutdown paths cannot hang on it.
func (w *SegmentWriter) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.writer != nil {
			if err := w.writer.Flush(); err != nil {
				w.closeErr = err
			}
			w.writer = nil
		}
		if w.file != nil {
			if err := w.file.Close(); err != nil && w.closeErr == nil {
				w.closeErr = err
			}
			w.file = nil
		}
	})
	return w.closeErr
}
