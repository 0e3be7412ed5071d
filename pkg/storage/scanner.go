package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/capview/capview/pkg/metrics"
	"github.com/capview/capview/pkg/types"
	"github.com/capview/capview/util"
	"golang.org/x/exp/mmap"
)

// maxLineBytes bounds a single record line during streaming scans.
const maxLineBytes = 16 << 20

// Scanner performs range and point reads over the segment files of a
// session. Closed segments are served through a whole-file LRU cache;
// the segment still open for writing is re-read from disk every time.
type Scanner struct {
	dir   string
	cache *FileCache

	mu            sync.Mutex
	missingLogged map[string]bool
}

// NewScanner creates a scanner over dir with a cache of up to
// cacheFiles parsed segments. cacheFiles <= 0 disables caching.
func NewScanner(dir string, cacheFiles int) *Scanner {
	s := &Scanner{dir: dir, missingLogged: make(map[string]bool)}
	if cacheFiles > 0 {
		s.cache = NewFileCache(cacheFiles, s.loadSegment)
	}
	return s
}

// Cache exposes the scanner's file cache; nil when caching is disabled.
func (s *Scanner) Cache() *FileCache {
	return s.cache
}

// Segments returns the session's segment paths in ordinal order. The
// zero-padded ordinal suffix makes lexical order the ordinal order.
// The suffix match is exact so session "foo" never absorbs segments of
// a session named "foo_bar".
func (s *Scanner) Segments(session string) ([]string, error) {
	pattern := filepath.Join(s.dir, session+"_[0-9][0-9][0-9][0-9].jsonl")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// RangeRead returns every record of session with start <= Index <= end,
// ascending by index. activePath names the segment open for writing at
// the time of the call; it and every later-ordinal segment bypass the
// cache. The writer may rotate between the caller resolving activePath
// and the scan, so equality alone would admit a still-mutable file:
// ordinals only grow, which makes any path at or past activePath
// mutable-at-risk and any path before it immutable.
func (s *Scanner) RangeRead(session string, start, end uint64, activePath string) ([]types.Record, error) {
	if end < start {
		return nil, fmt.Errorf("invalid range [%d, %d]", start, end)
	}

	files, err := s.Segments(session)
	if err != nil {
		return nil, err
	}

	var out []types.Record
	for _, path := range files {
		var recs []types.Record
		if s.cache == nil || (activePath != "" && path >= activePath) {
			recs = s.readSegment(path)
		} else {
			recs = s.cache.GetOrLoad(path)
		}
		for _, rec := range recs {
			if rec.Index >= start && rec.Index <= end {
				out = append(out, rec)
			}
		}
	}

	// Defensive: the active segment may flush late relative to the scan,
	// so file order alone does not guarantee index order.
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// NextIndex returns one past the highest record index stored for
// session, or 0 when nothing is on disk. Segments are streamed rather
// than cached; on a session resume the newest one is about to become
// the active segment again.
func (s *Scanner) NextIndex(session string) (uint64, error) {
	files, err := s.Segments(session)
	if err != nil {
		return 0, err
	}
	for i := len(files) - 1; i >= 0; i-- {
		recs := s.readSegment(files[i])
		if len(recs) == 0 {
			continue
		}
		next := uint64(0)
		for _, rec := range recs {
			if rec.Index+1 > next {
				next = rec.Index + 1
			}
		}
		return next, nil
	}
	return 0, nil
}

// PointRead returns the record with the given index. A miss is not an
// error; the record may simply never have been written.
func (s *Scanner) PointRead(session string, index uint64, activePath string) (types.Record, bool, error) {
	recs, err := s.RangeRead(session, index, index, activePath)
	if err != nil || len(recs) == 0 {
		return types.Record{}, false, err
	}
	return recs[0], true, nil
}

// readSegment streams a segment line by line. Used for the active
// segment, which must never be memory-mapped or cached while mutable.
func (s *Scanner) readSegment(path string) []types.Record {
	f, err := os.Open(path)
	if err != nil {
		s.noteMissing(path, err)
		return nil
	}
	defer f.Close()

	var recs []types.Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for sc.Scan() {
		recs = appendDecoded(recs, sc.Bytes())
	}
	if err := sc.Err(); err != nil {
		util.Warn("scan %s aborted: %v", path, err)
	}
	return recs
}

// loadSegment reads a closed segment through a memory map and parses
// it whole. This is the file cache's loader.
func (s *Scanner) loadSegment(path string) []types.Record {
	r, err := mmap.Open(path)
	if err != nil {
		s.noteMissing(path, err)
		return nil
	}
	defer r.Close()

	data := make([]byte, r.Len())
	if len(data) > 0 {
		if _, err := r.ReadAt(data, 0); err != nil && err != io.EOF {
			util.Warn("read %s failed, treating as empty: %v", path, err)
			return nil
		}
	}

	var recs []types.Record
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		recs = appendDecoded(recs, line)
	}
	return recs
}

func appendDecoded(recs []types.Record, line []byte) []types.Record {
	if len(bytes.TrimSpace(line)) == 0 {
		return recs
	}
	var rec types.Record
	if err := json.Unmarshal(line, &rec); err != nil {
		metrics.DecodeFaults.Inc()
		util.Debug("skipping malformed segment line: %v", err)
		return recs
	}
	return append(recs, rec)
}

// noteMissing counts an unreadable segment and logs it once per path.
// The scan treats it as empty and keeps going.
func (s *Scanner) noteMissing(path string, err error) {
	metrics.MissingSegments.Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missingLogged[path] {
		return
	}
	s.missingLogged[path] = true
	util.Warn("segment %s unreadable, treating as empty: %v", path, err)
}
