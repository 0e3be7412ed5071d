package session_test

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capview/capview/pkg/config"
	"github.com/capview/capview/pkg/session"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:         t.TempDir(),
		MaxSegmentBytes: 1 << 20,
		HotBufferSize:   4,
		FileCacheFiles:  2,
		PageSize:        5,
		AutoAdvance:     true,
		QueueSize:       64,
		DrainTimeoutMS:  2000,
	}
}

func payload(n int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"n":%d}`, n))
}

func offerAll(t *testing.T, s *session.Session, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.True(t, s.Offer(payload(i)))
	}
}

func TestSession_RoundTrip(t *testing.T) {
	cfg := testConfig(t)
	s, err := session.Open(cfg, "trip")
	require.NoError(t, err)

	const n = 12
	offerAll(t, s, n)
	require.NoError(t, s.Stop())
	require.Equal(t, uint64(n), s.NextIndex())

	recs, err := s.RangeRead(0, n-1)
	require.NoError(t, err)
	require.Len(t, recs, n)
	for i, rec := range recs {
		assert.Equal(t, uint64(i), rec.Index)
		assert.JSONEq(t, string(payload(i)), string(rec.Data))
	}
}

func TestSession_PointReadFallsBackToDisk(t *testing.T) {
	cfg := testConfig(t) // hot buffer capacity 4
	s, err := session.Open(cfg, "fallback")
	require.NoError(t, err)

	const n = 12
	offerAll(t, s, n)
	require.NoError(t, s.Stop())

	// Index 1 was evicted from the hot buffer long ago; the read must
	// come back from disk with the original payload.
	rec, ok, err := s.PointRead(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(payload(1)), string(rec.Data))

	// The newest record is still hot.
	rec, ok, err = s.PointRead(n - 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(payload(n-1)), string(rec.Data))

	// Never-written indices read as absent, not as errors.
	_, ok, err = s.PointRead(n + 100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSession_PendingWhileBrowsingHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.AutoAdvance = false
	s, err := session.Open(cfg, "pending")
	require.NoError(t, err)

	const n = 12 // page size 5: pages grow 1 -> 2 -> 3 under the viewer
	offerAll(t, s, n)
	require.NoError(t, s.Stop())

	v, err := s.View().CurrentView()
	require.NoError(t, err)
	assert.Equal(t, 1, v.PageNumber)
	assert.Equal(t, 3, v.TotalPages)
	assert.Equal(t, 7, v.PendingNew, "every record beyond the viewed page counts once")

	s.View().JumpToLatest()
	v, err = s.View().CurrentView()
	require.NoError(t, err)
	assert.Equal(t, 3, v.PageNumber)
	assert.Zero(t, v.PendingNew)
	require.Len(t, v.Records, 2)
	assert.Equal(t, uint64(10), v.Records[0].Index)
	assert.Equal(t, uint64(11), v.Records[1].Index)
}

func TestSession_AutoAdvanceFollowsNewestPage(t *testing.T) {
	cfg := testConfig(t)
	s, err := session.Open(cfg, "follow")
	require.NoError(t, err)

	offerAll(t, s, 6) // page size 5: second page opens at index 5
	require.NoError(t, s.Stop())

	v, err := s.View().CurrentView()
	require.NoError(t, err)
	assert.Equal(t, 2, v.PageNumber)
	assert.Equal(t, 2, v.TotalPages)
	assert.Zero(t, v.PendingNew)
}

func TestSession_ReopenResumesIndexSpace(t *testing.T) {
	cfg := testConfig(t)
	s, err := session.Open(cfg, "persist")
	require.NoError(t, err)
	offerAll(t, s, 3)
	require.NoError(t, s.Stop())

	// Reopening the same name must continue after the stored indices,
	// never reissue them.
	s2, err := session.Open(cfg, "persist")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s2.NextIndex())

	// The persisted tail is hot again after the resume.
	rec, ok, err := s2.PointRead(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(payload(2)), string(rec.Data))

	for i := 3; i < 5; i++ {
		require.True(t, s2.Offer(payload(i)))
	}
	require.NoError(t, s2.Stop())

	recs, err := s2.RangeRead(0, 9)
	require.NoError(t, err)
	require.Len(t, recs, 5)
	for i, rec := range recs {
		assert.Equal(t, uint64(i), rec.Index, "each index must appear exactly once")
		assert.JSONEq(t, string(payload(i)), string(rec.Data))
	}

	v, err := s2.View().CurrentView()
	require.NoError(t, err)
	assert.Equal(t, 1, v.TotalPages)
	assert.Len(t, v.Records, 5)
}

func TestSession_OfferAfterStopIsDiscarded(t *testing.T) {
	cfg := testConfig(t)
	s, err := session.Open(cfg, "stopped")
	require.NoError(t, err)

	offerAll(t, s, 3)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop(), "Stop must be idempotent")

	assert.False(t, s.Offer(payload(99)))
	assert.Equal(t, uint64(3), s.NextIndex())
}

func TestSession_ExportImport(t *testing.T) {
	cfg := testConfig(t)
	s, err := session.Open(cfg, "exported")
	require.NoError(t, err)

	const n = 9
	offerAll(t, s, n)
	require.NoError(t, s.Stop())

	capturePath := filepath.Join(t.TempDir(), "capture.json")
	require.NoError(t, s.Export(capturePath))

	other, err := session.Open(cfg, "imported")
	require.NoError(t, err)
	_, err = other.Import(capturePath)
	assert.Error(t, err, "a running session must refuse an import")

	require.NoError(t, other.Stop())
	loaded, err := other.Import(capturePath)
	require.NoError(t, err)
	assert.Equal(t, n, loaded)
	assert.Equal(t, uint64(n), other.NextIndex())

	// Tail records are served from the rebuilt hot buffer.
	rec, ok, err := other.PointRead(n - 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(payload(n-1)), string(rec.Data))

	v, err := other.View().CurrentView()
	require.NoError(t, err)
	assert.Equal(t, 2, v.TotalPages)
	assert.Equal(t, 2, v.PageNumber)
}

func TestManager_SessionsAndDiscovery(t *testing.T) {
	cfg := testConfig(t)
	m := session.NewManager(cfg)

	a, err := m.Open("alpha")
	require.NoError(t, err)
	again, err := m.Open("alpha")
	require.NoError(t, err)
	assert.Same(t, a, again)

	generated, err := m.Open("")
	require.NoError(t, err)
	assert.NotEmpty(t, generated.Name())

	got, ok := m.Get("alpha")
	require.True(t, ok)
	assert.Same(t, a, got)

	names, err := m.ListSessions()
	require.NoError(t, err)
	assert.Contains(t, names, "alpha")
	assert.Contains(t, names, generated.Name())

	m.CloseAll()
	_, ok = m.Get("alpha")
	assert.False(t, ok)
}
