package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRegistered(t *testing.T) {
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, want := range []string{
		"capview_records_appended_total",
		"capview_storage_faults_total",
		"capview_decode_faults_total",
		"capview_missing_segments_total",
		"capview_file_cache_hits_total",
		"capview_file_cache_misses_total",
		"capview_file_cache_evictions_total",
		"capview_hot_buffer_evictions_total",
		"capview_pending_page_records_total",
	} {
		assert.True(t, names[want], "counter %s not registered", want)
	}
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(StorageFaults)
	StorageFaults.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(StorageFaults))
}
