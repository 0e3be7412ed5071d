package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RecordsAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capview_records_appended_total",
		Help: "Total number of records persisted to segment files",
	})

	StorageFaults = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capview_storage_faults_total",
		Help: "Total number of failed segment appends",
	})

	DecodeFaults = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capview_decode_faults_total",
		Help: "Total number of malformed segment lines skipped during scans",
	})

	MissingSegments = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capview_missing_segments_total",
		Help: "Total number of expected segment files found absent during scans",
	})

	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capview_file_cache_hits_total",
		Help: "Total number of segment reads served from the file cache",
	})

	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capview_file_cache_misses_total",
		Help: "Total number of segment reads that required a disk load",
	})

	CacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capview_file_cache_evictions_total",
		Help: "Total number of parsed segments evicted from the file cache",
	})

	HotBufferEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capview_hot_buffer_evictions_total",
		Help: "Total number of records evicted from the in-memory hot buffer",
	})

	PendingPageRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capview_pending_page_records_total",
		Help: "Total number of records that arrived while the viewer was browsing history",
	})
)
