package config

import (
	"encoding/json"
	"flag"
	"os"
	"strings"

	"github.com/capview/capview/util"
	"gopkg.in/yaml.v3"
)

// Config holds the tunables for the store, the paged view, and the
// ingest pipeline.
type Config struct {
	// Storage
	DataDir         string `yaml:"data_dir" json:"data.dir"`
	MaxSegmentBytes int64  `yaml:"max_segment_bytes" json:"max.segment.bytes"`

	// Caching
	HotBufferSize  int `yaml:"hot_buffer_size" json:"hot.buffer.size"`
	FileCacheFiles int `yaml:"file_cache_files" json:"file.cache.files"`

	// Paged view
	PageSize    int  `yaml:"page_size" json:"page.size"`
	AutoAdvance bool `yaml:"auto_advance" json:"auto.advance"`

	// Ingest pipeline
	QueueSize      int `yaml:"queue_size" json:"queue.size"`
	DrainTimeoutMS int `yaml:"drain_timeout_ms" json:"drain.timeout.ms"`

	// Observability
	LogLevel       util.LogLevel `yaml:"log_level" json:"log_level"`
	EnableExporter bool          `yaml:"enable_exporter" json:"enable.exporter"`
	ExporterPort   int           `yaml:"exporter_port" json:"exporter.port"`
}

// LoadConfig builds a Config from defaults, an optional YAML/JSON file,
// and command-line flags, in that order of precedence.
func LoadConfig() (*Config, error) {
	cfg := Default()

	configPath := flag.String("config", "", "Path to YAML/JSON config file")
	dataDir := flag.String("data-dir", cfg.DataDir, "Directory for segment files")
	maxSegment := flag.Int64("max-segment-bytes", cfg.MaxSegmentBytes, "Segment file size threshold in bytes")
	hotBuffer := flag.Int("hot-buffer", cfg.HotBufferSize, "Number of recent records kept in memory")
	cacheFiles := flag.Int("cache-files", cfg.FileCacheFiles, "Number of parsed segments kept in the file cache")
	pageSize := flag.Int("page-size", cfg.PageSize, "Records per page")
	autoAdvance := flag.Bool("auto-advance", cfg.AutoAdvance, "Follow the newest page while browsing latest")
	queueSize := flag.Int("queue-size", cfg.QueueSize, "Ingest channel buffer size")
	drainTimeout := flag.Int("drain-timeout", cfg.DrainTimeoutMS, "Bounded wait for queue drain on stop (ms)")
	logLevelStr := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	exporter := flag.Bool("exporter", cfg.EnableExporter, "Enable Prometheus exporter")
	exporterPort := flag.Int("exporter-port", cfg.ExporterPort, "Exporter port")

	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" && *configPath == "" {
		*configPath = envPath
	}

	flag.Parse()

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(*configPath, ".json") {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	cfg.applyEnv()

	// Explicit flags win over file and environment values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data-dir":
			cfg.DataDir = *dataDir
		case "max-segment-bytes":
			cfg.MaxSegmentBytes = *maxSegment
		case "hot-buffer":
			cfg.HotBufferSize = *hotBuffer
		case "cache-files":
			cfg.FileCacheFiles = *cacheFiles
		case "page-size":
			cfg.PageSize = *pageSize
		case "auto-advance":
			cfg.AutoAdvance = *autoAdvance
		case "queue-size":
			cfg.QueueSize = *queueSize
		case "drain-timeout":
			cfg.DrainTimeoutMS = *drainTimeout
		case "log-level":
			cfg.LogLevel = util.ParseLogLevel(*logLevelStr)
		case "exporter":
			cfg.EnableExporter = *exporter
		case "exporter-port":
			cfg.ExporterPort = *exporterPort
		}
	})

	cfg.Normalize()
	util.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// applyEnv overlays CAPVIEW_* environment variables. Unset or
// unparsable variables leave the current value alone.
func (cfg *Config) applyEnv() {
	if v := os.Getenv("CAPVIEW_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CAPVIEW_MAX_SEGMENT_BYTES"); v != "" {
		cfg.MaxSegmentBytes = util.ParseInt64(v, cfg.MaxSegmentBytes)
	}
	if v := os.Getenv("CAPVIEW_HOT_BUFFER_SIZE"); v != "" {
		cfg.HotBufferSize = util.ParseInt(v, cfg.HotBufferSize)
	}
	if v := os.Getenv("CAPVIEW_FILE_CACHE_FILES"); v != "" {
		cfg.FileCacheFiles = util.ParseInt(v, cfg.FileCacheFiles)
	}
	if v := os.Getenv("CAPVIEW_PAGE_SIZE"); v != "" {
		cfg.PageSize = util.ParseInt(v, cfg.PageSize)
	}
	if v := os.Getenv("CAPVIEW_AUTO_ADVANCE"); v != "" {
		cfg.AutoAdvance = util.ParseBool(v, cfg.AutoAdvance)
	}
	if v := os.Getenv("CAPVIEW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = util.ParseLogLevel(v)
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:         "captures",
		MaxSegmentBytes: 50 << 20,
		HotBufferSize:   5000,
		FileCacheFiles:  8,
		PageSize:        100,
		AutoAdvance:     true,
		QueueSize:       1024,
		DrainTimeoutMS:  5000,
		LogLevel:        util.LogLevelInfo,
		EnableExporter:  true,
		ExporterPort:    9100,
	}
}

// Normalize clamps out-of-range values back to usable defaults.
func (cfg *Config) Normalize() {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "captures"
	}
	if cfg.MaxSegmentBytes < 1024 {
		cfg.MaxSegmentBytes = 50 << 20
	}
	if cfg.HotBufferSize <= 0 {
		cfg.HotBufferSize = 5000
	}
	if cfg.FileCacheFiles <= 0 {
		cfg.FileCacheFiles = 8
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.DrainTimeoutMS <= 0 {
		cfg.DrainTimeoutMS = 5000
	}
	if cfg.ExporterPort <= 0 {
		cfg.ExporterPort = 9100
	}
}
