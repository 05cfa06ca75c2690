package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the global application configuration
type AppConfig struct {
	ListenAddr         string           `yaml:"listen_addr"`
	TmpDir             string           `yaml:"tmp_dir"`
	DatabaseURL        string           `yaml:"database_url"`
	MaxRetries         int              `yaml:"max_retries,omitempty"`
	InitialRetryDelay  time.Duration    `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay      time.Duration    `yaml:"max_retry_delay,omitempty"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
	Queue              QueueConfig      `yaml:"queue"`
	Tiling             TilingConfig     `yaml:"tiling"`
	Swift              SwiftConfig      `yaml:"swift"`
	Purge              PurgeConfig      `yaml:"purge,omitempty"`
}

// QueueConfig holds the durable job queue settings
type QueueConfig struct {
	StateDir     string `yaml:"state_dir"`      // BadgerDB directory for job records
	MaxFetchJobs int    `yaml:"max_fetch_jobs"` // Concurrent workers for image-fetch jobs
	MaxTileJobs  int    `yaml:"max_tile_jobs"`  // Concurrent workers for tiling jobs
	MaxAttempts  int    `yaml:"max_attempts"`   // Attempts per job before permanent failure
}

// TilingConfig holds the zoom planning and tile generation settings
type TilingConfig struct {
	MinZoom              int   `yaml:"min_zoom"`
	MaxZoom              int   `yaml:"max_zoom"`
	FirstBatchZoomLevels int   `yaml:"first_batch_zoom_levels"`
	Optimize             *bool `yaml:"optimize,omitempty"` // nil = enabled
	Upload               *bool `yaml:"upload,omitempty"`   // nil = enabled
}

// OptimizeEnabled reports whether the optipng pass runs (defaults to true)
func (t TilingConfig) OptimizeEnabled() bool {
	return t.Optimize == nil || *t.Optimize
}

// UploadEnabled reports whether tiles are pushed to the object store
// (defaults to true)
func (t TilingConfig) UploadEnabled() bool {
	return t.Upload == nil || *t.Upload
}

// SwiftConfig holds the Swift-style object store credentials and naming
type SwiftConfig struct {
	AuthURL           string `yaml:"auth_url"`
	User              string `yaml:"user"`
	Key               string `yaml:"key"`
	BucketPrefix      string `yaml:"bucket_prefix"`
	TileSetPrefix     string `yaml:"tile_set_prefix"`
	DFSHost           string `yaml:"dfs_host"`           // Public host serving uploaded tiles
	UploadConcurrency int    `yaml:"upload_concurrency"` // Parallel PUTs per upload batch
}

// PurgeConfig holds the CDN cache-purge notifier endpoint
type PurgeConfig struct {
	URL     string        `yaml:"url,omitempty"` // Empty disables purging
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"` // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// Load reads and parses the YAML config file at path. Validation is the
// caller's responsibility so warnings can be routed to its logger.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file '%s': %w", path, err)
	}
	return &cfg, nil
}
