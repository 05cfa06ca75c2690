package config

import (
	"fmt"
	"time"

	"interactive-maps/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.DatabaseURL == "" {
		return warnings, fmt.Errorf("%w: database_url is required", utils.ErrConfigValidation)
	}

	if c.ListenAddr == "" {
		warnings = append(warnings, "listen_addr is empty, defaulting to ':8080'")
		c.ListenAddr = ":8080"
	}

	if c.TmpDir == "" {
		warnings = append(warnings, "tmp_dir is empty, defaulting to './tmp'")
		c.TmpDir = "./tmp"
	}

	// MaxRetries (HTTP fetch attempts, distinct from queue job attempts)
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	queueWarnings, err := c.Queue.validate()
	warnings = append(warnings, queueWarnings...)
	if err != nil {
		return warnings, err
	}

	tilingWarnings, err := c.Tiling.validate()
	warnings = append(warnings, tilingWarnings...)
	if err != nil {
		return warnings, err
	}

	swiftWarnings, err := c.Swift.validate(c.Tiling.UploadEnabled())
	warnings = append(warnings, swiftWarnings...)
	if err != nil {
		return warnings, err
	}

	if c.Purge.URL != "" && c.Purge.Timeout <= 0 {
		c.Purge.Timeout = 2 * time.Second
	}

	c.HTTPClientSettings.applyDefaults(&warnings)

	return warnings, nil
}

func (q *QueueConfig) validate() (warnings []string, err error) {
	if q.StateDir == "" {
		warnings = append(warnings, "queue.state_dir is empty, defaulting to './queue_state'")
		q.StateDir = "./queue_state"
	}
	if q.MaxFetchJobs <= 0 {
		warnings = append(warnings, "queue.max_fetch_jobs should be > 0, defaulting to 2")
		q.MaxFetchJobs = 2
	}
	if q.MaxTileJobs <= 0 {
		warnings = append(warnings, "queue.max_tile_jobs should be > 0, defaulting to 2")
		q.MaxTileJobs = 2
	}
	if q.MaxAttempts <= 0 {
		warnings = append(warnings, "queue.max_attempts should be > 0, defaulting to 3")
		q.MaxAttempts = 3
	}
	return warnings, nil
}

func (t *TilingConfig) validate() (warnings []string, err error) {
	if t.MinZoom < 0 {
		return warnings, fmt.Errorf("%w: tiling.min_zoom cannot be negative (got %d)", utils.ErrConfigValidation, t.MinZoom)
	}
	if t.MaxZoom <= 0 {
		warnings = append(warnings, "tiling.max_zoom should be > 0, defaulting to 9")
		t.MaxZoom = 9
	}
	if t.MaxZoom > 31 {
		return warnings, fmt.Errorf("%w: tiling.max_zoom cannot exceed 31 (zoom bit-field is 32 bits wide, got %d)", utils.ErrConfigValidation, t.MaxZoom)
	}
	if t.MinZoom > t.MaxZoom {
		return warnings, fmt.Errorf("%w: tiling.min_zoom (%d) > tiling.max_zoom (%d)", utils.ErrConfigValidation, t.MinZoom, t.MaxZoom)
	}
	if t.FirstBatchZoomLevels < 0 {
		warnings = append(warnings, "tiling.first_batch_zoom_levels cannot be negative, setting to 0")
		t.FirstBatchZoomLevels = 0
	}
	if t.FirstBatchZoomLevels == 0 {
		warnings = append(warnings, "tiling.first_batch_zoom_levels is 0, first batch covers min_zoom only")
	}
	return warnings, nil
}

func (s *SwiftConfig) validate(uploadEnabled bool) (warnings []string, err error) {
	if !uploadEnabled {
		warnings = append(warnings, "tiling.upload disabled, skipping swift credential checks")
		return warnings, nil
	}
	if s.AuthURL == "" {
		return warnings, fmt.Errorf("%w: swift.auth_url is required when uploads are enabled", utils.ErrConfigValidation)
	}
	if s.User == "" || s.Key == "" {
		return warnings, fmt.Errorf("%w: swift.user and swift.key are required when uploads are enabled", utils.ErrConfigValidation)
	}
	if s.BucketPrefix == "" {
		warnings = append(warnings, "swift.bucket_prefix is empty, defaulting to 'maps_'")
		s.BucketPrefix = "maps_"
	}
	if s.TileSetPrefix == "" {
		warnings = append(warnings, "swift.tile_set_prefix is empty, defaulting to 'ts_'")
		s.TileSetPrefix = "ts_"
	}
	if s.UploadConcurrency <= 0 {
		warnings = append(warnings, "swift.upload_concurrency should be > 0, defaulting to 8")
		s.UploadConcurrency = 8
	}
	return warnings, nil
}

func (h *HTTPClientConfig) applyDefaults(warnings *[]string) {
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
