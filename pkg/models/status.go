package models

// TileSetStatus represents the lifecycle status of a tile set
type TileSetStatus string

const (
	TileSetStatusUnset      TileSetStatus = ""           // Zero value = unset/unknown
	TileSetStatusOK         TileSetStatus = "ok"         // First batch available, map publicly listable
	TileSetStatusProcessing TileSetStatus = "processing" // Tiling pipeline still running
	TileSetStatusPrivate    TileSetStatus = "private"    // Hidden from public listings
	TileSetStatusFailed     TileSetStatus = "failed"     // Pipeline failed before first batch completed
)

// String implements fmt.Stringer for logging
func (s TileSetStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s TileSetStatus) IsValid() bool {
	switch s {
	case TileSetStatusOK, TileSetStatusProcessing, TileSetStatusPrivate, TileSetStatusFailed:
		return true
	}
	return false
}

// JobState represents where a job is in the queue lifecycle
type JobState string

const (
	JobStateUnset    JobState = ""         // Zero value = unset/unknown
	JobStatePending  JobState = "pending"  // Enqueued, not yet picked up by a worker
	JobStateActive   JobState = "active"   // Currently being processed by a worker
	JobStateComplete JobState = "complete" // All stages finished successfully
	JobStateFailed   JobState = "failed"   // Attempts exhausted, permanently failed
)

// String implements fmt.Stringer for logging
func (s JobState) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// JobType identifies which worker pool handles a job
type JobType string

const (
	JobTypeFetch JobType = "fetch" // Download source image and plan tiling batches
	JobTypeTile  JobType = "tile"  // Generate/optimize/upload one zoom range
)

// Priority orders jobs within a type queue. Lower value dispatches first.
type Priority int

const (
	PriorityHigh Priority = 0  // First-batch jobs: a new map should be viewable quickly
	PriorityLow  Priority = 10 // Remaining zoom levels, processed as capacity allows
)

// String implements fmt.Stringer for logging
func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "low"
}
