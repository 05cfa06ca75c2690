package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/log"
	"interactive-maps/pkg/models"
	"interactive-maps/pkg/utils"
)

const jobKeyPrefix = "job:" // Prefix for job record keys in DB

// JobStore persists job records in BadgerDB so queued and in-flight work
// survives a process restart. Records are written on every state transition;
// a job is only as durable as its last Save.
type JobStore struct {
	db  *badger.DB
	log *logrus.Entry
}

// NewJobStore initializes and returns a new JobStore at stateDir
func NewJobStore(stateDir string, logger *logrus.Entry) (*JobStore, error) {
	logger.Infof("Initializing job state database at: %s", stateDir)

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", stateDir, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(stateDir).
		WithLogger(badgerLogger). // Use custom logrus adapter
		WithNumVersionsToKeep(1)  // Only keep the latest job state

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", stateDir, err)
	}

	logger.Info("Job state database initialized successfully.")
	return &JobStore{db: db, log: logger}, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *JobStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := 0; i < maxConflictRetries; i++ {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// SaveJob writes the job record, overwriting any previous state
func (s *JobStore) SaveJob(job *models.TilingJob) error {
	if s.db == nil {
		return errors.New("job store not initialized")
	}
	key := []byte(jobKeyPrefix + job.ID)

	jobBytes, errJson := json.Marshal(job)
	if errJson != nil {
		return fmt.Errorf("%w: failed to marshal job '%s': %w", utils.ErrDatabase, job.ID, errJson)
	}

	err := s.dbUpdate(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, jobBytes))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in SaveJob: %v", err)
		return fmt.Errorf("%w: failed saving job '%s': %w", utils.ErrDatabase, job.ID, err)
	}

	s.log.Debugf("Saved job '%s' (state: %s)", job.ID, job.State)
	return nil
}

// GetJob loads a job record by ID. Returns utils.ErrNotFound for unknown IDs.
func (s *JobStore) GetJob(id string) (*models.TilingJob, error) {
	var job models.TilingJob
	key := []byte(jobKeyPrefix + id)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: job '%s'", utils.ErrNotFound, id)
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting job key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}
		return item.Value(func(val []byte) error {
			if errJson := json.Unmarshal(val, &job); errJson != nil {
				return fmt.Errorf("%w: failed to unmarshal job '%s': %w", utils.ErrDatabase, id, errJson)
			}
			return nil
		})
	})
	if errView != nil {
		return nil, errView
	}
	return &job, nil
}

// DeleteJob removes a job record, used once terminal jobs age out
func (s *JobStore) DeleteJob(id string) error {
	key := []byte(jobKeyPrefix + id)
	err := s.dbUpdate(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("%w: failed deleting job '%s': %w", utils.ErrDatabase, id, err)
	}
	return nil
}

// IncompleteJobs scans the DB and returns all jobs in pending or active
// state. Called once on startup: active jobs were in flight when the previous
// process died and must be dispatched again.
func (s *JobStore) IncompleteJobs(ctx context.Context) ([]*models.TilingJob, int, error) {
	s.log.Info("Scanning job database for incomplete jobs to requeue...")
	var jobs []*models.TilingJob
	scanErrors := 0
	scanStartTime := time.Now()

	scanErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true // Need values to check state
		it := txn.NewIterator(opts)
		defer it.Close()

		keyPrefixBytes := []byte(jobKeyPrefix)

		for it.Seek(keyPrefixBytes); it.ValidForPrefix(keyPrefixBytes); it.Next() {
			// Check context cancellation within the loop
			select {
			case <-ctx.Done():
				s.log.Warnf("Requeue scan interrupted by context cancellation: %v", ctx.Err())
				return ctx.Err()
			default:
			}

			item := it.Item()
			keyStr := string(item.KeyCopy(nil))

			errGetValue := item.Value(func(valBytes []byte) error {
				var job models.TilingJob
				if errJson := json.Unmarshal(valBytes, &job); errJson != nil {
					s.log.Errorf("Requeue Scan: Failed unmarshal job for '%s': %v. Skipping.", keyStr, errJson)
					scanErrors++
					return nil // Continue iteration
				}
				if job.State == models.JobStatePending || job.State == models.JobStateActive {
					s.log.Debugf("Requeue Scan: Found incomplete job '%s' (state: %s, attempts: %d)", job.ID, job.State, job.Attempts)
					jobs = append(jobs, &job)
				}
				return nil
			})
			if errGetValue != nil {
				s.log.Errorf("Requeue Scan: Error getting value for key '%s': %v", keyStr, errGetValue)
				scanErrors++
			}
		}
		return nil
	})

	durationScan := time.Since(scanStartTime)
	if scanErr != nil && !errors.Is(scanErr, context.Canceled) {
		s.log.Errorf("Error during DB scan for requeue: %v.", scanErr)
		return jobs, scanErrors, fmt.Errorf("%w: requeue scan: %w", utils.ErrDatabase, scanErr)
	}
	s.log.Infof("Requeue Scan Complete: Found %d incomplete jobs in %v. Errors: %d.", len(jobs), durationScan, scanErrors)
	return jobs, scanErrors, scanErr
}

// CountByState returns the number of stored jobs per state, for health checks
func (s *JobStore) CountByState() (map[models.JobState]int, error) {
	counts := make(map[models.JobState]int)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		keyPrefixBytes := []byte(jobKeyPrefix)
		for it.Seek(keyPrefixBytes); it.ValidForPrefix(keyPrefixBytes); it.Next() {
			errGetValue := it.Item().Value(func(valBytes []byte) error {
				var job models.TilingJob
				if errJson := json.Unmarshal(valBytes, &job); errJson != nil {
					return nil // Skip corrupt records, they are not countable
				}
				counts[job.State]++
				return nil
			})
			if errGetValue != nil {
				return errGetValue
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: counting jobs: %w", utils.ErrDatabase, err)
	}
	return counts, nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *JobStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute // Default interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			s.log.Debug("Running BadgerDB value log garbage collection...")
			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				// Run GC if log is at least 50% reclaimable space
				err = s.db.RunValueLogGC(0.5)
				if err != nil {
					break
				}
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Infof("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// Close cleanly closes the database
func (s *JobStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing job state DB...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing job state DB: %v", err)
			return err
		}
		s.log.Info("Job state DB closed.")
		return nil
	}
	s.log.Info("Job state DB already closed or was not initialized.")
	return nil
}
