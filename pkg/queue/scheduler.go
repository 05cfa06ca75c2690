package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/config"
	"interactive-maps/pkg/models"
	"interactive-maps/pkg/utils"
)

// Handler processes one job. A nil return marks the job complete; an error
// return either requeues the job (retryable, attempts left) or fails it
// permanently.
type Handler func(ctx context.Context, job *models.TilingJob) error

// FailureHandler runs after a job permanently fails, for compensation such as
// deleting the map a failed first batch was meant to serve.
type FailureHandler func(job *models.TilingJob, err error)

// Queue is the durable priority job queue: one in-memory priority queue per
// job type, fed by and mirrored to a BadgerDB record per job. Worker pools
// are sized per type so a burst of slow tile jobs cannot starve fetches.
type Queue struct {
	store     *JobStore
	cfg       config.QueueConfig
	log       *logrus.Logger
	queues    map[models.JobType]*jobQueue
	wg        sync.WaitGroup
	onFailure FailureHandler
}

// New creates a Queue backed by store
func New(store *JobStore, cfg config.QueueConfig, logger *logrus.Logger) *Queue {
	return &Queue{
		store: store,
		cfg:   cfg,
		log:   logger,
		queues: map[models.JobType]*jobQueue{
			models.JobTypeFetch: newJobQueue(logger),
			models.JobTypeTile:  newJobQueue(logger),
		},
	}
}

// OnFailure registers the permanent-failure callback. Must be called before
// Process starts workers.
func (q *Queue) OnFailure(fn FailureHandler) {
	q.onFailure = fn
}

// Enqueue persists the job and makes it available to workers. IDs, attempt
// caps and timestamps are filled in when unset. The job is durable once
// Enqueue returns.
func (q *Queue) Enqueue(job *models.TilingJob) error {
	jq, ok := q.queues[job.Type]
	if !ok {
		return fmt.Errorf("unknown job type '%s'", job.Type)
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.cfg.MaxAttempts
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.State = models.JobStatePending

	if err := q.store.SaveJob(job); err != nil {
		return err
	}
	jq.add(job)

	q.log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"job_type": job.Type,
		"priority": job.Priority,
		"map_id":   job.MapID,
	}).Info("Job enqueued")
	return nil
}

// Save persists the job's current state mid-flight. Pipeline stages call this
// after each completed stage so a retry skips work that already succeeded.
func (q *Queue) Save(job *models.TilingJob) error {
	return q.store.SaveJob(job)
}

// Process starts concurrency workers for jobType. Workers exit when ctx is
// cancelled or the queue is shut down.
func (q *Queue) Process(ctx context.Context, jobType models.JobType, concurrency int, handler Handler) {
	jq := q.queues[jobType]
	if jq == nil {
		q.log.Errorf("Process called for unknown job type '%s'", jobType)
		return
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	q.log.WithFields(logrus.Fields{"job_type": jobType, "workers": concurrency}).Info("Starting worker pool")

	for i := 0; i < concurrency; i++ {
		q.wg.Add(1)
		workerLog := q.log.WithFields(logrus.Fields{"job_type": jobType, "worker_id": i})
		go func() {
			defer q.wg.Done()
			for {
				job, ok := jq.pop()
				if !ok {
					workerLog.Debug("Queue closed, worker exiting")
					return
				}
				select {
				case <-ctx.Done():
					// Shutting down: the job record is still pending in the
					// store and will be requeued on the next start.
					workerLog.Debugf("Context cancelled, leaving job '%s' for restart", job.ID)
					return
				default:
				}
				q.runJob(ctx, jq, job, handler)
			}
		}()
	}
}

// runJob drives one attempt of one job through the handler and records the
// outcome.
func (q *Queue) runJob(ctx context.Context, jq *jobQueue, job *models.TilingJob, handler Handler) {
	job.State = models.JobStateActive
	job.Attempts++

	jobLog := q.log.WithFields(logrus.Fields{
		"job_id":       job.ID,
		"job_type":     job.Type,
		"map_id":       job.MapID,
		"attempt":      job.Attempts,
		"max_attempts": job.MaxAttempts,
	})

	if err := q.store.SaveJob(job); err != nil {
		jobLog.Errorf("Failed to persist active state: %v", err)
	}

	start := time.Now()
	err := handler(ctx, job)
	duration := time.Since(start)

	if err == nil {
		job.State = models.JobStateComplete
		job.LastError = ""
		if saveErr := q.store.SaveJob(job); saveErr != nil {
			jobLog.Errorf("Failed to persist complete state: %v", saveErr)
		}
		jobLog.WithField("duration", duration).Info("Job complete")
		return
	}

	job.LastError = utils.CategorizeError(err)

	// A cancellation is not a job failure: leave the job pending so the next
	// process picks it up.
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		job.State = models.JobStatePending
		if saveErr := q.store.SaveJob(job); saveErr != nil {
			jobLog.Errorf("Failed to persist pending state on shutdown: %v", saveErr)
		}
		jobLog.Warn("Job interrupted by shutdown, left pending")
		return
	}

	if utils.IsRetryable(err) && job.Attempts < job.MaxAttempts {
		job.State = models.JobStatePending
		if saveErr := q.store.SaveJob(job); saveErr != nil {
			jobLog.Errorf("Failed to persist pending state: %v", saveErr)
		}
		jq.add(job)
		jobLog.WithFields(logrus.Fields{"error_category": job.LastError, "duration": duration}).
			Warnf("Job attempt failed, requeued: %v", err)
		return
	}

	job.State = models.JobStateFailed
	if saveErr := q.store.SaveJob(job); saveErr != nil {
		jobLog.Errorf("Failed to persist failed state: %v", saveErr)
	}
	jobLog.WithFields(logrus.Fields{"error_category": job.LastError, "duration": duration}).
		Errorf("Job permanently failed: %v", err)

	if q.onFailure != nil {
		q.onFailure(job, err)
	}
}

// RequeueIncomplete loads every pending or active job record from the store
// and puts it back on its queue. Called once on startup, before Process.
func (q *Queue) RequeueIncomplete(ctx context.Context) (int, error) {
	jobs, _, err := q.store.IncompleteJobs(ctx)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, job := range jobs {
		jq, ok := q.queues[job.Type]
		if !ok {
			q.log.Warnf("Skipping stored job '%s' with unknown type '%s'", job.ID, job.Type)
			continue
		}
		job.State = models.JobStatePending
		if saveErr := q.store.SaveJob(job); saveErr != nil {
			q.log.Errorf("Failed to reset job '%s' to pending: %v", job.ID, saveErr)
			continue
		}
		jq.add(job)
		requeued++
	}

	if requeued > 0 {
		q.log.Infof("Requeued %d incomplete jobs from previous run", requeued)
	}
	return requeued, nil
}

// Depth returns the total number of queued (not yet active) jobs
func (q *Queue) Depth() int {
	total := 0
	for _, jq := range q.queues {
		total += jq.len()
	}
	return total
}

// DepthByType returns the number of queued jobs for one type
func (q *Queue) DepthByType(jobType models.JobType) int {
	if jq, ok := q.queues[jobType]; ok {
		return jq.len()
	}
	return 0
}

// Shutdown closes all queues and waits for in-flight jobs to finish
func (q *Queue) Shutdown() {
	q.log.Info("Shutting down job queue...")
	for _, jq := range q.queues {
		jq.close()
	}
	q.wg.Wait()
	q.log.Info("All workers stopped.")
}
