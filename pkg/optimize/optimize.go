package optimize

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/models"
	"interactive-maps/pkg/utils"
)

// CommandRunner abstracts external process execution so tests can observe
// invocations without an optipng binary installed.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (output: %s)", name, err, string(out))
	}
	return nil
}

// Optimizer recompresses generated PNG tiles in place with optipng before
// upload. Tiles are padded flat-color regions much of the time, so the
// size win is worth the CPU.
type Optimizer struct {
	runner CommandRunner
	binary string
	level  string
	log    *logrus.Logger
}

// NewOptimizer creates an Optimizer that shells out to optipng at its
// strongest setting.
func NewOptimizer(log *logrus.Logger) *Optimizer {
	return &Optimizer{
		runner: execRunner{},
		binary: "optipng",
		level:  "-o7",
		log:    log,
	}
}

// NewOptimizerWithRunner creates an Optimizer with a custom CommandRunner
func NewOptimizerWithRunner(runner CommandRunner, log *logrus.Logger) *Optimizer {
	opt := NewOptimizer(log)
	opt.runner = runner
	return opt
}

// Optimize recompresses every tile in job's zoom range. A job whose Optimized
// flag is already set is skipped outright: the stage completed on a previous
// attempt and re-running it would burn minutes of CPU for nothing. On success
// the flag is set on the job; persisting it is the caller's responsibility.
// Failures wrap utils.ErrOptimization and are retryable.
func (o *Optimizer) Optimize(ctx context.Context, job *models.TilingJob) error {
	jobLog := o.log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"map_id":   job.MapID,
		"min_zoom": job.MinZoom,
		"max_zoom": job.MaxZoom,
	})

	if job.Optimized {
		jobLog.Info("Tiles already optimized on a previous attempt, skipping")
		return nil
	}

	total := 0
	for _, pattern := range utils.TileGlobs(job.Dir, job.MinZoom, job.MaxZoom) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("%w: bad tile glob '%s': %w", utils.ErrFilesystem, pattern, err)
		}

		for _, tile := range matches {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err := o.runner.Run(ctx, o.binary, o.level, tile); err != nil {
				return fmt.Errorf("%w: '%s': %w", utils.ErrOptimization, tile, err)
			}
			total++
		}
	}

	job.Optimized = true
	jobLog.WithField("tiles", total).Info("Tile optimization complete")
	return nil
}
