package health

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Severity is a Nagios-style check outcome, usable directly as a process
// exit code.
type Severity int

const (
	SeverityOK       Severity = 0
	SeverityWarning  Severity = 1
	SeverityCritical Severity = 2
	SeverityUnknown  Severity = 3
)

// String implements fmt.Stringer in the Nagios status vocabulary
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity maps a status string back to its severity, defaulting to
// UNKNOWN for anything unrecognized.
func ParseSeverity(status string) Severity {
	switch status {
	case "OK":
		return SeverityOK
	case "WARNING":
		return SeverityWarning
	case "CRITICAL":
		return SeverityCritical
	default:
		return SeverityUnknown
	}
}

// Report is the heartbeat payload: the worst severity across all checks plus
// enough detail to read off a monitoring dashboard.
type Report struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	QueueDepth int    `json:"queue_depth"`
}

// Severity returns the report's parsed severity
func (r Report) Severity() Severity {
	return ParseSeverity(r.Status)
}

// Thresholds are the queue-depth alarm levels. A backlog past Warn suggests
// the workers are not keeping up; past Crit the service needs attention.
type Thresholds struct {
	QueueWarn int
	QueueCrit int
}

// DefaultThresholds matches the monitoring setup's expected alarm points
var DefaultThresholds = Thresholds{QueueWarn: 50, QueueCrit: 200}

// QueueStats exposes the queue backlog size
type QueueStats interface {
	Depth() int
}

// DBPinger verifies relational store connectivity
type DBPinger interface {
	Ping(ctx context.Context) error
}

// checkTimeout bounds the database ping so a hung connection reports
// CRITICAL instead of hanging the heartbeat itself.
const checkTimeout = 1 * time.Second

// Checker evaluates service health for the heartbeat endpoint
type Checker struct {
	queue      QueueStats
	db         DBPinger
	thresholds Thresholds
	log        *logrus.Logger
}

// NewChecker creates a Checker instance
func NewChecker(queue QueueStats, db DBPinger, thresholds Thresholds, logger *logrus.Logger) *Checker {
	if thresholds.QueueWarn <= 0 {
		thresholds.QueueWarn = DefaultThresholds.QueueWarn
	}
	if thresholds.QueueCrit <= 0 {
		thresholds.QueueCrit = DefaultThresholds.QueueCrit
	}
	return &Checker{
		queue:      queue,
		db:         db,
		thresholds: thresholds,
		log:        logger,
	}
}

// Check runs all health checks and returns the worst outcome. Database
// unavailability is CRITICAL outright; queue depth escalates through the
// configured thresholds.
func (c *Checker) Check(ctx context.Context) Report {
	depth := c.queue.Depth()
	report := Report{Status: SeverityOK.String(), QueueDepth: depth}

	pingCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := c.db.Ping(pingCtx); err != nil {
		c.log.Errorf("Heartbeat: database ping failed: %v", err)
		report.Status = SeverityCritical.String()
		report.Message = fmt.Sprintf("database unreachable: %v", err)
		return report
	}

	switch {
	case depth >= c.thresholds.QueueCrit:
		report.Status = SeverityCritical.String()
		report.Message = fmt.Sprintf("queue depth %d >= critical threshold %d", depth, c.thresholds.QueueCrit)
	case depth >= c.thresholds.QueueWarn:
		report.Status = SeverityWarning.String()
		report.Message = fmt.Sprintf("queue depth %d >= warning threshold %d", depth, c.thresholds.QueueWarn)
	}
	return report
}
