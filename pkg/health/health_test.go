package health

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type fakeQueue struct{ depth int }

func (f fakeQueue) Depth() int { return f.depth }

type fakeDB struct{ err error }

func (f fakeDB) Ping(ctx context.Context) error { return f.err }

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestSeverity_ExitCodes(t *testing.T) {
	assert.Equal(t, 0, int(SeverityOK))
	assert.Equal(t, 1, int(SeverityWarning))
	assert.Equal(t, 2, int(SeverityCritical))
	assert.Equal(t, 3, int(SeverityUnknown))
}

func TestParseSeverity_RoundTrip(t *testing.T) {
	for _, s := range []Severity{SeverityOK, SeverityWarning, SeverityCritical, SeverityUnknown} {
		assert.Equal(t, s, ParseSeverity(s.String()))
	}
	assert.Equal(t, SeverityUnknown, ParseSeverity("garbled"))
	assert.Equal(t, SeverityUnknown, ParseSeverity(""))
}

func TestCheck_AllHealthy(t *testing.T) {
	checker := NewChecker(fakeQueue{depth: 3}, fakeDB{}, Thresholds{QueueWarn: 10, QueueCrit: 20}, testLogger())
	report := checker.Check(context.Background())

	assert.Equal(t, SeverityOK, report.Severity())
	assert.Equal(t, 3, report.QueueDepth)
	assert.Empty(t, report.Message)
}

func TestCheck_QueueThresholds(t *testing.T) {
	thresholds := Thresholds{QueueWarn: 10, QueueCrit: 20}

	report := NewChecker(fakeQueue{depth: 10}, fakeDB{}, thresholds, testLogger()).Check(context.Background())
	assert.Equal(t, SeverityWarning, report.Severity())
	assert.Contains(t, report.Message, "warning threshold")

	report = NewChecker(fakeQueue{depth: 25}, fakeDB{}, thresholds, testLogger()).Check(context.Background())
	assert.Equal(t, SeverityCritical, report.Severity())
	assert.Contains(t, report.Message, "critical threshold")
}

func TestCheck_DatabaseDownIsCritical(t *testing.T) {
	checker := NewChecker(fakeQueue{}, fakeDB{err: errors.New("connection refused")}, Thresholds{}, testLogger())
	report := checker.Check(context.Background())

	assert.Equal(t, SeverityCritical, report.Severity())
	assert.Contains(t, report.Message, "database unreachable")
}

func TestNewChecker_DefaultThresholds(t *testing.T) {
	checker := NewChecker(fakeQueue{depth: DefaultThresholds.QueueWarn}, fakeDB{}, Thresholds{}, testLogger())
	report := checker.Check(context.Background())
	assert.Equal(t, SeverityWarning, report.Severity())
}

func TestProbe_HealthyService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK","queue_depth":2}`))
	}))
	defer server.Close()

	report := Probe(server.Client(), server.URL+"/heartbeat")
	assert.Equal(t, SeverityOK, report.Severity())
	assert.Equal(t, 2, report.QueueDepth)
}

func TestProbe_DegradedService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"CRITICAL","message":"queue depth 300 >= critical threshold 200","queue_depth":300}`))
	}))
	defer server.Close()

	report := Probe(server.Client(), server.URL+"/heartbeat")
	assert.Equal(t, SeverityCritical, report.Severity())
	assert.Contains(t, report.Message, "queue depth")
}

func TestProbe_ServiceDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	report := Probe(http.DefaultClient, server.URL+"/heartbeat")
	assert.Equal(t, SeverityCritical, report.Severity())
}

func TestProbe_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	report := Probe(server.Client(), server.URL+"/heartbeat")
	assert.Equal(t, SeverityUnknown, report.Severity())
}
