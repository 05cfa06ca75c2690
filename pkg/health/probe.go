package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ProbeTimeout is how long the external check waits for a heartbeat before
// declaring the service down. Kept short: a service that cannot answer a
// heartbeat inside a second is not healthy.
const ProbeTimeout = 1 * time.Second

// Probe hits the service's heartbeat endpoint and maps the outcome to a
// Nagios report. Connection failures and timeouts are CRITICAL (the service
// is down); a malformed response is UNKNOWN.
func Probe(client *http.Client, heartbeatURL string) Report {
	ctx, cancel := context.WithTimeout(context.Background(), ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, heartbeatURL, nil)
	if err != nil {
		return Report{
			Status:  SeverityUnknown.String(),
			Message: fmt.Sprintf("bad heartbeat URL '%s': %v", heartbeatURL, err),
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Report{
			Status:  SeverityCritical.String(),
			Message: fmt.Sprintf("heartbeat request failed: %v", err),
		}
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return Report{
			Status:  SeverityUnknown.String(),
			Message: fmt.Sprintf("undecodable heartbeat response (HTTP %d): %v", resp.StatusCode, err),
		}
	}

	// The body carries the authoritative severity; the endpoint mirrors
	// WARNING/CRITICAL in the HTTP status for plain HTTP monitors.
	if report.Status == "" {
		report.Status = SeverityUnknown.String()
		report.Message = fmt.Sprintf("heartbeat response missing status (HTTP %d)", resp.StatusCode)
	}
	return report
}
