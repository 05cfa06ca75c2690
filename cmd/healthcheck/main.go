// Nagios-style health check for the maps service. Probes the /heartbeat
// endpoint and exits with the standard plugin codes: 0 OK, 1 WARNING,
// 2 CRITICAL, 3 UNKNOWN.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"interactive-maps/pkg/health"
)

func main() {
	urlFlag := flag.String("url", "", "Full heartbeat URL (overrides -host/-port)")
	hostFlag := flag.String("host", "localhost", "Service host")
	portFlag := flag.Int("port", 8080, "Service port")
	flag.Parse()

	heartbeatURL := *urlFlag
	if heartbeatURL == "" {
		heartbeatURL = fmt.Sprintf("http://%s:%d/heartbeat", *hostFlag, *portFlag)
	}

	client := &http.Client{Timeout: health.ProbeTimeout}
	report := health.Probe(client, heartbeatURL)

	severity := report.Severity()
	if report.Message != "" {
		fmt.Printf("%s: %s\n", severity, report.Message)
	} else {
		fmt.Printf("%s: queue depth %d\n", severity, report.QueueDepth)
	}
	os.Exit(int(severity))
}
