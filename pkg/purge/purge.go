package purge

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/config"
	"interactive-maps/pkg/utils"
)

// Notifier tells the edge cache to drop everything tagged with a surrogate
// key. Purging is advisory: a failed purge means stale tiles are served until
// TTL expiry, not a broken map, so callers fire and forget.
type Notifier struct {
	http *http.Client
	cfg  config.PurgeConfig
	log  *logrus.Logger
}

// NewNotifier creates a new Notifier instance. An empty purge URL disables
// purging entirely.
func NewNotifier(httpClient *http.Client, cfg config.PurgeConfig, log *logrus.Logger) *Notifier {
	return &Notifier{
		http: httpClient,
		cfg:  cfg,
		log:  log,
	}
}

// MapKey is the surrogate key tagging all cached responses for one map
func MapKey(mapID int64) string {
	return fmt.Sprintf("map-%d", mapID)
}

// Purge asynchronously invalidates all cached responses tagged with key.
// The caller tag identifies which operation triggered the purge, for
// attribution in the edge cache's logs and ours. Failures are logged and
// dropped.
func (n *Notifier) Purge(key, caller string) {
	if n.cfg.URL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
		defer cancel()
		if err := n.send(ctx, key, caller); err != nil {
			n.log.WithFields(logrus.Fields{
				"surrogate_key":  key,
				"caller":         caller,
				"error_category": utils.CategorizeError(err),
			}).Warnf("Cache purge failed: %v", err)
		}
	}()
}

// send issues one PURGE request tagged with the surrogate key and caller
func (n *Notifier) send(ctx context.Context, key, caller string) error {
	req, err := http.NewRequestWithContext(ctx, "PURGE", n.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: creating purge request: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("X-Surrogate-Key", key)
	req.Header.Set("X-Purge-Caller", caller)

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("purge request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("purge returned status %d %s", resp.StatusCode, resp.Status)
	}

	n.log.WithFields(logrus.Fields{"surrogate_key": key, "caller": caller}).Debug("Cache purge sent")
	return nil
}
