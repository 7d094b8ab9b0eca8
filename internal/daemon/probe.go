package daemon

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// waitForToolbox polls the toolbox health endpoint until it answers or timeout passes
func waitForToolbox(ctx context.Context, baseURL string, timeout time.Duration) error {
	client := &http.Client{Timeout: time.Second}
	url := strings.TrimRight(baseURL, "/") + "/health"

	probe := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return struct{}{}, fmt.Errorf("health returned status %d", resp.StatusCode)
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, probe,
		backoff.WithBackOff(backoff.NewConstantBackOff(100*time.Millisecond)),
		backoff.WithMaxElapsedTime(timeout),
	)
	if err != nil {
		return fmt.Errorf("toolbox at %s did not become ready: %w", baseURL, err)
	}
	return nil
}
