package camera

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/teslashibe/go-perception/internal/httpc"
	"github.com/teslashibe/go-perception/internal/retry"
)

// DaemonClient controls a remote camera daemon.
type DaemonClient struct {
	BaseURL string

	client *http.Client
	retry  retry.Config
}

// NewDaemonClient creates a client for the daemon at baseURL,
// e.g. "http://127.0.0.1:8765".
func NewDaemonClient(baseURL string) *DaemonClient {
	return &DaemonClient{
		BaseURL: baseURL,
		client:  httpc.NewClient(2 * time.Second),
		retry:   retry.Config{MaxRetries: 3, Delay: 100 * time.Millisecond, MaxDelay: time.Second},
	}
}

// SetResolution asks the daemon to switch presets.
func (d *DaemonClient) SetResolution(ctx context.Context, r Resolution) error {
	if !r.Valid() {
		return fmt.Errorf("unknown resolution %d", int(r))
	}
	path := "/set_resolution?res=" + strconv.Itoa(int(r))
	return retry.Do(ctx, d.retry, func(ctx context.Context) error {
		return d.call(ctx, http.MethodPost, path, nil)
	})
}

// Status returns the daemon's status document.
func (d *DaemonClient) Status(ctx context.Context) (map[string]interface{}, error) {
	return retry.Result(ctx, d.retry, func(ctx context.Context) (map[string]interface{}, error) {
		var out map[string]interface{}
		if err := d.call(ctx, http.MethodGet, "/status", &out); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (d *DaemonClient) call(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, d.BaseURL+path, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%s: unexpected status %d: %s", path, resp.StatusCode, body)
		if resp.StatusCode < 500 {
			return retry.Permanent(err)
		}
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("failed to decode %s: %w", path, err))
	}
	return nil
}
