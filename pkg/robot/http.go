package robot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/teslashibe/go-perception/internal/httpc"
	"github.com/teslashibe/go-perception/internal/retry"
)

// DefaultTimeout bounds each sensor request.
const DefaultTimeout = 500 * time.Millisecond

// HTTPSensors reads the head pose from the robot daemon's HTTP API.
type HTTPSensors struct {
	BaseURL string

	client *http.Client
	retry  retry.Config
}

// NewHTTPSensors creates sensors for the daemon at baseURL,
// e.g. "http://192.168.68.77:8000".
func NewHTTPSensors(baseURL string) *HTTPSensors {
	return &HTTPSensors{
		BaseURL: baseURL,
		client:  httpc.NewClient(DefaultTimeout),
		retry:   retry.Config{MaxRetries: 1, Delay: 20 * time.Millisecond, MaxDelay: 100 * time.Millisecond},
	}
}

// GetState returns the daemon's full state.
func (r *HTTPSensors) GetState(ctx context.Context) (State, error) {
	return retry.Result(ctx, r.retry, func(ctx context.Context) (State, error) {
		var st State
		if err := r.getJSON(ctx, "/api/state/full", &st); err != nil {
			return State{}, err
		}
		return st, nil
	})
}

// HeadAngles returns head yaw and pitch in radians.
func (r *HTTPSensors) HeadAngles(ctx context.Context) (float64, float64, error) {
	st, err := r.GetState(ctx)
	if err != nil {
		return 0, 0, err
	}
	return st.HeadPose.Yaw, st.HeadPose.Pitch, nil
}

// GetDaemonStatus returns the robot daemon status.
func (r *HTTPSensors) GetDaemonStatus(ctx context.Context) (Status, error) {
	var st Status
	if err := r.getJSON(ctx, "/api/daemon/status", &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

func (r *HTTPSensors) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+path, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
		if resp.StatusCode < 500 {
			return retry.Permanent(err)
		}
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("failed to decode %s: %w", path, err))
	}
	return nil
}
