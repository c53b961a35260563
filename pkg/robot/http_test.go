package robot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/teslashibe/go-perception/internal/retry"
)

func TestHTTPSensors_HeadAngles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/state/full" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"head_pose":{"roll":0,"pitch":-0.2,"yaw":0.35},"body_yaw":0.1}`))
	}))
	defer srv.Close()

	s := NewHTTPSensors(srv.URL)
	yaw, pitch, err := s.HeadAngles(context.Background())
	if err != nil {
		t.Fatalf("HeadAngles: %v", err)
	}
	if yaw != 0.35 || pitch != -0.2 {
		t.Errorf("got yaw=%v pitch=%v", yaw, pitch)
	}
}

func TestHTTPSensors_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"head_pose":{"yaw":0.1}}`))
	}))
	defer srv.Close()

	yaw, _, err := NewHTTPSensors(srv.URL).HeadAngles(context.Background())
	if err != nil {
		t.Fatalf("HeadAngles: %v", err)
	}
	if yaw != 0.1 || hits.Load() != 2 {
		t.Errorf("yaw=%v hits=%d", yaw, hits.Load())
	}
}

func TestHTTPSensors_ClientErrorIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, _, err := NewHTTPSensors(srv.URL).HeadAngles(context.Background())
	if !errors.Is(err, retry.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestHTTPSensors_Unreachable(t *testing.T) {
	s := NewHTTPSensors("http://127.0.0.1:1")
	if _, _, err := s.HeadAngles(context.Background()); err == nil {
		t.Error("expected error for unreachable daemon")
	}
}

func TestHTTPSensors_DaemonStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state":"running"}`))
	}))
	defer srv.Close()

	st, err := NewHTTPSensors(srv.URL).GetDaemonStatus(context.Background())
	if err != nil || st.State != "running" {
		t.Errorf("status = %+v, err = %v", st, err)
	}
}
