package locate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchObservationsFromAPI_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q, want application/json", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"observations":[{"cameraId":"cam-a","azimuth":90,"elevation":10,"timestamp":1700000000000}]}`))
	}))
	defer srv.Close()

	obs, err := FetchObservationsFromAPI(context.Background(), srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Observation{CameraID: "cam-a", Azimuth: 90, Elevation: 10, Timestamp: 1700000000000}
	if len(obs) != 1 || obs[0] != want {
		t.Errorf("observations = %+v, want [%+v]", obs, want)
	}
}

func TestFetchObservationsFromAPI_DefaultCamera(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"azimuth":1,"elevation":2},{"cameraId":"cam-b","azimuth":3,"elevation":4}]`))
	}))
	defer srv.Close()

	obs, err := FetchObservationsFromAPI(context.Background(), srv.URL,
		WithHTTPClient(srv.Client()), WithDefaultCamera("cam-a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(obs) != 2 || obs[0].CameraID != "cam-a" || obs[1].CameraID != "cam-b" {
		t.Errorf("observations = %+v", obs)
	}
}

func TestFetchObservationsFromAPI_EmptyURL(t *testing.T) {
	_, err := FetchObservationsFromAPI(context.Background(), "")
	if err == nil || !strings.Contains(err.Error(), "API URL is empty") {
		t.Errorf("expected empty URL error, got %v", err)
	}
}

func TestFetchObservationsFromAPI_DecodeErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	_, err := FetchObservationsFromAPI(context.Background(), srv.URL,
		WithHTTPClient(srv.Client()), WithMaxRetries(3), WithBaseBackoff(time.Millisecond))
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("expected decode error, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestFetchObservationsFromAPI_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"cameraId":"cam-a","azimuth":45,"elevation":30}`))
	}))
	defer srv.Close()

	obs, err := FetchObservationsFromAPI(context.Background(), srv.URL,
		WithHTTPClient(srv.Client()), WithMaxRetries(3), WithBaseBackoff(time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(obs) != 1 || obs[0].Azimuth != 45 {
		t.Errorf("observations = %+v", obs)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestFetchObservationsFromAPI_AllAttemptsFail(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := FetchObservationsFromAPI(context.Background(), srv.URL,
		WithHTTPClient(srv.Client()), WithMaxRetries(2), WithBaseBackoff(time.Millisecond))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "all 2 attempts failed") || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("unexpected error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestFetchObservationsFromAPI_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FetchObservationsFromAPI(ctx, srv.URL,
		WithHTTPClient(srv.Client()), WithMaxRetries(5), WithBaseBackoff(time.Hour))
	if err == nil || !strings.Contains(err.Error(), "context canceled") {
		t.Errorf("expected context error, got %v", err)
	}
}

func TestFetchObservationsFromAPI_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := FetchObservationsFromAPI(context.Background(), srv.URL,
		WithTimeout(20*time.Millisecond), WithMaxRetries(1))
	if err == nil || !strings.Contains(err.Error(), "all 1 attempts failed") {
		t.Errorf("expected timeout failure, got %v", err)
	}
}
