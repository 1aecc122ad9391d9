package httpretry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(doer HTTPDoer, retries int) (*RetryClient, *[]time.Duration) {
	rc := NewRetryClient(doer, retries)
	delays := &[]time.Duration{}
	rc.SetSleep(func(d time.Duration) { *delays = append(*delays, d) })
	return rc, delays
}

func TestDo_SucceedsAfterTransientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rc, delays := newTestClient(server.Client(), 3)

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := rc.Do(req)
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(*delays) != 2 {
		t.Fatalf("len(delays) = %d, want 2", len(*delays))
	}
	for i := 1; i < len(*delays); i++ {
		if (*delays)[i] < 2*(*delays)[i-1] {
			t.Errorf("delay %d = %s, want at least double %s", i, (*delays)[i], (*delays)[i-1])
		}
	}
	for _, d := range *delays {
		if d > 60*time.Second {
			t.Errorf("delay %s exceeds 60s cap", d)
		}
	}
}

func TestDo_DelayCappedAtMax(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	rc, delays := newTestClient(server.Client(), 8)

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := rc.Do(req)
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	resp.Body.Close()

	if len(*delays) != 8 {
		t.Fatalf("len(delays) = %d, want 8", len(*delays))
	}
	// 1,2,4,8,16,32,60,60
	last := (*delays)[len(*delays)-1]
	if last != 60*time.Second {
		t.Errorf("last delay = %s, want 60s cap", last)
	}
}

func TestDo_NonRetryableStatusReturnsImmediately(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict} {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(status)
		}))

		rc, delays := newTestClient(server.Client(), 3)

		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := rc.Do(req)
		if err != nil {
			t.Fatalf("status %d: Do returned error: %v", status, err)
		}
		resp.Body.Close()
		server.Close()

		if resp.StatusCode != status {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, status)
		}
		if atomic.LoadInt32(&calls) != 1 {
			t.Errorf("status %d: calls = %d, want 1 (no retry)", status, calls)
		}
		if len(*delays) != 0 {
			t.Errorf("status %d: recorded %d delays, want 0", status, len(*delays))
		}
	}
}

func TestDo_FinalAttemptReturnsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	rc, _ := newTestClient(server.Client(), 2)

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := rc.Do(req)
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	defer resp.Body.Close()

	// Caller gets the 502 back to inspect after retries are exhausted.
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", resp.StatusCode)
	}
}

type failingDoer struct{ err error }

func (f failingDoer) Do(req *http.Request) (*http.Response, error) { return nil, f.err }

func TestDo_NetworkErrorExhaustsRetries(t *testing.T) {
	wantErr := errors.New("connection refused")
	rc, delays := newTestClient(failingDoer{err: wantErr}, 3)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://example.invalid", nil)
	_, err := rc.Do(req)
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
	if len(*delays) != 3 {
		t.Errorf("len(delays) = %d, want 3", len(*delays))
	}
}

func TestDo_ContextCanceledStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rc, _ := newTestClient(failingDoer{err: errors.New("boom")}, 3)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.invalid", nil)
	if _, err := rc.Do(req); err == nil {
		t.Error("expected error for canceled context")
	}
}
