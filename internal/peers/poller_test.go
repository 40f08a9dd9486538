package peers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func tempServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/temp" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func hangingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPoll_MixedResults(t *testing.T) {
	ok := tempServer(t, "42.500\n", http.StatusOK)
	jsonPeer := tempServer(t, `{"temperature": 51.25}`, http.StatusOK)
	broken := tempServer(t, "error\n", http.StatusInternalServerError)
	garbage := tempServer(t, "not-a-number", http.StatusOK)

	p := NewPoller(PollerConfig{Timeout: time.Second}, nil, nil)
	list := NewList(ok.URL+"/temp", jsonPeer.URL+"/temp", broken.URL+"/temp", garbage.URL+"/temp")

	res := p.Poll(context.Background(), list)
	if len(res) != 4 {
		t.Fatalf("expected 4 results, got %d", len(res))
	}
	if r := res[ok.URL+"/temp"]; !r.OK() || r.Value != 42.5 {
		t.Fatalf("plain peer: %+v", r)
	}
	if r := res[jsonPeer.URL+"/temp"]; !r.OK() || r.Value != 51.25 {
		t.Fatalf("json peer: %+v", r)
	}
	for _, addr := range []string{broken.URL + "/temp", garbage.URL + "/temp"} {
		r := res[addr]
		if r.OK() {
			t.Fatalf("expected failure for %s", addr)
		}
		var pe *PollError
		if !errors.As(r.Err, &pe) || pe.Peer != addr {
			t.Fatalf("expected *PollError for %s, got %v", addr, r.Err)
		}
	}
}

func TestPoll_SlowPeerDoesNotDelayBatch(t *testing.T) {
	fast := tempServer(t, "40", http.StatusOK)
	slow := hangingServer(t)

	timeout := 200 * time.Millisecond
	p := NewPoller(PollerConfig{Timeout: timeout}, nil, nil)
	list := NewList(slow.URL+"/temp", fast.URL+"/temp")

	start := time.Now()
	res := p.Poll(context.Background(), list)
	elapsed := time.Since(start)

	if elapsed > timeout+time.Second {
		t.Fatalf("poll took %v, expected about %v", elapsed, timeout)
	}
	if r := res[fast.URL+"/temp"]; !r.OK() || r.Value != 40 {
		t.Fatalf("fast peer result missing: %+v", r)
	}
	r := res[slow.URL+"/temp"]
	if r.OK() {
		t.Fatalf("slow peer must fail")
	}
	var pe *PollError
	if !errors.As(r.Err, &pe) || pe.URL != slow.URL+"/temp" {
		t.Fatalf("expected *PollError, got %v", r.Err)
	}
}

func TestPoll_ManySlowPeersBoundedByOneTimeout(t *testing.T) {
	timeout := 150 * time.Millisecond
	var addrs []string
	for i := 0; i < 6; i++ {
		addrs = append(addrs, hangingServer(t).URL+"/temp")
	}
	p := NewPoller(PollerConfig{Timeout: timeout, MaxWorkers: 8}, nil, nil)

	start := time.Now()
	res := p.Poll(context.Background(), NewList(addrs...))
	if elapsed := time.Since(start); elapsed > 3*timeout+time.Second {
		t.Fatalf("poll of 6 hanging peers took %v", elapsed)
	}
	for _, a := range addrs {
		if res[a].OK() {
			t.Fatalf("%s should have failed", a)
		}
	}
}

func TestPoll_RespectsWorkerLimit(t *testing.T) {
	var inFlight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		_, _ = fmt.Fprint(w, "30")
	}))
	t.Cleanup(srv.Close)

	var addrs []string
	for i := 0; i < 10; i++ {
		addrs = append(addrs, fmt.Sprintf("%s/temp?n=%d", srv.URL, i))
	}
	p := NewPoller(PollerConfig{Timeout: time.Second, MaxWorkers: 3}, nil, nil)
	res := p.Poll(context.Background(), NewList(addrs...))

	for _, a := range addrs {
		if !res[a].OK() {
			t.Fatalf("%s failed: %v", a, res[a].Err)
		}
	}
	if got := atomic.LoadInt32(&peak); got > 3 {
		t.Fatalf("peak concurrency %d exceeds limit 3", got)
	}
}

func TestPoll_EmptyList(t *testing.T) {
	p := NewPoller(PollerConfig{}, nil, nil)
	if res := p.Poll(context.Background(), List{}); len(res) != 0 {
		t.Fatalf("expected no results, got %v", res)
	}
}

func TestNewPoller_Defaults(t *testing.T) {
	p := NewPoller(PollerConfig{MaxWorkers: 64}, nil, nil)
	if p.Timeout() != DefaultTimeout {
		t.Fatalf("timeout = %v", p.Timeout())
	}
	if p.maxWorkers != MaxWorkersLimit {
		t.Fatalf("maxWorkers = %d, want cap %d", p.maxWorkers, MaxWorkersLimit)
	}
}

func TestParseTemperature(t *testing.T) {
	cases := []struct {
		body    string
		want    float64
		wantErr bool
	}{
		{"42.5", 42.5, false},
		{" 42.500\n", 42.5, false},
		{`{"temp_celsius": 39.1}`, 39.1, false},
		{`{"cpu": 47, "nvme": 33}`, 47, false},
		{`{"temp": "hot", "temperature": 44}`, 44, false},
		{"", 0, true},
		{"NaN", 0, true},
		{"error", 0, true},
		{`{"nvme": 33}`, 0, true},
	}
	for _, tc := range cases {
		got, err := ParseTemperature([]byte(tc.body))
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseTemperature(%q) expected error, got %v", tc.body, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseTemperature(%q) = %v, %v; want %v", tc.body, got, err, tc.want)
		}
	}
}
