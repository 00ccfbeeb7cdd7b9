package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

// fastLimiter admits practically instantly so tests exercise only the
// retry logic, not the shared cadence.
func fastLimiter() *Limiter { return NewLimiter(10000, time.Second) }

func TestGetReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New(Config{Name: "test", Limiter: fastLimiter()})
	body, err := f.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}
}

func TestGetRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`"fine"`))
	}))
	defer srv.Close()

	f := New(Config{Name: "test", Limiter: fastLimiter(), Backoff: 5 * time.Millisecond})
	body, err := f.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != `"fine"` {
		t.Errorf("body = %q", body)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestGetExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Config{Name: "test", Limiter: fastLimiter(), MaxAttempts: 3, Backoff: time.Millisecond})
	_, err := f.Get(context.Background(), srv.URL)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

// A throttled call sleeps exactly Retry-After, not the exponential backoff.
func TestGetHonorsRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`"late"`))
	}))
	defer srv.Close()

	// Backoff is set absurdly high: if the throttle path ever took the
	// backoff branch, the elapsed check below would catch it.
	f := New(Config{Name: "test", Limiter: fastLimiter(), Backoff: 30 * time.Second})

	start := time.Now()
	body, err := f.Get(context.Background(), srv.URL)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != `"late"` {
		t.Errorf("body = %q", body)
	}
	if elapsed < 2*time.Second {
		t.Errorf("elapsed = %v, want >= 2s", elapsed)
	}
	if elapsed > 3*time.Second {
		t.Errorf("elapsed = %v, want < 3s", elapsed)
	}
}

// A 429 between two failures must not advance the backoff exponent:
// waits are backoff, retryAfter, 2*backoff (not 4*backoff).
func TestThrottleDoesNotEscalateBackoff(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1, 3:
			w.WriteHeader(http.StatusInternalServerError)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`"done"`))
		}
	}))
	defer srv.Close()

	f := New(Config{
		Name:       "test",
		Limiter:    fastLimiter(),
		Backoff:    100 * time.Millisecond,
		RetryAfter: time.Millisecond,
	})

	start := time.Now()
	body, err := f.Get(context.Background(), srv.URL)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != `"done"` {
		t.Errorf("body = %q", body)
	}
	// correct: ~100+1+200 ms; escalating through the 429 would give ~100+1+400 ms
	if elapsed < 300*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 300ms", elapsed)
	}
	if elapsed > 450*time.Millisecond {
		t.Errorf("elapsed = %v, want < 450ms", elapsed)
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(Config{Name: "test", Limiter: fastLimiter(), MaxAttempts: 1})
	for i := 0; i < 3; i++ {
		if _, err := f.Get(context.Background(), srv.URL); !errors.Is(err, ErrExhausted) {
			t.Fatalf("call %d: err = %v, want ErrExhausted", i, err)
		}
	}

	_, err := f.Get(context.Background(), srv.URL)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want ErrOpenState", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3 (open breaker must not hit the server)", got)
	}
}

// No more than n admissions fit into any rolling window under concurrent demand.
func TestLimiterRollingWindow(t *testing.T) {
	const (
		n      = 6
		window = 600 * time.Millisecond
		total  = 14
	)
	lim := NewLimiter(n, window)

	var (
		mu     sync.Mutex
		stamps []time.Time
		wg     sync.WaitGroup
	)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lim.Admit(context.Background()); err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	for i := 0; i+n < len(stamps); i++ {
		if d := stamps[i+n].Sub(stamps[i]); d < window-60*time.Millisecond {
			t.Fatalf("admissions %d..%d only %v apart, want ~%v", i, i+n, d, window)
		}
	}
}

func TestAdmitStopsOnContextCancel(t *testing.T) {
	lim := NewLimiter(1, time.Hour)
	if err := lim.Admit(context.Background()); err != nil {
		t.Fatalf("first Admit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := lim.Admit(ctx); err == nil {
		t.Fatal("second Admit returned nil, want context error")
	}
}
