package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/woreworewo/dota/internal/cache"
	"github.com/woreworewo/dota/internal/config"
	"github.com/woreworewo/dota/internal/fetch"
	"github.com/woreworewo/dota/internal/odapi"
)

type testEnv struct {
	tr      *Tracker
	players *cache.Store
	matches *cache.Store
	static  *cache.Store
	roster  *config.Roster
}

func newTestEnv(t *testing.T, srvURL string, ids ...int64) *testEnv {
	t.Helper()
	dir := t.TempDir()

	players, err := cache.NewStore(filepath.Join(dir, "players"))
	if err != nil {
		t.Fatal(err)
	}
	matches, err := cache.NewStore(filepath.Join(dir, "matches"))
	if err != nil {
		t.Fatal(err)
	}
	static, err := cache.NewStore(filepath.Join(dir, "static"))
	if err != nil {
		t.Fatal(err)
	}

	roster := config.NewRoster(filepath.Join(dir, "players.json"))
	if err := roster.Load(); err != nil {
		t.Fatal(err)
	}
	for _, id := range ids {
		if err := roster.Add(id, fmt.Sprintf("p%d", id)); err != nil {
			t.Fatal(err)
		}
	}

	f := fetch.New(fetch.Config{
		Name:        "od-test",
		Limiter:     fetch.NewLimiter(10000, time.Second),
		MaxAttempts: 1,
	})
	od := odapi.NewClient(f, srvURL, "")

	return &testEnv{
		tr:      New(od, players, matches, static, roster, 2),
		players: players,
		matches: matches,
		static:  static,
		roster:  roster,
	}
}

// Unchanged latest match id on the second cycle must not refetch the match.
func TestIncrementalFetchesMatchOnce(t *testing.T) {
	var matchCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/players/111/recentMatches":
			_, _ = w.Write([]byte(`[{"match_id":8001,"kills":5}]`))
		case "/matches/8001":
			atomic.AddInt32(&matchCalls, 1)
			_, _ = w.Write([]byte(`{"match_id":8001,"duration":1800}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, 111)
	ctx := context.Background()

	env.tr.IncrementalRefresh(ctx)
	if !env.matches.Exists("8001") {
		t.Fatal("match not cached after first cycle")
	}
	if got := atomic.LoadInt32(&matchCalls); got != 1 {
		t.Fatalf("match calls after first cycle = %d", got)
	}

	env.tr.IncrementalRefresh(ctx)
	if got := atomic.LoadInt32(&matchCalls); got != 1 {
		t.Errorf("match calls after second cycle = %d, want still 1", got)
	}

	rec := env.players.Load("111")
	if prevMatchID(rec) != 8001 {
		t.Errorf("last_match_id = %v", rec["last_match_id"])
	}
	if _, ok := rec["recent_matches"]; !ok {
		t.Error("recent_matches not merged")
	}
}

// The marker moves even when the match detail fetch fails, so the
// transition is not rediscovered forever.
func TestMarkerMovesAfterFailedMatchFetch(t *testing.T) {
	var matchCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/players/111/recentMatches":
			_, _ = w.Write([]byte(`[{"match_id":8002}]`))
		case "/matches/8002":
			atomic.AddInt32(&matchCalls, 1)
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, 111)
	ctx := context.Background()

	env.tr.IncrementalRefresh(ctx)
	if env.matches.Exists("8002") {
		t.Error("failed match must not be cached")
	}
	if got := prevMatchID(env.players.Load("111")); got != 8002 {
		t.Fatalf("last_match_id = %d, want 8002 (marker moves after the attempt)", got)
	}

	env.tr.IncrementalRefresh(ctx)
	if got := atomic.LoadInt32(&matchCalls); got != 1 {
		t.Errorf("match calls = %d, want 1 (marker already moved)", got)
	}
}

// One player failing must not keep the rest of the roster from refreshing.
func TestPlayerFailureIsolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/players/111/recentMatches") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		switch r.URL.Path {
		case "/players/222/recentMatches":
			_, _ = w.Write([]byte(`[{"match_id":8003}]`))
		case "/matches/8003":
			_, _ = w.Write([]byte(`{"match_id":8003,"duration":2400}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, 111, 222)
	env.tr.IncrementalRefresh(context.Background())

	if !env.matches.Exists("8003") {
		t.Error("healthy player was not refreshed")
	}
	if got := prevMatchID(env.players.Load("222")); got != 8003 {
		t.Errorf("222 last_match_id = %d", got)
	}
	if got := prevMatchID(env.players.Load("111")); got != 0 {
		t.Errorf("111 last_match_id = %d, want untouched 0", got)
	}
}

// The first cycle only primes the marker; announcements start from the second.
func TestOnNewMatchFiresOnlyAfterPriming(t *testing.T) {
	var latest atomic.Int64
	latest.Store(9001)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/players/111/recentMatches":
			_, _ = fmt.Fprintf(w, `[{"match_id":%d}]`, latest.Load())
		case strings.HasPrefix(r.URL.Path, "/matches/"):
			_, _ = fmt.Fprintf(w, `{"match_id":%s}`, strings.TrimPrefix(r.URL.Path, "/matches/"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, 111)

	var mu sync.Mutex
	var fired []int64
	env.tr.OnNewMatch = func(_ config.Player, matchID int64) {
		mu.Lock()
		fired = append(fired, matchID)
		mu.Unlock()
	}
	ctx := context.Background()

	env.tr.IncrementalRefresh(ctx)
	mu.Lock()
	if len(fired) != 0 {
		t.Fatalf("announced on priming cycle: %v", fired)
	}
	mu.Unlock()

	latest.Store(9002)
	env.tr.IncrementalRefresh(ctx)
	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != 9002 {
		t.Errorf("fired = %v, want [9002]", fired)
	}
}

func TestFullRefreshMergesProfileAndStatic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/players/111":
			_, _ = w.Write([]byte(`{"rank_tier":54,"profile":{"personaname":"Вася"}}`))
		case "/players/111/wl":
			_, _ = w.Write([]byte(`{"win":100,"lose":90}`))
		case "/players/111/recentMatches":
			_, _ = w.Write([]byte(`[{"match_id":8005}]`))
		case "/matches/8005":
			_, _ = w.Write([]byte(`{"match_id":8005}`))
		case "/heroes":
			_, _ = w.Write([]byte(`[{"id":93,"localized_name":"Slark"}]`))
		case "/constants/items":
			_, _ = w.Write([]byte(`{"blink":{"cost":2250}}`))
		case "/constants/patchnotes":
			_, _ = w.Write([]byte(`{"7.36":{}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, 111)
	env.tr.FullRefresh(context.Background())

	rec := env.players.Load("111")
	if rec["rank_tier"] != float64(54) {
		t.Errorf("rank_tier = %v", rec["rank_tier"])
	}
	if rec["label"] != "p111" {
		t.Errorf("label = %v", rec["label"])
	}
	wl, ok := rec["wl"].(map[string]any)
	if !ok || wl["win"] != float64(100) {
		t.Errorf("wl = %v", rec["wl"])
	}
	if !env.static.Exists("heroes") || !env.static.Exists("items") || !env.static.Exists("patchnotes") {
		t.Error("static records missing")
	}
	if !env.matches.Exists("8005") {
		t.Error("match not cached during full refresh")
	}
}

// A failing reference endpoint must not block the other reference fetches.
func TestStaticRefreshFailureIsolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/heroes":
			w.WriteHeader(http.StatusInternalServerError)
		case "/constants/items":
			_, _ = w.Write([]byte(`{"blink":{"cost":2250}}`))
		case "/constants/patchnotes":
			_, _ = w.Write([]byte(`{"7.36":{}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL)
	env.tr.RefreshStatic(context.Background())

	if env.static.Exists("heroes") {
		t.Error("failed heroes fetch left a record")
	}
	if !env.static.Exists("items") || !env.static.Exists("patchnotes") {
		t.Error("constants missing after heroes failure")
	}
}

// The three reference fetches go out concurrently, not one after another.
func TestStaticRefreshRunsParallel(t *testing.T) {
	var inflight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		if r.URL.Path == "/heroes" {
			_, _ = w.Write([]byte(`[]`))
		} else {
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL)
	env.tr.RefreshStatic(context.Background())

	if p := atomic.LoadInt32(&peak); p < 2 {
		t.Errorf("peak concurrent reference fetches = %d, want >= 2", p)
	}
}

// Overlapping cycles discovering the same match produce one fetch.
func TestOverlappingCyclesFetchMatchOnce(t *testing.T) {
	var matchCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/players/111/recentMatches":
			_, _ = w.Write([]byte(`[{"match_id":8006}]`))
		case "/matches/8006":
			atomic.AddInt32(&matchCalls, 1)
			time.Sleep(50 * time.Millisecond) // окно для второго цикла
			_, _ = w.Write([]byte(`{"match_id":8006}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, 111)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.tr.IncrementalRefresh(context.Background())
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&matchCalls); got != 1 {
		t.Errorf("match calls = %d, want 1", got)
	}
	if !env.matches.Exists("8006") {
		t.Error("match not cached")
	}
}
