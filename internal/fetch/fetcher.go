package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/woreworewo/dota/internal/logging"
	"github.com/woreworewo/dota/internal/metrics"
)

// ErrExhausted — все попытки запроса исчерпаны.
var ErrExhausted = errors.New("fetch: retries exhausted")

// StatusError — не-2xx ответ апстрима.
type StatusError struct {
	Code       int
	RetryAfter time.Duration // только для 429, 0 если сервер не прислал
}

func (e *StatusError) Error() string {
	return "unexpected status " + strconv.Itoa(e.Code)
}

type Config struct {
	Name    string            // метка API в логах и метриках
	Limiter *Limiter          // общий лимитер, обязателен
	Client  *http.Client      // nil — клиент с таймаутом 10с
	Headers map[string]string // добавляются к каждому запросу (ключ API и т.п.)

	MaxAttempts int           // 0 — 4
	RetryAfter  time.Duration // фолбэк при 429 без заголовка, 0 — 10с
	Backoff     time.Duration // первая пауза бэкоффа, 0 — 2с
	BackoffCap  time.Duration // потолок паузы, 0 — 60с
}

type Fetcher struct {
	name    string
	http    *http.Client
	limiter *Limiter
	headers map[string]string
	breaker *gobreaker.CircuitBreaker[[]byte]

	maxAttempts int
	retryAfter  time.Duration
	backoff     time.Duration
	backoffCap  time.Duration
}

func New(cfg Config) *Fetcher {
	f := &Fetcher{
		name:        cfg.Name,
		http:        cfg.Client,
		limiter:     cfg.Limiter,
		headers:     cfg.Headers,
		maxAttempts: cfg.MaxAttempts,
		retryAfter:  cfg.RetryAfter,
		backoff:     cfg.Backoff,
		backoffCap:  cfg.BackoffCap,
	}
	if f.http == nil {
		f.http = &http.Client{Timeout: 10 * time.Second}
	}
	if f.limiter == nil {
		f.limiter = NewLimiter(60, time.Minute)
	}
	if f.maxAttempts <= 0 {
		f.maxAttempts = 4
	}
	if f.retryAfter <= 0 {
		f.retryAfter = 10 * time.Second
	}
	if f.backoff <= 0 {
		f.backoff = 2 * time.Second
	}
	if f.backoffCap <= 0 {
		f.backoffCap = 60 * time.Second
	}

	f.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("api", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("fetch: breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			// отмена контекста — не отказ апстрима
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return f
}

// Get выполняет GET url и возвращает тело 2xx-ответа.
// Блокируется на общем лимитере перед каждой попыткой.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	body, err := f.breaker.Execute(func() ([]byte, error) {
		return f.get(ctx, url)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.FetchFailures.WithLabelValues(f.name).Inc()
			logging.Warn().Str("api", f.name).Str("url", url).Msg("fetch: breaker open, skipped")
		}
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	metrics.FetchRequests.WithLabelValues(f.name).Inc()

	var lastErr error
	exp := 0 // экспонента бэкоффа, 429 её не двигает
	for attempt := 1; ; attempt++ {
		if err := f.limiter.Admit(ctx); err != nil {
			return nil, err
		}

		body, err := f.do(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt >= f.maxAttempts {
			break
		}

		var wait time.Duration
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
			wait = se.RetryAfter
			if wait <= 0 {
				wait = f.retryAfter
			}
			metrics.FetchThrottled.WithLabelValues(f.name).Inc()
			logging.Warn().Str("api", f.name).Dur("wait", wait).Msg("fetch: throttled")
		} else {
			exp++
			wait = f.backoff << (exp - 1)
			if wait > f.backoffCap {
				wait = f.backoffCap
			}
			logging.Warn().Str("api", f.name).Err(err).
				Int("attempt", attempt).Dur("wait", wait).Msg("fetch: retrying")
		}
		metrics.FetchRetries.WithLabelValues(f.name).Inc()
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	metrics.FetchFailures.WithLabelValues(f.name).Inc()
	return nil, fmt.Errorf("fetch %s %s: %w: last error: %v", f.name, url, ErrExhausted, lastErr)
}

func (f *Fetcher) do(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		se := &StatusError{Code: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests {
			se.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return nil, se
	}
	return io.ReadAll(resp.Body)
}

// parseRetryAfter понимает только целые секунды; иное — 0 (фолбэк у вызывающего).
func parseRetryAfter(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
