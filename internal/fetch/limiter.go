package fetch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter — общий лимит запросов ко внешним API. Создаётся один раз и
// передаётся по ссылке всем вызывающим; допуски выдаются равномерно,
// не чаще одного на window/n, так что за любое скользящее окно window
// проходит не более n запросов.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter: n допусков на скользящее окно window.
// При n<=0 или window<=0 берутся значения по умолчанию (60 за минуту).
func NewLimiter(n int, window time.Duration) *Limiter {
	if n <= 0 {
		n = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{lim: rate.NewLimiter(rate.Every(window/time.Duration(n)), 1)}
}

// Admit блокирует вызывающего, пока лимитер не выдаст допуск
// или не отменится контекст. Очередь одна на все горутины.
func (l *Limiter) Admit(ctx context.Context) error {
	return l.lim.Wait(ctx)
}
