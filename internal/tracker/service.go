package tracker

import (
	"context"
	"time"

	"github.com/woreworewo/dota/internal/logging"
)

// FullRefreshService — редкий полный цикл. Первый проход сразу на старте,
// чтобы после перезапуска кэш не ждал шесть часов.
type FullRefreshService struct {
	t        *Tracker
	interval time.Duration
}

func NewFullRefreshService(t *Tracker, interval time.Duration) *FullRefreshService {
	return &FullRefreshService{t: t, interval: interval}
}

func (s *FullRefreshService) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", s.interval).Msg("tracker: full refresh started")
	s.t.FullRefresh(ctx)

	tick := time.NewTicker(s.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			s.t.FullRefresh(ctx)
		}
	}
}

func (s *FullRefreshService) String() string { return "tracker.FullRefreshService" }

// IncrementalRefreshService — частый цикл «только новые матчи».
// Первый проход откладывается на интервал: на старте и так идёт полный.
type IncrementalRefreshService struct {
	t        *Tracker
	interval time.Duration
}

func NewIncrementalRefreshService(t *Tracker, interval time.Duration) *IncrementalRefreshService {
	return &IncrementalRefreshService{t: t, interval: interval}
}

func (s *IncrementalRefreshService) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", s.interval).Msg("tracker: incremental refresh started")

	tick := time.NewTicker(s.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			s.t.IncrementalRefresh(ctx)
		}
	}
}

func (s *IncrementalRefreshService) String() string { return "tracker.IncrementalRefreshService" }
