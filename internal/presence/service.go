package presence

import (
	"context"
	"time"

	"github.com/woreworewo/dota/internal/config"
	"github.com/woreworewo/dota/internal/logging"
	"github.com/woreworewo/dota/internal/steamapi"
)

// PollService опрашивает Steam и скармливает снимки Watcher-у.
// Неудачный опрос не трогает состояние: нет снимка — нет переходов.
type PollService struct {
	w        *Watcher
	steam    *steamapi.Client
	roster   *config.Roster
	interval time.Duration
}

func NewPollService(w *Watcher, steam *steamapi.Client, roster *config.Roster, interval time.Duration) *PollService {
	return &PollService{w: w, steam: steam, roster: roster, interval: interval}
}

func (s *PollService) Serve(ctx context.Context) error {
	s.w.DropDangling()
	logging.Info().Dur("interval", s.interval).Msg("presence: poll started")

	s.poll(ctx) // первый снимок сразу: базлайн снимается без задержки

	tick := time.NewTicker(s.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			s.poll(ctx)
		}
	}
}

func (s *PollService) poll(ctx context.Context) {
	players := s.roster.List()
	if len(players) == 0 {
		return
	}

	ids := make([]uint64, len(players))
	for i, p := range players {
		ids[i] = steamapi.AccountToSteam64(p.ID)
	}

	sum, err := s.steam.Summaries(ctx, ids)
	if err != nil {
		logging.Warn().Err(err).Msg("presence: poll failed")
		return
	}

	snap := make(map[int64]string, len(sum))
	for s64, info := range sum {
		snap[steamapi.Steam64ToAccount(s64)] = info.Game
	}
	s.w.Observe(time.Now(), snap)
}

func (s *PollService) String() string { return "presence.PollService" }

// ReportService шлёт ежедневную сводку в заданное время зоны loc.
type ReportService struct {
	w         *Watcher
	at        time.Duration // смещение от полуночи
	loc       *time.Location
	retention time.Duration
	notify    func(string)
}

func NewReportService(w *Watcher, at time.Duration, loc *time.Location, retention time.Duration, notify func(string)) *ReportService {
	if loc == nil {
		loc = time.Local
	}
	return &ReportService{w: w, at: at, loc: loc, retention: retention, notify: notify}
}

func (s *ReportService) Serve(ctx context.Context) error {
	for {
		wait := untilNext(time.Now().In(s.loc), s.at)
		logging.Debug().Dur("wait", wait).Msg("presence: next report scheduled")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case now := <-t.C:
			if text := s.w.DailyReport(now, s.retention); text != "" && s.notify != nil {
				s.notify(text)
			}
		}
	}
}

func (s *ReportService) String() string { return "presence.ReportService" }

// untilNext — сколько ждать до ближайшего наступления времени at
// (смещение от полуночи) в зоне now.
func untilNext(now time.Time, at time.Duration) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	next := midnight.Add(at)
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location()).Add(at)
	}
	return next.Sub(now)
}
