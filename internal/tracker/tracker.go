package tracker

import (
	"context"
	"errors"
	"strconv"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/woreworewo/dota/internal/cache"
	"github.com/woreworewo/dota/internal/config"
	"github.com/woreworewo/dota/internal/logging"
	"github.com/woreworewo/dota/internal/metrics"
	"github.com/woreworewo/dota/internal/odapi"
)

type Tracker struct {
	od       *odapi.Client
	players  *cache.Store
	matches  *cache.Store
	static   *cache.Store
	roster   *config.Roster
	parallel int

	sf singleflight.Group // схлопывает параллельные фетчи одного матча

	// OnNewMatch дёргается после удачного кэширования нового матча игрока.
	// Не вызывается при первом знакомстве с игроком (маркер ещё не примирован),
	// иначе каждый добавленный игрок порождал бы ложное «сыграл новый матч».
	OnNewMatch func(p config.Player, matchID int64)
}

func New(od *odapi.Client, players, matches, static *cache.Store, roster *config.Roster, parallel int) *Tracker {
	if parallel <= 0 {
		parallel = 2
	}
	return &Tracker{
		od:       od,
		players:  players,
		matches:  matches,
		static:   static,
		roster:   roster,
		parallel: parallel,
	}
}

// FullRefresh — справочники, затем все игроки целиком.
func (t *Tracker) FullRefresh(ctx context.Context) {
	t.RefreshStatic(ctx)
	t.refreshPlayers(ctx, true)
	metrics.RefreshCycles.WithLabelValues("full").Inc()
}

// IncrementalRefresh — только свежие матчи игроков.
func (t *Tracker) IncrementalRefresh(ctx context.Context) {
	t.refreshPlayers(ctx, false)
	metrics.RefreshCycles.WithLabelValues("incremental").Inc()
}

// RefreshStatic обновляет справочники, все три параллельно. Каждый
// независим: упавший логируется, остальные качаются дальше.
func (t *Tracker) RefreshStatic(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		heroes, err := t.od.Heroes(ctx)
		if err != nil {
			logging.Warn().Err(err).Msg("tracker: heroes refresh failed")
			return nil
		}
		if err := t.static.Save("heroes", cache.Record{"heroes": heroes}); err == nil {
			logging.Debug().Int("count", len(heroes)).Msg("tracker: heroes updated")
		}
		return nil
	})
	for _, res := range []string{"items", "patchnotes"} {
		res := res
		g.Go(func() error {
			rec, err := t.od.Constants(ctx, res)
			if err != nil {
				logging.Warn().Str("resource", res).Err(err).Msg("tracker: constants refresh failed")
				return nil
			}
			_ = t.static.Save(res, rec)
			return nil
		})
	}
	_ = g.Wait()
}

// refreshPlayers перечитывает ростер и обновляет игроков параллельно,
// не больше t.parallel за раз. Ошибки по игрокам не прерывают цикл.
func (t *Tracker) refreshPlayers(ctx context.Context, full bool) {
	players := t.roster.List()

	var g errgroup.Group
	g.SetLimit(t.parallel)
	for _, p := range players {
		p := p
		g.Go(func() error {
			if err := t.RefreshPlayer(ctx, p, full); err != nil {
				logging.Warn().Int64("player", p.ID).Str("name", p.Name).
					Err(err).Msg("tracker: player refresh failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// RefreshPlayer обновляет кэш одного игрока. При full — профиль и
// win/loss тоже; иначе только последние матчи. Куски независимы,
// упавший не мешает остальным, вернётся объединённая ошибка.
func (t *Tracker) RefreshPlayer(ctx context.Context, p config.Player, full bool) error {
	key := strconv.FormatInt(p.ID, 10)
	var errs []error

	if full {
		if profile, err := t.od.Player(ctx, p.ID); err != nil {
			errs = append(errs, err)
		} else {
			profile["label"] = p.Name
			if _, err := t.players.Merge(key, profile); err != nil {
				errs = append(errs, err)
			}
		}

		if wl, err := t.od.WinLoss(ctx, p.ID); err != nil {
			errs = append(errs, err)
		} else if _, err := t.players.Merge(key, cache.Record{"wl": wl}); err != nil {
			errs = append(errs, err)
		}
	}

	recent, err := t.od.RecentMatches(ctx, p.ID)
	if err != nil {
		errs = append(errs, err)
		return errors.Join(errs...)
	}

	merged, err := t.players.Merge(key, cache.Record{
		"label":          p.Name,
		"recent_matches": recent,
	})
	if err != nil {
		errs = append(errs, err)
	}

	latest, ok := odapi.LatestMatchID(recent)
	if !ok {
		return errors.Join(errs...)
	}
	prev := prevMatchID(merged)

	if latest != prev {
		fetchErr := t.ensureMatch(ctx, latest)
		if fetchErr != nil {
			errs = append(errs, fetchErr)
		}
		// маркер двигаем после попытки, удачной или нет,
		// чтобы не потерять сам факт смены матча
		if _, err := t.players.Merge(key, cache.Record{"last_match_id": latest}); err != nil {
			errs = append(errs, err)
		}
		if fetchErr == nil && prev != 0 && t.OnNewMatch != nil {
			t.OnNewMatch(p, latest)
		}
	}
	return errors.Join(errs...)
}

// ensureMatch качает и сохраняет матч, если его ещё нет на диске.
// Матчи неизменяемы, поэтому существующий файл — гарантия, что качать
// не надо. Узкое окно «оба цикла прошли проверку до записи» закрывает
// singleflight, а повторная запись безвредна.
func (t *Tracker) ensureMatch(ctx context.Context, matchID int64) error {
	key := strconv.FormatInt(matchID, 10)
	if t.matches.Exists(key) {
		metrics.MatchCacheHits.Inc()
		return nil
	}
	_, err, _ := t.sf.Do(key, func() (any, error) {
		if t.matches.Exists(key) {
			metrics.MatchCacheHits.Inc()
			return nil, nil
		}
		rec, err := t.od.Match(ctx, matchID)
		if err != nil {
			return nil, err
		}
		if err := t.matches.Save(key, rec); err != nil {
			return nil, err
		}
		metrics.MatchesCached.Inc()
		logging.Info().Int64("match", matchID).Msg("tracker: new match cached")
		return nil, nil
	})
	return err
}

func prevMatchID(rec cache.Record) int64 {
	switch v := rec["last_match_id"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}
