package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/woreworewo/dota/internal/cache"
	"github.com/woreworewo/dota/internal/chat"
	"github.com/woreworewo/dota/internal/config"
	"github.com/woreworewo/dota/internal/fetch"
	"github.com/woreworewo/dota/internal/logging"
	"github.com/woreworewo/dota/internal/metrics"
	"github.com/woreworewo/dota/internal/odapi"
	"github.com/woreworewo/dota/internal/presence"
	"github.com/woreworewo/dota/internal/stats"
	"github.com/woreworewo/dota/internal/steamapi"
	"github.com/woreworewo/dota/internal/tracker"
)

type DotaBot struct {
	cfg    *config.Config
	roster *config.Roster
	quotes *quoteStore

	chat  *chat.Client
	od    *odapi.Client
	steam *steamapi.Client

	players *cache.Store
	matches *cache.Store
	static  *cache.Store

	tracker *tracker.Tracker
	watcher *presence.Watcher

	mu       sync.Mutex
	runCtx   context.Context // контекст Serve, для фоновых команд
	updating atomic.Bool
}

// New собирает бота: один общий лимитер на оба API, кэши под data_dir,
// ростер и цитатник. Сетевых вызовов здесь нет, только файлы.
func New(cfg *config.Config) (*DotaBot, error) {
	limiter := fetch.NewLimiter(cfg.Rate.PerMinute, time.Minute)

	players, err := cache.NewStore(filepath.Join(cfg.DataDir, "players"))
	if err != nil {
		return nil, fmt.Errorf("players cache: %w", err)
	}
	matches, err := cache.NewStore(filepath.Join(cfg.DataDir, "matches"))
	if err != nil {
		return nil, fmt.Errorf("matches cache: %w", err)
	}
	static, err := cache.NewStore(filepath.Join(cfg.DataDir, "static"))
	if err != nil {
		return nil, fmt.Errorf("static cache: %w", err)
	}
	sessions, err := presence.NewSessionStore(filepath.Join(cfg.DataDir, "sessions"))
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	roster := config.NewRoster(cfg.PlayersFile)
	if err := roster.Load(); err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	quotes := newQuoteStore(cfg.QuotesFile)
	if err := quotes.Load(); err != nil {
		return nil, fmt.Errorf("quotes: %w", err)
	}

	b := &DotaBot{
		cfg:     cfg,
		roster:  roster,
		quotes:  quotes,
		players: players,
		matches: matches,
		static:  static,
	}

	b.od = odapi.NewClient(
		fetch.New(fetch.Config{Name: "opendota", Limiter: limiter}),
		cfg.OpenDota.BaseURL, cfg.OpenDota.APIKey)
	b.steam = steamapi.NewClient(
		fetch.New(fetch.Config{Name: "steam", Limiter: limiter}),
		cfg.Steam.BaseURL, cfg.Steam.APIKey)

	b.tracker = tracker.New(b.od, players, matches, static, roster, cfg.Refresh.Parallel)
	b.tracker.OnNewMatch = b.announceMatch

	b.chat = chat.NewClient(cfg.Chat)
	b.chat.OnMessage = b.handleMessage

	b.watcher = presence.NewWatcher(sessions, roster, cfg.Presence.TargetGame)
	b.watcher.Notify = b.chat.Say

	return b, nil
}

// Chat — клиент чата, нужен main-у для зеркала логов.
func (b *DotaBot) Chat() *chat.Client { return b.chat }

// Serve поднимает дерево сервисов и блокируется до отмены контекста.
func (b *DotaBot) Serve(ctx context.Context) error {
	b.mu.Lock()
	b.runCtx = ctx
	b.mu.Unlock()

	hook := (&sutureslog.Handler{Logger: logging.Slog()}).MustHook()
	sup := suture.New("dotabot", suture.Spec{EventHook: hook})

	sup.Add(tracker.NewFullRefreshService(b.tracker, b.cfg.Refresh.FullInterval))
	sup.Add(tracker.NewIncrementalRefreshService(b.tracker, b.cfg.Refresh.IncrementalInterval))

	if b.cfg.Steam.APIKey != "" {
		sup.Add(presence.NewPollService(b.watcher, b.steam, b.roster, b.cfg.Presence.PollInterval))
		reportAt, err := config.ParseClock(b.cfg.Presence.ReportAt)
		if err != nil {
			return err
		}
		sup.Add(presence.NewReportService(b.watcher, reportAt, b.cfg.Location(), b.retention(), b.chat.Say))
	} else {
		logging.Warn().Msg("bot: steam api key is empty, presence is off")
	}

	if b.chat.Enabled() {
		sup.Add(b.chat)
		sup.Add(newQuoteService(b.quotes, b.chat.Say))
	} else {
		logging.Warn().Msg("bot: chat is not configured, running headless")
	}

	if b.cfg.MetricsAddr != "" {
		sup.Add(metrics.NewServer(b.cfg.MetricsAddr))
	}

	logging.Info().Int("players", b.roster.Len()).Msg("bot: started")
	return sup.Serve(ctx)
}

func (b *DotaBot) retention() time.Duration {
	return time.Duration(b.cfg.Presence.RetentionDays) * 24 * time.Hour
}

// announceMatch шлёт в чат сводку свежесохранённого матча игрока.
func (b *DotaBot) announceMatch(p config.Player, matchID int64) {
	logging.Info().Int64("player", p.ID).Int64("match", matchID).Msg("bot: new match")
	b.chat.Say("🆕 Свежий матч!\n" + stats.LastMatch(b.players, b.matches, b.static, p.ID, p.Name))
}

func (b *DotaBot) handleMessage(m chat.Message) {
	text := strings.TrimSpace(m.Text)
	logging.Debug().Str("from", m.Username).Str("text", text).Msg("bot: chat message")
	if !strings.HasPrefix(text, "!") {
		return
	}
	if err := b.HandleCommand(text); err != nil {
		b.chat.Say("err: " + err.Error())
	}
}

// RefreshOnce — один проход цикла обновления (для CLI).
func (b *DotaBot) RefreshOnce(ctx context.Context, full bool) {
	if full {
		b.tracker.FullRefresh(ctx)
	} else {
		b.tracker.IncrementalRefresh(ctx)
	}
}

// ReportText — ежедневная сводка наигранного за окно хранения.
// Подрезает сессии за окном, как и плановый отчёт.
func (b *DotaBot) ReportText() string {
	text := b.watcher.DailyReport(time.Now(), b.retention())
	if text == "" {
		return "Отчёт пуст: закрытых сессий за окно нет."
	}
	return text
}

// WorstText — антирейтинг по закэшированным матчам.
func (b *DotaBot) WorstText() string {
	return stats.WorstPlayers(b.matches, b.roster)
}

// LastText — сводка последнего матча: без аргумента самый свежий матч
// кэша, с аргументом (id или имя из ростера) последний матч игрока.
func (b *DotaBot) LastText(arg string) string {
	if arg == "" {
		return stats.LatestCached(b.matches, b.static, b.roster)
	}
	p, ok := b.findPlayer(arg)
	if !ok {
		return fmt.Sprintf("Не знаю игрока %q. !track list покажет ростер.", arg)
	}
	return stats.LastMatch(b.players, b.matches, b.static, p.ID, p.Name)
}

// PlayedText — сколько наиграно в целевой игре по закрытым сессиям.
// days ограничивает окно; 0 и меньше — окно хранения целиком.
func (b *DotaBot) PlayedText(days int) string {
	if days <= 0 || days > b.cfg.Presence.RetentionDays {
		days = b.cfg.Presence.RetentionDays
	}
	totals := b.watcher.Totals(time.Now(), time.Duration(days)*24*time.Hour)
	if len(totals) == 0 {
		return fmt.Sprintf("За %d дн. в %s никто не играл.",
			days, b.cfg.Presence.TargetGame)
	}

	type row struct {
		label string
		d     time.Duration
	}
	rows := make([]row, 0, len(totals))
	for label, d := range totals {
		rows = append(rows, row{label, d})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].d != rows[j].d {
			return rows[i].d > rows[j].d
		}
		return rows[i].label < rows[j].label
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "🎮 %s за %d дн.:", b.cfg.Presence.TargetGame, days)
	for _, r := range rows {
		fmt.Fprintf(&sb, "\n%s: %s", r.label, presence.FmtDuration(r.d))
	}
	return sb.String()
}

// TrackInfoText — живой снимок присутствия: кто прямо сейчас в какой игре.
func (b *DotaBot) TrackInfoText(ctx context.Context) string {
	if b.cfg.Steam.APIKey == "" {
		return "Присутствие выключено: steam api key не задан."
	}
	players := b.roster.List()
	if len(players) == 0 {
		return "Ростер пуст."
	}

	ids := make([]uint64, len(players))
	for i, p := range players {
		ids[i] = steamapi.AccountToSteam64(p.ID)
	}
	sum, err := b.steam.Summaries(ctx, ids)
	if err != nil {
		return "Steam не ответил: " + err.Error()
	}

	var sb strings.Builder
	sb.WriteString("Сейчас:")
	for _, p := range players {
		status := "не в игре"
		if s, ok := sum[steamapi.AccountToSteam64(p.ID)]; ok && s.Game != "" {
			status = "в игре: " + s.Game
		}
		fmt.Fprintf(&sb, "\n%s — %s", p.Name, status)
	}
	return sb.String()
}

// commandCtx — контекст для команд, трогающих сеть: живёт, пока живёт
// Serve; до запуска откатывается на Background (CLI-режим).
func (b *DotaBot) commandCtx() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.runCtx != nil {
		return b.runCtx
	}
	return context.Background()
}

// StatusText — краткое состояние бота.
func (b *DotaBot) StatusText() string {
	return fmt.Sprintf("игроков: %d | матчей в кэше: %d | цитат: %d",
		b.roster.Len(), len(b.matches.Keys()), b.quotes.Len())
}

// findPlayer ищет игрока по числовому id (account id или steam64) либо
// по имени из ростера без учёта регистра.
func (b *DotaBot) findPlayer(arg string) (config.Player, bool) {
	if id, err := parsePlayerID(arg); err == nil {
		if name, ok := b.roster.Name(id); ok {
			return config.Player{ID: id, Name: name}, true
		}
		return config.Player{ID: id, Name: arg}, true
	}
	for _, p := range b.roster.List() {
		if strings.EqualFold(p.Name, arg) {
			return p, true
		}
	}
	return config.Player{}, false
}
