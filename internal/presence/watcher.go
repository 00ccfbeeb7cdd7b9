package presence

import (
	"strconv"
	"sync"
	"time"

	"github.com/woreworewo/dota/internal/config"
	"github.com/woreworewo/dota/internal/logging"
	"github.com/woreworewo/dota/internal/metrics"
)

// Watcher — машина состояний Idle/Active по каждому игроку. Снимки
// присутствия приходят извне (Observe), переходы превращаются в
// открытие/закрытие сессий и сообщения в чат. Сессии пишутся по любой
// игре; target решает, что попадает в ежедневную сводку.
type Watcher struct {
	store  *SessionStore
	roster *config.Roster
	target string

	mu    sync.Mutex
	state map[int64]*playerState

	// Notify — отправка текста в чат, fire-and-forget. nil — молчим.
	Notify func(text string)
}

// lastGame == nil: базлайн ещё не снят, первый снимок его только
// фиксирует и сессию не открывает (старт игры неизвестен).
type playerState struct {
	lastGame  *string
	openStart time.Time
}

func NewWatcher(store *SessionStore, roster *config.Roster, target string) *Watcher {
	return &Watcher{
		store:  store,
		roster: roster,
		target: target,
		state:  make(map[int64]*playerState),
	}
}

// Observe обрабатывает один снимок присутствия: account id игрока ->
// название игры, пустая строка — не в игре. Отсутствие игрока в снимке
// равно «не в игре». now передаётся явно, чтобы переходы были проверяемы.
func (w *Watcher) Observe(now time.Time, snapshot map[int64]string) {
	players := w.roster.List()

	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[int64]bool, len(players))
	for _, p := range players {
		seen[p.ID] = true
		w.observeOne(now, p, snapshot[p.ID])
	}

	// выпавшие из ростера: память чистим, открытую сессию в файле бросаем
	for id, st := range w.state {
		if seen[id] {
			continue
		}
		if !st.openStart.IsZero() {
			logging.Warn().Int64("player", id).Msg("presence: player untracked mid-session, dropping open session")
			w.dropOpen(id)
		}
		delete(w.state, id)
	}
}

func (w *Watcher) observeOne(now time.Time, p config.Player, game string) {
	st := w.state[p.ID]
	if st == nil {
		st = &playerState{}
		w.state[p.ID] = st
	}

	if st.lastGame == nil {
		g := game
		st.lastGame = &g
		return
	}

	prev := *st.lastGame
	if prev == game { // повторы снимка — no-op, сколько бы их ни было
		return
	}

	label := p.Name
	if label == "" {
		label = strconv.FormatInt(p.ID, 10)
	}

	var msg string
	switch {
	case prev == "":
		msg = "🎮 " + label + " запустил " + game
	case game == "":
		msg = "💤 " + label + " вышел из " + prev
	default:
		msg = "🎮 " + label + " сменил " + prev + " на " + game
	}

	if prev != "" {
		if dur, ok := w.closeSession(now, p.ID, label, prev, st.openStart); ok {
			msg += " (отыграл " + FmtDuration(dur) + ")"
		}
		st.openStart = time.Time{}
	}
	if game != "" {
		w.openSession(now, p.ID, label, game)
		st.openStart = now
	}

	*st.lastGame = game
	w.say(msg)
}

// openSession дописывает открытую сессию в файл. Застрявшая там открытая
// сессия (после падения) выбрасывается: её конец уже не узнать.
func (w *Watcher) openSession(now time.Time, id int64, label, game string) {
	rec := w.store.Load(id)
	rec.Label = label

	kept := rec.Sessions[:0]
	for _, s := range rec.Sessions {
		if s.Open() {
			logging.Warn().Int64("player", id).Time("start", s.Start).
				Msg("presence: dropping stale open session")
			continue
		}
		kept = append(kept, s)
	}
	rec.Sessions = append(kept, Session{Game: game, Start: now})

	if err := w.store.Save(id, rec); err == nil {
		metrics.SessionsOpened.Inc()
	}
	logging.Info().Int64("player", id).Str("game", game).Msg("presence: session opened")
}

// closeSession закрывает последнюю открытую сессию игрока. Если файл её
// потерял, а в памяти старт есть, сессия восстанавливается по памяти.
// false — закрывать было нечего (базлайн сняли уже в игре).
func (w *Watcher) closeSession(now time.Time, id int64, label, game string, memStart time.Time) (time.Duration, bool) {
	rec := w.store.Load(id)
	rec.Label = label

	idx := -1
	for i := len(rec.Sessions) - 1; i >= 0; i-- {
		if rec.Sessions[i].Open() {
			idx = i
			break
		}
	}

	var dur time.Duration
	switch {
	case idx >= 0:
		s := &rec.Sessions[idx]
		end := now
		dur = now.Sub(s.Start)
		s.End = &end
		s.Seconds = int64(dur.Seconds())
	case !memStart.IsZero():
		end := now
		dur = now.Sub(memStart)
		rec.Sessions = append(rec.Sessions, Session{
			Game:    game,
			Start:   memStart,
			End:     &end,
			Seconds: int64(dur.Seconds()),
		})
	default:
		return 0, false
	}

	if err := w.store.Save(id, rec); err == nil {
		metrics.SessionsClosed.Inc()
	}
	logging.Info().Int64("player", id).Str("game", game).Dur("duration", dur).Msg("presence: session closed")
	return dur, true
}

// dropOpen выбрасывает открытые сессии игрока из файла, ничего не закрывая.
func (w *Watcher) dropOpen(id int64) {
	rec := w.store.Load(id)
	kept := rec.Sessions[:0]
	for _, s := range rec.Sessions {
		if !s.Open() {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(rec.Sessions) {
		return
	}
	rec.Sessions = kept
	_ = w.store.Save(id, rec)
}

// DropDangling вычищает незакрытые сессии всех игроков. Зовётся на старте:
// что осталось открытым с прошлого запуска, честно не закрыть.
func (w *Watcher) DropDangling() {
	for _, id := range w.store.IDs() {
		rec := w.store.Load(id)
		dropped := 0
		kept := rec.Sessions[:0]
		for _, s := range rec.Sessions {
			if s.Open() {
				dropped++
				continue
			}
			kept = append(kept, s)
		}
		if dropped == 0 {
			continue
		}
		rec.Sessions = kept
		logging.Warn().Int64("player", id).Int("dropped", dropped).
			Msg("presence: dropped dangling open sessions")
		_ = w.store.Save(id, rec)
	}
}

func (w *Watcher) say(text string) {
	if w.Notify != nil {
		w.Notify(text)
	}
}
