package presence

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/woreworewo/dota/internal/logging"
	"github.com/woreworewo/dota/internal/metrics"
)

// Session — один игровой отрезок. End == nil значит сессия ещё открыта.
type Session struct {
	Game    string     `json:"game"`
	Start   time.Time  `json:"start"`
	End     *time.Time `json:"end,omitempty"`
	Seconds int64      `json:"seconds,omitempty"`
}

func (s Session) Open() bool { return s.End == nil }

// SessionRecord — история сессий одного игрока. Суммарное время не
// хранится: оно каждый раз пересчитывается по закрытым сессиям окна,
// так что счётчику нечего «уплывать».
type SessionRecord struct {
	Label    string    `json:"label,omitempty"`
	Sessions []Session `json:"sessions"`
}

// SessionStore — файл на игрока в каталоге сессий. Битый или
// отсутствующий файл читается как пустая история.
type SessionStore struct {
	dir string
	mu  sync.Mutex
}

func NewSessionStore(dir string) (*SessionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &SessionStore{dir: dir}, nil
}

func (s *SessionStore) path(id int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(id, 10)+".json")
}

func (s *SessionStore) Load(id int64) SessionRecord {
	var rec SessionRecord
	b, err := os.ReadFile(s.path(id))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			metrics.CacheCorrupt.Inc()
			logging.Warn().Int64("player", id).Err(err).Msg("sessions: unreadable file, starting empty")
		}
		return rec
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		metrics.CacheCorrupt.Inc()
		logging.Warn().Int64("player", id).Err(err).Msg("sessions: corrupt file, starting empty")
		return SessionRecord{}
	}
	return rec
}

func (s *SessionStore) Save(id int64, rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.MarshalIndent(&rec, "", "  ")
	if err != nil {
		logging.Error().Int64("player", id).Err(err).Msg("sessions: marshal failed")
		return err
	}
	path := s.path(id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		logging.Error().Int64("player", id).Err(err).Msg("sessions: write failed")
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		logging.Error().Int64("player", id).Err(err).Msg("sessions: rename failed")
		return err
	}
	return nil
}

func (s *SessionStore) Delete(id int64) error {
	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// IDs перечисляет игроков, у которых есть файл сессий.
func (s *SessionStore) IDs() []int64 {
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var ids []int64
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
