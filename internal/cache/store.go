// Package cache — файловое KV-хранилище JSON-записей: один файл на ключ.
// Используется для игроков (изменяемые записи, мердж по верхним ключам),
// матчей (неизменяемые, пишутся один раз) и сессий.
package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/woreworewo/dota/internal/logging"
	"github.com/woreworewo/dota/internal/metrics"
)

// Record — произвольный JSON-объект.
type Record = map[string]any

type Store struct {
	dir string
	mu  sync.Mutex // сериализует read-modify-write в Merge
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load возвращает запись по ключу. Отсутствующий, нечитаемый или битый
// файл — это пустая запись, не ошибка: кэш лечится следующим удачным Save.
func (s *Store) Load(key string) Record {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			metrics.CacheCorrupt.Inc()
			logging.Warn().Str("key", key).Err(err).Msg("cache: unreadable file, treating as empty")
		}
		return Record{}
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		metrics.CacheCorrupt.Inc()
		logging.Warn().Str("key", key).Err(err).Msg("cache: corrupt file, treating as empty")
		return Record{}
	}
	if rec == nil { // файл с литералом null
		rec = Record{}
	}
	return rec
}

// Raw возвращает сырые байты записи (для gjson-выборок), nil если файла нет
// или он не читается.
func (s *Store) Raw(key string) []byte {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil
	}
	return data
}

// Save атомарно пишет запись: времянка в том же каталоге, затем rename.
// Упавшая запись оставляет на месте старый файл; ошибка логируется
// и возвращается, но для вызывающих она не фатальна.
func (s *Store) Save(key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(key, rec)
}

func (s *Store) save(key string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		logging.Error().Str("key", key).Err(err).Msg("cache: marshal failed")
		return err
	}

	tmp, err := os.CreateTemp(s.dir, key+".tmp-")
	if err != nil {
		logging.Error().Str("key", key).Err(err).Msg("cache: temp file failed")
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		logging.Error().Str("key", key).Err(err).Msg("cache: write failed")
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		logging.Error().Str("key", key).Err(err).Msg("cache: close failed")
		return err
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		logging.Error().Str("key", key).Err(err).Msg("cache: rename failed")
		return err
	}
	return nil
}

// Exists — короткий путь для записей, которые пишутся один раз (матчи):
// если файл уже есть, повторный фетч не нужен.
func (s *Store) Exists(key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

// Merge накатывает patch поверх сохранённой записи (поверхностно, по
// верхним ключам: новые значения затирают старые, незатронутые остаются)
// и сохраняет результат. Возвращает получившуюся запись.
func (s *Store) Merge(key string, patch Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.Load(key)
	for k, v := range patch {
		rec[k] = v
	}
	return rec, s.save(key, rec)
}

// Delete убирает запись; отсутствие файла ошибкой не считается.
func (s *Store) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Keys перечисляет ключи всех записей в каталоге (времянки и чужие
// файлы пропускаются).
func (s *Store) Keys() []string {
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		logging.Warn().Str("dir", s.dir).Err(err).Msg("cache: list failed")
		return nil
	}
	var keys []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	return keys
}
