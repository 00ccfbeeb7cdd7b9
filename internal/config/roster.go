package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	json "github.com/goccy/go-json"
)

// Player — отслеживаемый игрок. ID — 32-битный account id (OpenDota),
// не steam64.
type Player struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type rosterData struct {
	Players map[int64]string `json:"players"`
}

// Roster — изменяемый список отслеживаемых игроков. Команды бота меняют
// его на лету, циклы обновления перечитывают срез на каждом заходе.
// Все мутации — read-modify-write под мьютексом с атомарной записью файла,
// чтобы команда и цикл не потеряли чужое обновление.
type Roster struct {
	mu   sync.Mutex
	path string
	data rosterData
}

func NewRoster(path string) *Roster {
	return &Roster{
		path: path,
		data: rosterData{Players: map[int64]string{}},
	}
}

// Load читает файл; отсутствующий создаёт пустым.
func (r *Roster) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	b, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return r.save()
		}
		return err
	}
	if err := json.Unmarshal(b, &r.data); err != nil {
		return fmt.Errorf("roster %s: %w", r.path, err)
	}
	if r.data.Players == nil {
		r.data.Players = map[int64]string{}
	}
	return nil
}

func (r *Roster) save() error {
	b, err := json.MarshalIndent(&r.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

// Save принудительно пишет текущее состояние на диск. Мутации и так
// сохраняют сами, это для явной команды.
func (r *Roster) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save()
}

// Add добавляет или переименовывает игрока и сразу сохраняет файл.
func (r *Roster) Add(id int64, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.Players[id] = name
	return r.save()
}

// Remove убирает игрока; возвращает false, если его не было.
func (r *Roster) Remove(id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data.Players[id]; !ok {
		return false, nil
	}
	delete(r.data.Players, id)
	return true, r.save()
}

// Name возвращает подпись игрока.
func (r *Roster) Name(id int64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.data.Players[id]
	return name, ok
}

// List — срез игроков, отсортированный по id. Копия: менять можно смело.
func (r *Roster) List() []Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Player, 0, len(r.data.Players))
	for id, name := range r.data.Players {
		out = append(out, Player{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data.Players)
}
