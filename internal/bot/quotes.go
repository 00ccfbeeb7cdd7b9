package bot

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/woreworewo/dota/internal/logging"
)

// Quote — запись цитатника. Имена полей исторические, файл совместим
// со старым quote.json.
type Quote struct {
	Text      string `json:"quote"`
	Author    string `json:"author"`
	Year      int    `json:"year"`
	Timestamp string `json:"timestamp"`
}

// Format — каноничный вид цитаты для чата.
func (q Quote) Format() string {
	year := "?"
	if q.Year > 0 {
		year = strconv.Itoa(q.Year)
	}
	return "«" + q.Text + "»\n— " + q.Author + " (" + year + ")"
}

type quoteStore struct {
	mu     sync.Mutex
	path   string
	quotes []Quote
}

func newQuoteStore(path string) *quoteStore {
	return &quoteStore{path: path}
}

// Load читает файл; отсутствующий или битый — пустой цитатник.
func (s *quoteStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var quotes []Quote
	if err := json.Unmarshal(b, &quotes); err != nil {
		logging.Warn().Str("path", s.path).Err(err).Msg("quotes: corrupt file, starting empty")
		return nil
	}
	s.quotes = quotes
	return nil
}

func (s *quoteStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s.quotes, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Save принудительно пишет цитатник на диск.
func (s *quoteStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// Add дописывает цитату и сразу сохраняет файл.
func (s *quoteStore) Add(text, author string, now time.Time) (Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := Quote{
		Text:      text,
		Author:    author,
		Year:      now.Year(),
		Timestamp: now.Format(time.RFC3339),
	}
	s.quotes = append(s.quotes, q)
	return q, s.save()
}

// Random — случайная цитата; false, если цитатник пуст.
func (s *quoteStore) Random() (Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.quotes) == 0 {
		return Quote{}, false
	}
	return s.quotes[rand.IntN(len(s.quotes))], true
}

func (s *quoteStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.quotes)
}

// QuoteService раз в сутки, в случайный момент, кидает в чат случайную
// цитату. Пустой цитатник — день пропускается молча.
type QuoteService struct {
	quotes *quoteStore
	notify func(string)
}

func newQuoteService(quotes *quoteStore, notify func(string)) *QuoteService {
	return &QuoteService{quotes: quotes, notify: notify}
}

func (s *QuoteService) Serve(ctx context.Context) error {
	const day = 24 * time.Hour
	for {
		delay := time.Duration(rand.Int64N(int64(day)))
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
		if q, ok := s.quotes.Random(); ok && s.notify != nil {
			s.notify(q.Format())
		}
		if err := sleepCtx(ctx, day-delay); err != nil {
			return err
		}
	}
}

func (s *QuoteService) String() string { return "bot.QuoteService" }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
