package presence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DailyReport собирает сводку наигранного по закрытым сессиям, начатым
// за окно retention, и подчищает выпавшее из окна. Игроки без остатка
// сессий теряют и файл. Пустая строка — докладывать нечего.
// Подрезка перечитывает и перезаписывает файлы, поэтому идёт под общим
// замком: иначе она затёрла бы сессию, закрываемую параллельным снимком.
func (w *Watcher) DailyReport(now time.Time, retention time.Duration) string {
	cutoff := now.Add(-retention)

	w.mu.Lock()
	defer w.mu.Unlock()

	type line struct {
		label string
		total time.Duration
	}
	var lines []line

	for _, id := range w.store.IDs() {
		rec := w.store.Load(id)

		var total time.Duration
		kept := rec.Sessions[:0]
		for _, s := range rec.Sessions {
			if s.Start.Before(cutoff) {
				continue
			}
			kept = append(kept, s)
			if !s.Open() && s.Game == w.target {
				total += time.Duration(s.Seconds) * time.Second
			}
		}
		pruned := len(kept) != len(rec.Sessions)
		rec.Sessions = kept

		if len(rec.Sessions) == 0 {
			_ = w.store.Delete(id)
		} else if pruned {
			_ = w.store.Save(id, rec)
		}

		if total > 0 {
			label := rec.Label
			if label == "" {
				label = strconv.FormatInt(id, 10)
			}
			lines = append(lines, line{label: label, total: total})
		}
	}

	if len(lines) == 0 {
		return ""
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].total != lines[j].total {
			return lines[i].total > lines[j].total
		}
		return lines[i].label < lines[j].label
	})

	days := int(retention.Hours() / 24)
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s за %d дн.:", w.target, days)
	for _, l := range lines {
		b.WriteString("\n" + l.label + ": " + FmtDuration(l.total))
	}
	return b.String()
}

// Totals — наиграно в target по закрытым сессиям окна, ничего не трогая.
// Для команды «сколько наиграли», в отличие от DailyReport с подрезкой.
func (w *Watcher) Totals(now time.Time, retention time.Duration) map[string]time.Duration {
	cutoff := now.Add(-retention)
	out := map[string]time.Duration{}
	for _, id := range w.store.IDs() {
		rec := w.store.Load(id)
		var total time.Duration
		for _, s := range rec.Sessions {
			if s.Start.Before(cutoff) || s.Open() || s.Game != w.target {
				continue
			}
			total += time.Duration(s.Seconds) * time.Second
		}
		if total == 0 {
			continue
		}
		label := rec.Label
		if label == "" {
			label = strconv.FormatInt(id, 10)
		}
		out[label] = total
	}
	return out
}

// FmtDuration — человекочитаемая длительность для чата: «2ч 13м».
func FmtDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "с"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return strconv.Itoa(m) + "м"
	}
	return strconv.Itoa(h) + "ч " + strconv.Itoa(m) + "м"
}
