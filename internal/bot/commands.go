package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/woreworewo/dota/internal/steamapi"
)

// сплит с поддержкой кавычек: !track add 88470984 "Старый Вася"
var reArg = regexp.MustCompile(`"([^"]*)"|(\S+)`)

// автор + цитата в любых кавычках: Вася «мид или кинул» / Вася "..."
var reQuote = regexp.MustCompile(`^(.+?)\s+[«“"](.+)[»”"]$`)

func (b *DotaBot) HandleCommand(text string) error {
	text = strings.TrimSpace(text)
	fields := splitArgs(text)
	if len(fields) == 0 {
		return nil
	}
	cmd := strings.ToLower(fields[0])
	rest := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))

	say := func(s string) { b.chat.Say(s) }

	switch cmd {

	case "!help":
		say(strings.Join([]string{
			"!help",
			"!status",
			"!track add <id> [имя]",
			"!track del <id>",
			"!track list|info",
			"!last [id|имя]",
			"!worst",
		}, "\n"))
		say(strings.Join([]string{
			"!played [дней]",
			"!report",
			"!update",
			"!quote <автор> «текст»",
			"!quote | !tq — случайная",
			"!save",
		}, "\n"))
		return nil

	case "!status":
		say(b.StatusText())
		return nil

	// ---------- РОСТЕР ----------
	case "!track":
		if len(fields) < 2 {
			return fmt.Errorf("usage: !track add|del|list|info")
		}
		sub := strings.ToLower(fields[1])

		switch sub {
		case "info":
			say(b.TrackInfoText(b.commandCtx()))
			return nil

		case "list":
			players := b.roster.List()
			if len(players) == 0 {
				say("Ростер пуст.")
				return nil
			}
			var rows []string
			for _, p := range players {
				rows = append(rows, fmt.Sprintf("%s — %d", p.Name, p.ID))
			}
			say("Ростер:\n" + strings.Join(rows, "\n"))
			return nil

		case "add":
			if len(fields) < 3 {
				return fmt.Errorf("usage: !track add <id> [имя]")
			}
			id, err := parsePlayerID(fields[2])
			if err != nil {
				return err
			}
			name := "id" + strconv.FormatInt(id, 10)
			if len(fields) >= 4 {
				name = fields[3]
			}
			if err := b.roster.Add(id, name); err != nil {
				return err
			}
			say(fmt.Sprintf("👌 Добавил %s (%d), данные подтянутся на следующем цикле.", name, id))
			return nil

		case "del":
			if len(fields) < 3 {
				return fmt.Errorf("usage: !track del <id>")
			}
			id, err := parsePlayerID(fields[2])
			if err != nil {
				return err
			}
			removed, err := b.roster.Remove(id)
			if err != nil {
				return err
			}
			if !removed {
				say(fmt.Sprintf("Игрока %d и так не было.", id))
				return nil
			}
			say(fmt.Sprintf("Убрал %d из ростера.", id))
			return nil

		default:
			return fmt.Errorf("usage: !track add|del|list|info")
		}

	// ---------- СТАТИСТИКА ----------
	case "!last":
		say(b.LastText(strings.Join(fields[1:], " ")))
		return nil

	case "!worst":
		say(b.WorstText())
		return nil

	case "!played":
		days := 0
		if len(fields) >= 2 {
			v, err := strconv.Atoi(fields[1])
			if err != nil || v <= 0 {
				return fmt.Errorf("usage: !played [дней]")
			}
			days = v
		}
		say(b.PlayedText(days))
		return nil

	case "!report":
		say(b.ReportText())
		return nil

	case "!update":
		if !b.updating.CompareAndSwap(false, true) {
			say("⏳ Обновление уже идёт.")
			return nil
		}
		ctx := b.commandCtx()
		go func() {
			defer b.updating.Store(false)
			b.tracker.FullRefresh(ctx)
			say("✅ Полное обновление закончено.")
		}()
		say("⏳ Запустил полное обновление, это займёт время.")
		return nil

	// ---------- ЦИТАТНИК ----------
	case "!quote":
		if rest == "" { // без аргументов — случайная, как !tq
			say(b.randomQuoteText())
			return nil
		}
		m := reQuote.FindStringSubmatch(rest)
		if m == nil {
			return fmt.Errorf("usage: !quote <автор> «текст»")
		}
		q, err := b.quotes.Add(strings.TrimSpace(m[2]), strings.TrimSpace(m[1]), time.Now())
		if err != nil {
			return err
		}
		say("Записал:\n" + q.Format())
		return nil

	case "!tq":
		say(b.randomQuoteText())
		return nil

	// ---------- СОХРАНЕНИЕ ----------
	case "!save":
		if err := b.roster.Save(); err != nil {
			return err
		}
		if err := b.quotes.Save(); err != nil {
			return err
		}
		say("Сохранено: ростер и цитатник.")
		return nil

	default:
		return fmt.Errorf("unknown command. try !help")
	}
}

func (b *DotaBot) randomQuoteText() string {
	q, ok := b.quotes.Random()
	if !ok {
		return "Цитатник пуст. !quote <автор> «текст» исправит."
	}
	return q.Format()
}

// parsePlayerID принимает и 32-битный account id, и steam64.
func parsePlayerID(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("bad player id %q", s)
	}
	if v > steamapi.Steam64Offset {
		v = steamapi.Steam64ToAccount(uint64(v))
	}
	return v, nil
}

func splitArgs(s string) []string {
	var out []string
	for _, m := range reArg.FindAllStringSubmatch(s, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else {
			out = append(out, m[2])
		}
	}
	return out
}
