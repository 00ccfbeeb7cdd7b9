package stats

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/woreworewo/dota/internal/cache"
	"github.com/woreworewo/dota/internal/config"
)

// LatestCached — сводка самого свежего закэшированного матча: шапка и
// строка на каждого игрока ростера, который в нём участвовал.
// Свежесть — максимальный match_id среди файлов кэша.
func LatestCached(matches, static *cache.Store, roster *config.Roster) string {
	keys := matches.Keys()
	if len(keys) == 0 {
		return "Пока нет ни одного матча в кэше."
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.ParseInt(keys[i], 10, 64)
		b, _ := strconv.ParseInt(keys[j], 10, 64)
		return a > b
	})

	raw := matches.Raw(keys[0])
	if raw == nil {
		return "Пока нет ни одного матча в кэше."
	}

	matchID := gjson.GetBytes(raw, "match_id").Int()
	durMin := gjson.GetBytes(raw, "duration").Int() / 60
	winner := "Dire"
	if gjson.GetBytes(raw, "radiant_win").Bool() {
		winner = "Radiant"
	}

	var rows []string
	for _, p := range roster.List() {
		me := gjson.GetBytes(raw, fmt.Sprintf("players.#(account_id==%d)", p.ID))
		if !me.Exists() {
			continue
		}
		rows = append(rows, fmt.Sprintf("%s (%s) — %d/%d/%d, GPM %d, XPM %d",
			p.Name, heroName(static, me.Get("hero_id").Int()),
			me.Get("kills").Int(), me.Get("deaths").Int(), me.Get("assists").Int(),
			me.Get("gold_per_min").Int(), me.Get("xp_per_min").Int()))
	}
	if len(rows) == 0 {
		return fmt.Sprintf("В матче %d никто из ростера не играл.", matchID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🧾 Матч %d (%dм), победа %s:", matchID, durMin, winner)
	for _, row := range rows {
		b.WriteString("\n" + row)
	}
	return b.String()
}
