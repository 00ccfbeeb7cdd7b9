// Package stats — чистые функции поверх кэша: сводка последнего матча
// и антирейтинг по закэшированным матчам. Читает сырые JSON-байты
// записей через gjson, ничего не мутирует.
package stats

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/woreworewo/dota/internal/cache"
	"github.com/woreworewo/dota/internal/config"
)

// matchCap — сколько последних матчей игрока участвует в антирейтинге.
const matchCap = 10

type tally struct {
	id      int64
	name    string
	score   float64
	matches int
	deaths  int64
}

// WorstPlayers считает антирейтинг по всем закэшированным матчам:
// топ-3 худших по суммарному скору (ниже — хуже) и лидера по смертям.
// Считаются только игроки из ростера, по matchCap свежих матчей на
// каждого (свежесть — по убыванию match_id).
func WorstPlayers(matches *cache.Store, roster *config.Roster) string {
	keys := matches.Keys()
	sort.Slice(keys, func(i, j int) bool { // новые матчи первыми
		a, _ := strconv.ParseInt(keys[i], 10, 64)
		b, _ := strconv.ParseInt(keys[j], 10, 64)
		return a > b
	})

	tallies := map[int64]*tally{}
	for _, key := range keys {
		raw := matches.Raw(key)
		if raw == nil {
			continue
		}
		scoreMatch(raw, roster, tallies)
	}
	if len(tallies) == 0 {
		return "Пока нет ни одного матча в кэше."
	}

	list := make([]*tally, 0, len(tallies))
	for _, t := range tallies {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score < list[j].score
		}
		return list[i].name < list[j].name
	})
	if len(list) > 3 {
		list = list[:3]
	}

	var b strings.Builder
	b.WriteString("🏆 Топ худших игроков:")
	for i, t := range list {
		fmt.Fprintf(&b, "\n%d. %s: %.2f (матчей: %d)", i+1, t.name, t.score, t.matches)
	}

	dead := list[0]
	for _, t := range tallies {
		if t.deaths > dead.deaths || (t.deaths == dead.deaths && t.name < dead.name) {
			dead = t
		}
	}
	fmt.Fprintf(&b, "\n💀 Коллекция смертей: %s, %d шт.", dead.name, dead.deaths)
	return b.String()
}

func scoreMatch(raw []byte, roster *config.Roster, tallies map[int64]*tally) {
	durMin := gjson.GetBytes(raw, "duration").Float() / 60
	if durMin < 1 {
		durMin = 1
	}

	players := gjson.GetBytes(raw, "players")
	var teamKills, totalPings, totalChat float64
	count := 0
	players.ForEach(func(_, p gjson.Result) bool {
		teamKills += p.Get("kills").Float()
		totalPings += p.Get("pings").Float()
		totalChat += p.Get("chat_messages").Float()
		count++
		return true
	})
	if count == 0 {
		return
	}
	avgPings := totalPings / float64(count)
	avgChat := totalChat / float64(count)

	players.ForEach(func(_, p gjson.Result) bool {
		accountID := p.Get("account_id").Int()
		if accountID == 0 {
			return true // анонимы и боты
		}
		name, tracked := roster.Name(accountID)
		if !tracked {
			return true
		}

		t := tallies[accountID]
		if t == nil {
			if name == "" {
				name = strconv.FormatInt(accountID, 10)
			}
			t = &tally{id: accountID, name: name}
			tallies[accountID] = t
		}
		if t.matches >= matchCap {
			return true
		}
		t.matches++
		t.score += matchScore(p, durMin, teamKills, avgPings, avgChat)
		t.deaths += p.Get("deaths").Int()
		return true
	})
}

// matchScore — скор одного матча. Формула исторически кривая (GPM идёт
// с плюсом, остальное с минусом), но рейтинг относительный, так что
// менять её — ломать сложившуюся табель о рангах.
func matchScore(p gjson.Result, durMin, teamKills, avgPings, avgChat float64) float64 {
	kills := p.Get("kills").Float()
	deaths := p.Get("deaths").Float()
	assists := p.Get("assists").Float()

	kda := (kills + assists) / math.Max(1, deaths)
	gpm := p.Get("gold").Float() / durMin
	xpm := p.Get("xp").Float() / durMin
	heroDPM := p.Get("hero_damage").Float() / durMin
	towerDamage := p.Get("tower_damage").Float()
	lastHitsPM := p.Get("last_hits").Float() / durMin
	netWorth := p.Get("gold").Float() - p.Get("gold_spent").Float()
	teamfight := (kills + assists) / math.Max(1, teamKills)
	wardsPM := (p.Get("observer_wards").Float() + p.Get("sentry_wards").Float()) / durMin
	wardsKilledPM := p.Get("wards_destroyed").Float() / durMin

	return 1/math.Max(1, kda) +
		1/math.Max(1, gpm) -
		1/math.Max(1, xpm) -
		1/math.Max(1, heroDPM) -
		1/math.Max(1, towerDamage) -
		1/math.Max(1, lastHitsPM) -
		1/math.Max(1, netWorth) -
		1/math.Max(1, teamfight) -
		1/math.Max(1, wardsPM) -
		1/math.Max(1, wardsKilledPM) -
		1/math.Max(1, avgPings) -
		1/math.Max(1, avgChat)
}
