package stats

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/woreworewo/dota/internal/cache"
)

// LastMatch — сводка последнего матча игрока по кэшу. Сначала ищем
// полные детали по маркеру last_match_id; если файла матча нет
// (например, его фетч в тот цикл упал), собираем из recent_matches.
func LastMatch(players, matches, static *cache.Store, accountID int64, label string) string {
	raw := players.Raw(strconv.FormatInt(accountID, 10))
	if raw == nil {
		return "Нет данных по игроку " + label + ", подожди обновления кэша."
	}
	if label == "" {
		label = gjson.GetBytes(raw, "label").String()
	}

	matchID := gjson.GetBytes(raw, "last_match_id").Int()
	if matchID == 0 {
		matchID = gjson.GetBytes(raw, "recent_matches.0.match_id").Int()
	}
	if matchID == 0 {
		return "У " + label + " ещё нет матчей в кэше."
	}

	var me gjson.Result
	if matchRaw := matches.Raw(strconv.FormatInt(matchID, 10)); matchRaw != nil {
		me = gjson.GetBytes(matchRaw, fmt.Sprintf("players.#(account_id==%d)", accountID))
	}
	if !me.Exists() {
		me = gjson.GetBytes(raw, "recent_matches.0")
	}
	if !me.Exists() {
		return "У " + label + " ещё нет матчей в кэше."
	}

	hero := heroName(static, me.Get("hero_id").Int())
	kda := fmt.Sprintf("%d/%d/%d",
		me.Get("kills").Int(), me.Get("deaths").Int(), me.Get("assists").Int())

	result := "поражение"
	radiant := me.Get("player_slot").Int() < 128
	if me.Get("radiant_win").Bool() == radiant {
		result = "победа"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚔️ %s, матч %d:", label, matchID)
	fmt.Fprintf(&b, "\nГерой: %s", hero)
	fmt.Fprintf(&b, "\nKDA: %s", kda)
	if gpm := me.Get("gold_per_min").Int(); gpm > 0 {
		fmt.Fprintf(&b, "\nGPM/XPM: %d/%d", gpm, me.Get("xp_per_min").Int())
	}
	fmt.Fprintf(&b, "\nИсход: %s", result)
	if d := me.Get("duration").Int(); d > 0 {
		fmt.Fprintf(&b, "\nДлительность: %dм", d/60)
	}
	if ts := me.Get("start_time").Int(); ts > 0 {
		fmt.Fprintf(&b, "\nНачало: %s", time.Unix(ts, 0).Format("02.01 15:04"))
	}
	return b.String()
}

// heroName — имя героя из справочника; без справочника отдаём id.
func heroName(static *cache.Store, heroID int64) string {
	if heroID == 0 {
		return "?"
	}
	raw := static.Raw("heroes")
	if raw != nil {
		name := gjson.GetBytes(raw, fmt.Sprintf("heroes.#(id==%d).localized_name", heroID))
		if name.Exists() {
			return name.String()
		}
	}
	return "герой #" + strconv.FormatInt(heroID, 10)
}
