// Package steamapi — клиент Steam Web API для снимков присутствия
// (GetPlayerSummaries: кто сейчас в какой игре).
package steamapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/woreworewo/dota/internal/fetch"
)

// Steam64Offset — разница между steam64 и 32-битным account id.
const Steam64Offset int64 = 76561197960265728

func AccountToSteam64(accountID int64) uint64 {
	return uint64(accountID + Steam64Offset)
}

func Steam64ToAccount(steamID uint64) int64 {
	return int64(steamID) - Steam64Offset
}

// Summary — присутствие одного игрока. Game пустой, когда игрок
// не в игре (Steam просто не шлёт gameextrainfo).
type Summary struct {
	SteamID string `json:"steamid"`
	Name    string `json:"personaname"`
	Game    string `json:"gameextrainfo"`
}

type summariesResponse struct {
	Response struct {
		Players []Summary `json:"players"`
	} `json:"response"`
}

type Client struct {
	f    *fetch.Fetcher
	base string
	key  string
}

func NewClient(f *fetch.Fetcher, base, key string) *Client {
	return &Client{f: f, base: base, key: key}
}

// Summaries возвращает снимок присутствия по steam64-ids.
// API принимает до 100 id за запрос, поэтому режем список на части.
func (c *Client) Summaries(ctx context.Context, ids []uint64) (map[uint64]Summary, error) {
	out := make(map[uint64]Summary, len(ids))
	for len(ids) > 0 {
		batch := ids
		if len(batch) > 100 {
			batch = batch[:100]
		}
		ids = ids[len(batch):]

		if err := c.summaries(ctx, batch, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Client) summaries(ctx context.Context, batch []uint64, out map[uint64]Summary) error {
	strs := make([]string, len(batch))
	for i, id := range batch {
		strs[i] = strconv.FormatUint(id, 10)
	}

	q := url.Values{}
	q.Set("key", c.key)
	q.Set("steamids", strings.Join(strs, ","))
	u := c.base + "/ISteamUser/GetPlayerSummaries/v0002/?" + q.Encode()

	body, err := c.f.Get(ctx, u)
	if err != nil {
		return err
	}
	var resp summariesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("steam summaries: %w", err)
	}
	for _, s := range resp.Response.Players {
		id, err := strconv.ParseUint(s.SteamID, 10, 64)
		if err != nil {
			continue
		}
		out[id] = s
	}
	return nil
}
