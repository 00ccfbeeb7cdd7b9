// Package odapi — клиент OpenDota. Все запросы идут через общий
// fetch.Fetcher (лимит, ретраи, бэкофф); ответы отдаются как
// JSON-объекты для мерджа в кэш.
package odapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/woreworewo/dota/internal/cache"
	"github.com/woreworewo/dota/internal/fetch"
)

type Client struct {
	f    *fetch.Fetcher
	base string
	key  string // api_key, пустой — анонимный доступ
}

func NewClient(f *fetch.Fetcher, base, key string) *Client {
	return &Client{f: f, base: base, key: key}
}

func (c *Client) url(path string) string {
	u := c.base + path
	if c.key != "" {
		u += "?api_key=" + url.QueryEscape(c.key)
	}
	return u
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	body, err := c.f.Get(ctx, c.url(path))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("opendota %s: %w", path, err)
	}
	return nil
}

// Player — профиль игрока: personaname, avatar, rank_tier и т.д.
func (c *Client) Player(ctx context.Context, accountID int64) (cache.Record, error) {
	var rec cache.Record
	err := c.getJSON(ctx, "/players/"+strconv.FormatInt(accountID, 10), &rec)
	return rec, err
}

// WinLoss — счётчики {"win": n, "lose": n}.
func (c *Client) WinLoss(ctx context.Context, accountID int64) (cache.Record, error) {
	var rec cache.Record
	err := c.getJSON(ctx, "/players/"+strconv.FormatInt(accountID, 10)+"/wl", &rec)
	return rec, err
}

// RecentMatches — последние матчи игрока, новые первыми.
func (c *Client) RecentMatches(ctx context.Context, accountID int64) ([]cache.Record, error) {
	var recent []cache.Record
	err := c.getJSON(ctx, "/players/"+strconv.FormatInt(accountID, 10)+"/recentMatches", &recent)
	return recent, err
}

// Match — полные детали матча со срезом по участникам.
func (c *Client) Match(ctx context.Context, matchID int64) (cache.Record, error) {
	var rec cache.Record
	err := c.getJSON(ctx, "/matches/"+strconv.FormatInt(matchID, 10), &rec)
	return rec, err
}

// Heroes — справочник героев (id, localized_name, ...).
func (c *Client) Heroes(ctx context.Context) ([]cache.Record, error) {
	var heroes []cache.Record
	err := c.getJSON(ctx, "/heroes", &heroes)
	return heroes, err
}

// Constants — справочник /constants/{resource}: items, patchnotes и т.п.
func (c *Client) Constants(ctx context.Context, resource string) (cache.Record, error) {
	var rec cache.Record
	err := c.getJSON(ctx, "/constants/"+resource, &rec)
	return rec, err
}

// LatestMatchID достаёт match_id самого свежего матча из recentMatches.
func LatestMatchID(recent []cache.Record) (int64, bool) {
	if len(recent) == 0 {
		return 0, false
	}
	id, ok := recent[0]["match_id"].(float64)
	if !ok {
		return 0, false
	}
	return int64(id), true
}
