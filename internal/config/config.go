// Package config — конфигурация бота (koanf: yaml-файл + окружение)
// и ростер отслеживаемых игроков (отдельный изменяемый players.json).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/woreworewo/dota/internal/logging"
)

// envPrefix: DOTA_LOG__LEVEL=debug переопределит log.level и т.д.
// Двойное подчёркивание — разделитель уровней, одиночное остаётся в ключе.
const envPrefix = "DOTA_"

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type APIConfig struct {
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
}

type RateConfig struct {
	PerMinute int `koanf:"per_minute"`
}

type RefreshConfig struct {
	FullInterval        time.Duration `koanf:"full_interval"`
	IncrementalInterval time.Duration `koanf:"incremental_interval"`
	Parallel            int           `koanf:"parallel"`
}

type PresenceConfig struct {
	PollInterval  time.Duration `koanf:"poll_interval"`
	TargetGame    string        `koanf:"target_game"`
	ReportAt      string        `koanf:"report_at"` // "HH:MM", локальное время
	RetentionDays int           `koanf:"retention_days"`
}

type ChatConfig struct {
	GatewayURL string `koanf:"gateway_url"` // ws(s)://... , пусто — чат выключен
	SendURL    string `koanf:"send_url"`    // http(s)://... для исходящих
	Token      string `koanf:"token"`
	Channel    string `koanf:"channel"`     // основной канал уведомлений
	LogChannel string `koanf:"log_channel"` // зеркало warn+ логов, пусто — выключено
}

type Config struct {
	Log         LogConfig      `koanf:"log"`
	DataDir     string         `koanf:"data_dir"`
	Timezone    string         `koanf:"timezone"` // IANA-имя для времени отчёта, пусто — локальная
	MetricsAddr string         `koanf:"metrics_addr"`
	OpenDota    APIConfig      `koanf:"opendota"`
	Steam       APIConfig      `koanf:"steam"`
	Rate        RateConfig     `koanf:"rate"`
	Refresh     RefreshConfig  `koanf:"refresh"`
	Presence    PresenceConfig `koanf:"presence"`
	Chat        ChatConfig     `koanf:"chat"`
	PlayersFile string         `koanf:"players_file"`
	QuotesFile  string         `koanf:"quotes_file"`
}

func Default() Config {
	return Config{
		Log:     LogConfig{Level: "info", Format: "console"},
		DataDir: "data",
		OpenDota: APIConfig{
			BaseURL: "https://api.opendota.com/api",
		},
		Steam: APIConfig{
			BaseURL: "https://api.steampowered.com",
		},
		Rate: RateConfig{PerMinute: 60},
		Refresh: RefreshConfig{
			FullInterval:        6 * time.Hour,
			IncrementalInterval: 5 * time.Minute,
			Parallel:            2,
		},
		Presence: PresenceConfig{
			PollInterval:  time.Minute,
			TargetGame:    "Dota 2",
			ReportAt:      "08:00",
			RetentionDays: 30,
		},
		PlayersFile: "conf/players.json",
		QuotesFile:  "conf/quotes.json",
	}
}

// Load читает конфиг: .env (если есть) -> yaml-файл -> переменные окружения.
// Отсутствующий файл не ошибка, работаем на дефолтах и окружении.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
		} else {
			logging.Info().Str("path", path).Msg("config: file not found, using defaults")
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is empty")
	}
	if c.Rate.PerMinute <= 0 {
		return fmt.Errorf("rate.per_minute must be positive, got %d", c.Rate.PerMinute)
	}
	if c.Refresh.FullInterval <= 0 || c.Refresh.IncrementalInterval <= 0 {
		return fmt.Errorf("refresh intervals must be positive")
	}
	if c.Refresh.Parallel <= 0 {
		return fmt.Errorf("refresh.parallel must be positive, got %d", c.Refresh.Parallel)
	}
	if c.Presence.PollInterval <= 0 {
		return fmt.Errorf("presence.poll_interval must be positive")
	}
	if c.Presence.RetentionDays <= 0 {
		return fmt.Errorf("presence.retention_days must be positive, got %d", c.Presence.RetentionDays)
	}
	if _, err := ParseClock(c.Presence.ReportAt); err != nil {
		return fmt.Errorf("presence.report_at: %w", err)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	return nil
}

// Location — зона для расписания отчёта. Валидность имени проверена
// в Validate, здесь отсутствие зоны просто откатывает на локальную.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ParseClock разбирает "HH:MM" в смещение от полуночи.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
