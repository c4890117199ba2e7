package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

var timeRe = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)

type Config struct {
	App struct {
		DataDir     string `toml:"data_dir"`
		LogDir      string `toml:"log_dir"`
		MetricsAddr string `toml:"metrics_addr"` // 空则不开 metrics
	} `toml:"app"`

	Site struct {
		BaseURL     string `toml:"base_url"`
		LoginPath   string `toml:"login_path"`
		FollowPath  string `toml:"follow_path"`
		TimeoutSec  int    `toml:"timeout_sec"`
		CacheDir    string `toml:"cache_dir"`
		CacheTTLSec int    `toml:"cache_ttl_sec"`
	} `toml:"site"`

	Broker struct {
		WsURL      string `toml:"ws_url"`
		TimeoutSec int    `toml:"timeout_sec"`
	} `toml:"broker"`

	Schedule struct {
		BatchTimes    []string `toml:"batch_times"`
		ParkBuy       string   `toml:"park_buy"`
		ParkSell      string   `toml:"park_sell"`
		PrintTimes    []string `toml:"print_times"`
		SweepDelaySec int      `toml:"sweep_delay_sec"`
	} `toml:"schedule"`

	Park struct {
		Code         string  `toml:"code"`
		ReserveRatio float64 `toml:"reserve_ratio"`
		Remark       string  `toml:"remark"`
	} `toml:"park"`

	Reorder struct {
		WindowMin  int `toml:"window_min"`
		TickOffset int `toml:"tick_offset"`
	} `toml:"reorder"`

	Storage struct {
		Enabled bool `toml:"enabled"`

		SQLite struct {
			Enabled bool   `toml:"enabled"`
			Path    string `toml:"path"`
		} `toml:"sqlite"`

		Redis struct {
			Enabled      bool   `toml:"enabled"`
			Addr         string `toml:"addr"`
			Password     string `toml:"password"`
			DB           int    `toml:"db"`
			Prefix       string `toml:"prefix"`
			TTLSeconds   int    `toml:"ttl_seconds"`
			EventStream  string `toml:"event_stream"`
			EventChannel string `toml:"event_channel"`
		} `toml:"redis"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`
	} `toml:"storage"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.DataDir == "" {
		cfg.App.DataDir = "."
	}
	if cfg.App.LogDir == "" {
		cfg.App.LogDir = "runtime/logs"
	}
	if cfg.Site.LoginPath == "" {
		cfg.Site.LoginPath = "/F2/login.aspx"
	}
	if cfg.Site.FollowPath == "" {
		cfg.Site.FollowPath = "/F2/b_follow.aspx"
	}
	if cfg.Site.TimeoutSec <= 0 {
		cfg.Site.TimeoutSec = 15
	}
	if cfg.Site.CacheTTLSec <= 0 {
		cfg.Site.CacheTTLSec = 60
	}
	if cfg.Broker.TimeoutSec <= 0 {
		cfg.Broker.TimeoutSec = 10
	}
	if len(cfg.Schedule.BatchTimes) == 0 {
		cfg.Schedule.BatchTimes = []string{"14:52:00", "13:00:05", "13:31:20", "14:51:25"}
	}
	if cfg.Schedule.ParkBuy == "" {
		cfg.Schedule.ParkBuy = "09:33:00"
	}
	if cfg.Schedule.ParkSell == "" {
		cfg.Schedule.ParkSell = "14:56:00"
	}
	if len(cfg.Schedule.PrintTimes) == 0 {
		cfg.Schedule.PrintTimes = []string{"09:35:00", "14:57:00"}
	}
	if cfg.Schedule.SweepDelaySec <= 0 {
		cfg.Schedule.SweepDelaySec = 20
	}
	if cfg.Park.Code == "" {
		cfg.Park.Code = "511880.SH"
	}
	if cfg.Park.ReserveRatio <= 0 {
		cfg.Park.ReserveRatio = 0.05
	}
	if cfg.Park.Remark == "" {
		cfg.Park.Remark = "auto_yinhuarili"
	}
	if cfg.Reorder.WindowMin <= 0 {
		cfg.Reorder.WindowMin = 10
	}
	if cfg.Reorder.TickOffset <= 0 {
		cfg.Reorder.TickOffset = 2
	}
	if cfg.Storage.SQLite.Enabled && cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "runtime/yfollow.db"
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "yfollow"
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Site.BaseURL) == "" {
		return errors.New("site.base_url is empty")
	}
	if strings.TrimSpace(cfg.Broker.WsURL) == "" {
		return errors.New("broker.ws_url is empty")
	}
	for _, ts := range cfg.Schedule.BatchTimes {
		if !timeRe.MatchString(ts) {
			return fmt.Errorf("schedule.batch_times entry %q not hh:mm:ss", ts)
		}
	}
	for _, ts := range []string{cfg.Schedule.ParkBuy, cfg.Schedule.ParkSell} {
		if !timeRe.MatchString(ts) {
			return fmt.Errorf("schedule time %q not hh:mm:ss", ts)
		}
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	return nil
}
