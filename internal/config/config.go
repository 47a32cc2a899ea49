package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"telegram-paid-channel/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BotConfig struct {
	Token     string  `yaml:"token"`
	ChannelID int64   `yaml:"channel_id"` // the paid channel the bot administers
	AdminIDs  []int64 `yaml:"admin_ids"`
}

type ServerConfig struct {
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"` // per-request bound for external calls
}

type YooMoneyConfig struct {
	Receiver  string `yaml:"receiver"`   // wallet number payments go to
	Secret    string `yaml:"secret"`     // notification secret for sha1 check
	ReturnURL string `yaml:"return_url"`
}

type StarsConfig struct {
	Rate int64 `yaml:"rate"` // RUB per star
}

type SBPConfig struct {
	MerchantID string `yaml:"merchant_id"`
	BankID     string `yaml:"bank_id"`
	APIURL     string `yaml:"api_url"` // bank API for status polling, optional
	Secret     string `yaml:"secret"`  // HMAC key for bank notifications
	Phone      string `yaml:"phone"`   // static QR fallback when no merchant id
	QRSize     int    `yaml:"qr_size"`
}

type ProvidersConfig struct {
	YooMoney YooMoneyConfig `yaml:"yoomoney"`
	Stars    StarsConfig    `yaml:"stars"`
	SBP      SBPConfig      `yaml:"sbp"`
}

type TierConfig struct {
	Code         string `yaml:"code"`
	Title        string `yaml:"title"`
	Price        string `yaml:"price"` // decimal string, e.g. "499.00"
	Currency     string `yaml:"currency"`
	DurationDays int    `yaml:"duration_days"`
	TrialDays    int    `yaml:"trial_days"`
}

type SchedulerConfig struct {
	ExpiryInterval      time.Duration `yaml:"expiry_interval"`
	ReconcileInterval   time.Duration `yaml:"reconcile_interval"`
	ReconcileStaleAfter time.Duration `yaml:"reconcile_stale_after"`
	ExpiryWarnWindow    time.Duration `yaml:"expiry_warn_window"`
	Workers             int           `yaml:"workers"` // 0 means NumCPU
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Bot       BotConfig       `yaml:"bot"`
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Tiers     []TierConfig    `yaml:"tiers"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Timeout <= 0 {
		cfg.Server.Timeout = 30 * time.Second
	}
	if cfg.Providers.Stars.Rate <= 0 {
		cfg.Providers.Stars.Rate = 100
	}
	if cfg.Providers.SBP.QRSize <= 0 {
		cfg.Providers.SBP.QRSize = 300
	}
	if cfg.Scheduler.ExpiryInterval <= 0 {
		cfg.Scheduler.ExpiryInterval = time.Hour
	}
	if cfg.Scheduler.ReconcileInterval <= 0 {
		cfg.Scheduler.ReconcileInterval = time.Minute
	}
	if cfg.Scheduler.ReconcileStaleAfter <= 0 {
		cfg.Scheduler.ReconcileStaleAfter = 10 * time.Minute
	}
	if cfg.Scheduler.ExpiryWarnWindow <= 0 {
		cfg.Scheduler.ExpiryWarnWindow = 24 * time.Hour
	}

	// Minimal validation
	if cfg.Bot.Token == "" {
		return nil, errors.New("bot.token is required")
	}
	if cfg.Bot.ChannelID == 0 {
		return nil, errors.New("bot.channel_id is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if len(cfg.Tiers) == 0 {
		return nil, errors.New("at least one tier is required")
	}
	if _, err := cfg.TierTable(); err != nil {
		return nil, err
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// TierTable converts the YAML tier list into the domain price/duration table.
func (c *Config) TierTable() (map[string]*model.Tier, error) {
	out := make(map[string]*model.Tier, len(c.Tiers))
	for _, t := range c.Tiers {
		if t.Code == "" || t.DurationDays <= 0 {
			return nil, fmt.Errorf("tier %q: code and duration_days are required", t.Code)
		}
		price, err := decimal.NewFromString(t.Price)
		if err != nil || price.Sign() <= 0 {
			return nil, fmt.Errorf("tier %q: bad price %q", t.Code, t.Price)
		}
		cur := t.Currency
		if cur == "" {
			cur = "RUB"
		}
		if _, dup := out[t.Code]; dup {
			return nil, fmt.Errorf("tier %q: duplicate code", t.Code)
		}
		out[t.Code] = &model.Tier{
			Code:         t.Code,
			Title:        t.Title,
			Price:        price,
			Currency:     cur,
			DurationDays: t.DurationDays,
			TrialDays:    t.TrialDays,
		}
	}
	return out, nil
}
