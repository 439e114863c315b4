package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Direction scopes for long/short exposure ceilings.
const (
	DirectionScopeAccount = "ACCOUNT"
	DirectionScopeMarket  = "MARKET"
	DirectionScopeOff     = "OFF"
)

// DefaultSymbols is the futures universe the strategy was designed around.
var DefaultSymbols = []string{
	"BP", "CD", "CL", "ED", "GC", "HG", "HO", "HU",
	"JY", "SB", "SF", "SP", "SV", "TB", "TY", "US",
}

type Config struct {
	Mode     string `yaml:"mode"`
	Platform string `yaml:"platform"`
	Timezone string `yaml:"timezone"`
	Universe struct {
		Symbols []string `yaml:"symbols"`
	} `yaml:"universe"`
	Strategy struct {
		LookbackBars  int `yaml:"lookback_bars"`
		BreakoutShort int `yaml:"breakout_short"`
		BreakoutLong  int `yaml:"breakout_long"`
		ATRPeriod     int `yaml:"atr_period"`
	} `yaml:"strategy"`
	Sizing struct {
		RiskFraction   float64 `yaml:"risk_fraction"`
		LossMultiplier float64 `yaml:"loss_multiplier"`
	} `yaml:"sizing"`
	Risk struct {
		MarketLimit    int     `yaml:"market_limit"`
		LongLimit      int     `yaml:"long_limit"`
		ShortLimit     int     `yaml:"short_limit"`
		DirectionScope string  `yaml:"direction_scope"`
		MinPrice       float64 `yaml:"min_price"`
		AllowOpposite  bool    `yaml:"allow_opposite"`
	} `yaml:"risk"`
	Stop struct {
		ATRMult float64 `yaml:"atr_mult"`
	} `yaml:"stop"`
	Schedule struct {
		CycleCron string `yaml:"cycle_cron"`
		EODCron   string `yaml:"eod_cron"`
		CloseTime string `yaml:"close_time"`
	} `yaml:"schedule"`
	Paper struct {
		StartingCash float64 `yaml:"starting_cash"`
		Seed         int64   `yaml:"seed"`
	} `yaml:"paper"`
	Kite struct {
		Exchange       string  `yaml:"exchange"`
		StartingCash   float64 `yaml:"starting_cash"`
		QuantityInLots bool    `yaml:"quantity_in_lots"`
		Product        string  `yaml:"product"`
	} `yaml:"kite"`
	Recorder struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"recorder"`
	State struct {
		Backend   string `yaml:"backend"`
		Path      string `yaml:"path"`
		RedisAddr string `yaml:"redis_addr"`
		RedisDB   int    `yaml:"redis_db"`
		RedisKey  string `yaml:"redis_key"`
	} `yaml:"state"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Location returns the trading-day timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ApplyDefaults fills every unset field with the strategy defaults.
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = "PAPER"
	}
	if c.Platform == "" {
		c.Platform = "PAPER"
	}
	if c.Timezone == "" {
		c.Timezone = "America/New_York"
	}
	if len(c.Universe.Symbols) == 0 {
		c.Universe.Symbols = append([]string(nil), DefaultSymbols...)
	}
	if c.Strategy.BreakoutShort == 0 {
		c.Strategy.BreakoutShort = 20
	}
	if c.Strategy.BreakoutLong == 0 {
		c.Strategy.BreakoutLong = 55
	}
	if c.Strategy.ATRPeriod == 0 {
		c.Strategy.ATRPeriod = 20
	}
	if c.Strategy.LookbackBars == 0 {
		c.Strategy.LookbackBars = 57
	}
	if c.Sizing.RiskFraction == 0 {
		c.Sizing.RiskFraction = 0.01
	}
	if c.Sizing.LossMultiplier == 0 {
		c.Sizing.LossMultiplier = 2
	}
	if c.Risk.MarketLimit == 0 {
		c.Risk.MarketLimit = 4
	}
	if c.Risk.LongLimit == 0 {
		c.Risk.LongLimit = 12
	}
	if c.Risk.ShortLimit == 0 {
		c.Risk.ShortLimit = 12
	}
	if c.Risk.DirectionScope == "" {
		c.Risk.DirectionScope = DirectionScopeAccount
	}
	if c.Risk.MinPrice == 0 {
		c.Risk.MinPrice = 0.001
	}
	if c.Stop.ATRMult == 0 {
		c.Stop.ATRMult = 2
	}
	if c.Schedule.CycleCron == "" {
		c.Schedule.CycleCron = "0 31 9 * * 1-5"
	}
	if c.Schedule.EODCron == "" {
		c.Schedule.EODCron = "0 */10 16-23 * * 1-5"
	}
	if c.Schedule.CloseTime == "" {
		c.Schedule.CloseTime = "16:15"
	}
	if c.Paper.StartingCash == 0 {
		c.Paper.StartingCash = 100000
	}
	if c.Paper.Seed == 0 {
		c.Paper.Seed = 42
	}
	if c.Kite.Exchange == "" {
		c.Kite.Exchange = "MCX"
	}
	if c.Kite.Product == "" {
		c.Kite.Product = "NRML"
	}
	if c.State.Backend == "" {
		c.State.Backend = "FILE"
	}
	if c.State.Path == "" {
		c.State.Path = "data/engine_state.json"
	}
	if c.State.RedisKey == "" {
		c.State.RedisKey = "turtle:engine:state"
	}
}

func (c *Config) Validate() error {
	if c.Mode != "PAPER" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'PAPER' or 'LIVE'", c.Mode)
	}
	if c.Platform != "PAPER" && c.Platform != "KITE" {
		return fmt.Errorf("invalid platform '%s': must be 'PAPER' or 'KITE'", c.Platform)
	}
	if c.Mode == "LIVE" && c.Platform == "PAPER" {
		return errors.New("mode LIVE requires a live platform")
	}
	if len(c.Universe.Symbols) == 0 {
		return errors.New("universe.symbols cannot be empty")
	}
	if c.Strategy.BreakoutShort <= 0 || c.Strategy.BreakoutLong <= c.Strategy.BreakoutShort {
		return fmt.Errorf("strategy breakouts must satisfy 0 < short < long, got %d/%d",
			c.Strategy.BreakoutShort, c.Strategy.BreakoutLong)
	}
	if c.Strategy.ATRPeriod <= 0 {
		return fmt.Errorf("strategy.atr_period must be positive, got %d", c.Strategy.ATRPeriod)
	}
	if need := c.MinLookback(); c.Strategy.LookbackBars < need {
		return fmt.Errorf("strategy.lookback_bars must be at least %d, got %d", need, c.Strategy.LookbackBars)
	}
	if c.Sizing.RiskFraction <= 0 || c.Sizing.RiskFraction > 1 {
		return fmt.Errorf("sizing.risk_fraction must be in (0, 1], got %.4f", c.Sizing.RiskFraction)
	}
	if c.Sizing.LossMultiplier < 1 {
		return fmt.Errorf("sizing.loss_multiplier must be >= 1, got %.2f", c.Sizing.LossMultiplier)
	}
	if c.Risk.MarketLimit < 0 || c.Risk.LongLimit < 0 || c.Risk.ShortLimit < 0 {
		return errors.New("risk limits cannot be negative")
	}
	switch c.Risk.DirectionScope {
	case DirectionScopeAccount, DirectionScopeMarket, DirectionScopeOff:
	default:
		return fmt.Errorf("risk.direction_scope must be 'ACCOUNT', 'MARKET' or 'OFF', got '%s'", c.Risk.DirectionScope)
	}
	if c.Stop.ATRMult <= 0 {
		return fmt.Errorf("stop.atr_mult must be positive, got %.2f", c.Stop.ATRMult)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}
	if _, err := time.Parse("15:04", c.Schedule.CloseTime); err != nil {
		return fmt.Errorf("schedule.close_time must be HH:MM, got '%s'", c.Schedule.CloseTime)
	}
	switch c.State.Backend {
	case "FILE", "REDIS", "NONE":
	default:
		return fmt.Errorf("state.backend must be 'FILE', 'REDIS' or 'NONE', got '%s'", c.State.Backend)
	}
	switch c.Recorder.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("recorder.driver must be 'sqlite' or 'postgres', got '%s'", c.Recorder.Driver)
	}
	return nil
}

// MinLookback is the smallest window that covers both breakouts and the ATR seed bar.
func (c *Config) MinLookback() int {
	need := c.Strategy.BreakoutLong + 1
	if atr := c.Strategy.ATRPeriod + 1; atr > need {
		need = atr
	}
	return need
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML, applies environment overrides and defaults, then validates.
func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.Mode = strings.ToUpper(c.Mode)
	c.Platform = strings.ToUpper(c.Platform)
	c.Risk.DirectionScope = strings.ToUpper(c.Risk.DirectionScope)
	c.State.Backend = strings.ToUpper(c.State.Backend)
	c.Recorder.Driver = strings.ToLower(c.Recorder.Driver)

	if v := os.Getenv("RECORDER_DSN"); v != "" {
		c.Recorder.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.State.RedisAddr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}

	c.ApplyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}
