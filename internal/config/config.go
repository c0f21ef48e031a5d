// Package config loads service configuration from YAML with embedded
// defaults.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"adpilot/internal/domain"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Server     Server     `yaml:"server"`
	Postgres   Postgres   `yaml:"postgres"`
	ClickHouse ClickHouse `yaml:"clickhouse"`
	Pipeline   Pipeline   `yaml:"pipeline"`
	Autopilot  Autopilot  `yaml:"autopilot"`
	Logging    Logging    `yaml:"logging"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type ClickHouse struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Pipeline struct {
	Platforms           []string  `yaml:"platforms"`
	MaxOffersPerKeyword int       `yaml:"max_offers_per_keyword"`
	Readiness           Readiness `yaml:"readiness"`
}

type Readiness struct {
	MaxAttempts  int `yaml:"max_attempts"`
	DelaySeconds int `yaml:"delay_seconds"`
}

type Autopilot struct {
	CadenceMinutes int       `yaml:"cadence_minutes"`
	ROASMin        float64   `yaml:"roas_min"`
	ROASTarget     float64   `yaml:"roas_target"`
	CTRMin         float64   `yaml:"ctr_min"`
	DailySpendCap  float64   `yaml:"daily_spend_cap"`
	AutoApply      AutoApply `yaml:"auto_apply"`
}

type AutoApply struct {
	Pause        bool `yaml:"pause"`
	ScaleBudget  bool `yaml:"scale_budget"`
	CreativeSwap bool `yaml:"creative_swap"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Load reads and parses a config YAML file. An empty path returns the
// embedded defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return parse(DefaultConfigYAML)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, layering over the embedded
// defaults so partial files stay valid.
func parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(DefaultConfigYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing default config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Policy converts the autopilot section into a threshold policy.
func (c *Config) Policy() domain.ThresholdPolicy {
	return domain.ThresholdPolicy{
		ROASMin:        c.Autopilot.ROASMin,
		ROASTarget:     c.Autopilot.ROASTarget,
		CTRMin:         c.Autopilot.CTRMin,
		DailySpendCap:  c.Autopilot.DailySpendCap,
		CadenceMinutes: c.Autopilot.CadenceMinutes,
		AutoApply: domain.AutoApplyFlags{
			Pause:        c.Autopilot.AutoApply.Pause,
			ScaleBudget:  c.Autopilot.AutoApply.ScaleBudget,
			CreativeSwap: c.Autopilot.AutoApply.CreativeSwap,
		},
	}
}
