// Package config exposes strongly typed simulation configuration structs
// loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment,
// metrics address, and logging level.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	StreamAddr  string `yaml:"stream_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Simulation sets the two-resolution clock and the global seed.
type Simulation struct {
	MacroTicks         int   `yaml:"macro_ticks"`
	MicroTicksPerMacro int   `yaml:"micro_ticks_per_macro"`
	Seed               int64 `yaml:"seed"`
}

// Market tunes the paper exchange and its economy generator.
type Market struct {
	FeeRatePPM        int     `yaml:"fee_rate_ppm"`
	InitialPrice      float64 `yaml:"initial_price"`
	TVWidth           float64 `yaml:"tv_width"`
	TVDrift           float64 `yaml:"tv_drift"`
	DepositTerms      []int   `yaml:"deposit_terms"`
	DepositBaseRate   float64 `yaml:"deposit_base_rate"`
	DepositRateSpread float64 `yaml:"deposit_rate_spread"`
}

// Endowment holds the starting cash and shares distributions for one class
// of agents.
type Endowment struct {
	Cash   Dist `yaml:"cash"`
	Shares Dist `yaml:"shares"`
}

// Endowments separates the market maker bankroll from everyone else's.
type Endowments struct {
	MarketMaker Endowment `yaml:"market_maker"`
	Others      Endowment `yaml:"others"`
}

// AgentGroup is one agent class: how many to build and the distribution
// spec for every strategy parameter.
type AgentGroup struct {
	Count      int             `yaml:"count"`
	Parameters map[string]Dist `yaml:"parameters"`
}

// Agents collects the population layout per class.
type Agents struct {
	MarketMaker    AgentGroup `yaml:"market_maker"`
	ValueInvestor  AgentGroup `yaml:"value_investor"`
	MomentumTrader AgentGroup `yaml:"momentum_trader"`
	NoiseTrader    AgentGroup `yaml:"noise_trader"`
}

// Record configures fill persistence; empty paths disable a sink.
type Record struct {
	FillsPath  string `yaml:"fills_path"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App        App        `yaml:"app"`
	Simulation Simulation `yaml:"simulation"`
	Market     Market     `yaml:"market"`
	Endowment  Endowments `yaml:"endowment"`
	Agents     Agents     `yaml:"agents"`
	Record     Record     `yaml:"record"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
