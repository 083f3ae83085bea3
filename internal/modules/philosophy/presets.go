package philosophy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aristath/insider-trader/internal/domain"
)

// Preset names
const (
	PresetConservative = "Conservative"
	PresetBalanced     = "Balanced"
	PresetAggressive   = "Aggressive"
	PresetHighRisk     = "High-Risk"
	PresetCustom       = "Custom"
)

// DalioConfig penalizes trades placed outside the logged decision process
type DalioConfig struct {
	Enabled bool    `yaml:"enabled"`
	Penalty float64 `yaml:"penalty"`
}

// BuffettConfig rejects entries whose expected return is too thin
type BuffettConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MinExpectedReturn float64 `yaml:"min_expected_return"`
	Penalty           float64 `yaml:"penalty"`
}

// PabraiConfig rewards insider clusters with a larger allocation
type PabraiConfig struct {
	Enabled          bool    `yaml:"enabled"`
	ClusterThreshold int     `yaml:"cluster_threshold"`
	Multiplier       float64 `yaml:"multiplier"`
	PowerBonus       float64 `yaml:"power_bonus"`
}

// OLearyConfig force-closes stagnant positions
type OLearyConfig struct {
	Enabled     bool    `yaml:"enabled"`
	MaxHoldDays int     `yaml:"max_hold_days"`
	MinReturn   float64 `yaml:"min_return"`
}

// SaylorConfig extends winners instead of cutting them at expiry
type SaylorConfig struct {
	Enabled       bool        `yaml:"enabled"`
	MinSharpe     float64     `yaml:"min_sharpe"`
	MinTier       domain.Tier `yaml:"min_tier"`
	ExtensionDays int         `yaml:"extension_days"`
	MaxExtensions int         `yaml:"max_extensions"`
}

// JapaneseConfig enforces process discipline with decaying penalties
type JapaneseConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Penalty     float64 `yaml:"penalty"`
	DecayRounds int     `yaml:"decay_rounds"`
}

// PackConfig is the full rule-pack parameter set for one account
type PackConfig struct {
	Dalio    DalioConfig    `yaml:"dalio"`
	Buffett  BuffettConfig  `yaml:"buffett"`
	Pabrai   PabraiConfig   `yaml:"pabrai"`
	OLeary   OLearyConfig   `yaml:"oleary"`
	Saylor   SaylorConfig   `yaml:"saylor"`
	Japanese JapaneseConfig `yaml:"japanese"`
}

// PresetConfig returns the built-in parameter set for a preset name.
// Unknown names fall back to Balanced.
func PresetConfig(name string) PackConfig {
	switch name {
	case PresetConservative:
		return PackConfig{
			Dalio:    DalioConfig{Enabled: true, Penalty: -0.05},
			Buffett:  BuffettConfig{Enabled: true, MinExpectedReturn: 0.20, Penalty: -0.20},
			Pabrai:   PabraiConfig{Enabled: true, ClusterThreshold: 4, Multiplier: 1.5, PowerBonus: 0.05},
			OLeary:   OLearyConfig{Enabled: true, MaxHoldDays: 60, MinReturn: 0.08},
			Saylor:   SaylorConfig{Enabled: false, MinSharpe: 2.0, MinTier: domain.TierS, ExtensionDays: 30, MaxExtensions: 1},
			Japanese: JapaneseConfig{Enabled: true, Penalty: -0.20, DecayRounds: 5},
		}

	case PresetAggressive:
		return PackConfig{
			Dalio:    DalioConfig{Enabled: true, Penalty: -0.10},
			Buffett:  BuffettConfig{Enabled: true, MinExpectedReturn: 0.10, Penalty: -0.10},
			Pabrai:   PabraiConfig{Enabled: true, ClusterThreshold: 2, Multiplier: 2.5, PowerBonus: 0.10},
			OLeary:   OLearyConfig{Enabled: true, MaxHoldDays: 90, MinReturn: 0.03},
			Saylor:   SaylorConfig{Enabled: true, MinSharpe: 1.5, MinTier: domain.TierB, ExtensionDays: 30, MaxExtensions: 3},
			Japanese: JapaneseConfig{Enabled: true, Penalty: -0.15, DecayRounds: 3},
		}

	case PresetHighRisk:
		return PackConfig{
			Dalio:    DalioConfig{Enabled: false},
			Buffett:  BuffettConfig{Enabled: true, MinExpectedReturn: 0.05, Penalty: -0.05},
			Pabrai:   PabraiConfig{Enabled: true, ClusterThreshold: 2, Multiplier: 3.0, PowerBonus: 0.15},
			OLeary:   OLearyConfig{Enabled: false},
			Saylor:   SaylorConfig{Enabled: true, MinSharpe: 1.0, MinTier: domain.TierC, ExtensionDays: 30, MaxExtensions: 5},
			Japanese: JapaneseConfig{Enabled: false},
		}

	case PresetCustom:
		// Custom starts from Balanced and gets overridden from file
		return PresetConfig(PresetBalanced)

	default: // Balanced
		return PackConfig{
			Dalio:    DalioConfig{Enabled: true, Penalty: -0.10},
			Buffett:  BuffettConfig{Enabled: true, MinExpectedReturn: 0.15, Penalty: -0.15},
			Pabrai:   PabraiConfig{Enabled: true, ClusterThreshold: 3, Multiplier: 2.0, PowerBonus: 0.05},
			OLeary:   OLearyConfig{Enabled: true, MaxHoldDays: 90, MinReturn: 0.05},
			Saylor:   SaylorConfig{Enabled: true, MinSharpe: 2.0, MinTier: domain.TierS, ExtensionDays: 30, MaxExtensions: 2},
			Japanese: JapaneseConfig{Enabled: true, Penalty: -0.20, DecayRounds: 5},
		}
	}
}

// LoadPresetOverrides reads a yaml file of preset-name -> PackConfig and
// returns the overrides. Missing file means no overrides.
func LoadPresetOverrides(path string) (map[string]PackConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read preset overrides: %w", err)
	}

	var overrides map[string]PackConfig
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse preset overrides: %w", err)
	}

	return overrides, nil
}
