package tuning

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickIntervalMs     int     `yaml:"tick_interval_ms"`
	DaysPerTick        float64 `yaml:"days_per_tick"`
	MaxSpeedMultiplier float64 `yaml:"max_speed_multiplier"`
	ActionTimeoutMs    int     `yaml:"action_timeout_ms"`
	SnapshotEveryTicks int     `yaml:"snapshot_every_ticks"`

	Economy Economy `yaml:"economy"`
}

type Economy struct {
	// SmoothingRate is the fraction of the gap to target closed per simulated day.
	SmoothingRate        float64 `yaml:"smoothing_rate"`
	BaseSatisfaction     float64 `yaml:"base_satisfaction"`
	SatisfactionPerLevel float64 `yaml:"satisfaction_per_level"`
	OccupancyFloor       float64 `yaml:"occupancy_floor"`

	SaleValueRatio    float64 `yaml:"sale_value_ratio"`
	ProrateFirstMonth bool    `yaml:"prorate_first_month"`
	RentRoundTo       float64 `yaml:"rent_round_to"`
}

// MaxDaysPerTick caps days_per_tick*max_speed_multiplier, the largest
// calendar jump a single tick may make.
const MaxDaysPerTick = 36500

func Defaults() Tuning {
	return Tuning{
		TickIntervalMs:     1000,
		DaysPerTick:        1,
		MaxSpeedMultiplier: 10000,
		ActionTimeoutMs:    2000,
		SnapshotEveryTicks: 300,
		Economy: Economy{
			SmoothingRate:        0.1,
			BaseSatisfaction:     0.6,
			SatisfactionPerLevel: 0.35,
			OccupancyFloor:       0.5,
			SaleValueRatio:       0.8,
		},
	}
}

// Load reads path over Defaults, so a file only needs the keys it changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickIntervalMs <= 0 {
		return fmt.Errorf("tick_interval_ms must be > 0")
	}
	if !(t.DaysPerTick > 0) || math.IsInf(t.DaysPerTick, 0) {
		return fmt.Errorf("days_per_tick must be a positive number")
	}
	if !(t.MaxSpeedMultiplier > 0) || math.IsInf(t.MaxSpeedMultiplier, 0) {
		return fmt.Errorf("max_speed_multiplier must be a positive number")
	}
	if t.DaysPerTick*t.MaxSpeedMultiplier > MaxDaysPerTick {
		return fmt.Errorf("days_per_tick*max_speed_multiplier must be <= %d, got %v", MaxDaysPerTick, t.DaysPerTick*t.MaxSpeedMultiplier)
	}
	if t.ActionTimeoutMs <= 0 {
		return fmt.Errorf("action_timeout_ms must be > 0")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	e := t.Economy
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"smoothing_rate", e.SmoothingRate},
		{"base_satisfaction", e.BaseSatisfaction},
		{"occupancy_floor", e.OccupancyFloor},
		{"sale_value_ratio", e.SaleValueRatio},
	} {
		if !(f.v >= 0 && f.v <= 1) {
			return fmt.Errorf("economy.%s must be in [0,1], got %v", f.name, f.v)
		}
	}
	if !(e.SatisfactionPerLevel >= 0) || math.IsInf(e.SatisfactionPerLevel, 0) {
		return fmt.Errorf("economy.satisfaction_per_level must be >= 0")
	}
	if !(e.RentRoundTo >= 0) || math.IsInf(e.RentRoundTo, 0) {
		return fmt.Errorf("economy.rent_round_to must be >= 0")
	}
	return nil
}
