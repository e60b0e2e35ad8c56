package world

import (
	"time"

	"citydev.io/internal/sim/tuning"
)

type WorldConfig struct {
	ID string

	TickInterval       time.Duration
	DaysPerTick        float64
	MaxSpeedMultiplier float64

	// Operational parameters. These are included in snapshots for replay/resume.
	SnapshotEveryTicks int

	Economy tuning.Economy
}

// ConfigFromTuning builds a world config from a loaded tuning file.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickInterval:       time.Duration(t.TickIntervalMs) * time.Millisecond,
		DaysPerTick:        t.DaysPerTick,
		MaxSpeedMultiplier: t.MaxSpeedMultiplier,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		Economy:            t.Economy,
	}
}

func (c *WorldConfig) applyDefaults() {
	d := tuning.Defaults()
	if c.ID == "" {
		c.ID = "city_1"
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Duration(d.TickIntervalMs) * time.Millisecond
	}
	if c.DaysPerTick <= 0 {
		c.DaysPerTick = d.DaysPerTick
	}
	if c.MaxSpeedMultiplier <= 0 {
		c.MaxSpeedMultiplier = d.MaxSpeedMultiplier
	}
	c.boundAdvance()
	if c.SnapshotEveryTicks < 0 {
		c.SnapshotEveryTicks = 0
	}
	// A wholly zero economy block means "not configured"; individual zeros are legal.
	if c.Economy == (tuning.Economy{}) {
		c.Economy = d.Economy
	}
}

// boundAdvance keeps the largest per-tick advance within tuning.MaxDaysPerTick.
func (c *WorldConfig) boundAdvance() {
	if c.DaysPerTick > tuning.MaxDaysPerTick {
		c.DaysPerTick = tuning.MaxDaysPerTick
	}
	if c.DaysPerTick*c.MaxSpeedMultiplier > tuning.MaxDaysPerTick {
		c.MaxSpeedMultiplier = tuning.MaxDaysPerTick / c.DaysPerTick
	}
}
