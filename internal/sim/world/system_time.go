package world

import (
	"math"
	"time"

	"citydev.io/internal/protocol"
)

// systemTime advances the calendar by one tick and reports the simulated days
// that elapsed. A paused clock does not move and returns 0.
func (w *World) systemTime() float64 {
	gt := w.clock()
	if gt.IsPaused {
		return 0
	}
	days := w.cfg.DaysPerTick * gt.SpeedMultiplier
	prev := gt.CurrentDate
	gt.LastUpdated = prev
	gt.CurrentDate = advanceDays(prev, days)
	gt.MonthsCrossed = monthsBetween(prev, gt.CurrentDate)
	gt.NewMonth = gt.MonthsCrossed > 0
	return days
}

func (w *World) pauseTime() {
	w.clock().IsPaused = true
}

func (w *World) startTime() {
	w.clock().IsPaused = false
}

func (w *World) setSpeed(m *float64) error {
	if m == nil {
		return protocol.Errorf(protocol.ErrInvalidArgument, "set_speed requires speed_multiplier")
	}
	v := *m
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return protocol.Errorf(protocol.ErrInvalidArgument, "speed_multiplier must be a positive finite number, got %v", v)
	}
	if v > w.cfg.MaxSpeedMultiplier {
		return protocol.Errorf(protocol.ErrInvalidArgument, "speed_multiplier %v exceeds maximum %v", v, w.cfg.MaxSpeedMultiplier)
	}
	w.clock().SpeedMultiplier = v
	return nil
}

// advanceDays moves t forward by whole calendar days plus the fractional rest.
func advanceDays(t time.Time, days float64) time.Time {
	whole := math.Floor(days)
	frac := days - whole
	return t.AddDate(0, 0, int(whole)).Add(time.Duration(frac * float64(24*time.Hour)))
}
