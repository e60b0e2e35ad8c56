package world

import (
	"time"

	"citydev.io/internal/sim/entity"
)

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	SimDate         string  `json:"sim_date"`
	Paused          bool    `json:"paused"`
	SpeedMultiplier float64 `json:"speed_multiplier"`

	Entities        int     `json:"entities"`
	Properties      int     `json:"properties"`
	OwnedProperties int     `json:"owned_properties"`
	PendingUpgrades int     `json:"pending_upgrades"`
	Funds           float64 `json:"funds"`

	ActionsTotal        uint64 `json:"actions_total"`
	ActionErrorsTotal   uint64 `json:"action_errors_total"`
	InvariantViolations uint64 `json:"invariant_violations"`

	Subscribers int         `json:"subscribers"`
	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Actions int `json:"actions"`
	Admin   int `json:"admin"`
}

func (w *World) storeMetrics() {
	m := WorldMetrics{
		Tick:                w.tick.Load(),
		Entities:            w.store.Len(),
		ActionsTotal:        w.actionsTotal,
		ActionErrorsTotal:   w.actionErrorsTotal,
		InvariantViolations: w.invariantViolations,
		Subscribers:         len(w.subscribers),
		QueueDepths: QueueDepths{
			Actions: len(w.actions),
			Admin:   len(w.admin),
		},
		StepMS: w.lastStepMS,
	}
	if gt := w.clock(); gt != nil {
		m.SimDate = gt.CurrentDate.Format(time.RFC3339)
		m.Paused = gt.IsPaused
		m.SpeedMultiplier = gt.SpeedMultiplier
	}
	if pl := w.player(); pl != nil {
		m.Funds = pl.Funds
	}
	for _, e := range w.store.With(entity.KindProperty) {
		p, _ := e.Property()
		m.Properties++
		if p.Owned {
			m.OwnedProperties++
		}
		for _, u := range p.Upgrades {
			if !u.Applied {
				m.PendingUpgrades++
			}
		}
	}
	w.metrics.Store(m)
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
