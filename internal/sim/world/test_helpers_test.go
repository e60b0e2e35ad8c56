package world

import (
	"errors"
	"sync"
	"testing"
	"time"

	"citydev.io/internal/protocol"
	"citydev.io/internal/sim/catalogs"
	"citydev.io/internal/sim/entity"
)

// One neighborhood of four identical houses plus a shop elsewhere.
const testSeedYAML = `
start_date: "2023-01-20"
player: {id: 1, funds: 1000}
upgrade_path_sets:
  basic:
    - name: Cozy
      upgrades:
        - {id: c1, name: Insulation, cost: 100, rent_increase: 3, days_to_complete: 5}
        - {id: c2, name: Appliances, cost: 200, rent_increase: 6, days_to_complete: 10}
neighborhoods:
  - id: 100
    name: Test Row
    rent_boost_threshold: 50
    rent_boost_percent: 10
    properties:
      - {id: 101, name: A, subtype: SingleFamily, base_rent: 1000, price: 800, occupancy_rate: 0.9, tenant_satisfaction: 0.7, upgrade_paths: basic}
      - {id: 102, name: B, subtype: SingleFamily, base_rent: 1000, price: 800, occupancy_rate: 0.9, tenant_satisfaction: 0.7, upgrade_paths: basic}
      - {id: 103, name: C, subtype: SingleFamily, base_rent: 1000, price: 800, occupancy_rate: 0.9, tenant_satisfaction: 0.7, upgrade_paths: basic}
      - {id: 104, name: D, subtype: SingleFamily, base_rent: 1000, price: 800, occupancy_rate: 0.9, tenant_satisfaction: 0.7, upgrade_paths: basic}
  - id: 200
    name: Market
    rent_boost_threshold: 100
    rent_boost_percent: 5
    properties:
      - {id: 201, name: Shop, subtype: Cafe, base_rent: 2000, price: 5000, occupancy_rate: 0.2, tenant_satisfaction: 0.1}
`

func testSeed(t *testing.T, startDate string) *catalogs.Seed {
	t.Helper()
	s, err := catalogs.Parse([]byte(testSeedYAML))
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	if startDate != "" {
		start, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			t.Fatalf("start date: %v", err)
		}
		s.Start = start.UTC()
	}
	return s
}

func newTestWorld(t *testing.T, cfg WorldConfig, startDate string) *World {
	t.Helper()
	w, err := New(cfg, testSeed(t, startDate))
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

func mustApply(t *testing.T, w *World, a protocol.Action) ActionResult {
	t.Helper()
	res, err := w.ApplyAction(a)
	if err != nil {
		t.Fatalf("%s: %v", a.Kind, err)
	}
	return res
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got success", code)
	}
	var pe *protocol.Error
	if !errors.As(err, &pe) || pe.Code != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func prop(t *testing.T, w *World, id entity.ID) *entity.Property {
	t.Helper()
	p := w.propertyByID(id)
	if p == nil {
		t.Fatalf("property %d missing", id)
	}
	return p
}

func stepN(w *World, n int) {
	for i := 0; i < n; i++ {
		w.StepOnce()
	}
}

type memTickLog struct {
	mu      sync.Mutex
	entries []TickLogEntry
}

func (m *memTickLog) WriteTick(e TickLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (m *memAudit) WriteAudit(e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAudit) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Kind)
	}
	return out
}
