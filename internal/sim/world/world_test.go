package world

import (
	"encoding/json"
	"testing"

	"citydev.io/internal/sim/catalogs"
	"citydev.io/internal/sim/entity"
)

func TestNew_DefaultSeed(t *testing.T) {
	seed, err := catalogs.Default()
	if err != nil {
		t.Fatalf("default seed: %v", err)
	}
	w, err := New(WorldConfig{}, seed)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if w.ID() != "city_1" {
		t.Fatalf("id=%q", w.ID())
	}
	st := w.State()
	clock, ok := st.Entities["0"]
	if !ok || !clock.HasGameTime() {
		t.Fatalf("clock entity missing")
	}
	pl, ok := st.Entities["1"]
	if !ok || !pl.HasPlayer() {
		t.Fatalf("player entity missing")
	}
	if p, _ := pl.Player(); p.Funds != 10000 {
		t.Fatalf("funds=%v", p.Funds)
	}
	if len(st.Systems) != 3 || st.Systems[0].Name != "TimeSystem" {
		t.Fatalf("systems=%+v", st.Systems)
	}
	if w.Metrics().Properties == 0 {
		t.Fatalf("metrics not published at seed time")
	}
}

func TestNew_NilSeed(t *testing.T) {
	if _, err := New(WorldConfig{}, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestStateJSON_CanonicalShape(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, "")
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(w.StateJSON(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, k := range []string{"SchemaVersion", "Tick", "Entities", "Systems"} {
		if _, ok := doc[k]; !ok {
			t.Fatalf("state missing %s: %s", k, w.StateJSON())
		}
	}
	var ents map[string]struct {
		ID         int64
		Components map[string]json.RawMessage
	}
	if err := json.Unmarshal(doc["Entities"], &ents); err != nil {
		t.Fatalf("entities: %v", err)
	}
	prop := ents["101"]
	if prop.ID != 101 {
		t.Fatalf("entity key/id mismatch: %+v", prop)
	}
	var p map[string]json.RawMessage
	if err := json.Unmarshal(prop.Components["Property"], &p); err != nil {
		t.Fatalf("property: %v", err)
	}
	if string(p["Upgrades"]) != "[]" {
		t.Fatalf("empty upgrades should encode as [], got %s", p["Upgrades"])
	}
}

func TestState_IsACopy(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, "")
	st := w.State()
	p, _ := st.Entities["101"].Property()
	p.Owned = true
	if prop(t, w, 101).Owned {
		t.Fatalf("mutating the published state leaked into the store")
	}
}

func TestCheckInvariants_Detects(t *testing.T) {
	cases := map[string]func(w *World){
		"dangling neighborhood": func(w *World) { w.propertyByID(101).NeighborhoodID = 999 },
		"owned without listing": func(w *World) {
			p := w.propertyByID(101)
			p.Owned, p.PlayerID = true, 1
		},
		"occupancy bound": func(w *World) { w.propertyByID(101).OccupancyRate = 1.5 },
		"duplicate owner entry": func(w *World) {
			p := w.propertyByID(101)
			p.Owned, p.PlayerID = true, 1
			w.player().PropertyIDs = []entity.ID{101, 101}
		},
		"second player": func(w *World) {
			w.store.Upsert(entity.New(50, entity.EntityPlayer, &entity.Player{ID: 50}))
		},
		"applied twice": func(w *World) {
			p := w.propertyByID(101)
			p.Upgrades = []entity.Upgrade{{ID: "c1", Applied: true}, {ID: "c1", Applied: true}}
		},
	}
	for name, breakIt := range cases {
		w := newTestWorld(t, WorldConfig{}, "")
		if err := w.checkInvariants(); err != nil {
			t.Fatalf("%s: fresh world invalid: %v", name, err)
		}
		breakIt(w)
		if err := w.checkInvariants(); err == nil {
			t.Fatalf("%s: not detected", name)
		}
	}
}

func TestStep_InvariantViolationIsCounted(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, "")
	w.propertyByID(101).NeighborhoodID = 999
	w.StepOnce()
	if w.Metrics().InvariantViolations != 1 {
		t.Fatalf("violations=%d", w.Metrics().InvariantViolations)
	}
}

func TestNew_RejectsSeedSpeedAboveMax(t *testing.T) {
	seed := testSeed(t, "")
	seed.SpeedMultiplier = 100
	if _, err := New(WorldConfig{MaxSpeedMultiplier: 50}, seed); err == nil {
		t.Fatalf("expected error for seed speed above max_speed_multiplier")
	}
	seed.SpeedMultiplier = 50
	if _, err := New(WorldConfig{MaxSpeedMultiplier: 50}, seed); err != nil {
		t.Fatalf("speed at the max rejected: %v", err)
	}
}
