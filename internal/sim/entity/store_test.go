package entity

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestStore_GetUpsertAll(t *testing.T) {
	s := NewStore()
	s.Upsert(New(2, EntityProperty, &Property{ID: 2, Name: "B"}))
	s.Upsert(New(1, EntityProperty, &Property{ID: 1, Name: "A"}))

	if _, err := s.Get(3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(3) err=%v want ErrNotFound", err)
	}
	e, err := s.Get(2)
	if err != nil {
		t.Fatalf("Get(2): %v", err)
	}
	if p, ok := e.Property(); !ok || p.Name != "B" {
		t.Fatalf("unexpected property: %+v", e)
	}

	all := s.All()
	if len(all) != 2 || all[0].ID != 1 || all[1].ID != 2 {
		t.Fatalf("All not ordered by id: %+v", all)
	}

	s.Upsert(New(2, EntityProperty, &Property{ID: 2, Name: "B2"}))
	if s.Len() != 2 {
		t.Fatalf("upsert should replace: len=%d", s.Len())
	}
	if id := s.NextID(); id != 3 {
		t.Fatalf("NextID=%d want 3", id)
	}
}

func TestStore_Singleton(t *testing.T) {
	s := NewStore()
	if _, err := s.Singleton(KindPlayer); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	s.Upsert(New(1, EntityPlayer, &Player{ID: 1}))
	if e, err := s.Singleton(KindPlayer); err != nil || e.ID != 1 {
		t.Fatalf("Singleton: e=%v err=%v", e, err)
	}
	s.Upsert(New(2, EntityPlayer, &Player{ID: 2}))
	if _, err := s.Singleton(KindPlayer); err == nil {
		t.Fatalf("expected error for duplicate singleton")
	}
}

func TestStore_CloneIsDeep(t *testing.T) {
	s := NewStore()
	s.Upsert(New(1, EntityPlayer, &Player{ID: 1, Funds: 10, PropertyIDs: []ID{5}}))
	s.Upsert(New(5, EntityProperty, &Property{
		ID:           5,
		Upgrades:     []Upgrade{{ID: "u1"}},
		UpgradePaths: map[string][]Upgrade{"p": {{ID: "u1"}}},
	}))

	c := s.Clone()
	pe, _ := s.Get(1)
	pl, _ := pe.Player()
	pl.Funds = 99
	pl.PropertyIDs[0] = 6
	re, _ := s.Get(5)
	rp, _ := re.Property()
	rp.Upgrades[0].Applied = true
	rp.UpgradePaths["p"][0].Name = "changed"

	ce, _ := c.Get(1)
	cp, _ := ce.Player()
	if cp.Funds != 10 || cp.PropertyIDs[0] != 5 {
		t.Fatalf("player clone shares state: %+v", cp)
	}
	cre, _ := c.Get(5)
	crp, _ := cre.Property()
	if crp.Upgrades[0].Applied || crp.UpgradePaths["p"][0].Name != "" {
		t.Fatalf("property clone shares state: %+v", crp)
	}
}

func TestEntity_HasQueries(t *testing.T) {
	e := New(0, EntityClock, &GameTime{SpeedMultiplier: 1})
	if !e.HasGameTime() || e.HasPlayer() || e.HasProperty() || e.HasNeighborhood() {
		t.Fatalf("unexpected Has* results for clock entity")
	}
	var nilEnt *Entity
	if nilEnt.HasGameTime() {
		t.Fatalf("nil entity must report no components")
	}
}

func TestEntity_JSONRoundTripKeepsVariants(t *testing.T) {
	date := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	in := New(0, EntityClock, &GameTime{CurrentDate: date, SpeedMultiplier: 2})
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Entity
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	gt, ok := out.GameTime()
	if !ok {
		t.Fatalf("GameTime component lost: %s", b)
	}
	if !gt.CurrentDate.Equal(date) || gt.SpeedMultiplier != 2 {
		t.Fatalf("GameTime mismatch: %+v", gt)
	}

	if err := json.Unmarshal([]byte(`{"ID":1,"Components":{"Bogus":{}}}`), &out); err == nil {
		t.Fatalf("expected unknown component kind to be rejected")
	}
}

func TestProperty_RentHelpers(t *testing.T) {
	p := &Property{
		BaseRent:              1000,
		UpgradeRentBoost:      5,
		NeighborhoodRentBoost: 10,
		OccupancyRate:         0.5,
		Upgrades: []Upgrade{
			{ID: "a", Path: "x", Applied: true},
			{ID: "b", Path: "x"},
			{ID: "c", Path: "y"},
		},
	}
	p.RecomputeRentBoost()
	if p.RentBoost != 15 {
		t.Fatalf("RentBoost=%v want 15", p.RentBoost)
	}
	if got := p.EffectiveRent(); got != 575 {
		t.Fatalf("EffectiveRent=%v want 575", got)
	}
	if n := p.UpgradesOnPath("x"); n != 2 {
		t.Fatalf("UpgradesOnPath(x)=%d want 2", n)
	}
	if !p.UpgradeApplied("a") || p.UpgradeApplied("b") {
		t.Fatalf("UpgradeApplied mismatch")
	}
}

func TestStore_ReserveAndPeek(t *testing.T) {
	s := NewStore()
	s.Upsert(New(4, EntityPlayer, &Player{ID: 4}))
	if got := s.PeekNextID(); got != 5 {
		t.Fatalf("PeekNextID=%d want 5", got)
	}
	s.Reserve(10)
	s.Reserve(7)
	if got := s.NextID(); got != 10 {
		t.Fatalf("NextID after Reserve=%d want 10", got)
	}
	if got := s.PeekNextID(); got != 11 {
		t.Fatalf("PeekNextID=%d want 11", got)
	}
}
