package world

import (
	"fmt"
	"time"

	"citydev.io/internal/persistence/snapshot"
	"citydev.io/internal/sim/entity"
	"citydev.io/internal/sim/tuning"
)

// NewFromSnapshot builds a world whose state is exactly s. Operational
// parameters recorded in the snapshot override cfg.
func NewFromSnapshot(cfg WorldConfig, s snapshot.SnapshotV1) (*World, error) {
	cfg.applyDefaults()
	if s.Header.WorldID != "" {
		cfg.ID = s.Header.WorldID
	}
	w := newEmpty(cfg)
	if err := w.ImportSnapshot(s); err != nil {
		return nil, err
	}
	return w, nil
}

// ImportSnapshot replaces the current in-memory world state with the snapshot.
// It sets the world's tick to snapshotTick+1 (the next tick to simulate).
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}

	// Operational parameters: snapshot is authoritative when present.
	cfg := w.cfg
	if s.TickIntervalMs > 0 {
		cfg.TickInterval = time.Duration(s.TickIntervalMs) * time.Millisecond
	}
	if s.DaysPerTick > 0 {
		cfg.DaysPerTick = s.DaysPerTick
	}
	if s.MaxSpeedMultiplier > 0 {
		cfg.MaxSpeedMultiplier = s.MaxSpeedMultiplier
	}
	cfg.boundAdvance()
	if s.SnapshotEveryTicks > 0 {
		cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	}
	econ := tuning.Economy{
		SmoothingRate:        s.Economy.SmoothingRate,
		BaseSatisfaction:     s.Economy.BaseSatisfaction,
		SatisfactionPerLevel: s.Economy.SatisfactionPerLevel,
		OccupancyFloor:       s.Economy.OccupancyFloor,
		SaleValueRatio:       s.Economy.SaleValueRatio,
		ProrateFirstMonth:    s.Economy.ProrateFirstMonth,
		RentRoundTo:          s.Economy.RentRoundTo,
	}
	if econ != (tuning.Economy{}) {
		cfg.Economy = econ
	}

	store := entity.NewStore()
	store.Upsert(entity.New(entity.ID(s.Clock.ID), entity.EntityClock, &entity.GameTime{
		CurrentDate:     s.Clock.CurrentDate,
		IsPaused:        s.Clock.IsPaused,
		SpeedMultiplier: s.Clock.SpeedMultiplier,
		NewMonth:        s.Clock.NewMonth,
		MonthsCrossed:   s.Clock.MonthsCrossed,
		LastUpdated:     s.Clock.LastUpdated,
	}))
	store.Upsert(entity.New(entity.ID(s.Player.ID), entity.EntityPlayer, &entity.Player{
		ID:          entity.ID(s.Player.ID),
		Funds:       s.Player.Funds,
		PropertyIDs: idsFromInt64(s.Player.PropertyIDs),
	}))
	for _, ps := range s.Properties {
		p := importProperty(ps)
		if _, err := store.Get(p.ID); err == nil {
			return fmt.Errorf("snapshot: duplicate entity id %d", p.ID)
		}
		store.Upsert(entity.New(p.ID, entity.EntityProperty, p))
	}
	for _, ns := range s.Neighborhoods {
		id := entity.ID(ns.ID)
		if _, err := store.Get(id); err == nil {
			return fmt.Errorf("snapshot: duplicate entity id %d", id)
		}
		store.Upsert(entity.New(id, entity.EntityNeighborhood, &entity.Neighborhood{
			ID:                   id,
			Name:                 ns.Name,
			PropertyIDs:          idsFromInt64(ns.PropertyIDs),
			AveragePropertyValue: ns.AveragePropertyValue,
			RentBoostThreshold:   ns.RentBoostThreshold,
			RentBoostPercent:     ns.RentBoostPercent,
		}))
	}
	store.Reserve(entity.ID(s.Counters.NextEntity))

	prevStore, prevClock, prevPlayer := w.store, w.clockID, w.playerID
	w.store = store
	w.clockID = entity.ID(s.Clock.ID)
	w.playerID = entity.ID(s.Player.ID)
	if err := w.checkInvariants(); err != nil {
		w.store, w.clockID, w.playerID = prevStore, prevClock, prevPlayer
		return fmt.Errorf("snapshot: %w", err)
	}

	w.cfg = cfg
	w.seedDigest = s.SeedDigest
	w.actionsTotal = s.Counters.ActionsTotal
	w.pendingRecorded = nil
	w.tick.Store(s.Header.Tick + 1)
	w.publish()
	return nil
}

func importProperty(ps snapshot.PropertyV1) *entity.Property {
	p := &entity.Property{
		ID:                    entity.ID(ps.ID),
		Name:                  ps.Name,
		Address:               ps.Address,
		Description:           ps.Description,
		Type:                  entity.PropertyType(ps.Type),
		Subtype:               entity.PropertySubtype(ps.Subtype),
		BaseRent:              ps.BaseRent,
		UpgradeRentBoost:      ps.UpgradeRentBoost,
		NeighborhoodRentBoost: ps.NeighborhoodRentBoost,
		Owned:                 ps.Owned,
		PlayerID:              entity.ID(ps.PlayerID),
		Price:                 ps.Price,
		PurchaseDate:          ps.PurchaseDate,
		OccupancyRate:         ps.OccupancyRate,
		TenantSatisfaction:    ps.TenantSatisfaction,
		NeighborhoodID:        entity.ID(ps.NeighborhoodID),
		UpgradeLevel:          ps.UpgradeLevel,
		Upgrades:              importUpgrades(ps.Upgrades),
		UpgradePaths:          make(map[string][]entity.Upgrade, len(ps.Paths)),
	}
	for _, path := range ps.Paths {
		p.UpgradePaths[path.Name] = importUpgrades(path.Upgrades)
	}
	p.RecomputeRentBoost()
	return p
}

func importUpgrades(us []snapshot.UpgradeV1) []entity.Upgrade {
	out := make([]entity.Upgrade, 0, len(us))
	for _, u := range us {
		out = append(out, entity.Upgrade{
			ID:             u.ID,
			Name:           u.Name,
			Path:           u.Path,
			Level:          u.Level,
			Cost:           u.Cost,
			RentIncrease:   u.RentIncrease,
			DaysToComplete: u.DaysToComplete,
			Prerequisite:   u.Prerequisite,
			PurchaseDate:   u.PurchaseDate,
			CompletionDate: u.CompletionDate,
			Applied:        u.Applied,
		})
	}
	return out
}

func idsFromInt64(ids []int64) []entity.ID {
	out := make([]entity.ID, 0, len(ids))
	for _, id := range ids {
		out = append(out, entity.ID(id))
	}
	return out
}
