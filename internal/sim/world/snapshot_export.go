package world

import (
	"sort"

	"citydev.io/internal/persistence/snapshot"
	"citydev.io/internal/protocol"
	"citydev.io/internal/sim/entity"
)

// ExportSnapshot captures the full simulation state as of nowTick.
// Snapshot must be called from the world loop goroutine.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	gt := w.clock()
	pl := w.player()

	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:       snapshot.Version,
			SchemaVersion: protocol.SchemaVersion,
			WorldID:       w.cfg.ID,
			Tick:          nowTick,
			Date:          gt.CurrentDate,
		},
		SeedDigest:         w.seedDigest,
		TickIntervalMs:     int(w.cfg.TickInterval.Milliseconds()),
		DaysPerTick:        w.cfg.DaysPerTick,
		MaxSpeedMultiplier: w.cfg.MaxSpeedMultiplier,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		Economy: snapshot.EconomyV1{
			SmoothingRate:        w.cfg.Economy.SmoothingRate,
			BaseSatisfaction:     w.cfg.Economy.BaseSatisfaction,
			SatisfactionPerLevel: w.cfg.Economy.SatisfactionPerLevel,
			OccupancyFloor:       w.cfg.Economy.OccupancyFloor,
			SaleValueRatio:       w.cfg.Economy.SaleValueRatio,
			ProrateFirstMonth:    w.cfg.Economy.ProrateFirstMonth,
			RentRoundTo:          w.cfg.Economy.RentRoundTo,
		},
		Clock: snapshot.ClockV1{
			ID:              int64(w.clockID),
			CurrentDate:     gt.CurrentDate,
			IsPaused:        gt.IsPaused,
			SpeedMultiplier: gt.SpeedMultiplier,
			NewMonth:        gt.NewMonth,
			MonthsCrossed:   gt.MonthsCrossed,
			LastUpdated:     gt.LastUpdated,
		},
		Player: snapshot.PlayerV1{
			ID:          int64(w.playerID),
			Funds:       pl.Funds,
			PropertyIDs: idsToInt64(pl.PropertyIDs),
		},
		Counters: snapshot.CountersV1{
			NextEntity:   int64(w.store.PeekNextID()),
			ActionsTotal: w.actionsTotal,
		},
	}

	for _, e := range w.store.With(entity.KindProperty) {
		p, _ := e.Property()
		s.Properties = append(s.Properties, exportProperty(p))
	}
	for _, e := range w.store.With(entity.KindNeighborhood) {
		n, _ := e.Neighborhood()
		s.Neighborhoods = append(s.Neighborhoods, snapshot.NeighborhoodV1{
			ID:                   int64(n.ID),
			Name:                 n.Name,
			PropertyIDs:          idsToInt64(n.PropertyIDs),
			AveragePropertyValue: n.AveragePropertyValue,
			RentBoostThreshold:   n.RentBoostThreshold,
			RentBoostPercent:     n.RentBoostPercent,
		})
	}
	return s
}

func exportProperty(p *entity.Property) snapshot.PropertyV1 {
	out := snapshot.PropertyV1{
		ID:                    int64(p.ID),
		Name:                  p.Name,
		Address:               p.Address,
		Description:           p.Description,
		Type:                  string(p.Type),
		Subtype:               string(p.Subtype),
		BaseRent:              p.BaseRent,
		UpgradeRentBoost:      p.UpgradeRentBoost,
		NeighborhoodRentBoost: p.NeighborhoodRentBoost,
		Owned:                 p.Owned,
		PlayerID:              int64(p.PlayerID),
		Price:                 p.Price,
		PurchaseDate:          p.PurchaseDate,
		OccupancyRate:         p.OccupancyRate,
		TenantSatisfaction:    p.TenantSatisfaction,
		NeighborhoodID:        int64(p.NeighborhoodID),
		UpgradeLevel:          p.UpgradeLevel,
		Upgrades:              exportUpgrades(p.Upgrades),
	}
	names := make([]string, 0, len(p.UpgradePaths))
	for name := range p.UpgradePaths {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out.Paths = append(out.Paths, snapshot.UpgradePathV1{Name: name, Upgrades: exportUpgrades(p.UpgradePaths[name])})
	}
	return out
}

func exportUpgrades(us []entity.Upgrade) []snapshot.UpgradeV1 {
	out := make([]snapshot.UpgradeV1, 0, len(us))
	for _, u := range us {
		out = append(out, snapshot.UpgradeV1{
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

func idsToInt64(ids []entity.ID) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	return out
}
