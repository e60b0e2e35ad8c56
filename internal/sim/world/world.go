package world

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"citydev.io/internal/persistence/snapshot"
	"citydev.io/internal/sim/catalogs"
	"citydev.io/internal/sim/entity"
)

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine; other
// goroutines read the published State.
type World struct {
	cfg        WorldConfig
	seedDigest string

	store    *entity.Store
	clockID  entity.ID
	playerID entity.ID

	tick atomic.Uint64

	actions     chan actionReq
	admin       chan adminSnapshotReq
	subscribe   chan subscribeReq
	unsubscribe chan uint64
	stop        chan struct{}
	stopOnce    sync.Once

	subscribers map[uint64]chan []byte
	nextSubID   uint64

	// Actions applied since the last tick; flushed into the tick log.
	pendingRecorded []RecordedAction

	actionsTotal        uint64
	actionErrorsTotal   uint64
	invariantViolations uint64
	lastStepMS          float64

	published atomic.Pointer[published]
	metrics   atomic.Value

	logger      *log.Logger
	tickLogger  TickLogger
	auditLogger AuditLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1
}

func New(cfg WorldConfig, seed *catalogs.Seed) (*World, error) {
	cfg.applyDefaults()
	if seed == nil {
		return nil, fmt.Errorf("world %s: nil seed", cfg.ID)
	}
	w := newEmpty(cfg)
	w.seedDigest = seed.Digest
	if err := w.seedFrom(seed); err != nil {
		return nil, fmt.Errorf("world %s: seed: %w", cfg.ID, err)
	}
	if err := w.checkInvariants(); err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	w.publish()
	return w, nil
}

func newEmpty(cfg WorldConfig) *World {
	return &World{
		cfg:         cfg,
		store:       entity.NewStore(),
		actions:     make(chan actionReq, 256),
		admin:       make(chan adminSnapshotReq, 16),
		subscribe:   make(chan subscribeReq, 16),
		unsubscribe: make(chan uint64, 16),
		stop:        make(chan struct{}),
		subscribers: map[uint64]chan []byte{},
	}
}

func (w *World) seedFrom(seed *catalogs.Seed) error {
	w.clockID = entity.ID(seed.ClockID)
	w.playerID = entity.ID(seed.Player.ID)

	w.store.Upsert(entity.New(w.clockID, entity.EntityClock, &entity.GameTime{
		CurrentDate:     seed.Start,
		LastUpdated:     seed.Start,
		SpeedMultiplier: seed.SpeedMultiplier,
	}))
	w.store.Upsert(entity.New(w.playerID, entity.EntityPlayer, &entity.Player{
		ID:          w.playerID,
		Funds:       roundCents(seed.Player.Funds),
		PropertyIDs: []entity.ID{},
	}))

	for _, nd := range seed.Neighborhoods {
		n := &entity.Neighborhood{
			ID:                 entity.ID(nd.ID),
			Name:               nd.Name,
			PropertyIDs:        make([]entity.ID, 0, len(nd.Properties)),
			RentBoostThreshold: nd.RentBoostThreshold,
			RentBoostPercent:   nd.RentBoostPercent,
		}
		for _, pd := range nd.Properties {
			sub := entity.PropertySubtype(pd.Subtype)
			typ, ok := entity.TypeOf(sub)
			if !ok {
				return fmt.Errorf("property %d: unknown subtype %q", pd.ID, pd.Subtype)
			}
			p := &entity.Property{
				ID:                 entity.ID(pd.ID),
				Name:               pd.Name,
				Address:            pd.Address,
				Description:        pd.Description,
				Type:               typ,
				Subtype:            sub,
				BaseRent:           pd.BaseRent,
				Price:              pd.Price,
				OccupancyRate:      clamp01(pd.OccupancyRate),
				TenantSatisfaction: clamp01(pd.TenantSatisfaction),
				NeighborhoodID:     n.ID,
				Upgrades:           []entity.Upgrade{},
				UpgradePaths:       upgradePathsFrom(seed.UpgradePathSets[pd.UpgradePaths]),
			}
			w.store.Upsert(entity.New(p.ID, entity.EntityProperty, p))
			n.PropertyIDs = append(n.PropertyIDs, p.ID)
		}
		w.store.Upsert(entity.New(n.ID, entity.EntityNeighborhood, n))
	}
	return nil
}

func upgradePathsFrom(paths []catalogs.PathDef) map[string][]entity.Upgrade {
	out := make(map[string][]entity.Upgrade, len(paths))
	for _, p := range paths {
		defs := make([]entity.Upgrade, 0, len(p.Upgrades))
		for _, u := range p.Upgrades {
			defs = append(defs, entity.Upgrade{
				ID:             u.ID,
				Name:           u.Name,
				Path:           p.Name,
				Level:          u.Level,
				Cost:           u.Cost,
				RentIncrease:   u.RentIncrease,
				DaysToComplete: u.DaysToComplete,
				Prerequisite:   u.Prerequisite,
			})
		}
		out[p.Name] = defs
	}
	return out
}

// checkInvariants verifies the cross-entity invariants of the store.
func (w *World) checkInvariants() error {
	clock, err := w.store.Singleton(entity.KindGameTime)
	if err != nil {
		return fmt.Errorf("clock: %w", err)
	}
	if clock.ID != w.clockID {
		return fmt.Errorf("clock is entity %d, expected %d", clock.ID, w.clockID)
	}
	gt, _ := clock.GameTime()
	if !(gt.SpeedMultiplier > 0) || gt.SpeedMultiplier > w.cfg.MaxSpeedMultiplier {
		return fmt.Errorf("clock speed %v outside (0, %v]", gt.SpeedMultiplier, w.cfg.MaxSpeedMultiplier)
	}
	pe, err := w.store.Singleton(entity.KindPlayer)
	if err != nil {
		return fmt.Errorf("player: %w", err)
	}
	if pe.ID != w.playerID {
		return fmt.Errorf("player is entity %d, expected %d", pe.ID, w.playerID)
	}
	player, _ := pe.Player()
	if player.ID != pe.ID {
		return fmt.Errorf("player component id %d on entity %d", player.ID, pe.ID)
	}

	owned := map[entity.ID]bool{}
	for _, id := range player.PropertyIDs {
		if owned[id] {
			return fmt.Errorf("player lists property %d twice", id)
		}
		owned[id] = true
	}

	members := map[entity.ID][]entity.ID{}
	for _, e := range w.store.With(entity.KindProperty) {
		p, _ := e.Property()
		if p.ID != e.ID {
			return fmt.Errorf("property component id %d on entity %d", p.ID, e.ID)
		}
		if p.Owned != owned[p.ID] || (p.Owned && p.PlayerID != w.playerID) || (!p.Owned && p.PlayerID != 0) {
			return fmt.Errorf("property %d: ownership mismatch (owned=%v player=%d listed=%v)", p.ID, p.Owned, p.PlayerID, owned[p.ID])
		}
		delete(owned, p.ID)
		if p.OccupancyRate < 0 || p.OccupancyRate > 1 || p.TenantSatisfaction < 0 || p.TenantSatisfaction > 1 {
			return fmt.Errorf("property %d: occupancy/satisfaction out of [0,1]", p.ID)
		}
		applied := map[string]bool{}
		for _, u := range p.Upgrades {
			if !u.Applied {
				continue
			}
			if applied[u.ID] {
				return fmt.Errorf("property %d: upgrade %s applied twice", p.ID, u.ID)
			}
			applied[u.ID] = true
		}
		ne, err := w.store.Get(p.NeighborhoodID)
		if err != nil || !ne.HasNeighborhood() {
			return fmt.Errorf("property %d: dangling neighborhood %d", p.ID, p.NeighborhoodID)
		}
		members[p.NeighborhoodID] = append(members[p.NeighborhoodID], p.ID)
	}
	if len(owned) > 0 {
		stray := make([]entity.ID, 0, len(owned))
		for id := range owned {
			stray = append(stray, id)
		}
		sort.Slice(stray, func(i, j int) bool { return stray[i] < stray[j] })
		return fmt.Errorf("player lists %v which are not properties", stray)
	}

	for _, e := range w.store.With(entity.KindNeighborhood) {
		n, _ := e.Neighborhood()
		got := append([]entity.ID(nil), n.PropertyIDs...)
		want := members[n.ID]
		sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
		if len(got) != len(want) {
			return fmt.Errorf("neighborhood %d: lists %d properties, %d point at it", n.ID, len(got), len(want))
		}
		for i := range got {
			if got[i] != want[i] {
				return fmt.Errorf("neighborhood %d: member %d does not point at it", n.ID, got[i])
			}
		}
	}
	return nil
}

func (w *World) SetLogger(l *log.Logger)                       { w.logger = l }
func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) TickInterval() time.Duration { return w.cfg.TickInterval }

func (w *World) clock() *entity.GameTime {
	e, _ := w.store.Get(w.clockID)
	gt, _ := e.GameTime()
	return gt
}

func (w *World) player() *entity.Player {
	e, _ := w.store.Get(w.playerID)
	p, _ := e.Player()
	return p
}
