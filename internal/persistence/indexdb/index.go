// Package indexdb maintains a queryable read model of the tick log, audit
// stream and snapshots. Writes are asynchronous and lossy under pressure;
// the JSONL logs remain the source of truth.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"citydev.io/internal/persistence/snapshot"
	"citydev.io/internal/sim/catalogs"
	"citydev.io/internal/sim/tuning"
	"citydev.io/internal/sim/world"
)

const schemaVersion = "1"

type Index struct {
	db *sql.DB
	d  dialect

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
	dropYear     atomic.Uint64
	writeErrs    atomic.Uint64
}

type Stats struct {
	Backend           string `json:"backend"`
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	DropYearTotal     uint64 `json:"drop_year_total"`
	WriteErrorTotal   uint64 `json:"write_error_total"`
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqYear
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	audit    world.AuditEntry
	snapshot snapshotRow
	year     yearRow
}

type snapshotRow struct {
	Tick            uint64
	Path            string
	SimDate         string
	SeedDigest      string
	Funds           float64
	Properties      []snapshot.PropertyV1
	Owned           int
	PendingUpgrades int
}

type yearRow struct {
	Year       int
	EndTick    uint64
	Path       string
	SeedDigest string
	RecordedAt string
}

// queueCapacity leaves room for a burst of rent audits at a month edge.
const queueCapacity = 65536

func open(d dialect, db *sql.DB) (*Index, error) {
	for _, p := range d.pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", d.name, p, err)
		}
	}
	for _, s := range schemaStmts {
		if _, err := db.Exec(d.q(s)); err != nil {
			return nil, fmt.Errorf("%s: schema: %w", d.name, err)
		}
	}
	if _, err := db.Exec(d.q(upsertMeta), "schema_version", schemaVersion); err != nil {
		return nil, fmt.Errorf("%s: meta: %w", d.name, err)
	}

	s := &Index{
		db: db,
		d:  d,
		ch: make(chan req, queueCapacity),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func (s *Index) Backend() string {
	if s == nil {
		return "none"
	}
	return s.d.name
}

// DB exposes the handle for read queries.
func (s *Index) DB() *sql.DB { return s.db }

func (s *Index) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *Index) Stats() Stats {
	if s == nil {
		return Stats{Backend: "none"}
	}
	return Stats{
		Backend:           s.d.name,
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropYearTotal:     s.dropYear.Load(),
		WriteErrorTotal:   s.writeErrs.Load(),
	}
}

func (s *Index) enqueue(r req, drops *atomic.Uint64) {
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		drops.Add(1)
	}
}

func (s *Index) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	return nil
}

func (s *Index) WriteAudit(entry world.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqAudit, audit: entry}, &s.dropAudit)
	return nil
}

// RecordSnapshot indexes a snapshot file and the per-property state in it.
func (s *Index) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:       snap.Header.Tick,
		Path:       path,
		SimDate:    snap.Header.Date.UTC().Format(time.RFC3339),
		SeedDigest: snap.SeedDigest,
		Funds:      snap.Player.Funds,
		Properties: snap.Properties,
	}
	for _, p := range snap.Properties {
		if p.Owned {
			r.Owned++
		}
		for _, u := range p.Upgrades {
			if !u.Applied {
				r.PendingUpgrades++
			}
		}
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// RecordYear indexes a closed simulated year and its archived snapshot.
func (s *Index) RecordYear(year int, endTick uint64, archivedSnapshotPath, seedDigest string) {
	if s == nil || s.closed.Load() {
		return
	}
	if year <= 0 || archivedSnapshotPath == "" {
		return
	}
	r := yearRow{
		Year:       year,
		EndTick:    endTick,
		Path:       archivedSnapshotPath,
		SeedDigest: seedDigest,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	s.enqueue(req{kind: reqYear, year: r}, &s.dropYear)
}

// UpsertCatalogs stores the seed and the tuning actually applied, so index
// rows can be traced back to the inputs that produced them.
func (s *Index) UpsertCatalogs(ctx context.Context, seed *catalogs.Seed, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if seed != nil {
		if b, err := json.Marshal(seed); err == nil {
			rows = append(rows, kv{name: "seed", digest: seed.Digest, json: b})
		}
	}
	if b, err := json.Marshal(tune); err == nil {
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, s.d.q(upsertCatalog), r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Index) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErrs.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrs.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		s.writeErrs.Add(1)
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(query string, args ...any) bool {
		if _, err := tx.ExecContext(ctx, s.d.q(query), args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			raw, _ := json.Marshal(e)
			if !exec(upsertTick, int64(e.Tick), e.Date.UTC().Format(time.RFC3339), boolInt(e.Paused), len(e.Actions), e.Digest, string(raw)) {
				continue
			}
			for i, a := range e.Actions {
				payload := string(a.Request.Payload)
				if payload == "" {
					payload = "null"
				}
				if !exec(upsertAction, int64(e.Tick), i, a.ID, a.Request.Action, a.Code, payload) {
					break
				}
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(upsertAudit, int64(a.Tick), seq, a.Kind, a.ActionID, a.PlayerID, a.PropertyID, a.UpgradeID,
				a.Amount, a.Funds, a.Date.UTC().Format(time.RFC3339), string(raw))

		case reqSnapshot:
			sn := r.snapshot
			if !exec(upsertSnapshot, int64(sn.Tick), sn.Path, sn.SimDate, sn.SeedDigest, sn.Funds, len(sn.Properties), sn.Owned, sn.PendingUpgrades) {
				continue
			}
			for _, p := range sn.Properties {
				if !exec(upsertSnapshotProperty, int64(sn.Tick), p.ID, p.Name, p.NeighborhoodID, boolInt(p.Owned),
					p.Price, p.BaseRent, p.UpgradeRentBoost+p.NeighborhoodRentBoost, p.OccupancyRate, p.TenantSatisfaction, p.UpgradeLevel) {
					break
				}
			}

		case reqYear:
			y := r.year
			exec(upsertYear, y.Year, int64(y.EndTick), y.Path, y.SeedDigest, y.RecordedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
