package indexdb

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"citydev.io/internal/persistence/snapshot"
	"citydev.io/internal/protocol"
	"citydev.io/internal/sim/catalogs"
	"citydev.io/internal/sim/tuning"
	"citydev.io/internal/sim/world"
)

func testSnapshot(tick uint64) snapshot.SnapshotV1 {
	date := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	return snapshot.SnapshotV1{
		Header:     snapshot.Header{Version: snapshot.Version, WorldID: "city_1", Tick: tick, Date: date},
		SeedDigest: "seed",
		Player:     snapshot.PlayerV1{ID: 1, Funds: 420, PropertyIDs: []int64{11}},
		Properties: []snapshot.PropertyV1{
			{
				ID: 11, Name: "Oak", NeighborhoodID: 10, Owned: true, Price: 800, BaseRent: 1000,
				UpgradeRentBoost: 3, NeighborhoodRentBoost: 10, OccupancyRate: 0.9, TenantSatisfaction: 0.7, UpgradeLevel: 1,
				Upgrades: []snapshot.UpgradeV1{{ID: "c1", Applied: true}, {ID: "c2"}},
			},
			{ID: 12, Name: "Elm", NeighborhoodID: 10, Price: 900, BaseRent: 1100},
		},
	}
}

func TestSQLiteIndex_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if idx.Backend() != "sqlite" {
		t.Fatalf("backend=%q", idx.Backend())
	}

	seed, err := catalogs.Default()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := idx.UpsertCatalogs(context.Background(), seed, tuning.Defaults()); err != nil {
		t.Fatalf("catalogs: %v", err)
	}

	date := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	payload, _ := json.Marshal(protocol.BuyPropertyPayload{PropertyID: 11, PlayerID: 1})
	_ = idx.WriteTick(world.TickLogEntry{
		Tick: 3, Date: date, Digest: "abc",
		Actions: []world.RecordedAction{
			{ID: "a1", Request: protocol.ActionRequest{Action: protocol.ActionBuyProperty, Payload: payload}},
			{ID: "a2", Request: protocol.ActionRequest{Action: protocol.ActionBuyProperty, Payload: payload}, Code: protocol.ErrAlreadyOwned},
		},
	})
	_ = idx.WriteTick(world.TickLogEntry{Tick: 4, Date: date, Paused: true, Digest: "abc"})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 3, Date: date, Kind: world.AuditBuy, ActionID: "a1", PlayerID: 1, PropertyID: 11, Amount: -800, Funds: 200})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 3, Date: date, Kind: world.AuditRent, PlayerID: 1, PropertyID: 11, Amount: 900, Funds: 1100})
	idx.RecordSnapshot("/data/snapshots/5.snap.zst", testSnapshot(5))
	idx.RecordYear(2023, 365, "/data/archives/year_2023/365.snap.zst", "seed")
	idx.RecordYear(0, 1, "ignored", "")

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st := idx.Stats(); st.WriteErrorTotal != 0 {
		t.Fatalf("write errors: %+v", st)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	db := idx.DB()

	count := func(q string, args ...any) int {
		t.Helper()
		var n int
		if err := db.QueryRow(q, args...).Scan(&n); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		return n
	}
	if n := count("SELECT COUNT(*) FROM ticks"); n != 2 {
		t.Fatalf("ticks=%d want 2", n)
	}
	if n := count("SELECT COUNT(*) FROM actions WHERE tick=3"); n != 2 {
		t.Fatalf("actions=%d want 2", n)
	}
	var code string
	if err := db.QueryRow("SELECT code FROM actions WHERE tick=3 AND seq=1").Scan(&code); err != nil || code != protocol.ErrAlreadyOwned {
		t.Fatalf("code=%q err=%v", code, err)
	}
	if n := count("SELECT COUNT(*) FROM audits WHERE property_id=?", 11); n != 2 {
		t.Fatalf("audits=%d want 2", n)
	}
	var kind string
	if err := db.QueryRow("SELECT kind FROM audits WHERE tick=3 AND seq=1").Scan(&kind); err != nil || kind != world.AuditRent {
		t.Fatalf("audit seq 1 kind=%q err=%v", kind, err)
	}
	var owned, pending int
	if err := db.QueryRow("SELECT owned, pending_upgrades FROM snapshots WHERE tick=5").Scan(&owned, &pending); err != nil {
		t.Fatalf("snapshot row: %v", err)
	}
	if owned != 1 || pending != 1 {
		t.Fatalf("owned=%d pending=%d", owned, pending)
	}
	var boost float64
	if err := db.QueryRow("SELECT rent_boost FROM snapshot_properties WHERE tick=5 AND property_id=11").Scan(&boost); err != nil || boost != 13 {
		t.Fatalf("rent_boost=%v err=%v", boost, err)
	}
	if n := count("SELECT COUNT(*) FROM years"); n != 1 {
		t.Fatalf("years=%d want 1", n)
	}
	var digest string
	if err := db.QueryRow("SELECT digest FROM catalogs WHERE name='seed'").Scan(&digest); err != nil || digest != seed.Digest {
		t.Fatalf("seed digest=%q err=%v", digest, err)
	}
	var ver string
	if err := db.QueryRow("SELECT value FROM meta WHERE key='schema_version'").Scan(&ver); err != nil || ver != schemaVersion {
		t.Fatalf("schema_version=%q err=%v", ver, err)
	}
}

func TestIndex_DropsWhenQueueFull(t *testing.T) {
	// No loop goroutine drains this queue.
	idx := &Index{d: sqliteDialect, ch: make(chan req, 1)}
	_ = idx.WriteTick(world.TickLogEntry{Tick: 1})
	_ = idx.WriteTick(world.TickLogEntry{Tick: 2})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 2})
	idx.RecordSnapshot("p", testSnapshot(2))
	idx.RecordYear(2023, 2, "p", "")

	st := idx.Stats()
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats: %+v", st)
	}
	if st.DropTickTotal != 1 || st.DropAuditTotal != 1 || st.DropSnapshotTotal != 1 || st.DropYearTotal != 1 {
		t.Fatalf("drop stats: %+v", st)
	}
}

func TestIndex_NilIsNoop(t *testing.T) {
	var idx *Index
	if err := idx.WriteTick(world.TickLogEntry{Tick: 1}); err != nil {
		t.Fatalf("nil WriteTick: %v", err)
	}
	idx.RecordSnapshot("p", testSnapshot(1))
	if idx.Stats().Backend != "none" {
		t.Fatalf("nil backend should be none")
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}

func TestDialect_Rebind(t *testing.T) {
	q := "INSERT INTO t(a,b) VALUES(?,?) -- {int}"
	if got := sqliteDialect.q(q); got != "INSERT INTO t(a,b) VALUES(?,?) -- INTEGER" {
		t.Fatalf("sqlite q=%q", got)
	}
	if got := postgresDialect.q(q); got != "INSERT INTO t(a,b) VALUES($1,$2) -- BIGINT" {
		t.Fatalf("postgres q=%q", got)
	}
}

func TestPostgresIndex(t *testing.T) {
	dsn := os.Getenv("CD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CD_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	idx, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tick := uint64(time.Now().UnixNano())
	_ = idx.WriteTick(world.TickLogEntry{Tick: tick >> 1, Date: time.Now().UTC(), Digest: "pg"})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st := idx.Stats(); st.WriteErrorTotal != 0 {
		t.Fatalf("write errors: %+v", st)
	}
}
