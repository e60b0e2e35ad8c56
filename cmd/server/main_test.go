package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"citydev.io/internal/persistence/archive"
	"citydev.io/internal/persistence/snapshot"
	"citydev.io/internal/sim/world"
)

func TestLatestSnapshot_PicksHighestTick(t *testing.T) {
	worldDir := t.TempDir()
	dir := filepath.Join(worldDir, "snapshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if got := latestSnapshot(worldDir); got != "" {
		t.Fatalf("empty dir got %q", got)
	}
	for _, name := range []string{"9.snap.zst", "100.snap.zst", "20.snap.zst", "abc.snap.zst", "300.snap.zst.tmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if got := latestSnapshot(worldDir); got != filepath.Join(dir, "100.snap.zst") {
		t.Fatalf("latest=%q", got)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CD_TEST_BOOL", "true")
	t.Setenv("CD_TEST_INT", "-3")
	t.Setenv("CD_TEST_FLOAT", "2.5")
	if !envBool("CD_TEST_BOOL", false) || envBool("CD_TEST_UNSET", false) {
		t.Fatalf("envBool")
	}
	if envInt("CD_TEST_INT", 7) != 7 {
		t.Fatalf("envInt should reject non-positive values")
	}
	if envFloat("CD_TEST_FLOAT", 1) != 2.5 {
		t.Fatalf("envFloat")
	}
	if got := splitList(" a, ,b "); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("splitList=%v", got)
	}
}

func TestOpenIndex_Backends(t *testing.T) {
	dir := t.TempDir()
	if idx, err := openIndex(context.Background(), dir, true); err != nil || idx != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}
	t.Setenv("CD_INDEX_BACKEND", "none")
	if idx, err := openIndex(context.Background(), dir, false); err != nil || idx != nil {
		t.Fatalf("none: idx=%v err=%v", idx, err)
	}
	t.Setenv("CD_INDEX_BACKEND", "postgres")
	if _, err := openIndex(context.Background(), dir, false); err == nil {
		t.Fatalf("postgres without dsn should fail")
	}
	t.Setenv("CD_INDEX_BACKEND", "sqlite")
	idx, err := openIndex(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer idx.Close()
	if _, err := os.Stat(filepath.Join(dir, "index", "world.sqlite")); err != nil {
		t.Fatalf("sqlite file: %v", err)
	}
}

type errTickLogger struct{ n int }

func (e *errTickLogger) WriteTick(world.TickLogEntry) error {
	e.n++
	return errors.New("disk full")
}

func TestMultiTickLogger_WritesAllAndReportsFirstError(t *testing.T) {
	a, b := &errTickLogger{}, &errTickLogger{}
	m := multiTickLogger{a, nil, b}
	if err := m.WriteTick(world.TickLogEntry{Tick: 1}); err == nil {
		t.Fatalf("expected error")
	}
	if a.n != 1 || b.n != 1 {
		t.Fatalf("writes a=%d b=%d", a.n, b.n)
	}
}

func TestSnapshotWriter_WritesAndArchivesYearEnd(t *testing.T) {
	worldDir := t.TempDir()
	sw := &snapshotWriter{worldDir: worldDir, mirror: &mirrorRuntime{}}

	mid := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, WorldID: "city_1", Tick: 5},
		Clock: snapshot.ClockV1{
			LastUpdated: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
			CurrentDate: time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC),
		},
	}
	path, ok := sw.handle(mid)
	if !ok {
		t.Fatalf("write failed")
	}
	back, err := snapshot.ReadSnapshot(path)
	if err != nil || back.Header.Tick != 5 {
		t.Fatalf("read back tick=%d err=%v", back.Header.Tick, err)
	}
	if _, err := os.Stat(filepath.Join(worldDir, "archives")); !os.IsNotExist(err) {
		t.Fatalf("mid-year snapshot must not be archived")
	}

	end := mid
	end.Header.Tick = 214
	end.Clock.LastUpdated = time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	end.Clock.CurrentDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, ok := sw.handle(end); !ok {
		t.Fatalf("write failed")
	}
	meta, err := archive.ReadMeta(worldDir, 2023)
	if err != nil || meta.EndTick != 214 {
		t.Fatalf("meta=%+v err=%v", meta, err)
	}
}

func TestSnapshotWriter_DrainsOnCancel(t *testing.T) {
	worldDir := t.TempDir()
	sw := &snapshotWriter{worldDir: worldDir, mirror: &mirrorRuntime{}}
	ch := make(chan snapshot.SnapshotV1, 2)
	ch <- snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, Tick: 1}}
	ch <- snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, Tick: 2}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sw.run(ctx, ch)
	for _, tick := range []string{"1", "2"} {
		if _, err := os.Stat(filepath.Join(worldDir, "snapshots", tick+".snap.zst")); err != nil {
			t.Fatalf("snapshot %s not written: %v", tick, err)
		}
	}
}
