package snapshot

import (
	"path/filepath"
	"testing"
	"time"
)

func sampleSnapshot() SnapshotV1 {
	d := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	return SnapshotV1{
		Header:      Header{Version: Version, SchemaVersion: 2, WorldID: "city_1", Tick: 41, Date: d},
		SeedDigest:  "abc",
		DaysPerTick: 1,
		Clock:       ClockV1{ID: 0, CurrentDate: d, SpeedMultiplier: 2, NewMonth: true, MonthsCrossed: 1},
		Player:      PlayerV1{ID: 1, Funds: 1234.5, PropertyIDs: []int64{11}},
		Properties: []PropertyV1{{
			ID: 11, Name: "Maplewood Lane House", Type: "Residential", Subtype: "SingleFamily",
			Owned: true, PlayerID: 1, Price: 300000, NeighborhoodID: 10, UpgradeLevel: 1,
			Upgrades: []UpgradeV1{{ID: "cozy-1", Path: "Cozy Enhancements", Applied: true}},
			Paths:    []UpgradePathV1{{Name: "Cozy Enhancements", Upgrades: []UpgradeV1{{ID: "cozy-1"}, {ID: "cozy-2"}}}},
		}},
		Neighborhoods: []NeighborhoodV1{{ID: 10, Name: "Cedar Grove", PropertyIDs: []int64{11}, RentBoostThreshold: 50, RentBoostPercent: 10}},
		Counters:      CountersV1{NextEntity: 12, ActionsTotal: 3},
	}
}

func TestWriteReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshots", FileName(41))
	in := sampleSnapshot()
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if out.Header.Tick != 41 || out.Header.WorldID != "city_1" {
		t.Fatalf("header mismatch: %+v", out.Header)
	}
	if out.Player.Funds != 1234.5 || len(out.Player.PropertyIDs) != 1 {
		t.Fatalf("player mismatch: %+v", out.Player)
	}
	if len(out.Properties) != 1 || len(out.Properties[0].Paths[0].Upgrades) != 2 || !out.Properties[0].Upgrades[0].Applied {
		t.Fatalf("property mismatch: %+v", out.Properties)
	}
	if !out.Clock.CurrentDate.Equal(in.Clock.CurrentDate) {
		t.Fatalf("clock mismatch: %+v", out.Clock)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.Tick != 41 || h.SchemaVersion != 2 {
		t.Fatalf("ReadHeader mismatch: %+v", h)
	}
}

func TestReadSnapshot_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName(1))
	in := sampleSnapshot()
	in.Header.Version = 99
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
