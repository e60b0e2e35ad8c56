// Package archive keeps a copy of the snapshot that closes each simulated
// calendar year.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"citydev.io/internal/persistence/snapshot"
)

type YearArchiveMeta struct {
	Year            int     `json:"year"`
	EndTick         uint64  `json:"end_tick"`
	SimDate         string  `json:"sim_date"`
	SeedDigest      string  `json:"seed_digest"`
	Snapshot        string  `json:"snapshot"`
	CreatedAt       string  `json:"created_at"`
	Funds           float64 `json:"funds"`
	OwnedProperties int     `json:"owned_properties"`
}

// ClosedYear reports the calendar year a snapshot closes. A snapshot closes a
// year when its tick moved the clock across January 1st; at high speed one
// tick may skip several years and only the last closed one is reported.
func ClosedYear(snap snapshot.SnapshotV1) (int, bool) {
	c := snap.Clock
	if c.IsPaused || c.LastUpdated.IsZero() {
		return 0, false
	}
	if c.CurrentDate.Year() <= c.LastUpdated.Year() {
		return 0, false
	}
	return c.CurrentDate.Year() - 1, true
}

// ArchiveYearSnapshot copies a year-closing snapshot into
// worldDir/archives/year_<YYYY>/ next to a meta.json.
func ArchiveYearSnapshot(worldDir, snapshotPath string, snap snapshot.SnapshotV1) (year int, archivedPath string, archived bool, err error) {
	year, ok := ClosedYear(snap)
	if !ok {
		return 0, "", false, nil
	}

	archiveDir := filepath.Join(worldDir, "archives", fmt.Sprintf("year_%04d", year))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, "", false, err
	}
	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	owned := 0
	for _, p := range snap.Properties {
		if p.Owned {
			owned++
		}
	}
	meta := YearArchiveMeta{
		Year:            year,
		EndTick:         snap.Header.Tick,
		SimDate:         snap.Clock.CurrentDate.UTC().Format(time.RFC3339),
		SeedDigest:      snap.SeedDigest,
		Snapshot:        filepath.Base(dst),
		CreatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		Funds:           snap.Player.Funds,
		OwnedProperties: owned,
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return 0, "", false, err
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return 0, "", false, err
	}
	return year, dst, true, nil
}

// ReadMeta loads the meta.json of an archived year.
func ReadMeta(worldDir string, year int) (YearArchiveMeta, error) {
	var m YearArchiveMeta
	b, err := os.ReadFile(filepath.Join(worldDir, "archives", fmt.Sprintf("year_%04d", year), "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
