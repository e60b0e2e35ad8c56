package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	persistlog "citydev.io/internal/persistence/log"
	"citydev.io/internal/persistence/snapshot"
	"citydev.io/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// snapshotSummary is what inspect prints for a snapshot file.
type snapshotSummary struct {
	Path             string  `json:"path"`
	WorldID          string  `json:"world_id"`
	Tick             uint64  `json:"tick"`
	Date             string  `json:"date"`
	SeedDigest       string  `json:"seed_digest"`
	Paused           bool    `json:"paused"`
	Speed            float64 `json:"speed"`
	Funds            float64 `json:"funds"`
	Properties       int     `json:"properties"`
	Owned            int     `json:"owned"`
	Neighborhoods    int     `json:"neighborhoods"`
	PendingUpgrades  int     `json:"pending_upgrades"`
	MonthlyRent      float64 `json:"monthly_rent"`
	PortfolioValue   float64 `json:"portfolio_value"`
	ActionsProcessed uint64  `json:"actions_total"`
}

func summarize(path string, s snapshot.SnapshotV1) snapshotSummary {
	out := snapshotSummary{
		Path:             path,
		WorldID:          s.Header.WorldID,
		Tick:             s.Header.Tick,
		Date:             s.Clock.CurrentDate.Format("2006-01-02"),
		SeedDigest:       s.SeedDigest,
		Paused:           s.Clock.IsPaused,
		Speed:            s.Clock.SpeedMultiplier,
		Funds:            s.Player.Funds,
		Properties:       len(s.Properties),
		Neighborhoods:    len(s.Neighborhoods),
		ActionsProcessed: s.Counters.ActionsTotal,
	}
	for _, p := range s.Properties {
		for _, u := range p.Upgrades {
			if !u.Applied {
				out.PendingUpgrades++
			}
		}
		if !p.Owned {
			continue
		}
		out.Owned++
		out.PortfolioValue += p.Price
		boost := p.UpgradeRentBoost + p.NeighborhoodRentBoost
		out.MonthlyRent += p.BaseRent * (1 + boost/100) * p.OccupancyRate
	}
	return out
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "city_1", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		path = latestSnapshot(filepath.Join(*dataDir, "worlds", *worldID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(os.Stdout, summarize(path, snap))
}

type auditFilter struct {
	PropertyID int64
	Kind       string
	SinceTick  uint64
	ToTick     uint64
}

func (f auditFilter) match(e world.AuditEntry) bool {
	if f.PropertyID != 0 && e.PropertyID != f.PropertyID {
		return false
	}
	if f.Kind != "" && !strings.EqualFold(e.Kind, f.Kind) {
		return false
	}
	if e.Tick < f.SinceTick {
		return false
	}
	if f.ToTick != 0 && e.Tick > f.ToTick {
		return false
	}
	return true
}

// readAudit streams matching audit entries from every segment under
// worldDir, oldest first, stopping after limit matches when limit > 0.
func readAudit(worldDir string, f auditFilter, limit int, fn func(world.AuditEntry) error) error {
	paths, err := persistlog.Segments(worldDir, "audit")
	if err != nil {
		return err
	}
	errLimit := fmt.Errorf("limit")
	n := 0
	for _, p := range paths {
		err := persistlog.ReadJSONL(p, func(line []byte) error {
			var e world.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(p), err)
			}
			if !f.match(e) {
				return nil
			}
			if err := fn(e); err != nil {
				return err
			}
			n++
			if limit > 0 && n >= limit {
				return errLimit
			}
			return nil
		})
		if err == errLimit {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "city_1", "world id")
	property := fs.Int64("property", 0, "property id filter")
	kind := fs.String("kind", "", "audit kind filter (BUY, SELL, UPGRADE_PURCHASE, UPGRADE_COMPLETE, RENT)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	limit := fs.Int("limit", 0, "max entries (0 = all)")
	_ = fs.Parse(args)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	f := auditFilter{PropertyID: *property, Kind: strings.TrimSpace(*kind), SinceTick: *sinceTick, ToTick: *toTick}
	err := readAudit(worldDir, f, *limit, func(e world.AuditEntry) error {
		printJSON(os.Stdout, e)
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
