package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultSeed(t *testing.T) {
	s, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if !s.Start.Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start=%v", s.Start)
	}
	if s.Player.ID != 1 || s.Player.Funds != 10000 || s.ClockID != 0 {
		t.Fatalf("player/clock mismatch: %+v clock=%d", s.Player, s.ClockID)
	}
	if len(s.Neighborhoods) != 5 {
		t.Fatalf("neighborhoods=%d want 5", len(s.Neighborhoods))
	}
	if got := strings.Join(s.PathSetNames(), ","); got != "commercial,residential" {
		t.Fatalf("path sets=%s", got)
	}
	for _, set := range s.UpgradePathSets {
		if len(set) != 3 {
			t.Fatalf("expected 3 paths per set, got %d", len(set))
		}
		for _, p := range set {
			for i, u := range p.Upgrades {
				if u.Level != i+1 {
					t.Fatalf("path %s upgrade %s level=%d want %d", p.Name, u.ID, u.Level, i+1)
				}
			}
		}
	}
	if len(s.Digest) != 64 {
		t.Fatalf("digest=%q", s.Digest)
	}
}

func TestParse_Rejects(t *testing.T) {
	base := `
start_date: "2023-01-01"
clock_id: 0
player: {id: 1, funds: 100}
upgrade_path_sets:
  residential:
    - name: P
      upgrades:
        - {id: p-1, name: One, cost: 10, rent_increase: 1, days_to_complete: 1}
neighborhoods:
  - id: 10
    name: N
    rent_boost_threshold: 50
    rent_boost_percent: 10
    properties:
`
	cases := map[string]string{
		"duplicate id":     base + "      - {id: 1, name: A, type: Residential, subtype: Condo, base_rent: 1, price: 1}\n",
		"bad subtype":      base + "      - {id: 11, name: A, type: Residential, subtype: Castle, base_rent: 1, price: 1}\n",
		"type mismatch":    base + "      - {id: 11, name: A, type: Commercial, subtype: Condo, base_rent: 1, price: 1}\n",
		"unknown path set": base + "      - {id: 11, name: A, type: Residential, subtype: Condo, base_rent: 1, price: 1, upgrade_paths: nope}\n",
		"bad date":         strings.Replace(base, "2023-01-01", "Jan 1", 1),
		"negative speed":   "speed_multiplier: -5\n" + base,
		"NaN speed":        "speed_multiplier: .nan\n" + base,
		"huge speed":       "speed_multiplier: 1e9\n" + base,
		"threshold > 100":  strings.Replace(base, "rent_boost_threshold: 50", "rent_boost_threshold: 150", 1),
		"threshold < 0":    strings.Replace(base, "rent_boost_threshold: 50", "rent_boost_threshold: -1", 1),
		"negative boost":   strings.Replace(base, "rent_boost_percent: 10", "rent_boost_percent: -10", 1),
		"unknown prerequisite": strings.Replace(base,
			"        - {id: p-1, name: One, cost: 10, rent_increase: 1, days_to_complete: 1}\n",
			"        - {id: p-1, name: One, cost: 10, rent_increase: 1, days_to_complete: 1}\n"+
				"        - {id: p-2, name: Two, cost: 10, rent_increase: 1, days_to_complete: 1, prerequisite: nosuch}\n", 1),
		"self prerequisite": strings.Replace(base,
			"days_to_complete: 1}", "days_to_complete: 1, prerequisite: p-1}", 1),
		"circular prerequisites": strings.Replace(base,
			"        - {id: p-1, name: One, cost: 10, rent_increase: 1, days_to_complete: 1}\n",
			"        - {id: p-1, name: One, cost: 10, rent_increase: 1, days_to_complete: 1, prerequisite: p-2}\n"+
				"        - {id: p-2, name: Two, cost: 10, rent_increase: 1, days_to_complete: 1}\n", 1),
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	crossPath := strings.Replace(base,
		"        - {id: p-1, name: One, cost: 10, rent_increase: 1, days_to_complete: 1}\n",
		"        - {id: p-1, name: One, cost: 10, rent_increase: 1, days_to_complete: 1}\n"+
			"    - name: Q\n"+
			"      upgrades:\n"+
			"        - {id: q-1, name: Q1, cost: 10, rent_increase: 1, days_to_complete: 1, prerequisite: p-1}\n", 1)
	if _, err := Parse([]byte(crossPath + "      - {id: 11, name: A, type: Residential, subtype: Condo, base_rent: 1, price: 1}\n")); err != nil {
		t.Fatalf("cross-path prerequisite rejected: %v", err)
	}

	ok := base + "      - {id: 11, name: A, type: Residential, subtype: Condo, base_rent: 1, price: 1, upgrade_paths: residential}\n"
	if _, err := Parse([]byte(ok)); err != nil {
		t.Fatalf("valid seed rejected: %v", err)
	}
}

func TestLoad_FromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(p, defaultSeedYAML, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d, _ := Default()
	if s.Digest != d.Digest {
		t.Fatalf("digest differs for identical bytes")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
