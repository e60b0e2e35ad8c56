package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"citydev.io/internal/sim/entity"
	"citydev.io/internal/sim/tuning"
)

//go:embed default_seed.yaml
var defaultSeedYAML []byte

// Seed is the initial world: the clock, the player, neighborhoods and the
// properties in them, and the upgrade paths properties can take.
type Seed struct {
	StartDate       string               `yaml:"start_date"`
	SpeedMultiplier float64              `yaml:"speed_multiplier"`
	ClockID         int64                `yaml:"clock_id"`
	Player          PlayerDef            `yaml:"player"`
	UpgradePathSets map[string][]PathDef `yaml:"upgrade_path_sets"`
	Neighborhoods   []NeighborhoodDef    `yaml:"neighborhoods"`

	Start  time.Time `yaml:"-"`
	Digest string    `yaml:"-"`
}

type PlayerDef struct {
	ID    int64   `yaml:"id"`
	Funds float64 `yaml:"funds"`
}

type PathDef struct {
	Name     string       `yaml:"name"`
	Upgrades []UpgradeDef `yaml:"upgrades"`
}

type UpgradeDef struct {
	ID             string  `yaml:"id"`
	Name           string  `yaml:"name"`
	Level          int     `yaml:"level"`
	Cost           float64 `yaml:"cost"`
	RentIncrease   float64 `yaml:"rent_increase"` // percentage points of base rent
	DaysToComplete int     `yaml:"days_to_complete"`
	Prerequisite   string  `yaml:"prerequisite"`
}

type NeighborhoodDef struct {
	ID                 int64         `yaml:"id"`
	Name               string        `yaml:"name"`
	RentBoostThreshold float64       `yaml:"rent_boost_threshold"`
	RentBoostPercent   float64       `yaml:"rent_boost_percent"`
	Properties         []PropertyDef `yaml:"properties"`
}

type PropertyDef struct {
	ID                 int64   `yaml:"id"`
	Name               string  `yaml:"name"`
	Address            string  `yaml:"address"`
	Description        string  `yaml:"description"`
	Type               string  `yaml:"type"`
	Subtype            string  `yaml:"subtype"`
	BaseRent           float64 `yaml:"base_rent"`
	Price              float64 `yaml:"price"`
	OccupancyRate      float64 `yaml:"occupancy_rate"`
	TenantSatisfaction float64 `yaml:"tenant_satisfaction"`
	// UpgradePaths names an entry of Seed.UpgradePathSets.
	UpgradePaths string `yaml:"upgrade_paths"`
}

// Default returns the built-in seed.
func Default() (*Seed, error) {
	return Parse(defaultSeedYAML)
}

func Load(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func Parse(raw []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	s.Digest = sha256Hex(raw)
	if s.SpeedMultiplier == 0 {
		s.SpeedMultiplier = 1
	}
	if !(s.SpeedMultiplier > 0) || s.SpeedMultiplier > tuning.MaxDaysPerTick {
		return nil, fmt.Errorf("seed: speed_multiplier must be in (0, %d], got %v", tuning.MaxDaysPerTick, s.SpeedMultiplier)
	}
	start, err := time.Parse("2006-01-02", s.StartDate)
	if err != nil {
		return nil, fmt.Errorf("seed: start_date: %w", err)
	}
	s.Start = start.UTC()

	for set, paths := range s.UpgradePathSets {
		seen := map[string]bool{}
		for pi := range paths {
			p := &paths[pi]
			if p.Name == "" {
				return nil, fmt.Errorf("seed: upgrade set %q: path with empty name", set)
			}
			for ui := range p.Upgrades {
				u := &p.Upgrades[ui]
				if u.ID == "" {
					return nil, fmt.Errorf("seed: path %q: upgrade %d has no id", p.Name, ui)
				}
				if seen[u.ID] {
					return nil, fmt.Errorf("seed: upgrade set %q: duplicate upgrade id %q", set, u.ID)
				}
				seen[u.ID] = true
				if u.Level == 0 {
					u.Level = ui + 1
				}
				if u.Cost < 0 || u.DaysToComplete < 0 {
					return nil, fmt.Errorf("seed: upgrade %q: negative cost or duration", u.ID)
				}
			}
		}
		if err := checkPrerequisites(paths); err != nil {
			return nil, fmt.Errorf("seed: upgrade set %q: %w", set, err)
		}
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return &s, nil
}

func (s *Seed) validate() error {
	ids := map[int64]string{}
	claim := func(id int64, what string) error {
		if prev, ok := ids[id]; ok {
			return fmt.Errorf("id %d used by both %s and %s", id, prev, what)
		}
		ids[id] = what
		return nil
	}
	if err := claim(s.ClockID, "clock"); err != nil {
		return err
	}
	if err := claim(s.Player.ID, "player"); err != nil {
		return err
	}
	for _, n := range s.Neighborhoods {
		if err := claim(n.ID, "neighborhood "+n.Name); err != nil {
			return err
		}
		if !(n.RentBoostThreshold >= 0 && n.RentBoostThreshold <= 100) {
			return fmt.Errorf("neighborhood %d: rent_boost_threshold must be in [0,100], got %v", n.ID, n.RentBoostThreshold)
		}
		if !(n.RentBoostPercent >= 0) || math.IsInf(n.RentBoostPercent, 0) {
			return fmt.Errorf("neighborhood %d: rent_boost_percent must be >= 0, got %v", n.ID, n.RentBoostPercent)
		}
		for _, p := range n.Properties {
			if err := claim(p.ID, "property "+p.Name); err != nil {
				return err
			}
			typ, ok := entity.TypeOf(entity.PropertySubtype(p.Subtype))
			if !ok {
				return fmt.Errorf("property %d: unknown subtype %q", p.ID, p.Subtype)
			}
			if p.Type != "" && entity.PropertyType(p.Type) != typ {
				return fmt.Errorf("property %d: subtype %s is %s, not %s", p.ID, p.Subtype, typ, p.Type)
			}
			if p.UpgradePaths != "" {
				if _, ok := s.UpgradePathSets[p.UpgradePaths]; !ok {
					return fmt.Errorf("property %d: unknown upgrade path set %q", p.ID, p.UpgradePaths)
				}
			}
			if p.Price < 0 || p.BaseRent < 0 {
				return fmt.Errorf("property %d: negative price or rent", p.ID)
			}
		}
	}
	return nil
}

// checkPrerequisites requires every prerequisite in a set to name an upgrade
// of that set and the requirement graph to be acyclic. A definition without
// an explicit prerequisite depends on the previous level of its path.
func checkPrerequisites(paths []PathDef) error {
	requires := map[string]string{}
	for _, p := range paths {
		for i, u := range p.Upgrades {
			req := u.Prerequisite
			if req == "" && i > 0 {
				req = p.Upgrades[i-1].ID
			}
			requires[u.ID] = req
		}
	}
	for id, req := range requires {
		if req == "" {
			continue
		}
		if _, ok := requires[req]; !ok {
			return fmt.Errorf("upgrade %q: unknown prerequisite %q", id, req)
		}
	}
	// Each id has at most one prerequisite, so a cycle shows up as a walk
	// longer than the number of upgrades.
	for id := range requires {
		cur := id
		for steps := 0; requires[cur] != ""; steps++ {
			if steps >= len(requires) {
				return fmt.Errorf("upgrade %q: circular prerequisites", id)
			}
			cur = requires[cur]
		}
	}
	return nil
}

// PathSetNames returns the upgrade path set names in sorted order.
func (s *Seed) PathSetNames() []string {
	out := make([]string, 0, len(s.UpgradePathSets))
	for name := range s.UpgradePathSets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
