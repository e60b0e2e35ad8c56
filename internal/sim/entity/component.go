package entity

import "time"

// ComponentKind tags a component variant. The set is closed: only the kinds
// declared here can be attached to an entity.
type ComponentKind string

const (
	KindGameTime     ComponentKind = "GameTime"
	KindPlayer       ComponentKind = "Player"
	KindProperty     ComponentKind = "Property"
	KindNeighborhood ComponentKind = "Neighborhood"
)

// Component is implemented only by the component structs in this package.
type Component interface {
	Kind() ComponentKind
	clone() Component
}

type GameTime struct {
	CurrentDate     time.Time `json:"CurrentDate"`
	IsPaused        bool      `json:"IsPaused"`
	SpeedMultiplier float64   `json:"SpeedMultiplier"`
	NewMonth        bool      `json:"NewMonth"`
	MonthsCrossed   int       `json:"MonthsCrossed"`
	LastUpdated     time.Time `json:"LastUpdated"`
}

func (*GameTime) Kind() ComponentKind { return KindGameTime }

func (g *GameTime) clone() Component {
	c := *g
	return &c
}

type Player struct {
	ID          ID      `json:"ID"`
	Funds       float64 `json:"Funds"`
	PropertyIDs []ID    `json:"PropertyIDs"`
}

func (*Player) Kind() ComponentKind { return KindPlayer }

func (p *Player) clone() Component {
	c := *p
	c.PropertyIDs = append(make([]ID, 0, len(p.PropertyIDs)), p.PropertyIDs...)
	return &c
}

// Owns reports whether id is in the player's owned set.
func (p *Player) Owns(id ID) bool {
	for _, x := range p.PropertyIDs {
		if x == id {
			return true
		}
	}
	return false
}

// RemoveProperty drops id from the owned set, keeping order.
func (p *Player) RemoveProperty(id ID) {
	out := p.PropertyIDs[:0]
	for _, x := range p.PropertyIDs {
		if x != id {
			out = append(out, x)
		}
	}
	p.PropertyIDs = out
}

type PropertyType string

const (
	Residential PropertyType = "Residential"
	Commercial  PropertyType = "Commercial"
)

type PropertySubtype string

const (
	SingleFamily PropertySubtype = "SingleFamily"
	Townhome     PropertySubtype = "Townhome"
	Multifamily  PropertySubtype = "Multifamily"
	Apartment    PropertySubtype = "Apartment"
	Condo        PropertySubtype = "Condo"

	OfficeSpace        PropertySubtype = "OfficeSpace"
	RetailStore        PropertySubtype = "RetailStore"
	Warehouse          PropertySubtype = "Warehouse"
	Restaurant         PropertySubtype = "Restaurant"
	Hotel              PropertySubtype = "Hotel"
	Mall               PropertySubtype = "Mall"
	Industrial         PropertySubtype = "Industrial"
	Clinic             PropertySubtype = "Clinic"
	DataCenter         PropertySubtype = "DataCenter"
	Bar                PropertySubtype = "Bar"
	NightClub          PropertySubtype = "NightClub"
	Museum             PropertySubtype = "Museum"
	Amusement          PropertySubtype = "Amusement"
	Factory            PropertySubtype = "Factory"
	DistributionCenter PropertySubtype = "DistributionCenter"
	Cafe               PropertySubtype = "Cafe"
	FurnitureStore     PropertySubtype = "FurnitureStore"
	Gym                PropertySubtype = "Gym"
	Arcade             PropertySubtype = "Arcade"
	ElectronicsStore   PropertySubtype = "ElectronicsStore"
	Salon              PropertySubtype = "Salon"
	Bakery             PropertySubtype = "Bakery"
)

var subtypeType = map[PropertySubtype]PropertyType{
	SingleFamily: Residential,
	Townhome:     Residential,
	Multifamily:  Residential,
	Apartment:    Residential,
	Condo:        Residential,

	OfficeSpace:        Commercial,
	RetailStore:        Commercial,
	Warehouse:          Commercial,
	Restaurant:         Commercial,
	Hotel:              Commercial,
	Mall:               Commercial,
	Industrial:         Commercial,
	Clinic:             Commercial,
	DataCenter:         Commercial,
	Bar:                Commercial,
	NightClub:          Commercial,
	Museum:             Commercial,
	Amusement:          Commercial,
	Factory:            Commercial,
	DistributionCenter: Commercial,
	Cafe:               Commercial,
	FurnitureStore:     Commercial,
	Gym:                Commercial,
	Arcade:             Commercial,
	ElectronicsStore:   Commercial,
	Salon:              Commercial,
	Bakery:             Commercial,
}

// TypeOf returns the property type a subtype belongs to.
func TypeOf(s PropertySubtype) (PropertyType, bool) {
	t, ok := subtypeType[s]
	return t, ok
}

// Upgrade is both an upgrade definition (inside Property.UpgradePaths) and a
// purchased instance (inside Property.Upgrades).
type Upgrade struct {
	ID             string    `json:"ID"`
	Name           string    `json:"Name"`
	Path           string    `json:"Path"`
	Level          int       `json:"Level,omitempty"`
	Cost           float64   `json:"Cost"`
	RentIncrease   float64   `json:"RentIncrease"`
	DaysToComplete int       `json:"DaysToComplete"`
	Prerequisite   string    `json:"Prerequisite,omitempty"`
	PurchaseDate   time.Time `json:"PurchaseDate,omitzero"`
	CompletionDate time.Time `json:"CompletionDate,omitzero"`
	Applied        bool      `json:"Applied"`
}

type Property struct {
	ID          ID              `json:"ID"`
	Name        string          `json:"Name"`
	Address     string          `json:"Address,omitempty"`
	Description string          `json:"Description,omitempty"`
	Type        PropertyType    `json:"Type"`
	Subtype     PropertySubtype `json:"Subtype"`

	BaseRent float64 `json:"BaseRent"`
	// RentBoost is UpgradeRentBoost + NeighborhoodRentBoost, in percent of BaseRent.
	RentBoost             float64 `json:"RentBoost"`
	UpgradeRentBoost      float64 `json:"UpgradeRentBoost"`
	NeighborhoodRentBoost float64 `json:"NeighborhoodRentBoost"`

	Owned        bool      `json:"Owned"`
	PlayerID     ID        `json:"PlayerID"`
	Price        float64   `json:"Price"`
	PurchaseDate time.Time `json:"PurchaseDate,omitzero"`

	OccupancyRate      float64 `json:"OccupancyRate"`
	TenantSatisfaction float64 `json:"TenantSatisfaction"`

	NeighborhoodID ID                   `json:"NeighborhoodID"`
	UpgradeLevel   int                  `json:"UpgradeLevel"`
	Upgrades       []Upgrade            `json:"Upgrades"`
	UpgradePaths   map[string][]Upgrade `json:"UpgradePaths"`
}

func (*Property) Kind() ComponentKind { return KindProperty }

func (p *Property) clone() Component {
	c := *p
	// Copies are never nil so encoded state always carries [] and {}.
	c.Upgrades = append(make([]Upgrade, 0, len(p.Upgrades)), p.Upgrades...)
	c.UpgradePaths = make(map[string][]Upgrade, len(p.UpgradePaths))
	for name, defs := range p.UpgradePaths {
		c.UpgradePaths[name] = append(make([]Upgrade, 0, len(defs)), defs...)
	}
	return &c
}

// RecomputeRentBoost restores RentBoost from its two sources.
func (p *Property) RecomputeRentBoost() {
	p.RentBoost = p.UpgradeRentBoost + p.NeighborhoodRentBoost
}

// EffectiveRent is the monthly rent at the current occupancy.
func (p *Property) EffectiveRent() float64 {
	return p.BaseRent * (1 + p.RentBoost/100) * p.OccupancyRate
}

// UpgradesOnPath counts queued and applied upgrades on a path.
func (p *Property) UpgradesOnPath(path string) int {
	n := 0
	for _, u := range p.Upgrades {
		if u.Path == path {
			n++
		}
	}
	return n
}

// UpgradeApplied reports whether an upgrade with the given id has completed.
func (p *Property) UpgradeApplied(id string) bool {
	for _, u := range p.Upgrades {
		if u.ID == id && u.Applied {
			return true
		}
	}
	return false
}

type Neighborhood struct {
	ID                   ID      `json:"ID"`
	Name                 string  `json:"Name"`
	PropertyIDs          []ID    `json:"PropertyIDs"`
	AveragePropertyValue float64 `json:"AveragePropertyValue"`
	// RentBoostThreshold is the percentage of member properties that must be upgraded.
	RentBoostThreshold float64 `json:"RentBoostThreshold"`
	RentBoostPercent   float64 `json:"RentBoostPercent"`
}

func (*Neighborhood) Kind() ComponentKind { return KindNeighborhood }

func (n *Neighborhood) clone() Component {
	c := *n
	c.PropertyIDs = append(make([]ID, 0, len(n.PropertyIDs)), n.PropertyIDs...)
	return &c
}
