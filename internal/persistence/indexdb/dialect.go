package indexdb

import (
	"strconv"
	"strings"
)

// dialect captures the few places sqlite and postgres disagree. Queries are
// written with '?' placeholders and {int}/{real}/{text} column types.
type dialect struct {
	name    string
	driver  string
	pragmas []string
	types   *strings.Replacer
	dollar  bool
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	pragmas: []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	},
	types: strings.NewReplacer("{int}", "INTEGER", "{real}", "REAL", "{text}", "TEXT"),
}

var postgresDialect = dialect{
	name:   "postgres",
	driver: "pgx",
	types:  strings.NewReplacer("{int}", "BIGINT", "{real}", "DOUBLE PRECISION", "{text}", "TEXT"),
	dollar: true,
}

// q rewrites a query for the dialect.
func (d dialect) q(query string) string {
	query = d.types.Replace(query)
	if !d.dollar {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

var schemaStmts = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		key {text} PRIMARY KEY,
		value {text} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS catalogs (
		name {text} PRIMARY KEY,
		digest {text} NOT NULL,
		json {text} NOT NULL,
		updated_at {text} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ticks (
		tick {int} PRIMARY KEY,
		sim_date {text} NOT NULL,
		paused {int} NOT NULL,
		actions {int} NOT NULL,
		digest {text} NOT NULL,
		raw_json {text} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS actions (
		tick {int} NOT NULL,
		seq {int} NOT NULL,
		action_id {text} NOT NULL,
		action {text} NOT NULL,
		code {text} NOT NULL,
		payload_json {text} NOT NULL,
		PRIMARY KEY (tick, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_actions_action_tick ON actions(action, tick)`,
	`CREATE TABLE IF NOT EXISTS audits (
		tick {int} NOT NULL,
		seq {int} NOT NULL,
		kind {text} NOT NULL,
		action_id {text} NOT NULL,
		player_id {int} NOT NULL,
		property_id {int} NOT NULL,
		upgrade_id {text} NOT NULL,
		amount {real} NOT NULL,
		funds {real} NOT NULL,
		sim_date {text} NOT NULL,
		raw_json {text} NOT NULL,
		PRIMARY KEY (tick, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audits_property_tick ON audits(property_id, tick)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		tick {int} PRIMARY KEY,
		path {text} NOT NULL,
		sim_date {text} NOT NULL,
		seed_digest {text} NOT NULL,
		funds {real} NOT NULL,
		properties {int} NOT NULL,
		owned {int} NOT NULL,
		pending_upgrades {int} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS snapshot_properties (
		tick {int} NOT NULL,
		property_id {int} NOT NULL,
		name {text} NOT NULL,
		neighborhood_id {int} NOT NULL,
		owned {int} NOT NULL,
		price {real} NOT NULL,
		base_rent {real} NOT NULL,
		rent_boost {real} NOT NULL,
		occupancy_rate {real} NOT NULL,
		tenant_satisfaction {real} NOT NULL,
		upgrade_level {int} NOT NULL,
		PRIMARY KEY (tick, property_id)
	)`,
	`CREATE TABLE IF NOT EXISTS years (
		year {int} PRIMARY KEY,
		end_tick {int} NOT NULL,
		snapshot_path {text} NOT NULL,
		seed_digest {text} NOT NULL,
		recorded_at {text} NOT NULL
	)`,
}

const (
	upsertMeta = `INSERT INTO meta(key,value) VALUES(?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`
	upsertCatalog = `INSERT INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET digest=excluded.digest, json=excluded.json, updated_at=excluded.updated_at`
	upsertTick = `INSERT INTO ticks(tick,sim_date,paused,actions,digest,raw_json) VALUES(?,?,?,?,?,?)
		ON CONFLICT(tick) DO UPDATE SET sim_date=excluded.sim_date, paused=excluded.paused, actions=excluded.actions, digest=excluded.digest, raw_json=excluded.raw_json`
	upsertAction = `INSERT INTO actions(tick,seq,action_id,action,code,payload_json) VALUES(?,?,?,?,?,?)
		ON CONFLICT(tick,seq) DO UPDATE SET action_id=excluded.action_id, action=excluded.action, code=excluded.code, payload_json=excluded.payload_json`
	upsertAudit = `INSERT INTO audits(tick,seq,kind,action_id,player_id,property_id,upgrade_id,amount,funds,sim_date,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(tick,seq) DO UPDATE SET kind=excluded.kind, action_id=excluded.action_id, player_id=excluded.player_id, property_id=excluded.property_id, upgrade_id=excluded.upgrade_id, amount=excluded.amount, funds=excluded.funds, sim_date=excluded.sim_date, raw_json=excluded.raw_json`
	upsertSnapshot = `INSERT INTO snapshots(tick,path,sim_date,seed_digest,funds,properties,owned,pending_upgrades) VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(tick) DO UPDATE SET path=excluded.path, sim_date=excluded.sim_date, seed_digest=excluded.seed_digest, funds=excluded.funds, properties=excluded.properties, owned=excluded.owned, pending_upgrades=excluded.pending_upgrades`
	upsertSnapshotProperty = `INSERT INTO snapshot_properties(tick,property_id,name,neighborhood_id,owned,price,base_rent,rent_boost,occupancy_rate,tenant_satisfaction,upgrade_level) VALUES(?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(tick,property_id) DO UPDATE SET name=excluded.name, neighborhood_id=excluded.neighborhood_id, owned=excluded.owned, price=excluded.price, base_rent=excluded.base_rent, rent_boost=excluded.rent_boost, occupancy_rate=excluded.occupancy_rate, tenant_satisfaction=excluded.tenant_satisfaction, upgrade_level=excluded.upgrade_level`
	upsertYear = `INSERT INTO years(year,end_tick,snapshot_path,seed_digest,recorded_at) VALUES(?,?,?,?,?)
		ON CONFLICT(year) DO UPDATE SET end_tick=excluded.end_tick, snapshot_path=excluded.snapshot_path, seed_digest=excluded.seed_digest, recorded_at=excluded.recorded_at`
)
