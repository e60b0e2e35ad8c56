package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const dbUsage = "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-tick T] [-property ID] [-limit N] snapshots|properties|ticks|actions|audits|years|catalogs"

type dbQuery struct {
	Tick       uint64
	PropertyID int64
	Action     string
	Limit      int
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	tick := fs.Uint64("tick", 0, "snapshot tick (optional; defaults to latest)")
	limit := fs.Int("limit", 20, "result limit")
	property := fs.Int64("property", 0, "property_id filter (audits, properties)")
	action := fs.String("action", "", "action filter (actions)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	err = runQuery(db, os.Stdout, q, dbQuery{Tick: *tick, PropertyID: *property, Action: strings.TrimSpace(*action), Limit: *limit})
	if err == errUnknownQuery {
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, dbUsage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

var errUnknownQuery = fmt.Errorf("unknown query")

func runQuery(db *sql.DB, w io.Writer, q string, opt dbQuery) error {
	if opt.Limit <= 0 {
		opt.Limit = 20
	}
	switch q {
	case "snapshots":
		return querySnapshots(db, w, opt)
	case "properties":
		return queryProperties(db, w, opt)
	case "ticks":
		return queryTicks(db, w, opt)
	case "actions":
		return queryActions(db, w, opt)
	case "audits":
		return queryAudits(db, w, opt)
	case "years":
		return queryYears(db, w, opt)
	case "catalogs":
		return queryCatalogs(db, w)
	default:
		return errUnknownQuery
	}
}

func querySnapshots(db *sql.DB, w io.Writer, opt dbQuery) error {
	rows, err := db.Query(`SELECT tick,path,sim_date,seed_digest,funds,properties,owned,pending_upgrades FROM snapshots ORDER BY tick DESC LIMIT ?`, opt.Limit)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			Tick            uint64  `json:"tick"`
			Path            string  `json:"path"`
			Date            string  `json:"sim_date"`
			SeedDigest      string  `json:"seed_digest"`
			Funds           float64 `json:"funds"`
			Properties      int     `json:"properties"`
			Owned           int     `json:"owned"`
			PendingUpgrades int     `json:"pending_upgrades"`
		}
		if err := rows.Scan(&r.Tick, &r.Path, &r.Date, &r.SeedDigest, &r.Funds, &r.Properties, &r.Owned, &r.PendingUpgrades); err != nil {
			return err
		}
		printJSON(w, r)
	}
	return rows.Err()
}

func queryProperties(db *sql.DB, w io.Writer, opt dbQuery) error {
	tick := opt.Tick
	if tick == 0 {
		t, err := latestSnapshotTick(db)
		if err != nil {
			return err
		}
		tick = t
	}
	query := `SELECT property_id,name,neighborhood_id,owned,price,base_rent,rent_boost,occupancy_rate,tenant_satisfaction,upgrade_level FROM snapshot_properties WHERE tick=?`
	qargs := []any{tick}
	if opt.PropertyID != 0 {
		query += ` AND property_id=?`
		qargs = append(qargs, opt.PropertyID)
	}
	query += ` ORDER BY property_id`
	rows, err := db.Query(query, qargs...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			Tick               uint64  `json:"tick"`
			PropertyID         int64   `json:"property_id"`
			Name               string  `json:"name"`
			NeighborhoodID     int64   `json:"neighborhood_id"`
			Owned              bool    `json:"owned"`
			Price              float64 `json:"price"`
			BaseRent           float64 `json:"base_rent"`
			RentBoost          float64 `json:"rent_boost"`
			OccupancyRate      float64 `json:"occupancy_rate"`
			TenantSatisfaction float64 `json:"tenant_satisfaction"`
			UpgradeLevel       int     `json:"upgrade_level"`
		}
		var owned int
		if err := rows.Scan(&r.PropertyID, &r.Name, &r.NeighborhoodID, &owned, &r.Price, &r.BaseRent, &r.RentBoost, &r.OccupancyRate, &r.TenantSatisfaction, &r.UpgradeLevel); err != nil {
			return err
		}
		r.Tick = tick
		r.Owned = owned != 0
		printJSON(w, r)
	}
	return rows.Err()
}

func queryTicks(db *sql.DB, w io.Writer, opt dbQuery) error {
	rows, err := db.Query(`SELECT tick,sim_date,paused,actions,digest FROM ticks ORDER BY tick DESC LIMIT ?`, opt.Limit)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			Tick    uint64 `json:"tick"`
			Date    string `json:"sim_date"`
			Paused  bool   `json:"paused"`
			Actions int    `json:"actions"`
			Digest  string `json:"digest"`
		}
		var paused int
		if err := rows.Scan(&r.Tick, &r.Date, &paused, &r.Actions, &r.Digest); err != nil {
			return err
		}
		r.Paused = paused != 0
		printJSON(w, r)
	}
	return rows.Err()
}

func queryActions(db *sql.DB, w io.Writer, opt dbQuery) error {
	query := `SELECT tick,seq,action_id,action,code,payload_json FROM actions`
	var qargs []any
	if opt.Action != "" {
		query += ` WHERE action=?`
		qargs = append(qargs, opt.Action)
	}
	query += ` ORDER BY tick DESC, seq DESC LIMIT ?`
	qargs = append(qargs, opt.Limit)
	rows, err := db.Query(query, qargs...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			Tick     uint64 `json:"tick"`
			Seq      int    `json:"seq"`
			ActionID string `json:"action_id"`
			Action   string `json:"action"`
			Code     string `json:"code,omitempty"`
			Payload  string `json:"payload_json"`
		}
		if err := rows.Scan(&r.Tick, &r.Seq, &r.ActionID, &r.Action, &r.Code, &r.Payload); err != nil {
			return err
		}
		printJSON(w, r)
	}
	return rows.Err()
}

func queryAudits(db *sql.DB, w io.Writer, opt dbQuery) error {
	query := `SELECT tick,seq,kind,action_id,property_id,upgrade_id,amount,funds,sim_date FROM audits`
	var qargs []any
	if opt.PropertyID != 0 {
		query += ` WHERE property_id=?`
		qargs = append(qargs, opt.PropertyID)
	}
	query += ` ORDER BY tick DESC, seq DESC LIMIT ?`
	qargs = append(qargs, opt.Limit)
	rows, err := db.Query(query, qargs...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			Tick       uint64  `json:"tick"`
			Seq        int     `json:"seq"`
			Kind       string  `json:"kind"`
			ActionID   string  `json:"action_id,omitempty"`
			PropertyID int64   `json:"property_id"`
			UpgradeID  string  `json:"upgrade_id,omitempty"`
			Amount     float64 `json:"amount"`
			Funds      float64 `json:"funds"`
			Date       string  `json:"sim_date"`
		}
		if err := rows.Scan(&r.Tick, &r.Seq, &r.Kind, &r.ActionID, &r.PropertyID, &r.UpgradeID, &r.Amount, &r.Funds, &r.Date); err != nil {
			return err
		}
		printJSON(w, r)
	}
	return rows.Err()
}

func queryYears(db *sql.DB, w io.Writer, opt dbQuery) error {
	rows, err := db.Query(`SELECT year,end_tick,snapshot_path,seed_digest,recorded_at FROM years ORDER BY year DESC LIMIT ?`, opt.Limit)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			Year         int    `json:"year"`
			EndTick      uint64 `json:"end_tick"`
			SnapshotPath string `json:"snapshot_path"`
			SeedDigest   string `json:"seed_digest"`
			RecordedAt   string `json:"recorded_at"`
		}
		if err := rows.Scan(&r.Year, &r.EndTick, &r.SnapshotPath, &r.SeedDigest, &r.RecordedAt); err != nil {
			return err
		}
		printJSON(w, r)
	}
	return rows.Err()
}

func queryCatalogs(db *sql.DB, w io.Writer) error {
	rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			Name      string `json:"name"`
			Digest    string `json:"digest"`
			UpdatedAt string `json:"updated_at"`
		}
		if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
			return err
		}
		printJSON(w, r)
	}
	return rows.Err()
}

func latestSnapshotTick(db *sql.DB) (uint64, error) {
	if db == nil {
		return 0, fmt.Errorf("nil db")
	}
	var t int64
	if err := db.QueryRow(`SELECT COALESCE(MAX(tick),0) FROM snapshots`).Scan(&t); err != nil {
		return 0, err
	}
	if t < 0 {
		return 0, nil
	}
	return uint64(t), nil
}
