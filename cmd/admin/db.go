package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	colonyID := fs.String("colony", "", "colony id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	citizenID := fs.String("citizen", "", "citizen_id filter (audits)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", "file:"+colonyIndexPath(*dataDir, *colonyID, *dbPath)+"?mode=ro")
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT colony_id,tick,path,citizens,buildings FROM snapshots ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fail("query:", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ColonyID  string `json:"colony_id"`
				Tick      int64  `json:"tick"`
				Path      string `json:"path"`
				Citizens  int    `json:"citizens"`
				Buildings int    `json:"buildings"`
			}
			if err := rows.Scan(&r.ColonyID, &r.Tick, &r.Path, &r.Citizens, &r.Buildings); err != nil {
				fail("scan:", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows:", err)
		}

	case "citizens":
		rows, err := db.Query(`SELECT colony_id,id,name,updated_tick,doc FROM citizens ORDER BY colony_id,id LIMIT ?`, *limit)
		if err != nil {
			fail("query:", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ColonyID    string          `json:"colony_id"`
				ID          string          `json:"id"`
				Name        string          `json:"name"`
				UpdatedTick int64           `json:"updated_tick"`
				Doc         json.RawMessage `json:"doc"`
			}
			var doc string
			if err := rows.Scan(&r.ColonyID, &r.ID, &r.Name, &r.UpdatedTick, &doc); err != nil {
				fail("scan:", err)
			}
			r.Doc = json.RawMessage(doc)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows:", err)
		}

	case "audits":
		query := `SELECT raw_json FROM audits ORDER BY tick DESC, id DESC LIMIT ?`
		qargs := []any{*limit}
		if c := strings.TrimSpace(*citizenID); c != "" {
			query = `SELECT raw_json FROM audits WHERE citizen_id=? ORDER BY tick DESC, id DESC LIMIT ?`
			qargs = []any{c, *limit}
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fail("query:", err)
		}
		defer rows.Close()
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				fail("scan:", err)
			}
			fmt.Println(raw)
		}
		if err := rows.Err(); err != nil {
			fail("rows:", err)
		}

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			fail("query:", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				fail("scan:", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows:", err)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-colony ID|-db PATH] [-limit N] [-citizen UUID] snapshots|citizens|audits|catalogs")
		os.Exit(2)
	}
}

func fail(msg string, err error) {
	fmt.Fprintln(os.Stderr, msg, err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
