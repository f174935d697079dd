package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "client data directory")
	dbPath := fs.String("db", "", "sqlite index path (optional)")
	session := fs.String("session", "", "session id (defaults to the latest)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "summary"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}
	path := indexPath(*dataDir, *dbPath)

	if q == "summary" {
		summaryCmd(path, *session)
		return
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	sid := strings.TrimSpace(*session)
	if sid == "" {
		if sid, err = latestSession(db); err != nil {
			fmt.Fprintln(os.Stderr, "latest session:", err)
			os.Exit(1)
		}
	}

	switch q {
	case "reconciliations":
		rows, err := db.Query(`SELECT local_tick,ack_tick,handle,replayed,remaining,has_auth,auth_error FROM reconciliations WHERE session_id=? ORDER BY seq DESC LIMIT ?`, sid, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				LocalTick uint32  `json:"local_tick"`
				AckTick   uint32  `json:"ack_tick"`
				Handle    uint32  `json:"handle"`
				Replayed  int     `json:"replayed"`
				Remaining int     `json:"remaining"`
				HasAuth   bool    `json:"has_auth"`
				AuthError float64 `json:"auth_error"`
			}
			if err := rows.Scan(&r.LocalTick, &r.AckTick, &r.Handle, &r.Replayed, &r.Remaining, &r.HasAuth, &r.AuthError); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "corrections":
		rows, err := db.Query(`SELECT tick,handle,dist,applied,snapped FROM corrections WHERE session_id=? ORDER BY seq DESC LIMIT ?`, sid, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick    uint32  `json:"tick"`
				Handle  uint32  `json:"handle"`
				Dist    float64 `json:"dist"`
				Applied float64 `json:"applied"`
				Snapped bool    `json:"snapped"`
			}
			if err := rows.Scan(&r.Tick, &r.Handle, &r.Dist, &r.Applied, &r.Snapped); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "bindings":
		rows, err := db.Query(`SELECT handle,event,at FROM bindings WHERE session_id=? ORDER BY seq LIMIT ?`, sid, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Handle uint32 `json:"handle"`
				Event  string `json:"event"`
				At     string `json:"at"`
			}
			if err := rows.Scan(&r.Handle, &r.Event, &r.At); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-session S] summary|reconciliations|corrections|bindings")
		os.Exit(2)
	}
}

func summaryCmd(path, session string) {
	idx, err := indexdb.OpenSQLite(path, "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if strings.TrimSpace(session) == "" {
		ids, err := idx.Sessions(ctx)
		if err != nil || len(ids) == 0 {
			fmt.Fprintln(os.Stderr, "no sessions recorded", err)
			os.Exit(2)
		}
		session = ids[len(ids)-1]
	}
	sum, err := idx.Summary(ctx, session)
	if err != nil {
		fmt.Fprintln(os.Stderr, "summary:", err)
		os.Exit(1)
	}
	printJSON(struct {
		Session string `json:"session"`
		indexdb.Summary
	}{session, sum})
}

func latestSession(db *sql.DB) (string, error) {
	var id sql.NullString
	if err := db.QueryRow(`SELECT session_id FROM sessions ORDER BY rowid DESC LIMIT 1`).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("no sessions recorded")
		}
		return "", err
	}
	return id.String, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
