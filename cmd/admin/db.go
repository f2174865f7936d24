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

// Read-only queries over the results index. Each takes (game_id, limit); an
// empty game id matches every game.
var dbQueries = map[string]string{
	"games": `SELECT game_id,map,seed,end_tick,rounds,COALESCE(winner,'') AS winner,recorded_at
		FROM games WHERE (?1 = '' OR game_id = ?1) ORDER BY end_tick DESC LIMIT ?2`,
	"rounds": `SELECT game_id,round,tick,program,outcome,transform,decoherence
		FROM rounds WHERE (?1 = '' OR game_id = ?1) ORDER BY tick DESC LIMIT ?2`,
	"standings": `SELECT game_id,rank,player_id,name,stars,gates
		FROM standings WHERE (?1 = '' OR game_id = ?1) ORDER BY game_id,rank LIMIT ?2`,
	"outcomes": `SELECT outcome,COUNT(*) AS n,AVG(decoherence) AS avg_decoherence
		FROM rounds WHERE (?1 = '' OR game_id = ?1) GROUP BY outcome ORDER BY outcome LIMIT ?2`,
	"snapshots": `SELECT tick,game_id,round,final,path
		FROM snapshots WHERE (?1 = '' OR game_id = ?1) ORDER BY tick DESC LIMIT ?2`,
	"wins": `SELECT player_id,COUNT(*) AS wins
		FROM standings WHERE rank = 1 AND (?1 = '' OR game_id = ?1) GROUP BY player_id ORDER BY wins DESC LIMIT ?2`,
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/table.sqlite)")
	gameID := fs.String("game", "", "game_id filter")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "games"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "table.sqlite")
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(os.Stdout, db, q, strings.TrimSpace(*gameID), *limit); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-game ID] [-limit N] games|rounds|standings|outcomes|snapshots|wins")
		os.Exit(2)
	}
}

// runQuery prints one JSON object per row.
func runQuery(w io.Writer, db *sql.DB, name, gameID string, limit int) error {
	stmt, ok := dbQueries[name]
	if !ok {
		return fmt.Errorf("unknown query: %s", name)
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(stmt, gameID, limit)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		printJSON(w, row)
	}
	return rows.Err()
}
