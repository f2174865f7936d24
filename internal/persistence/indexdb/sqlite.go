// Package indexdb keeps a queryable read model of finished rounds and games.
// It never feeds back into the simulation; the journal stays the source of
// truth.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"quantumparty.dev/internal/persistence/snapshot"
	"quantumparty.dev/internal/sim/match"
	"quantumparty.dev/internal/sim/tuning"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropRound    atomic.Uint64
	dropGame     atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqRound
	reqGame
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     match.TickLogEntry
	round    match.RoundRecord
	game     match.GameRecord
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick   uint64
	GameID string
	Round  int
	Final  bool
	Path   string
}

// QueueStats reports writer backlog and requests dropped because the queue
// was full.
type QueueStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropRoundTotal    uint64 `json:"drop_round_total"`
	DropGameTotal     uint64 `json:"drop_game_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			game_id TEXT NOT NULL,
			digest TEXT NOT NULL,
			inputs INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS inputs (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			seat TEXT NOT NULL,
			input TEXT NOT NULL,
			input_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS games (
			game_id TEXT PRIMARY KEY,
			map TEXT NOT NULL,
			seed INTEGER NOT NULL,
			end_tick INTEGER NOT NULL,
			rounds INTEGER NOT NULL,
			winner TEXT,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rounds (
			game_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			program TEXT NOT NULL,
			outcome TEXT NOT NULL,
			transform TEXT NOT NULL,
			decoherence INTEGER NOT NULL,
			PRIMARY KEY (game_id, round)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_outcome ON rounds(outcome);`,
		`CREATE TABLE IF NOT EXISTS standings (
			game_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			name TEXT NOT NULL,
			rank INTEGER NOT NULL,
			stars INTEGER NOT NULL,
			gates INTEGER NOT NULL,
			PRIMARY KEY (game_id, player_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_standings_player ON standings(player_id, rank);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			game_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			final INTEGER NOT NULL,
			path TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() QueueStats {
	return QueueStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropRoundTotal:    s.dropRound.Load(),
		DropGameTotal:     s.dropGame.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; the journal remains the source of truth.
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry match.TickLogEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	return nil
}

func (s *SQLiteIndex) RecordRound(r match.RoundRecord) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqRound, round: r}, &s.dropRound)
}

func (s *SQLiteIndex) RecordGame(g match.GameRecord) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqGame, game: g}, &s.dropGame)
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	r := snapshotRow{
		Tick:   snap.Header.Tick,
		GameID: snap.Header.GameID,
		Round:  snap.Header.Round,
		Final:  snap.Header.Final,
		Path:   path,
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// UpsertTuning stores the tuning actually applied, as canonical JSON.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"tuning", hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,game_id,digest,inputs) VALUES(?,?,?,?)`)
	insertInput, _ := s.db.Prepare(`INSERT OR REPLACE INTO inputs(tick,seq,seat,input,input_json) VALUES(?,?,?,?,?)`)
	insertRound, _ := s.db.Prepare(`INSERT OR REPLACE INTO rounds(game_id,round,tick,program,outcome,transform,decoherence) VALUES(?,?,?,?,?,?,?)`)
	insertGame, _ := s.db.Prepare(`INSERT OR REPLACE INTO games(game_id,map,seed,end_tick,rounds,winner,recorded_at) VALUES(?,?,?,?,?,?,?)`)
	insertStanding, _ := s.db.Prepare(`INSERT OR REPLACE INTO standings(game_id,player_id,name,rank,stars,gates) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,game_id,round,final,path) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertInput, insertRound, insertGame, insertStanding, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			if !exec(insertTick, int64(t.Tick), t.GameID, t.Digest, len(t.Inputs)) {
				continue
			}
			for i, in := range t.Inputs {
				raw, _ := json.Marshal(in.Input)
				if !exec(insertInput, int64(t.Tick), i, in.Seat, in.Input.Input, string(raw)) {
					break
				}
			}

		case reqRound:
			rr := r.round
			exec(insertRound, rr.GameID, rr.Round, int64(rr.Tick), rr.Program, rr.Outcome, rr.Transform, rr.Decoherence)

		case reqGame:
			g := r.game
			var winner any
			if len(g.Standings) > 0 && g.Standings[0].Rank == 1 {
				winner = g.Standings[0].ID
			}
			if !exec(insertGame, g.GameID, g.Map, g.Seed, int64(g.EndTick), g.Rounds, winner, time.Now().UTC().Format(time.RFC3339Nano)) {
				continue
			}
			for _, st := range g.Standings {
				if !exec(insertStanding, g.GameID, st.ID, st.Name, st.Rank, st.Stars, st.Gates) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			final := 0
			if sn.Final {
				final = 1
			}
			exec(insertSnapshot, int64(sn.Tick), sn.GameID, sn.Round, final, sn.Path)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
