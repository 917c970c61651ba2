package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dsn
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS tournaments (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		rounds INTEGER NOT NULL,
		noise REAL NOT NULL,
		repetitions INTEGER NOT NULL,
		seeds TEXT NOT NULL,
		players TEXT NOT NULL,
		matches INTEGER NOT NULL,
		cached INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS standings (
		tournament_id TEXT NOT NULL REFERENCES tournaments(id) ON DELETE CASCADE,
		rank INTEGER NOT NULL,
		name TEXT NOT NULL,
		matches INTEGER NOT NULL,
		wins INTEGER NOT NULL,
		draws INTEGER NOT NULL,
		losses INTEGER NOT NULL,
		total REAL NOT NULL,
		mean REAL NOT NULL,
		coop_rate REAL NOT NULL,
		transitions INTEGER NOT NULL,
		PRIMARY KEY (tournament_id, name)
	);

	CREATE TABLE IF NOT EXISTS candidates (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		name TEXT NOT NULL,
		baseline TEXT NOT NULL,
		source TEXT NOT NULL,
		score REAL NOT NULL,
		accepted INTEGER NOT NULL,
		reason TEXT,
		config TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_tournaments_created ON tournaments(created_at);
	CREATE INDEX IF NOT EXISTS idx_candidates_baseline ON candidates(baseline, score);
	`

	_, err := s.db.Exec(query)
	return err
}

// SaveTournament writes t and replaces its standings.
func (s *SQLiteStore) SaveTournament(ctx context.Context, t *Tournament) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	seeds, err := json.Marshal(t.Seeds)
	if err != nil {
		return fmt.Errorf("failed to encode seeds: %w", err)
	}
	players, err := json.Marshal(t.Players)
	if err != nil {
		return fmt.Errorf("failed to encode players: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT OR REPLACE INTO tournaments (
		id, created_at, rounds, noise, repetitions, seeds, players, matches, cached, duration_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.CreatedAt, t.Rounds, t.Noise, t.Repetitions,
		string(seeds), string(players), t.Matches, t.Cached, t.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to save tournament: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM standings WHERE tournament_id = ?`, t.ID); err != nil {
		return err
	}
	for _, st := range t.Standings {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO standings (
			tournament_id, rank, name, matches, wins, draws, losses, total, mean, coop_rate, transitions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, st.Rank, st.Name, st.Matches, st.Wins, st.Draws, st.Losses,
			st.Total, st.Mean, st.CooperationRate, st.Transitions,
		)
		if err != nil {
			return fmt.Errorf("failed to save standing %s: %w", st.Name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetTournament(ctx context.Context, id string) (*Tournament, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, created_at, rounds, noise, repetitions, seeds, players, matches, cached, duration_ms
	FROM tournaments WHERE id = ?`, id)
	t, err := scanTournament(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadStandings(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *SQLiteStore) ListTournaments(ctx context.Context, filter Filter) ([]*Tournament, error) {
	var conditions []string
	var args []interface{}
	if filter.From != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, *filter.To)
	}

	query := `SELECT id, created_at, rounds, noise, repetitions, seeds, players, matches, cached, duration_ms FROM tournaments`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []*Tournament
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range out {
		if err := s.loadStandings(ctx, t); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) loadStandings(ctx context.Context, t *Tournament) error {
	rows, err := s.db.QueryContext(ctx, `
	SELECT rank, name, matches, wins, draws, losses, total, mean, coop_rate, transitions
	FROM standings WHERE tournament_id = ? ORDER BY rank ASC, name ASC`, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var st Standing
		if err := rows.Scan(&st.Rank, &st.Name, &st.Matches, &st.Wins, &st.Draws, &st.Losses,
			&st.Total, &st.Mean, &st.CooperationRate, &st.Transitions); err != nil {
			return err
		}
		t.Standings = append(t.Standings, st)
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTournament(row scanner) (*Tournament, error) {
	var t Tournament
	var seeds, players string
	var durationMS int64
	err := row.Scan(&t.ID, &t.CreatedAt, &t.Rounds, &t.Noise, &t.Repetitions,
		&seeds, &players, &t.Matches, &t.Cached, &durationMS)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(seeds), &t.Seeds); err != nil {
		return nil, fmt.Errorf("failed to decode seeds: %w", err)
	}
	if err := json.Unmarshal([]byte(players), &t.Players); err != nil {
		return nil, fmt.Errorf("failed to decode players: %w", err)
	}
	t.Duration = time.Duration(durationMS) * time.Millisecond
	return &t, nil
}

func (s *SQLiteStore) SaveCandidate(ctx context.Context, c Candidate) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO candidates (id, created_at, name, baseline, source, score, accepted, reason, config)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CreatedAt, c.Name, c.Baseline, c.Source, c.Score, c.Accepted, c.Reason, c.Config,
	)
	if err != nil {
		return fmt.Errorf("failed to save candidate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TopCandidates(ctx context.Context, baseline string, limit int) ([]Candidate, error) {
	query := `
	SELECT id, created_at, name, baseline, source, score, accepted, reason, config
	FROM candidates WHERE accepted = 1`
	var args []interface{}
	if baseline != "" {
		query += " AND baseline = ?"
		args = append(args, baseline)
	}
	query += " ORDER BY score DESC, created_at ASC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var reason, config sql.NullString
		if err := rows.Scan(&c.ID, &c.CreatedAt, &c.Name, &c.Baseline, &c.Source,
			&c.Score, &c.Accepted, &reason, &config); err != nil {
			return nil, err
		}
		c.Reason = reason.String
		c.Config = config.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ExportCSV(ctx context.Context, id string) ([]byte, error) {
	t, err := s.GetTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	return exportCSV(t)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
