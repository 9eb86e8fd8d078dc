package session

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/ethoslab/ethoscore/types"
)

// SQLiteStore persists sessions in a single SQLite database. The full
// state travels as one JSON payload per row; scenario and step columns
// exist so dashboards can query across sessions without decoding.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (creating if needed) a SQLite-backed store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging session database: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating session database: %w", err)
	}
	return store, nil
}

// Close releases the database connection.
func (st *SQLiteStore) Close() error {
	return st.db.Close()
}

func (st *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id   TEXT PRIMARY KEY,
		scenario_id  TEXT NOT NULL,
		variant      TEXT NOT NULL,
		current_step INTEGER NOT NULL,
		status       TEXT NOT NULL,
		state_json   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_scenario ON sessions(scenario_id);
	`
	_, err := st.db.Exec(schema)
	return err
}

func (st *SQLiteStore) Create(s *types.SessionState) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	_, err = st.db.Exec(
		`INSERT INTO sessions (session_id, scenario_id, variant, current_step, status, state_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.ScenarioID, string(s.Variant), s.Step, string(s.Status), string(data))
	if err != nil {
		// UNIQUE violation on the primary key means the id is taken.
		var exists bool
		if qerr := st.db.Get(&exists,
			`SELECT COUNT(*) > 0 FROM sessions WHERE session_id = ?`, s.SessionID); qerr == nil && exists {
			return fmt.Errorf("%w: %s", types.ErrSessionExists, s.SessionID)
		}
		return fmt.Errorf("inserting session %s: %w", s.SessionID, err)
	}
	return nil
}

func (st *SQLiteStore) Load(id string) (*types.SessionState, error) {
	var data string
	err := st.db.Get(&data, `SELECT state_json FROM sessions WHERE session_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	return Decode([]byte(data))
}

func (st *SQLiteStore) Save(s *types.SessionState) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	res, err := st.db.Exec(
		`UPDATE sessions SET scenario_id = ?, variant = ?, current_step = ?, status = ?, state_json = ?
		 WHERE session_id = ?`,
		s.ScenarioID, string(s.Variant), s.Step, string(s.Status), string(data), s.SessionID)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", s.SessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", types.ErrSessionNotFound, s.SessionID)
	}
	return nil
}

func (st *SQLiteStore) Delete(id string) error {
	res, err := st.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	return nil
}

func (st *SQLiteStore) List() ([]string, error) {
	var ids []string
	if err := st.db.Select(&ids, `SELECT session_id FROM sessions ORDER BY session_id`); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return ids, nil
}
