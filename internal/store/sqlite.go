package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/tender-scout/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tenders (
	identity     TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	reference    TEXT,
	url_norm     TEXT,
	country      TEXT,
	score        INTEGER NOT NULL DEFAULT 0,
	priority     TEXT,
	record       TEXT NOT NULL,
	extracted_at DATETIME NOT NULL,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL,
	data       TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	seq        INTEGER NOT NULL,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_tenders_source_url ON tenders(source, url_norm);
CREATE INDEX IF NOT EXISTS idx_tenders_country ON tenders(country);
CREATE INDEX IF NOT EXISTS idx_tenders_score ON tenders(score);
CREATE INDEX IF NOT EXISTS idx_sessions_source_status ON sessions(source, status);
CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id, seq);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertTender inserts rec or merges it into the row sharing its identity.
// Reference identity is tried first, then the normalized-URL fallback.
func (s *SQLiteStore) UpsertTender(ctx context.Context, rec model.TenderRecord) (bool, error) {
	key := rec.IdentityKey()
	if key == "" {
		return false, eris.New("sqlite: tender has no identity")
	}

	existing, existingKey, err := s.findTender(ctx, rec)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()

	if existing == nil {
		rec.CreatedAt = now
		rec.UpdatedAt = now
		recordJSON, err := json.Marshal(rec)
		if err != nil {
			return false, eris.Wrap(err, "sqlite: marshal tender")
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO tenders (identity, source, reference, url_norm, country, score, priority, record, extracted_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			key, rec.Source, rec.Reference, model.NormalizeURL(rec.URL), rec.Country,
			rec.RelevanceScore, string(rec.PriorityLevel), string(recordJSON),
			rec.ExtractedAt, now, now,
		)
		if err != nil {
			return false, eris.Wrapf(err, "sqlite: insert tender %s", key)
		}
		return true, nil
	}

	merged := MergeTender(*existing, rec)
	merged.UpdatedAt = now
	recordJSON, err := json.Marshal(merged)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal merged tender")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenders SET reference = ?, url_norm = ?, country = ?, score = ?, priority = ?, record = ?, extracted_at = ?, updated_at = ?
		 WHERE identity = ?`,
		merged.Reference, model.NormalizeURL(merged.URL), merged.Country,
		merged.RelevanceScore, string(merged.PriorityLevel), string(recordJSON),
		merged.ExtractedAt, now, existingKey,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: update tender %s", existingKey)
	}
	return false, checkRowsAffected(res, "tender", existingKey)
}

// findTender locates the stored row rec would merge into, returning its
// identity key so the update targets the row actually found. The URL
// fallback applies only to reference-less records; two distinct references
// sharing a listing URL stay distinct.
func (s *SQLiteStore) findTender(ctx context.Context, rec model.TenderRecord) (*model.TenderRecord, string, error) {
	if rec.Reference != "" {
		key := rec.Source + "|" + rec.Reference
		t, err := s.getByIdentity(ctx, key)
		if err == nil {
			return t, key, nil
		}
		if !eris.Is(err, ErrNotFound) {
			return nil, "", err
		}
		return nil, "", nil
	}
	if urlNorm := model.NormalizeURL(rec.URL); urlNorm != "" {
		row := s.db.QueryRowContext(ctx,
			`SELECT identity, record FROM tenders WHERE source = ? AND url_norm = ? LIMIT 1`,
			rec.Source, urlNorm,
		)
		var key, recordJSON string
		switch err := row.Scan(&key, &recordJSON); {
		case err == sql.ErrNoRows:
		case err != nil:
			return nil, "", eris.Wrap(err, "sqlite: find tender by url")
		default:
			t, err := unmarshalTender(recordJSON)
			return t, key, err
		}
	}
	return nil, "", nil
}

func (s *SQLiteStore) getByIdentity(ctx context.Context, key string) (*model.TenderRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT record FROM tenders WHERE identity = ?`, key)
	var recordJSON string
	err := row.Scan(&recordJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get tender")
	}
	return unmarshalTender(recordJSON)
}

func (s *SQLiteStore) GetTender(ctx context.Context, source, reference string) (*model.TenderRecord, error) {
	return s.getByIdentity(ctx, source+"|"+reference)
}

func (s *SQLiteStore) GetTenderByURL(ctx context.Context, source, rawURL string) (*model.TenderRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT record FROM tenders WHERE source = ? AND url_norm = ? LIMIT 1`,
		source, model.NormalizeURL(rawURL),
	)
	var recordJSON string
	err := row.Scan(&recordJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get tender by url")
	}
	return unmarshalTender(recordJSON)
}

func (s *SQLiteStore) ListTenders(ctx context.Context, filter TenderFilter) ([]model.TenderRecord, error) {
	query := `SELECT record FROM tenders WHERE 1=1`
	var args []any

	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if filter.Country != "" {
		query += ` AND country = ?`
		args = append(args, filter.Country)
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(filter.Priority))
	}
	if filter.MinScore > 0 {
		query += ` AND score >= ?`
		args = append(args, filter.MinScore)
	}
	query += ` ORDER BY score DESC, extracted_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tenders")
	}
	defer rows.Close()

	var out []model.TenderRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tender")
		}
		t, err := unmarshalTender(recordJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list tenders iterate")
}

// SaveSession writes the full session snapshot, inserting or replacing.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *model.ScrapeSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, source, status, data, started_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data, updated_at = excluded.updated_at`,
		sess.ID, sess.Source, string(sess.Status), string(data), sess.StartedAt, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save session %s", sess.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.ScrapeSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id)
	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}
	return unmarshalSession(data)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.ScrapeSession, error) {
	query := `SELECT data FROM sessions WHERE 1=1`
	var args []any

	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var out []model.ScrapeSession
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sess, err := unmarshalSession(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

// ActiveSession returns the pending or running session for source, or nil
// when the source is idle.
func (s *SQLiteStore) ActiveSession(ctx context.Context, source string) (*model.ScrapeSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE source = ? AND status IN (?, ?)
		 ORDER BY started_at DESC LIMIT 1`,
		source, string(model.SessionPending), string(model.SessionRunning),
	)
	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: active session for %s", source)
	}
	return unmarshalSession(data)
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal checkpoint")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, session_id, seq, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		cp.ID, cp.SessionID, cp.Seq, string(data), cp.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: save checkpoint %d for session %s", cp.Seq, cp.SessionID)
}

// LatestCheckpoint returns the highest-seq checkpoint for the session, or
// nil when none was ever written.
func (s *SQLiteStore) LatestCheckpoint(ctx context.Context, sessionID string) (*model.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM checkpoints WHERE session_id = ? ORDER BY seq DESC LIMIT 1`,
		sessionID,
	)
	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest checkpoint for %s", sessionID)
	}
	var cp model.Checkpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal checkpoint")
	}
	return &cp, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func unmarshalTender(data string) (*model.TenderRecord, error) {
	var t model.TenderRecord
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal tender")
	}
	return &t, nil
}

func unmarshalSession(data string) (*model.ScrapeSession, error) {
	var sess model.ScrapeSession
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal session")
	}
	return &sess, nil
}
