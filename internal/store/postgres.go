package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-scout/internal/db"
	"github.com/sells-group/tender-scout/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems needing direct
// query access (e.g., the metrics collector).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS tenders (
	identity     TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	reference    TEXT,
	url_norm     TEXT,
	country      TEXT,
	score        INTEGER NOT NULL DEFAULT 0,
	priority     TEXT,
	record       JSONB NOT NULL,
	extracted_at TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL,
	data       JSONB NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS checkpoints (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	seq        INTEGER NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (session_id, seq)
);

CREATE TABLE IF NOT EXISTS documents (
	tender_identity TEXT NOT NULL REFERENCES tenders(identity),
	url             TEXT NOT NULL,
	title           TEXT,
	category        TEXT,
	PRIMARY KEY (tender_identity, url)
);

CREATE INDEX IF NOT EXISTS idx_tenders_source_url ON tenders(source, url_norm);
CREATE INDEX IF NOT EXISTS idx_tenders_country ON tenders(country);
CREATE INDEX IF NOT EXISTS idx_tenders_score ON tenders(score);
CREATE INDEX IF NOT EXISTS idx_sessions_source_status ON sessions(source, status);
CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id, seq);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertTender(ctx context.Context, rec model.TenderRecord) (bool, error) {
	key := rec.IdentityKey()
	if key == "" {
		return false, eris.New("postgres: tender has no identity")
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
			return false, eris.Wrap(err, "postgres: marshal tender")
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO tenders (identity, source, reference, url_norm, country, score, priority, record, extracted_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			key, rec.Source, rec.Reference, model.NormalizeURL(rec.URL), rec.Country,
			rec.RelevanceScore, string(rec.PriorityLevel), recordJSON,
			rec.ExtractedAt, now, now,
		)
		if err != nil {
			return false, eris.Wrapf(err, "postgres: insert tender %s", key)
		}
		return true, s.syncDocuments(ctx, key, rec.Documents)
	}

	merged := MergeTender(*existing, rec)
	merged.UpdatedAt = now
	recordJSON, err := json.Marshal(merged)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal merged tender")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE tenders SET reference = $1, url_norm = $2, country = $3, score = $4, priority = $5, record = $6, extracted_at = $7, updated_at = $8
		 WHERE identity = $9`,
		merged.Reference, model.NormalizeURL(merged.URL), merged.Country,
		merged.RelevanceScore, string(merged.PriorityLevel), recordJSON,
		merged.ExtractedAt, now, existingKey,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: update tender %s", existingKey)
	}
	return false, s.syncDocuments(ctx, existingKey, merged.Documents)
}

// syncDocuments mirrors a record's attachments into the flat documents
// table so attachment queries never have to unpack the JSONB record.
func (s *PostgresStore) syncDocuments(ctx context.Context, identity string, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, []any{identity, d.URL, d.Title, string(d.Category)})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "documents",
		Columns:      []string{"tender_identity", "url", "title", "category"},
		ConflictKeys: []string{"tender_identity", "url"},
	}, rows)
	return eris.Wrapf(err, "postgres: sync documents for %s", identity)
}

func (s *PostgresStore) findTender(ctx context.Context, rec model.TenderRecord) (*model.TenderRecord, string, error) {
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
		row := s.pool.QueryRow(ctx,
			`SELECT identity, record FROM tenders WHERE source = $1 AND url_norm = $2 LIMIT 1`,
			rec.Source, urlNorm,
		)
		var key string
		var recordJSON []byte
		switch err := row.Scan(&key, &recordJSON); {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return nil, "", eris.Wrap(err, "postgres: find tender by url")
		default:
			t, err := unmarshalTenderBytes(recordJSON)
			return t, key, err
		}
	}
	return nil, "", nil
}

func (s *PostgresStore) getByIdentity(ctx context.Context, key string) (*model.TenderRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT record FROM tenders WHERE identity = $1`, key)
	var recordJSON []byte
	err := row.Scan(&recordJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get tender")
	}
	return unmarshalTenderBytes(recordJSON)
}

func (s *PostgresStore) GetTender(ctx context.Context, source, reference string) (*model.TenderRecord, error) {
	return s.getByIdentity(ctx, source+"|"+reference)
}

func (s *PostgresStore) GetTenderByURL(ctx context.Context, source, rawURL string) (*model.TenderRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT record FROM tenders WHERE source = $1 AND url_norm = $2 LIMIT 1`,
		source, model.NormalizeURL(rawURL),
	)
	var recordJSON []byte
	err := row.Scan(&recordJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get tender by url")
	}
	return unmarshalTenderBytes(recordJSON)
}

func (s *PostgresStore) ListTenders(ctx context.Context, filter TenderFilter) ([]model.TenderRecord, error) {
	query := `SELECT record FROM tenders WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.Source != "" {
		query += ` AND source = ` + arg(filter.Source)
	}
	if filter.Country != "" {
		query += ` AND country = ` + arg(filter.Country)
	}
	if filter.Priority != "" {
		query += ` AND priority = ` + arg(string(filter.Priority))
	}
	if filter.MinScore > 0 {
		query += ` AND score >= ` + arg(filter.MinScore)
	}
	query += ` ORDER BY score DESC, extracted_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tenders")
	}
	defer rows.Close()

	var out []model.TenderRecord
	for rows.Next() {
		var recordJSON []byte
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tender")
		}
		t, err := unmarshalTenderBytes(recordJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list tenders iterate")
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess *model.ScrapeSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, source, status, data, started_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		sess.ID, sess.Source, string(sess.Status), data, sess.StartedAt, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save session %s", sess.ID)
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.ScrapeSession, error) {
	row := s.pool.QueryRow(ctx, `SELECT data FROM sessions WHERE id = $1`, id)
	var data []byte
	err := row.Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	return unmarshalSessionBytes(data)
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.ScrapeSession, error) {
	query := `SELECT data FROM sessions WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.Source != "" {
		query += ` AND source = ` + arg(filter.Source)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []model.ScrapeSession
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sess, err := unmarshalSessionBytes(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) ActiveSession(ctx context.Context, source string) (*model.ScrapeSession, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT data FROM sessions WHERE source = $1 AND status IN ($2, $3)
		 ORDER BY started_at DESC LIMIT 1`,
		source, string(model.SessionPending), string(model.SessionRunning),
	)
	var data []byte
	err := row.Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: active session for %s", source)
	}
	return unmarshalSessionBytes(data)
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal checkpoint")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO checkpoints (id, session_id, seq, data, created_at) VALUES ($1, $2, $3, $4, $5)`,
		cp.ID, cp.SessionID, cp.Seq, data, cp.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save checkpoint %d for session %s", cp.Seq, cp.SessionID)
}

func (s *PostgresStore) LatestCheckpoint(ctx context.Context, sessionID string) (*model.Checkpoint, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT data FROM checkpoints WHERE session_id = $1 ORDER BY seq DESC LIMIT 1`,
		sessionID,
	)
	var data []byte
	err := row.Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest checkpoint for %s", sessionID)
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal checkpoint")
	}
	return &cp, nil
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func unmarshalTenderBytes(data []byte) (*model.TenderRecord, error) {
	var t model.TenderRecord
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal tender")
	}
	return &t, nil
}

func unmarshalSessionBytes(data []byte) (*model.ScrapeSession, error) {
	var sess model.ScrapeSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal session")
	}
	return &sess, nil
}
