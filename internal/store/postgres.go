package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/review-pulse/internal/db"
	"github.com/sells-group/review-pulse/internal/model"
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

const (
	sqlUpdateClassification = `UPDATE reviews SET theme = $1, sentiment_label = $2, sentiment_score = $3, confidence = $4, run_id = $5 WHERE source = $6 AND fingerprint = $7`

	sqlReviewsInWindow = `SELECT source, fingerprint, review_id, content, rating, date, thumbs_up, app_version, theme, sentiment_label, sentiment_score, confidence FROM reviews WHERE date >= $1 AND date < $2 ORDER BY date ASC, fingerprint ASC`

	sqlSaveRun = `INSERT INTO runs (id, period_start, period_end, status, phases, stats, usage, error, created_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	 ON CONFLICT (id) DO UPDATE SET
	   status = EXCLUDED.status, phases = EXCLUDED.phases, stats = EXCLUDED.stats,
	   usage = EXCLUDED.usage, error = EXCLUDED.error, updated_at = EXCLUDED.updated_at`

	sqlGetRun = `SELECT id, period_start, period_end, status, phases, stats, usage, error, created_at, updated_at FROM runs WHERE id = $1`

	sqlRecentRuns = `SELECT id, period_start, period_end, status, phases, stats, usage, error, created_at, updated_at FROM runs ORDER BY created_at DESC LIMIT $1`

	sqlSavePulse = `INSERT INTO pulses (id, run_id, summary, markdown, created_at) VALUES ($1, $2, $3, $4, $5)`

	sqlLatestPulse = `SELECT id, run_id, summary, markdown, created_at FROM pulses ORDER BY created_at DESC LIMIT 1`

	sqlLatestThemes = `SELECT name, description, is_reserved FROM themes WHERE run_id = (SELECT run_id FROM themes ORDER BY created_at DESC, run_id DESC LIMIT 1) ORDER BY position ASC`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"update_classification": sqlUpdateClassification,
	"reviews_in_window":     sqlReviewsInWindow,
	"save_run":              sqlSaveRun,
	"get_run":               sqlGetRun,
	"recent_runs":           sqlRecentRuns,
	"save_pulse":            sqlSavePulse,
	"latest_pulse":          sqlLatestPulse,
	"latest_themes":         sqlLatestThemes,
}

// reviewColumns is the column order used for bulk review ingest.
var reviewColumns = []string{"source", "fingerprint", "review_id", "content", "rating", "date", "thumbs_up", "app_version", "ingested_at"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
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

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS reviews (
	source          TEXT NOT NULL,
	fingerprint     TEXT NOT NULL,
	review_id       TEXT NOT NULL DEFAULT '',
	content         TEXT NOT NULL,
	rating          INTEGER NOT NULL,
	date            TIMESTAMPTZ NOT NULL,
	thumbs_up       INTEGER NOT NULL DEFAULT 0,
	app_version     TEXT NOT NULL DEFAULT '',
	theme           TEXT,
	sentiment_label TEXT,
	sentiment_score DOUBLE PRECISION,
	confidence      DOUBLE PRECISION,
	run_id          TEXT,
	ingested_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_reviews_date ON reviews(date);
CREATE INDEX IF NOT EXISTS idx_reviews_theme ON reviews(theme);

CREATE TABLE IF NOT EXISTS themes (
	run_id      TEXT NOT NULL,
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_reserved BOOLEAN NOT NULL DEFAULT false,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, name)
);

CREATE INDEX IF NOT EXISTS idx_themes_created_at ON themes(created_at DESC);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	period_start TIMESTAMPTZ NOT NULL,
	period_end   TIMESTAMPTZ NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	phases       JSONB,
	stats        JSONB,
	usage        JSONB,
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);

CREATE TABLE IF NOT EXISTS pulses (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	summary    JSONB NOT NULL,
	markdown   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_pulses_created_at ON pulses(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

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

// UpsertReviews bulk-inserts the given reviews via COPY into a temp table,
// skipping any whose (source, fingerprint) pair is already stored. The
// returned count covers only newly inserted rows.
func (s *PostgresStore) UpsertReviews(ctx context.Context, reviews []model.Review) (int, error) {
	if len(reviews) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(reviews))
	for _, r := range reviews {
		rows = append(rows, []any{
			string(r.Source), r.Fingerprint, r.ExternalID, r.Content, r.Rating,
			r.Date.UTC(), r.ThumbsUp, r.AppVersion, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "reviews",
		Columns:      reviewColumns,
		ConflictKeys: []string{"source", "fingerprint"},
		DoNothing:    true,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert reviews")
	}
	return int(n), nil
}

func (s *PostgresStore) ReviewsInWindow(ctx context.Context, w model.Window) ([]model.ClassifiedReview, error) {
	rows, err := s.pool.Query(ctx, sqlReviewsInWindow, w.Start.UTC(), w.End.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: reviews in window")
	}
	defer rows.Close()

	var reviews []model.ClassifiedReview
	for rows.Next() {
		var cr model.ClassifiedReview
		var theme, label *string
		var score, conf *float64

		if err := rows.Scan(&cr.Source, &cr.Fingerprint, &cr.ExternalID, &cr.Content, &cr.Rating,
			&cr.Date, &cr.ThumbsUp, &cr.AppVersion, &theme, &label, &score, &conf); err != nil {
			return nil, eris.Wrap(err, "postgres: scan review")
		}

		if theme != nil {
			cr.Theme = *theme
		}
		if label != nil {
			cr.Sentiment = model.Sentiment(*label)
		}
		if score != nil {
			cr.SentimentScore = *score
		}
		if conf != nil {
			cr.Confidence = *conf
		}
		reviews = append(reviews, cr)
	}
	return reviews, eris.Wrap(rows.Err(), "postgres: reviews in window iterate")
}

func (s *PostgresStore) UpdateClassifications(ctx context.Context, runID string, reviews []model.ClassifiedReview) error {
	if len(reviews) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin classifications")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range reviews {
		_, err := tx.Exec(ctx, sqlUpdateClassification,
			r.Theme, string(r.Sentiment), r.SentimentScore, r.Confidence, runID,
			string(r.Source), r.Fingerprint,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: classify review %s", r.Fingerprint)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit classifications")
}

func (s *PostgresStore) SaveThemes(ctx context.Context, runID string, themes []model.Theme) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM themes WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: clear themes for run %s", runID)
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(themes))
	for i, th := range themes {
		rows = append(rows, []any{runID, i, th.Name, th.Description, th.IsReserved, now})
	}

	_, err := db.CopyFrom(ctx, s.pool, "themes",
		[]string{"run_id", "position", "name", "description", "is_reserved", "created_at"}, rows)
	if err != nil {
		return eris.Wrapf(err, "postgres: copy themes for run %s", runID)
	}
	return nil
}

func (s *PostgresStore) LatestThemes(ctx context.Context) ([]model.Theme, error) {
	rows, err := s.pool.Query(ctx, sqlLatestThemes)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest themes")
	}
	defer rows.Close()

	var themes []model.Theme
	for rows.Next() {
		var th model.Theme
		if err := rows.Scan(&th.Name, &th.Description, &th.IsReserved); err != nil {
			return nil, eris.Wrap(err, "postgres: scan theme")
		}
		themes = append(themes, th)
	}
	return themes, eris.Wrap(rows.Err(), "postgres: latest themes iterate")
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *model.RunRecord) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	phasesJSON, err := json.Marshal(run.Phases)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal phases")
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}
	usageJSON, err := json.Marshal(run.Usage)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal usage")
	}

	_, err = s.pool.Exec(ctx, sqlSaveRun,
		run.ID, run.Period.Start.UTC(), run.Period.End.UTC(), string(run.Status),
		phasesJSON, statsJSON, usageJSON, run.Error, run.CreatedAt, run.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save run %s", run.ID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	var r model.RunRecord
	var phasesJSON, statsJSON, usageJSON []byte
	var errMsg *string

	err := s.pool.QueryRow(ctx, sqlGetRun, runID).
		Scan(&r.ID, &r.Period.Start, &r.Period.End, &r.Status,
			&phasesJSON, &statsJSON, &usageJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if err := unmarshalRunJSON(&r, phasesJSON, statsJSON, usageJSON); err != nil {
		return nil, err
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	return &r, nil
}

func (s *PostgresStore) RecentRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent runs")
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var r model.RunRecord
		var phasesJSON, statsJSON, usageJSON []byte
		var errMsg *string

		if err := rows.Scan(&r.ID, &r.Period.Start, &r.Period.End, &r.Status,
			&phasesJSON, &statsJSON, &usageJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := unmarshalRunJSON(&r, phasesJSON, statsJSON, usageJSON); err != nil {
			return nil, err
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: recent runs iterate")
}

func (s *PostgresStore) SavePulse(ctx context.Context, runID string, summary *model.PulseSummary, markdown string) (*model.Pulse, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal pulse summary")
	}

	_, err = s.pool.Exec(ctx, sqlSavePulse, id, runID, summaryJSON, markdown, now)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert pulse")
	}

	return &model.Pulse{
		ID:        id,
		RunID:     runID,
		Summary:   *summary,
		Markdown:  markdown,
		CreatedAt: now,
	}, nil
}

func (s *PostgresStore) LatestPulse(ctx context.Context) (*model.Pulse, error) {
	var p model.Pulse
	var summaryJSON []byte

	err := s.pool.QueryRow(ctx, sqlLatestPulse).
		Scan(&p.ID, &p.RunID, &summaryJSON, &p.Markdown, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest pulse")
	}
	if err := json.Unmarshal(summaryJSON, &p.Summary); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal pulse summary")
	}
	return &p, nil
}

func unmarshalRunJSON(r *model.RunRecord, phasesJSON, statsJSON, usageJSON []byte) error {
	if len(phasesJSON) > 0 {
		if err := json.Unmarshal(phasesJSON, &r.Phases); err != nil {
			return eris.Wrap(err, "postgres: unmarshal phases")
		}
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
			return eris.Wrap(err, "postgres: unmarshal stats")
		}
	}
	if len(usageJSON) > 0 {
		if err := json.Unmarshal(usageJSON, &r.Usage); err != nil {
			return eris.Wrap(err, "postgres: unmarshal usage")
		}
	}
	return nil
}
