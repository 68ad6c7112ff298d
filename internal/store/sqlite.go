package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/review-pulse/internal/model"
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
CREATE TABLE IF NOT EXISTS reviews (
	source          TEXT NOT NULL,
	fingerprint     TEXT NOT NULL,
	review_id       TEXT NOT NULL DEFAULT '',
	content         TEXT NOT NULL,
	rating          INTEGER NOT NULL,
	date            DATETIME NOT NULL,
	thumbs_up       INTEGER NOT NULL DEFAULT 0,
	app_version     TEXT NOT NULL DEFAULT '',
	theme           TEXT,
	sentiment_label TEXT,
	sentiment_score REAL,
	confidence      REAL,
	run_id          TEXT,
	ingested_at     DATETIME NOT NULL,
	PRIMARY KEY (source, fingerprint)
);

CREATE TABLE IF NOT EXISTS themes (
	run_id      TEXT NOT NULL,
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_reserved INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	PRIMARY KEY (run_id, name)
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	period_start DATETIME NOT NULL,
	period_end   DATETIME NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	phases       TEXT,
	stats        TEXT,
	usage        TEXT,
	error        TEXT,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pulses (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	summary    TEXT NOT NULL,
	markdown   TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reviews_date ON reviews(date);
CREATE INDEX IF NOT EXISTS idx_reviews_theme ON reviews(theme);
CREATE INDEX IF NOT EXISTS idx_themes_created_at ON themes(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_pulses_created_at ON pulses(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertReviews inserts the given reviews, skipping any whose
// (source, fingerprint) pair is already stored. The returned count covers
// only newly inserted rows; the difference against len(reviews) is the
// number of duplicates dropped.
func (s *SQLiteStore) UpsertReviews(ctx context.Context, reviews []model.Review) (int, error) {
	if len(reviews) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	inserted := 0
	for _, r := range reviews {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO reviews (source, fingerprint, review_id, content, rating, date, thumbs_up, app_version, ingested_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (source, fingerprint) DO NOTHING`,
			string(r.Source), r.Fingerprint, r.ExternalID, r.Content, r.Rating,
			r.Date.UTC(), r.ThumbsUp, r.AppVersion, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert review %s", r.Fingerprint)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return inserted, nil
}

func (s *SQLiteStore) ReviewsInWindow(ctx context.Context, w model.Window) ([]model.ClassifiedReview, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, fingerprint, review_id, content, rating, date, thumbs_up, app_version,
		        theme, sentiment_label, sentiment_score, confidence
		 FROM reviews WHERE date >= ? AND date < ?
		 ORDER BY date ASC, fingerprint ASC`,
		w.Start.UTC(), w.End.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: reviews in window")
	}
	defer rows.Close()

	var reviews []model.ClassifiedReview
	for rows.Next() {
		cr, err := scanClassified(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, *cr)
	}
	return reviews, eris.Wrap(rows.Err(), "sqlite: reviews in window iterate")
}

func (s *SQLiteStore) UpdateClassifications(ctx context.Context, runID string, reviews []model.ClassifiedReview) error {
	if len(reviews) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin classifications")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range reviews {
		_, err := tx.ExecContext(ctx,
			`UPDATE reviews SET theme = ?, sentiment_label = ?, sentiment_score = ?, confidence = ?, run_id = ?
			 WHERE source = ? AND fingerprint = ?`,
			r.Theme, string(r.Sentiment), r.SentimentScore, r.Confidence, runID,
			string(r.Source), r.Fingerprint,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: classify review %s", r.Fingerprint)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit classifications")
}

func (s *SQLiteStore) SaveThemes(ctx context.Context, runID string, themes []model.Theme) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin themes")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM themes WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear themes for run %s", runID)
	}

	now := time.Now().UTC()
	for i, th := range themes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO themes (run_id, position, name, description, is_reserved, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, i, th.Name, th.Description, th.IsReserved, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert theme %s", th.Name)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit themes")
}

func (s *SQLiteStore) LatestThemes(ctx context.Context) ([]model.Theme, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, description, is_reserved FROM themes
		 WHERE run_id = (SELECT run_id FROM themes ORDER BY created_at DESC, run_id DESC LIMIT 1)
		 ORDER BY position ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest themes")
	}
	defer rows.Close()

	var themes []model.Theme
	for rows.Next() {
		var th model.Theme
		if err := rows.Scan(&th.Name, &th.Description, &th.IsReserved); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan theme")
		}
		themes = append(themes, th)
	}
	return themes, eris.Wrap(rows.Err(), "sqlite: latest themes iterate")
}

// SaveRun inserts the run record or, when the id already exists, refreshes
// its mutable fields. Called once per phase transition.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.RunRecord) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	phasesJSON, err := json.Marshal(run.Phases)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal phases")
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}
	usageJSON, err := json.Marshal(run.Usage)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal usage")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, period_start, period_end, status, phases, stats, usage, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   status = excluded.status, phases = excluded.phases, stats = excluded.stats,
		   usage = excluded.usage, error = excluded.error, updated_at = excluded.updated_at`,
		run.ID, run.Period.Start.UTC(), run.Period.End.UTC(), string(run.Status),
		string(phasesJSON), string(statsJSON), string(usageJSON), run.Error,
		run.CreatedAt, run.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save run %s", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, period_start, period_end, status, phases, stats, usage, error, created_at, updated_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	return scanRunRecord(row)
}

func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, period_start, period_end, status, phases, stats, usage, error, created_at, updated_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent runs")
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		r, err := scanRunRecord(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: recent runs iterate")
}

func (s *SQLiteStore) SavePulse(ctx context.Context, runID string, summary *model.PulseSummary, markdown string) (*model.Pulse, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal pulse summary")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pulses (id, run_id, summary, markdown, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, runID, string(summaryJSON), markdown, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert pulse")
	}

	return &model.Pulse{
		ID:        id,
		RunID:     runID,
		Summary:   *summary,
		Markdown:  markdown,
		CreatedAt: now,
	}, nil
}

// LatestPulse returns the most recently generated pulse, or nil when none
// has been generated yet.
func (s *SQLiteStore) LatestPulse(ctx context.Context) (*model.Pulse, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, summary, markdown, created_at FROM pulses ORDER BY created_at DESC LIMIT 1`,
	)

	var p model.Pulse
	var summaryJSON string
	err := row.Scan(&p.ID, &p.RunID, &summaryJSON, &p.Markdown, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest pulse")
	}
	if err := json.Unmarshal([]byte(summaryJSON), &p.Summary); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal pulse summary")
	}
	return &p, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanClassified(row scannable) (*model.ClassifiedReview, error) {
	var cr model.ClassifiedReview
	var appVersion, theme, label sql.NullString
	var score, conf sql.NullFloat64

	err := row.Scan(&cr.Source, &cr.Fingerprint, &cr.ExternalID, &cr.Content, &cr.Rating,
		&cr.Date, &cr.ThumbsUp, &appVersion, &theme, &label, &score, &conf)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan review")
	}

	cr.AppVersion = appVersion.String
	cr.Theme = theme.String
	cr.Sentiment = model.Sentiment(label.String)
	cr.SentimentScore = score.Float64
	cr.Confidence = conf.Float64
	return &cr, nil
}

func scanRunRecord(row scannable) (*model.RunRecord, error) {
	var r model.RunRecord
	var phasesJSON, statsJSON, usageJSON, errMsg sql.NullString

	err := row.Scan(&r.ID, &r.Period.Start, &r.Period.End, &r.Status,
		&phasesJSON, &statsJSON, &usageJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if phasesJSON.Valid {
		if err := json.Unmarshal([]byte(phasesJSON.String), &r.Phases); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal phases")
		}
	}
	if statsJSON.Valid {
		if err := json.Unmarshal([]byte(statsJSON.String), &r.Stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stats")
		}
	}
	if usageJSON.Valid {
		if err := json.Unmarshal([]byte(usageJSON.String), &r.Usage); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal usage")
		}
	}
	r.Error = errMsg.String
	return &r, nil
}
