package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lending-harvest/internal/db"
	"github.com/sells-group/lending-harvest/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Report months are
// stored as "YYYY-MM" text so range filters compare lexically.
type SQLiteStore struct {
	db *sql.DB
}

var (
	sqlitePlatformInsert = db.MustInsertIgnoreSQL(platformInsert, db.Question)
	sqliteBankInsert     = db.MustInsertIgnoreSQL(bankInsert, db.Question)
)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection serializes writers across concurrent jobs.
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS platforms (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	company_group TEXT NOT NULL DEFAULT '',
	report_month  TEXT NOT NULL,
	platform_type TEXT NOT NULL,
	loan_type     TEXT NOT NULL,
	loan_balance  REAL,
	loan_issued   REAL,
	yoy_growth    REAL,
	mom_growth    REAL,
	data_source   TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (name, report_month, platform_type, loan_type)
);

CREATE TABLE IF NOT EXISTS banks (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	name                TEXT NOT NULL,
	bank_type           TEXT NOT NULL DEFAULT '',
	report_month        TEXT NOT NULL,
	total_internet_loan REAL,
	coop_platform_count INTEGER,
	top3_platform_share REAL,
	data_source         TEXT NOT NULL DEFAULT '',
	source_url          TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (name, report_month)
);

CREATE TABLE IF NOT EXISTS data_sources (
	name             TEXT PRIMARY KEY,
	update_frequency TEXT NOT NULL DEFAULT '',
	last_scrape_at   DATETIME,
	scrape_status    TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scrape_runs (
	id            TEXT PRIMARY KEY,
	job_name      TEXT NOT NULL,
	status        TEXT NOT NULL,
	records_found INTEGER NOT NULL DEFAULT 0,
	records_saved INTEGER NOT NULL DEFAULT 0,
	started_at    DATETIME NOT NULL,
	completed_at  DATETIME NOT NULL,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_platforms_report_month ON platforms(report_month);
CREATE INDEX IF NOT EXISTS idx_platforms_group ON platforms(company_group);
CREATE INDEX IF NOT EXISTS idx_banks_report_month ON banks(report_month);
CREATE INDEX IF NOT EXISTS idx_scrape_runs_job ON scrape_runs(job_name, started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(&sqliteTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return eris.Wrapf(err, "sqlite: rollback failed: %v", rbErr)
		}
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) InsertPlatformIfAbsent(ctx context.Context, r model.Record) (bool, error) {
	res, err := t.tx.ExecContext(ctx, sqlitePlatformInsert, platformArgs(r, r.Period.String(), time.Now().UTC())...)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert platform")
	}
	return inserted(res)
}

func (t *sqliteTx) InsertBankIfAbsent(ctx context.Context, r model.Record) (bool, error) {
	res, err := t.tx.ExecContext(ctx, sqliteBankInsert, bankArgs(r, r.Period.String(), time.Now().UTC())...)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert bank")
	}
	return inserted(res)
}

func inserted(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListPlatforms(ctx context.Context, f Filter) ([]model.Record, error) {
	query, args := sqliteFiltered(platformSelect, "company_group", f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list platforms")
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		r := model.Record{Kind: model.KindPlatform}
		var month, product, usage string
		if err := rows.Scan(&r.Name, &r.Group, &month, &product, &usage,
			&r.Balance, &r.Issued, &r.YoYGrowth, &r.MoMGrowth, &r.SourceLabel, &r.SourceURL); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan platform")
		}
		if r.Period, err = model.ParsePeriod(month); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan platform month")
		}
		r.Product, r.Usage = model.ProductType(product), model.UsageType(usage)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list platforms iterate")
}

func (s *SQLiteStore) ListBanks(ctx context.Context, f Filter) ([]model.Record, error) {
	query, args := sqliteFiltered(bankSelect, "bank_type", f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list banks")
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		r := model.Record{Kind: model.KindBank}
		var month string
		if err := rows.Scan(&r.Name, &r.BankType, &month,
			&r.TotalInternetLoan, &r.CoopPlatformCount, &r.Top3Share, &r.SourceLabel, &r.SourceURL); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bank")
		}
		if r.Period, err = model.ParsePeriod(month); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bank month")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list banks iterate")
}

// sqliteFiltered appends WHERE, ORDER BY and paging clauses for f.
func sqliteFiltered(base, groupCol string, f Filter) (string, []any) {
	var where []string
	var args []any
	if f.Name != "" {
		where = append(where, "name = ?")
		args = append(args, f.Name)
	}
	if f.Group != "" {
		where = append(where, groupCol+" = ?")
		args = append(args, f.Group)
	}
	if f.From.Valid() {
		where = append(where, "report_month >= ?")
		args = append(args, f.From.String())
	}
	if f.To.Valid() {
		where = append(where, "report_month <= ?")
		args = append(args, f.To.String())
	}

	query := base
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY report_month DESC, name LIMIT ?"
	args = append(args, defaultLimit(f.Limit))
	if f.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, f.Offset)
	}
	return query, args
}

func (s *SQLiteStore) DeleteByPeriod(ctx context.Context, kind model.RecordKind, from, to model.Period) (int64, error) {
	if !from.Valid() || !to.Valid() || to.Before(from) {
		return 0, eris.Errorf("sqlite: invalid period range %s..%s", from, to)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for _, table := range tablesFor(kind) {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE report_month >= ? AND report_month <= ?`,
			from.String(), to.String(),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: delete from %s", table)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		total += n
	}
	return total, eris.Wrap(tx.Commit(), "sqlite: commit delete")
}

func (s *SQLiteStore) UpsertSourceHealth(ctx context.Context, h model.SourceHealth) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO data_sources (name, update_frequency, last_scrape_at, scrape_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET
			last_scrape_at = excluded.last_scrape_at,
			scrape_status = excluded.scrape_status,
			update_frequency = COALESCE(NULLIF(excluded.update_frequency, ''), data_sources.update_frequency),
			updated_at = excluded.updated_at`,
		h.SourceName, string(h.Cadence), h.LastScrapeAt.UTC(), string(h.LastStatus), now, now,
	)
	return eris.Wrapf(err, "sqlite: upsert source health %s", h.SourceName)
}

func (s *SQLiteStore) GetSourceHealth(ctx context.Context, name string) (*model.SourceHealth, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, update_frequency, last_scrape_at, scrape_status FROM data_sources WHERE name = ?`, name)
	h, err := scanSourceHealth(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get source health %s", name)
	}
	return h, nil
}

func (s *SQLiteStore) ListSourceHealth(ctx context.Context) ([]model.SourceHealth, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, update_frequency, last_scrape_at, scrape_status FROM data_sources ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list source health")
	}
	defer rows.Close()

	var out []model.SourceHealth
	for rows.Next() {
		h, err := scanSourceHealth(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source health")
		}
		out = append(out, *h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list source health iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSourceHealth(row scannable) (*model.SourceHealth, error) {
	var h model.SourceHealth
	var cadence, status string
	var last sql.NullTime
	if err := row.Scan(&h.SourceName, &cadence, &last, &status); err != nil {
		return nil, err
	}
	h.Cadence, h.LastStatus = model.Cadence(cadence), model.RunStatus(status)
	if last.Valid {
		h.LastScrapeAt = last.Time
	}
	return &h, nil
}

func (s *SQLiteStore) InsertRun(ctx context.Context, r model.RunResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_runs (id, job_name, status, records_found, records_saved, started_at, completed_at, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Job, string(r.Status), r.RecordsFound, r.RecordsSaved,
		r.StartedAt.UTC(), r.CompletedAt.UTC(), r.Duration.Milliseconds(), r.Error,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", r.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, f RunFilter) ([]model.RunResult, error) {
	query := `SELECT id, job_name, status, records_found, records_saved, started_at, completed_at, duration_ms, error
		FROM scrape_runs WHERE 1=1`
	var args []any
	if f.Job != "" {
		query += ` AND job_name = ?`
		args = append(args, f.Job)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, defaultLimit(f.Limit))
	if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.RunResult
	for rows.Next() {
		var r model.RunResult
		var status string
		var ms int64
		if err := rows.Scan(&r.ID, &r.Job, &status, &r.RecordsFound, &r.RecordsSaved,
			&r.StartedAt, &r.CompletedAt, &ms, &r.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = model.RunStatus(status)
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

var _ Store = (*SQLiteStore)(nil)
