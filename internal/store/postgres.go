package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lending-harvest/internal/db"
	"github.com/sells-group/lending-harvest/internal/model"
)

// PostgresStore implements Store using pgxpool. Report months are stored
// as DATE values on the first of the month.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	pgPlatformInsert = db.MustInsertIgnoreSQL(platformInsert, db.Dollar)
	pgBankInsert     = db.MustInsertIgnoreSQL(bankInsert, db.Dollar)
)

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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS platforms (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL,
	company_group TEXT NOT NULL DEFAULT '',
	report_month  DATE NOT NULL,
	platform_type TEXT NOT NULL,
	loan_type     TEXT NOT NULL,
	loan_balance  DOUBLE PRECISION,
	loan_issued   DOUBLE PRECISION,
	yoy_growth    DOUBLE PRECISION,
	mom_growth    DOUBLE PRECISION,
	data_source   TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, report_month, platform_type, loan_type)
);

CREATE TABLE IF NOT EXISTS banks (
	id                  BIGSERIAL PRIMARY KEY,
	name                TEXT NOT NULL,
	bank_type           TEXT NOT NULL DEFAULT '',
	report_month        DATE NOT NULL,
	total_internet_loan DOUBLE PRECISION,
	coop_platform_count INTEGER,
	top3_platform_share DOUBLE PRECISION,
	data_source         TEXT NOT NULL DEFAULT '',
	source_url          TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, report_month)
);

CREATE TABLE IF NOT EXISTS data_sources (
	name             TEXT PRIMARY KEY,
	update_frequency TEXT NOT NULL DEFAULT '',
	last_scrape_at   TIMESTAMPTZ,
	scrape_status    TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scrape_runs (
	id            TEXT PRIMARY KEY,
	job_name      TEXT NOT NULL,
	status        TEXT NOT NULL,
	records_found INTEGER NOT NULL DEFAULT 0,
	records_saved INTEGER NOT NULL DEFAULT 0,
	started_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_platforms_report_month ON platforms(report_month);
CREATE INDEX IF NOT EXISTS idx_platforms_group ON platforms(company_group);
CREATE INDEX IF NOT EXISTS idx_banks_report_month ON banks(report_month);
CREATE INDEX IF NOT EXISTS idx_scrape_runs_job ON scrape_runs(job_name, started_at DESC);
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

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return eris.Wrapf(err, "postgres: rollback failed: %v", rbErr)
		}
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertPlatformIfAbsent(ctx context.Context, r model.Record) (bool, error) {
	tag, err := t.tx.Exec(ctx, pgPlatformInsert, platformArgs(r, r.Period.Time(), time.Now().UTC())...)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert platform")
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTx) InsertBankIfAbsent(ctx context.Context, r model.Record) (bool, error) {
	tag, err := t.tx.Exec(ctx, pgBankInsert, bankArgs(r, r.Period.Time(), time.Now().UTC())...)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert bank")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListPlatforms(ctx context.Context, f Filter) ([]model.Record, error) {
	query, args := pgFiltered(platformSelect, "company_group", f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list platforms")
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		r := model.Record{Kind: model.KindPlatform}
		var month time.Time
		var product, usage string
		if err := rows.Scan(&r.Name, &r.Group, &month, &product, &usage,
			&r.Balance, &r.Issued, &r.YoYGrowth, &r.MoMGrowth, &r.SourceLabel, &r.SourceURL); err != nil {
			return nil, eris.Wrap(err, "postgres: scan platform")
		}
		r.Period = model.PeriodOf(month)
		r.Product, r.Usage = model.ProductType(product), model.UsageType(usage)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list platforms iterate")
}

func (s *PostgresStore) ListBanks(ctx context.Context, f Filter) ([]model.Record, error) {
	query, args := pgFiltered(bankSelect, "bank_type", f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list banks")
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		r := model.Record{Kind: model.KindBank}
		var month time.Time
		if err := rows.Scan(&r.Name, &r.BankType, &month,
			&r.TotalInternetLoan, &r.CoopPlatformCount, &r.Top3Share, &r.SourceLabel, &r.SourceURL); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bank")
		}
		r.Period = model.PeriodOf(month)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list banks iterate")
}

func pgFiltered(base, groupCol string, f Filter) (string, []any) {
	query := base + ` WHERE true`
	args := []any{}
	argIdx := 1

	if f.Name != "" {
		query += fmt.Sprintf(` AND name = $%d`, argIdx)
		args = append(args, f.Name)
		argIdx++
	}
	if f.Group != "" {
		query += fmt.Sprintf(` AND %s = $%d`, groupCol, argIdx)
		args = append(args, f.Group)
		argIdx++
	}
	if f.From.Valid() {
		query += fmt.Sprintf(` AND report_month >= $%d`, argIdx)
		args = append(args, f.From.Time())
		argIdx++
	}
	if f.To.Valid() {
		query += fmt.Sprintf(` AND report_month <= $%d`, argIdx)
		args = append(args, f.To.Time())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY report_month DESC, name LIMIT $%d`, argIdx)
	args = append(args, defaultLimit(f.Limit))
	argIdx++

	if f.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, f.Offset)
	}
	return query, args
}

func (s *PostgresStore) DeleteByPeriod(ctx context.Context, kind model.RecordKind, from, to model.Period) (int64, error) {
	if !from.Valid() || !to.Valid() || to.Before(from) {
		return 0, eris.Errorf("postgres: invalid period range %s..%s", from, to)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin tx")
	}

	var total int64
	for _, table := range tablesFor(kind) {
		tag, err := tx.Exec(ctx,
			`DELETE FROM `+table+` WHERE report_month >= $1 AND report_month <= $2`,
			from.Time(), to.Time(),
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, eris.Wrapf(err, "postgres: delete from %s", table)
		}
		total += tag.RowsAffected()
	}
	return total, eris.Wrap(tx.Commit(ctx), "postgres: commit delete")
}

func (s *PostgresStore) UpsertSourceHealth(ctx context.Context, h model.SourceHealth) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO data_sources (name, update_frequency, last_scrape_at, scrape_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 ON CONFLICT (name) DO UPDATE SET
			last_scrape_at = EXCLUDED.last_scrape_at,
			scrape_status = EXCLUDED.scrape_status,
			update_frequency = COALESCE(NULLIF(EXCLUDED.update_frequency, ''), data_sources.update_frequency),
			updated_at = now()`,
		h.SourceName, string(h.Cadence), h.LastScrapeAt.UTC(), string(h.LastStatus),
	)
	return eris.Wrapf(err, "postgres: upsert source health %s", h.SourceName)
}

func (s *PostgresStore) GetSourceHealth(ctx context.Context, name string) (*model.SourceHealth, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT name, update_frequency, last_scrape_at, scrape_status FROM data_sources WHERE name = $1`, name)
	h, err := scanPgSourceHealth(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get source health %s", name)
	}
	return h, nil
}

func (s *PostgresStore) ListSourceHealth(ctx context.Context) ([]model.SourceHealth, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, update_frequency, last_scrape_at, scrape_status FROM data_sources ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list source health")
	}
	defer rows.Close()

	var out []model.SourceHealth
	for rows.Next() {
		h, err := scanPgSourceHealth(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan source health")
		}
		out = append(out, *h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list source health iterate")
}

func scanPgSourceHealth(row scannable) (*model.SourceHealth, error) {
	var h model.SourceHealth
	var cadence, status string
	var last *time.Time
	if err := row.Scan(&h.SourceName, &cadence, &last, &status); err != nil {
		return nil, err
	}
	h.Cadence, h.LastStatus = model.Cadence(cadence), model.RunStatus(status)
	if last != nil {
		h.LastScrapeAt = *last
	}
	return &h, nil
}

func (s *PostgresStore) InsertRun(ctx context.Context, r model.RunResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scrape_runs (id, job_name, status, records_found, records_saved, started_at, completed_at, duration_ms, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.Job, string(r.Status), r.RecordsFound, r.RecordsSaved,
		r.StartedAt, r.CompletedAt, r.Duration.Milliseconds(), r.Error,
	)
	return eris.Wrapf(err, "postgres: insert run %s", r.ID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, f RunFilter) ([]model.RunResult, error) {
	query := `SELECT id, job_name, status, records_found, records_saved, started_at, completed_at, duration_ms, error
		FROM scrape_runs WHERE true`
	args := []any{}
	argIdx := 1

	if f.Job != "" {
		query += fmt.Sprintf(` AND job_name = $%d`, argIdx)
		args = append(args, f.Job)
		argIdx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, defaultLimit(f.Limit))
	argIdx++

	if f.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.RunResult
	for rows.Next() {
		var r model.RunResult
		var status string
		var ms int64
		if err := rows.Scan(&r.ID, &r.Job, &status, &r.RecordsFound, &r.RecordsSaved,
			&r.StartedAt, &r.CompletedAt, &ms, &r.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

var _ Store = (*PostgresStore)(nil)
