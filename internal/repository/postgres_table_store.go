package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"CoinPull/internal/domain/models"
	domrepo "CoinPull/internal/domain/repository"
	applogger "CoinPull/pkg/logger"
	"CoinPull/pkg/postgres"
)

// PGTableStore keeps accumulated rows in Postgres as JSONB documents. The
// serial id preserves insertion order.
type PGTableStore struct {
	pg       *postgres.Client
	db       *sqlx.DB
	table    string
	identity string
	l        *applogger.Logger
}

type pgRow struct {
	RunID       string    `db:"run_id"`
	Iteration   int       `db:"iteration"`
	Seq         int       `db:"seq"`
	CollectedAt time.Time `db:"collected_at"`
	Asset       string    `db:"asset"`
	Doc         string    `db:"doc"`
}

func NewPGTableStore(pg *postgres.Client, table, identity string, l *applogger.Logger) (*PGTableStore, error) {
	if err := checkTableName(table); err != nil {
		return nil, err
	}
	if identity == "" {
		identity = models.DefaultIdentityField
	}
	return &PGTableStore{pg: pg, db: pg.DB(), table: table, identity: identity, l: l}, nil
}

func (s *PGTableStore) Name() string { return "postgres" }

func (s *PGTableStore) Init(ctx context.Context) error {
	ddl := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %[1]s (
            id           BIGSERIAL PRIMARY KEY,
            run_id       TEXT        NOT NULL,
            iteration    INTEGER     NOT NULL,
            seq          INTEGER     NOT NULL,
            collected_at TIMESTAMPTZ NOT NULL,
            asset        TEXT        NOT NULL,
            doc          JSONB       NOT NULL
        )`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// SaveBatch inserts the whole batch with one multi-row statement.
func (s *PGTableStore) SaveBatch(ctx context.Context, b *models.Batch) error {
	if b == nil || len(b.Rows) == 0 {
		return nil
	}

	recs := make([]pgRow, len(b.Rows))
	for i, r := range b.Rows {
		doc, err := encodeRow(r)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		recs[i] = pgRow{
			RunID:       b.RunID,
			Iteration:   b.Iteration,
			Seq:         i,
			CollectedAt: b.CollectedAt.UTC(),
			Asset:       batchAsset(r, s.identity),
			Doc:         string(doc),
		}
	}

	q := fmt.Sprintf(`INSERT INTO %s (run_id, iteration, seq, collected_at, asset, doc)
        VALUES (:run_id, :iteration, :seq, :collected_at, :asset, :doc)`, s.table)
	if _, err := s.db.NamedExecContext(ctx, q, recs); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// Consume lets the store act as a batch sink.
func (s *PGTableStore) Consume(ctx context.Context, b *models.Batch) error {
	return s.SaveBatch(ctx, b)
}

// LoadTable reads every stored row back in insertion order.
func (s *PGTableStore) LoadTable(ctx context.Context) (models.Table, error) {
	var docs []string
	q := fmt.Sprintf("SELECT doc FROM %s ORDER BY id", s.table)
	if err := s.db.SelectContext(ctx, &docs, q); err != nil {
		if s.l != nil {
			s.l.Error("postgres load_table query error", applogger.String("table", s.table), applogger.Error(err))
		}
		return models.Table{}, fmt.Errorf("load table: %w", err)
	}

	out := make([]models.Row, 0, len(docs))
	for i, doc := range docs {
		r, err := decodeRow([]byte(doc))
		if err != nil {
			return models.Table{}, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, r)
	}
	return rowsToTable(out)
}

func (s *PGTableStore) Health(ctx context.Context) error { return s.pg.Health(ctx) }

func (s *PGTableStore) Close() error { return s.pg.Close() }

var (
	_ domrepo.TableStore = (*PGTableStore)(nil)
	_ domrepo.BatchSink  = (*PGTableStore)(nil)
)
