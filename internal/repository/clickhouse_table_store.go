package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CoinPull/internal/domain/models"
	domrepo "CoinPull/internal/domain/repository"
	pkgch "CoinPull/pkg/clickhouse"
	applogger "CoinPull/pkg/logger"
)

// CHTableStore keeps accumulated rows in ClickHouse, one JSON document per
// row, ordered by collection time and in-batch position.
type CHTableStore struct {
	ch       *pkgch.Client
	db       *sql.DB
	table    string
	identity string
	l        *applogger.Logger
}

func NewCHTableStore(ch *pkgch.Client, table, identity string, l *applogger.Logger) (*CHTableStore, error) {
	if err := checkTableName(table); err != nil {
		return nil, err
	}
	if identity == "" {
		identity = models.DefaultIdentityField
	}
	return &CHTableStore{ch: ch, db: ch.DB(), table: table, identity: identity, l: l}, nil
}

func (s *CHTableStore) Name() string { return "clickhouse" }

func (s *CHTableStore) Init(ctx context.Context) error {
	const ddl = `
        CREATE TABLE IF NOT EXISTS %s (
            run_id       String,
            iteration    UInt32,
            seq          UInt32,
            collected_at DateTime64(9, 'UTC'),
            asset        LowCardinality(String),
            doc          String
        ) ENGINE = MergeTree
        ORDER BY (collected_at, run_id, seq)
    `
	return s.ch.InitSchema(ctx, []string{fmt.Sprintf(ddl, s.table)})
}

// SaveBatch inserts the batch in one transaction.
func (s *CHTableStore) SaveBatch(ctx context.Context, b *models.Batch) error {
	if b == nil || len(b.Rows) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := fmt.Sprintf("INSERT INTO %s (run_id, iteration, seq, collected_at, asset, doc) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range b.Rows {
		doc, err := encodeRow(r)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, b.RunID, uint32(b.Iteration), uint32(i), b.CollectedAt.UTC(), batchAsset(r, s.identity), string(doc)); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse batch saved",
			applogger.String("table", s.table),
			applogger.String("run_id", b.RunID),
			applogger.Int("rows", len(b.Rows)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

// Consume lets the store act as a batch sink.
func (s *CHTableStore) Consume(ctx context.Context, b *models.Batch) error {
	return s.SaveBatch(ctx, b)
}

// LoadTable reads every stored row back in collection order.
func (s *CHTableStore) LoadTable(ctx context.Context) (models.Table, error) {
	q := fmt.Sprintf("SELECT doc FROM %s ORDER BY collected_at, run_id, seq", s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse load_table query error", applogger.String("table", s.table), applogger.Error(err))
		}
		return models.Table{}, fmt.Errorf("load table: %w", err)
	}
	defer rows.Close()

	var out []models.Row
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return models.Table{}, fmt.Errorf("scan row: %w", err)
		}
		r, err := decodeRow([]byte(doc))
		if err != nil {
			return models.Table{}, fmt.Errorf("row %d: %w", len(out), err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return models.Table{}, fmt.Errorf("rows: %w", err)
	}
	return rowsToTable(out)
}

func (s *CHTableStore) Health(ctx context.Context) error { return s.ch.Health(ctx) }

func (s *CHTableStore) Close() error { return s.ch.Close() }

var (
	_ domrepo.TableStore = (*CHTableStore)(nil)
	_ domrepo.BatchSink  = (*CHTableStore)(nil)
)
