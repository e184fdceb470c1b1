package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinPull/internal/domain/models"
	pkgch "CoinPull/pkg/clickhouse"
	"CoinPull/pkg/logger"
	"CoinPull/pkg/postgres"
)

func sampleBatch(t *testing.T) (*models.Batch, []string) {
	t.Helper()
	tbl := sampleTable(t)
	rows := tbl.Rows[:2]
	docs := make([]string, len(rows))
	for i, r := range rows {
		b, err := encodeRow(r)
		require.NoError(t, err)
		docs[i] = string(b)
	}
	at, _ := rows[0].CollectedAt()
	return &models.Batch{RunID: "run-1", Iteration: 1, CollectedAt: at, Rows: rows}, docs
}

func TestCHTableStoreSaveAndLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store, err := NewCHTableStore(pkgch.NewFromDB(db), "listing_rows", "symbol", logger.Nop())
	require.NoError(t, err)

	b, docs := sampleBatch(t)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO listing_rows")
	prep.ExpectExec().WithArgs("run-1", uint32(1), uint32(0), b.CollectedAt.UTC(), "BTC", docs[0]).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("run-1", uint32(1), uint32(1), b.CollectedAt.UTC(), "USDT", docs[1]).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveBatch(context.Background(), b))

	mock.ExpectQuery("SELECT doc FROM listing_rows ORDER BY collected_at, run_id, seq").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(docs[0]).AddRow(docs[1]))

	tbl, err := store.LoadTable(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.True(t, b.Rows[0].Equal(tbl.Rows[0]))
	assert.True(t, b.Rows[1].Equal(tbl.Rows[1]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHTableStoreRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store, err := NewCHTableStore(pkgch.NewFromDB(db), "listing_rows", "symbol", logger.Nop())
	require.NoError(t, err)

	b, _ := sampleBatch(t)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO listing_rows")
	prep.ExpectExec().WillReturnError(errors.New("too many parts"))
	mock.ExpectRollback()

	assert.Error(t, store.Consume(context.Background(), b))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHTableStoreInit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store, err := NewCHTableStore(pkgch.NewFromDB(db), "coinpull.listing_rows", "", logger.Nop())
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS coinpull.listing_rows").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableStoresRejectBadTableNames(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	_, err = NewCHTableStore(pkgch.NewFromDB(db), "rows; DROP TABLE x", "symbol", nil)
	assert.Error(t, err)
	_, err = NewPGTableStore(postgres.NewFromDB(sqlx.NewDb(db, "postgres")), "a.b.c", "symbol", nil)
	assert.Error(t, err)
}

func TestPGTableStoreSaveAndLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store, err := NewPGTableStore(postgres.NewFromDB(sqlx.NewDb(db, "postgres")), "listing_rows", "symbol", logger.Nop())
	require.NoError(t, err)

	b, docs := sampleBatch(t)
	at := b.CollectedAt.UTC()
	mock.ExpectExec(`INSERT INTO listing_rows \(run_id, iteration, seq, collected_at, asset, doc\)`).
		WithArgs(
			"run-1", 1, 0, at, "BTC", docs[0],
			"run-1", 1, 1, at, "USDT", docs[1],
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, store.SaveBatch(context.Background(), b))

	mock.ExpectQuery("SELECT doc FROM listing_rows ORDER BY id").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(docs[0]).AddRow(docs[1]))
	tbl, err := store.LoadTable(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.True(t, b.Rows[1].Equal(tbl.Rows[1]))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGTableStoreEmptyTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store, err := NewPGTableStore(postgres.NewFromDB(sqlx.NewDb(db, "postgres")), "listing_rows", "symbol", logger.Nop())
	require.NoError(t, err)

	mock.ExpectQuery("SELECT doc FROM listing_rows").WillReturnRows(sqlmock.NewRows([]string{"doc"}))
	tbl, err := store.LoadTable(context.Background())
	require.NoError(t, err)
	assert.True(t, tbl.IsEmpty())

	assert.NoError(t, store.SaveBatch(context.Background(), &models.Batch{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGTableStoreInit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store, err := NewPGTableStore(postgres.NewFromDB(sqlx.NewDb(db, "postgres")), "listing_rows", "symbol", logger.Nop())
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS listing_rows").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
