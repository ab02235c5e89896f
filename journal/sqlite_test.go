package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	openT  = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	closeT = time.Date(2024, 1, 2, 4, 34, 5, 0, time.UTC)
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

func openRec(id, symbol string, at time.Time) TradeRecord {
	return TradeRecord{
		TradeID:    id,
		Symbol:     symbol,
		Side:       "long",
		Quantity:   1.5,
		EntryPrice: 100,
		StopLoss:   98,
		TakeProfit: 106,
		OpenTime:   at,
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name = 'trades'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "trades", name)
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.RecordOpen(openRec("T1", "BTC", openT)))
	require.NoError(t, j.Close())

	j2, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j2.Close() })

	open, err := j2.ListOpen()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "T1", open[0].TradeID)
}

func TestSQLiteOpenThenClose(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	require.NoError(t, j.RecordOpen(openRec("T1", "BTC", openT)))

	rec, err := j.GetTrade("T1")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, rec.Status)
	assert.True(t, rec.CloseTime.IsZero())
	assert.True(t, rec.OpenTime.Equal(openT))

	require.NoError(t, j.RecordClose(CloseRecord{
		TradeID:    "T1",
		ExitPrice:  104,
		ExitTime:   closeT,
		PnL:        6,
		PnLPercent: 4,
		Reason:     "take profit",
	}))

	rec, err = j.GetTrade("T1")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, rec.Status)
	assert.Equal(t, "BTC", rec.Symbol)
	assert.Equal(t, "long", rec.Side)
	assert.InDelta(t, 1.5, rec.Quantity, 1e-9)
	assert.InDelta(t, 104, rec.ExitPrice, 1e-9)
	assert.InDelta(t, 98, rec.StopLoss, 1e-9)
	assert.InDelta(t, 106, rec.TakeProfit, 1e-9)
	assert.InDelta(t, 6, rec.PnL, 1e-9)
	assert.InDelta(t, 4, rec.PnLPercent, 1e-9)
	assert.Equal(t, "take profit", rec.Reason)
	assert.InDelta(t, 90, rec.DurationMinutes, 1e-9)
	assert.True(t, rec.CloseTime.Equal(closeT))
}

func TestSQLiteRecordCloseErrors(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	err := j.RecordClose(CloseRecord{TradeID: "missing", ExitTime: closeT})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, j.RecordOpen(openRec("T1", "BTC", openT)))
	require.NoError(t, j.RecordClose(CloseRecord{TradeID: "T1", ExitPrice: 99, ExitTime: closeT}))
	err = j.RecordClose(CloseRecord{TradeID: "T1", ExitPrice: 99, ExitTime: closeT})
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestSQLiteRecordOpenErrors(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	assert.Error(t, j.RecordOpen(TradeRecord{Symbol: "BTC"}))

	require.NoError(t, j.RecordOpen(openRec("T1", "BTC", openT)))
	assert.Error(t, j.RecordOpen(openRec("T1", "BTC", openT)), "duplicate id")
}
