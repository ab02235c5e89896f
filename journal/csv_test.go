package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVJournalHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trades.csv")
	j, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()

	rows, err := ReadCSV(fh)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCSVJournalOpenClose(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trades.csv")
	j, err := NewCSV(path)
	require.NoError(t, err)

	require.NoError(t, j.RecordOpen(openRec("T1", "BTC", openT)))
	require.NoError(t, j.RecordClose(CloseRecord{
		TradeID:    "T1",
		ExitPrice:  104,
		ExitTime:   openT.Add(45 * time.Minute),
		PnL:        6,
		PnLPercent: 4,
		Reason:     "take profit",
	}))
	require.NoError(t, j.Close())

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()

	rows, err := ReadCSV(fh)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{
		"open", "T1", "BTC", "long", "1.500000", "100.000000", "",
		"98.000000", "106.000000", "2024-01-02T03:04:05Z", "0.000000", "0.000000", "", "",
	}, rows[0])

	assert.Equal(t, "closed", rows[1][0])
	assert.Equal(t, "BTC", rows[1][2])
	assert.Equal(t, "104.000000", rows[1][6])
	assert.Equal(t, "take profit", rows[1][12])
	assert.Equal(t, "45.000000", rows[1][13])
}

func TestCSVJournalAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trades.csv")
	for i := 0; i < 2; i++ {
		j, err := NewCSV(path)
		require.NoError(t, err)
		require.NoError(t, j.RecordOpen(openRec("T", "BTC", openT)))
		require.NoError(t, j.Close())
	}

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()

	rows, err := ReadCSV(fh)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCSVJournalCloseWithoutOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trades.csv")
	j, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j.RecordClose(CloseRecord{TradeID: "X", ExitPrice: 1, ExitTime: openT, Reason: "manual"}))
	require.NoError(t, j.Close())

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()

	rows, err := ReadCSV(fh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0][13])
}
