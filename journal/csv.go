package journal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"
)

var csvHeader = []string{
	"event", "trade_id", "symbol", "side", "quantity", "entry_price", "exit_price",
	"stop_loss", "take_profit", "time", "pnl", "pnl_percent", "reason", "duration_minutes",
}

// CSVJournal appends one row per lifecycle event. It is write-only; use
// SQLite when trades need to be queried or recovered.
type CSVJournal struct {
	mu     sync.Mutex
	w      *csv.Writer
	f      *os.File
	opened map[string]TradeRecord
}

var _ Journal = (*CSVJournal)(nil)

// NewCSV opens path for appending, writing the header if the file is new.
func NewCSV(path string) (*CSVJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	j := &CSVJournal{w: csv.NewWriter(f), f: f, opened: make(map[string]TradeRecord)}
	if st.Size() == 0 {
		if err := j.write(csvHeader); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return j, nil
}

func (j *CSVJournal) write(rec []string) error {
	if err := j.w.Write(rec); err != nil {
		return err
	}
	j.w.Flush()
	return j.w.Error()
}

func (j *CSVJournal) RecordOpen(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.opened[t.TradeID] = t
	return j.write([]string{
		StatusOpen,
		t.TradeID,
		t.Symbol,
		t.Side,
		f(t.Quantity),
		f(t.EntryPrice),
		"",
		f(t.StopLoss),
		f(t.TakeProfit),
		t.OpenTime.UTC().Format(time.RFC3339),
		f(t.PnL),
		f(t.PnLPercent),
		"",
		"",
	})
}

// RecordClose writes a close row. Trades opened before this journal was
// created are written without the open-side columns.
func (j *CSVJournal) RecordClose(c CloseRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	t, ok := j.opened[c.TradeID]
	delete(j.opened, c.TradeID)

	dur := ""
	if ok {
		dur = f(durationMinutes(t.OpenTime, c.ExitTime))
	}
	return j.write([]string{
		StatusClosed,
		c.TradeID,
		t.Symbol,
		t.Side,
		f(t.Quantity),
		f(t.EntryPrice),
		f(c.ExitPrice),
		f(t.StopLoss),
		f(t.TakeProfit),
		c.ExitTime.UTC().Format(time.RFC3339),
		f(c.PnL),
		f(c.PnLPercent),
		c.Reason,
		dur,
	})
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.w.Flush()
	if err := j.w.Error(); err != nil {
		_ = j.f.Close()
		return err
	}
	return j.f.Close()
}

// ReadCSV loads the rows written by CSVJournal.
func ReadCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("empty journal")
	}
	if len(rows[0]) != len(csvHeader) || rows[0][0] != csvHeader[0] {
		return nil, fmt.Errorf("unexpected header %v", rows[0])
	}
	return rows[1:], nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
