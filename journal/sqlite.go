package journal

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

var (
	_ Journal   = (*SQLite)(nil)
	_ Recoverer = (*SQLite)(nil)
)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// One writer; avoids SQLITE_BUSY between the dispatcher and CLI reads.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordOpen(t TradeRecord) error {
	if t.TradeID == "" {
		return errors.New("record open: trade id is required")
	}
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, symbol, side, quantity, entry_price, stop_loss, take_profit, open_time, pnl, pnl_percent, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Symbol, t.Side, t.Quantity, t.EntryPrice,
		t.StopLoss, t.TakeProfit, t.OpenTime.UTC(), t.PnL, t.PnLPercent, StatusOpen,
	)
	if err != nil {
		return fmt.Errorf("record open %s: %w", t.TradeID, err)
	}
	return nil
}

// RecordClose completes the trade row and derives its duration from the
// stored open time.
func (j *SQLite) RecordClose(c CloseRecord) (err error) {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		rec    TradeRecord
		status string
	)
	row := tx.QueryRow(`SELECT open_time, status FROM trades WHERE trade_id = ?`, c.TradeID)
	if err = row.Scan(&rec.OpenTime, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("record close %s: %w", c.TradeID, ErrNotFound)
		}
		return err
	}
	if status == StatusClosed {
		return fmt.Errorf("record close %s: %w", c.TradeID, ErrAlreadyClosed)
	}

	_, err = tx.Exec(`
		UPDATE trades
		SET exit_price = ?, close_time = ?, pnl = ?, pnl_percent = ?, status = ?, reason = ?, duration_minutes = ?
		WHERE trade_id = ?`,
		c.ExitPrice, c.ExitTime.UTC(), c.PnL, c.PnLPercent, StatusClosed, c.Reason,
		durationMinutes(rec.OpenTime, c.ExitTime), c.TradeID,
	)
	if err != nil {
		return fmt.Errorf("record close %s: %w", c.TradeID, err)
	}
	return tx.Commit()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
