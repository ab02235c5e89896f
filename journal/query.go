package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const tradeColumns = `trade_id, symbol, side, quantity, entry_price, exit_price, stop_loss, take_profit,
	open_time, close_time, pnl, pnl_percent, status, reason, duration_minutes`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var (
		rec       TradeRecord
		closeTime sql.NullTime
	)
	err := s.Scan(
		&rec.TradeID,
		&rec.Symbol,
		&rec.Side,
		&rec.Quantity,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.StopLoss,
		&rec.TakeProfit,
		&rec.OpenTime,
		&closeTime,
		&rec.PnL,
		&rec.PnLPercent,
		&rec.Status,
		&rec.Reason,
		&rec.DurationMinutes,
	)
	if err != nil {
		return TradeRecord{}, err
	}
	if closeTime.Valid {
		rec.CloseTime = closeTime.Time
	}
	return rec, nil
}

func (j *SQLite) query(q string, args ...any) ([]TradeRecord, error) {
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q: %w", tradeID, ErrNotFound)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListOpen returns trades not yet closed, oldest first.
func (j *SQLite) ListOpen() ([]TradeRecord, error) {
	return j.query(`SELECT `+tradeColumns+` FROM trades WHERE status = ? ORDER BY open_time ASC`, StatusOpen)
}

// ListTradesClosedBetween returns trades whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	return j.query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE status = ? AND close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, StatusClosed, start.UTC(), end.UTC())
}

// ListTrades returns the most recent trades by open time, newest first.
// limit <= 0 returns everything.
func (j *SQLite) ListTrades(limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	return j.query(`SELECT `+tradeColumns+` FROM trades ORDER BY open_time DESC LIMIT ?`, limit)
}
