// Package replay feeds recorded quotes through the engine on a simulated
// clock.
package replay

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Row is one recorded quote.
type Row struct {
	Time   time.Time
	Symbol string
	Price  float64
}

// Feed reads quotes from CSV. Accepted layouts:
//
//	time,symbol,price
//	time,symbol,bid,ask   (price is the mid)
//
// A header row is allowed. Times are RFC 3339 or unix seconds.
type Feed struct {
	c    io.Closer
	r    *csv.Reader
	from time.Time
	to   time.Time
	line int

	sawFirst bool
}

// NewFeed reads rows from r. A zero from or to leaves that side open; to
// is exclusive.
func NewFeed(r io.Reader, from, to time.Time) *Feed {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	return &Feed{r: cr, from: from, to: to}
}

// Open is NewFeed over a file.
func Open(path string, from, to time.Time) (*Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	feed := NewFeed(f, from, to)
	feed.c = f
	return feed, nil
}

func (f *Feed) Close() error {
	if f.c != nil {
		return f.c.Close()
	}
	return nil
}

// Next returns the next row in range. ok is false at end of input.
func (f *Feed) Next() (Row, bool, error) {
	for {
		rec, err := f.r.Read()
		if err == io.EOF {
			return Row{}, false, nil
		}
		if err != nil {
			return Row{}, false, err
		}
		f.line++
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}

		if !f.sawFirst {
			f.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(rec[0]), "time") {
				continue
			}
		}

		row, err := parseRow(rec)
		if err != nil {
			return Row{}, false, fmt.Errorf("line %d: %w", f.line, err)
		}
		if !inRange(row.Time, f.from, f.to) {
			continue
		}
		return row, true, nil
	}
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

func parseRow(rec []string) (Row, error) {
	if len(rec) < 3 {
		return Row{}, fmt.Errorf("want at least 3 columns, got %d", len(rec))
	}
	t, err := parseTime(rec[0])
	if err != nil {
		return Row{}, err
	}
	sym := strings.TrimSpace(rec[1])
	if sym == "" {
		return Row{}, fmt.Errorf("empty symbol")
	}

	price, err := parseFloat(rec[2])
	if err != nil {
		return Row{}, fmt.Errorf("bad price %q: %w", rec[2], err)
	}
	if len(rec) >= 4 && strings.TrimSpace(rec[3]) != "" {
		ask, err := parseFloat(rec[3])
		if err != nil {
			return Row{}, fmt.Errorf("bad ask %q: %w", rec[3], err)
		}
		price = (price + ask) / 2
	}
	return Row{Time: t, Symbol: sym, Price: price}, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
