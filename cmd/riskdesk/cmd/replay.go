package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskdesk/config"
	"github.com/rustyeddy/riskdesk/replay"
)

// replayFile drives a fresh app from a quote CSV on the recorded clock and
// prints the session results to out.
func replayFile(ctx context.Context, out io.Writer, cfg *config.Config, log *zap.Logger, path string, from, to time.Time) error {
	feed, err := replay.Open(path, from, to)
	if err != nil {
		return fmt.Errorf("open replay: %w", err)
	}
	defer feed.Close()

	clock := replay.NewClock(from)
	a, err := newApp(cfg, log, clock.Now)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := replay.Run(ctx, feed, replay.Options{
		Store: a.store,
		Clock: clock,
		OnTick: func(ctx context.Context, _ time.Time) error {
			return a.tick(ctx)
		},
	})
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	// Anything still open is reported, not force-closed.
	prices := a.store.Snapshot()
	sum := a.engine.Summary(prices)
	stats := a.engine.Stats()

	fmt.Fprintf(out, "Replayed %d quotes over %d ticks (%d skipped)\n", st.Rows, st.Ticks, st.Skipped)
	if st.Rows > 0 {
		fmt.Fprintf(out, "  From %s to %s\n", st.First.Format(time.RFC3339), st.Last.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "  Closed trades: %d (win rate %.1f%%, profit factor %.2f)\n",
		stats.TotalTrades, stats.WinRate, stats.ProfitFactor)
	fmt.Fprintf(out, "  Realized PnL: %.2f\n", stats.TotalPnL)
	fmt.Fprintf(out, "  Open positions: %d (unrealized %.2f)\n", sum.OpenPositions, sum.UnrealizedPnL)
	return nil
}
