package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/riskdesk/internal/logging"
	"github.com/rustyeddy/riskdesk/market"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the strategy loop and watchdog",
	Long: `Run the engine against live quotes, or replay a quote file.

Live quotes are POSTed as JSON to /quotes on the listen address:
  {"symbol":"BTC/USDT","price":64250.5}

With --replay the quotes come from a CSV file (time,symbol,price) and the
engine runs on the recorded timestamps.

Examples:
  riskdesk run -c riskdesk.yaml
  riskdesk run -c riskdesk.yaml --replay quotes.csv`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runReplayPath string
	runFrom       string
	runTo         string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runReplayPath, "replay", "", "replay quotes from a CSV file instead of running live")
	runCmd.Flags().StringVar(&runFrom, "from", "", "replay start (RFC 3339, inclusive)")
	runCmd.Flags().StringVar(&runTo, "to", "", "replay end (RFC 3339, exclusive)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Production)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runReplayPath != "" {
		from, to, err := replayBounds(runFrom, runTo)
		if err != nil {
			return err
		}
		return replayFile(ctx, cmd.OutOrStdout(), cfg, log, runReplayPath, from, to)
	}

	a, err := newApp(cfg, log, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.recover(); err != nil {
		return err
	}
	return serve(ctx, a)
}

// serve runs the loops, the dispatcher and the HTTP listener until ctx is
// cancelled or one of them fails.
func serve(ctx context.Context, a *app) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.disp.Run(ctx) })
	g.Go(func() error { return a.loop.Run(ctx) })
	g.Go(func() error { return a.watchdog.Run(ctx) })

	mux := http.NewServeMux()
	mux.Handle("/quotes", market.QuoteHandler(a.store, nil))
	if a.cfg.Metrics.Enabled {
		mux.Handle("/metrics", a.metrics.Handler())
	}
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(logging.Slog(a.log.Named("http")).Handler(), slog.LevelError),
	}
	g.Go(func() error {
		a.log.Info("listening", zap.String("addr", srv.Addr), zap.Bool("metrics", a.cfg.Metrics.Enabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})

	a.log.Info("riskdesk running",
		zap.Strings("symbols", a.cfg.Scheduler.Symbols),
		zap.Int("restored", len(a.engine.OpenPositions())),
	)
	return g.Wait()
}

func parseBound(flag, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad --%s: %w", flag, err)
	}
	return t, nil
}

func replayBounds(fromStr, toStr string) (time.Time, time.Time, error) {
	from, err := parseBound("from", fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseBound("to", toStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from must be before --to")
	}
	return from, to, nil
}
