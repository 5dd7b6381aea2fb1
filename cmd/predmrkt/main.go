package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	_ "net/http/pprof"

	"github.com/almastelek/PredMrkt/internal/book"
	"github.com/almastelek/PredMrkt/internal/feed/polymarket"
	"github.com/almastelek/PredMrkt/internal/infra"
	"github.com/almastelek/PredMrkt/internal/infra/metrics"
	"github.com/almastelek/PredMrkt/internal/ingest"
	"github.com/almastelek/PredMrkt/internal/replay"
	"github.com/almastelek/PredMrkt/internal/sim"
	"github.com/almastelek/PredMrkt/internal/storage"
)

const usage = `Usage: predmrkt <command> [flags]

Commands:
  markets   discover markets via Gamma and select the tracked set
  track     stream the CLOB market channel and log raw events
  replay    rebuild book state from the log and print a series
  log       show event log statistics
  sim       run a strategy simulation over logged events

Global flags (before the command):
  -config   path to a YAML config file
`

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(infra.NewLogger(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "markets":
		err = cmdMarkets(ctx, cfg, args)
	case "track":
		err = cmdTrack(ctx, cfg)
	case "replay":
		err = cmdReplay(ctx, cfg, args)
	case "log":
		err = cmdLog(ctx, cfg)
	case "sim":
		err = cmdSim(ctx, cfg, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil && err != context.Canceled {
		slog.Error("command failed", "cmd", cmd, "err", err)
		os.Exit(1)
	}
}

func openStore(cfg *infra.Config) (*storage.Store, error) {
	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = infra.DefaultDBPath()
	}
	return storage.Open(dbPath)
}

// cmdMarkets discovers markets on Gamma, caches their metadata, and
// replaces the tracked set with the top selection.
func cmdMarkets(ctx context.Context, cfg *infra.Config, args []string) error {
	fs := flag.NewFlagSet("markets", flag.ExitOnError)
	limit := fs.Int("limit", 200, "markets to fetch from Gamma")
	pin := fs.String("pin", "", "market id to pin before selecting")
	fs.Parse(args)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if *pin != "" {
		if err := store.PinMarket(ctx, polymarket.NormalizeConditionID(*pin), "polymarket"); err != nil {
			return err
		}
		slog.Info("pinned market", "market_id", *pin)
	}

	client := polymarket.NewGammaClient(cfg.Polymarket.GammaAPIBase)
	markets, err := client.FetchMarkets(ctx, *limit)
	if err != nil {
		return err
	}
	slog.Info("fetched markets", "count", len(markets))

	if err := store.UpsertMarkets(ctx, markets); err != nil {
		return err
	}

	selected := polymarket.SelectTopMarkets(markets, polymarket.SelectOptions{
		TrackCount:    cfg.Markets.TrackCount,
		MinVolume24h:  cfg.Markets.MinVolume24h,
		MinLiquidity:  cfg.Markets.MinLiquidity,
		AllowCategory: cfg.Markets.AllowCategory,
		DenyCategory:  cfg.Markets.DenyCategory,
		Pinned:        cfg.Markets.PinnedMarkets,
	})
	ids := make([]string, len(selected))
	for i, m := range selected {
		ids[i] = m.MarketID
		slog.Info("tracking", "market_id", m.MarketID, "title", m.Title,
			"volume_24h", m.Volume24h, "liquidity", m.Liquidity)
	}
	return store.SetTrackedMarkets(ctx, ids, "polymarket")
}

// cmdTrack runs live ingestion: WS stream into the manager, metrics and
// pprof on the side.
func cmdTrack(ctx context.Context, cfg *infra.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	assetIDs, err := store.TrackedAssetIDs(ctx)
	if err != nil {
		return err
	}
	if len(assetIDs) == 0 {
		return fmt.Errorf("no tracked assets; run 'predmrkt markets' first")
	}

	reg := metrics.Init()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	go func() {
		slog.Info("metrics server started", "addr", cfg.Metrics.ListenAddr)
		if err := http.ListenAndServe(cfg.Metrics.ListenAddr, mux); err != nil {
			slog.Error("metrics server failed", "err", err)
		}
	}()

	manager := ingest.NewManager(store, book.NewAggregator(), ingest.Config{
		EventBatchSize: cfg.Storage.EventBatchSize,
		FlushInterval:  time.Duration(cfg.Ingestion.FlushIntervalSec) * time.Second,
	})

	stream := polymarket.NewMarketStream(cfg.Polymarket.ClobWSURL, assetIDs, 0)
	worker := infra.NewWSWorker(stream)
	worker.ReconnectBase = time.Duration(cfg.Ingestion.ReconnectDelaySec) * time.Second
	worker.ReconnectMax = time.Duration(cfg.Ingestion.MaxReconnectDelaySec) * time.Second
	worker.Start(ctx)
	defer worker.Stop()

	// Bridge the stream into the sequencer inbox.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-stream.Events():
				select {
				case manager.Inbox() <- ev:
				default:
					metrics.DroppedMessagesTotal.Inc()
				}
			}
		}
	}()

	// Periodic status line.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := manager.Status()
				slog.Info("ingestion status",
					"messages", st.MsgCount,
					"msgs_per_sec", fmt.Sprintf("%.1f", st.MsgsPerSec))
			}
		}
	}()

	slog.Info("tracking", "assets", len(assetIDs), "ws", cfg.Polymarket.ClobWSURL)
	return manager.Run(ctx)
}

// cmdReplay rebuilds state from the log and prints a JSON series.
func cmdReplay(ctx context.Context, cfg *infra.Config, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	marketID := fs.String("market", "", "market id (required)")
	assetID := fs.String("asset", "", "asset id (required)")
	startTS := fs.Int64("start", 0, "start ingest ts (ms), 0 for open")
	endTS := fs.Int64("end", 0, "end ingest ts (ms), 0 for open")
	mode := fs.String("mode", "mid", "series to print: mid or chart")
	bucketMs := fs.Int64("bucket", 1000, "chart bucket width (ms)")
	depthN := fs.Int("depth", 5, "chart depth levels per side")
	fs.Parse(args)

	if *marketID == "" || *assetID == "" {
		return fmt.Errorf("replay requires -market and -asset")
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	r := replay.New(store)
	opts := replay.Options{
		MarketID: *marketID, AssetID: *assetID,
		StartTS: *startTS, EndTS: *endTS,
	}

	enc := json.NewEncoder(os.Stdout)
	switch *mode {
	case "chart":
		rows, err := r.ChartSeries(ctx, opts, *bucketMs, *depthN)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
	default:
		pts, err := r.MidSeries(ctx, opts)
		if err != nil {
			return err
		}
		for _, pt := range pts {
			if err := enc.Encode(pt); err != nil {
				return err
			}
		}
	}
	return nil
}

// cmdLog prints event log statistics.
func cmdLog(ctx context.Context, cfg *infra.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := store.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("total events:  %d\n", st.TotalEvents)
	if st.TotalEvents > 0 {
		fmt.Printf("ingest range:  %s .. %s\n",
			time.UnixMilli(st.MinIngestTS).UTC().Format(time.RFC3339),
			time.UnixMilli(st.MaxIngestTS).UTC().Format(time.RFC3339))
	}
	for _, mc := range st.ByMarket {
		fmt.Printf("  %-70s %d\n", mc.MarketID, mc.Count)
	}
	return nil
}

// cmdSim runs the basic market maker over logged events.
func cmdSim(ctx context.Context, cfg *infra.Config, args []string) error {
	fs := flag.NewFlagSet("sim", flag.ExitOnError)
	marketID := fs.String("market", "", "market id (required)")
	assetID := fs.String("asset", "", "asset id (required)")
	startTS := fs.Int64("start", 0, "start ingest ts (ms), 0 for open")
	endTS := fs.Int64("end", 0, "end ingest ts (ms), 0 for open")
	spreadFrac := fs.Float64("spread", 0.01, "minimum half-spread fraction of mid")
	skew := fs.Float64("skew", 0.001, "price skew per unit of inventory")
	size := fs.Float64("size", 10, "quote size")
	latency := fs.Int64("latency", 0, "fill latency (ms)")
	fs.Parse(args)

	if *marketID == "" || *assetID == "" {
		return fmt.Errorf("sim requires -market and -asset")
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	strat := sim.NewBasicMM(*spreadFrac, *skew, *size)
	result, err := sim.Run(ctx, store, strat, sim.RunOptions{
		MarketID:  *marketID,
		AssetID:   *assetID,
		StartTS:   *startTS,
		EndTS:     *endTS,
		LatencyMs: *latency,
		Params: map[string]any{
			"spread_frac":   *spreadFrac,
			"skew_per_unit": *skew,
			"quote_size":    *size,
			"latency_ms":    *latency,
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("run %s: strategy=%s fills=%d inventory=%.2f pnl=%.4f events=%d\n",
		result.RunID, result.StrategyName, result.FillCount,
		result.FinalInventory, result.RealizedPnL, result.EventsProcessed)
	return nil
}
