// Command seeder loads synthetic daily candles for the configured universe
// into ClickHouse so the council can run against a fresh dev stack.
package main

import (
	"context"
	"flag"
	"time"

	chclient "tradecouncil/internal/adapters/clickhouse"
	"tradecouncil/internal/adapters/config"
	chrepo "tradecouncil/internal/repository/clickhouse"
	"tradecouncil/pkg/logger"
)

func main() {
	bars := flag.Int("bars", 0, "Candles per symbol (default UNIVERSE_BARS)")
	seed := flag.Int64("seed", 42, "Random seed")
	vol := flag.Float64("vol", 0.02, "Daily volatility of the random walk")
	dryRun := flag.Bool("dry-run", false, "Generate without writing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()

	n := *bars
	if n <= 0 {
		n = cfg.Universe.Bars
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)
	candles := Synthetic(SyntheticConfig{
		Exchange:  cfg.Universe.Exchange,
		Symbols:   cfg.Universe.Symbols,
		Timeframe: cfg.Universe.Timeframe,
		Bars:      n,
		End:       end,
		DailyVol:  *vol,
		Seed:      *seed,
	})

	log.Infow("Starting seeder",
		"symbols", cfg.Universe.Symbols,
		"bars", n,
		"candles", len(candles),
		"dry_run", *dryRun,
		"database", cfg.ClickHouse.Database,
	)
	if *dryRun {
		log.Info("✅ Dry-run mode: candles generated")
		return
	}

	ch, err := chclient.NewClient(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := load(ctx, chrepo.NewMarketDataRepository(ch.Conn()), candles, log); err != nil {
		log.Fatalf("Failed to insert candles: %v", err)
	}

	log.Info("✅ Market data seeded")
}
