package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"masmarket-go/internal/config"
	"masmarket-go/internal/market"
	"masmarket-go/internal/metrics"
	"masmarket-go/internal/record"
	"masmarket-go/internal/sim"
	"masmarket-go/internal/stream"
	"masmarket-go/internal/util"
)

func main() {
	_ = godotenv.Load()

	configPath := os.Getenv("SIM_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Str("path", configPath).Msg("load config")
	}

	logLevel := cfg.App.LogLevel
	if override := os.Getenv("SIM_LOG_LEVEL"); override != "" {
		logLevel = override
	}
	log := util.NewLogger(logLevel)

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	recorders := record.Multi{record.Metrics{}}
	if cfg.Record.FillsPath != "" {
		jsonl, err := record.NewJSONLRecorder(cfg.Record.FillsPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open fills recorder")
		}
		defer jsonl.Close()
		recorders = append(recorders, jsonl)
	}
	if cfg.Record.SQLitePath != "" {
		store, err := record.NewStore(cfg.Record.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Msg("open fill store")
		}
		defer store.Close()
		recorders = append(recorders, store)
	}

	exchange := market.NewExchange(market.Config{
		Seed:              cfg.Simulation.Seed,
		FeeRatePPM:        cfg.Market.FeeRatePPM,
		InitialPrice:      cfg.Market.InitialPrice,
		TVWidth:           cfg.Market.TVWidth,
		TVDrift:           cfg.Market.TVDrift,
		DepositTerms:      cfg.Market.DepositTerms,
		DepositBaseRate:   cfg.Market.DepositBaseRate,
		DepositRateSpread: cfg.Market.DepositRateSpread,
	}, recorders)

	manager, err := sim.NewManager(cfg, exchange.RegisterAgent, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build population")
	}

	engine := sim.NewEngine(exchange, manager, cfg.Simulation.MacroTicks, cfg.Simulation.MicroTicksPerMacro, log)

	if cfg.App.StreamAddr != "" {
		broadcaster := stream.NewServer(log)
		_ = broadcaster.Serve(cfg.App.StreamAddr)
		defer broadcaster.Close()
		engine.OnMacroTick(func(summary sim.TickSummary) {
			broadcaster.Publish(summary)
		})
		log.Info().Str("addr", cfg.App.StreamAddr).Msg("telemetry stream up")
	}

	log.Info().
		Int("macro_ticks", cfg.Simulation.MacroTicks).
		Int("micro_ticks_per_macro", cfg.Simulation.MicroTicksPerMacro).
		Int64("seed", cfg.Simulation.Seed).
		Msg("simulation starting")

	if err := engine.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("simulation aborted")
	}
	log.Info().Msg("simulation complete")
}
