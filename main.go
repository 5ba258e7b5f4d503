package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"futures-trading-engine/config"
	"futures-trading-engine/internal/api"
	"futures-trading-engine/internal/cache"
	"futures-trading-engine/internal/engine"
	"futures-trading-engine/internal/events"
	"futures-trading-engine/internal/exchange"
	"futures-trading-engine/internal/indicator"
	"futures-trading-engine/internal/journal"
	"futures-trading-engine/internal/market"
	"futures-trading-engine/internal/regime"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols to start trading immediately")
	timeframe := flag.String("timeframe", "1h", "candle timeframe for started symbols")
	flag.Parse()

	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("loading config")
	}

	logger := buildLogger(cfg.Logging)
	logger.Info().Msg("starting trading engine")

	var client exchange.Client
	if cfg.Exchange.MockMode || cfg.Exchange.APIKey == "" {
		logger.Warn().Msg("running with simulated exchange data")
		client = exchange.NewMockClient()
	} else {
		client = exchange.NewRESTClient(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, cfg.Exchange.BaseURL, logger)
	}

	store := market.NewCandleStore(client, logger)
	analyzer := regime.NewAnalyzer(store, indicator.DefaultConfig(), regime.DefaultThresholds(), logger)

	if cfg.Redis.Enabled {
		shared, err := cache.NewService(cfg.Redis, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis cache unavailable")
		} else {
			analyzer.WithSharedCache(shared)
			defer shared.Close()
		}
	}

	var jrnl journal.Journal = journal.Noop{}
	if cfg.Database.Enabled {
		pg, err := journal.NewPostgres(cfg.Database, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("trade journal unavailable, continuing without persistence")
		} else {
			jrnl = pg
			defer pg.Close()
		}
	}

	bus := events.NewBus()
	bus.SubscribeAll(func(ev events.Event) {
		logger.Debug().Str("event", string(ev.Type)).Fields(ev.Data).Msg("event")
	})

	eng := engine.New(client, store, analyzer, jrnl, bus, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	symbols := splitSymbols(*symbolsFlag)

	var stream *exchange.PriceStream
	if len(symbols) > 0 && cfg.Exchange.StreamURL != "" && !cfg.Exchange.MockMode {
		stream = exchange.NewPriceStream(cfg.Exchange.StreamURL, symbols, logger)
		if err := stream.Start(); err != nil {
			logger.Warn().Err(err).Msg("price stream unavailable, relying on REST polling")
			stream = nil
		} else {
			eng.WithPriceSource(stream)
		}
	}

	for _, symbol := range symbols {
		if err := eng.Start(ctx, symbol, *timeframe, nil); err != nil {
			logger.Error().Err(err).Str("symbol", symbol).Msg("failed to start symbol")
		}
	}

	var server *api.Server
	if cfg.Server.Enabled {
		server = api.NewServer(cfg.Server, eng, logger)
		go func() {
			if err := server.Run(); err != nil {
				logger.Error().Err(err).Msg("http server error")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	cancel()
	eng.StopAll()
	if stream != nil {
		stream.Stop()
	}
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown")
		}
	}
	logger.Info().Msg("shutdown complete")
}

func buildLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func splitSymbols(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
