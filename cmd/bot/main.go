package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"signalflow/config"
	"signalflow/internal/api/openai"
	"signalflow/internal/broker"
	"signalflow/internal/confidence"
	"signalflow/internal/database"
	"signalflow/internal/extractor"
	"signalflow/internal/metrics"
	"signalflow/internal/pipeline"
	"signalflow/internal/risk"
	"signalflow/internal/telegram"
	"signalflow/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
	log.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// language model client; without a key the extractor runs fallback-only
	var completions models.CompletionClient
	if cfg.OpenAIAPIKey != "" {
		completions = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.ExtractTimeout, cfg.ExtractRetries)
	} else {
		logger.Warn().Msg("OPENAI_API_KEY not set, running with deterministic extraction only")
	}

	ext := extractor.New(completions, extractor.Options{
		Assets:     cfg.SupportedAssets,
		Timeframes: cfg.SupportedTimeframes,
		Brokers:    cfg.SupportedBrokers,
		Keywords:   cfg.SignalKeywords,
	})

	model := confidence.New(cfg.MinHistoricalSignals, cfg.Risk.ConfidenceThreshold, cfg.Risk.Martingale.Enabled)
	gate := risk.NewGate(cfg.Risk, cfg.BrokerLimits, cfg.InitialBalance)

	// optional snapshot store; the bot runs fine without it
	var db *database.DB
	if cfg.Database.Password != "" {
		db, err = database.New(database.ConnectionParams{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize database")
		}
		restoreState(db, model, gate, &logger)
	} else {
		logger.Warn().Msg("DB_PASSWORD not set, state will not survive restarts")
	}

	// broker sink; without a URL approved orders are logged, not placed
	var sink models.BrokerSink
	if cfg.BrokerWSURL != "" {
		ws := broker.NewWSClient(cfg.BrokerWSURL)
		if err := ws.Connect(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to broker")
		}
		defer ws.Close()
		sink = ws
	} else {
		logger.Warn().Msg("BROKER_WS_URL not set, running in dry-run mode")
	}

	rec := metrics.New()
	pipe := pipeline.New(cfg, ext, model, gate, sink, rec)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			logger.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	source, err := telegram.NewSource(cfg.TelegramBotToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
	}

	messages, err := source.Messages(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start Telegram polling")
	}

	go pipe.Run(ctx)

	// feed inbound messages into the pipeline
	go func() {
		for msg := range messages {
			if err := pipe.Enqueue(ctx, msg); err != nil {
				return
			}
		}
	}()

	// periodic state snapshots
	if db != nil {
		go snapshotLoop(ctx, db, model, gate, &logger)
	}

	// submit approved orders, drop rejections
	for dec := range pipe.Decisions() {
		if !dec.Approved() {
			continue
		}
		order := dec.Order
		if sink == nil {
			logger.Info().
				Str("order_id", order.ID).
				Str("asset", order.Params.Asset).
				Str("action", string(order.Params.Action)).
				Float64("amount", order.Params.Amount).
				Msg("Dry run, order not placed")
			continue
		}
		go func(order *models.TradeOrder) {
			if _, err := pipe.Submit(ctx, order); err != nil {
				logger.Error().Err(err).Str("order_id", order.ID).Msg("Order execution failed")
			}
		}(order)
	}

	if db != nil {
		saveState(db, model, gate, &logger)
	}
	logger.Info().Msg("Shutdown complete")
}

func restoreState(db *database.DB, model *confidence.Model, gate *risk.Gate, logger *zerolog.Logger) {
	records, err := db.LoadChannels()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load channel records")
	} else if len(records) > 0 {
		model.Restore(records)
		logger.Info().Int("channels", len(records)).Msg("Channel history restored")
	}

	account, err := db.LoadAccount()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load account state")
	} else if account != nil {
		gate.RestoreAccount(*account)
		logger.Info().Float64("balance", account.Balance).Msg("Account state restored")
	}
}

func snapshotLoop(ctx context.Context, db *database.DB, model *confidence.Model, gate *risk.Gate, logger *zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saveState(db, model, gate, logger)
		}
	}
}

func saveState(db *database.DB, model *confidence.Model, gate *risk.Gate, logger *zerolog.Logger) {
	if err := db.SaveChannels(model.Export()); err != nil {
		logger.Error().Err(err).Msg("Failed to save channel records")
	}
	if err := db.SaveAccount(gate.Account()); err != nil {
		logger.Error().Err(err).Msg("Failed to save account state")
	}
}
