package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	_ "github.com/joho/godotenv/autoload"

	"github.com/orbgrid/orb-agent/internal/agent"
	"github.com/orbgrid/orb-agent/internal/config"
	"github.com/orbgrid/orb-agent/internal/evaluator"
	"github.com/orbgrid/orb-agent/internal/gateway"
	"github.com/orbgrid/orb-agent/internal/journal"
	"github.com/orbgrid/orb-agent/internal/logging"
	"github.com/orbgrid/orb-agent/internal/pricing"
	"github.com/orbgrid/orb-agent/internal/strategy"
	"github.com/orbgrid/orb-agent/internal/swap"
)

func main() {
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadAgentConfig()
	if err != nil {
		bootstrapLogger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger, closeLogger, err := logging.New("agent", cfg.Log)
	if err != nil {
		bootstrapLogger.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := closeLogger(); closeErr != nil {
			bootstrapLogger.Error("failed to close logger", "err", closeErr)
		}
	}()

	if source, sourceErr := config.CurrentConfigSource(); sourceErr == nil {
		logger.Info("configuration loaded", "phase", source.Phase, "path", source.Path, "loaded", source.Loaded)
	}

	signer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		logger.Error("failed to load keypair", "path", cfg.KeypairPath, "err", err)
		os.Exit(1)
	}

	strategyKind, err := strategy.ParseKind(cfg.Strategy)
	if err != nil {
		logger.Error("invalid deployment strategy", "err", err)
		os.Exit(1)
	}
	var curves *strategy.CurveSet
	if cfg.CurvesFile != "" {
		curves, err = strategy.LoadCurves(cfg.CurvesFile)
		if err != nil {
			logger.Error("failed to load strategy curves", "path", cfg.CurvesFile, "err", err)
			os.Exit(1)
		}
		logger.Info("strategy curves loaded", "path", cfg.CurvesFile, "version", curves.Version)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := gateway.NewClient(gateway.Config{
		RPCURL:                        cfg.RPCURL,
		Commitment:                    cfg.Commitment,
		Signer:                        signer,
		SkipPreflight:                 cfg.SkipPreflight,
		SendMaxRetries:                cfg.SendMaxRetries,
		ComputeUnitLimit:              cfg.ComputeUnitLimit,
		ComputeUnitPriceMicroLamports: cfg.ComputeUnitPriceMicroLamports,
	})

	priceStream := pricing.NewStream(pricing.Config{
		URL:               cfg.HermesWSURL,
		FeedID:            cfg.PriceFeedID,
		ReconnectInterval: cfg.PriceReconnectInterval,
		MaxAge:            cfg.PriceMaxAge,
	}, logger)
	go priceStream.Run(ctx)

	swapClient := swap.NewClient(swap.Config{
		BaseURL:     cfg.JupiterBaseURL,
		SlippageBps: cfg.SlippageBps,
	})

	var cycleJournal agent.CycleJournal
	if cfg.JournalDSN != "" {
		store, err := journal.NewStore(ctx, cfg.JournalDSN)
		if err != nil {
			logger.Error("failed to open cycle journal", "err", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				logger.Warn("failed to close cycle journal", "err", closeErr)
			}
		}()
		cycleJournal = store
	}

	svc, err := agent.New(agent.Config{
		ProgramID:    cfg.ProgramID,
		OrbMint:      cfg.OrbMint,
		SolMint:      cfg.SolMint,
		FeeCollector: cfg.FeeCollector,
		PollInterval: cfg.PollInterval,
		TxTimeout:    cfg.TxTimeout,

		MiningEnabled: cfg.MiningEnabled,
		DryRun:        cfg.DryRun,

		Strategy: strategy.Config{
			Kind:                 strategyKind,
			ManualAmountLamports: cfg.ManualAmountLamports,
			TargetRounds:         cfg.TargetRounds,
			Percentage:           cfg.Percentage,
			Kelly: strategy.KellyParams{
				WinProbability: cfg.Kelly.WinProbability,
				PayoutMultiple: cfg.Kelly.PayoutMultiple,
				MaxFraction:    cfg.Kelly.MaxFraction,
			},
			FeeReserveLamports: cfg.FeeEstimateLamports,
			Curves:             curves,
		},
		Evaluator: evaluator.Params{
			WinShare:            cfg.EvalWinShare,
			CostFactor:          cfg.EvalCostFactor,
			MotherloadThreshold: cfg.MotherloadThreshold,
		},
		Thresholds: agent.Thresholds{
			ClaimSolLamports: cfg.ClaimThresholdSol,
			ClaimOrb:         cfg.ClaimThresholdOrb,
			AutoSwapOrb:      cfg.AutoSwapThresholdOrb,
		},

		MinSolBalanceLamports: cfg.MinSolBalanceLamports,
		FeeEstimateLamports:   cfg.FeeEstimateLamports,
		Retry: gateway.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
	}, agent.Deps{
		Gateway: gw,
		Price:   priceStream,
		Swapper: swapClient,
		Journal: cycleJournal,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialize agent", "err", err)
		os.Exit(1)
	}

	if err := svc.Run(ctx); err != nil {
		logger.Error("agent exited with error", "err", err)
		os.Exit(1)
	}
}
