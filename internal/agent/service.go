// Package agent runs the autonomous operation loop: poll chain state,
// decide, deploy, claim, swap. One Service instance owns one wallet; all
// scheduling is cooperative and single-threaded, so two transactions are
// never in flight at once for the same wallet.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/orbgrid/orb-agent/internal/evaluator"
	"github.com/orbgrid/orb-agent/internal/gateway"
	"github.com/orbgrid/orb-agent/internal/journal"
	"github.com/orbgrid/orb-agent/internal/orb"
	"github.com/orbgrid/orb-agent/internal/strategy"
	"github.com/orbgrid/orb-agent/internal/swap"
)

type CycleResult string

const (
	ResultDeployed                   CycleResult = "deployed"
	ResultBootstrapped               CycleResult = "bootstrapped"
	ResultClaimed                    CycleResult = "claimed"
	ResultSwapped                    CycleResult = "swapped"
	ResultSkippedBelowThreshold      CycleResult = "skipped_below_threshold"
	ResultSkippedInsufficientBalance CycleResult = "skipped_insufficient_balance"
	ResultIdle                       CycleResult = "idle"
	ResultFailed                     CycleResult = "failed"
)

type Config struct {
	ProgramID    solana.PublicKey
	OrbMint      solana.PublicKey
	SolMint      solana.PublicKey
	FeeCollector solana.PublicKey

	PollInterval time.Duration
	TxTimeout    time.Duration

	MiningEnabled bool
	DryRun        bool

	Strategy   strategy.Config
	Evaluator  evaluator.Params
	Thresholds Thresholds

	MinSolBalanceLamports uint64
	// FeeEstimateLamports is the worst-case fee assumed per submitted
	// transaction when checking balances.
	FeeEstimateLamports uint64

	Retry gateway.RetryConfig
}

type Thresholds struct {
	ClaimSolLamports uint64
	ClaimOrb         uint64
	AutoSwapOrb      uint64
}

// PriceSource is the oracle collaborator; pricing.Stream satisfies it.
type PriceSource interface {
	Price() (float64, time.Time, bool)
}

// SwapRouter is the swap-routing collaborator; swap.Client satisfies it.
type SwapRouter interface {
	Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64) (*swap.Quote, error)
	BuildSwapTransaction(ctx context.Context, quote *swap.Quote, wallet solana.PublicKey) (*solana.Transaction, error)
}

// CycleJournal persists per-cycle records; journal.Store satisfies it. Nil
// disables journaling.
type CycleJournal interface {
	InsertCycle(ctx context.Context, record journal.CycleRecord) error
}

type Service struct {
	cfg     Config
	gw      gateway.Gateway
	price   PriceSource
	swapper SwapRouter
	journal CycleJournal
	logger  *slog.Logger
	clock   clockwork.Clock

	// Static PDAs for this wallet, derived once.
	boardPDA      solana.PublicKey
	minerPDA      solana.PublicKey
	automationPDA solana.PublicKey
	stakePDA      solana.PublicKey
	treasuryPDA   solana.PublicKey

	// lastDeployedRound guards against funding the same round twice within
	// this process lifetime. Best effort only: it does not survive a
	// restart, and the chain is the real source of truth.
	lastDeployedRound *uint64
}

type Deps struct {
	Gateway gateway.Gateway
	Price   PriceSource
	Swapper SwapRouter
	Journal CycleJournal
	Logger  *slog.Logger
	Clock   clockwork.Clock
}

func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if err := cfg.Evaluator.Validate(); err != nil {
		return nil, err
	}

	wallet := deps.Gateway.Wallet()
	boardPDA, _, err := orb.DeriveBoardPDA(cfg.ProgramID)
	if err != nil {
		return nil, err
	}
	minerPDA, _, err := orb.DeriveMinerPDA(cfg.ProgramID, wallet)
	if err != nil {
		return nil, err
	}
	automationPDA, _, err := orb.DeriveAutomationPDA(cfg.ProgramID, wallet)
	if err != nil {
		return nil, err
	}
	stakePDA, _, err := orb.DeriveStakePDA(cfg.ProgramID, wallet)
	if err != nil {
		return nil, err
	}
	treasuryPDA, _, err := orb.DeriveTreasuryPDA(cfg.ProgramID)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:           cfg,
		gw:            deps.Gateway,
		price:         deps.Price,
		swapper:       deps.Swapper,
		journal:       deps.Journal,
		logger:        deps.Logger,
		clock:         deps.Clock,
		boardPDA:      boardPDA,
		minerPDA:      minerPDA,
		automationPDA: automationPDA,
		stakePDA:      stakePDA,
		treasuryPDA:   treasuryPDA,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("agent started",
		"wallet", s.gw.Wallet(),
		"program", s.cfg.ProgramID,
		"strategy", s.cfg.Strategy.Kind,
		"poll_interval", s.cfg.PollInterval.String(),
		"mining_enabled", s.cfg.MiningEnabled,
		"dry_run", s.cfg.DryRun,
	)

	s.runCycle(ctx)

	ticker := s.clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("agent stopped")
			return nil
		case <-ticker.Chan():
			s.runCycle(ctx)
		}
	}
}

// runCycle executes one tick and records its outcome. Cycle failures never
// stop the loop; the next tick re-fetches everything.
func (s *Service) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	startedAt := s.clock.Now()
	outcome := s.tick(ctx)

	attrs := []any{
		"result", string(outcome.Result),
		"round", outcome.RoundID,
		"reason", outcome.Reason,
	}
	if outcome.Signature != "" {
		attrs = append(attrs, "signature", outcome.Signature)
	}
	if outcome.Simulated {
		attrs = append(attrs, "simulated", true)
	}
	if outcome.ClaimSignature != "" {
		attrs = append(attrs, "claim_signature", outcome.ClaimSignature)
	}
	if outcome.SwapSignature != "" {
		attrs = append(attrs, "swap_signature", outcome.SwapSignature)
	}
	if outcome.Result == ResultFailed {
		s.logger.Error("cycle complete", attrs...)
	} else {
		s.logger.Info("cycle complete", attrs...)
	}

	if s.journal != nil {
		record := journal.CycleRecord{
			StartedAt: startedAt,
			RoundID:   outcome.RoundID,
			Result:    string(outcome.Result),
			Reason:    outcome.Reason,
			Signature: outcome.Signature,
			Simulated: outcome.Simulated,
		}
		if err := s.journal.InsertCycle(ctx, record); err != nil {
			s.logger.Warn("failed to journal cycle", "err", err)
		}
	}
}

type cycleOutcome struct {
	Result         CycleResult
	RoundID        uint64
	Reason         string
	Signature      string
	Simulated      bool
	ClaimSignature string
	SwapSignature  string
}
