package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/orbgrid/orb-agent/internal/evaluator"
	"github.com/orbgrid/orb-agent/internal/gateway"
	"github.com/orbgrid/orb-agent/internal/orb"
	"github.com/orbgrid/orb-agent/internal/rewards"
	"github.com/orbgrid/orb-agent/internal/strategy"
)

// tick runs one full operation cycle: the deploy branch first, then the
// claim/swap sub-cycle. The sub-cycle runs regardless of how the deploy
// branch ended; a failed deploy never blocks a due claim.
func (s *Service) tick(ctx context.Context) cycleOutcome {
	outcome := s.deployTick(ctx)
	s.claimSwapTick(ctx, &outcome)
	return outcome
}

func (s *Service) deployTick(ctx context.Context) cycleOutcome {
	boardData, err := s.readAccount(ctx, "board", s.boardPDA)
	if err != nil {
		if errors.Is(err, gateway.ErrAccountNotFound) {
			return cycleOutcome{Result: ResultFailed, Reason: "board account not found, program id is likely wrong"}
		}
		return cycleOutcome{Result: ResultFailed, Reason: fmt.Sprintf("fetch board: %v", err)}
	}
	board, err := orb.ParseBoard(boardData)
	if err != nil {
		return cycleOutcome{Result: ResultFailed, Reason: fmt.Sprintf("decode board: %v", err)}
	}
	roundID := board.CurrentRoundID

	roundPDA, _, err := orb.DeriveRoundPDA(s.cfg.ProgramID, roundID)
	if err != nil {
		return cycleOutcome{Result: ResultFailed, RoundID: roundID, Reason: fmt.Sprintf("derive round address: %v", err)}
	}
	roundData, err := s.readAccount(ctx, "round", roundPDA)
	if err != nil {
		if errors.Is(err, gateway.ErrAccountNotFound) {
			return cycleOutcome{Result: ResultIdle, RoundID: roundID, Reason: "current round account not initialized yet"}
		}
		return cycleOutcome{Result: ResultFailed, RoundID: roundID, Reason: fmt.Sprintf("fetch round: %v", err)}
	}
	round, err := orb.ParseRound(roundData)
	if err != nil {
		return cycleOutcome{Result: ResultFailed, RoundID: roundID, Reason: fmt.Sprintf("decode round: %v", err)}
	}
	if round.WinningSquare != nil {
		return cycleOutcome{Result: ResultIdle, RoundID: roundID, Reason: "current round already settled"}
	}

	if !s.cfg.MiningEnabled {
		return cycleOutcome{Result: ResultIdle, RoundID: roundID, Reason: "mining disabled"}
	}

	automationData, err := s.readAccount(ctx, "automation", s.automationPDA)
	if errors.Is(err, gateway.ErrAccountNotFound) {
		return s.bootstrap(ctx, roundID)
	}
	if err != nil {
		return cycleOutcome{Result: ResultFailed, RoundID: roundID, Reason: fmt.Sprintf("fetch automation: %v", err)}
	}
	automation, err := orb.ParseAutomation(automationData)
	if err != nil {
		return cycleOutcome{Result: ResultFailed, RoundID: roundID, Reason: fmt.Sprintf("decode automation: %v", err)}
	}

	if s.lastDeployedRound != nil && *s.lastDeployedRound == roundID {
		return cycleOutcome{Result: ResultIdle, RoundID: roundID, Reason: "already deployed into this round"}
	}

	decision, err := strategy.Plan(s.cfg.Strategy, round.Motherload, automation.RemainingBalance)
	if err != nil {
		return cycleOutcome{Result: ResultFailed, RoundID: roundID, Reason: fmt.Sprintf("plan deployment: %v", err)}
	}
	if !decision.ShouldDeploy {
		result := ResultSkippedBelowThreshold
		if decision.Reason == "insufficient balance" {
			result = ResultSkippedInsufficientBalance
		}
		return cycleOutcome{Result: result, RoundID: roundID, Reason: decision.Reason}
	}

	priceSol, priceAt, ok := s.price.Price()
	if !ok {
		priceSol = 0
	}
	assessment := evaluator.Evaluate(round, decision.AmountLamports, priceSol, s.cfg.Evaluator)
	if !assessment.ShouldMine {
		return cycleOutcome{Result: ResultSkippedBelowThreshold, RoundID: roundID, Reason: assessment.Reason}
	}

	walletBalance, err := s.readBalance(ctx, s.gw.Wallet())
	if err != nil {
		return cycleOutcome{Result: ResultFailed, RoundID: roundID, Reason: fmt.Sprintf("fetch wallet balance: %v", err)}
	}
	if walletBalance < s.cfg.MinSolBalanceLamports+s.cfg.FeeEstimateLamports {
		return cycleOutcome{
			Result:  ResultSkippedInsufficientBalance,
			RoundID: roundID,
			Reason: fmt.Sprintf("wallet balance %d below reserve %d",
				walletBalance, s.cfg.MinSolBalanceLamports+s.cfg.FeeEstimateLamports),
		}
	}

	s.logger.Info("deploying into round",
		"round", roundID,
		"amount_lamports", decision.AmountLamports,
		"motherload", round.Motherload,
		"unique_miners", round.UniqueMinerCount,
		"expected_value_sol", assessment.ExpectedValueSol,
		"orb_price_sol", priceSol,
		"price_age", s.clock.Now().Sub(priceAt).String(),
		"estimated_rounds_remaining", decision.EstimatedRoundsRemaining,
	)

	if s.cfg.DryRun {
		s.rememberDeploy(roundID)
		return cycleOutcome{
			Result:    ResultDeployed,
			RoundID:   roundID,
			Reason:    fmt.Sprintf("would deploy %d lamports across all squares", decision.AmountLamports),
			Simulated: true,
		}
	}

	ix := orb.NewDeployInstruction(
		s.cfg.ProgramID,
		s.gw.Wallet(),
		s.automationPDA,
		s.cfg.FeeCollector,
		s.minerPDA,
		orb.DefaultDeployArgs(decision.AmountLamports),
	)
	sig, err := s.submitAndConfirm(ctx, "deploy", []solana.Instruction{ix})
	if err != nil {
		reason := fmt.Sprintf("deploy failed: %v", err)
		if gateway.IsRejection(err) {
			reason = fmt.Sprintf("deploy rejected by program: %v", err)
		}
		return cycleOutcome{Result: ResultFailed, RoundID: roundID, Reason: reason}
	}

	s.rememberDeploy(roundID)
	return cycleOutcome{
		Result:    ResultDeployed,
		RoundID:   roundID,
		Reason:    fmt.Sprintf("deployed %d lamports across all squares", decision.AmountLamports),
		Signature: sig.String(),
	}
}

// bootstrap registers the wallet with the program: one automate call creates
// both the miner and automation accounts. Deployment resumes next tick once
// they exist.
func (s *Service) bootstrap(ctx context.Context, roundID uint64) cycleOutcome {
	s.logger.Info("automation account missing, bootstrapping miner registration", "round", roundID)

	if s.cfg.DryRun {
		return cycleOutcome{
			Result:    ResultBootstrapped,
			RoundID:   roundID,
			Reason:    "would register miner and automation accounts",
			Simulated: true,
		}
	}

	ix := orb.NewAutomateInstruction(s.cfg.ProgramID, s.gw.Wallet(), s.automationPDA, s.minerPDA)
	sig, err := s.submitAndConfirm(ctx, "automate", []solana.Instruction{ix})
	if err != nil {
		return cycleOutcome{Result: ResultFailed, RoundID: roundID, Reason: fmt.Sprintf("bootstrap failed: %v", err)}
	}
	return cycleOutcome{
		Result:    ResultBootstrapped,
		RoundID:   roundID,
		Reason:    "registered miner and automation accounts",
		Signature: sig.String(),
	}
}

// claimSwapTick checks reward balances and fires the claim and swap
// triggers. Errors here degrade to log lines; the deploy outcome already in
// out stays authoritative unless the cycle was otherwise uneventful.
func (s *Service) claimSwapTick(ctx context.Context, out *cycleOutcome) {
	minerData, err := s.readAccount(ctx, "miner", s.minerPDA)
	if errors.Is(err, gateway.ErrAccountNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("skipping reward check", "err", err)
		return
	}
	miner, err := orb.ParseMiner(minerData)
	if err != nil {
		s.logger.Error("skipping reward check", "err", err)
		return
	}

	stake, treasury := s.fetchStakeState(ctx)

	walletOrb, err := s.readTokenBalance(ctx, s.gw.Wallet(), s.cfg.OrbMint)
	if err != nil {
		s.logger.Warn("skipping reward check", "err", err)
		return
	}

	status, err := rewards.Assess(miner, stake, treasury, walletOrb, rewards.Thresholds{
		ClaimSolLamports: s.cfg.Thresholds.ClaimSolLamports,
		ClaimOrb:         s.cfg.Thresholds.ClaimOrb,
		AutoSwapOrb:      s.cfg.Thresholds.AutoSwapOrb,
	})
	if err != nil {
		s.logger.Error("reward assessment failed", "err", err)
		return
	}

	claimed := false
	swapped := false

	if status.ShouldClaim {
		claimed = s.claim(ctx, out, status)
	}
	if status.ShouldSwap {
		swapped = s.swap(ctx, out, walletOrb)
	}

	// An uneventful deploy branch yields the headline to reward activity.
	switch out.Result {
	case ResultIdle, ResultSkippedBelowThreshold, ResultSkippedInsufficientBalance:
		if claimed {
			out.Result = ResultClaimed
			out.Reason = fmt.Sprintf("claimed rewards (%d lamports, %d orb units)", status.ClaimableSolLamports, status.ClaimableOrb)
		} else if swapped {
			out.Result = ResultSwapped
			out.Reason = fmt.Sprintf("swapped %d orb units to sol", walletOrb)
		}
	}
}

func (s *Service) claim(ctx context.Context, out *cycleOutcome, status rewards.Status) bool {
	s.logger.Info("claiming rewards",
		"claimable_sol_lamports", status.ClaimableSolLamports,
		"claimable_orb", status.ClaimableOrb,
		"accrued_stake_orb", status.AccruedStakeOrb,
	)

	if s.cfg.DryRun {
		out.Simulated = true
		return true
	}

	ix := orb.NewClaimInstruction(s.cfg.ProgramID, s.gw.Wallet(), s.minerPDA)
	sig, err := s.submitAndConfirm(ctx, "claim", []solana.Instruction{ix})
	if err != nil {
		s.logger.Error("claim failed", "err", err)
		return false
	}
	out.ClaimSignature = sig.String()
	return true
}

func (s *Service) swap(ctx context.Context, out *cycleOutcome, walletOrb uint64) bool {
	if s.swapper == nil {
		s.logger.Warn("swap threshold crossed but no swap router configured", "wallet_orb", walletOrb)
		return false
	}

	s.logger.Info("swapping accumulated orb to sol", "amount", walletOrb)

	if s.cfg.DryRun {
		out.Simulated = true
		return true
	}

	quote, err := s.swapper.Quote(ctx, s.cfg.OrbMint, s.cfg.SolMint, walletOrb)
	if err != nil {
		s.logger.Error("swap quote failed", "err", err)
		return false
	}
	tx, err := s.swapper.BuildSwapTransaction(ctx, quote, s.gw.Wallet())
	if err != nil {
		s.logger.Error("swap transaction build failed", "err", err)
		return false
	}

	// No retry wrapper: the routed transaction carries its own blockhash, so
	// a resend after expiry needs a fresh quote. The next tick re-quotes.
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()
	sig, err := s.gw.SubmitRaw(txCtx, tx)
	if err != nil {
		s.logger.Error("swap submission failed", "err", err)
		return false
	}
	if err := s.gw.AwaitConfirmation(txCtx, sig); err != nil {
		s.logger.Error("swap confirmation failed", "signature", sig, "err", err)
		return false
	}
	out.SwapSignature = sig.String()
	s.logger.Info("swap confirmed", "signature", sig, "in_amount", quote.InAmount, "out_amount", quote.OutAmount)
	return true
}

// fetchStakeState loads the optional staking accounts. A wallet that never
// staked simply has neither; read failures degrade to nil so mining rewards
// still count.
func (s *Service) fetchStakeState(ctx context.Context) (*orb.StakeState, *orb.TreasuryState) {
	stakeData, err := s.readAccount(ctx, "stake", s.stakePDA)
	if err != nil {
		if !errors.Is(err, gateway.ErrAccountNotFound) {
			s.logger.Warn("stake account unavailable", "err", err)
		}
		return nil, nil
	}
	stake, err := orb.ParseStake(stakeData)
	if err != nil {
		s.logger.Error("decode stake account", "err", err)
		return nil, nil
	}

	treasuryData, err := s.readAccount(ctx, "treasury", s.treasuryPDA)
	if err != nil {
		if !errors.Is(err, gateway.ErrAccountNotFound) {
			s.logger.Warn("treasury account unavailable", "err", err)
		}
		return stake, nil
	}
	treasury, err := orb.ParseTreasury(treasuryData)
	if err != nil {
		s.logger.Error("decode treasury account", "err", err)
		return stake, nil
	}
	return stake, treasury
}

func (s *Service) rememberDeploy(roundID uint64) {
	round := roundID
	s.lastDeployedRound = &round
}

func (s *Service) readAccount(ctx context.Context, label string, key solana.PublicKey) ([]byte, error) {
	var data []byte
	err := gateway.Retry(ctx, s.cfg.Retry, s.logger, "read "+label, func() error {
		var err error
		data, err = s.gw.GetAccount(ctx, key)
		return err
	})
	return data, err
}

func (s *Service) readBalance(ctx context.Context, key solana.PublicKey) (uint64, error) {
	var balance uint64
	err := gateway.Retry(ctx, s.cfg.Retry, s.logger, "read balance", func() error {
		var err error
		balance, err = s.gw.GetBalance(ctx, key)
		return err
	})
	return balance, err
}

func (s *Service) readTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	var balance uint64
	err := gateway.Retry(ctx, s.cfg.Retry, s.logger, "read token balance", func() error {
		var err error
		balance, err = s.gw.GetTokenBalance(ctx, owner, mint)
		return err
	})
	return balance, err
}

// submitAndConfirm sends one transaction and waits for confirmation, retrying
// the whole build-send-confirm sequence on transient failures so every
// attempt gets a fresh blockhash.
func (s *Service) submitAndConfirm(ctx context.Context, label string, instructions []solana.Instruction) (solana.Signature, error) {
	var sig solana.Signature
	err := gateway.Retry(ctx, s.cfg.Retry, s.logger, label, func() error {
		txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
		defer cancel()

		var err error
		sig, err = s.gw.Submit(txCtx, instructions)
		if err != nil {
			return err
		}
		return s.gw.AwaitConfirmation(txCtx, sig)
	})
	return sig, err
}
