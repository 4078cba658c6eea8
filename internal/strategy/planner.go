// Package strategy sizes per-round deployments. Every strategy is a pure
// function of (motherload, remaining balance); the loop owns all state.
package strategy

import (
	"errors"
	"fmt"

	"github.com/orbgrid/orb-agent/internal/orb"
)

type Kind string

const (
	KindUltraConservative Kind = "ultra_conservative"
	KindBalanced          Kind = "balanced"
	KindAggressive        Kind = "aggressive"
	KindKellyOptimized    Kind = "kelly_optimized"
	KindManual            Kind = "manual"
	KindFixedRounds       Kind = "fixed_rounds"
	KindPercentage        Kind = "percentage"
)

func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindUltraConservative, KindBalanced, KindAggressive,
		KindKellyOptimized, KindManual, KindFixedRounds, KindPercentage:
		return Kind(raw), nil
	default:
		return "", fmt.Errorf("unknown deployment strategy %q", raw)
	}
}

// ErrConfiguration marks strategy configurations that can never produce a
// valid deployment. The operator has to fix config; the loop must not
// retry around it.
var ErrConfiguration = errors.New("strategy configuration error")

type KellyParams struct {
	// WinProbability and PayoutMultiple come from the same offline
	// calibration as the curve tables.
	WinProbability float64
	PayoutMultiple float64
	MaxFraction    float64
}

type Config struct {
	Kind                 Kind
	ManualAmountLamports uint64
	TargetRounds         uint64
	Percentage           float64
	Kelly                KellyParams
	// FeeReserveLamports is the balance that must stay untouched to cover
	// transaction fees for this deploy and the eventual claim.
	FeeReserveLamports uint64
	Curves             *CurveSet
}

type Decision struct {
	ShouldDeploy             bool
	AmountLamports           uint64
	SquareMask               uint32
	EstimatedRoundsRemaining uint64
	Reason                   string
}

// Plan sizes the next deployment. Guarantees for every strategy: a
// deploying decision has 0 < amount <= remainingBalance and leaves the fee
// reserve intact; shortfalls come back as a non-deploying decision, never
// as an error. Errors are configuration problems only.
func Plan(cfg Config, motherload, remainingBalance uint64) (Decision, error) {
	amount, err := baseAmount(cfg, motherload, remainingBalance)
	if err != nil {
		return Decision{}, err
	}
	if amount == 0 {
		if cfg.Kind == KindKellyOptimized {
			return Decision{Reason: "kelly fraction is zero, no edge at current calibration"}, nil
		}
		// Integer division of a dust balance can land here; that is a
		// balance problem, not a config problem.
		if remainingBalance < minMeaningfulAmount(cfg) {
			return Decision{Reason: "insufficient balance"}, nil
		}
		return Decision{}, fmt.Errorf("%w: strategy %s produced a non-positive amount", ErrConfiguration, cfg.Kind)
	}

	if amount > remainingBalance || remainingBalance-amount < cfg.FeeReserveLamports {
		return Decision{Reason: "insufficient balance"}, nil
	}

	return Decision{
		ShouldDeploy:             true,
		AmountLamports:           amount,
		SquareMask:               orb.DeploySquareMask,
		EstimatedRoundsRemaining: remainingBalance / amount,
		Reason:                   fmt.Sprintf("strategy %s", cfg.Kind),
	}, nil
}

func baseAmount(cfg Config, motherload, remainingBalance uint64) (uint64, error) {
	switch cfg.Kind {
	case KindUltraConservative, KindBalanced, KindAggressive:
		curves := cfg.Curves
		if curves == nil {
			curves = DefaultCurves()
		}
		rounds, err := curves.RoundsFor(string(cfg.Kind), motherload)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		return remainingBalance / rounds, nil

	case KindKellyOptimized:
		return kellyAmount(cfg.Kelly, remainingBalance)

	case KindManual:
		if cfg.ManualAmountLamports == 0 {
			return 0, fmt.Errorf("%w: manual strategy requires a non-zero amount per round", ErrConfiguration)
		}
		return cfg.ManualAmountLamports, nil

	case KindFixedRounds:
		if cfg.TargetRounds == 0 {
			return 0, fmt.Errorf("%w: fixed_rounds strategy requires target rounds > 0", ErrConfiguration)
		}
		return remainingBalance / cfg.TargetRounds, nil

	case KindPercentage:
		if cfg.Percentage <= 0 || cfg.Percentage > 100 {
			return 0, fmt.Errorf("%w: percentage must be in (0, 100], got %g", ErrConfiguration, cfg.Percentage)
		}
		return uint64(float64(remainingBalance) * cfg.Percentage / 100), nil

	default:
		return 0, fmt.Errorf("%w: unknown strategy %q", ErrConfiguration, cfg.Kind)
	}
}

// kellyAmount stakes the Kelly-criterion fraction f* = (p(b+1) - 1) / b of
// the remaining balance, where p is the calibrated win probability and b
// the calibrated net payout multiple. Negative edge clamps to zero.
func kellyAmount(params KellyParams, remainingBalance uint64) (uint64, error) {
	if params.WinProbability <= 0 || params.WinProbability >= 1 {
		return 0, fmt.Errorf("%w: kelly win probability must be in (0, 1), got %g", ErrConfiguration, params.WinProbability)
	}
	if params.PayoutMultiple <= 0 {
		return 0, fmt.Errorf("%w: kelly payout multiple must be > 0, got %g", ErrConfiguration, params.PayoutMultiple)
	}
	maxFraction := params.MaxFraction
	if maxFraction <= 0 || maxFraction > 1 {
		maxFraction = 0.25
	}

	fraction := (params.WinProbability*(params.PayoutMultiple+1) - 1) / params.PayoutMultiple
	if fraction <= 0 {
		return 0, nil
	}
	if fraction > maxFraction {
		fraction = maxFraction
	}
	return uint64(float64(remainingBalance) * fraction), nil
}

// minMeaningfulAmount distinguishes "balance too small to split" from a
// broken configuration when integer division hits zero.
func minMeaningfulAmount(cfg Config) uint64 {
	switch cfg.Kind {
	case KindUltraConservative, KindBalanced, KindAggressive, KindFixedRounds, KindPercentage, KindKellyOptimized:
		return 1_000 // below rent dust, any divisor zeroes it
	default:
		return 1
	}
}
