// Package evaluator decides whether funding the current round has positive
// expected value. The coefficients came out of offline Monte Carlo
// calibration; they are configuration, not constants, and recalibration
// must not require a rebuild.
package evaluator

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/orbgrid/orb-agent/internal/orb"
)

type Params struct {
	// WinShare scales the unique miner count into an expected number of
	// co-winners on the winning square (1-in-25 by default: 25 squares,
	// uniform placement assumption).
	WinShare float64

	// CostFactor weights the deployment amount in the EV formula. 1.0
	// treats the full stake as sunk; calibration may discount it because
	// losing squares still accrue partial credit in some rounds.
	CostFactor float64

	// MotherloadThreshold gates mining regardless of EV sign, in raw ORB
	// units. Small pots are not worth the transaction fees even when the
	// formula says otherwise.
	MotherloadThreshold uint64
}

func DefaultParams() Params {
	return Params{
		WinShare:   1.0 / float64(orb.BoardSquareCount),
		CostFactor: 1.0,
	}
}

func (p Params) Validate() error {
	if p.WinShare <= 0 || p.WinShare > 1 {
		return fmt.Errorf("win share must be in (0, 1], got %g", p.WinShare)
	}
	if p.CostFactor < 0 {
		return fmt.Errorf("cost factor must be >= 0, got %g", p.CostFactor)
	}
	return nil
}

type Assessment struct {
	ExpectedValueSol float64
	ShouldMine       bool
	Reason           string
}

// Evaluate prices one deployment into the round. orbPriceSol is the oracle
// ORB/SOL rate; deployLamports is the intended stake.
//
// A round with zero unique miners is under-sampled: the count is the only
// signal for the co-winner estimate, so without it the answer defaults to
// not mining rather than dividing into a guess.
func Evaluate(round *orb.RoundState, deployLamports uint64, orbPriceSol float64, params Params) Assessment {
	if round.UniqueMinerCount == 0 {
		return Assessment{Reason: "round under-sampled (no unique miners yet)"}
	}
	if round.Motherload < params.MotherloadThreshold {
		return Assessment{
			Reason: fmt.Sprintf("motherload %d below threshold %d", round.Motherload, params.MotherloadThreshold),
		}
	}
	if orbPriceSol <= 0 {
		return Assessment{Reason: "no usable ORB/SOL price"}
	}

	motherloadOrb := float64(round.Motherload) / float64(orb.OrbUnit)
	expectedCoWinners := float64(round.UniqueMinerCount) * params.WinShare
	grossOrb := motherloadOrb / (expectedCoWinners + 1)
	grossSol := grossOrb * orbPriceSol
	deploySol := float64(deployLamports) / float64(solana.LAMPORTS_PER_SOL)

	ev := grossSol - deploySol*params.CostFactor
	if ev <= 0 {
		return Assessment{
			ExpectedValueSol: ev,
			Reason:           fmt.Sprintf("expected value %.9f SOL not positive", ev),
		}
	}
	return Assessment{
		ExpectedValueSol: ev,
		ShouldMine:       true,
		Reason:           fmt.Sprintf("expected value %.9f SOL", ev),
	}
}
