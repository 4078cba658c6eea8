// Package rewards tracks claimable mining and staking rewards against
// operator thresholds.
package rewards

import (
	"fmt"

	"github.com/orbgrid/orb-agent/internal/orb"
)

type Thresholds struct {
	// ClaimSolLamports and ClaimOrb gate the claim trigger; a claim fires
	// once either claimable total crosses its threshold.
	ClaimSolLamports uint64
	ClaimOrb         uint64
	// AutoSwapOrb gates the swap trigger against the wallet's ORB token
	// balance, which is a separate read from the reward accounts.
	AutoSwapOrb uint64
}

type Status struct {
	ClaimableSolLamports uint64
	ClaimableOrb         uint64
	AccruedStakeOrb      uint64
	ShouldClaim          bool
	ShouldSwap           bool
}

// Assess combines settled miner/stake rewards with the unsettled stake
// accrual derived from the treasury reward factor. Claim and swap are
// independent triggers; both, either, or neither may fire in a cycle.
// miner is required; stake and treasury are nil when the wallet has never
// staked.
func Assess(miner *orb.MinerState, stake *orb.StakeState, treasury *orb.TreasuryState, walletOrbBalance uint64, thresholds Thresholds) (Status, error) {
	status := Status{
		ClaimableSolLamports: miner.RewardsSol,
		ClaimableOrb:         miner.RewardsOrb,
	}

	if stake != nil {
		status.ClaimableSolLamports += stake.RewardsSol
		status.ClaimableOrb += stake.RewardsOrb
		if treasury != nil {
			accrued, err := orb.AccruedStakeRewards(treasury.StakeRewardsFactor, stake.RewardsFactor, stake.Balance)
			if err != nil {
				return Status{}, fmt.Errorf("compute stake accrual: %w", err)
			}
			status.AccruedStakeOrb = accrued
			status.ClaimableOrb += accrued
		}
	}

	if thresholds.ClaimSolLamports > 0 && status.ClaimableSolLamports >= thresholds.ClaimSolLamports {
		status.ShouldClaim = true
	}
	if thresholds.ClaimOrb > 0 && status.ClaimableOrb >= thresholds.ClaimOrb {
		status.ShouldClaim = true
	}
	if thresholds.AutoSwapOrb > 0 && walletOrbBalance >= thresholds.AutoSwapOrb {
		status.ShouldSwap = true
	}
	return status, nil
}
