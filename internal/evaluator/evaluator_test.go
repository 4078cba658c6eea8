package evaluator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbgrid/orb-agent/internal/orb"
)

func openRound(motherloadOrb uint64, uniqueMiners uint32) *orb.RoundState {
	return &orb.RoundState{
		RoundID:          1,
		Motherload:       motherloadOrb * orb.OrbUnit,
		UniqueMinerCount: uniqueMiners,
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	t.Run("rich pot with few miners mines", func(t *testing.T) {
		t.Parallel()
		// 500 ORB pot, 50 unique miners, ORB at 0.01 SOL, staking 0.05 SOL:
		// expected co-winners 2, gross 166.6 ORB = 1.66 SOL >> cost.
		assessment := Evaluate(openRound(500, 50), 50_000_000, 0.01, DefaultParams())
		require.True(t, assessment.ShouldMine)
		require.Positive(t, assessment.ExpectedValueSol)
	})

	t.Run("crowded small pot does not mine", func(t *testing.T) {
		t.Parallel()
		// 10 ORB pot split among ~40 expected co-winners loses to the stake.
		assessment := Evaluate(openRound(10, 1000), 50_000_000, 0.01, DefaultParams())
		require.False(t, assessment.ShouldMine)
		require.Negative(t, assessment.ExpectedValueSol)
	})

	t.Run("motherload threshold gates regardless of expected value", func(t *testing.T) {
		t.Parallel()
		params := DefaultParams()
		params.MotherloadThreshold = 150 * orb.OrbUnit

		// This round would be wildly profitable, but 100 < 150.
		assessment := Evaluate(openRound(100, 2), 1_000, 10.0, params)
		require.False(t, assessment.ShouldMine)
		require.Contains(t, assessment.Reason, "below threshold")

		assessment = Evaluate(openRound(200, 2), 1_000, 10.0, params)
		require.True(t, assessment.ShouldMine)
	})

	t.Run("zero unique miners skips as under-sampled", func(t *testing.T) {
		t.Parallel()
		assessment := Evaluate(openRound(10_000, 0), 1_000, 10.0, DefaultParams())
		require.False(t, assessment.ShouldMine)
		require.Contains(t, assessment.Reason, "under-sampled")
	})

	t.Run("unusable price skips", func(t *testing.T) {
		t.Parallel()
		assessment := Evaluate(openRound(500, 50), 50_000_000, 0, DefaultParams())
		require.False(t, assessment.ShouldMine)

		assessment = Evaluate(openRound(500, 50), 50_000_000, -1, DefaultParams())
		require.False(t, assessment.ShouldMine)
	})

	t.Run("more miners means less expected value", func(t *testing.T) {
		t.Parallel()
		sparse := Evaluate(openRound(500, 10), 50_000_000, 0.01, DefaultParams())
		crowded := Evaluate(openRound(500, 500), 50_000_000, 0.01, DefaultParams())
		require.Greater(t, sparse.ExpectedValueSol, crowded.ExpectedValueSol)
	})

	t.Run("cost factor scales the stake penalty", func(t *testing.T) {
		t.Parallel()
		cheap := DefaultParams()
		cheap.CostFactor = 0.5
		full := DefaultParams()

		discounted := Evaluate(openRound(100, 200), 500_000_000, 0.01, cheap)
		undiscounted := Evaluate(openRound(100, 200), 500_000_000, 0.01, full)
		require.Greater(t, discounted.ExpectedValueSol, undiscounted.ExpectedValueSol)
	})
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultParams().Validate())
	require.Error(t, Params{WinShare: 0, CostFactor: 1}.Validate())
	require.Error(t, Params{WinShare: 1.5, CostFactor: 1}.Validate())
	require.Error(t, Params{WinShare: 0.04, CostFactor: -1}.Validate())
}
