package orb

import (
	"errors"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Account layouts below were reverse-engineered from observed transactions;
// the program publishes no IDL. Every offset constant lives in this package
// so a layout correction is a one-package change.

var ErrTruncatedRecord = errors.New("truncated account record")

const discriminatorLen = 8

// Minimum byte spans per account kind, discriminator included.
const (
	boardMinLen      = discriminatorLen + 8
	roundMinLen      = discriminatorLen + 8 + 8 + 4 + 2
	minerMinLen      = discriminatorLen + 32 + 8 + 8 + 8
	stakeMinLen      = discriminatorLen + 32 + 8 + 8 + 8 + 16 + 8 + 8
	treasuryMinLen   = discriminatorLen + 16
	automationMinLen = discriminatorLen + 8 + 32 + 8 + 32 + 8 + 1 + 8
)

// One ORB in raw units.
const OrbUnit = uint64(1_000_000_000)

type BoardState struct {
	CurrentRoundID uint64
}

type RoundState struct {
	RoundID          uint64
	Motherload       uint64
	UniqueMinerCount uint32
	WinningSquare    *uint8
}

type MinerState struct {
	Authority        solana.PublicKey
	RewardsSol       uint64
	RewardsOrb       uint64
	TotalDeployments uint64
}

type StakeState struct {
	Authority          solana.PublicKey
	Balance            uint64
	RewardsSol         uint64
	RewardsOrb         uint64
	RewardsFactor      bin.Uint128
	LifetimeRewardsSol uint64
	LifetimeRewardsOrb uint64
}

type TreasuryState struct {
	StakeRewardsFactor bin.Uint128
}

type AutomationStrategy uint8

const (
	AutomationStrategyRandom AutomationStrategy = iota
	AutomationStrategyPreferred
)

func (s AutomationStrategy) String() string {
	switch s {
	case AutomationStrategyRandom:
		return "random"
	case AutomationStrategyPreferred:
		return "preferred"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

type AutomationState struct {
	AmountPerSquare   uint64
	Authority         solana.PublicKey
	RemainingBalance  uint64
	Executor          solana.PublicKey
	FeePerExecution   uint64
	Strategy          AutomationStrategy
	SquareCountOrMask uint64
}

func checkLen(kind string, data []byte, minLen int) error {
	if len(data) < minLen {
		return fmt.Errorf("%w: %s account is %d bytes, need at least %d", ErrTruncatedRecord, kind, len(data), minLen)
	}
	return nil
}

// newDecoder positions a little-endian decoder past the 8-byte
// discriminator. Discriminator content is not validated; length is.
func newDecoder(data []byte) *bin.Decoder {
	dec := bin.NewBinDecoder(data)
	_, _ = dec.ReadNBytes(discriminatorLen)
	return dec
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(32)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(raw), nil
}

func ParseBoard(data []byte) (*BoardState, error) {
	if err := checkLen("board", data, boardMinLen); err != nil {
		return nil, err
	}
	dec := newDecoder(data)
	currentRoundID, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}
	return &BoardState{CurrentRoundID: currentRoundID}, nil
}

func ParseRound(data []byte) (*RoundState, error) {
	if err := checkLen("round", data, roundMinLen); err != nil {
		return nil, err
	}
	dec := newDecoder(data)
	out := &RoundState{}
	var err error
	if out.RoundID, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode round: %w", err)
	}
	if out.Motherload, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode round: %w", err)
	}
	if out.UniqueMinerCount, err = dec.ReadUint32(bin.LE); err != nil {
		return nil, fmt.Errorf("decode round: %w", err)
	}
	tag, err := dec.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("decode round: %w", err)
	}
	value, err := dec.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("decode round: %w", err)
	}
	if tag != 0 {
		winning := value
		out.WinningSquare = &winning
	}
	return out, nil
}

func ParseMiner(data []byte) (*MinerState, error) {
	if err := checkLen("miner", data, minerMinLen); err != nil {
		return nil, err
	}
	dec := newDecoder(data)
	out := &MinerState{}
	var err error
	if out.Authority, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("decode miner: %w", err)
	}
	if out.RewardsSol, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode miner: %w", err)
	}
	if out.RewardsOrb, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode miner: %w", err)
	}
	if out.TotalDeployments, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode miner: %w", err)
	}
	return out, nil
}

func ParseStake(data []byte) (*StakeState, error) {
	if err := checkLen("stake", data, stakeMinLen); err != nil {
		return nil, err
	}
	dec := newDecoder(data)
	out := &StakeState{}
	var err error
	if out.Authority, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("decode stake: %w", err)
	}
	if out.Balance, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode stake: %w", err)
	}
	if out.RewardsSol, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode stake: %w", err)
	}
	if out.RewardsOrb, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode stake: %w", err)
	}
	if out.RewardsFactor, err = dec.ReadUint128(bin.LE); err != nil {
		return nil, fmt.Errorf("decode stake: %w", err)
	}
	if out.LifetimeRewardsSol, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode stake: %w", err)
	}
	if out.LifetimeRewardsOrb, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode stake: %w", err)
	}
	return out, nil
}

func ParseTreasury(data []byte) (*TreasuryState, error) {
	if err := checkLen("treasury", data, treasuryMinLen); err != nil {
		return nil, err
	}
	dec := newDecoder(data)
	factor, err := dec.ReadUint128(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("decode treasury: %w", err)
	}
	return &TreasuryState{StakeRewardsFactor: factor}, nil
}

func ParseAutomation(data []byte) (*AutomationState, error) {
	if err := checkLen("automation", data, automationMinLen); err != nil {
		return nil, err
	}
	dec := newDecoder(data)
	out := &AutomationState{}
	var err error
	if out.AmountPerSquare, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode automation: %w", err)
	}
	if out.Authority, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("decode automation: %w", err)
	}
	if out.RemainingBalance, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode automation: %w", err)
	}
	if out.Executor, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("decode automation: %w", err)
	}
	if out.FeePerExecution, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode automation: %w", err)
	}
	tag, err := dec.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("decode automation: %w", err)
	}
	if tag > uint8(AutomationStrategyPreferred) {
		return nil, fmt.Errorf("decode automation: unknown strategy tag %d", tag)
	}
	out.Strategy = AutomationStrategy(tag)
	if out.SquareCountOrMask, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode automation: %w", err)
	}
	return out, nil
}

// Stake reward factors are Q64.64 fixed point. The treasury accumulates a
// global factor; the delta against the per-stake snapshot times the staked
// balance is reward accrued since the last settle, not yet reflected in the
// RewardsSol/RewardsOrb fields. Remainders truncate, matching the program.
func AccruedStakeRewards(treasuryFactor, stakeFactor bin.Uint128, balance uint64) (uint64, error) {
	delta := new(big.Int).Sub(treasuryFactor.BigInt(), stakeFactor.BigInt())
	if delta.Sign() <= 0 {
		return 0, nil
	}
	accrued := new(big.Int).Mul(delta, new(big.Int).SetUint64(balance))
	accrued.Rsh(accrued, 64)
	if !accrued.IsUint64() {
		return 0, fmt.Errorf("accrued stake rewards overflow u64 (factor delta %s, balance %d)", delta, balance)
	}
	return accrued.Uint64(), nil
}
