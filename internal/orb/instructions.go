package orb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Instruction byte layouts are bit-exact reproductions of reference
// transactions captured against the live program. The chain rejects any
// deviation, including in fields whose meaning is unknown; treat a rejection
// of a previously-valid encoding as a layout drift, not a transient fault.

const (
	// A deploy always covers the full board. The program encodes "all 25
	// squares" as mask 0, not as a set mask; do not change this.
	BoardSquareCount = 25
	DeploySquareMask = 0

	deployInstructionLen = 34
	deployPaddingLen     = 6
)

var (
	deployDiscriminator = [8]byte{0x00, 0x40, 0x42, 0x0f, 0x00, 0x00, 0x00, 0x00}
	claimDiscriminator  = byte(0x02)

	ErrMalformedInstruction = errors.New("malformed instruction data")
)

type DeployArgs struct {
	AmountLamports uint64
	SquareMask     uint32
	Reserved       uint32
	SquareCount    uint32
}

// DefaultDeployArgs fixes the mask/count convention for the given amount.
func DefaultDeployArgs(amountLamports uint64) DeployArgs {
	return DeployArgs{
		AmountLamports: amountLamports,
		SquareMask:     DeploySquareMask,
		SquareCount:    BoardSquareCount,
	}
}

// EncodeDeployData packs the 34-byte deploy payload:
// discriminator(8) + amount u64 + mask u32 + reserved u32 + count u32 + padding(6).
func EncodeDeployData(args DeployArgs) []byte {
	data := make([]byte, deployInstructionLen)
	copy(data, deployDiscriminator[:])
	binary.LittleEndian.PutUint64(data[8:], args.AmountLamports)
	binary.LittleEndian.PutUint32(data[16:], args.SquareMask)
	binary.LittleEndian.PutUint32(data[20:], args.Reserved)
	binary.LittleEndian.PutUint32(data[24:], args.SquareCount)
	return data
}

func DecodeDeployData(data []byte) (DeployArgs, error) {
	if len(data) != deployInstructionLen {
		return DeployArgs{}, fmt.Errorf("%w: deploy payload is %d bytes, want %d", ErrMalformedInstruction, len(data), deployInstructionLen)
	}
	if !bytes.Equal(data[:8], deployDiscriminator[:]) {
		return DeployArgs{}, fmt.Errorf("%w: deploy discriminator mismatch", ErrMalformedInstruction)
	}
	return DeployArgs{
		AmountLamports: binary.LittleEndian.Uint64(data[8:]),
		SquareMask:     binary.LittleEndian.Uint32(data[16:]),
		Reserved:       binary.LittleEndian.Uint32(data[20:]),
		SquareCount:    binary.LittleEndian.Uint32(data[24:]),
	}, nil
}

// EncodeAutomateData builds the bootstrap payload: 34 zero bytes, same
// length as deploy. The program creates the miner and automation accounts
// on first sight of it.
func EncodeAutomateData() []byte {
	return make([]byte, deployInstructionLen)
}

func DecodeAutomateData(data []byte) error {
	if len(data) != deployInstructionLen {
		return fmt.Errorf("%w: automate payload is %d bytes, want %d", ErrMalformedInstruction, len(data), deployInstructionLen)
	}
	for _, b := range data {
		if b != 0 {
			return fmt.Errorf("%w: automate payload has non-zero bytes", ErrMalformedInstruction)
		}
	}
	return nil
}

func EncodeClaimData() []byte {
	return []byte{claimDiscriminator}
}

// NewDeployInstruction funds the current round across all 25 squares from
// the wallet's automation escrow.
func NewDeployInstruction(
	programID solana.PublicKey,
	wallet solana.PublicKey,
	automation solana.PublicKey,
	feeCollector solana.PublicKey,
	miner solana.PublicKey,
	args DeployArgs,
) solana.Instruction {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(wallet, true, true),
		solana.NewAccountMeta(automation, true, false),
		solana.NewAccountMeta(feeCollector, true, false),
		solana.NewAccountMeta(miner, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, EncodeDeployData(args))
}

// NewAutomateInstruction bootstraps the miner + automation accounts for a
// wallet. Same five-account shape as deploy, with system-program
// placeholders where no real account exists yet.
func NewAutomateInstruction(
	programID solana.PublicKey,
	wallet solana.PublicKey,
	automation solana.PublicKey,
	miner solana.PublicKey,
) solana.Instruction {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(wallet, true, true),
		solana.NewAccountMeta(automation, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(miner, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, EncodeAutomateData())
}

// NewClaimInstruction settles accrued mining rewards into the wallet.
// Claiming with nothing accrued is a no-op success on-chain.
func NewClaimInstruction(
	programID solana.PublicKey,
	wallet solana.PublicKey,
	miner solana.PublicKey,
) solana.Instruction {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(wallet, true, true),
		solana.NewAccountMeta(miner, true, false),
	}
	return solana.NewInstruction(programID, accounts, EncodeClaimData())
}
