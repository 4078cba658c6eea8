package orb

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Seed prefixes recovered from observed transactions against the mining
// program. The program publishes no IDL, so these are ground truth only to
// the extent the derived addresses keep matching on-chain accounts.
func DeriveBoardPDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("board")}, programID)
}

func DeriveRoundPDA(programID solana.PublicKey, roundID uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("round"), u64LE(roundID)}, programID)
}

func DeriveMinerPDA(programID solana.PublicKey, authority solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("miner"), authority.Bytes()}, programID)
}

func DeriveAutomationPDA(programID solana.PublicKey, authority solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("automation"), authority.Bytes()}, programID)
}

func DeriveStakePDA(programID solana.PublicKey, authority solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("stake"), authority.Bytes()}, programID)
}

func DeriveTreasuryPDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("treasury")}, programID)
}

func MustDeriveRoundPDA(programID solana.PublicKey, roundID uint64) solana.PublicKey {
	pk, _, err := DeriveRoundPDA(programID, roundID)
	if err != nil {
		panic(fmt.Errorf("derive round PDA: %w", err))
	}
	return pk
}

func u64LE(value uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return buf
}
