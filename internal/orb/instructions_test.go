package orb

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestDeployData(t *testing.T) {
	t.Parallel()

	t.Run("encodes the exact 34-byte layout", func(t *testing.T) {
		t.Parallel()
		data := EncodeDeployData(DefaultDeployArgs(10_000_000))
		require.Len(t, data, 34)

		// discriminator
		require.Equal(t, []byte{0x00, 0x40, 0x42, 0x0f, 0x00, 0x00, 0x00, 0x00}, data[:8])
		// amount u64 LE
		require.Equal(t, []byte{0x80, 0x96, 0x98, 0x00, 0x00, 0x00, 0x00, 0x00}, data[8:16])
		// mask, reserved, count, padding
		require.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, data[16:20])
		require.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, data[20:24])
		require.Equal(t, []byte{0x19, 0x00, 0x00, 0x00}, data[24:28])
		require.Equal(t, make([]byte, 6), data[28:34])
	})

	t.Run("round-trips through decode", func(t *testing.T) {
		t.Parallel()
		args := DefaultDeployArgs(123_456_789)
		decoded, err := DecodeDeployData(EncodeDeployData(args))
		require.NoError(t, err)
		require.Equal(t, args, decoded)
	})

	t.Run("default args always cover the full board", func(t *testing.T) {
		t.Parallel()
		args := DefaultDeployArgs(1)
		require.Equal(t, uint32(DeploySquareMask), args.SquareMask)
		require.Equal(t, uint32(BoardSquareCount), args.SquareCount)
		require.Zero(t, args.Reserved)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		t.Parallel()
		_, err := DecodeDeployData(make([]byte, 33))
		require.ErrorIs(t, err, ErrMalformedInstruction)
	})

	t.Run("rejects wrong discriminator", func(t *testing.T) {
		t.Parallel()
		data := EncodeDeployData(DefaultDeployArgs(1))
		data[0] ^= 0xff
		_, err := DecodeDeployData(data)
		require.ErrorIs(t, err, ErrMalformedInstruction)
	})
}

func TestAutomateData(t *testing.T) {
	t.Parallel()

	t.Run("encodes 34 zero bytes", func(t *testing.T) {
		t.Parallel()
		data := EncodeAutomateData()
		require.Len(t, data, 34)
		require.Equal(t, make([]byte, 34), data)
		require.NoError(t, DecodeAutomateData(data))
	})

	t.Run("rejects non-zero payload", func(t *testing.T) {
		t.Parallel()
		data := EncodeAutomateData()
		data[17] = 1
		require.ErrorIs(t, DecodeAutomateData(data), ErrMalformedInstruction)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		t.Parallel()
		require.ErrorIs(t, DecodeAutomateData(make([]byte, 8)), ErrMalformedInstruction)
	})
}

func TestClaimData(t *testing.T) {
	t.Parallel()

	data := EncodeClaimData()
	require.Equal(t, []byte{0x02}, data)
}

func TestNewDeployInstruction(t *testing.T) {
	t.Parallel()

	programID := solana.NewWallet().PublicKey()
	wallet := solana.NewWallet().PublicKey()
	automation := solana.NewWallet().PublicKey()
	feeCollector := solana.NewWallet().PublicKey()
	miner := solana.NewWallet().PublicKey()

	ix := NewDeployInstruction(programID, wallet, automation, feeCollector, miner, DefaultDeployArgs(42))
	require.Equal(t, programID, ix.ProgramID())

	accounts := ix.Accounts()
	require.Len(t, accounts, 5)

	require.Equal(t, wallet, accounts[0].PublicKey)
	require.True(t, accounts[0].IsSigner)
	require.True(t, accounts[0].IsWritable)

	require.Equal(t, automation, accounts[1].PublicKey)
	require.False(t, accounts[1].IsSigner)
	require.True(t, accounts[1].IsWritable)

	require.Equal(t, feeCollector, accounts[2].PublicKey)
	require.Equal(t, miner, accounts[3].PublicKey)
	require.Equal(t, solana.SystemProgramID, accounts[4].PublicKey)
	require.False(t, accounts[4].IsWritable)

	data, err := ix.Data()
	require.NoError(t, err)
	decoded, err := DecodeDeployData(data)
	require.NoError(t, err)
	require.Equal(t, uint64(42), decoded.AmountLamports)
}

func TestNewAutomateInstruction(t *testing.T) {
	t.Parallel()

	programID := solana.NewWallet().PublicKey()
	wallet := solana.NewWallet().PublicKey()
	automation := solana.NewWallet().PublicKey()
	miner := solana.NewWallet().PublicKey()

	ix := NewAutomateInstruction(programID, wallet, automation, miner)
	accounts := ix.Accounts()
	require.Len(t, accounts, 5)
	require.Equal(t, wallet, accounts[0].PublicKey)
	require.True(t, accounts[0].IsSigner)
	require.Equal(t, automation, accounts[1].PublicKey)
	require.Equal(t, solana.SystemProgramID, accounts[2].PublicKey)
	require.Equal(t, miner, accounts[3].PublicKey)
	require.Equal(t, solana.SystemProgramID, accounts[4].PublicKey)

	data, err := ix.Data()
	require.NoError(t, err)
	require.NoError(t, DecodeAutomateData(data))
}

func TestNewClaimInstruction(t *testing.T) {
	t.Parallel()

	programID := solana.NewWallet().PublicKey()
	wallet := solana.NewWallet().PublicKey()
	miner := solana.NewWallet().PublicKey()

	ix := NewClaimInstruction(programID, wallet, miner)
	accounts := ix.Accounts()
	require.Len(t, accounts, 2)
	require.Equal(t, wallet, accounts[0].PublicKey)
	require.True(t, accounts[0].IsSigner)
	require.Equal(t, miner, accounts[1].PublicKey)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Equal(t, []byte{0x02}, data)
}

func TestDerivePDAsAreDeterministic(t *testing.T) {
	t.Parallel()

	programID := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()

	a1, bump1, err := DeriveMinerPDA(programID, authority)
	require.NoError(t, err)
	a2, bump2, err := DeriveMinerPDA(programID, authority)
	require.NoError(t, err)
	require.Equal(t, a1, a2)
	require.Equal(t, bump1, bump2)

	r1 := MustDeriveRoundPDA(programID, 9)
	r2 := MustDeriveRoundPDA(programID, 10)
	require.NotEqual(t, r1, r2)
}
