package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"
)

// Gateway is the chain capability the operation loop runs against. The RPC
// implementation below is the only production one; tests substitute fakes.
type Gateway interface {
	GetAccount(ctx context.Context, key solana.PublicKey) ([]byte, error)
	GetBalance(ctx context.Context, key solana.PublicKey) (uint64, error)
	GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error)
	Submit(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error)
	SubmitRaw(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	AwaitConfirmation(ctx context.Context, sig solana.Signature) error
	Wallet() solana.PublicKey
}

type Config struct {
	RPCURL                        string
	Commitment                    rpc.CommitmentType
	Signer                        solana.PrivateKey
	SkipPreflight                 bool
	SendMaxRetries                *uint
	ComputeUnitLimit              uint32
	ComputeUnitPriceMicroLamports uint64
	ConfirmPollInterval           time.Duration
}

type Client struct {
	cfg Config
	rpc *rpc.Client
}

var _ Gateway = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.ConfirmPollInterval <= 0 {
		cfg.ConfirmPollInterval = 700 * time.Millisecond
	}
	return &Client{cfg: cfg, rpc: rpc.New(cfg.RPCURL)}
}

func (c *Client) Wallet() solana.PublicKey {
	return c.cfg.Signer.PublicKey()
}

func (c *Client) GetAccount(ctx context.Context, key solana.PublicKey) ([]byte, error) {
	resp, err := c.rpc.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{Commitment: c.cfg.Commitment})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil, fmt.Errorf("account %s: %w", key, ErrAccountNotFound)
		}
		return nil, classify(fmt.Errorf("fetch account %s: %w", key, err))
	}
	if resp == nil || resp.Value == nil {
		return nil, fmt.Errorf("account %s: %w", key, ErrAccountNotFound)
	}
	return resp.Value.Data.GetBinary(), nil
}

func (c *Client) GetBalance(ctx context.Context, key solana.PublicKey) (uint64, error) {
	resp, err := c.rpc.GetBalance(ctx, key, c.cfg.Commitment)
	if err != nil {
		return 0, classify(fmt.Errorf("fetch balance %s: %w", key, err))
	}
	return resp.Value, nil
}

// GetTokenBalance reads the owner's associated token account for mint.
// A missing token account is a zero balance, not an error.
func (c *Client) GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, fmt.Errorf("derive associated token address: %w", err)
	}
	resp, err := c.rpc.GetTokenAccountBalance(ctx, ata, c.cfg.Commitment)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "could not find account") ||
			strings.Contains(strings.ToLower(err.Error()), "not found") {
			return 0, nil
		}
		return 0, classify(fmt.Errorf("fetch token balance %s: %w", ata, err))
	}
	if resp == nil || resp.Value == nil || resp.Value.Amount == "" {
		return 0, nil
	}
	amount, err := strconv.ParseUint(resp.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token balance %s: %w", ata, err)
	}
	return amount, nil
}

// Submit builds, signs, and sends a transaction paying with the gateway
// wallet. Compute-budget instructions are prepended when configured.
func (c *Client) Submit(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	withBudget := make([]solana.Instruction, 0, len(instructions)+2)
	if c.cfg.ComputeUnitLimit > 0 {
		ix, err := computebudget.NewSetComputeUnitLimitInstruction(c.cfg.ComputeUnitLimit).ValidateAndBuild()
		if err != nil {
			return solana.Signature{}, fmt.Errorf("build compute unit limit instruction: %w", err)
		}
		withBudget = append(withBudget, ix)
	}
	if c.cfg.ComputeUnitPriceMicroLamports > 0 {
		ix, err := computebudget.NewSetComputeUnitPriceInstruction(c.cfg.ComputeUnitPriceMicroLamports).ValidateAndBuild()
		if err != nil {
			return solana.Signature{}, fmt.Errorf("build compute unit price instruction: %w", err)
		}
		withBudget = append(withBudget, ix)
	}
	withBudget = append(withBudget, instructions...)

	recent, err := c.rpc.GetLatestBlockhash(ctx, c.cfg.Commitment)
	if err != nil {
		return solana.Signature{}, classify(fmt.Errorf("get latest blockhash: %w", err))
	}

	tx, err := solana.NewTransaction(
		withBudget,
		recent.Value.Blockhash,
		solana.TransactionPayer(c.cfg.Signer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	return c.SubmitRaw(ctx, tx)
}

// SubmitRaw signs and sends a prebuilt transaction, for payloads built by
// external routers (the swap path) as well as Submit above.
func (c *Client) SubmitRaw(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if c.cfg.Signer.PublicKey().Equals(key) {
			return &c.cfg.Signer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	opts := rpc.TransactionOpts{
		SkipPreflight:       c.cfg.SkipPreflight,
		PreflightCommitment: c.cfg.Commitment,
	}
	if c.cfg.SendMaxRetries != nil {
		retries := *c.cfg.SendMaxRetries
		opts.MaxRetries = &retries
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, opts)
	if err != nil {
		return solana.Signature{}, classify(err)
	}
	return sig, nil
}

// AwaitConfirmation polls signature status until the transaction is
// confirmed or the context expires. An on-chain execution error surfaces as
// a RejectionError.
func (c *Client) AwaitConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(c.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return &TransientError{Err: fmt.Errorf("confirmation timed out for %s", sig)}
			}
			return ctx.Err()
		case <-ticker.C:
			result, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				continue
			}
			if len(result.Value) == 0 || result.Value[0] == nil {
				continue
			}
			status := result.Value[0]
			if status.Err != nil {
				return &RejectionError{Err: fmt.Errorf("transaction %s failed: %v", sig, status.Err)}
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
	}
}
