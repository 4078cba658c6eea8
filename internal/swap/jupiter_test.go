package swap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/require"
)

func TestQuote(t *testing.T) {
	t.Parallel()

	inputMint := solana.NewWallet().PublicKey()
	outputMint := solana.NewWallet().PublicKey()

	t.Run("parses a quote and keeps the raw payload", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/quote", r.URL.Path)
			require.Equal(t, inputMint.String(), r.URL.Query().Get("inputMint"))
			require.Equal(t, outputMint.String(), r.URL.Query().Get("outputMint"))
			require.Equal(t, "1000000", r.URL.Query().Get("amount"))
			require.Equal(t, "75", r.URL.Query().Get("slippageBps"))
			_, _ = w.Write([]byte(`{"inAmount":"1000000","outAmount":"987654","routePlan":[{"percent":100}]}`))
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL, SlippageBps: 75})
		quote, err := client.Quote(context.Background(), inputMint, outputMint, 1_000_000)
		require.NoError(t, err)
		require.Equal(t, uint64(1_000_000), quote.InAmount)
		require.Equal(t, uint64(987_654), quote.OutAmount)
		require.NotEmpty(t, quote.raw)
	})

	t.Run("surfaces http failures", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no route found", http.StatusBadRequest)
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL})
		_, err := client.Quote(context.Background(), inputMint, outputMint, 1)
		require.Error(t, err)
		require.Contains(t, err.Error(), "no route found")
	})

	t.Run("rejects malformed amounts", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"inAmount":"NaN","outAmount":"1"}`))
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL})
		_, err := client.Quote(context.Background(), inputMint, outputMint, 1)
		require.Error(t, err)
	})
}

func TestBuildSwapTransaction(t *testing.T) {
	t.Parallel()

	wallet := solana.NewWallet()

	t.Run("echoes the quote and deserializes the transaction", func(t *testing.T) {
		t.Parallel()
		rawQuote := json.RawMessage(`{"inAmount":"5","outAmount":"4","routePlan":[]}`)

		transfer := system.NewTransferInstruction(5, wallet.PublicKey(), solana.NewWallet().PublicKey()).Build()
		tx, err := solana.NewTransaction(
			[]solana.Instruction{transfer},
			solana.Hash{1, 2, 3},
			solana.TransactionPayer(wallet.PublicKey()),
		)
		require.NoError(t, err)
		_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
			if wallet.PublicKey().Equals(key) {
				return &wallet.PrivateKey
			}
			return nil
		})
		require.NoError(t, err)
		serialized, err := tx.MarshalBinary()
		require.NoError(t, err)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/swap", r.URL.Path)
			require.Equal(t, http.MethodPost, r.Method)

			var body struct {
				QuoteResponse    json.RawMessage `json:"quoteResponse"`
				UserPublicKey    string          `json:"userPublicKey"`
				WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.JSONEq(t, string(rawQuote), string(body.QuoteResponse))
			require.Equal(t, wallet.PublicKey().String(), body.UserPublicKey)
			require.True(t, body.WrapAndUnwrapSol)

			_ = json.NewEncoder(w).Encode(map[string]string{
				"swapTransaction": base64.StdEncoding.EncodeToString(serialized),
			})
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL})
		quote := &Quote{InAmount: 5, OutAmount: 4, raw: rawQuote}

		decoded, err := client.BuildSwapTransaction(context.Background(), quote, wallet.PublicKey())
		require.NoError(t, err)
		require.Equal(t, wallet.PublicKey(), decoded.Message.AccountKeys[0])
	})

	t.Run("requires a quote", func(t *testing.T) {
		t.Parallel()
		client := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
		_, err := client.BuildSwapTransaction(context.Background(), nil, wallet.PublicKey())
		require.Error(t, err)
	})

	t.Run("rejects invalid base64", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"swapTransaction":"!!!not-base64!!!"}`))
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL})
		_, err := client.BuildSwapTransaction(context.Background(), &Quote{raw: json.RawMessage(`{}`)}, wallet.PublicKey())
		require.Error(t, err)
	})
}
