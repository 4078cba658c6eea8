package pricing

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testStream(maxAge time.Duration) *Stream {
	return NewStream(Config{
		URL:    "wss://example.invalid/ws",
		FeedID: "abc123",
		MaxAge: maxAge,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandleMessage(t *testing.T) {
	t.Parallel()

	t.Run("caches a matching price update", func(t *testing.T) {
		t.Parallel()
		s := testStream(time.Minute)
		payload := []byte(`{
			"type": "price_update",
			"price_feed": {
				"id": "abc123",
				"price": {"price": "1234567", "conf": "890", "expo": -8, "publish_time": 1700000000}
			}
		}`)
		require.NoError(t, s.handleMessage(payload, "abc123"))

		price, _, ok := s.Price()
		require.True(t, ok)
		require.InDelta(t, 0.01234567, price, 1e-12)
	})

	t.Run("ignores other feeds", func(t *testing.T) {
		t.Parallel()
		s := testStream(time.Minute)
		payload := []byte(`{
			"type": "price_update",
			"price_feed": {
				"id": "other",
				"price": {"price": "1", "expo": 0}
			}
		}`)
		require.NoError(t, s.handleMessage(payload, "abc123"))
		_, _, ok := s.Price()
		require.False(t, ok)
	})

	t.Run("ignores non-price messages", func(t *testing.T) {
		t.Parallel()
		s := testStream(time.Minute)
		require.NoError(t, s.handleMessage([]byte(`{"type":"response","status":"success"}`), "abc123"))
		_, _, ok := s.Price()
		require.False(t, ok)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		t.Parallel()
		s := testStream(time.Minute)
		require.Error(t, s.handleMessage([]byte(`{not json`), "abc123"))
	})

	t.Run("feed id comparison is case insensitive", func(t *testing.T) {
		t.Parallel()
		s := testStream(time.Minute)
		payload := []byte(`{
			"type": "price_update",
			"price_feed": {
				"id": "ABC123",
				"price": {"price": "200", "expo": -2}
			}
		}`)
		require.NoError(t, s.handleMessage(payload, "abc123"))
		price, _, ok := s.Price()
		require.True(t, ok)
		require.InDelta(t, 2.0, price, 1e-12)
	})
}

func TestPriceFreshness(t *testing.T) {
	t.Parallel()

	t.Run("no observation yet is unusable", func(t *testing.T) {
		t.Parallel()
		_, _, ok := testStream(time.Minute).Price()
		require.False(t, ok)
	})

	t.Run("stale observation is reported but unusable", func(t *testing.T) {
		t.Parallel()
		s := testStream(time.Minute)
		s.mu.Lock()
		s.price = 1.5
		s.updatedAt = time.Now().Add(-2 * time.Minute)
		s.mu.Unlock()

		price, at, ok := s.Price()
		require.False(t, ok)
		require.Equal(t, 1.5, price)
		require.False(t, at.IsZero())
	})

	t.Run("fresh observation is usable", func(t *testing.T) {
		t.Parallel()
		s := testStream(time.Minute)
		s.mu.Lock()
		s.price = 1.5
		s.updatedAt = time.Now()
		s.mu.Unlock()

		price, _, ok := s.Price()
		require.True(t, ok)
		require.Equal(t, 1.5, price)
	})
}

func TestDecodeScaledPrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		expo int32
		want float64
	}{
		{"1234567", -8, 0.01234567},
		{"500", 0, 500},
		{"5", 2, 500},
		{"18446744073", -9, 18.446744073},
	}
	for _, tc := range cases {
		got, err := decodeScaledPrice(tc.raw, tc.expo)
		require.NoError(t, err)
		require.InDelta(t, tc.want, got, 1e-9)
	}

	_, err := decodeScaledPrice("", 0)
	require.Error(t, err)
	_, err = decodeScaledPrice("not-a-number", 0)
	require.Error(t, err)
}
