// Package pricing maintains the ORB/SOL exchange rate from a Pyth Hermes
// websocket subscription. The evaluator reads the cached last value; a
// stale or absent price makes the loop skip, never guess.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Config struct {
	URL               string
	FeedID            string
	ReconnectInterval time.Duration
	// MaxAge bounds how old a cached price may be before Price reports it
	// unusable.
	MaxAge time.Duration
}

type Stream struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	price     float64
	updatedAt time.Time
}

func NewStream(cfg Config, logger *slog.Logger) *Stream {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 3 * time.Second
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 2 * time.Minute
	}
	return &Stream{
		cfg:    cfg,
		logger: logger,
	}
}

// Price returns the last observed price and whether it is fresh enough to
// act on.
func (s *Stream) Price() (float64, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.price <= 0 || s.updatedAt.IsZero() {
		return 0, time.Time{}, false
	}
	if time.Since(s.updatedAt) > s.cfg.MaxAge {
		return s.price, s.updatedAt, false
	}
	return s.price, s.updatedAt, true
}

// Run subscribes and keeps the cache warm until ctx is cancelled,
// reconnecting with a fixed delay on any stream failure.
func (s *Stream) Run(ctx context.Context) {
	feedID := strings.ToLower(strings.TrimSpace(s.cfg.FeedID))
	if s.cfg.URL == "" || feedID == "" {
		s.logger.Warn("price stream disabled due to missing endpoint or feed id")
		return
	}

	s.logger.Info("price stream enabled",
		"endpoint", s.cfg.URL,
		"feed_id", feedID,
		"reconnect_delay", s.cfg.ReconnectInterval.String(),
	)

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.consume(ctx, feedID)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("price stream disconnected", "err", err, "retry_in", s.cfg.ReconnectInterval.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectInterval):
		}
	}
}

type subscribeRequest struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

type streamMessage struct {
	Type      string     `json:"type"`
	PriceFeed *priceFeed `json:"price_feed"`
}

type priceFeed struct {
	ID    string        `json:"id"`
	Price priceSnapshot `json:"price"`
}

type priceSnapshot struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

func (s *Stream) consume(ctx context.Context, feedID string) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial price stream: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeRequest{Type: "subscribe", IDs: []string{feedID}}); err != nil {
		return fmt.Errorf("subscribe to feed: %w", err)
	}

	// Unblock ReadMessage when the loop shuts down.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read price stream: %w", err)
		}
		if err := s.handleMessage(payload, feedID); err != nil {
			s.logger.Warn("failed to process price stream message", "err", err)
		}
	}
}

func (s *Stream) handleMessage(payload []byte, feedID string) error {
	var msg streamMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode price stream message: %w", err)
	}
	if msg.Type != "price_update" || msg.PriceFeed == nil {
		return nil
	}
	if strings.ToLower(strings.TrimSpace(msg.PriceFeed.ID)) != feedID {
		return nil
	}

	price, err := decodeScaledPrice(msg.PriceFeed.Price.Price, msg.PriceFeed.Price.Expo)
	if err != nil || price <= 0 {
		return err
	}

	s.mu.Lock()
	s.price = price
	s.updatedAt = time.Now()
	s.mu.Unlock()
	return nil
}

func decodeScaledPrice(raw string, expo int32) (float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("empty price")
	}

	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, err
	}

	if expo < 0 {
		return value / math.Pow10(int(-expo)), nil
	}
	if expo > 0 {
		return value * math.Pow10(int(expo)), nil
	}
	return value, nil
}
