package rates

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fx-router/internal/metrics"
	"github.com/Checker-Finance/fx-router/pkg/model"
	"github.com/Checker-Finance/fx-router/pkg/secrets"
)

// feedMessage is a single rate update pushed by the market-data feed.
type feedMessage struct {
	Type       string          `json:"type"` // "rate" | "heartbeat"
	Pair       string          `json:"pair"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	Position   string          `json:"position,omitempty"`
	ValidUntil time.Time       `json:"valid_until"`
}

type feedAuth struct {
	Op        string `json:"op"` // "auth"
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// Feed consumes a websocket market-data stream and writes updates into the
// static book, keeping the cached source warm. It reconnects with backoff
// until the context is cancelled.
type Feed struct {
	url      string
	secret   string
	sink     *StaticSource
	resolver secrets.Provider
	creds    *secrets.Cache[secrets.FeedCredentials]
	logger   *zap.Logger
}

// NewFeed creates a feed consumer. resolver may be nil when the feed
// endpoint requires no authentication.
func NewFeed(url, secretKey string, sink *StaticSource, resolver secrets.Provider, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		url:      url,
		secret:   secretKey,
		sink:     sink,
		resolver: resolver,
		creds:    secrets.NewCache[secrets.FeedCredentials](30 * time.Minute),
		logger:   logger,
	}
}

// Start runs the consume loop until ctx is cancelled.
func (f *Feed) Start(ctx context.Context) {
	backoff := time.Second
	for {
		if err := f.consume(ctx); err != nil {
			f.logger.Warn("rates.feed_disconnected", zap.Error(err))
			metrics.IncError("rate_feed", "disconnected")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *Feed) consume(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck

	if err := f.authenticate(ctx, conn); err != nil {
		return err
	}

	f.logger.Info("rates.feed_connected", zap.String("url", f.url))

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var msg feedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if msg.Type != "rate" || msg.Pair == "" {
			continue
		}
		f.sink.Set(model.TreasuryRate{
			Pair:       msg.Pair,
			Bid:        msg.Bid,
			Ask:        msg.Ask,
			Mid:        msg.Bid.Add(msg.Ask).Div(decimal.NewFromInt(2)),
			Position:   parsePosition(msg.Position),
			ValidUntil: msg.ValidUntil,
		})
	}
}

func (f *Feed) authenticate(ctx context.Context, conn *websocket.Conn) error {
	if f.resolver == nil || f.secret == "" {
		return nil
	}

	creds, ok := f.creds.Get(f.secret)
	if !ok {
		raw, err := f.resolver.GetSecret(ctx, f.secret)
		if err != nil {
			return err
		}
		creds = secrets.FeedCredentials{
			APIKey:    raw["api_key"],
			APISecret: raw["api_secret"],
		}
		f.creds.Put(f.secret, creds)
	}

	data, err := json.Marshal(feedAuth{Op: "auth", APIKey: creds.APIKey, APISecret: creds.APISecret})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func parsePosition(s string) model.TreasuryPosition {
	switch s {
	case "LONG":
		return model.PositionLong
	case "SHORT":
		return model.PositionShort
	}
	return model.PositionNeutral
}
