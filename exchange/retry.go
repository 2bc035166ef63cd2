package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/evdnx/gopyra/config"
	"github.com/evdnx/gopyra/logger"
	"github.com/evdnx/gopyra/metrics"
	"github.com/evdnx/gopyra/types"
)

// ErrRetriesExhausted is returned once a call has failed MaxRetries+1 times.
var ErrRetriesExhausted = errors.New("exchange: retries exhausted")

// Permanent marks an error the decorators must not retry (rejected order,
// bad credentials).
func Permanent(err error) error { return backoff.Permanent(err) }

// RetryPolicy is a capped retry with a fixed delay between attempts.
type RetryPolicy struct {
	MaxRetries uint64
	Delay      time.Duration
}

// PolicyFromConfig reads the retry policy from the exchange section.
func PolicyFromConfig(cfg config.Exchange) RetryPolicy {
	n := cfg.MaxRetries
	if n < 0 {
		n = 0
	}
	return RetryPolicy{MaxRetries: uint64(n), Delay: cfg.RetryDelay}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), p.MaxRetries), ctx)
}

func retry[T any](ctx context.Context, p RetryPolicy, log logger.Logger, op string, fn func() (T, error)) (T, error) {
	attempt := 0
	notify := func(err error, wait time.Duration) {
		attempt++
		metrics.TransportRetries.WithLabelValues(op).Inc()
		log.Warn("exchange_retry",
			logger.String("op", op),
			logger.Int("attempt", attempt),
			logger.String("wait", wait.String()),
			logger.Err(err),
		)
	}
	permanent := false
	call := func() (T, error) {
		v, err := fn()
		var perm *backoff.PermanentError
		permanent = errors.As(err, &perm)
		return v, err
	}
	v, err := backoff.RetryNotifyWithData(call, p.backOff(ctx), notify)
	if err == nil {
		return v, nil
	}
	if permanent || ctx.Err() != nil {
		return v, fmt.Errorf("%s: %w", op, err)
	}
	log.Error("exchange_retries_exhausted", logger.String("op", op), logger.Err(err))
	return v, fmt.Errorf("%s: %w: %w", op, ErrRetriesExhausted, err)
}

// RetryingMarket retries every MarketData call under a policy.
type RetryingMarket struct {
	Inner  MarketData
	Policy RetryPolicy
	Log    logger.Logger
}

func (r RetryingMarket) FetchOHLCV(ctx context.Context, symbol string, tf time.Duration, since, until time.Time) ([]types.Candle, error) {
	return retry(ctx, r.Policy, r.Log, "fetch_ohlcv", func() ([]types.Candle, error) {
		return r.Inner.FetchOHLCV(ctx, symbol, tf, since, until)
	})
}

func (r RetryingMarket) FetchLatestOHLCV(ctx context.Context, symbol string, tf time.Duration) (types.Candle, error) {
	return retry(ctx, r.Policy, r.Log, "fetch_latest_ohlcv", func() (types.Candle, error) {
		return r.Inner.FetchLatestOHLCV(ctx, symbol, tf)
	})
}

func (r RetryingMarket) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	return retry(ctx, r.Policy, r.Log, "fetch_ticker", func() (float64, error) {
		return r.Inner.FetchTicker(ctx, symbol)
	})
}

// RetryingGateway retries every Gateway call under a policy.
type RetryingGateway struct {
	Inner  Gateway
	Policy RetryPolicy
	Log    logger.Logger
}

func (r RetryingGateway) PlaceOrder(ctx context.Context, o types.Order) (Confirmation, error) {
	return retry(ctx, r.Policy, r.Log, "place_order", func() (Confirmation, error) {
		return r.Inner.PlaceOrder(ctx, o)
	})
}

func (r RetryingGateway) GetPosition(ctx context.Context, symbol string) (types.ExchangePosition, error) {
	return retry(ctx, r.Policy, r.Log, "get_position", func() (types.ExchangePosition, error) {
		return r.Inner.GetPosition(ctx, symbol)
	})
}

func (r RetryingGateway) GetBalance(ctx context.Context) (types.Balance, error) {
	return retry(ctx, r.Policy, r.Log, "get_balance", func() (types.Balance, error) {
		return r.Inner.GetBalance(ctx)
	})
}
