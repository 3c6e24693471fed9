// Package retry はレート制限・クォータ超過のエラーに限って指数バックオフで再試行します。
// 再試行ポリシーはこのパッケージにだけ置き、各工程は独自のバックオフを持ちません。
package retry

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/genai"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 2000 * time.Millisecond
	DefaultMultiplier   = 2.0

	maxInterval = 10 * time.Minute
)

// rateLimitSignatures はエラー文字列に含まれるとレート制限とみなす部分文字列です（小文字で比較）。
var rateLimitSignatures = []string{"429", "resource_exhausted", "quota exceeded"}

// Policy は再試行の予算と待ち時間を定義します。
type Policy struct {
	// MaxRetries は最初の呼び出しに加えて行う再試行の最大回数なのだ。
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64

	// Timer を差し替えるとテストで実際に待たずに済むのだ。nil ならシステムタイマー。
	Timer  backoff.Timer
	Logger *slog.Logger
}

// DefaultPolicy は予算3回、初回2秒、倍々で待つポリシーを返します。
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		Multiplier:   DefaultMultiplier,
	}
}

// Do は fn を実行し、レート制限のエラーであれば予算の範囲で待ってから再試行します。
// それ以外のエラーは最初の失敗でそのまま返し、予算を使い切った場合は最後のエラーを返すのだ。
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.InitialDelay),
		backoff.WithMultiplier(p.Multiplier),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(maxInterval),
		backoff.WithMaxElapsedTime(0),
	)
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxRetries)), ctx)

	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !IsRateLimit(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, wait time.Duration) {
		p.Logger.Warn("API のレート制限に達したため再試行します",
			"attempt", attempt,
			"retries_left", p.MaxRetries-attempt,
			"wait", wait,
			"error", err,
		)
	}

	return backoff.RetryNotifyWithTimerAndData(operation, b, notify, p.Timer)
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}

// IsRateLimit はエラーがレート制限・クォータ超過を示しているかを判定します。
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return true
	}
	return IsRateLimitMessage(err.Error())
}

// IsRateLimitMessage は文字列だけで判定するのだ。画面に出すメッセージの切り替えにも使います。
func IsRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, sig := range rateLimitSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
