package fdc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

const (
	// defaultMaxRetries は初回試行に追加で許容するリトライ回数（合計最大4回試行）。
	defaultMaxRetries = 3
	// defaultBaseDelay は指数バックオフの初回遅延。
	defaultBaseDelay = time.Second
	// jitterFraction はバックオフ遅延に加えるジッターの比率（最大±25%）。
	jitterFraction = 0.25
)

// retryableError は一時的な失敗を表すエラー。
// ネットワークタイムアウト、接続リセット、HTTP 429、HTTP 5xxが該当する。
// retryAfterは429のRetry-Afterヒント（ない場合は0）。
type retryableError struct {
	err        error
	retryAfter time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// markRetryable はエラーをリトライ対象として分類する。
func markRetryable(err error) error {
	return &retryableError{err: err}
}

// markRetryableWithHint は上流のRetry-Afterヒント付きでリトライ対象として分類する。
func markRetryableWithHint(err error, retryAfter time.Duration) error {
	return &retryableError{err: err, retryAfter: retryAfter}
}

// isRetryable はエラーがリトライ対象かを判定し、対象ならRetry-Afterヒントを返す。
func isRetryable(err error) (bool, time.Duration) {
	var re *retryableError
	if errors.As(err, &re) {
		return true, re.retryAfter
	}
	return false, 0
}

// Retryer は1回の上流呼び出し試行を有界リトライと指数バックオフでラップする。
// リトライは同一論理操作内で逐次実行され、並列には行わない。
type Retryer struct {
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger

	// sleep はテスト用に差し替え可能な待機プリミティブ。
	// コンテキストのキャンセルで待機を中断する。
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryer はRetryerを生成する。
// maxRetriesが負、baseDelayが0以下の場合はデフォルト値を使用する。
func NewRetryer(maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Retryer {
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &Retryer{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// Do はattemptを実行し、リトライ対象の失敗に限り最大maxRetries回まで再試行する。
// 致命的な失敗はリトライを消費せず即座に返す。
// リトライ枯渇時は最後の失敗を返す。
func (r *Retryer) Do(ctx context.Context, operation string, attempt func() error) error {
	var lastErr error

	for try := 0; try <= r.maxRetries; try++ {
		if try > 0 {
			retryable, hint := isRetryable(lastErr)
			if !retryable {
				return lastErr
			}

			// 429のRetry-Afterヒントがある場合は計算済みバックオフの代わりに使用する
			delay := r.backoff(try - 1)
			if hint > 0 {
				delay = hint
			}

			r.logger.Warn("上流呼び出しをリトライします",
				slog.String("operation", operation),
				slog.Int("attempt", try),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)

			if err := r.sleep(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = attempt()
		if lastErr == nil {
			return nil
		}

		if retryable, _ := isRetryable(lastErr); !retryable {
			return lastErr
		}
	}

	return fmt.Errorf("リトライ上限（%d回）に達しました: %w", r.maxRetries, lastErr)
}

// backoff はリトライ回数nに対する指数バックオフ遅延を計算する。
// baseDelayから開始して2倍ずつ増加し、サンダリングハード回避のため
// ±25%のジッターを加える。
func (r *Retryer) backoff(n int) time.Duration {
	delay := r.baseDelay
	for i := 0; i < n; i++ {
		delay *= 2
	}

	jitter := time.Duration((rand.Float64()*2 - 1) * jitterFraction * float64(delay))
	return delay + jitter
}

// sleepContext はコンテキストのキャンセルに対応した待機を行う。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
