package fdc

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// newFastRetryer は待機をスキップして遅延だけ記録するRetryerを生成する。
func newFastRetryer(maxRetries int, delays *[]time.Duration) *Retryer {
	r := NewRetryer(maxRetries, time.Second, newTestLogger())
	r.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return r
}

func TestRetryer_Do_SucceedsOnThirdTry(t *testing.T) {
	var delays []time.Duration
	r := newFastRetryer(3, &delays)

	calls := 0
	err := r.Do(context.Background(), "test", func() error {
		calls++
		if calls < 3 {
			return markRetryable(errors.New("一時的な障害"))
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Doがエラーを返した: %v", err)
	}
	if calls != 3 {
		t.Errorf("試行回数 = %d, want 3", calls)
	}
	if len(delays) != 2 {
		t.Errorf("記録されたリトライ待機数 = %d, want 2", len(delays))
	}
}

func TestRetryer_Do_FatalErrorInvokedExactlyOnce(t *testing.T) {
	var delays []time.Duration
	r := newFastRetryer(3, &delays)

	fatal := errors.New("致命的な障害")
	calls := 0
	err := r.Do(context.Background(), "test", func() error {
		calls++
		return fatal
	})

	if !errors.Is(err, fatal) {
		t.Errorf("err = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("致命的エラーの試行回数 = %d, want 1（リトライを消費してはならない）", calls)
	}
	if len(delays) != 0 {
		t.Errorf("致命的エラーで待機が発生した: %v", delays)
	}
}

func TestRetryer_Do_ExhaustsRetries(t *testing.T) {
	var delays []time.Duration
	r := newFastRetryer(3, &delays)

	calls := 0
	err := r.Do(context.Background(), "test", func() error {
		calls++
		return markRetryable(errors.New("常に失敗"))
	})

	if err == nil {
		t.Fatal("リトライ枯渇時はエラーを返すべき")
	}
	// 初回 + 3リトライ = 最大4回試行
	if calls != 4 {
		t.Errorf("試行回数 = %d, want 4", calls)
	}
}

func TestRetryer_Do_ExponentialBackoffDoubles(t *testing.T) {
	var delays []time.Duration
	r := newFastRetryer(3, &delays)

	calls := 0
	_ = r.Do(context.Background(), "test", func() error {
		calls++
		return markRetryable(errors.New("常に失敗"))
	})

	if len(delays) != 3 {
		t.Fatalf("待機回数 = %d, want 3", len(delays))
	}

	// ジッター（±25%）込みで各遅延が期待レンジに収まることを確認する
	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, want := range expected {
		low := time.Duration(float64(want) * (1 - jitterFraction))
		high := time.Duration(float64(want) * (1 + jitterFraction))
		if delays[i] < low || delays[i] > high {
			t.Errorf("%d回目の待機 = %v, want [%v, %v]", i+1, delays[i], low, high)
		}
	}
}

func TestRetryer_Do_HonorsRetryAfterHint(t *testing.T) {
	var delays []time.Duration
	r := newFastRetryer(3, &delays)

	calls := 0
	err := r.Do(context.Background(), "test", func() error {
		calls++
		if calls == 1 {
			return markRetryableWithHint(&statusError{code: http.StatusTooManyRequests}, 7*time.Second)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Doがエラーを返した: %v", err)
	}
	if len(delays) != 1 || delays[0] != 7*time.Second {
		t.Errorf("待機 = %v, want [7s]（Retry-Afterヒントが計算済みバックオフより優先されるべき）", delays)
	}
}

func TestRetryer_Do_ContextCancelledDuringBackoff(t *testing.T) {
	r := NewRetryer(3, time.Second, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := r.Do(ctx, "test", func() error {
		calls++
		return markRetryable(errors.New("一時的な障害"))
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("試行回数 = %d, want 1", calls)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"30", 30 * time.Second},
		{"0", 0},
		{"", 0},
		{"invalid", 0},
		{"-5", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.value); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestClassifyStatus_Retryable(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503} {
		resp := &http.Response{StatusCode: code, Header: http.Header{}, Body: http.NoBody}
		err := classifyStatus(resp)
		if retryable, _ := isRetryable(err); !retryable {
			t.Errorf("ステータス %d はリトライ対象であるべき", code)
		}
	}
}

func TestClassifyStatus_Fatal(t *testing.T) {
	for _, code := range []int{400, 401, 403, 404} {
		resp := &http.Response{StatusCode: code, Header: http.Header{}, Body: http.NoBody}
		err := classifyStatus(resp)
		if retryable, _ := isRetryable(err); retryable {
			t.Errorf("ステータス %d は致命的であるべき", code)
		}
	}
}
