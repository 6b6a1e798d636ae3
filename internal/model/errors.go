package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// 呼び出し元が分岐できるエラーコードと、ユーザー向けの対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, upstream, system
	Action   string // ユーザー向け対処方法
	// RetryAfterSec はRATE_LIMITEDの場合のみ設定される、再試行までの推奨秒数。
	RetryAfterSec int
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	// ErrCodeInvalidRequest は呼び出し側の入力が制約に違反している。再試行しない。
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	// ErrCodeNotFound は上流が該当IDの不存在を確認した。再試行しない。
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeRateLimited はレートガバナーが拒否し、呼び出し元がフェイルファストを選択した。
	ErrCodeRateLimited = "RATE_LIMITED"
	// ErrCodeUpstreamUnavailable はリトライ枯渇またはその他の上流障害。
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

// AsAPIError はerrを統一エラーフォーマットへ正規化する。
// 既にAPIErrorの場合はそのまま返し、それ以外の想定外エラーは
// UPSTREAM_UNAVAILABLEとして包む。
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewUpstreamUnavailableError(err.Error())
}

// NewInvalidRequestError は入力制約違反エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストパラメータを確認してください。",
	}
}

// NewNotFoundError は食品未検出エラーを生成する。
func NewNotFoundError(fdcID int) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定されたFDC IDの食品が見つかりません: %d", fdcID),
		Category: "upstream",
		Action:   "search_foodsで正しいFDC IDを確認してください。",
	}
}

// NewResourceNotFoundError は特定のFDC IDに紐づかない未検出エラーを生成する。
// 検索や一括取得のエンドポイント自体が404を返した場合に使用する。
func NewResourceNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "要求されたリソースが上流で見つかりません。",
		Category: "upstream",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewRateLimitedError はレート制限エラーを生成する。
// retryAfterSecには現在のウィンドウがリセットされるまでの秒数を渡す。
func NewRateLimitedError(retryAfterSec int) *APIError {
	return &APIError{
		Code:          ErrCodeRateLimited,
		Message:       "上流APIの時間あたりリクエスト上限に達しました。",
		Category:      "system",
		Action:        fmt.Sprintf("%d秒後に再度お試しください。", retryAfterSec),
		RetryAfterSec: retryAfterSec,
	}
}

// NewUpstreamUnavailableError は上流障害エラーを生成する。
func NewUpstreamUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  fmt.Sprintf("上流APIの呼び出しに失敗しました: %s", reason),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
