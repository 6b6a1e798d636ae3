package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/nutrimcp/internal/model"
)

// StatusForError はAPIErrorのコードをHTTPステータスコードへ対応付ける。
// 未知のコードは502として扱う。
func StatusForError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

// WriteEnvelope は封筒をJSONとしてレスポンスへ書き込む。
func WriteEnvelope(w http.ResponseWriter, statusCode int, env *model.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("failed to encode response envelope", slog.String("error", err.Error()))
	}
}

// WriteErrorEnvelope は失敗封筒を対応するHTTPステータスで書き込む。
// RATE_LIMITEDの場合はRetry-Afterヘッダーを付加する。
func WriteErrorEnvelope(w http.ResponseWriter, toolName string, apiErr *model.APIError) {
	if apiErr.Code == model.ErrCodeRateLimited && apiErr.RetryAfterSec > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfterSec))
	}
	WriteEnvelope(w, StatusForError(apiErr), model.NewErrorEnvelope(toolName, apiErr))
}
