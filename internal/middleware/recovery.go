package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/hitoshi/nutrimcp/internal/model"
)

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 統一封筒フォーマットの500レスポンスを返すミドルウェアを生成する。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("panic recovered",
						slog.Any("panic", rec),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("stack", string(debug.Stack())),
					)
					WriteEnvelope(w, http.StatusInternalServerError,
						model.NewErrorEnvelope("", &model.APIError{
							Code:     "INTERNAL_ERROR",
							Message:  "内部エラーが発生しました。",
							Category: "system",
							Action:   "しばらく待ってから再度お試しください。",
						}))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
