package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/nutrimcp/internal/metrics"
	"github.com/hitoshi/nutrimcp/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	ToolService       ToolServiceInterface
	MetricsGatherer   prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → Logging → CORS → RateLimit
//
// /healthと/metricsはレート制限の外に配置する（監視系からの定期アクセスのため）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	h := NewToolHandler(deps.ToolService)

	// --- 監視系のルート（レート制限なし） ---
	r.Get("/health", h.Health)
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- ツールのルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())

		r.Route("/tools", func(r chi.Router) {
			r.Get("/", h.ListTools)

			r.Post("/search_foods", h.SearchFoods)
			r.Post("/get_food_nutrition", h.GetFoodNutrition)
			r.Post("/compare_foods", h.CompareFoods)
			r.Post("/get_multiple_foods", h.GetMultipleFoods)
			r.Get("/get_food_categories", h.GetFoodCategories)
		})
	})

	return r
}
