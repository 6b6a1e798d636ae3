package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hitoshi/nutrimcp/internal/middleware"
	"github.com/hitoshi/nutrimcp/internal/model"
	"github.com/hitoshi/nutrimcp/internal/tool"
)

// ToolServiceInterface はツールハンドラーが必要とするサービスインターフェース。
type ToolServiceInterface interface {
	SearchFoods(ctx context.Context, params tool.SearchParams) (*model.Envelope, error)
	GetFoodNutrition(ctx context.Context, params tool.FoodDetailParams) (*model.Envelope, error)
	CompareFoods(ctx context.Context, params tool.CompareFoodsParams) (*model.Envelope, error)
	GetMultipleFoods(ctx context.Context, params tool.MultipleFoodsParams) (*model.Envelope, error)
	GetFoodCategories(ctx context.Context) (*model.Envelope, error)
	HealthCheck(ctx context.Context) error
}

// ToolHandler はツール呼び出しのHTTPハンドラー。
// 各エンドポイントはサービス層が構築した統一封筒をそのまま返し、
// 失敗時のみエラーコードに応じたHTTPステータスへ対応付ける。
type ToolHandler struct {
	service ToolServiceInterface
}

// NewToolHandler はToolHandlerを生成する。
func NewToolHandler(service ToolServiceInterface) *ToolHandler {
	return &ToolHandler{service: service}
}

// SearchFoods は食品検索を処理する。
// POST /tools/search_foods
func (h *ToolHandler) SearchFoods(w http.ResponseWriter, r *http.Request) {
	var params tool.SearchParams
	if !decodeParams(w, r, tool.ToolSearchFoods, &params) {
		return
	}
	env, err := h.service.SearchFoods(r.Context(), params)
	writeResult(w, env, err)
}

// GetFoodNutrition は栄養情報取得を処理する。
// POST /tools/get_food_nutrition
func (h *ToolHandler) GetFoodNutrition(w http.ResponseWriter, r *http.Request) {
	var params tool.FoodDetailParams
	if !decodeParams(w, r, tool.ToolGetFoodNutrition, &params) {
		return
	}
	env, err := h.service.GetFoodNutrition(r.Context(), params)
	writeResult(w, env, err)
}

// CompareFoods は食品比較を処理する。
// POST /tools/compare_foods
func (h *ToolHandler) CompareFoods(w http.ResponseWriter, r *http.Request) {
	var params tool.CompareFoodsParams
	if !decodeParams(w, r, tool.ToolCompareFoods, &params) {
		return
	}
	env, err := h.service.CompareFoods(r.Context(), params)
	writeResult(w, env, err)
}

// GetMultipleFoods は食品詳細の一括取得を処理する。
// POST /tools/get_multiple_foods
func (h *ToolHandler) GetMultipleFoods(w http.ResponseWriter, r *http.Request) {
	var params tool.MultipleFoodsParams
	if !decodeParams(w, r, tool.ToolGetMultipleFoods, &params) {
		return
	}
	env, err := h.service.GetMultipleFoods(r.Context(), params)
	writeResult(w, env, err)
}

// GetFoodCategories はデータタイプ・検索ガイドの取得を処理する。
// GET /tools/get_food_categories
func (h *ToolHandler) GetFoodCategories(w http.ResponseWriter, r *http.Request) {
	env, err := h.service.GetFoodCategories(r.Context())
	writeResult(w, env, err)
}

// ListTools は公開ツールの一覧を返す。
// GET /tools
func (h *ToolHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	env := model.NewSuccessEnvelope("", map[string]any{"tools": tool.Catalog()}, "利用可能なツールの一覧")
	middleware.WriteEnvelope(w, http.StatusOK, env)
}

// healthResponse は/healthのレスポンスボディ。
type healthResponse struct {
	Status   string `json:"status"`
	Upstream string `json:"upstream"`
}

// Health はサービスと上流APIの疎通状態を返す。
// GET /health
// 上流が到達不能の場合はdegradedとして503を返す。
func (h *ToolHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Upstream: "reachable"}
	statusCode := http.StatusOK

	if err := h.service.HealthCheck(r.Context()); err != nil {
		resp = healthResponse{Status: "degraded", Upstream: "unreachable"}
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// decodeParams はリクエストボディのJSONをパラメータへ読み込む。
// 解析に失敗した場合はINVALID_REQUESTレスポンスを書き込み、falseを返す。
func decodeParams(w http.ResponseWriter, r *http.Request, toolName string, params any) bool {
	if err := json.NewDecoder(r.Body).Decode(params); err != nil {
		middleware.WriteErrorEnvelope(w, toolName,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return false
	}
	return true
}

// writeResult はサービスの結果を対応するHTTPステータスで書き込む。
// 成功は200、失敗はエラーコードに応じたステータスとなる。
func writeResult(w http.ResponseWriter, env *model.Envelope, err error) {
	if err != nil {
		apiErr := model.AsAPIError(err)
		if apiErr.Code == model.ErrCodeRateLimited && apiErr.RetryAfterSec > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfterSec))
		}
		middleware.WriteEnvelope(w, middleware.StatusForError(apiErr), env)
		return
	}
	middleware.WriteEnvelope(w, http.StatusOK, env)
}
