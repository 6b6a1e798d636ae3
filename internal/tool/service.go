// Package tool はツール呼び出しの本体を実装する。
// HTTPトランスポートとMCPトランスポートの両方から同じServiceを呼び出し、
// 統一封筒フォーマットのレスポンスを構築する。
package tool

import (
	"context"
	"fmt"

	"github.com/hitoshi/nutrimcp/internal/compare"
	"github.com/hitoshi/nutrimcp/internal/fdc"
	"github.com/hitoshi/nutrimcp/internal/model"
)

// ツール名
const (
	ToolSearchFoods       = "search_foods"
	ToolGetFoodNutrition  = "get_food_nutrition"
	ToolCompareFoods      = "compare_foods"
	ToolGetMultipleFoods  = "get_multiple_foods"
	ToolGetFoodCategories = "get_food_categories"
)

const (
	// defaultPageSize は検索のデフォルトページサイズ。
	defaultPageSize = 10
	// defaultFormat は詳細取得のデフォルトformat。
	defaultFormat = "abridged"
)

// UpstreamClient はツールが必要とする上流クライアントのインターフェース。
// テスト時にモックに差し替え可能。
type UpstreamClient interface {
	Search(ctx context.Context, req fdc.SearchRequest) (*fdc.SearchResult, error)
	GetDetail(ctx context.Context, fdcID int, format string) (*model.FoodDetail, error)
	GetBatch(ctx context.Context, fdcIDs []int, format string) ([]*model.FoodDetail, error)
	HealthCheck(ctx context.Context) error
}

// MetricsRecorder はツール呼び出しの観測情報を記録するインターフェース。
type MetricsRecorder interface {
	RecordToolInvocation(tool string, success bool)
}

// NopMetrics は何も記録しないMetricsRecorder実装。テスト用。
type NopMetrics struct{}

func (NopMetrics) RecordToolInvocation(string, bool) {}

// Service はツール呼び出しを処理する。
// すべての失敗は統一封筒のsuccess=falseとして返し、
// 2番目の戻り値でトランスポート層がHTTPステータスへ対応付けるための
// 分類済みエラーを併せて返す。
type Service struct {
	client  UpstreamClient
	metrics MetricsRecorder
}

// NewService はServiceを生成する。
func NewService(client UpstreamClient, metrics MetricsRecorder) *Service {
	return &Service{
		client:  client,
		metrics: metrics,
	}
}

// SearchParams はsearch_foodsツールのパラメータ。
type SearchParams struct {
	Query      string   `json:"query"`
	DataTypes  []string `json:"data_type,omitempty"`
	PageSize   int      `json:"page_size,omitempty"`
	PageNumber int      `json:"page_number,omitempty"`
}

// searchData はsearch_foodsの成功レスポンスのdata部。
type searchData struct {
	Foods        []model.FoodSummary `json:"foods"`
	TotalResults int                 `json:"total_results"`
	CurrentPage  int                 `json:"current_page"`
}

// SearchFoods は食品をテキスト検索する。
func (s *Service) SearchFoods(ctx context.Context, params SearchParams) (*model.Envelope, error) {
	if params.PageSize == 0 {
		params.PageSize = defaultPageSize
	}
	if params.PageNumber == 0 {
		params.PageNumber = 1
	}

	result, err := s.client.Search(ctx, fdc.SearchRequest{
		Query:      params.Query,
		DataTypes:  params.DataTypes,
		PageSize:   params.PageSize,
		PageNumber: params.PageNumber,
	})
	if err != nil {
		return s.fail(ToolSearchFoods, err)
	}

	data := searchData{
		Foods:        result.Foods,
		TotalResults: result.TotalResults,
		CurrentPage:  result.CurrentPage,
	}
	message := fmt.Sprintf("%q に一致する食品が%d件見つかりました", params.Query, result.TotalResults)

	s.metrics.RecordToolInvocation(ToolSearchFoods, true)
	return model.NewSuccessEnvelope(ToolSearchFoods, data, message), nil
}

// FoodDetailParams はget_food_nutritionツールのパラメータ。
type FoodDetailParams struct {
	FDCID  int    `json:"fdc_id"`
	Format string `json:"format,omitempty"`
}

// foodInfo は栄養情報レスポンスの食品概要部。
type foodInfo struct {
	FDCID           int     `json:"fdc_id"`
	Description     string  `json:"description"`
	DataType        string  `json:"data_type"`
	FoodCategory    string  `json:"food_category,omitempty"`
	BrandOwner      string  `json:"brand_owner,omitempty"`
	ServingSize     float64 `json:"serving_size,omitempty"`
	ServingSizeUnit string  `json:"serving_size_unit,omitempty"`
}

// nutritionData はget_food_nutritionの成功レスポンスのdata部。
type nutritionData struct {
	FoodInfo  foodInfo                                `json:"food_info"`
	Nutrition map[string]map[string]model.NutrientValue `json:"nutrition"`
}

// GetFoodNutrition は1つの食品の正規化済み栄養情報を取得する。
func (s *Service) GetFoodNutrition(ctx context.Context, params FoodDetailParams) (*model.Envelope, error) {
	if params.Format == "" {
		params.Format = defaultFormat
	}

	detail, err := s.client.GetDetail(ctx, params.FDCID, params.Format)
	if err != nil {
		return s.fail(ToolGetFoodNutrition, err)
	}

	data := nutritionData{
		FoodInfo:  toFoodInfo(detail),
		Nutrition: detail.Nutrients,
	}
	message := fmt.Sprintf("%s の栄養情報を取得しました", detail.Description)

	s.metrics.RecordToolInvocation(ToolGetFoodNutrition, true)
	return model.NewSuccessEnvelope(ToolGetFoodNutrition, data, message), nil
}

// CompareFoodsParams はcompare_foodsツールのパラメータ。
type CompareFoodsParams struct {
	FDCIDs []int `json:"fdc_ids"`
}

// CompareFoods は2〜5件の食品の栄養素を横並びで比較する。
// 上限は一括取得と同じ理由でレスポンスサイズを抑えるための制約。
func (s *Service) CompareFoods(ctx context.Context, params CompareFoodsParams) (*model.Envelope, error) {
	// 上流呼び出しの前に件数を検証し、無駄なレート枠消費を避ける
	if len(params.FDCIDs) < 2 || len(params.FDCIDs) > 5 {
		err := model.NewInvalidRequestError(
			fmt.Sprintf("比較は2〜5件の食品を指定してください: %d件が指定されました", len(params.FDCIDs)))
		return s.fail(ToolCompareFoods, err)
	}

	details, err := s.client.GetBatch(ctx, params.FDCIDs, defaultFormat)
	if err != nil {
		return s.fail(ToolCompareFoods, err)
	}

	result, err := compare.Build(details)
	if err != nil {
		return s.fail(ToolCompareFoods, err)
	}

	message := fmt.Sprintf("%d件の食品を比較しました", len(details))

	s.metrics.RecordToolInvocation(ToolCompareFoods, true)
	return model.NewSuccessEnvelope(ToolCompareFoods, result, message), nil
}

// MultipleFoodsParams はget_multiple_foodsツールのパラメータ。
type MultipleFoodsParams struct {
	FDCIDs []int  `json:"fdc_ids"`
	Format string `json:"format,omitempty"`
}

// multipleFoodsData はget_multiple_foodsの成功レスポンスのdata部。
type multipleFoodsData struct {
	Foods []*model.FoodDetail `json:"foods"`
}

// GetMultipleFoods は最大20件の食品詳細を一括取得する。
func (s *Service) GetMultipleFoods(ctx context.Context, params MultipleFoodsParams) (*model.Envelope, error) {
	if params.Format == "" {
		params.Format = defaultFormat
	}

	details, err := s.client.GetBatch(ctx, params.FDCIDs, params.Format)
	if err != nil {
		return s.fail(ToolGetMultipleFoods, err)
	}

	message := fmt.Sprintf("%d件の食品詳細を取得しました", len(details))

	s.metrics.RecordToolInvocation(ToolGetMultipleFoods, true)
	return model.NewSuccessEnvelope(ToolGetMultipleFoods, multipleFoodsData{Foods: details}, message), nil
}

// GetFoodCategories はUSDAのデータタイプと検索のガイダンスを返す。
// 取得済みデータの提示のみで、上流呼び出しは行わない。
func (s *Service) GetFoodCategories(ctx context.Context) (*model.Envelope, error) {
	s.metrics.RecordToolInvocation(ToolGetFoodCategories, true)
	return model.NewSuccessEnvelope(ToolGetFoodCategories, categoriesGuide(), "USDA FoodData Centralのデータ構成と検索ガイド"), nil
}

// HealthCheck は上流APIへの疎通確認を行う。
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

// fail は失敗封筒と分類済みエラーを返す。
// APIError以外のエラー（想定外の内部エラー）はUPSTREAM_UNAVAILABLEに包む。
func (s *Service) fail(toolName string, err error) (*model.Envelope, error) {
	apiErr := model.AsAPIError(err)
	s.metrics.RecordToolInvocation(toolName, false)
	return model.NewErrorEnvelope(toolName, apiErr), apiErr
}

// toFoodInfo はFoodDetailから食品概要部を構築する。
func toFoodInfo(d *model.FoodDetail) foodInfo {
	return foodInfo{
		FDCID:           d.FDCID,
		Description:     d.Description,
		DataType:        d.DataType,
		FoodCategory:    d.FoodCategory,
		BrandOwner:      d.BrandOwner,
		ServingSize:     d.ServingSize,
		ServingSizeUnit: d.ServingSizeUnit,
	}
}
