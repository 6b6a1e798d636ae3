// Package model はドメインモデルを定義する。
package model

// DataType はUSDA FoodData Centralにおける食品レコードのデータソース区分。
type DataType string

const (
	// DataTypeFoundation は基礎食品データ（非ブランド食品の詳細な栄養プロファイル）。
	DataTypeFoundation DataType = "Foundation"
	// DataTypeBranded はブランド食品データ（UPCコード付きの市販食品）。
	DataTypeBranded DataType = "Branded"
	// DataTypeSurvey は食事調査データ（FNDDS）。
	DataTypeSurvey DataType = "Survey (FNDDS)"
	// DataTypeSRLegacy は旧Standard Referenceデータベースのデータ。
	DataTypeSRLegacy DataType = "SR Legacy"
)

// FoodSummary は検索結果1件分の食品概要。
// 検索レスポンスの項目ごとに生成し、レスポンス返却後は破棄する（永続化しない）。
type FoodSummary struct {
	FDCID        int    `json:"fdc_id"`
	Description  string `json:"description"`
	DataType     string `json:"data_type"`
	FoodCategory string `json:"food_category,omitempty"`
	BrandOwner   string `json:"brand_owner,omitempty"`
}

// NutrientValue は1つの栄養素の量と単位。
// 量は非負、単位は g / mg / µg / kcal / IU などの短い単位コード。
type NutrientValue struct {
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
}

// 栄養素バケット名。各栄養素は正確に1つのバケットに属する。
const (
	BucketMacronutrients = "macronutrients"
	BucketVitamins       = "vitamins"
	BucketMinerals       = "minerals"
)

// FoodDetail は1つの食品の正規化済み詳細情報。
// Nutrientsはバケット名 → 正規名 → NutrientValue のマッピング。
// 構築後は変更しないため、ロックなしで複数呼び出し間の読み取り共有が可能。
type FoodDetail struct {
	FDCID           int    `json:"fdc_id"`
	Description     string `json:"description"`
	DataType        string `json:"data_type"`
	FoodCategory    string `json:"food_category,omitempty"`
	BrandOwner      string `json:"brand_owner,omitempty"`
	// ServingSize はブランド食品のみ設定される（それ以外は0）。
	ServingSize     float64 `json:"serving_size,omitempty"`
	ServingSizeUnit string  `json:"serving_size_unit,omitempty"`

	Nutrients map[string]map[string]NutrientValue `json:"nutrients"`
}

// NutrientEntry は比較結果の1食品分のエントリ。
// FoodLabelには数値IDではなく食品のdescriptionを使用する（表示の可読性のため）。
type NutrientEntry struct {
	FoodLabel string  `json:"food_label"`
	Amount    float64 `json:"amount"`
	Unit      string  `json:"unit"`
}

// ComparisonResult は複数食品の栄養素を横並びに比較した結果。
// Comparisonの各栄養素のエントリ順はリクエストされた食品の順序と一致する。
// その栄養素を持たない食品はリストに含まれない（ゼロ埋めしない）。
// リクエストごとに新規構築し、キャッシュしない。
type ComparisonResult struct {
	Foods      []*FoodDetail              `json:"foods"`
	Comparison map[string][]NutrientEntry `json:"nutrient_comparison"`
}
