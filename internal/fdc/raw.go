package fdc

import "encoding/json"

// FoodCategory は上流のfoodCategoryフィールドの値。
// 検索レスポンスでは文字列、full形式の詳細レスポンスでは
// {"description": ...} オブジェクトで返るため、両方の形を受け付ける。
type FoodCategory string

// UnmarshalJSON は文字列・オブジェクト両形式のfoodCategoryをデコードする。
func (fc *FoodCategory) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*fc = FoodCategory(s)
		return nil
	}

	var obj struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*fc = FoodCategory(obj.Description)
	return nil
}

// RawNutrientInfo はfull形式の栄養素エントリに入れ子で含まれる栄養素定義。
type RawNutrientInfo struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	UnitName string `json:"unitName"`
}

// RawFoodNutrient は上流が返す栄養素エントリ1件の生の形。
// データタイプとformatによりスキーマが揺れる:
// abridged形式はnutrientId/nutrientName/unitNameがフラットに並び、
// full形式はnutrientオブジェクトに入れ子になる。
type RawFoodNutrient struct {
	// abridged形式のフィールド
	NutrientID   int    `json:"nutrientId"`
	NutrientName string `json:"nutrientName"`
	UnitName     string `json:"unitName"`

	// full形式のフィールド
	Nutrient *RawNutrientInfo `json:"nutrient"`

	// Amount は量。上流がnullを返すエントリを区別するためポインタで保持する。
	Amount *float64 `json:"amount"`
}

// Code は形式の揺れを吸収して栄養素コードを返す。
func (n *RawFoodNutrient) Code() int {
	if n.Nutrient != nil {
		return n.Nutrient.ID
	}
	return n.NutrientID
}

// Unit は形式の揺れを吸収して単位コードを返す。
func (n *RawFoodNutrient) Unit() string {
	if n.Nutrient != nil {
		return n.Nutrient.UnitName
	}
	return n.UnitName
}

// RawFood は上流APIが返す食品レコードの生の形。
// 検索結果の項目と詳細レスポンスの両方で共通のフィールド名を持つ。
type RawFood struct {
	FDCID           int               `json:"fdcId"`
	Description     string            `json:"description"`
	DataType        string            `json:"dataType"`
	FoodCategory    FoodCategory      `json:"foodCategory"`
	BrandOwner      string            `json:"brandOwner"`
	ServingSize     float64           `json:"servingSize"`
	ServingSizeUnit string            `json:"servingSizeUnit"`
	FoodNutrients   []RawFoodNutrient `json:"foodNutrients"`
}

// rawSearchResponse は/foods/searchレスポンスの生の形。
type rawSearchResponse struct {
	TotalHits   int       `json:"totalHits"`
	CurrentPage int       `json:"currentPage"`
	TotalPages  int       `json:"totalPages"`
	Foods       []RawFood `json:"foods"`
}
