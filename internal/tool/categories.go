package tool

// dataTypeGuide は1つのデータタイプの説明。
type dataTypeGuide struct {
	Description string `json:"description"`
	Example     string `json:"example"`
	BestFor     string `json:"best_for"`
}

// categoriesData はget_food_categoriesのdata部。
type categoriesData struct {
	DataTypes        map[string]dataTypeGuide `json:"data_types"`
	SearchTips       []string                 `json:"search_tips"`
	CommonCategories []string                 `json:"common_categories"`
}

// categoriesGuide はUSDAのデータタイプ・検索ガイドを構築する。
// 静的なガイダンスであり、上流APIは呼び出さない。
func categoriesGuide() categoriesData {
	return categoriesData{
		DataTypes: map[string]dataTypeGuide{
			"Foundation": {
				Description: "基礎食品。非ブランド食品の詳細な栄養プロファイル",
				Example:     "Chicken breast, raw",
				BestFor:     "ブランドに依存しない基本食品の栄養データ取得",
			},
			"Branded": {
				Description: "UPCコード付きの市販食品",
				Example:     "Cheerios Original cereal",
				BestFor:     "特定ブランドの商品やパッケージ食品",
			},
			"Survey (FNDDS)": {
				Description: "食事調査データベース（FNDDS）由来の食品",
				Example:     "Pizza, meat topping, regular crust",
				BestFor:     "調査で実際に摂取された形のままの食品",
			},
			"SR Legacy": {
				Description: "旧Standard Referenceデータベースのデータ",
				Example:     "Milk, whole, 3.25% milkfat",
				BestFor:     "過去データとの比較や研究用途",
			},
		},
		SearchTips: []string{
			"シンプルで説明的な語を使うと良い結果が得られます",
			"一般名（chicken）と具体名（chicken breast）の両方を試してください",
			"基本食品にはFoundationとSR Legacyが適しています",
			"市販商品にはBrandedが適しています",
		},
		CommonCategories: []string{
			"Dairy and Egg Products",
			"Spices and Herbs",
			"Fats and Oils",
			"Poultry Products",
			"Fruits and Fruit Juices",
			"Vegetables and Vegetable Products",
			"Nut and Seed Products",
			"Beef Products",
			"Beverages",
			"Legumes and Legume Products",
			"Baked Products",
			"Sweets",
			"Cereal Grains and Pasta",
			"Fast Foods",
		},
	}
}
