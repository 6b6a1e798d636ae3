package tool

import "github.com/hitoshi/nutrimcp/internal/model"

// Catalog は公開する全ツールの名前・説明・入力スキーマを返す。
// GET /tools とMCPのtools/listの両方で使用する。
func Catalog() []model.ToolInfo {
	return []model.ToolInfo{
		{
			Name:        ToolSearchFoods,
			Description: "Search for foods in the USDA FoodData Central database by keywords",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Search term (e.g., \"apple\", \"chicken breast\")",
					},
					"page_size": map[string]any{
						"type":    "integer",
						"default": defaultPageSize,
						"minimum": 1,
						"maximum": 200,
					},
					"page_number": map[string]any{
						"type":    "integer",
						"default": 1,
						"minimum": 1,
					},
					"data_type": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Filter by data types (Foundation, Branded, Survey (FNDDS), SR Legacy)",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        ToolGetFoodNutrition,
			Description: "Get normalized nutrition information for a specific food",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"fdc_id": map[string]any{
						"type":        "integer",
						"description": "USDA FoodData Central ID",
					},
					"format": map[string]any{
						"type":    "string",
						"default": defaultFormat,
						"enum":    []string{"abridged", "full"},
					},
				},
				"required": []string{"fdc_id"},
			},
		},
		{
			Name:        ToolCompareFoods,
			Description: "Compare nutritional information between 2-5 foods side by side",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"fdc_ids": map[string]any{
						"type":     "array",
						"items":    map[string]any{"type": "integer"},
						"minItems": 2,
						"maxItems": 5,
					},
				},
				"required": []string{"fdc_ids"},
			},
		},
		{
			Name:        ToolGetMultipleFoods,
			Description: "Get nutrition details for up to 20 foods at once",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"fdc_ids": map[string]any{
						"type":     "array",
						"items":    map[string]any{"type": "integer"},
						"minItems": 1,
						"maxItems": 20,
					},
					"format": map[string]any{
						"type":    "string",
						"default": defaultFormat,
						"enum":    []string{"abridged", "full"},
					},
				},
				"required": []string{"fdc_ids"},
			},
		},
		{
			Name:        ToolGetFoodCategories,
			Description: "Get information about USDA food categories and data types",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}
