// Package compare は正規化済みの複数食品から栄養素の横並び比較を構築する。
// 取得済みデータの並べ替えのみを行い、計算やキャッシュは持たない。
package compare

import (
	"fmt"

	"github.com/hitoshi/nutrimcp/internal/model"
)

const (
	// minFoods は比較できる食品数の下限。
	minFoods = 2
	// maxFoods は比較できる食品数の上限。
	// 一括取得の上限と同じ理由で、レスポンスサイズを抑えるための制約。
	maxFoods = 5
)

// Build は2〜5件のFoodDetailから比較結果を構築する。
// 入力食品のいずれかに存在する栄養素名ごとに、その栄養素を持つ食品の
// {food_label, amount, unit} をリクエスト順で並べる。
// 栄養素を持たない食品はそのリストに現れない。ソースデータにおける欠損は
// 真のゼロとは等価でないため、ゼロ埋めはしない。
func Build(details []*model.FoodDetail) (*model.ComparisonResult, error) {
	if len(details) < minFoods || len(details) > maxFoods {
		return nil, model.NewInvalidRequestError(
			fmt.Sprintf("比較は%d〜%d件の食品を指定してください: %d件が指定されました", minFoods, maxFoods, len(details)))
	}

	comparison := make(map[string][]model.NutrientEntry)

	// 食品はリクエスト順に処理する。各栄養素のエントリ順がそのまま
	// リクエスト順になる。
	for _, d := range details {
		for _, bucket := range d.Nutrients {
			for name, value := range bucket {
				comparison[name] = append(comparison[name], model.NutrientEntry{
					FoodLabel: d.Description,
					Amount:    value.Amount,
					Unit:      value.Unit,
				})
			}
		}
	}

	return &model.ComparisonResult{
		Foods:      details,
		Comparison: comparison,
	}, nil
}
