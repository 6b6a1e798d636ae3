package nutrient

import (
	"github.com/hitoshi/nutrimcp/internal/fdc"
	"github.com/hitoshi/nutrimcp/internal/model"
)

// Normalizer は生の上流食品レコードをFoodDetailへ正規化する。
// 対応表は構築時に埋め込み資産から1回だけ読み込み、以後は読み取り専用。
type Normalizer struct {
	table map[int]mapping
}

// NewNormalizer はNormalizerを生成する。
// 埋め込まれた栄養素対応表が不正な場合はエラーを返す。
func NewNormalizer() (*Normalizer, error) {
	table, err := loadTable()
	if err != nil {
		return nil, err
	}
	return &Normalizer{table: table}, nil
}

// Normalize は生レコードの栄養素エントリを分類し、FoodDetailを構築する。
//
//   - 対応表にないコードのエントリは出力に含めない（上流データは大規模で
//     ノイズが多く、既知の栄養素のみを公開する）。
//   - 量がnullまたは負のエントリは捨てる。
//   - 同じ正規名へ対応する重複・エイリアスコードは、上流リスト内の
//     初出の値が勝つ。後続の値で上書きしない。
//
// 同じ生レコードに対して常に同一の結果を返す（冪等）。
func (n *Normalizer) Normalize(raw *fdc.RawFood) *model.FoodDetail {
	buckets := map[string]map[string]model.NutrientValue{
		model.BucketMacronutrients: {},
		model.BucketVitamins:       {},
		model.BucketMinerals:       {},
	}

	for i := range raw.FoodNutrients {
		entry := &raw.FoodNutrients[i]
		if entry.Amount == nil || *entry.Amount < 0 {
			continue
		}

		m, known := n.table[entry.Code()]
		if !known {
			continue
		}

		bucket := buckets[m.Bucket]
		if _, seen := bucket[m.Name]; seen {
			// 初出優先: エイリアスコードの後続値は捨てる
			continue
		}

		bucket[m.Name] = model.NutrientValue{
			Amount: *entry.Amount,
			Unit:   entry.Unit(),
		}
	}

	return &model.FoodDetail{
		FDCID:           raw.FDCID,
		Description:     raw.Description,
		DataType:        raw.DataType,
		FoodCategory:    string(raw.FoodCategory),
		BrandOwner:      raw.BrandOwner,
		ServingSize:     raw.ServingSize,
		ServingSizeUnit: raw.ServingSizeUnit,
		Nutrients:       buckets,
	}
}
