// Package nutrient は上流の生の食品レコードを正規化する。
// プロバイダ固有の栄養素コードを正規名とバケット
// （macronutrients / vitamins / minerals）へ対応付ける。
package nutrient

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed nutrients.yaml
var tableYAML []byte

// mapping は1つの栄養素コードに対する正規名とバケット。
type mapping struct {
	Name   string
	Bucket string
}

// tableFile はnutrients.yamlの構造。
type tableFile struct {
	Nutrients []struct {
		Code   int    `yaml:"code"`
		Name   string `yaml:"name"`
		Bucket string `yaml:"bucket"`
	} `yaml:"nutrients"`
}

// validBuckets は対応表で許可されるバケット名。
var validBuckets = map[string]bool{
	"macronutrients": true,
	"vitamins":       true,
	"minerals":       true,
}

// loadTable は埋め込みのYAML資産から栄養素コード対応表を構築する。
func loadTable() (map[int]mapping, error) {
	var file tableFile
	if err := yaml.Unmarshal(tableYAML, &file); err != nil {
		return nil, fmt.Errorf("栄養素対応表のパースに失敗しました: %w", err)
	}

	table := make(map[int]mapping, len(file.Nutrients))
	for _, n := range file.Nutrients {
		if n.Code <= 0 || n.Name == "" {
			return nil, fmt.Errorf("栄養素対応表に不正なエントリがあります: code=%d name=%q", n.Code, n.Name)
		}
		if !validBuckets[n.Bucket] {
			return nil, fmt.Errorf("栄養素対応表に不明なバケットがあります: code=%d bucket=%q", n.Code, n.Bucket)
		}
		if _, exists := table[n.Code]; exists {
			return nil, fmt.Errorf("栄養素対応表にコードの重複があります: %d", n.Code)
		}
		table[n.Code] = mapping{Name: n.Name, Bucket: n.Bucket}
	}

	return table, nil
}
