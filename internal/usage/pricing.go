package usage

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCostPer1KTokens 是未提供价目表时使用的每千 token 估算单价。
const DefaultCostPer1KTokens = 0.002

// Pricing 描述各模型每千 token 的估算单价，通常由 YAML 价目表加载。
type Pricing struct {
	Default float64            `yaml:"default"`
	Models  map[string]float64 `yaml:"models"`
}

// LoadPricing 解析指定路径的 YAML 价目表。
func LoadPricing(path string) (*Pricing, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("价目表路径为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取价目表失败: %w", err)
	}
	return ParsePricing(content)
}

// ParsePricing 从 YAML 内容解析价目表，负数单价视为配置错误。
func ParsePricing(content []byte) (*Pricing, error) {
	var pricing Pricing
	if err := yaml.Unmarshal(content, &pricing); err != nil {
		return nil, fmt.Errorf("解析价目表失败: %w", err)
	}
	if pricing.Default < 0 {
		return nil, fmt.Errorf("默认单价不能为负: %v", pricing.Default)
	}
	for model, rate := range pricing.Models {
		if rate < 0 {
			return nil, fmt.Errorf("模型 %s 的单价不能为负: %v", model, rate)
		}
	}
	return &pricing, nil
}

// CostPer1K 返回指定模型的每千 token 单价，未配置时依次回退到
// 价目表默认值与 DefaultCostPer1KTokens。
func (p *Pricing) CostPer1K(model string) float64 {
	if p == nil {
		return DefaultCostPer1KTokens
	}
	if rate, ok := p.Models[strings.TrimSpace(model)]; ok {
		return rate
	}
	if p.Default > 0 {
		return p.Default
	}
	return DefaultCostPer1KTokens
}
