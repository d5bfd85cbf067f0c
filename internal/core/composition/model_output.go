package composition

import (
	"encoding/json"
	"regexp"
	"strings"

	"composition-resolver/internal/pkg/common"
)

var leadingNumberRe = regexp.MustCompile(`-?(?:\d{1,3}(?:[.,]\d{3})+|\d+(?:[.,]\d+)?)`)

// flexNumber 接受數字、數字字串（如 "500 g"）或 null
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	*f = 0
	var v float64
	if err := json.Unmarshal(b, &v); err == nil {
		*f = flexNumber(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	if m := leadingNumberRe.FindString(s); m != "" {
		if v, err := common.ParseNumber(m); err == nil {
			*f = flexNumber(v)
		}
	}
	return nil
}

// flexBool 接受布林、"true"/"yes" 字串或數字
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	*f = false
	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		*f = flexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "y", "1", "organic", "bio":
			*f = true
		}
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = n != 0
	}
	return nil
}

// modelItem 模型輸出的物品，欄位皆為寬鬆格式
type modelItem struct {
	Category string        `json:"category"`
	Name     string        `json:"name"`
	Bio      flexBool      `json:"bio"`
	Quantity flexNumber    `json:"quantity"`
	Process  *modelProcess `json:"process"`
	Item     *modelItem    `json:"item"`
}

type modelProcess struct {
	Type           string       `json:"type"`
	InputInstances []modelInput `json:"inputInstances"`
	Inputs         []modelInput `json:"inputs"`
}

// modelInput 支援 {instance, quantity} 與扁平的 {name, quantity}
type modelInput struct {
	Instance *modelItem `json:"instance"`
	Quantity flexNumber `json:"quantity"`
	Name     string     `json:"name"`
	Category string     `json:"category"`
}

// modelExtract /extract 的模型輸出
type modelExtract struct {
	Summary  string        `json:"summary"`
	Instance *modelItem    `json:"instance"`
	Process  *modelProcess `json:"process"`
}

// unwrap 處理模型把物品包在 "item" 之下的情況
func (m *modelItem) unwrap() *modelItem {
	if m != nil && m.Name == "" && m.Process == nil && m.Item != nil {
		return m.Item
	}
	return m
}

// toItem 轉為領域物品，缺少的分類沿用 defaultCategory
func (m *modelItem) toItem(defaultCategory string) common.Item {
	if m == nil {
		return common.Item{Category: defaultCategory}
	}
	m = m.unwrap()
	item := common.Item{
		Category: strings.TrimSpace(m.Category),
		Name:     strings.TrimSpace(m.Name),
		Bio:      bool(m.Bio),
		Quantity: float64(m.Quantity),
	}
	if item.Category == "" {
		item.Category = defaultCategory
	}
	if item.Quantity < 0 {
		item.Quantity = 0
	}
	if m.Process != nil {
		item.Process = m.Process.toProcess(item.Category)
	}
	return item
}

func (p *modelProcess) toProcess(defaultCategory string) *common.Process {
	raw := p.InputInstances
	if len(raw) == 0 {
		raw = p.Inputs
	}
	proc := &common.Process{
		Type:           strings.TrimSpace(p.Type),
		InputInstances: make([]common.Input, 0, len(raw)),
	}
	for _, in := range raw {
		var child common.Item
		if in.Instance != nil {
			child = in.Instance.toItem(defaultCategory)
		} else {
			child = common.Item{Category: strings.TrimSpace(in.Category), Name: strings.TrimSpace(in.Name)}
			if child.Category == "" {
				child.Category = defaultCategory
			}
		}
		if child.Name == "" {
			continue
		}
		qty := float64(in.Quantity)
		if qty < 0 {
			qty = 0
		}
		proc.InputInstances = append(proc.InputInstances, common.Input{Instance: child, Quantity: qty})
	}
	return proc
}
