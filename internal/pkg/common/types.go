package common

import (
	"fmt"
	"strings"
)

// Item 生產紀錄中的物品
// quantity 單位為公克或毫升
type Item struct {
	Category string   `json:"category"`
	Name     string   `json:"name"`
	Bio      bool     `json:"bio"`
	Quantity float64  `json:"quantity"`
	Process  *Process `json:"process,omitempty"`
}

// Process 製程步驟
type Process struct {
	Type           string  `json:"type"`
	InputInstances []Input `json:"inputInstances"`
}

// Input 製程投入，Instance 由此 Input 獨佔
type Input struct {
	Instance Item    `json:"instance"`
	Quantity float64 `json:"quantity"`
}

// ExtractedIngredient 從文字中擷取的成分（暫存，不持久化）
type ExtractedIngredient struct {
	Name    string   `json:"name"`
	Percent *float64 `json:"percent,omitempty"`
}

// Candidate 型錄搜尋結果（僅作為擷取上下文）
type Candidate struct {
	Source      string `json:"source"`
	Name        string `json:"name"`
	Ingredients string `json:"ingredients,omitempty"`
	ID          string `json:"id"`
}

// Identifier 外部識別碼，registry 為 url/web page 時視為網頁定位
type Identifier struct {
	ID       string `json:"id"`
	Registry string `json:"registry"`
}

// Attachment /extract 的附件
type Attachment struct {
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Inputs 回傳物品的投入清單，沒有 process 時為 nil
func (i *Item) Inputs() []Input {
	if i == nil || i.Process == nil {
		return nil
	}
	return i.Process.InputInstances
}

// Float64Ptr 回傳指標
func Float64Ptr(v float64) *float64 {
	return &v
}

// FormatCandidates 格式化候選清單給 prompt 使用
func FormatCandidates(candidates []Candidate) string {
	var sb strings.Builder
	for _, c := range candidates {
		sb.WriteString(fmt.Sprintf("- [%s] %s (id: %s)", c.Source, c.Name, c.ID))
		if c.Ingredients != "" {
			sb.WriteString(fmt.Sprintf(": %s", c.Ingredients))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatIngredients 格式化擷取出的成分
func FormatIngredients(ingredients []ExtractedIngredient) string {
	parts := make([]string, 0, len(ingredients))
	for _, ing := range ingredients {
		if ing.Percent != nil {
			parts = append(parts, fmt.Sprintf("%s %g%%", ing.Name, *ing.Percent))
			continue
		}
		parts = append(parts, ing.Name)
	}
	return strings.Join(parts, ", ")
}

// FormatIdentifiers 將識別碼轉成 "registry:id" 字串
func FormatIdentifiers(ids []Identifier) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id.ID) == "" {
			continue
		}
		if id.Registry == "" {
			out = append(out, id.ID)
			continue
		}
		out = append(out, fmt.Sprintf("%s:%s", id.Registry, id.ID))
	}
	return out
}
