package composition

import (
	"regexp"
	"strings"
	"unicode"

	"composition-resolver/internal/pkg/common"
)

// DefaultProcessType 製程列舉為空時使用
const DefaultProcessType = "blending"

// boostScore 命中領域關鍵字時的加分
const boostScore = 0.5

// Registry 有版本的製程類型列舉，建立後唯讀
type Registry struct {
	Version string
	Types   []string
}

// DefaultRegistry 內建製程列舉
func DefaultRegistry() *Registry {
	return NewRegistry("2024-1", []string{
		"blending",
		"cooking",
		"milling",
		"freeze-drying",
		"fermentation",
		"packaging",
		"printing",
		"assembly",
		"transport",
		"other",
	})
}

// NewRegistry 建立列舉，去除空白與重複項
func NewRegistry(version string, types []string) *Registry {
	r := &Registry{Version: version}
	seen := make(map[string]bool, len(types))
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		r.Types = append(r.Types, t)
	}
	return r
}

// Contains 是否為列舉成員
func (r *Registry) Contains(t string) bool {
	for _, v := range r.Types {
		if v == t {
			return true
		}
	}
	return false
}

// Enum 列舉副本，供 prompt 使用
func (r *Registry) Enum() []string {
	out := make([]string, len(r.Types))
	copy(out, r.Types)
	return out
}

type boost struct {
	category string
	pattern  *regexp.Regexp
}

var boosts = []boost{
	{"blending", regexp.MustCompile(`mix|blend|beverage|drink|juice|smoothie|soda`)},
	{"milling", regexp.MustCompile(`grind|mill|powder|flour|crush`)},
	{"freeze-drying", regexp.MustCompile(`dry|dried|dehydrat|freez|lyophil`)},
	{"printing", regexp.MustCompile(`print|\bink|label`)},
	{"cooking", regexp.MustCompile(`bak|cook|roast|fry|fried|boil`)},
	{"fermentation", regexp.MustCompile(`ferment|brew|yeast`)},
	{"packaging", regexp.MustCompile(`pack|bottl|\bcan(s|ned|ning)?\b|wrap`)},
	{"assembly", regexp.MustCompile(`assembl|sew|weld|mould|mold`)},
}

// Classifier 將自由文字標籤對應到列舉成員
type Classifier struct {
	registry   *Registry
	normalized []string
	tokens     []map[string]struct{}
}

// NewClassifier 建立分類器，registry 為 nil 時使用內建列舉
func NewClassifier(registry *Registry) *Classifier {
	if registry == nil {
		registry = DefaultRegistry()
	}
	c := &Classifier{registry: registry}
	for _, t := range registry.Types {
		norm := normalizeLabel(t)
		c.normalized = append(c.normalized, norm)
		c.tokens = append(c.tokens, tokenSet(norm))
	}
	return c
}

// Registry 目前使用的列舉
func (c *Classifier) Registry() *Registry {
	return c.registry
}

// Classify 回傳最接近的製程類型，必為列舉成員（列舉為空時回傳 DefaultProcessType）
func (c *Classifier) Classify(label string) string {
	r := c.registry
	if len(r.Types) == 0 {
		return DefaultProcessType
	}
	if r.Contains(label) {
		return label
	}

	norm := normalizeLabel(label)
	for i, n := range c.normalized {
		if n == norm && n != "" {
			return r.Types[i]
		}
	}

	labelTokens := tokenSet(norm)
	lower := strings.ToLower(label)

	best, bestScore := 0, -1.0
	for i, t := range r.Types {
		score := jaccard(labelTokens, c.tokens[i])
		for _, b := range boosts {
			if b.category == t && b.pattern.MatchString(lower) {
				score += boostScore
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return r.Types[best]
}

// ClassifyTree 遞迴修正整棵樹的製程類型。
// 頂層標籤為空時依序改用 hint 與物品名稱。
func (c *Classifier) ClassifyTree(item *common.Item, hint string) {
	if item == nil {
		return
	}
	if item.Process != nil {
		label := item.Process.Type
		if strings.TrimSpace(label) == "" {
			label = hint
		}
		if strings.TrimSpace(label) == "" {
			label = item.Name
		}
		item.Process.Type = c.Classify(label)

		for i := range item.Process.InputInstances {
			c.ClassifyTree(&item.Process.InputInstances[i].Instance, "")
		}
	}
}

// normalizeLabel 小寫並將非字母數字轉為空白
func normalizeLabel(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

func tokenSet(norm string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(norm) {
		set[tok] = struct{}{}
	}
	return set
}

// jaccard |A∩B| / max(|A∪B|, 1)
func jaccard(a, b map[string]struct{}) float64 {
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union < 1 {
		union = 1
	}
	return float64(inter) / float64(union)
}
