package composition

import (
	"math"
	"regexp"
	"strings"

	"composition-resolver/internal/pkg/common"
)

// ReconcileInput 推算總量與分配所需的上下文
type ReconcileInput struct {
	// Declared 外部宣告的總量，> 0 時優先
	Declared    float64
	Query       string
	Context     string
	Identifiers []string
	Extracted   []common.ExtractedIngredient
}

// 總量單位，依序嘗試
const numberPattern = `(\d{1,3}(?:[.,]\d{3})+|\d+(?:[.,]\d+)?)`

var totalPatterns = []struct {
	re     *regexp.Regexp
	factor float64
}{
	{regexp.MustCompile(`(?i)` + numberPattern + `\s*(?:l|liters?|litres?)\b`), 1000},
	{regexp.MustCompile(`(?i)` + numberPattern + `\s*ml\b`), 1},
	{regexp.MustCompile(`(?i)` + numberPattern + `\s*kg\b`), 1000},
	{regexp.MustCompile(`(?i)` + numberPattern + `\s*(?:g|gr|grams?)\b`), 1},
}

var oneLiterRe = regexp.MustCompile(`(?i)\b(?:one|a|per|un|une|ein)\s+(?:liter|litre)\b`)

var (
	waterKeywords  = []string{"water", "eau", "wasser", "agua", "acqua", "aqua"}
	liquidKeywords = []string{
		"water", "juice", "drink", "beverage", "soda", "milk", "syrup", "sauce", "soup",
		"liquid", "cleaner", "detergent", "shampoo", "soap", "lotion", "vinegar", "oil",
		"tea", "coffee", "beer", "wine", "lemonade", "boisson", "jus", "getränk",
	}
)

// quantityEpsilon 視為相等的誤差
const quantityEpsilon = 0.005

// Reconciler 推算總量並讓投入量與總量一致
type Reconciler struct{}

// NewReconciler 建立 Reconciler
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Reconcile 就地調整物品與其投入的數量，對已調整過的樹重複執行不會改變結果
func (r *Reconciler) Reconcile(item *common.Item, in ReconcileInput) {
	if item == nil {
		return
	}
	if item.Quantity < 0 {
		item.Quantity = 0
	}

	total := InferTotal(item.Quantity, in)
	if total > 0 {
		item.Quantity = total
	}

	if item.Process == nil || len(item.Process.InputInstances) == 0 {
		return
	}
	inputs := item.Process.InputInstances
	for i := range inputs {
		if inputs[i].Quantity < 0 || math.IsNaN(inputs[i].Quantity) {
			inputs[i].Quantity = 0
		}
	}

	if total > 0 {
		percents := extractedPercents(in.Extracted)
		r.convertPercentages(inputs, total, percents)
		r.distributeResidual(inputs, total, percents)
		item.Process.InputInstances = r.backfillLiquid(item, inputs, total)
		inputs = item.Process.InputInstances
	}

	for i := range inputs {
		child := &inputs[i].Instance
		if child.Quantity < 0 {
			child.Quantity = 0
		}
		if child.Process == nil || len(child.Process.InputInstances) == 0 {
			if child.Quantity == 0 {
				child.Quantity = inputs[i].Quantity
			}
			continue
		}
		r.Reconcile(child, ReconcileInput{
			Declared:    inputs[i].Quantity,
			Identifiers: []string{child.Name},
		})
	}
}

// InferTotal 推算總量：宣告值、文字中的容量或重量、「一公升」字樣、既有數量，皆無則為 0
func InferTotal(current float64, in ReconcileInput) float64 {
	if in.Declared > 0 {
		return in.Declared
	}

	sources := make([]string, 0, 2+len(in.Identifiers))
	sources = append(sources, in.Query, in.Context)
	sources = append(sources, in.Identifiers...)

	for _, src := range sources {
		if src == "" {
			continue
		}
		for _, p := range totalPatterns {
			if m := p.re.FindStringSubmatch(src); m != nil {
				v, err := common.ParseNumber(m[1])
				if err == nil && v > 0 {
					return v * p.factor
				}
			}
		}
	}
	for _, src := range sources {
		if oneLiterRe.MatchString(src) {
			return 1000
		}
	}
	if current > 0 {
		return current
	}
	return 0
}

// LooksLikePercentages 非空、每個值介於 0 到 100 且總和不超過 110 時視為百分比。
// 小份量的絕對克數也可能符合，屬已知誤判。
func LooksLikePercentages(quantities []float64) bool {
	if len(quantities) == 0 {
		return false
	}
	sum := 0.0
	for _, q := range quantities {
		if q < 0 || q > 100 {
			return false
		}
		sum += q
	}
	return sum <= 110
}

// convertPercentages 百分比轉為絕對量
func (r *Reconciler) convertPercentages(inputs []common.Input, total float64, percents map[string]float64) {
	quantities := make([]float64, len(inputs))
	sum := 0.0
	for i, in := range inputs {
		quantities[i] = in.Quantity
		sum += in.Quantity
	}
	if sum <= 0 || math.Abs(sum-total) <= 0.5 || !LooksLikePercentages(quantities) {
		return
	}

	converted := 0.0
	pending := false
	for i := range inputs {
		if inputs[i].Quantity == 0 {
			if p, ok := percents[normalizeLabel(inputs[i].Instance.Name)]; ok && p > 0 {
				inputs[i].Quantity = math.Round(total * p / 100)
				converted += inputs[i].Quantity
				continue
			}
			pending = true
			continue
		}
		inputs[i].Quantity = math.Round(total * inputs[i].Quantity / 100)
		converted += inputs[i].Quantity
	}

	if pending {
		return
	}
	if w := waterIndex(inputs); w >= 0 {
		delta := total - converted
		if inputs[w].Quantity+delta >= 0 {
			inputs[w].Quantity += delta
		}
	}
}

// distributeResidual 為數量為 0 的投入補上數量：有百分比者依比例，其餘平分剩餘量
func (r *Reconciler) distributeResidual(inputs []common.Input, total float64, percents map[string]float64) {
	for i := range inputs {
		if inputs[i].Quantity != 0 {
			continue
		}
		if p, ok := percents[normalizeLabel(inputs[i].Instance.Name)]; ok && p > 0 {
			inputs[i].Quantity = math.Round(total * p / 100)
		}
	}

	var zero []int
	allocated := 0.0
	for i := range inputs {
		if inputs[i].Quantity == 0 {
			zero = append(zero, i)
		}
		allocated += inputs[i].Quantity
	}
	remaining := total - allocated
	if len(zero) == 0 || remaining <= quantityEpsilon {
		return
	}

	share := math.Floor(remaining/float64(len(zero))*100) / 100
	for n, i := range zero {
		if n == len(zero)-1 {
			inputs[i].Quantity = round2(remaining - share*float64(len(zero)-1))
			continue
		}
		inputs[i].Quantity = share
	}
}

// backfillLiquid 液體類物品的不足量補給水，沒有水則新增一項
func (r *Reconciler) backfillLiquid(item *common.Item, inputs []common.Input, total float64) []common.Input {
	sum := 0.0
	for _, in := range inputs {
		sum += in.Quantity
	}
	shortfall := total - sum
	if shortfall <= quantityEpsilon || !isLiquid(item.Name+" "+item.Category) {
		return inputs
	}
	shortfall = round2(shortfall)

	if w := waterIndex(inputs); w >= 0 {
		inputs[w].Quantity = round2(inputs[w].Quantity + shortfall)
		if inputs[w].Instance.Process == nil {
			inputs[w].Instance.Quantity = inputs[w].Quantity
		}
		return inputs
	}
	return append(inputs, common.Input{
		Instance: common.Item{
			Category: item.Category,
			Name:     "Water",
			Quantity: shortfall,
		},
		Quantity: shortfall,
	})
}

// extractedPercents 以正規化名稱索引擷取到的百分比
func extractedPercents(extracted []common.ExtractedIngredient) map[string]float64 {
	out := make(map[string]float64, len(extracted))
	for _, ing := range extracted {
		if ing.Percent == nil {
			continue
		}
		key := normalizeLabel(ing.Name)
		if _, exists := out[key]; !exists {
			out[key] = *ing.Percent
		}
	}
	return out
}

func waterIndex(inputs []common.Input) int {
	for i, in := range inputs {
		if hasKeyword(in.Instance.Name, waterKeywords) {
			return i
		}
	}
	return -1
}

func isLiquid(text string) bool {
	return hasKeyword(text, liquidKeywords)
}

// hasKeyword 任一詞以關鍵字開頭
func hasKeyword(text string, keywords []string) bool {
	for _, tok := range strings.Fields(normalizeLabel(text)) {
		for _, k := range keywords {
			if strings.HasPrefix(tok, k) {
				return true
			}
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
