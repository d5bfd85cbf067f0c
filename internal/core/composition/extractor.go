package composition

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"composition-resolver/internal/pkg/common"
)

// extractWindowChars 關鍵字之後擷取的字元數
const extractWindowChars = 600

var (
	ingredientKeywordRe = regexp.MustCompile(`(?i)\b(ingredient list|ingredients|ingrédients|ingredientes|ingredienti|zutaten|ingrediënten|composition|composición|composição|composizione|zusammensetzung|samenstelling|inci)\b`)
	leadingSeparatorRe  = regexp.MustCompile(`^[\s:\-–]+`)
	htmlTagRe           = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)
	sentenceBreakRe     = regexp.MustCompile(`([\p{L}\d]+)\.\s+\p{Lu}[\p{L}]`)
	decimalCommaRe      = regexp.MustCompile(`(\d),(\d)`)
	percentRe           = regexp.MustCompile(`(<\s*)?(\d+(?:\.\d+)?)\s*%`)
)

const bulletChars = "-•*·–— \t"

// 成分清單中常見、後面接句點但不代表句子結束的縮寫
var listAbbreviations = map[string]bool{
	"vit": true, "conc": true, "approx": true, "ca": true, "incl": true, "min": true, "max": true,
	"e": true, "g": true, "mg": true, "kg": true, "ml": true, "cl": true, "fl": true,
	"oz": true, "no": true, "nr": true, "sp": true, "spp": true, "var": true, "ssp": true, "subsp": true,
	"dr": true, "st": true, "etc": true,
}

// sentenceEnd 回傳清單結束的位置：句點接大寫單字且句點前不是縮寫的地方
func sentenceEnd(window string) int {
	for _, m := range sentenceBreakRe.FindAllStringSubmatchIndex(window, -1) {
		word := strings.ToLower(window[m[2]:m[3]])
		if listAbbreviations[word] {
			continue
		}
		// 句點位置
		return m[3]
	}
	return len(window)
}

// ExtractIngredients 從文字中找出最後一段成分清單，依出現順序回傳。
// 找不到關鍵字時回傳空清單。
func ExtractIngredients(text string) []common.ExtractedIngredient {
	matches := ingredientKeywordRe.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	last := matches[len(matches)-1]

	window := common.Truncate(text[last[1]:], extractWindowChars)
	window = htmlTagRe.ReplaceAllString(window, " ")
	window = common.CollapseWhitespace(window)
	window = leadingSeparatorRe.ReplaceAllString(window, "")
	window = window[:sentenceEnd(window)]
	window = decimalCommaRe.ReplaceAllString(window, "$1.$2")

	fragments := strings.FieldsFunc(window, func(r rune) bool {
		return r == ',' || r == ';' || r == '(' || r == ')'
	})

	out := make([]common.ExtractedIngredient, 0, len(fragments))
	for _, fragment := range fragments {
		name, percent := parseFragment(fragment)
		if !hasLetter(name) {
			// "sugar (12%)" 的括號內只有百分比，歸給前一項
			if percent != nil && len(out) > 0 && out[len(out)-1].Percent == nil {
				out[len(out)-1].Percent = percent
			}
			continue
		}
		out = append(out, common.ExtractedIngredient{Name: name, Percent: percent})
	}
	return out
}

// parseFragment 解析單一片段的名稱與百分比
func parseFragment(fragment string) (string, *float64) {
	fragment = strings.Trim(fragment, bulletChars)

	var percent *float64
	if m := percentRe.FindStringSubmatchIndex(fragment); m != nil {
		if v, err := strconv.ParseFloat(fragment[m[4]:m[5]], 64); err == nil {
			percent = common.Float64Ptr(v)
		}
		fragment = fragment[:m[0]] + " " + fragment[m[1]:]
	}

	name := common.CollapseWhitespace(fragment)
	name = strings.TrimFunc(name, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || strings.ContainsRune(bulletChars, r)
	})
	return name, percent
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
