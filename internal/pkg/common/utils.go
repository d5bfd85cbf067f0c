package common

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// GenerateUUID 生成 UUID
func GenerateUUID() string {
	return uuid.New().String()
}

// CollapseWhitespace 將連續空白合併為單一空格
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Truncate 以字元數截斷字串，不切斷 UTF-8 字元
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

var groupedNumberRe = regexp.MustCompile(`^\d{1,3}([.,]\d{3})+$`)

// ParseNumber 解析帶有千分位或小數逗號的數字字串。
// "1,000" 與 "1.000" 視為一千，"0,75" 視為 0.75；同時出現兩種符號時，最後一個是小數點。
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	sign := 1.0
	if strings.HasPrefix(s, "-") {
		sign, s = -1, s[1:]
	}
	lastComma, lastDot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case groupedNumberRe.MatchString(s) && !strings.HasPrefix(s, "0"):
		s = strings.NewReplacer(",", "", ".", "").Replace(s)
	default:
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	return sign * v, err
}
