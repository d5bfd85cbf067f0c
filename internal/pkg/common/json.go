package common

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strings"
)

// ParseJSON 解析 JSON 字符串到結構體
func ParseJSON(data string, v interface{}) error {
	return DecodeJSON(strings.NewReader(data), v)
}

// DecodeJSON 使用統一設定解析 JSON，後面不得有多餘資料
func DecodeJSON(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return err
	}

	// 確保沒有多餘資料
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected extra JSON data")
	}
	return nil
}

var (
	unquotedKeyPattern = regexp.MustCompile(`([{\[,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	trailingCommaRe    = regexp.MustCompile(`,\s*([}\]])`)
	codeFenceRe        = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
)

// QuoteJSONKeys 將未加雙引號的鍵補上雙引號
func QuoteJSONKeys(raw string) string {
	return unquotedKeyPattern.ReplaceAllString(raw, `$1"$2":`)
}

// NoParseError 表示模型輸出中找不到可解析的 JSON 物件
type NoParseError struct {
	Reason string
	Err    error
}

func (e *NoParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no JSON object: %s: %v", e.Reason, e.Err)
	}
	return "no JSON object: " + e.Reason
}

func (e *NoParseError) Unwrap() error {
	return e.Err
}

// IsNoParse 判斷是否為 NoParseError
func IsNoParse(err error) bool {
	_, ok := err.(*NoParseError)
	return ok
}

// ExtractJSON 從任意模型文字中找出第一個 JSON 物件並解析到 v。
// 失敗時只回傳 *NoParseError，不會 panic。
func ExtractJSON(raw string, v interface{}) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return &NoParseError{Reason: "empty input"}
	}

	candidates := make([]string, 0, 4)
	// 先處理 ```json ... ``` 包裹
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		if obj := firstObject(m[1]); obj != "" {
			candidates = append(candidates, obj)
		}
	}
	if obj := firstObject(text); obj != "" {
		candidates = append(candidates, obj)
	}
	// 再保險：擷取第一個 { 到最後一個 }
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start != -1 && end > start {
		candidates = append(candidates, text[start:end+1])
	}
	if len(candidates) == 0 {
		return &NoParseError{Reason: "no object delimiters"}
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return &NoParseError{Reason: "target must be a non-nil pointer"}
	}

	// 每次嘗試解析到新的值，成功才寫回，避免失敗的候選殘留欄位
	parse := func(c string) error {
		fresh := reflect.New(rv.Elem().Type())
		if err := ParseJSON(c, fresh.Interface()); err != nil {
			return err
		}
		rv.Elem().Set(fresh.Elem())
		return nil
	}

	var lastErr error
	for _, c := range candidates {
		err := parse(c)
		if err == nil {
			return nil
		}
		lastErr = err
		repaired := trailingCommaRe.ReplaceAllString(QuoteJSONKeys(c), "$1")
		if repaired != c {
			if err := parse(repaired); err == nil {
				return nil
			}
		}
	}
	return &NoParseError{Reason: "invalid JSON", Err: lastErr}
}

// firstObject 回傳第一個括號平衡的 {...} 區塊，會略過字串內的括號
func firstObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
