// Package parser は生成 AI の応答テキストから JSON を取り出してデコードします。
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*\\S)\\s*```")

// ExtractJSON は応答から JSON 部分を取り出すのだ。
// コードブロック、最も外側の括弧、応答全体の順に試します。
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if matches := jsonBlockRegex.FindStringSubmatch(raw); len(matches) > 1 {
		return matches[1]
	}

	if s, ok := outermost(raw); ok {
		return s
	}
	return raw
}

// outermost は最初に現れた開き括弧に対応する種類の、最も外側の範囲を返します。
func outermost(raw string) (string, bool) {
	first := strings.IndexAny(raw, "{[")
	if first == -1 {
		return "", false
	}
	closer := "}"
	if raw[first] == '[' {
		closer = "]"
	}
	last := strings.LastIndex(raw, closer)
	if last <= first {
		return "", false
	}
	return raw[first : last+1], true
}

// Decode は応答テキストから JSON を取り出して v にデコードします。
func Decode(raw string, v any) error {
	rawJSON := ExtractJSON(raw)
	if err := json.Unmarshal([]byte(rawJSON), v); err != nil {
		return fmt.Errorf("AIからの応答に含まれるJSONの解析に失敗しました (応答抜粋: %q): %w", Truncate(raw, 200), err)
	}
	return nil
}

// Truncate は長い文字列をログ向けに切り詰めるのだ。
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
