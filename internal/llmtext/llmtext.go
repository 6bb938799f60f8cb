// Package llmtext содержит общие функции обработки текстовых ответов генеративной модели
package llmtext

import (
	"strings"
	"unicode/utf8"
)

// StripFences снимает markdown-ограждение ```json ... ``` вокруг ответа
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Truncate обрезает строку до n байт, не разрывая UTF-8 символ
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
