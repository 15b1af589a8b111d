// Package textutil очищает пользовательский текст перед сохранением.
package textutil

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var plainTextPolicy = bluemonday.StrictPolicy()

// Sanitize удаляет HTML-разметку и обрезает пробелы по краям.
// Policy потокобезопасна после настройки.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(plainTextPolicy.Sanitize(s))
}

// SanitizePtr применяет Sanitize к необязательному полю.
func SanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	out := Sanitize(*s)
	return &out
}
