package utils

import (
	"strings"
	"unicode"
)

// Slug приводит имя платформы к безопасному идентификатору:
// нижний регистр, пробелы и разделители заменяются на "-",
// все прочие символы кроме букв и цифр отбрасываются.
//
// Используется при генерации platform_id: slug(name)_timestamp.
func Slug(name string) string {
	var b strings.Builder
	lastDash := true // подавляем ведущие дефисы

	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case r == ' ' || r == '-' || r == '_' || r == '.':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}
