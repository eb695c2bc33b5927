package automation

import (
	"strings"

	"tradebridge/internal/models"
)

// ============================================================
// Классификация полей формы логина
// ============================================================
//
// Платформы не дают API для входа, поэтому тип поля выводится
// эвристически из атрибутов DOM. Порядок проверок значим:
// password выигрывает у email, email у username и так далее.
// Функция чистая - один вход, один детерминированный выход.

// Метки полей, отдаваемые в UI вместе с типом
const (
	LabelPassword = "Password"
	LabelEmail    = "Email"
	LabelUsername = "Username"
	LabelServer   = "Server/Broker"
	LabelPhone    = "Phone"
	LabelCountry  = "Country/Region"
	LabelCode     = "Code/Number"
	LabelTextArea = "Text Area"
)

var (
	emailKeywords   = []string{"email", "mail"}
	userKeywords    = []string{"user", "login", "account"}
	serverKeywords  = []string{"server", "broker", "environment", "platform"}
	phoneKeywords   = []string{"phone", "mobile", "tel"}
	countryKeywords = []string{"country", "region", "location"}
	numberKeywords  = []string{"code", "pin", "number"}
)

// ClassifyField определяет тип и метку поля по его DOM-атрибутам.
// tag и inputType ожидаются в нижнем регистре. Возвращает ok=false
// для полей, которые не относятся к форме логина (decorative selects,
// скрытые служебные input).
func ClassifyField(tag, inputType, name, id, placeholder string) (models.FieldType, string, bool) {
	haystack := strings.ToLower(name + id + placeholder)

	switch {
	case inputType == "password":
		return models.FieldTypePassword, LabelPassword, true

	case inputType == "email" || containsAny(haystack, emailKeywords):
		return models.FieldTypeEmail, LabelEmail, true

	case containsAny(haystack, userKeywords):
		return models.FieldTypeText, LabelUsername, true

	case tag == "select" && containsAny(haystack, serverKeywords):
		return models.FieldTypeSelect, LabelServer, true

	case inputType == "tel" || containsAny(haystack, phoneKeywords):
		return models.FieldTypeTel, LabelPhone, true

	case tag == "select" && containsAny(haystack, countryKeywords):
		return models.FieldTypeSelect, LabelCountry, true

	case inputType == "number" || containsAny(haystack, numberKeywords):
		return models.FieldTypeNumber, LabelCode, true

	case tag == "textarea":
		return models.FieldTypeTextarea, LabelTextArea, true

	case tag == "input" && inputType == "text":
		label := "Text Field"
		if placeholder != "" {
			label = titleCase(placeholder)
		} else if name != "" {
			label = titleCase(name)
		}
		return models.FieldTypeText, label, true
	}

	return "", "", false
}

func containsAny(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// titleCase капитализирует каждое слово; strings.Title deprecated,
// а тянуть x/text/cases ради меток UI незачем
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
