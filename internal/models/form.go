package models

// FieldType - распознанный тип поля формы логина
type FieldType string

// Типы полей, которые умеет распознавать FormDetector
const (
	FieldTypeText     FieldType = "text"
	FieldTypePassword FieldType = "password"
	FieldTypeEmail    FieldType = "email"
	FieldTypeSelect   FieldType = "select"
	FieldTypeTel      FieldType = "tel"
	FieldTypeNumber   FieldType = "number"
	FieldTypeTextarea FieldType = "textarea"
)

// LoginField - одно распознанное поле формы логина.
//
// Инвариант: Selector должен уникально указывать ровно на один интерактивный
// элемент страницы на момент детекции. Гарантий между сессиями нет -
// страницы меняются.
type LoginField struct {
	Name        string    `json:"name"`
	Selector    string    `json:"selector"`
	Type        FieldType `json:"type"`
	Label       string    `json:"label"`
	Required    bool      `json:"required"`
	Placeholder string    `json:"placeholder"`
}

// DetectedForm - результат анализа страницы логина.
// Эфемерная структура: создается на каждый вызов анализа, не персистится.
type DetectedForm struct {
	LoginFields     []LoginField `json:"login_fields"`
	SubmitButton    string       `json:"submit_button"`
	TwoFADetected   bool         `json:"two_fa_detected"`
	CaptchaDetected bool         `json:"captcha_detected"`
}

// FieldByType возвращает первое поле указанного типа или nil
func (f *DetectedForm) FieldByType(t FieldType) *LoginField {
	for i := range f.LoginFields {
		if f.LoginFields[i].Type == t {
			return &f.LoginFields[i]
		}
	}
	return nil
}
