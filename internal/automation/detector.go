package automation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tradebridge/internal/browser"
	"tradebridge/internal/models"
)

// ============================================================
// Детектор формы логина
// ============================================================

// Селекторы кнопки отправки формы, в порядке убывания надежности
var submitSelectors = []string{
	`button[type="submit"]`, `input[type="submit"]`,
	`button:contains("login")`, `button:contains("sign in")`,
	`.login-button`, `#login-button`, `.submit-button`,
}

// Признаки наличия 2FA на странице логина
var twoFAIndicators = []string{
	`input[name*="2fa"]`, `input[name*="totp"]`, `input[name*="code"]`,
	`.two-factor`, `.2fa`, `.authentication`,
}

// Признаки CAPTCHA
var captchaIndicators = []string{
	`.captcha`, `.recaptcha`, `iframe[src*="recaptcha"]`,
	`input[name*="captcha"]`,
}

// Типы input, не являющиеся полями ввода
var skippedInputTypes = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"reset":  true,
}

// AnalyzeLoginPage загружает страницу и распознает форму логина
func (a *Automator) AnalyzeLoginPage(ctx context.Context, page browser.Page, url string) (*models.DetectedForm, error) {
	if err := page.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("navigate to login page: %w", err)
	}
	if err := page.WaitReady(ctx, a.navTimeout); err != nil {
		return nil, fmt.Errorf("login page not ready: %w", err)
	}
	return a.DetectLoginForm(ctx, page)
}

// DetectLoginForm распознает поля логина, кнопку отправки,
// признаки 2FA и CAPTCHA на уже загруженной странице
func (a *Automator) DetectLoginForm(ctx context.Context, page browser.Page) (*models.DetectedForm, error) {
	elements, err := page.QueryAll(ctx, "input, select, textarea")
	if err != nil {
		return nil, fmt.Errorf("query form elements: %w", err)
	}

	var fields []models.LoginField
	for i := range elements {
		el := &elements[i]
		if !el.Visible {
			continue
		}

		inputType := el.Attr("type")
		if inputType == "" {
			inputType = "text"
		}
		if skippedInputTypes[inputType] {
			continue
		}

		name := el.Attr("name")
		id := el.Attr("id")
		placeholder := el.Attr("placeholder")

		fieldType, label, ok := ClassifyField(el.Tag, inputType, name, id, placeholder)
		if !ok {
			continue
		}

		selector := buildFieldSelector(el.Tag, inputType, name, id)

		// Для select с серверами подставляем варианты в placeholder,
		// чтобы UI мог их показать
		if fieldType == models.FieldTypeSelect && label == LabelServer {
			if opts := a.describeOptions(ctx, page, selector); opts != "" {
				placeholder = opts
			}
		}

		fieldName := name
		if fieldName == "" {
			fieldName = id
		}
		if fieldName == "" {
			fieldName = string(fieldType)
		}
		if placeholder == "" {
			placeholder = "Enter " + strings.ToLower(label)
		}

		fields = append(fields, models.LoginField{
			Name:        fieldName,
			Selector:    selector,
			Type:        fieldType,
			Label:       label,
			Required:    true,
			Placeholder: placeholder,
		})
	}

	submitButton := ""
	for _, selector := range submitSelectors {
		found, err := page.QueryAll(ctx, selector)
		if err == nil && len(found) > 0 {
			submitButton = selector
			break
		}
	}

	form := &models.DetectedForm{
		LoginFields:     fields,
		SubmitButton:    submitButton,
		TwoFADetected:   anyPresent(ctx, page, twoFAIndicators),
		CaptchaDetected: anyPresent(ctx, page, captchaIndicators),
	}

	a.log.Info("login form detected",
		zap.Int("fields", len(fields)),
		zap.Bool("two_fa", form.TwoFADetected),
		zap.Bool("captcha", form.CaptchaDetected))

	return form, nil
}

// FallbackForm возвращает универсальную форму логина для случая,
// когда страницу не удалось проанализировать. Платформам семейства
// MetaTrader/TradeLocker добавляется поле выбора сервера.
func FallbackForm(platformName string) *models.DetectedForm {
	fields := []models.LoginField{
		{
			Name:        "username",
			Selector:    `input[name='username'], input[name='email'], input[type='email']`,
			Type:        models.FieldTypeText,
			Label:       "Username/Email",
			Required:    true,
			Placeholder: "Enter your username or email",
		},
		{
			Name:        "password",
			Selector:    `input[name='password'], input[type='password']`,
			Type:        models.FieldTypePassword,
			Label:       LabelPassword,
			Required:    true,
			Placeholder: "Enter your password",
		},
	}

	lower := strings.ToLower(platformName)
	for _, kw := range []string{"tradelocker", "metatrader", "mt4", "mt5", "ctrader"} {
		if strings.Contains(lower, kw) {
			fields = append(fields, models.LoginField{
				Name:        "server",
				Selector:    `select[name='server'], input[name='server']`,
				Type:        models.FieldTypeSelect,
				Label:       "Server",
				Required:    true,
				Placeholder: "Select server or broker",
			})
			break
		}
	}

	return &models.DetectedForm{
		LoginFields:  fields,
		SubmitButton: `button[type='submit'], input[type='submit']`,
		// 2FA считаем доступной: лучше запросить код зря, чем
		// провалить вход на платформе, где он обязателен
		TwoFADetected:   true,
		CaptchaDetected: false,
	}
}

// buildFieldSelector строит устойчивый селектор поля: name надежнее id,
// id надежнее типа
func buildFieldSelector(tag, inputType, name, id string) string {
	switch {
	case name != "":
		return fmt.Sprintf(`%s[name="%s"]`, tag, name)
	case id != "":
		return fmt.Sprintf(`%s[id="%s"]`, tag, id)
	case inputType != "":
		return fmt.Sprintf(`%s[type="%s"]`, tag, inputType)
	default:
		return tag
	}
}

// describeOptions возвращает строку вида "Options: a, b, c..." для select
func (a *Automator) describeOptions(ctx context.Context, page browser.Page, selector string) string {
	options, err := page.Options(ctx, selector)
	if err != nil {
		return ""
	}

	var texts []string
	for _, opt := range options {
		if t := strings.TrimSpace(opt.Text); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return ""
	}

	suffix := ""
	if len(texts) > 3 {
		texts = texts[:3]
		suffix = "..."
	}
	return "Options: " + strings.Join(texts, ", ") + suffix
}

// anyPresent возвращает true если хоть один селектор находит элемент
func anyPresent(ctx context.Context, page browser.Page, selectors []string) bool {
	for _, selector := range selectors {
		el, err := page.Query(ctx, selector)
		if err == nil && el != nil {
			return true
		}
	}
	return false
}
