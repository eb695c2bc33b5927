package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tradebridge/internal/browser"
	"tradebridge/internal/models"
	"tradebridge/pkg/totp"
)

// ============================================================
// Сценарий входа на платформу
// ============================================================

// ErrTwoFAFieldNotFound - поле ввода кода 2FA не найдено на странице
var ErrTwoFAFieldNotFound = errors.New("2fa input field not found")

// Селекторы поля ввода кода 2FA
var twoFAFieldSelectors = []string{
	`input[name*="2fa"]`, `input[name*="code"]`, `input[name*="token"]`,
	`input[name*="authenticator"]`, `input[name*="verification"]`,
}

// Подстроки URL, указывающие на успешный вход
var successURLIndicators = []string{
	"dashboard", "trading", "account", "portfolio", "positions",
	"main", "home", "platform", "trade", "market", "orders",
}

// Селекторы, указывающие что форма логина все еще на экране
var loginFormIndicators = []string{
	`input[type="password"]`, `input[name*="pass"]`, `input[id*="pass"]`,
	`.login-form`, `#login-form`, `.signin-form`, `#signin-form`,
}

// Элементы, появляющиеся только после входа
var successElementIndicators = []string{
	`.welcome`, `.dashboard`, `.account-info`, `.balance`, `.portfolio`,
	`.trading-panel`, `.market-data`, `.positions`, `.orders`, `.navbar`,
	`[data-test="dashboard"]`, `[data-test="trading"]`, `.header-user`,
}

// Текстовые признаки успешного входа в содержимом страницы
var successTextIndicators = []string{
	"welcome", "dashboard", "account balance", "portfolio", "logout",
	"trading", "positions", "orders", "market data", "watchlist",
}

// Селекторы баннеров с ошибками
var errorBannerSelectors = []string{
	`.error`, `.alert`, `.warning`, `[role="alert"]`, `.message`,
	`.notification`, `.toast`, `.invalid`, `.failed`,
}

// Слова, отличающие баннер с ошибкой входа от информационного
var loginErrorWords = []string{"error", "invalid", "failed", "incorrect"}

// PerformLogin проходит форму логина платформы: заполняет поля,
// отправляет форму, обрабатывает 2FA и верифицирует результат.
// onState (может быть nil) получает состояния по мере прохождения.
func (a *Automator) PerformLogin(ctx context.Context, page browser.Page, creds *models.PlatformCredential, form *models.DetectedForm, onState func(state string)) (bool, error) {
	tracker := newLoginTracker(onState)

	if err := page.Navigate(ctx, creds.LoginURL); err != nil {
		tracker.to(models.LoginStateFailure)
		return false, fmt.Errorf("navigate to %s: %w", creds.LoginURL, err)
	}
	if err := page.WaitReady(ctx, a.navTimeout); err != nil {
		tracker.to(models.LoginStateFailure)
		return false, fmt.Errorf("login page not ready: %w", err)
	}
	tracker.to(models.LoginStateNavigated)

	a.fillLoginForm(ctx, page, creds, form)
	tracker.to(models.LoginStateFormFilled)

	if form.SubmitButton != "" {
		if err := page.Click(ctx, form.SubmitButton); err != nil {
			a.log.Warn("submit button click failed, falling back to Enter",
				zap.String("selector", form.SubmitButton), zap.Error(err))
			_ = page.Press(ctx, "body", "Enter")
		}
	} else {
		_ = page.Press(ctx, "body", "Enter")
	}
	tracker.to(models.LoginStateSubmitted)

	if err := page.WaitReady(ctx, a.navTimeout); err != nil {
		a.log.Warn("page not ready after submit", zap.Error(err))
	}

	if form.TwoFADetected && creds.TwoFA != nil && creds.TwoFA.Enabled {
		tracker.to(models.LoginStateTwoFAPending)
		if err := a.handleTwoFA(ctx, page, creds.TwoFA); err != nil {
			a.log.Error("2fa handling failed", zap.Error(err))
			tracker.to(models.LoginStateFailure)
			recordLogin("failure")
			return false, err
		}
	}

	ok := a.verifyLoginSuccess(ctx, page, creds.LoginURL)
	if ok {
		tracker.to(models.LoginStateSuccess)
		recordLogin("success")
	} else {
		tracker.to(models.LoginStateFailure)
		recordLogin("failure")
	}
	return ok, nil
}

// fillLoginForm заполняет распознанные поля. Ошибки отдельных полей
// не прерывают сценарий: часть полей может быть необязательной.
func (a *Automator) fillLoginForm(ctx context.Context, page browser.Page, creds *models.PlatformCredential, form *models.DetectedForm) {
	for _, field := range form.LoginFields {
		nameLower := strings.ToLower(field.Name)

		switch {
		case field.Type == models.FieldTypeText || field.Type == models.FieldTypeEmail ||
			strings.Contains(nameLower, "user") || strings.Contains(nameLower, "email"):
			if err := page.Fill(ctx, field.Selector, creds.Username); err != nil {
				a.log.Warn("failed to fill username", zap.String("selector", field.Selector), zap.Error(err))
			}

		case field.Type == models.FieldTypePassword || strings.Contains(nameLower, "pass"):
			if err := page.Fill(ctx, field.Selector, creds.Password); err != nil {
				a.log.Warn("failed to fill password", zap.String("selector", field.Selector), zap.Error(err))
			}

		case field.Type == models.FieldTypeSelect && strings.Contains(nameLower, "server"):
			a.selectServer(ctx, page, field.Selector)
		}
	}
}

// selectServer выбирает сервер брокера: сначала значение "live",
// при неудаче - первый непустой вариант из списка
func (a *Automator) selectServer(ctx context.Context, page browser.Page, selector string) {
	if err := page.SelectOption(ctx, selector, "live"); err == nil {
		return
	}

	options, err := page.Options(ctx, selector)
	if err != nil || len(options) < 2 {
		a.log.Warn("no server options available", zap.String("selector", selector))
		return
	}
	// options[0] обычно пустой "Choose server"
	if err := page.SelectOption(ctx, selector, options[1].Value); err != nil {
		a.log.Warn("failed to select default server",
			zap.String("selector", selector), zap.Error(err))
	}
}

// handleTwoFA проходит второй фактор. TOTP-код генерируется локально;
// SMS и email считаются принятыми - код вводит пользователь через UI.
func (a *Automator) handleTwoFA(ctx context.Context, page browser.Page, cfg *models.TwoFactorConfig) error {
	fieldSelector := ""
	for _, selector := range twoFAFieldSelectors {
		el, err := page.Query(ctx, selector)
		if err == nil && el != nil && el.Visible {
			fieldSelector = selector
			break
		}
	}
	if fieldSelector == "" {
		return ErrTwoFAFieldNotFound
	}

	var code string
	switch cfg.Method {
	case models.AuthMethodTOTP:
		if cfg.TOTPSecret == "" {
			return errors.New("totp method configured without secret")
		}
		generated, err := totp.GenerateCode(cfg.TOTPSecret)
		if err != nil {
			return fmt.Errorf("generate totp code: %w", err)
		}
		code = generated

	case models.AuthMethodSMS, models.AuthMethodEmail:
		a.log.Info("2fa requires user input", zap.String("method", string(cfg.Method)))
		recordTwoFA(string(cfg.Method))
		return nil

	default:
		return fmt.Errorf("unsupported 2fa method: %s", cfg.Method)
	}

	if err := page.Fill(ctx, fieldSelector, code); err != nil {
		return fmt.Errorf("fill 2fa code: %w", err)
	}

	if submit, err := page.Query(ctx, `button[type="submit"]`); err == nil && submit != nil {
		if err := page.Click(ctx, `button[type="submit"]`); err != nil {
			return fmt.Errorf("submit 2fa code: %w", err)
		}
	} else {
		if err := page.Press(ctx, fieldSelector, "Enter"); err != nil {
			return fmt.Errorf("submit 2fa code: %w", err)
		}
	}

	if err := page.WaitReady(ctx, a.navTimeout); err != nil {
		a.log.Warn("page not ready after 2fa submit", zap.Error(err))
	}
	recordTwoFA(string(cfg.Method))
	return nil
}

// verifyLoginSuccess верифицирует вход каскадом из шести проверок,
// от самой надежной к эвристическим:
//  1. URL содержит признак личного кабинета
//  2. форма логина исчезла и URL сменился
//  3. на странице появились элементы кабинета
//  4. в тексте страницы есть признаки кабинета
//  5. виден баннер с ошибкой входа - провал
//  6. остались на странице логина - провал, иначе успех
func (a *Automator) verifyLoginSuccess(ctx context.Context, page browser.Page, loginURL string) bool {
	currentURL, err := page.URL(ctx)
	if err != nil {
		a.log.Error("failed to read current url", zap.Error(err))
		return false
	}
	urlLower := strings.ToLower(currentURL)

	for _, indicator := range successURLIndicators {
		if strings.Contains(urlLower, indicator) {
			a.log.Info("login verified via url", zap.String("url", currentURL))
			return true
		}
	}

	formPresent := false
	for _, indicator := range loginFormIndicators {
		el, err := page.Query(ctx, indicator)
		if err == nil && el != nil && el.Visible {
			formPresent = true
			break
		}
	}
	if !formPresent && currentURL != loginURL {
		a.log.Info("login verified: login form gone")
		return true
	}

	for _, indicator := range successElementIndicators {
		el, err := page.Query(ctx, indicator)
		if err == nil && el != nil && el.Visible {
			a.log.Info("login verified via element", zap.String("selector", indicator))
			return true
		}
	}

	content, err := page.Content(ctx)
	if err == nil {
		contentLower := strings.ToLower(content)
		for _, text := range successTextIndicators {
			if strings.Contains(contentLower, text) {
				a.log.Info("login verified via page content")
				return true
			}
		}
	}

	for _, selector := range errorBannerSelectors {
		el, err := page.Query(ctx, selector)
		if err != nil || el == nil || !el.Visible {
			continue
		}
		textLower := strings.ToLower(el.Text)
		for _, word := range loginErrorWords {
			if strings.Contains(textLower, word) {
				a.log.Error("login error banner detected", zap.String("text", el.Text))
				return false
			}
		}
	}

	if currentURL == loginURL || strings.Contains(urlLower, "login") {
		a.log.Warn("still on login page, login likely failed")
		return false
	}

	a.log.Info("login appears successful: navigated away from login page")
	return true
}
