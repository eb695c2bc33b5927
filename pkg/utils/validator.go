package utils

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Ошибки валидации
var (
	ErrEmptyPlatformName   = errors.New("platform name is empty")
	ErrPlatformNameTooLong = errors.New("platform name is too long")
	ErrInvalidLoginURL     = errors.New("login url must be a valid http(s) url")
	ErrEmptySymbol         = errors.New("symbol is empty")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
)

// maxPlatformNameLen - разумный потолок для имени платформы
const maxPlatformNameLen = 64

// ValidatePlatformName проверяет имя платформы
func ValidatePlatformName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyPlatformName
	}
	if len(name) > maxPlatformNameLen {
		return ErrPlatformNameTooLong
	}
	return nil
}

// ValidateLoginURL проверяет что URL логина - абсолютный http(s) адрес
func ValidateLoginURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLoginURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidLoginURL
	}
	return nil
}

// ValidateSymbol проверяет торговый символ (EURUSD, BTCUSD и т.п.)
func ValidateSymbol(symbol string) error {
	if strings.TrimSpace(symbol) == "" {
		return ErrEmptySymbol
	}
	return nil
}

// ValidateQuantity проверяет объем ордера
func ValidateQuantity(quantity float64) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}
