package models

import "time"

// ElementInfo - найденный интерактивный элемент торгового интерфейса
type ElementInfo struct {
	Selector string `json:"selector"`
	Text     string `json:"text,omitempty"`
	Class    string `json:"class,omitempty"`
	ID       string `json:"id,omitempty"`
}

// InputInfo - найденное поле ввода торговой формы
type InputInfo struct {
	Selector    string `json:"selector"`
	Type        string `json:"type"`
	Placeholder string `json:"placeholder,omitempty"`
}

// PositionRow - строка таблицы открытых позиций
type PositionRow struct {
	Text        string `json:"text"`
	RowSelector string `json:"row_selector"`
}

// BalanceInfo - найденный элемент с балансом аккаунта
type BalanceInfo struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
}

// InterfaceAnalysis - снимок торгового интерфейса платформы.
//
// Кэшируется менеджером per platform id. Снимок НЕ обновляется автоматически:
// после изменения UI платформы селекторы молча устаревают. Инвалидация -
// явный ReanalyzeInterface, переподключение или TTL-sweep (см. конфигурацию
// INTERFACE_TTL).
type InterfaceAnalysis struct {
	BuyElements            []ElementInfo `json:"buy_elements"`
	SellElements           []ElementInfo `json:"sell_elements"`
	SymbolInput            *InputInfo    `json:"symbol_input,omitempty"`
	QuantityInput          *InputInfo    `json:"quantity_input,omitempty"`
	PriceInput             *InputInfo    `json:"price_input,omitempty"`
	OrderTypeSelector      *InputInfo    `json:"order_type_selector,omitempty"`
	PositionsTable         string        `json:"positions_table,omitempty"`
	ClosePositionSelectors []string      `json:"close_position_selectors,omitempty"`
	BalanceDisplay         *BalanceInfo  `json:"balance_display,omitempty"`
	CurrentPositions       []PositionRow `json:"current_positions,omitempty"`
	AnalyzedAt             time.Time     `json:"analyzed_at"`
}

// IsEmpty возвращает true если анализ не нашел ни одного торгового элемента
func (a *InterfaceAnalysis) IsEmpty() bool {
	return a == nil || (len(a.BuyElements) == 0 && len(a.SellElements) == 0 &&
		a.SymbolInput == nil && a.QuantityInput == nil && a.PriceInput == nil &&
		a.PositionsTable == "")
}

// Expired возвращает true если снимок старше ttl (ttl <= 0 отключает срок жизни)
func (a *InterfaceAnalysis) Expired(ttl time.Duration, now time.Time) bool {
	if a == nil || ttl <= 0 {
		return false
	}
	return now.Sub(a.AnalyzedAt) > ttl
}
