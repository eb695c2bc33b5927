package models

import "time"

// TradeAction - действие торгового запроса
type TradeAction string

// Поддерживаемые действия
const (
	ActionBuy    TradeAction = "buy"
	ActionSell   TradeAction = "sell"
	ActionClose  TradeAction = "close"
	ActionCancel TradeAction = "cancel"
)

// IsValid проверяет известность действия
func (a TradeAction) IsValid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionClose, ActionCancel:
		return true
	}
	return false
}

// TradeOrder - торговый запрос. Создается на один вызов, не персистится.
type TradeOrder struct {
	Symbol      string      `json:"symbol"`
	Action      TradeAction `json:"action"`
	Quantity    float64     `json:"quantity"`
	Price       float64     `json:"price,omitempty"` // 0 = market
	OrderType   string      `json:"order_type"`      // market, limit, stop
	StopLoss    float64     `json:"stop_loss,omitempty"`
	TakeProfit  float64     `json:"take_profit,omitempty"`
	TimeInForce string      `json:"time_in_force"`
}

// TradeResult - результат исполнения торгового запроса.
//
// OrderID - это best-effort текст, выскобленный со страницы, либо локально
// сгенерированная заглушка. Это НЕ гарантированный идентификатор ордера на
// стороне брокера.
type TradeResult struct {
	Success        bool      `json:"success"`
	OrderID        string    `json:"order_id"`
	Message        string    `json:"message"`
	FilledQuantity float64   `json:"filled_quantity"`
	FilledPrice    float64   `json:"filled_price"`
	Timestamp      time.Time `json:"timestamp"`
}
