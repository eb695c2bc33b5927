package websocket

import (
	"time"

	"tradebridge/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeConnectionStatus - прогресс подключения к платформе.
	// Отправляется на каждом шаге логина (навигация, заполнение формы,
	// 2FA, проверка результата), чтобы frontend показывал живой статус.
	MessageTypeConnectionStatus MessageType = "connection_status"

	// MessageTypePlatformUpdate - изменение состояния платформы:
	// добавлена, подключена, отключена, переанализирован интерфейс
	MessageTypePlatformUpdate MessageType = "platform_update"

	// MessageTypeTradeResult - результат исполнения сделки или закрытия позиции
	MessageTypeTradeResult MessageType = "trade_result"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConnectionStatusMessage - шаг процесса подключения к платформе
type ConnectionStatusMessage struct {
	BaseMessage
	PlatformID string `json:"platform_id"`

	// Состояние логина (NOT_STARTED, NAVIGATED, FORM_FILLED, SUBMITTED,
	// TWOFA_PENDING, VERIFIED_SUCCESS, FAILURE)
	State string `json:"state"`
}

// PlatformUpdateMessage - изменение состояния платформы
type PlatformUpdateMessage struct {
	BaseMessage
	PlatformID string `json:"platform_id"`

	// Событие: added, connected, disconnected, reanalyzed, deleted
	Event string `json:"event"`

	// Публичные данные платформы (без секретов), если применимо
	Data *models.PlatformInfo `json:"data,omitempty"`
}

// TradeResultMessage - результат торговой операции
type TradeResultMessage struct {
	BaseMessage
	PlatformID string              `json:"platform_id"`
	Result     *models.TradeResult `json:"result"`
}

// ============ Фабричные функции для создания сообщений ============

// NewConnectionStatusMessage создает сообщение о шаге подключения
func NewConnectionStatusMessage(platformID, state string) *ConnectionStatusMessage {
	return &ConnectionStatusMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeConnectionStatus,
			Timestamp: time.Now(),
		},
		PlatformID: platformID,
		State:      state,
	}
}

// NewPlatformUpdateMessage создает сообщение об изменении платформы
func NewPlatformUpdateMessage(platformID, event string, info *models.PlatformInfo) *PlatformUpdateMessage {
	return &PlatformUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePlatformUpdate,
			Timestamp: time.Now(),
		},
		PlatformID: platformID,
		Event:      event,
		Data:       info,
	}
}

// NewTradeResultMessage создает сообщение с результатом сделки
func NewTradeResultMessage(platformID string, result *models.TradeResult) *TradeResultMessage {
	return &TradeResultMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeTradeResult,
			Timestamp: time.Now(),
		},
		PlatformID: platformID,
		Result:     result,
	}
}
