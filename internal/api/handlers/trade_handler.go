package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"tradebridge/internal/manager"
	"tradebridge/internal/models"
	"tradebridge/pkg/utils"
)

// ExecuteTradeRequest - тело торгового запроса
type ExecuteTradeRequest struct {
	Symbol      string  `json:"symbol"`
	Action      string  `json:"action"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price,omitempty"`
	OrderType   string  `json:"order_type,omitempty"`
	StopLoss    float64 `json:"stop_loss,omitempty"`
	TakeProfit  float64 `json:"take_profit,omitempty"`
	TimeInForce string  `json:"time_in_force,omitempty"`
}

// ClosePositionRequest - тело запроса на закрытие позиции
type ClosePositionRequest struct {
	Symbol string `json:"symbol"`
}

// TradeHandler отвечает за исполнение торговых операций на подключенных
// платформах и за доступ к снимку анализа торгового интерфейса
//
// Endpoints:
// - POST /api/v1/platforms/{id}/trade - исполнить ордер
// - POST /api/v1/platforms/{id}/close-position - закрыть позицию
// - GET /api/v1/platforms/{id}/interface - текущий снимок интерфейса
// - POST /api/v1/platforms/{id}/interface/reanalyze - принудительный переанализ
type TradeHandler struct {
	manager PlatformManager
}

// NewTradeHandler создает новый TradeHandler
func NewTradeHandler(manager PlatformManager) *TradeHandler {
	return &TradeHandler{manager: manager}
}

// ExecuteTrade исполняет торговый ордер через браузерную сессию
// POST /api/v1/platforms/{id}/trade
//
// Тело запроса:
//
//	{
//	  "symbol": "EURUSD",
//	  "action": "buy",
//	  "quantity": 0.1,
//	  "price": 0,          // 0 = market
//	  "order_type": "market"
//	}
//
// Ответы:
//   - 200 OK: результат исполнения (success может быть false -
//     неудача на странице платформы не является ошибкой HTTP слоя)
//   - 400 Bad Request: некорректный ордер
//   - 404 Not Found: платформа не найдена
func (h *TradeHandler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	platformID := mux.Vars(r)["id"]

	var req ExecuteTradeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := utils.ValidateSymbol(req.Symbol); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid symbol", err.Error())
		return
	}
	if err := utils.ValidateQuantity(req.Quantity); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid quantity", err.Error())
		return
	}

	action := models.TradeAction(req.Action)
	if action != models.ActionBuy && action != models.ActionSell {
		respondWithError(w, http.StatusBadRequest, "Invalid action", "Expected \"buy\" or \"sell\"")
		return
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = "market"
	}

	order := &models.TradeOrder{
		Symbol:      req.Symbol,
		Action:      action,
		Quantity:    req.Quantity,
		Price:       req.Price,
		OrderType:   orderType,
		StopLoss:    req.StopLoss,
		TakeProfit:  req.TakeProfit,
		TimeInForce: req.TimeInForce,
	}

	result, err := h.manager.ExecuteTrade(r.Context(), platformID, order)
	if err != nil {
		if errors.Is(err, manager.ErrPlatformNotFound) {
			respondWithError(w, http.StatusNotFound, "Platform not found", "")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Trade execution failed", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// ClosePosition закрывает открытую позицию по символу
// POST /api/v1/platforms/{id}/close-position
//
// Ответы:
//   - 200 OK: результат закрытия (success=false если позиция не найдена
//     на странице или платформа не подключена)
//   - 400 Bad Request: пустой символ
//   - 404 Not Found: платформа не найдена
func (h *TradeHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	platformID := mux.Vars(r)["id"]

	var req ClosePositionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := utils.ValidateSymbol(req.Symbol); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid symbol", err.Error())
		return
	}

	result, err := h.manager.ClosePosition(r.Context(), platformID, req.Symbol)
	if err != nil {
		if errors.Is(err, manager.ErrPlatformNotFound) {
			respondWithError(w, http.StatusNotFound, "Platform not found", "")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Close position failed", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// GetInterface возвращает текущий снимок анализа торгового интерфейса
// GET /api/v1/platforms/{id}/interface
//
// Ответы:
// - 200 OK: снимок анализа
// - 409 Conflict: платформа не подключена
func (h *TradeHandler) GetInterface(w http.ResponseWriter, r *http.Request) {
	platformID := mux.Vars(r)["id"]

	analysis, err := h.manager.GetInterfaceInfo(platformID)
	if err != nil {
		if errors.Is(err, manager.ErrNotConnected) {
			respondWithError(w, http.StatusConflict, "Platform is not connected", "Connect first to analyze the interface")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get interface info", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, analysis)
}

// ReanalyzeInterface принудительно обновляет снимок интерфейса
// POST /api/v1/platforms/{id}/interface/reanalyze
//
// Ответы:
// - 200 OK: свежий снимок анализа
// - 409 Conflict: платформа не подключена
func (h *TradeHandler) ReanalyzeInterface(w http.ResponseWriter, r *http.Request) {
	platformID := mux.Vars(r)["id"]

	analysis, err := h.manager.ReanalyzeInterface(r.Context(), platformID)
	if err != nil {
		if errors.Is(err, manager.ErrNotConnected) {
			respondWithError(w, http.StatusConflict, "Platform is not connected", "Connect first to analyze the interface")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Interface analysis failed", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, analysis)
}
