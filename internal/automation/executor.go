package automation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tradebridge/internal/browser"
	"tradebridge/internal/models"
)

// ============================================================
// Исполнитель сделок
// ============================================================
//
// Исполнение идет по кешированному снимку интерфейса: поля торговой
// формы заполняются если найдены (их отсутствие - не ошибка, многие
// платформы не имеют отдельного поля symbol), но отсутствие кнопки
// buy/sell - провал, без нее сделку не исполнить.

// Кнопки подтверждения ордера
var confirmTradeSelectors = []string{
	`button:has-text("Confirm")`, `button:has-text("CONFIRM")`, `.confirm-button`,
	`button:has-text("Submit")`, `button:has-text("SUBMIT")`, `.submit-button`,
	`button:has-text("Execute")`, `button:has-text("EXECUTE")`, `.execute-button`,
}

// Кнопки подтверждения закрытия позиции
var confirmCloseSelectors = []string{
	`button:has-text("Confirm")`, `button:has-text("CONFIRM")`, `.confirm-button`,
	`button:has-text("Yes")`, `button:has-text("YES")`, `.yes-button`,
}

// Кнопки закрытия внутри строки позиции
var closeButtonSelectors = []string{
	`button:has-text("Close")`, `button:has-text("CLOSE")`, `.close-button`,
	`button[data-action="close"]`, `.close-position`,
}

// Селекторы с идентификатором ордера
var orderIDSelectors = []string{
	`.order-id`, `#order-id`, `[data-order-id]`,
	`.transaction-id`, `#transaction-id`,
}

// Баннеры успеха, откуда можно вытащить order id или сообщение
var tradeSuccessSelectors = []string{
	`.success`, `.order-success`, `.trade-success`, `.confirmation`,
	`[data-test="success"]`, `.alert-success`, `.notification-success`,
}

// Баннеры ошибок исполнения
var tradeErrorSelectors = []string{
	`.error`, `.order-error`, `.trade-error`, `.alert-error`,
	`[data-test="error"]`, `.notification-error`, `.warning`,
}

// Слова, отличающие баннер ошибки исполнения
var tradeErrorWords = []string{"error", "failed", "invalid"}

// orderIDPattern - алфавитно-цифровой идентификатор от 8 символов
var orderIDPattern = regexp.MustCompile(`[A-Za-z0-9]{8,}`)

// ExecuteTrade исполняет ордер по кешированному снимку интерфейса.
// Результат - всегда заполненный TradeResult: ошибки исполнения
// переводятся в Success=false, а не в error.
func (a *Automator) ExecuteTrade(ctx context.Context, page browser.Page, order *models.TradeOrder, analysis *models.InterfaceAnalysis) *models.TradeResult {
	a.log.Info("executing trade",
		zap.String("action", string(order.Action)),
		zap.String("symbol", order.Symbol),
		zap.Float64("quantity", order.Quantity))

	a.fillTradeForm(ctx, page, order, analysis)

	if err := a.clickTradeButton(ctx, page, order.Action, analysis); err != nil {
		recordTrade(string(order.Action), "failure")
		return failedResult(a.now(), fmt.Sprintf("Trade execution failed: %v", err))
	}

	a.clickFirstVisible(ctx, page, confirmTradeSelectors)

	if err := page.WaitReady(ctx, a.stepTimeout); err != nil {
		a.log.Warn("page not ready after trade submit", zap.Error(err))
	}

	orderID := a.extractOrderID(ctx, page)

	message, err := a.checkTradeResult(ctx, page)
	if err != nil {
		recordTrade(string(order.Action), "failure")
		return failedResult(a.now(), fmt.Sprintf("Trade execution failed: %v", err))
	}

	recordTrade(string(order.Action), "success")
	return &models.TradeResult{
		Success:        true,
		OrderID:        orderID,
		Message:        message,
		FilledQuantity: order.Quantity,
		FilledPrice:    order.Price,
		Timestamp:      a.now(),
	}
}

// ClosePosition закрывает позицию по символу. Если строка позиции
// не найдена, возвращает провал НЕ трогая страницу.
func (a *Automator) ClosePosition(ctx context.Context, page browser.Page, symbol string, analysis *models.InterfaceAnalysis) *models.TradeResult {
	a.log.Info("closing position", zap.String("symbol", symbol))

	if analysis == nil || analysis.PositionsTable == "" {
		recordTrade(string(models.ActionClose), "failure")
		return failedResult(a.now(), "Position close failed: no positions table found")
	}

	rowSelector, found := a.findPositionRow(ctx, page, analysis.PositionsTable, symbol)
	if !found {
		recordTrade(string(models.ActionClose), "failure")
		return failedResult(a.now(), fmt.Sprintf("Position close failed: position for %s not found", symbol))
	}

	clicked := false
	for _, closeSel := range closeButtonSelectors {
		scoped := rowSelector + " " + closeSel
		el, err := page.Query(ctx, scoped)
		if err != nil || el == nil || !el.Visible {
			continue
		}
		if err := page.Click(ctx, scoped); err == nil {
			clicked = true
			break
		}
	}
	if !clicked {
		recordTrade(string(models.ActionClose), "failure")
		return failedResult(a.now(), fmt.Sprintf("Position close failed: close button not found for %s", symbol))
	}

	a.clickFirstVisible(ctx, page, confirmCloseSelectors)

	if err := page.WaitReady(ctx, a.stepTimeout); err != nil {
		a.log.Warn("page not ready after close", zap.Error(err))
	}

	message, err := a.checkTradeResult(ctx, page)
	if err != nil {
		recordTrade(string(models.ActionClose), "failure")
		return failedResult(a.now(), fmt.Sprintf("Position close failed: %v", err))
	}
	if message == defaultTradeMessage {
		message = fmt.Sprintf("Position %s closed successfully", symbol)
	}

	recordTrade(string(models.ActionClose), "success")
	return &models.TradeResult{
		Success:   true,
		OrderID:   fmt.Sprintf("CLOSE_%s_%d", symbol, a.now().Unix()),
		Message:   message,
		Timestamp: a.now(),
	}
}

// fillTradeForm заполняет найденные поля торговой формы. Провал
// отдельного поля логируется, но не прерывает исполнение.
func (a *Automator) fillTradeForm(ctx context.Context, page browser.Page, order *models.TradeOrder, analysis *models.InterfaceAnalysis) {
	if analysis == nil {
		return
	}

	if analysis.SymbolInput != nil {
		if err := page.Fill(ctx, analysis.SymbolInput.Selector, order.Symbol); err != nil {
			a.log.Warn("could not fill symbol field", zap.Error(err))
		}
	}
	if analysis.QuantityInput != nil {
		qty := strconv.FormatFloat(order.Quantity, 'f', -1, 64)
		if err := page.Fill(ctx, analysis.QuantityInput.Selector, qty); err != nil {
			a.log.Warn("could not fill quantity field", zap.Error(err))
		}
	}
	if order.Price > 0 && analysis.PriceInput != nil {
		price := strconv.FormatFloat(order.Price, 'f', -1, 64)
		if err := page.Fill(ctx, analysis.PriceInput.Selector, price); err != nil {
			a.log.Warn("could not fill price field", zap.Error(err))
		}
	}
	if analysis.OrderTypeSelector != nil {
		if err := page.SelectOption(ctx, analysis.OrderTypeSelector.Selector, order.OrderType); err != nil {
			a.log.Warn("could not select order type", zap.Error(err))
		}
	}
}

// clickTradeButton кликает первую кнопку buy/sell из снимка интерфейса
func (a *Automator) clickTradeButton(ctx context.Context, page browser.Page, action models.TradeAction, analysis *models.InterfaceAnalysis) error {
	var elements []models.ElementInfo
	if analysis != nil {
		switch action {
		case models.ActionBuy:
			elements = analysis.BuyElements
		case models.ActionSell:
			elements = analysis.SellElements
		default:
			return fmt.Errorf("unsupported trade action: %s", action)
		}
	}

	if len(elements) == 0 {
		return fmt.Errorf("no %s elements found", action)
	}

	if err := page.Click(ctx, elements[0].Selector); err != nil {
		return fmt.Errorf("click %s button: %w", action, err)
	}
	a.log.Info("clicked trade button",
		zap.String("action", string(action)),
		zap.String("selector", elements[0].Selector))
	return nil
}

// findPositionRow подбирает nth-child селектор строки с нужным символом.
// Перебор индексов вместо хранения хэндла: строки таблицы перерисовываются,
// а селектор остается валидным между запросами.
func (a *Automator) findPositionRow(ctx context.Context, page browser.Page, table, symbol string) (string, bool) {
	symbolLower := strings.ToLower(symbol)

	for _, base := range []string{"tr", ".position-row"} {
		rows, err := page.QueryAll(ctx, table+" "+base)
		if err != nil || len(rows) == 0 {
			continue
		}

		// nth-child считается среди соседей, поэтому индекс может
		// превышать количество найденных строк (заголовки, разделители)
		limit := len(rows) + 5
		for i := 1; i <= limit; i++ {
			selector := fmt.Sprintf("%s %s:nth-child(%d)", table, base, i)
			el, err := page.Query(ctx, selector)
			if err != nil || el == nil || !el.Visible {
				continue
			}
			if strings.Contains(strings.ToLower(el.Text), symbolLower) {
				return selector, true
			}
		}
	}
	return "", false
}

// clickFirstVisible кликает первый видимый элемент из списка (диалоги
// подтверждения); отсутствие диалога - норма
func (a *Automator) clickFirstVisible(ctx context.Context, page browser.Page, selectors []string) {
	for _, selector := range selectors {
		el, err := page.Query(ctx, selector)
		if err != nil || el == nil || !el.Visible {
			continue
		}
		if err := page.Click(ctx, selector); err == nil {
			a.log.Info("clicked confirmation", zap.String("selector", selector))
			return
		}
	}
}

// extractOrderID вытаскивает идентификатор ордера каскадом:
// выделенный элемент с id, затем regex по баннеру успеха,
// затем синтетический плейсхолдер
func (a *Automator) extractOrderID(ctx context.Context, page browser.Page) string {
	for _, selector := range orderIDSelectors {
		el, err := page.Query(ctx, selector)
		if err != nil || el == nil {
			continue
		}
		if id := strings.TrimSpace(el.Text); len(id) > 5 {
			return id
		}
	}

	for _, selector := range tradeSuccessSelectors {
		el, err := page.Query(ctx, selector)
		if err != nil || el == nil {
			continue
		}
		if match := orderIDPattern.FindString(el.Text); match != "" {
			return match
		}
	}

	return fmt.Sprintf("ORDER_%d", a.now().Unix())
}

const defaultTradeMessage = "Trade executed successfully"

// checkTradeResult читает баннеры результата: текст успеха или
// ошибка при видимом баннере с ошибкой исполнения
func (a *Automator) checkTradeResult(ctx context.Context, page browser.Page) (string, error) {
	for _, selector := range tradeSuccessSelectors {
		el, err := page.Query(ctx, selector)
		if err != nil || el == nil || !el.Visible {
			continue
		}
		if message := strings.TrimSpace(el.Text); message != "" {
			return message, nil
		}
	}

	for _, selector := range tradeErrorSelectors {
		el, err := page.Query(ctx, selector)
		if err != nil || el == nil || !el.Visible {
			continue
		}
		textLower := strings.ToLower(el.Text)
		for _, word := range tradeErrorWords {
			if strings.Contains(textLower, word) {
				return "", fmt.Errorf("trade error: %s", strings.TrimSpace(el.Text))
			}
		}
	}

	return defaultTradeMessage, nil
}

func failedResult(now time.Time, message string) *models.TradeResult {
	return &models.TradeResult{
		Success:   false,
		OrderID:   "",
		Message:   message,
		Timestamp: now,
	}
}
