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
// Анализатор торгового интерфейса
// ============================================================
//
// После входа страница сканируется по библиотеке селекторов,
// собранной с реальных платформ. Результат кешируется менеджером
// и переиспользуется при исполнении сделок.

var buySelectors = []string{
	`button:has-text("Buy")`, `button:has-text("BUY")`, `.buy-button`, `#buy-btn`,
	`button[data-side="buy"]`, `button[data-action="buy"]`, `.order-buy`,
	`button:has-text("Long")`, `button:has-text("LONG")`, `.long-button`,
}

var sellSelectors = []string{
	`button:has-text("Sell")`, `button:has-text("SELL")`, `.sell-button`, `#sell-btn`,
	`button[data-side="sell"]`, `button[data-action="sell"]`, `.order-sell`,
	`button:has-text("Short")`, `button:has-text("SHORT")`, `.short-button`,
}

var symbolSelectors = []string{
	`input[name*="symbol"]`, `input[placeholder*="symbol"]`, `select[name*="symbol"]`,
	`input[name*="instrument"]`, `select[name*="instrument"]`, `.symbol-input`,
	`input[name*="pair"]`, `select[name*="pair"]`,
}

var quantitySelectors = []string{
	`input[name*="quantity"]`, `input[placeholder*="quantity"]`, `input[name*="amount"]`,
	`input[placeholder*="amount"]`, `input[name*="size"]`, `input[placeholder*="size"]`,
	`input[name*="volume"]`, `input[placeholder*="volume"]`, `.quantity-input`,
}

var priceSelectors = []string{
	`input[name*="price"]`, `input[placeholder*="price"]`, `.price-input`,
	`input[name*="rate"]`, `input[placeholder*="rate"]`,
}

var orderTypeSelectors = []string{
	`select[name*="type"]`, `select[name*="order"]`, `.order-type`,
	`select[name*="execution"]`, `input[name*="market"]`, `input[name*="limit"]`,
}

var positionsTableSelectors = []string{
	`.positions`, `.positions-table`, `#positions`, `[data-test="positions"]`,
	`.open-positions`, `.portfolio`, `.trades`,
}

var balanceSelectors = []string{
	`.balance`, `.account-balance`, `#balance`, `[data-test="balance"]`,
	`.equity`, `.account-equity`, `.available-balance`, `.wallet`,
}

// Ключевые слова, отличающие строку позиции от заголовка таблицы
var positionRowKeywords = []string{"buy", "sell", "long", "short"}

// AnalyzeInterface сканирует торговый интерфейс после входа
func (a *Automator) AnalyzeInterface(ctx context.Context, page browser.Page) (*models.InterfaceAnalysis, error) {
	timer := startAnalysisTimer()
	defer timer.ObserveDuration()

	if err := page.WaitReady(ctx, a.navTimeout); err != nil {
		return nil, fmt.Errorf("trading page not ready: %w", err)
	}

	analysis := &models.InterfaceAnalysis{AnalyzedAt: a.now()}

	analysis.BuyElements = a.collectTradingElements(ctx, page, buySelectors)
	analysis.SellElements = a.collectTradingElements(ctx, page, sellSelectors)

	analysis.SymbolInput = a.findInput(ctx, page, symbolSelectors)
	analysis.QuantityInput = a.findInput(ctx, page, quantitySelectors)
	analysis.PriceInput = a.findInput(ctx, page, priceSelectors)
	analysis.OrderTypeSelector = a.findInput(ctx, page, orderTypeSelectors)

	a.analyzePositions(ctx, page, analysis)
	a.findBalance(ctx, page, analysis)

	a.log.Info("trading interface analyzed",
		zap.Int("buy_elements", len(analysis.BuyElements)),
		zap.Int("sell_elements", len(analysis.SellElements)),
		zap.Int("positions", len(analysis.CurrentPositions)))

	return analysis, nil
}

// collectTradingElements собирает ВСЕ видимые элементы по списку
// селекторов: у платформ бывает по несколько кнопок Buy на экране,
// и исполнителю нужен весь список для выбора первого рабочего
func (a *Automator) collectTradingElements(ctx context.Context, page browser.Page, selectors []string) []models.ElementInfo {
	var found []models.ElementInfo
	for _, selector := range selectors {
		elements, err := page.QueryAll(ctx, selector)
		if err != nil {
			continue
		}
		for i := range elements {
			el := &elements[i]
			if !el.Visible {
				continue
			}
			found = append(found, models.ElementInfo{
				Selector: selector,
				Text:     el.Text,
				Class:    el.Attr("class"),
				ID:       el.Attr("id"),
			})
		}
	}
	return found
}

// findInput возвращает первый видимый элемент из списка селекторов
func (a *Automator) findInput(ctx context.Context, page browser.Page, selectors []string) *models.InputInfo {
	for _, selector := range selectors {
		el, err := page.Query(ctx, selector)
		if err != nil || el == nil || !el.Visible {
			continue
		}
		inputType := el.Attr("type")
		if inputType == "" {
			if el.Tag == "select" {
				inputType = "select"
			} else {
				inputType = "text"
			}
		}
		return &models.InputInfo{
			Selector:    selector,
			Type:        inputType,
			Placeholder: el.Attr("placeholder"),
		}
	}
	return nil
}

// analyzePositions ищет таблицу позиций, кнопки закрытия в ней
// и текущие открытые позиции
func (a *Automator) analyzePositions(ctx context.Context, page browser.Page, analysis *models.InterfaceAnalysis) {
	for _, selector := range positionsTableSelectors {
		el, err := page.Query(ctx, selector)
		if err != nil || el == nil || !el.Visible {
			continue
		}
		analysis.PositionsTable = selector

		closeSelectors := []string{
			selector + ` button:has-text("Close")`,
			selector + ` button:has-text("CLOSE")`,
			selector + ` .close-button`,
			selector + ` button[data-action="close"]`,
		}
		for _, closeSelector := range closeSelectors {
			elements, err := page.QueryAll(ctx, closeSelector)
			if err != nil {
				continue
			}
			for i := range elements {
				if elements[i].Visible {
					analysis.ClosePositionSelectors = append(analysis.ClosePositionSelectors, closeSelector)
				}
			}
		}
		break
	}

	if analysis.PositionsTable == "" {
		return
	}

	rowsSelector := analysis.PositionsTable + " tr, " + analysis.PositionsTable + " .position-row"
	rows, err := page.QueryAll(ctx, rowsSelector)
	if err != nil {
		return
	}

	for i := range rows {
		row := &rows[i]
		if !row.Visible || row.Text == "" {
			continue
		}
		if !containsAny(strings.ToLower(row.Text), positionRowKeywords) {
			continue
		}
		analysis.CurrentPositions = append(analysis.CurrentPositions, models.PositionRow{
			Text: row.Text,
			RowSelector: fmt.Sprintf("%s tr:nth-child(%d)",
				analysis.PositionsTable, len(analysis.CurrentPositions)+1),
		})
	}
}

// findBalance ищет отображение баланса аккаунта
func (a *Automator) findBalance(ctx context.Context, page browser.Page, analysis *models.InterfaceAnalysis) {
	for _, selector := range balanceSelectors {
		el, err := page.Query(ctx, selector)
		if err != nil || el == nil || !el.Visible {
			continue
		}
		analysis.BalanceDisplay = &models.BalanceInfo{
			Selector: selector,
			Text:     strings.TrimSpace(el.Text),
		}
		return
	}
}
