package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Ошибки браузерного драйвера
var (
	ErrNoSuchElement    = errors.New("no matching element")
	ErrWaitTimeout      = errors.New("wait timed out")
	ErrNavigationFailed = errors.New("navigation failed")
	ErrPageClosed       = errors.New("page is closed")
)

// Element - снимок DOM элемента на момент запроса.
//
// Снимок, а не живая ссылка: страница могла измениться сразу после query.
// Вся автоматизация в этом пакете и выше работает только через селекторы,
// поэтому элемент несет достаточно данных для эвристической классификации.
type Element struct {
	Tag     string            `json:"tag"`
	Attrs   map[string]string `json:"attrs"`
	Text    string            `json:"text"`
	Visible bool              `json:"visible"`
}

// Attr возвращает значение атрибута или ""
func (e *Element) Attr(name string) string {
	if e == nil || e.Attrs == nil {
		return ""
	}
	return e.Attrs[name]
}

// Type возвращает атрибут type с дефолтом "text" (как у браузера)
func (e *Element) Type() string {
	if t := e.Attr("type"); t != "" {
		return strings.ToLower(t)
	}
	return "text"
}

// SelectOption - один пункт выпадающего списка
type SelectOption struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// Page - одна вкладка/страница браузера.
//
// Селекторы принимаются в CSS-подмножестве плюс псевдокласс
// :has-text("...") (регистронезависимое вхождение подстроки в текст
// элемента) - диалект, унаследованный списками селекторов автоматизации.
// Списки через запятую допустимы везде, первый матч в порядке списка.
//
// Все блокирующие операции принимают context; таймауты ожиданий -
// явные параметры (см. WaitVisible/WaitFor), никаких fixed sleep.
type Page interface {
	// Navigate переходит по URL и ждет завершения загрузки документа
	Navigate(ctx context.Context, url string) error

	// WaitReady ждет готовности документа (client-side рендеринг)
	WaitReady(ctx context.Context, timeout time.Duration) error

	// Query возвращает первый подходящий элемент или nil если его нет
	Query(ctx context.Context, selector string) (*Element, error)

	// QueryAll возвращает все подходящие элементы в порядке документа
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// Fill устанавливает значение первого подходящего поля ввода
	Fill(ctx context.Context, selector, value string) error

	// Click кликает первый подходящий видимый элемент
	Click(ctx context.Context, selector string) error

	// SelectOption выбирает пункт списка по value (или тексту пункта)
	SelectOption(ctx context.Context, selector, value string) error

	// Options возвращает пункты выпадающего списка
	Options(ctx context.Context, selector string) ([]SelectOption, error)

	// Press отправляет клавишу элементу (например, Enter в body)
	Press(ctx context.Context, selector, key string) error

	// URL возвращает текущий адрес страницы
	URL(ctx context.Context) (string, error)

	// Content возвращает полный HTML страницы
	Content(ctx context.Context) (string, error)

	// Close закрывает страницу
	Close() error
}

// Driver создает страницы браузера
type Driver interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// pollInterval - шаг опроса для ожиданий по условию
const pollInterval = 100 * time.Millisecond

// WaitVisible ждет пока селектор не укажет на видимый элемент.
// Возвращает ErrWaitTimeout если элемент не появился за timeout.
func WaitVisible(ctx context.Context, p Page, selector string, timeout time.Duration) error {
	return WaitFor(ctx, timeout, func(ctx context.Context) (bool, error) {
		el, err := p.Query(ctx, selector)
		if err != nil {
			return false, err
		}
		return el != nil && el.Visible, nil
	})
}

// WaitFor опрашивает условие до его выполнения или истечения timeout.
// Таймаут - первоклассный параметр: вызывающий код решает сколько ждать.
func WaitFor(ctx context.Context, timeout time.Duration, cond func(ctx context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrWaitTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
