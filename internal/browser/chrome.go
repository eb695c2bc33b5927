package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// stealthUserAgent - фиксированный десктопный UA; headless-браузеры с
// дефолтным UA брокеры режут на первом же запросе
const stealthUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// stealthScript маскирует признаки автоматизации до загрузки скриптов страницы
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
window.chrome = {runtime: {}};
`

// ChromeDriver - драйвер поверх headless Chrome (chromedp).
//
// Один драйвер держит общий allocator; каждая платформа получает
// собственную вкладку через NewPage.
type ChromeDriver struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewChromeDriver создает драйвер с флагами запуска, подобранными для
// работы против живых сайтов брокеров
func NewChromeDriver(headless bool) *ChromeDriver {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(stealthUserAgent),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromeDriver{allocCtx: allocCtx, allocCancel: cancel}
}

// NewPage открывает новую вкладку с инжектированным стелс-скриптом
func (d *ChromeDriver) NewPage(_ context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(d.allocCtx)

	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := cdppage.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	}))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser tab: %w", err)
	}

	return &ChromePage{ctx: tabCtx, cancel: cancel}, nil
}

// Close останавливает браузер и все вкладки
func (d *ChromeDriver) Close() error {
	d.allocCancel()
	return nil
}

// ChromePage - одна вкладка Chrome
type ChromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run исполняет chromedp-действия, уважая дедлайн и отмену вызывающего контекста
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := p.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("%w: %v", ErrNavigationFailed, err)
	}
	return nil
}

func (p *ChromePage) WaitReady(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.run(waitCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if waitCtx.Err() != nil {
			return ErrWaitTimeout
		}
		return err
	}
	return nil
}

func (p *ChromePage) Query(ctx context.Context, selector string) (*Element, error) {
	elements, err := p.QueryAll(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, nil
	}
	return &elements[0], nil
}

// QueryAll исполняет запрос в странице как инжектированный JS: браузеру
// уходит чистый CSS, фильтр :has-text применяется по textContent
func (p *ChromePage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	var result []Element
	for _, part := range splitTopLevel(selector, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		css, needle := stripHasText(part)

		var elements []Element
		js := fmt.Sprintf(queryScript, css, needle)
		if err := p.run(ctx, chromedp.Evaluate(js, &elements)); err != nil {
			return nil, fmt.Errorf("query %q: %w", selector, err)
		}
		result = append(result, elements...)
	}
	return result, nil
}

const queryScript = `
(() => {
	const out = [];
	let nodes = [];
	try { nodes = Array.from(document.querySelectorAll(%q)); } catch (e) { return out; }
	const needle = %q;
	for (const el of nodes) {
		const text = (el.textContent || '').replace(/\s+/g, ' ').trim();
		if (needle && !text.toLowerCase().includes(needle)) continue;
		const attrs = {};
		for (const a of el.attributes) attrs[a.name.toLowerCase()] = a.value;
		const style = window.getComputedStyle(el);
		const visible = !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length)
			&& style.visibility !== 'hidden' && style.display !== 'none';
		out.push({tag: el.tagName.toLowerCase(), attrs: attrs, text: text, visible: visible});
	}
	return out;
})()
`

func (p *ChromePage) Fill(ctx context.Context, selector, value string) error {
	return p.mutate(ctx, selector, func(css, needle string) string {
		return fmt.Sprintf(fillScript, css, needle, value)
	})
}

const fillScript = `
(() => {
	let nodes = [];
	try { nodes = Array.from(document.querySelectorAll(%q)); } catch (e) { return false; }
	const needle = %q;
	for (const el of nodes) {
		const text = (el.textContent || '').toLowerCase();
		if (needle && !text.includes(needle)) continue;
		const tag = el.tagName.toLowerCase();
		if (tag !== 'input' && tag !== 'textarea' && tag !== 'select') continue;
		el.focus();
		el.value = %q;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	}
	return false;
})()
`

func (p *ChromePage) Click(ctx context.Context, selector string) error {
	return p.mutate(ctx, selector, func(css, needle string) string {
		return fmt.Sprintf(clickScript, css, needle)
	})
}

const clickScript = `
(() => {
	let nodes = [];
	try { nodes = Array.from(document.querySelectorAll(%q)); } catch (e) { return false; }
	const needle = %q;
	for (const el of nodes) {
		const text = (el.textContent || '').toLowerCase();
		if (needle && !text.includes(needle)) continue;
		if (!(el.offsetWidth || el.offsetHeight || el.getClientRects().length)) continue;
		el.click();
		return true;
	}
	return false;
})()
`

// mutate прогоняет fill/click скрипт по частям селектора до первого успеха
func (p *ChromePage) mutate(ctx context.Context, selector string, buildJS func(css, needle string) string) error {
	for _, part := range splitTopLevel(selector, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		css, needle := stripHasText(part)
		js := buildJS(css, needle)

		var ok bool
		if err := p.run(ctx, chromedp.Evaluate(js, &ok)); err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
}

func (p *ChromePage) SelectOption(ctx context.Context, selector, value string) error {
	for _, part := range splitTopLevel(selector, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		css, _ := stripHasText(part)

		var status string
		js := fmt.Sprintf(selectScript, css, value, value)
		if err := p.run(ctx, chromedp.Evaluate(js, &status)); err != nil {
			return err
		}
		switch status {
		case "ok":
			return nil
		case "no-option":
			return fmt.Errorf("option %q not found in %s", value, selector)
		}
	}
	return fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
}

const selectScript = `
(() => {
	let el = null;
	try { el = document.querySelector(%q); } catch (e) { return 'no-select'; }
	if (!el || el.tagName.toLowerCase() !== 'select') return 'no-select';
	const want = %q;
	for (const opt of el.options) {
		if (opt.value === want || opt.textContent.trim() === %q) {
			el.value = opt.value;
			el.dispatchEvent(new Event('change', {bubbles: true}));
			return 'ok';
		}
	}
	return 'no-option';
})()
`

func (p *ChromePage) Options(ctx context.Context, selector string) ([]SelectOption, error) {
	for _, part := range splitTopLevel(selector, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		css, _ := stripHasText(part)

		var options []SelectOption
		js := fmt.Sprintf(optionsScript, css)
		if err := p.run(ctx, chromedp.Evaluate(js, &options)); err != nil {
			return nil, err
		}
		if options != nil {
			return options, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
}

const optionsScript = `
(() => {
	let el = null;
	try { el = document.querySelector(%q); } catch (e) { return null; }
	if (!el || el.tagName.toLowerCase() !== 'select') return null;
	const out = [];
	for (const opt of el.options) out.push({value: opt.value, text: opt.textContent.trim()});
	return out;
})()
`

// Press отправляет trusted-клавишу через Input domain: синтетические
// KeyboardEvent страницы не триггерят submit форм
func (p *ChromePage) Press(ctx context.Context, selector, key string) error {
	css, _ := stripHasText(strings.TrimSpace(splitTopLevel(selector, ',')[0]))

	keys := key
	if strings.EqualFold(key, "Enter") {
		keys = kb.Enter
	}

	return p.run(ctx,
		chromedp.Focus(css, chromedp.ByQuery),
		chromedp.KeyEvent(keys),
	)
}

func (p *ChromePage) URL(_ context.Context) (string, error) {
	var url string
	if err := chromedp.Run(p.ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (p *ChromePage) Content(ctx context.Context) (string, error) {
	var content string
	if err := p.run(ctx, chromedp.OuterHTML("html", &content, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return content, nil
}

func (p *ChromePage) Close() error {
	p.cancel()
	return nil
}
