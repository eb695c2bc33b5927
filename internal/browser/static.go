package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// StaticDriver - драйвер поверх заранее заданных HTML снапшотов.
//
// Используется в тестах автоматизации и для офлайн-прогона детектора по
// сохраненной разметке: тот же интерфейс Page, что и у Chrome-драйвера,
// но без браузера. Мутации (fill/click/select) записываются и доступны
// для ассертов.
type StaticDriver struct {
	mu      sync.Mutex
	sources map[string]string // url -> html
}

// NewStaticDriver создает драйвер с картой url -> html
func NewStaticDriver(sources map[string]string) *StaticDriver {
	if sources == nil {
		sources = make(map[string]string)
	}
	return &StaticDriver{sources: sources}
}

// AddSource регистрирует HTML для URL
func (d *StaticDriver) AddSource(url, content string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sources[url] = content
}

// NewPage создает пустую страницу; контент подгружается при Navigate
func (d *StaticDriver) NewPage(_ context.Context) (Page, error) {
	return &StaticPage{
		driver:     d,
		Fills:      make(map[string]string),
		Selections: make(map[string]string),
	}, nil
}

// Close освобождает драйвер (для статического - no-op)
func (d *StaticDriver) Close() error { return nil }

func (d *StaticDriver) lookup(url string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	content, ok := d.sources[url]
	return content, ok
}

// StaticPage - страница статического драйвера.
//
// Экспортируемые поля с записями мутаций предназначены для тестов;
// продакшен-код работает только через интерфейс Page.
type StaticPage struct {
	mu     sync.Mutex
	driver *StaticDriver
	url    string
	doc    *html.Node
	closed bool

	// Журнал мутаций для ассертов в тестах
	Fills      map[string]string
	Clicks     []string
	Selections map[string]string
	Keys       []string

	// ClickHook позволяет тесту симулировать реакцию страницы на клик
	// (переход, появление баннера). Вызывается после записи клика.
	ClickHook func(selector string)
}

// NewStaticPage создает страницу с готовым контентом (без драйвера)
func NewStaticPage(url, content string) (*StaticPage, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &StaticPage{
		url:        url,
		doc:        doc,
		Fills:      make(map[string]string),
		Selections: make(map[string]string),
	}, nil
}

// SetContent заменяет DOM страницы (симуляция рендеринга/перехода)
func (p *StaticPage) SetContent(content string) error {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
	return nil
}

// SetURL меняет текущий адрес (симуляция редиректа после логина)
func (p *StaticPage) SetURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

func (p *StaticPage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPageClosed
	}

	if p.driver != nil {
		content, ok := p.driver.lookup(url)
		if !ok {
			return fmt.Errorf("%w: no source for %s", ErrNavigationFailed, url)
		}
		doc, err := html.Parse(strings.NewReader(content))
		if err != nil {
			return fmt.Errorf("parse html: %w", err)
		}
		p.doc = doc
	}
	// Без драйвера контент остается прежним: страница уже загружена тестом

	p.url = url
	return nil
}

// WaitReady для статического контента всегда немедленно успешен
func (p *StaticPage) WaitReady(_ context.Context, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPageClosed
	}
	if p.doc == nil {
		return ErrNavigationFailed
	}
	return nil
}

func (p *StaticPage) Query(_ context.Context, selector string) (*Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes, err := p.queryNodes(selector)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	el := p.snapshot(nodes[0])
	return &el, nil
}

func (p *StaticPage) QueryAll(_ context.Context, selector string) ([]Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes, err := p.queryNodes(selector)
	if err != nil {
		return nil, err
	}
	elements := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, p.snapshot(n))
	}
	return elements, nil
}

func (p *StaticPage) Fill(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes, err := p.queryNodes(selector)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if n.Data == "input" || n.Data == "textarea" || n.Data == "select" {
			setAttr(n, "value", value)
			p.Fills[selector] = value
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
}

func (p *StaticPage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	nodes, err := p.queryNodes(selector)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	found := false
	for _, n := range nodes {
		if p.visible(n) {
			found = true
			break
		}
	}
	if !found {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
	}
	p.Clicks = append(p.Clicks, selector)
	hook := p.ClickHook
	p.mu.Unlock()

	// Hook вызывается вне лока: он имеет право дергать SetContent/SetURL
	if hook != nil {
		hook(selector)
	}
	return nil
}

func (p *StaticPage) SelectOption(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes, err := p.queryNodes(selector)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if n.Data != "select" {
			continue
		}
		for _, opt := range optionNodes(n) {
			optValue := getAttr(opt, "value")
			optText := strings.TrimSpace(collectText(opt))
			if optValue == value || optText == value {
				setAttr(n, "value", optValue)
				p.Selections[selector] = optValue
				return nil
			}
		}
		return fmt.Errorf("option %q not found in %s", value, selector)
	}
	return fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
}

func (p *StaticPage) Options(_ context.Context, selector string) ([]SelectOption, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes, err := p.queryNodes(selector)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Data != "select" {
			continue
		}
		var options []SelectOption
		for _, opt := range optionNodes(n) {
			options = append(options, SelectOption{
				Value: getAttr(opt, "value"),
				Text:  strings.TrimSpace(collectText(opt)),
			})
		}
		return options, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
}

func (p *StaticPage) Press(_ context.Context, selector, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes, err := p.queryNodes(selector)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
	}
	p.Keys = append(p.Keys, selector+":"+key)
	return nil
}

func (p *StaticPage) URL(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *StaticPage) Content(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return "", nil
	}
	var b strings.Builder
	if err := html.Render(&b, p.doc); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (p *StaticPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// ==================== внутренности DOM-матчинга ====================

// queryNodes возвращает узлы в порядке документа, матчащие любой
// из селекторов списка. Вызывается под p.mu.
func (p *StaticPage) queryNodes(selector string) ([]*html.Node, error) {
	if p.closed {
		return nil, ErrPageClosed
	}
	if p.doc == nil {
		return nil, nil
	}

	selectors, err := parseSelectorList(selector)
	if err != nil {
		return nil, err
	}

	var result []*html.Node
	walkElements(p.doc, func(n *html.Node) {
		for _, compound := range selectors {
			if p.matchChain(n, compound) {
				result = append(result, n)
				return
			}
		}
	})
	return result, nil
}

// matchChain проверяет узел против цепочки потомков
func (p *StaticPage) matchChain(n *html.Node, chain compoundSelector) bool {
	el := p.snapshot(n)
	if !chain[len(chain)-1].match(&el, nthIndex(n)) {
		return false
	}

	anc := n.Parent
	for i := len(chain) - 2; i >= 0; i-- {
		for anc != nil {
			if anc.Type == html.ElementNode {
				ancEl := p.snapshot(anc)
				if chain[i].match(&ancEl, nthIndex(anc)) {
					break
				}
			}
			anc = anc.Parent
		}
		if anc == nil {
			return false
		}
		anc = anc.Parent
	}
	return true
}

// snapshot строит Element из узла
func (p *StaticPage) snapshot(n *html.Node) Element {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[strings.ToLower(a.Key)] = a.Val
	}
	return Element{
		Tag:     strings.ToLower(n.Data),
		Attrs:   attrs,
		Text:    strings.Join(strings.Fields(collectText(n)), " "),
		Visible: p.visible(n),
	}
}

// visible применяет упрощенную модель видимости: input[type=hidden],
// атрибут hidden и inline display:none/visibility:hidden скрывают элемент
// вместе с поддеревом
func (p *StaticPage) visible(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if cur.Data == "input" && strings.EqualFold(getAttr(cur, "type"), "hidden") {
			return false
		}
		if _, hidden := lookupAttr(cur, "hidden"); hidden {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(getAttr(cur, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

func walkElements(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkElements(c, fn)
	}
}

// nthIndex - позиция узла среди element-соседей, 1-based
func nthIndex(n *html.Node) int {
	idx := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode {
			idx++
		}
	}
	return idx
}

func optionNodes(selectNode *html.Node) []*html.Node {
	var options []*html.Node
	walkElements(selectNode, func(n *html.Node) {
		if n.Data == "option" {
			options = append(options, n)
		}
	})
	return options
}

func collectText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
			b.WriteByte(' ')
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func getAttr(n *html.Node, name string) string {
	v, _ := lookupAttr(n, name)
	return v
}

func lookupAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i := range n.Attr {
		if strings.EqualFold(n.Attr[i].Key, name) {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}
