package browser

import (
	"fmt"
	"strconv"
	"strings"
)

// Движок селекторов для статического драйвера.
//
// Поддерживаемое подмножество:
//   - тег, #id, .class
//   - [attr], [attr="v"], [attr*="v"], [attr^="v"]
//   - комбинатор потомка (пробел)
//   - :has-text("...") / :contains("...") - вхождение подстроки в текст,
//     регистронезависимо (диалект Playwright, не CSS)
//   - :nth-child(n)
//   - списки через запятую
//
// Ровно то, что встречается в наследуемых списках селекторов; полноценный
// CSS движок здесь не нужен и ни одна библиотека не покрывает :has-text.

// attrMatcher - проверка одного атрибута
type attrMatcher struct {
	name  string
	op    string // "" = наличие, "=", "*=", "^="
	value string
}

// simpleSelector - один составной селектор без комбинаторов
type simpleSelector struct {
	tag      string
	id       string
	classes  []string
	attrs    []attrMatcher
	hasText  string // lowercase подстрока, "" = нет фильтра
	nthChild int    // 0 = нет фильтра
}

// compoundSelector - цепочка потомков: последний матчит сам элемент,
// предыдущие должны матчить его предков по порядку
type compoundSelector []simpleSelector

// parseSelectorList разбирает список селекторов через запятую
func parseSelectorList(s string) ([]compoundSelector, error) {
	var result []compoundSelector
	for _, part := range splitTopLevel(s, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		compound, err := parseCompound(part)
		if err != nil {
			return nil, err
		}
		result = append(result, compound)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("empty selector %q", s)
	}
	return result, nil
}

// parseCompound разбирает цепочку потомков, разделенную пробелами
func parseCompound(s string) (compoundSelector, error) {
	var chain compoundSelector
	for _, token := range splitTopLevel(s, ' ') {
		token = strings.TrimSpace(token)
		if token == "" || token == ">" {
			continue
		}
		simple, err := parseSimple(token)
		if err != nil {
			return nil, err
		}
		chain = append(chain, simple)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("empty compound selector %q", s)
	}
	return chain, nil
}

// parseSimple разбирает один селектор без комбинаторов
func parseSimple(s string) (simpleSelector, error) {
	sel := simpleSelector{}
	i := 0

	// Необязательный тег в начале
	start := i
	for i < len(s) && (isNameChar(s[i]) || s[i] == '*') {
		i++
	}
	if i > start && s[start] != '*' {
		sel.tag = strings.ToLower(s[start:i])
	}

	for i < len(s) {
		switch s[i] {
		case '#':
			i++
			start = i
			for i < len(s) && isNameChar(s[i]) {
				i++
			}
			sel.id = s[start:i]
		case '.':
			i++
			start = i
			for i < len(s) && isNameChar(s[i]) {
				i++
			}
			sel.classes = append(sel.classes, s[start:i])
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return sel, fmt.Errorf("unterminated attribute in %q", s)
			}
			m, err := parseAttrMatcher(s[i+1 : i+end])
			if err != nil {
				return sel, err
			}
			sel.attrs = append(sel.attrs, m)
			i += end + 1
		case ':':
			rest := s[i+1:]
			switch {
			case strings.HasPrefix(rest, "has-text(") || strings.HasPrefix(rest, "contains("):
				open := strings.IndexByte(s[i:], '(')
				closing := strings.IndexByte(s[i:], ')')
				if closing < 0 {
					return sel, fmt.Errorf("unterminated pseudo in %q", s)
				}
				sel.hasText = strings.ToLower(unquote(s[i+open+1 : i+closing]))
				i += closing + 1
			case strings.HasPrefix(rest, "nth-child("):
				closing := strings.IndexByte(s[i:], ')')
				if closing < 0 {
					return sel, fmt.Errorf("unterminated pseudo in %q", s)
				}
				n, err := strconv.Atoi(strings.TrimSpace(s[i+len(":nth-child(") : i+closing]))
				if err != nil {
					return sel, fmt.Errorf("bad nth-child in %q: %w", s, err)
				}
				sel.nthChild = n
				i += closing + 1
			default:
				// Незнакомые псевдоклассы (hover, focus) игнорируем до скобки/конца
				j := i + 1
				for j < len(s) && isNameChar(s[j]) {
					j++
				}
				if j < len(s) && s[j] == '(' {
					closing := strings.IndexByte(s[j:], ')')
					if closing < 0 {
						return sel, fmt.Errorf("unterminated pseudo in %q", s)
					}
					j += closing + 1
				}
				i = j
			}
		default:
			return sel, fmt.Errorf("unexpected character %q in selector %q", s[i], s)
		}
	}

	return sel, nil
}

// parseAttrMatcher разбирает содержимое [...]
func parseAttrMatcher(s string) (attrMatcher, error) {
	s = strings.TrimSpace(s)
	for _, op := range []string{"*=", "^=", "="} {
		if idx := strings.Index(s, op); idx >= 0 {
			return attrMatcher{
				name:  strings.ToLower(strings.TrimSpace(s[:idx])),
				op:    op,
				value: unquote(strings.TrimSpace(s[idx+len(op):])),
			}, nil
		}
	}
	if s == "" {
		return attrMatcher{}, fmt.Errorf("empty attribute selector")
	}
	return attrMatcher{name: strings.ToLower(s)}, nil
}

// matchSimple проверяет элемент против простого селектора.
// nthIndex - позиция элемента среди element-соседей (1-based).
func (sel simpleSelector) match(e *Element, nthIndex int) bool {
	if sel.tag != "" && sel.tag != e.Tag {
		return false
	}
	if sel.id != "" && e.Attr("id") != sel.id {
		return false
	}
	for _, class := range sel.classes {
		if !hasClass(e.Attr("class"), class) {
			return false
		}
	}
	for _, m := range sel.attrs {
		val, present := "", false
		if e.Attrs != nil {
			val, present = e.Attrs[m.name]
		}
		switch m.op {
		case "":
			if !present {
				return false
			}
		case "=":
			if val != m.value {
				return false
			}
		case "*=":
			if !strings.Contains(strings.ToLower(val), strings.ToLower(m.value)) {
				return false
			}
		case "^=":
			if !strings.HasPrefix(strings.ToLower(val), strings.ToLower(m.value)) {
				return false
			}
		}
	}
	if sel.hasText != "" && !strings.Contains(strings.ToLower(e.Text), sel.hasText) {
		return false
	}
	if sel.nthChild != 0 && nthIndex != sel.nthChild {
		return false
	}
	return true
}

// splitTopLevel режет строку по разделителю, игнорируя его внутри
// скобок и кавычек
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	last := 0

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[last:i])
			last = i + 1
		}
	}
	parts = append(parts, s[last:])
	return parts
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func hasClass(classAttr, class string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == class {
			return true
		}
	}
	return false
}

func isNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_'
}

// stripHasText отделяет :has-text/:contains от части селектора,
// возвращая чистый CSS и текстовый фильтр. Используется chromedp-драйвером:
// браузеру уходит валидный CSS, фильтр по тексту применяется после.
func stripHasText(part string) (css, needle string) {
	lower := strings.ToLower(part)
	for _, pseudo := range []string{":has-text(", ":contains("} {
		idx := strings.Index(lower, pseudo)
		if idx < 0 {
			continue
		}
		closing := strings.IndexByte(part[idx:], ')')
		if closing < 0 {
			break
		}
		needle = strings.ToLower(unquote(part[idx+len(pseudo) : idx+closing]))
		css = part[:idx] + part[idx+closing+1:]
		return strings.TrimSpace(css), needle
	}
	return strings.TrimSpace(part), ""
}
