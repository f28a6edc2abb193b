package detect

import (
	"fmt"
	"sort"
	"strings"
)

// Detection is the compiled condition logic of one rule. A rule
// matches when its keywords block matches, or when all selection
// blocks match, unless the definition declares an explicit condition
// expression combining them otherwise.
type Detection struct {
	// Condition holds the raw expression when one was declared
	Condition string

	idents map[string]Branch
	root   Branch
}

// Match implements Branch
func (d *Detection) Match(e *Event) bool {
	return d.root.Match(e)
}

// NewDetection compiles the raw detection block of a rule definition.
// A block with neither a selection mapping nor a keywords list is
// rejected here, at parse time, rather than silently never matching.
func NewDetection(raw map[string]interface{}) (*Detection, error) {
	d := &Detection{idents: make(map[string]Branch)}
	keywords := make(NodeSimpleOr, 0, 1)
	selections := make(NodeSimpleAnd, 0, len(raw))
	for name, expr := range raw {
		if name == "condition" {
			c, ok := expr.(string)
			if !ok {
				return nil, ErrInvalidCondition{
					Condition: fmt.Sprintf("%+v", expr),
					Msg:       "condition must be a single expression string",
				}
			}
			d.Condition = c
			continue
		}
		if strings.HasPrefix(name, "keyword") {
			kw, err := NewKeyword(expr)
			if err != nil {
				return nil, err
			}
			d.idents[name] = kw
			keywords = append(keywords, kw)
			continue
		}
		sel, err := NewSelectionBranch(expr)
		if err != nil {
			return nil, err
		}
		d.idents[name] = sel
		selections = append(selections, sel)
	}
	if len(keywords) == 0 && len(selections) == 0 {
		return nil, ErrEmptyDetection{}
	}
	if d.Condition != "" {
		root, err := parseCondition(d.Condition, d.idents)
		if err != nil {
			return nil, err
		}
		d.root = root
		return d, nil
	}
	switch {
	case len(keywords) > 0 && len(selections) > 0:
		d.root = &NodeOr{L: keywords.Reduce(), R: selections.Reduce()}
	case len(keywords) > 0:
		d.root = keywords.Reduce()
	default:
		d.root = selections.Reduce()
	}
	return d, nil
}

// Keyword is a container for substring patterns matched against the
// serialized event, joined by logical disjunction
type Keyword struct {
	S StringMatcher
}

// Match implements Branch
func (k Keyword) Match(e *Event) bool {
	return k.S.StringMatch(e.SearchBlob())
}

// NewKeyword builds a keyword matcher from a list of scalars or a
// single scalar
func NewKeyword(expr interface{}) (*Keyword, error) {
	var patterns []string
	switch val := expr.(type) {
	case []interface{}:
		patterns = castIfaceToString(val)
	case []string:
		patterns = val
	case string:
		patterns = []string{val}
	default:
		return nil, ErrUnsupportedExpression{
			Msg:  "keywords should be a scalar or list of scalars",
			Expr: expr,
		}
	}
	matcher, err := NewStringMatcher(TextPatternKeyword, false, patterns...)
	if err != nil {
		return nil, err
	}
	return &Keyword{S: matcher}, nil
}

// SelectionItem is one field condition within a selection block
type SelectionItem struct {
	Field   string
	Pattern StringMatcher
}

// Selection is a named block of field conditions joined with logical
// conjunction. Every field must satisfy its pattern for the block to
// match; fields absent from the event resolve to an empty string.
type Selection struct {
	Items []SelectionItem
}

// Match implements Branch
func (s *Selection) Match(e *Event) bool {
	for _, item := range s.Items {
		if !item.Pattern.StringMatch(e.Resolve(item.Field)) {
			return false
		}
	}
	return true
}

// NewSelectionBranch handles the selection root container, which is
// either a single mapping or a list of mappings meaning any may match
func NewSelectionBranch(expr interface{}) (Branch, error) {
	switch v := expr.(type) {
	case []interface{}:
		branches := make(NodeSimpleOr, 0, len(v))
		for _, item := range v {
			b, err := NewSelectionBranch(item)
			if err != nil {
				return nil, err
			}
			branches = append(branches, b)
		}
		if len(branches) == 0 {
			return nil, ErrUnsupportedExpression{
				Msg:  "selection list is empty",
				Expr: expr,
			}
		}
		return branches.Reduce(), nil
	case map[interface{}]interface{}:
		return newSelection(cleanUpInterfaceMap(v))
	case map[string]interface{}:
		return newSelection(v)
	case DynamicMap:
		return newSelection(v)
	default:
		return nil, ErrUnsupportedExpression{
			Msg:  "selection should be a mapping or list of mappings",
			Expr: expr,
		}
	}
}

func newSelection(expr map[string]interface{}) (*Selection, error) {
	sel := &Selection{Items: make([]SelectionItem, 0, len(expr))}
	// yaml maps lose definition order, sort for deterministic matching
	keys := make([]string, 0, len(expr))
	for key := range expr {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		field, mod, all, err := parseSelectionKey(key)
		if err != nil {
			return nil, err
		}
		matcher, err := NewStringMatcher(mod, all, expectedValues(expr[key])...)
		if err != nil {
			return nil, err
		}
		sel.Items = append(sel.Items, SelectionItem{Field: field, Pattern: matcher})
	}
	return sel, nil
}

// parseSelectionKey splits fieldname|modifier selectors. Absent
// modifier means exact match; contains|all requires every listed
// value as a substring.
func parseSelectionKey(key string) (field string, mod TextPatternModifier, all bool, err error) {
	if !strings.Contains(key, "|") {
		return key, TextPatternNone, false, nil
	}
	bits := strings.Split(key, "|")
	if len(bits) > 3 {
		return "", 0, false, ErrInvalidModifier{Field: key, Modifier: strings.Join(bits[1:], "|")}
	}
	mod, ok := parseModifier(bits[1])
	if !ok {
		return "", 0, false, ErrInvalidModifier{Field: key, Modifier: bits[1]}
	}
	if len(bits) == 3 {
		if bits[2] != "all" || mod != TextPatternContains {
			return "", 0, false, ErrInvalidModifier{Field: key, Modifier: strings.Join(bits[1:], "|")}
		}
		all = true
	}
	return bits[0], mod, all, nil
}

// expectedValues coerces scalar or list rule values to strings for
// comparison, lists meaning any value may match
func expectedValues(val interface{}) []string {
	switch v := val.(type) {
	case []interface{}:
		return castIfaceToString(v)
	case []string:
		return v
	default:
		return []string{stringify(v)}
	}
}

func castIfaceToString(items []interface{}) []string {
	tx := make([]string, 0, len(items))
	for _, val := range items {
		tx = append(tx, stringify(val))
	}
	return tx
}
