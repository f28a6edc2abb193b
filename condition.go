package detect

import (
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

type condToken int

const (
	condEOF condToken = iota
	condIdent
	condKeywordAnd
	condKeywordOr
	condKeywordNot
	condSepLpar
	condSepRpar
	condStOne
	condStAll
)

func (t condToken) String() string {
	switch t {
	case condIdent:
		return "IDENT"
	case condKeywordAnd:
		return "AND"
	case condKeywordOr:
		return "OR"
	case condKeywordNot:
		return "NOT"
	case condSepLpar:
		return "LPAR"
	case condSepRpar:
		return "RPAR"
	case condStOne:
		return "ONE OF"
	case condStAll:
		return "ALL OF"
	default:
		return "EOF"
	}
}

type condItem struct {
	T   condToken
	Val string
}

// lexCondition splits a condition expression into tokens. The token
// set covers identifiers, boolean keywords, grouping and the
// "1 of" / "all of" quantifiers over identifier patterns.
func lexCondition(expr string) ([]condItem, error) {
	if strings.Contains(expr, "|") {
		return nil, ErrInvalidCondition{
			Condition: expr,
			Msg:       "aggregation expressions are not supported",
		}
	}
	r := strings.NewReplacer("(", " ( ", ")", " ) ")
	words := strings.Fields(r.Replace(expr))
	items := make([]condItem, 0, len(words))
	for i := 0; i < len(words); i++ {
		w := words[i]
		switch strings.ToLower(w) {
		case "and":
			items = append(items, condItem{T: condKeywordAnd})
		case "or":
			items = append(items, condItem{T: condKeywordOr})
		case "not":
			items = append(items, condItem{T: condKeywordNot})
		case "(":
			items = append(items, condItem{T: condSepLpar})
		case ")":
			items = append(items, condItem{T: condSepRpar})
		case "1", "all":
			if i+1 >= len(words) || strings.ToLower(words[i+1]) != "of" {
				return nil, ErrInvalidCondition{
					Condition: expr,
					Msg:       "quantifier " + w + " must be followed by of",
				}
			}
			t := condStOne
			if strings.ToLower(w) == "all" {
				t = condStAll
			}
			items = append(items, condItem{T: t})
			i++
		default:
			items = append(items, condItem{T: condIdent, Val: w})
		}
	}
	return append(items, condItem{T: condEOF}), nil
}

// condParser is a recursive descent parser over lexed condition items
// Precedence from loose to tight: or, and, not
type condParser struct {
	items  []condItem
	pos    int
	expr   string
	idents map[string]Branch
}

// parseCondition compiles an explicit condition expression into a
// match tree over the named detection blocks
func parseCondition(expr string, idents map[string]Branch) (Branch, error) {
	items, err := lexCondition(expr)
	if err != nil {
		return nil, err
	}
	p := &condParser{items: items, expr: expr, idents: idents}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.T != condEOF {
		return nil, ErrInvalidCondition{
			Condition: expr,
			Msg:       "unexpected trailing token " + tok.T.String(),
		}
	}
	return root, nil
}

func (p *condParser) peek() condItem { return p.items[p.pos] }

func (p *condParser) next() condItem {
	tok := p.items[p.pos]
	if tok.T != condEOF {
		p.pos++
	}
	return tok
}

func (p *condParser) parseOr() (Branch, error) {
	branches := make(NodeSimpleOr, 0, 2)
	for {
		b, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		branches = append(branches, b)
		if p.peek().T != condKeywordOr {
			return branches.Reduce(), nil
		}
		p.next()
	}
}

func (p *condParser) parseAnd() (Branch, error) {
	branches := make(NodeSimpleAnd, 0, 2)
	for {
		b, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		branches = append(branches, b)
		if p.peek().T != condKeywordAnd {
			return branches.Reduce(), nil
		}
		p.next()
	}
}

func (p *condParser) parseUnary() (Branch, error) {
	switch tok := p.next(); tok.T {
	case condKeywordNot:
		b, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &NodeNot{B: b}, nil
	case condSepLpar:
		b, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.T != condSepRpar {
			return nil, ErrInvalidCondition{
				Condition: p.expr,
				Msg:       "missing closing parenthesis",
			}
		}
		return b, nil
	case condStOne, condStAll:
		return p.parseQuantified(tok.T == condStAll)
	case condIdent:
		if strings.ContainsAny(tok.Val, "*?") {
			return nil, ErrInvalidCondition{
				Condition: p.expr,
				Msg:       "wildcard identifier " + tok.Val + " requires a 1 of / all of prefix",
			}
		}
		b, ok := p.idents[tok.Val]
		if !ok {
			return nil, ErrMissingConditionItem{Key: tok.Val}
		}
		return b, nil
	default:
		return nil, ErrInvalidCondition{
			Condition: p.expr,
			Msg:       "unexpected token " + tok.T.String(),
		}
	}
}

// parseQuantified handles "1 of X" and "all of X" where X is "them", a
// literal identifier or a glob pattern over identifier names
func (p *condParser) parseQuantified(all bool) (Branch, error) {
	tok := p.next()
	if tok.T != condIdent {
		return nil, ErrInvalidCondition{
			Condition: p.expr,
			Msg:       "quantifier must be followed by an identifier, got " + tok.T.String(),
		}
	}
	matched, err := p.gatherIdents(tok.Val)
	if err != nil {
		return nil, err
	}
	if all {
		return NodeSimpleAnd(matched).Reduce(), nil
	}
	return NodeSimpleOr(matched).Reduce(), nil
}

func (p *condParser) gatherIdents(pattern string) ([]Branch, error) {
	names := make([]string, 0, len(p.idents))
	switch {
	case pattern == "them":
		for name := range p.idents {
			names = append(names, name)
		}
	case strings.ContainsAny(pattern, "*?"):
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, ErrInvalidGlob{Pattern: pattern, Err: err}
		}
		for name := range p.idents {
			if g.Match(name) {
				names = append(names, name)
			}
		}
	default:
		names = append(names, pattern)
	}
	if len(names) == 0 {
		return nil, ErrMissingConditionItem{Key: pattern}
	}
	// map iteration order is random, keep the tree deterministic
	sort.Strings(names)
	branches := make([]Branch, 0, len(names))
	for _, name := range names {
		b, ok := p.idents[name]
		if !ok {
			return nil, ErrMissingConditionItem{Key: name}
		}
		branches = append(branches, b)
	}
	return branches, nil
}
