package detect

import (
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// TextPatternModifier alters how a field value is compared against
// expected rule values. Derived from the field selector suffix, e.g.
// fieldname|contains.
type TextPatternModifier int

const (
	// TextPatternNone means exact equality
	TextPatternNone TextPatternModifier = iota
	TextPatternContains
	TextPatternPrefix
	TextPatternSuffix
	TextPatternRegex
	TextPatternKeyword
)

func parseModifier(raw string) (TextPatternModifier, bool) {
	switch raw {
	case "contains":
		return TextPatternContains, true
	case "startswith":
		return TextPatternPrefix, true
	case "endswith":
		return TextPatternSuffix, true
	case "re":
		return TextPatternRegex, true
	default:
		return TextPatternNone, false
	}
}

// StringMatcher is an atomic pattern that could implement literal,
// substring, glob or regex matching
type StringMatcher interface {
	// StringMatch implements StringMatcher
	StringMatch(string) bool
}

// NewStringMatcher builds a matcher for a list of expected values,
// joined with logical disjunction, or conjunction when all is set.
// All comparisons are case-insensitive. An empty pattern list yields a
// matcher that never matches, so a malformed rule cannot match
// everything.
func NewStringMatcher(mod TextPatternModifier, all bool, patterns ...string) (StringMatcher, error) {
	matcher := make(StringMatchers, 0, len(patterns))
	for _, p := range patterns {
		switch mod {
		case TextPatternContains, TextPatternKeyword:
			matcher = append(matcher, ContainsPattern{Token: strings.ToLower(p)})
		case TextPatternPrefix:
			matcher = append(matcher, PrefixPattern{Token: strings.ToLower(p)})
		case TextPatternSuffix:
			matcher = append(matcher, SuffixPattern{Token: strings.ToLower(p)})
		case TextPatternRegex:
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, ErrInvalidRegex{Pattern: p, Err: err}
			}
			matcher = append(matcher, RegexPattern{Re: re})
		default:
			if strings.ContainsAny(p, "*?") {
				g, err := glob.Compile(escapeGlobMeta(strings.ToLower(p)))
				if err != nil {
					return nil, ErrInvalidGlob{Pattern: p, Err: err}
				}
				matcher = append(matcher, GlobPattern{Glob: g})
			} else {
				matcher = append(matcher, ContentPattern{Token: strings.ToLower(p)})
			}
		}
	}
	if all {
		return StringMatchersConj(matcher), nil
	}
	if len(matcher) == 1 {
		return matcher[0], nil
	}
	return matcher, nil
}

// StringMatchers holds multiple atomic matchers
// Patterns are meant to be list of possibilities
// thus, objects are joined with logical disjunction
type StringMatchers []StringMatcher

// StringMatch implements StringMatcher
func (s StringMatchers) StringMatch(msg string) bool {
	for _, m := range s {
		if m.StringMatch(msg) {
			return true
		}
	}
	return false
}

// StringMatchersConj is similar to StringMatchers but elements are
// joined with conjunction, i.e. all patterns must match
// used to implement the "all" specifier for contains selections
type StringMatchersConj []StringMatcher

// StringMatch implements StringMatcher
func (s StringMatchersConj) StringMatch(msg string) bool {
	for _, m := range s {
		if !m.StringMatch(msg) {
			return false
		}
	}
	return len(s) > 0
}

// ContentPattern is a token for exact content matching
// Token must be stored lowercased
type ContentPattern struct {
	Token string
}

// StringMatch implements StringMatcher
func (c ContentPattern) StringMatch(msg string) bool {
	return strings.ToLower(msg) == c.Token
}

// ContainsPattern matches a substring anywhere in the value
type ContainsPattern struct {
	Token string
}

// StringMatch implements StringMatcher
func (c ContainsPattern) StringMatch(msg string) bool {
	return strings.Contains(strings.ToLower(msg), c.Token)
}

// PrefixPattern implements the startswith modifier
type PrefixPattern struct {
	Token string
}

// StringMatch implements StringMatcher
func (c PrefixPattern) StringMatch(msg string) bool {
	return strings.HasPrefix(strings.ToLower(msg), c.Token)
}

// SuffixPattern implements the endswith modifier
type SuffixPattern struct {
	Token string
}

// StringMatch implements StringMatcher
func (c SuffixPattern) StringMatch(msg string) bool {
	return strings.HasSuffix(strings.ToLower(msg), c.Token)
}

// RegexPattern is for matching values with regular expressions
type RegexPattern struct {
	Re *regexp.Regexp
}

// StringMatch implements StringMatcher
func (r RegexPattern) StringMatch(msg string) bool {
	return r.Re.MatchString(msg)
}

// GlobPattern handles plain values carrying sigma * and ? wildcards
// Glob must be compiled from a lowercased pattern
type GlobPattern struct {
	Glob glob.Glob
}

// StringMatch implements StringMatcher
func (g GlobPattern) StringMatch(msg string) bool {
	return g.Glob.Match(strings.ToLower(msg))
}

// escapeGlobMeta escapes glob library syntax that carries no special
// meaning in sigma rules, leaving * and ? active. Backslash is a
// literal path separator in rule values, not an escape.
func escapeGlobMeta(p string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`[`, `\[`, `]`, `\]`,
		`{`, `\{`, `}`, `\}`,
	)
	return r.Replace(p)
}
