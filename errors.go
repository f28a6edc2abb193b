package detect

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrMissingDetection indicates missing detection field
type ErrMissingDetection struct{}

func (e ErrMissingDetection) Error() string { return "rule is missing detection field" }

// ErrEmptyDetection indicates a detection block with neither a
// selection mapping nor a keywords list, so the rule could never fire
type ErrEmptyDetection struct{}

func (e ErrEmptyDetection) Error() string {
	return "rule detection has no selection or keywords block"
}

// ErrMissingTitle indicates a rule definition without a title
type ErrMissingTitle struct{}

func (e ErrMissingTitle) Error() string { return "rule is missing title" }

// ErrInvalidRegex contextualizes broken regular expressions presented by the user
type ErrInvalidRegex struct {
	Pattern string
	Err     error
}

// Error implements error
func (e ErrInvalidRegex) Error() string {
	return fmt.Sprintf("/%s/ %s", e.Pattern, e.Err)
}

// ErrInvalidGlob contextualizes broken wildcard values
type ErrInvalidGlob struct {
	Pattern string
	Err     error
}

// Error implements error
func (e ErrInvalidGlob) Error() string {
	return fmt.Sprintf("glob |%s| %s", e.Pattern, e.Err)
}

// ErrInvalidModifier indicates an unknown field selector suffix
type ErrInvalidModifier struct {
	Field    string
	Modifier string
}

func (e ErrInvalidModifier) Error() string {
	return fmt.Sprintf("selection key %s has invalid modifier %s", e.Field, e.Modifier)
}

// ErrUnsupportedExpression indicates a detection value the parser
// cannot map to a selection or keyword construct, mostly a type issue
type ErrUnsupportedExpression struct {
	Msg  string
	Expr interface{}
}

func (e ErrUnsupportedExpression) Error() string {
	return fmt.Sprintf("unsupported detection expression, %s. Got |%+v| with type |%s|",
		e.Msg, e.Expr, reflect.TypeOf(e.Expr))
}

// ErrMissingConditionItem indicates that an identifier referenced in a
// condition expression has no matching block in the detection map
type ErrMissingConditionItem struct {
	Key string
}

func (e ErrMissingConditionItem) Error() string {
	return fmt.Sprintf("missing condition identifier %s", e.Key)
}

// ErrInvalidCondition indicates a condition expression syntax error
// from the rule writer
type ErrInvalidCondition struct {
	Condition string
	Msg       string
}

func (e ErrInvalidCondition) Error() string {
	return fmt.Sprintf("invalid condition [%s], %s", e.Condition, e.Msg)
}

// ErrParseYaml indicates rule file parsing error
type ErrParseYaml struct {
	Path string
	Err  error
}

func (e ErrParseYaml) Error() string {
	return fmt.Sprintf("file: %s; err: %s", e.Path, e.Err)
}

// Unwrap exposes the cause for errors.Is and errors.As
func (e ErrParseYaml) Unwrap() error { return e.Err }

// ErrBulkParseYaml collects per-file parse failures from a corpus
// load. Broken rules are expected at corpus scale, so individual
// errors are gathered and the caller decides whether the count is
// acceptable.
type ErrBulkParseYaml struct {
	Errs []ErrParseYaml
}

func (e ErrBulkParseYaml) Error() string {
	return fmt.Sprintf("got %d broken rule files", len(e.Errs))
}

// ErrRuleNotFound signals a rule id lookup miss to control plane callers
type ErrRuleNotFound struct {
	ID string
}

func (e ErrRuleNotFound) Error() string {
	return fmt.Sprintf("rule %s not found", e.ID)
}

// ErrNoRulesLoaded indicates a load that found no rule files at all
// under the configured directories
var ErrNoRulesLoaded = errors.New("no rule files in corpus directory")
