package detect

import "testing"

type trueBranch struct{}

func (trueBranch) Match(*Event) bool { return true }

type falseBranch struct{}

func (falseBranch) Match(*Event) bool { return false }

func TestParseCondition(t *testing.T) {
	idents := map[string]Branch{
		"selection":  trueBranch{},
		"selection2": falseBranch{},
		"filter":     falseBranch{},
		"keywords":   trueBranch{},
	}
	cases := []struct {
		expr string
		want bool
	}{
		{"selection", true},
		{"filter", false},
		{"not filter", true},
		{"selection and not filter", true},
		{"selection and selection2", false},
		{"selection or selection2", true},
		{"selection2 or filter", false},
		// and binds tighter than or
		{"filter and selection or keywords", true},
		{"(filter or selection) and keywords", true},
		{"not (selection and keywords)", false},
		{"1 of selection*", true},
		{"all of selection*", false},
		{"1 of them", true},
		{"all of them", false},
		{"all of filter", false},
		{"NOT Filter", false}, // keywords fold case, identifiers do not
	}
	for _, c := range cases {
		if c.expr == "NOT Filter" {
			if _, err := parseCondition(c.expr, idents); err == nil {
				t.Fatalf("condition %q should fail on unknown identifier", c.expr)
			}
			continue
		}
		branch, err := parseCondition(c.expr, idents)
		if err != nil {
			t.Fatalf("condition %q: %s", c.expr, err)
		}
		if got := branch.Match(&Event{}); got != c.want {
			t.Fatalf("condition %q: got %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestParseConditionErrors(t *testing.T) {
	idents := map[string]Branch{"selection": trueBranch{}}
	cases := []string{
		"",
		"nosuch",
		"selection and",
		"selection or or selection",
		"(selection",
		"selection)",
		"1 selection",
		"all selection",
		"1 of nomatch*",
		"selection*",
		"selection | count() > 10",
	}
	for _, expr := range cases {
		if _, err := parseCondition(expr, idents); err == nil {
			t.Fatalf("condition %q should not parse", expr)
		}
	}
}
