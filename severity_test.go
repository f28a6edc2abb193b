package detect

import "testing"

func TestParseSeverity(t *testing.T) {
	cases := []struct {
		raw  string
		want Severity
		ok   bool
	}{
		{"informational", SeverityInformational, true},
		{"info", SeverityInformational, true},
		{"low", SeverityLow, true},
		{"medium", SeverityMedium, true},
		{"HIGH", SeverityHigh, true},
		{"Critical", SeverityCritical, true},
		{"", SeverityMedium, false},
		{"catastrophic", SeverityMedium, false},
	}
	for _, c := range cases {
		got, ok := ParseSeverity(c.raw)
		if got != c.want || ok != c.ok {
			t.Fatalf("ParseSeverity(%q): got %s %v, want %s %v", c.raw, got, ok, c.want, c.ok)
		}
	}
}

func TestSeverityString(t *testing.T) {
	pairs := map[Severity]string{
		SeverityInformational: "informational",
		SeverityLow:           "low",
		SeverityMedium:        "medium",
		SeverityHigh:          "high",
		SeverityCritical:      "critical",
	}
	for sev, want := range pairs {
		if sev.String() != want {
			t.Fatalf("%d: got %s, want %s", sev, sev.String(), want)
		}
	}
}

func TestSeverityMarshalJSON(t *testing.T) {
	b, err := SeverityHigh.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"high"` {
		t.Fatalf("got %s", b)
	}
}
