package detect

import "testing"

func TestIPSExtractor(t *testing.T) {
	x := IPSExtractor{}
	if x.Name() != "ips_alert_info" {
		t.Fatalf("namespace: %s", x.Name())
	}
	fields, ok := x.Extract("IPS Alert 42: Exploit attempt. Signature Critical RCE. From: 10.0.0.1, to: 10.0.0.2, protocol: tcp")
	if !ok {
		t.Fatal("alert message not recognized")
	}
	want := map[string]string{
		"alert_id":   "42",
		"alert_type": "Exploit attempt",
		"signature":  "Critical RCE",
		"src":        "10.0.0.1",
		"dst":        "10.0.0.2",
		"protocol":   "tcp",
		"severity":   "critical",
	}
	for key, val := range want {
		if got := fields[key]; got != val {
			t.Fatalf("%s: got %v, want %s", key, got, val)
		}
	}
}

func TestIPSExtractorSeverity(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"IPS Alert 1: Critical Threat. Signature SQLi. From: 1.1.1.1, to: 2.2.2.2, protocol: TCP", "critical"},
		{"IPS Alert 2: Threat. Signature High Risk Scan. From: 1.1.1.1, to: 2.2.2.2, protocol: TCP", "high"},
		{"IPS Alert 3: Low noise. Signature Ping Sweep. From: 1.1.1.1, to: 2.2.2.2, protocol: ICMP", "low"},
		{"IPS Alert 4: Threat. Signature Odd Traffic. From: 1.1.1.1, to: 2.2.2.2, protocol: UDP", "medium"},
	}
	for _, c := range cases {
		fields, ok := IPSExtractor{}.Extract(c.message)
		if !ok {
			t.Fatalf("not recognized: %s", c.message)
		}
		if got := fields["severity"]; got != c.want {
			t.Fatalf("severity for %q: got %v, want %s", c.message, got, c.want)
		}
	}
}

func TestIPSExtractorUnrecognized(t *testing.T) {
	for _, message := range []string{
		"",
		"Failed password for root",
		"IPS Alert without the expected shape",
	} {
		if _, ok := (IPSExtractor{}).Extract(message); ok {
			t.Fatalf("recognized non-alert message: %q", message)
		}
	}
}

func TestCEFExtractor(t *testing.T) {
	x := CEFExtractor{}
	if x.Name() != "cef" {
		t.Fatalf("namespace: %s", x.Name())
	}
	fields, ok := x.Extract("CEF:0|Vendor|Firewall|1.0|100|Blocked Connection|7|src=10.0.0.1 dst=10.0.0.2 act=blocked")
	if !ok {
		t.Fatal("cef message not recognized")
	}
	want := map[string]string{
		"cef_version":    "0",
		"device_vendor":  "Vendor",
		"device_product": "Firewall",
		"device_version": "1.0",
		"signature_id":   "100",
		"name":           "Blocked Connection",
		"severity":       "7",
		"level":          "ERROR",
	}
	for key, val := range want {
		if got := fields[key]; got != val {
			t.Fatalf("%s: got %v, want %s", key, got, val)
		}
	}
	ext, ok := fields["extensions"].(map[string]interface{})
	if !ok {
		t.Fatalf("extensions: %T", fields["extensions"])
	}
	for key, val := range map[string]string{"src": "10.0.0.1", "dst": "10.0.0.2", "act": "blocked"} {
		if got := ext[key]; got != val {
			t.Fatalf("extension %s: got %v, want %s", key, got, val)
		}
	}
}

func TestCEFExtractorUnrecognized(t *testing.T) {
	for _, message := range []string{
		"",
		"not cef at all",
		"CEF:broken|too|few",
	} {
		if _, ok := (CEFExtractor{}).Extract(message); ok {
			t.Fatalf("recognized non-cef message: %q", message)
		}
	}
}

func TestCEFSeverityLevel(t *testing.T) {
	cases := []struct {
		severity string
		want     string
	}{
		{"0", "INFO"},
		{"3", "INFO"},
		{"4", "WARNING"},
		{"6", "WARNING"},
		{"7", "ERROR"},
		{"8", "ERROR"},
		{"9", "CRITICAL"},
		{"10", "CRITICAL"},
		{"", "INFO"},
		{"Unknown", "INFO"},
	}
	for _, c := range cases {
		if got := cefSeverityLevel(c.severity); got != c.want {
			t.Fatalf("severity %q: got %s, want %s", c.severity, got, c.want)
		}
	}
}
