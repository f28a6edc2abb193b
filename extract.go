package detect

import (
	"regexp"
	"strings"
)

// Extractor recognizes a fixed message shape and pulls structured
// facts out of it. Extracted fields are merged into the event field
// space under the extractor namespace before rules are evaluated, so
// ordinary selections can match on them.
type Extractor interface {
	// Name is the namespace the extracted fields are merged under
	Name() string
	// Extract returns structured fields on a recognized message shape,
	// false otherwise. Unrecognized shapes are not an error.
	Extract(message string) (DynamicMap, bool)
}

// ipsAlertPattern covers intrusion prevention alert lines of the form
// IPS Alert 1001: Critical Threat. Signature SQL Injection Attempt.
// From: 192.168.1.100, to: 10.0.0.5, protocol: TCP
var ipsAlertPattern = regexp.MustCompile(
	`(?i)IPS Alert (\S+): (.+?)\. Signature (.+?)\. From: ([^,]+), to: ([^,]+), protocol: (\S+)`)

// IPSExtractor parses intrusion prevention alert messages
type IPSExtractor struct{}

// Name implements Extractor
func (IPSExtractor) Name() string { return "ips_alert_info" }

// Extract implements Extractor
func (IPSExtractor) Extract(message string) (DynamicMap, bool) {
	groups := ipsAlertPattern.FindStringSubmatch(message)
	if groups == nil {
		return nil, false
	}
	alertType := strings.TrimSpace(groups[2])
	signature := strings.TrimSpace(groups[3])
	return DynamicMap{
		"alert_id":   groups[1],
		"alert_type": alertType,
		"signature":  signature,
		"src":        strings.TrimSpace(groups[4]),
		"dst":        strings.TrimSpace(groups[5]),
		"protocol":   strings.TrimSuffix(groups[6], "."),
		"severity":   ipsSeverity(alertType + " " + signature),
	}, true
}

// ipsSeverity derives alert severity from keyword presence in the
// alert and signature text, strongest keyword wins
func ipsSeverity(text string) string {
	text = strings.ToLower(text)
	switch {
	case strings.Contains(text, "critical"):
		return "critical"
	case strings.Contains(text, "high"):
		return "high"
	case strings.Contains(text, "low"):
		return "low"
	default:
		return "medium"
	}
}

// cefPattern covers Common Event Format headers
// CEF:Version|Device Vendor|Device Product|Device Version|Signature ID|Name|Severity|Extension
var cefPattern = regexp.MustCompile(
	`^CEF:(\d+)\|([^|]*)\|([^|]*)\|([^|]*)\|([^|]*)\|([^|]*)\|([^|]*)\|(.*)$`)

// CEFExtractor parses Common Event Format log lines as produced by
// most commercial network appliances
type CEFExtractor struct{}

// Name implements Extractor
func (CEFExtractor) Name() string { return "cef" }

// Extract implements Extractor
func (CEFExtractor) Extract(message string) (DynamicMap, bool) {
	groups := cefPattern.FindStringSubmatch(message)
	if groups == nil {
		return nil, false
	}
	return DynamicMap{
		"cef_version":    groups[1],
		"device_vendor":  groups[2],
		"device_product": groups[3],
		"device_version": groups[4],
		"signature_id":   groups[5],
		"name":           groups[6],
		"severity":       groups[7],
		"level":          cefSeverityLevel(groups[7]),
		"extensions":     map[string]interface{}(parseCEFExtensions(groups[8])),
	}, true
}

// parseCEFExtensions splits the trailing space separated key=value
// extension section
func parseCEFExtensions(ext string) DynamicMap {
	out := make(DynamicMap)
	var key, value string
	inValue := false
	for _, r := range ext {
		switch {
		case r == '=' && !inValue:
			key = strings.TrimSpace(key)
			inValue = true
		case r == ' ' && inValue:
			if key != "" && value != "" {
				out[key] = value
			}
			key, value = "", ""
			inValue = false
		case inValue:
			value += string(r)
		default:
			key += string(r)
		}
	}
	if key != "" && value != "" {
		out[key] = value
	}
	return out
}

// cefSeverityLevel maps the 0-10 CEF severity scale onto log levels
func cefSeverityLevel(severity string) string {
	var n int
	for _, r := range severity {
		if r < '0' || r > '9' {
			return "INFO"
		}
		n = n*10 + int(r-'0')
	}
	switch {
	case severity == "":
		return "INFO"
	case n <= 3:
		return "INFO"
	case n <= 6:
		return "WARNING"
	case n <= 8:
		return "ERROR"
	default:
		return "CRITICAL"
	}
}
