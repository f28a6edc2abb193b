package detect

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// Logsource represents the logsource field in a rule definition
// It names the relevant event stream and is used for pre-filtering
// and category fallback
type Logsource struct {
	Product    string `yaml:"product" json:"product"`
	Category   string `yaml:"category" json:"category"`
	Service    string `yaml:"service" json:"service"`
	Definition string `yaml:"definition" json:"definition"`
}

// rawRule mirrors one yaml rule definition on disk, conforming to the
// sigma rule specification
// https://github.com/SigmaHQ/sigma-specification
type rawRule struct {
	ID          string                 `yaml:"id"`
	Title       string                 `yaml:"title"`
	Description string                 `yaml:"description"`
	Author      string                 `yaml:"author"`
	Status      string                 `yaml:"status"`
	Level       string                 `yaml:"level"`
	Category    string                 `yaml:"category"`
	Tags        []string               `yaml:"tags"`
	Logsource   Logsource              `yaml:"logsource"`
	Detection   map[string]interface{} `yaml:"detection"`
	Enabled     *bool                  `yaml:"enabled"`
}

// Rule is one compiled detection signature. All fields except Enabled
// are immutable after parse; Enabled is only mutated by the store
// under its lock.
type Rule struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Level       Severity  `json:"level"`
	Logsource   Logsource `json:"logsource"`
	Tags        []string  `json:"tags"`
	Path        string    `json:"path,omitempty"`
	Enabled     bool      `json:"enabled"`

	Detection *Detection `json:"-"`

	// original level text, kept so the loading collaborator can warn
	// about unrecognized values without aborting the rule
	rawLevel string
}

// HasRecognizedLevel reports whether the definition carried a level
// string that mapped onto the severity scale. A false return means
// Level fell back to medium.
func (r *Rule) HasRecognizedLevel() bool {
	if r.rawLevel == "" {
		return true
	}
	_, ok := ParseSeverity(r.rawLevel)
	return ok
}

// ParseRule parses a single yaml rule definition that is not backed by
// a file. Category falls back to declared logsource or rule category
// metadata.
func ParseRule(data []byte) (*Rule, error) {
	var raw rawRule
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Title == "" {
		return nil, ErrMissingTitle{}
	}
	if raw.Detection == nil {
		return nil, ErrMissingDetection{}
	}
	detection, err := NewDetection(raw.Detection)
	if err != nil {
		return nil, err
	}
	level, _ := ParseSeverity(raw.Level)
	return &Rule{
		ID:          raw.ID,
		Title:       raw.Title,
		Description: raw.Description,
		Category:    fallbackCategory(raw),
		Level:       level,
		Logsource:   raw.Logsource,
		Tags:        raw.Tags,
		Enabled:     raw.Enabled == nil || *raw.Enabled,
		Detection:   detection,
		rawLevel:    raw.Level,
	}, nil
}

// ParseRuleFile parses a rule definition from disk. Rules without an
// explicit id get the file name, matching how the corpus indexes
// unlabeled community rules. Category derives from the file location
// relative to root.
func ParseRuleFile(path, root string) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isMultipart(data) {
		return nil, errors.New("multipart yaml rules are not supported")
	}
	rule, err := ParseRule(data)
	if err != nil {
		return nil, err
	}
	rule.Path = path
	if rule.ID == "" {
		rule.ID = filepath.Base(path)
	}
	if cat := pathCategory(path, root); cat != "" {
		rule.Category = cat
	}
	return rule, nil
}

// pathCategory turns the rule location relative to the corpus root
// into a hierarchical category, e.g. windows/process_creation
func pathCategory(path, root string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	dir := filepath.Dir(rel)
	if dir == "." {
		return ""
	}
	return filepath.ToSlash(dir)
}

func fallbackCategory(raw rawRule) string {
	if raw.Category != "" {
		return raw.Category
	}
	if raw.Logsource.Category != "" {
		return raw.Logsource.Category
	}
	return "uncategorized"
}

func isMultipart(data []byte) bool {
	return !bytes.HasPrefix(data, []byte("---")) && bytes.Contains(data, []byte("\n---"))
}
