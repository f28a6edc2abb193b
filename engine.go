package detect

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Result is an alert record produced on positive rule match. Handed
// off as-is to the alert sink collaborator; retention is not the
// engine's concern.
type Result struct {
	ID        uuid.UUID `json:"id"`
	RuleID    string    `json:"rule_id"`
	RuleTitle string    `json:"rule_title"`
	Severity  Severity  `json:"severity"`
	Tags      []string  `json:"tags,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Event     *Event    `json:"matched_event"`
}

// Results is returned when a single event matches multiple rules
type Results []Result

// EngineConfig is used as argument to creating a new engine
type EngineConfig struct {
	// Store supplies the enabled rule corpus per evaluation
	Store *Store
	// Extractors run against the event message before rule evaluation,
	// enriching a working copy of the event
	Extractors []Extractor
	// Logger receives neutralized evaluation faults
	// Defaults to logrus standard logger.
	Logger *logrus.Logger
}

// Engine evaluates normalized events against the enabled rule corpus.
// Safe for concurrent use; the matching hot path is pure in-memory
// computation against a corpus snapshot.
type Engine struct {
	store      *Store
	extractors []Extractor
	logger     *logrus.Logger

	processed uint64
	matched   uint64
}

// NewEngine instantiates an Engine over a rule store
func NewEngine(c EngineConfig) (*Engine, error) {
	if c.Store == nil {
		return nil, fmt.Errorf("engine requires a rule store")
	}
	logger := c.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		store:      c.Store,
		extractors: c.Extractors,
		logger:     logger,
	}, nil
}

// EvalEvent runs all extractors against the event message, then
// evaluates every enabled rule and collects a Result per match. Rules
// match independently; one rule never short-circuits another. The
// caller's event is not mutated, enrichment happens on a working copy.
func (e *Engine) EvalEvent(ev *Event) Results {
	atomic.AddUint64(&e.processed, 1)
	working := ev
	for _, x := range e.extractors {
		if fields, ok := x.Extract(ev.Message); ok {
			working = working.Enrich(x.Name(), fields)
		}
	}
	now := time.Now().UTC()
	results := make(Results, 0)
	for _, rule := range e.store.Enabled() {
		if !e.evalRule(rule, working) {
			continue
		}
		results = append(results, Result{
			ID:        uuid.New(),
			RuleID:    rule.ID,
			RuleTitle: rule.Title,
			Severity:  rule.Level,
			Tags:      rule.Tags,
			Timestamp: now,
			Event:     working,
		})
	}
	atomic.AddUint64(&e.matched, uint64(len(results)))
	return results
}

// EvalBatch applies EvalEvent to a slice of events and flattens the
// results. No state is shared across events. Cancellation is best
// effort, remaining events are skipped but an in-flight evaluation
// runs to completion.
func (e *Engine) EvalBatch(ctx context.Context, events []*Event) (Results, error) {
	results := make(Results, 0)
	for _, ev := range events {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}
		results = append(results, e.EvalEvent(ev)...)
	}
	return results, nil
}

// evalRule neutralizes any panic from malformed detection logic that
// slipped past parsing. One bad rule must never abort evaluation of an
// event against the rest of the corpus.
func (e *Engine) evalRule(rule *Rule, ev *Event) (match bool) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.WithFields(logrus.Fields{
				"rule":  rule.ID,
				"title": rule.Title,
				"panic": rec,
			}).Error("rule evaluation fault, treated as no match")
			match = false
		}
	}()
	if !logsourceApplies(rule, ev) {
		return false
	}
	return rule.Detection.Match(ev)
}

// logsourceApplies pre-filters rules whose declared logsource names a
// product or service the event source does not mention
func logsourceApplies(rule *Rule, ev *Event) bool {
	if rule.Logsource.Product == "" && rule.Logsource.Service == "" {
		return true
	}
	source := strings.ToLower(ev.Resolve("source"))
	if source == "" {
		// events without source attribution skip the pre-filter
		return true
	}
	if p := strings.ToLower(rule.Logsource.Product); p != "" && !strings.Contains(source, p) {
		return false
	}
	if svc := strings.ToLower(rule.Logsource.Service); svc != "" && !strings.Contains(source, svc) {
		return false
	}
	return true
}

// EngineStats is a point-in-time counter snapshot
type EngineStats struct {
	Processed uint64 `json:"processed"`
	Matched   uint64 `json:"matched"`
}

// Stats returns counters accumulated since engine creation
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Processed: atomic.LoadUint64(&e.processed),
		Matched:   atomic.LoadUint64(&e.matched),
	}
}
