package rules

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hookwarden/hookwarden/internal/auditlog"
	"github.com/hookwarden/hookwarden/internal/config"
	"github.com/hookwarden/hookwarden/internal/event"
	"github.com/hookwarden/hookwarden/internal/pattern"
)

// Engine evaluates hook events against the loaded rule set. It is safe
// for concurrent use; Reload swaps the rule set atomically under the
// evaluation lock.
type Engine struct {
	mu       sync.RWMutex
	rules    []CompiledRule
	loader   *Loader
	settings *config.Settings
	cache    *pattern.Cache
	audit    *auditlog.Writer
}

// New builds an engine from settings and performs the initial rule load.
func New(settings *config.Settings) (*Engine, error) {
	cache := pattern.NewCache(settings.PatternCacheSize)
	eng := &Engine{
		loader:   NewLoader(settings.RulesDir, cache),
		settings: settings,
		cache:    cache,
		audit:    auditlog.New(settings.AuditLog),
	}
	rules, err := eng.loader.Load()
	if err != nil {
		return nil, err
	}
	eng.rules = rules
	return eng, nil
}

// Reload re-reads the rules directory and swaps in the new rule set. The
// pattern cache is cleared first so stale compilations from removed rules
// do not linger.
func (eng *Engine) Reload() error {
	eng.cache.Clear()
	rules, err := eng.loader.Load()
	if err != nil {
		return err
	}
	eng.mu.Lock()
	eng.rules = rules
	eng.mu.Unlock()
	log.Info("Reloaded %d rules", len(rules))
	return nil
}

// RuleCount returns the number of currently loaded rules.
func (eng *Engine) RuleCount() int {
	eng.mu.RLock()
	defer eng.mu.RUnlock()
	return len(eng.rules)
}

// Evaluate runs one event through the full pipeline: schema check,
// per-rule enablement and matching, action execution, conflict
// resolution, audit. It always returns a decision; internal failures
// degrade per the configured fail policy rather than crashing the hook.
func (eng *Engine) Evaluate(ctx context.Context, e *event.Event) Decision {
	start := time.Now()

	// The schema layer is fail-open: a shape drift in the caller is logged
	// and evaluation proceeds, it never decides by itself.
	if eng.settings.SchemaCheck {
		if err := event.CheckSchema(e); err != nil {
			log.Warn("Event failed schema check, evaluating anyway: %v", err)
		}
	}

	payload, err := json.Marshal(e)
	if err != nil {
		// Cannot happen for a decoded event, but never panic in the hook
		// path.
		payload = []byte("{}")
	}

	cfg := ActionConfig{
		ScriptTimeout:   time.Duration(eng.settings.ScriptTimeoutSecs) * time.Second,
		FailPolicy:      eng.settings.FailPolicy,
		FieldFailPolicy: eng.settings.FieldFailPolicy,
	}

	eng.mu.RLock()
	rules := eng.rules
	eng.mu.RUnlock()

	var outcomes []Outcome
	for i := range rules {
		cr := &rules[i]
		if !ruleEnabled(cr, e) {
			continue
		}
		if !cr.Matches(e) {
			continue
		}
		atomic.AddInt64(&cr.Rule.HitCount, 1)
		outcomes = append(outcomes, ExecuteActions(ctx, cr, e, payload, cfg))
	}

	decision := Resolve(outcomes)

	// One record per evaluated event, whether or not anything matched.
	if eng.audit.Enabled() {
		if err := eng.audit.Append(newAuditRecord(e, outcomes, decision, time.Since(start))); err != nil {
			log.Warn("Failed to write audit record: %v", err)
		}
	}

	return decision
}

// MatchedRules returns the enabled rules that match the event, without
// executing any actions. Used by the explain subcommand.
func (eng *Engine) MatchedRules(e *event.Event) []*CompiledRule {
	eng.mu.RLock()
	rules := eng.rules
	eng.mu.RUnlock()

	var matched []*CompiledRule
	for i := range rules {
		cr := &rules[i]
		if ruleEnabled(cr, e) && cr.Matches(e) {
			matched = append(matched, cr)
		}
	}
	return matched
}

// Rules returns a snapshot of the loaded rule set.
func (eng *Engine) Rules() []CompiledRule {
	eng.mu.RLock()
	defer eng.mu.RUnlock()
	out := make([]CompiledRule, len(eng.rules))
	copy(out, eng.rules)
	return out
}
