package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/fx-router/internal/metrics"
)

// ruleSet is one immutable generation of loaded rules.
type ruleSet struct {
	rules    []Rule
	loadedAt time.Time
}

// AuditEntry records one rule evaluation for the audit trail.
type AuditEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	RuleType   RuleType  `json:"rule_type"`
	MatchedIDs []string  `json:"matched_ids"`
	Context    Context   `json:"context"`
}

const maxAuditEntries = 1000

// Engine owns the rule set. Loads replace the set atomically; readers
// capture the generation current at the start of their request, so a
// single request always evaluates against one consistent set.
type Engine struct {
	set     atomic.Pointer[ruleSet]
	writeMu sync.Mutex
	path    string
	loc     *time.Location
	logger  *zap.Logger

	auditMu sync.Mutex
	audits  []AuditEntry
}

// NewEngine loads rules from the JSON document at path. A missing file
// yields an empty rule set. tz names the single deployment timezone used
// for time-of-day criteria.
func NewEngine(path, tz string, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid rules timezone %q: %w", tz, err)
	}
	e := &Engine{path: path, loc: loc, logger: logger}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

type rulesDoc struct {
	Rules []Rule `json:"rules"`
}

// Reload re-reads the rules file and swaps the set in atomically. A rule
// that fails to decode rejects the whole load: a partially valid file
// never replaces a good set.
func (e *Engine) Reload() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	set := &ruleSet{loadedAt: time.Now().UTC()}
	if e.path != "" {
		data, err := os.ReadFile(e.path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("read rules: %w", err)
		}
		if err == nil {
			var doc rulesDoc
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("decode rules: %w", err)
			}
			set.rules = doc.Rules
		}
	}

	e.set.Store(set)
	metrics.SetLastReload("rules", set.loadedAt)
	e.logger.Info("rules.reloaded", zap.Int("count", len(set.rules)))
	return nil
}

// List returns all rules, optionally filtered by type.
func (e *Engine) List(ruleType RuleType) []Rule {
	set := e.set.Load()
	out := make([]Rule, 0, len(set.rules))
	for _, r := range set.rules {
		if ruleType != "" && r.RuleType != ruleType {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

// Add validates and appends a rule, persisting the new set.
func (e *Engine) Add(r Rule) error {
	if err := r.validate(); err != nil {
		return err
	}
	if (r.RuleType == TypeProviderSelection) != (r.Provider != nil) ||
		(r.RuleType == TypeMarginAdjustment) != (r.Margin != nil) {
		return fmt.Errorf("%w: rule %s action tag does not match its type", ErrInvalidRule, r.RuleID)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	cur := e.set.Load()
	for _, existing := range cur.rules {
		if existing.RuleID == r.RuleID {
			return fmt.Errorf("%w: rule %s already exists", ErrInvalidRule, r.RuleID)
		}
	}

	next := &ruleSet{rules: append(append([]Rule{}, cur.rules...), r), loadedAt: time.Now().UTC()}
	if err := e.persist(next); err != nil {
		return err
	}
	e.set.Store(next)
	return nil
}

// Delete removes a rule by ID.
func (e *Engine) Delete(ruleID string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	cur := e.set.Load()
	kept := make([]Rule, 0, len(cur.rules))
	found := false
	for _, r := range cur.rules {
		if r.RuleID == ruleID {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return fmt.Errorf("%w: rule %s not found", ErrInvalidRule, ruleID)
	}

	next := &ruleSet{rules: kept, loadedAt: time.Now().UTC()}
	if err := e.persist(next); err != nil {
		return err
	}
	e.set.Store(next)
	return nil
}

// Toggle flips a rule's enabled flag and returns the new state.
func (e *Engine) Toggle(ruleID string) (bool, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	cur := e.set.Load()
	next := &ruleSet{rules: append([]Rule{}, cur.rules...), loadedAt: time.Now().UTC()}
	for i := range next.rules {
		if next.rules[i].RuleID == ruleID {
			next.rules[i].Enabled = !next.rules[i].Enabled
			if err := e.persist(next); err != nil {
				return false, err
			}
			e.set.Store(next)
			return next.rules[i].Enabled, nil
		}
	}
	return false, fmt.Errorf("%w: rule %s not found", ErrInvalidRule, ruleID)
}

func (e *Engine) persist(set *ruleSet) error {
	if e.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rulesDoc{Rules: set.rules}, "", "  ")
	if err != nil {
		return err
	}
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, e.path)
}

// Match returns the applicable rules of a type whose conditions hold for
// the context, sorted by priority descending. Evaluation is read-only and
// deterministic for the set generation captured at entry. A rule that
// panics during evaluation is skipped; the request always completes.
func (e *Engine) Match(ruleType RuleType, ctx Context, now time.Time) []Rule {
	set := e.set.Load()
	e.ensureTimeOfDay(ctx, now)

	var matched []Rule
	for _, r := range set.rules {
		if r.RuleType != ruleType || !r.ApplicableAt(now) {
			continue
		}
		if e.safeEval(r, ctx) {
			matched = append(matched, r)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].RuleID < matched[j].RuleID
	})

	e.recordAudit(ruleType, matched, ctx)
	return matched
}

func (e *Engine) safeEval(r Rule, ctx Context) (result bool) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("rules.evaluation_panic",
				zap.String("rule_id", r.RuleID),
				zap.Any("panic", rec))
			metrics.IncError("rules", "evaluation_panic")
			result = false
		}
	}()
	return evalConditions(r.Conditions, ctx)
}

// ensureTimeOfDay derives time_of_day from now in the deployment zone
// when the caller did not supply one.
func (e *Engine) ensureTimeOfDay(ctx Context, now time.Time) {
	if _, ok := ctx["time_of_day"]; !ok {
		ctx["time_of_day"] = now.In(e.loc).Format("15:04")
	}
}

func (e *Engine) recordAudit(ruleType RuleType, matched []Rule, ctx Context) {
	ids := make([]string, len(matched))
	for i, r := range matched {
		ids[i] = r.RuleID
	}

	e.auditMu.Lock()
	e.audits = append(e.audits, AuditEntry{
		Timestamp:  time.Now().UTC(),
		RuleType:   ruleType,
		MatchedIDs: ids,
		Context:    ctx,
	})
	if len(e.audits) > maxAuditEntries {
		e.audits = e.audits[len(e.audits)-maxAuditEntries:]
	}
	e.auditMu.Unlock()
}

// AuditTrail returns the most recent evaluation records.
func (e *Engine) AuditTrail(limit int) []AuditEntry {
	e.auditMu.Lock()
	defer e.auditMu.Unlock()
	if limit <= 0 || limit > len(e.audits) {
		limit = len(e.audits)
	}
	out := make([]AuditEntry, limit)
	copy(out, e.audits[len(e.audits)-limit:])
	return out
}

// ProviderDecision is the folded outcome of the matching provider rules.
type ProviderDecision struct {
	PreferredCounts   map[string]int
	Excluded          map[string]bool
	ObjectiveOverride string
	ForceProvider     string
	MatchedIDs        []string
}

// ProviderDecision folds PROVIDER_SELECTION rule actions in priority
// order. Preferences accumulate per rule; exclusions union; scalar
// overrides follow last-writer-wins across the fold.
func (e *Engine) ProviderDecision(ctx Context, now time.Time) ProviderDecision {
	d := ProviderDecision{
		PreferredCounts: make(map[string]int),
		Excluded:        make(map[string]bool),
	}
	for _, r := range e.Match(TypeProviderSelection, ctx, now) {
		act := r.Provider
		d.MatchedIDs = append(d.MatchedIDs, r.RuleID)
		for _, p := range act.PreferredProviders {
			d.PreferredCounts[p]++
		}
		for _, p := range act.ExcludedProviders {
			d.Excluded[p] = true
		}
		if act.RoutingObjectiveOverride != "" {
			d.ObjectiveOverride = act.RoutingObjectiveOverride
		}
		if act.ForceProvider != "" {
			d.ForceProvider = act.ForceProvider
		}
	}
	return d
}

// MarginDecision is the folded outcome of the matching margin rules.
type MarginDecision struct {
	BaseOverride   *float64
	AdditionalBps  float64
	TierMultiplier *float64
	MinBps         *float64
	MaxBps         *float64
	MatchedIDs     []string
}

// MarginDecision folds MARGIN_ADJUSTMENT rule actions in priority order.
// Additional margins accumulate; overrides follow last-writer-wins.
func (e *Engine) MarginDecision(ctx Context, now time.Time) MarginDecision {
	var d MarginDecision
	for _, r := range e.Match(TypeMarginAdjustment, ctx, now) {
		act := r.Margin
		d.MatchedIDs = append(d.MatchedIDs, r.RuleID)
		if act.BaseMarginOverride != nil {
			d.BaseOverride = act.BaseMarginOverride
		}
		d.AdditionalBps += act.AdditionalMarginBps
		if act.TierAdjustmentMultiplier != nil {
			d.TierMultiplier = act.TierAdjustmentMultiplier
		}
		if act.MinMarginBps != nil {
			d.MinBps = act.MinMarginBps
		}
		if act.MaxMarginBps != nil {
			d.MaxBps = act.MaxMarginBps
		}
	}
	return d
}
