package engine

import (
	"slices"

	"github.com/roach88/latch/internal/ir"
)

// ruleEntry pairs a rule with its runtime dwell accumulator.
type ruleEntry struct {
	rule    Rule
	dwellMs int64
}

// registry holds rules in registration order.
//
// INVARIANTS:
//   - order lists every key of entries exactly once
//   - re-registering an id keeps its position in order and its dwellMs
//   - dwellMs >= 0
type registry struct {
	entries map[string]*ruleEntry
	order   []string
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*ruleEntry)}
}

func (r *registry) put(rule Rule) (replaced bool) {
	rule.Inhibits = slices.Clone(rule.Inhibits)
	if e, ok := r.entries[rule.ID]; ok {
		e.rule = rule
		return true
	}
	r.entries[rule.ID] = &ruleEntry{rule: rule}
	r.order = append(r.order, rule.ID)
	return false
}

func (r *registry) remove(id string) bool {
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	return true
}

// from returns the entries whose From equals state, in registration order.
func (r *registry) from(state ir.StateID) []*ruleEntry {
	var out []*ruleEntry
	for _, id := range r.order {
		if e := r.entries[id]; e.rule.From == state {
			out = append(out, e)
		}
	}
	return out
}

func (r *registry) zeroFrom(state ir.StateID) {
	for _, e := range r.entries {
		if e.rule.From == state {
			e.dwellMs = 0
		}
	}
}

func (r *registry) zeroAll() {
	for _, e := range r.entries {
		e.dwellMs = 0
	}
}

// Register adds a rule, or replaces the definition of an existing id.
//
// Replacing keeps the rule's dwell accumulator and its registration
// position, so a re-registered rule wins the same tie-breaks as before.
// Inhibits may name rules that are not (yet) registered; such targets
// are ignored at evaluation time.
func (m *Machine) Register(rule Rule) error {
	if err := ValidateRule(rule); err != nil {
		return err
	}
	replaced := m.reg.put(rule)
	m.logger.Debug("rule registered",
		"rule_id", rule.ID,
		"from", rule.From,
		"to", rule.To,
		"replaced", replaced,
	)
	return nil
}

// Unregister removes a rule and its dwell state.
// Returns false if the id was not registered.
func (m *Machine) Unregister(id string) bool {
	ok := m.reg.remove(id)
	if ok {
		m.logger.Debug("rule unregistered", "rule_id", id)
	}
	return ok
}

// PatchRule updates the tunable fields of a registered rule in place.
// The patched rule is validated as a whole; on error nothing changes.
func (m *Machine) PatchRule(id string, patch RulePatch) error {
	e, ok := m.reg.entries[id]
	if !ok {
		return newUnknownRuleError(id)
	}
	next := patch.Apply(e.rule)
	if err := ValidateRule(next); err != nil {
		return err
	}
	e.rule = next
	return nil
}

// RuleDwell returns the accumulated dwell of one rule in milliseconds.
func (m *Machine) RuleDwell(id string) (int64, bool) {
	e, ok := m.reg.entries[id]
	if !ok {
		return 0, false
	}
	return e.dwellMs, true
}

// RuleDwells returns a copy of every rule's accumulated dwell.
func (m *Machine) RuleDwells() map[string]int64 {
	out := make(map[string]int64, len(m.reg.entries))
	for id, e := range m.reg.entries {
		out[id] = e.dwellMs
	}
	return out
}

// Rule returns a registered rule by id.
func (m *Machine) Rule(id string) (Rule, bool) {
	e, ok := m.reg.entries[id]
	if !ok {
		return Rule{}, false
	}
	r := e.rule
	r.Inhibits = slices.Clone(r.Inhibits)
	return r, true
}

// Rules returns the registered rules in registration order.
func (m *Machine) Rules() []Rule {
	out := make([]Rule, 0, len(m.reg.order))
	for _, id := range m.reg.order {
		r := m.reg.entries[id].rule
		r.Inhibits = slices.Clone(r.Inhibits)
		out = append(out, r)
	}
	return out
}
