package engine

import (
	"io"
	"log/slog"
	"math"

	"github.com/roach88/latch/internal/ir"
)

// Machine is the hysteresis state machine for one tracked entity.
//
// Each call to ProcessFrame runs the fixed step order: timestamp delta,
// coast timeout, signal loss, snaplock, rule evaluation, tie-break and
// state entry. At most one state change happens per frame.
//
// Machine is synchronous and not safe for concurrent use. Callers that
// track several entities keep one Machine per entity and drive them from
// a single goroutine (see the pipeline package).
type Machine struct {
	reg    *registry
	policy CoastPolicy

	state      ir.StateID
	stateSince int64

	// lastFrameMs is a high-water mark over frame timestamps.
	lastFrameMs int64
	seenFrame   bool

	coastElapsedMs int64

	clock     *Clock
	sessionID string
	logger    *slog.Logger
	observer  func(ir.Transition)
	last      *ir.Transition
}

// Option configures a Machine.
type Option func(*Machine)

// WithCoastPolicy sets the initial coast policy. New validates it.
func WithCoastPolicy(p CoastPolicy) Option {
	return func(m *Machine) {
		m.policy = p
	}
}

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver registers a callback invoked synchronously for every
// emitted state change, after the machine's state has been updated.
func WithObserver(fn func(ir.Transition)) Option {
	return func(m *Machine) {
		m.observer = fn
	}
}

// WithClock sets the sequence clock used to stamp transitions.
func WithClock(c *Clock) Option {
	return func(m *Machine) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithSessionID sets the session id carried by every transition.
func WithSessionID(id string) Option {
	return func(m *Machine) {
		m.sessionID = id
	}
}

// New creates a Machine in the baseline state with no rules.
// Returns a ConfigError if the configured coast policy is invalid.
func New(opts ...Option) (*Machine, error) {
	m := &Machine{
		reg:    newRegistry(),
		policy: DefaultCoastPolicy(),
		state:  ir.Baseline,
		clock:  NewClock(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.policy.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// State returns the current state.
func (m *Machine) State() ir.StateID {
	return m.state
}

// Snapshot returns the read-only view of the current state.
func (m *Machine) Snapshot() ir.Snapshot {
	return ir.SnapshotOf(m.state, m.stateSince)
}

// SessionID returns the id stamped on emitted transitions.
func (m *Machine) SessionID() string {
	return m.sessionID
}

// CoastElapsedMs returns the time spent in the current coast state.
// It is 0 whenever the machine is not coasting.
func (m *Machine) CoastElapsedMs() int64 {
	return m.coastElapsedMs
}

// LastTransition returns the most recent state change, if any.
func (m *Machine) LastTransition() (ir.Transition, bool) {
	if m.last == nil {
		return ir.Transition{}, false
	}
	return *m.last, true
}

// ProcessFrame advances the machine by one frame and returns the snapshot.
//
// Confidence values are clamped to [0,1], with NaN and ±Inf read as 0.
// A frame whose timestamp is older than the newest one seen contributes
// zero elapsed time and never inflates the next delta.
func (m *Machine) ProcessFrame(frame ir.SensorFrame) ir.Snapshot {
	step := m.advance(frame.TimestampMs)
	now := m.lastFrameMs
	conf := sanitize(frame.Confidence)

	if m.state.IsCoast() {
		m.coastElapsedMs = addMs(m.coastElapsedMs, step)
		if m.coastElapsedMs >= m.policy.TimeoutMs {
			m.reg.zeroAll()
			m.enter(ir.Baseline, ir.CauseCoastTimeout, "", now)
			return m.Snapshot()
		}
	}

	if !m.state.IsCoast() && conf < m.policy.ConfLow {
		if coast, ok := m.state.CoastOf(); ok {
			m.enter(coast, ir.CauseCoastEnter, "", now)
			return m.Snapshot()
		}
	}

	if m.state.IsCoast() && conf >= m.policy.ConfHigh {
		m.enter(m.state.ActiveOf(), ir.CauseSnaplock, "", now)
		return m.Snapshot()
	}

	m.evaluate(frame, step, now)
	return m.Snapshot()
}

// advance updates the timestamp high-water mark and returns the
// non-negative elapsed time to accumulate for this frame.
func (m *Machine) advance(ts int64) int64 {
	if !m.seenFrame {
		m.seenFrame = true
		m.lastFrameMs = ts
		return 0
	}
	if ts < m.lastFrameMs {
		m.logger.Debug("non-monotonic frame timestamp",
			"session_id", m.sessionID,
			"t", ts,
			"last_t", m.lastFrameMs,
		)
		return 0
	}
	delta := ts - m.lastFrameMs
	if delta < 0 {
		delta = math.MaxInt64
	}
	m.lastFrameMs = ts
	return delta
}

// evaluate runs inhibition, dwell accumulation and tie-break over the
// rules leaving the current state.
func (m *Machine) evaluate(frame ir.SensorFrame, step, now int64) {
	rules := m.reg.from(m.state)
	if len(rules) == 0 {
		return
	}

	hot := make([]bool, len(rules))
	for i, e := range rules {
		hot[i] = sanitize(e.rule.Evaluator.Evaluate(frame)) >= e.rule.ConfHigh
	}

	// Inhibition runs before accumulation. An inhibited rule is held at
	// zero for the whole frame, even if it is hot itself.
	inhibited := make(map[string]bool)
	for i, e := range rules {
		if !hot[i] {
			continue
		}
		for _, target := range e.rule.Inhibits {
			if t, ok := m.reg.entries[target]; ok {
				t.dwellMs = 0
				inhibited[target] = true
			}
		}
	}

	var winner *ruleEntry
	for i, e := range rules {
		switch {
		case inhibited[e.rule.ID]:
		case hot[i]:
			e.dwellMs = addMs(e.dwellMs, step)
		default:
			e.dwellMs = drainMs(e.dwellMs, step)
		}
		if !hot[i] || e.dwellMs < e.rule.DwellMs {
			continue
		}
		// Strict comparison keeps the earliest registered rule on ties.
		if winner == nil || e.rule.Priority > winner.rule.Priority {
			winner = e
		}
	}
	if winner == nil {
		return
	}

	winner.dwellMs = 0
	from, to := m.state, winner.rule.To
	if !from.IsCoast() && !to.IsCoast() {
		m.reg.zeroFrom(to)
	}
	if from == to {
		m.logger.Debug("rule reinforced state",
			"session_id", m.sessionID,
			"rule_id", winner.rule.ID,
			"state", from,
		)
		return
	}
	m.enter(to, ir.CauseRule, winner.rule.ID, now)
}

// enter moves the machine to state to and emits the transition.
func (m *Machine) enter(to ir.StateID, cause ir.TransitionCause, ruleID string, ts int64) {
	from := m.state
	m.state = to
	m.stateSince = ts
	if !to.IsCoast() || !from.IsCoast() {
		m.coastElapsedMs = 0
	}

	tr := ir.Transition{
		SessionID:   m.sessionID,
		Seq:         m.clock.Next(),
		Cause:       cause,
		RuleID:      ruleID,
		From:        from,
		To:          to,
		TimestampMs: ts,
	}
	id, err := ir.TransitionID(tr)
	if err != nil {
		m.logger.Error("failed to compute transition id", "error", err)
	}
	tr.ID = id
	m.last = &tr

	m.logger.Debug("state transition",
		"session_id", m.sessionID,
		"seq", tr.Seq,
		"cause", cause,
		"rule_id", ruleID,
		"from", from,
		"to", to,
		"t", ts,
	)
	if m.observer != nil {
		m.observer(tr)
	}
}

// addMs adds a non-negative step to a non-negative accumulator,
// saturating at math.MaxInt64.
func addMs(acc, step int64) int64 {
	if acc > math.MaxInt64-step {
		return math.MaxInt64
	}
	return acc + step
}

// drainMs removes twice step from acc, flooring at zero without
// computing 2*step.
func drainMs(acc, step int64) int64 {
	if step >= acc/2+acc%2 {
		return 0
	}
	return acc - 2*step
}
