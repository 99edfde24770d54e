// Package engine implements the latch hysteresis substrate.
//
// A Machine classifies a stream of pre-scored sensor frames into one of six
// lifecycle states. It knows nothing about gestures: rules pair a from/to
// state with an Evaluator, thresholds, a dwell duration, a priority and an
// inhibition list, and the lifecycle package wires the canonical six.
//
// FRAME PROCESSING:
//
// Every frame runs the same steps in the same order:
//  1. Compute elapsed time against the timestamp high-water mark
//  2. Coast timeout: a coasting machine that exceeded the policy timeout
//     clears every dwell and returns to IDLE
//  3. Signal loss: confidence below the coast entry threshold moves an
//     active state into its *_COAST shadow, dwell preserved
//  4. Snaplock: confidence at or above the recovery threshold moves a coast
//     state back to its active state, dwell preserved
//  5. Rule evaluation: inhibition first, then dwell accumulation (+delta when
//     hot, -2*delta otherwise, floored at zero)
//  6. Tie-break: highest priority, then earliest registration
//  7. State entry: active-to-active transitions zero the dwell of every rule
//     leaving the new state
//
// Steps 2 to 4 end the frame when they fire, so a frame causes at most one
// state change.
//
// DETERMINISM:
//
// Transitions are stamped from a logical Clock and identified by a content
// hash (ir.TransitionID). Feeding the same frames to a machine with the same
// rules and session id reproduces the same transitions, which is what the
// trace store and the replay command rely on.
package engine
