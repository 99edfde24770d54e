// Package harness runs scripted gesture scenarios against the real
// pipeline and checks what the lifecycle did.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: idle_to_ready
//	description: "An open palm held for the ready dwell latches READY"
//	entity: left            # optional, defaults to "default"
//	rules: ../rules          # optional CUE dir, defaults to the canonical six
//	config:                  # optional starting patch
//	  dwell_ready_ms: 100
//	steps:
//	  - label: open_palm     # 11 frames at t=0,10,...,100
//	    confidence: 0.9
//	    every: 10
//	    count: 11
//	  - force_coast: true    # at the cursor (t=110) unless at is given
//	  - configure: { coast_timeout_ms: 200 }
//	  - patch: { rule: ready_to_commit, dwell_ms: 40 }
//	assertions:
//	  - type: final_state
//	    state: READY_COAST
//	  - type: transition_order
//	    transitions: ["IDLE->READY", "READY->READY_COAST"]
//	  - type: transition_count
//	    cause: force_coast
//	    count: 1
//	  - type: state_at
//	    at: 100
//	    state: READY
//	  - type: dwell
//	    rule: idle_to_ready
//	    ms: 0
//
// # Determinism
//
// Every run uses a fresh in-memory store, sequential session ids derived
// from the scenario name and a frame clock starting at 0. The recorded
// session is replayed after the last step; a replay that diverges from
// the live run fails the scenario. Golden files hold the transition
// trace without ids, see RunWithGolden.
package harness
