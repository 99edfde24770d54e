// Package ir provides the shared data model for the latch substrate.
//
// This package contains type definitions and pure helpers only. Every other
// internal package imports ir; ir imports nothing internal, which keeps it the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - StateID is a closed set; anything outside ValidStates is rejected
//   - Timestamps and dwell durations are int64 milliseconds
//   - Confidences are float64 in [0,1] at runtime but are persisted and
//     hashed as integer basis points (canonical JSON forbids floats)
//   - All JSON tags use snake_case
package ir
