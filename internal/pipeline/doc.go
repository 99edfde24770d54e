// Package pipeline drives one hysteresis lifecycle per tracked entity from
// a single goroutine.
//
// Producers call Enqueue from any goroutine; Run drains the queue in FIFO
// order. The first event that names an entity creates its lifecycle and a
// new session. With a store attached, every accepted input is recorded
// together with the transitions it caused, and Replay can re-execute the
// session later to prove the run was deterministic.
package pipeline
