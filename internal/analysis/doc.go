// Package analysis drives one APK analysis job end to end: it uploads the
// payload through a Transport, turns raw byte counters into upload telemetry,
// then polls the job status until the service reports a terminal state.
//
// All state lives in a single State value owned by the Orchestrator and is
// only changed through dispatch, which applies a pure reducer. Observers
// receive every new State in the order it was produced.
package analysis
