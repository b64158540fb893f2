// Package dispatch runs one transform request from start to finish.
//
// A Core owns the per-request template INIT, RESOLVE_TRANSFORM, EXECUTE,
// and RESPOND. The three request shapes (a synchronous HTTP upload, an
// asynchronous TransformRequest message, and a health probe) differ only
// in their Hooks: where the source comes from, where the target goes, and
// what happens on success or failure. Every path through Handle removes
// the temporary files the request created and leaves caller-supplied
// files alone.
//
// Transform implementations are collected once at startup into an
// immutable Implementations map. CheckImplementations compares that map
// with the merged catalog so a deployment that declares a transformer it
// cannot run fails before serving traffic.
package dispatch
