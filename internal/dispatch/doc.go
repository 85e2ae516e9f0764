// Package dispatch is the orchestration core of berth.
//
// Given an identity and a parsed command, the Dispatcher resolves the
// target server list, checks authorization per target against the perm
// service, drives the container runtime, and returns an Outcome: an
// ordered sequence of per-server results. Denials and runtime failures are
// normal result values with partial-failure semantics - one target's fate
// never affects its siblings. Every authorization decision and runtime
// call is appended to the audit log before Execute returns.
//
// Per-server runtime calls within one invocation run concurrently with
// bounded parallelism; results are collected in request order regardless
// of completion order. Multiple invocations may execute concurrently, and
// no permission state is locked while a runtime call blocks.
package dispatch
