// Package perm holds the authorization policy for berth.
//
// The store package persists raw (identity, scope, capability) rows; this
// package decides what they mean. HasCapability resolves admin bypass and
// fleet-wide (ScopeAll) widening; Grant and Revoke enforce who may change
// the permission state.
//
// # Grant policy
//
// Admins may grant or revoke anything. A non-admin needs
// manage_permissions covering the scope being changed, and may only hand
// out capabilities it itself holds in that scope. This closes the
// escalation path where a delegated permission manager mints capabilities
// (kill, most importantly) that it was never trusted with.
//
// # Capability independence
//
// No capability implies another. kill in particular is only ever satisfied
// by an explicit kill grant; granting the routine operational capabilities
// never implicitly grants the destructive one.
package perm
