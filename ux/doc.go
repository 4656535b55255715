// Package ux drives one user turn through the UX state machine: parsing
// input, resolving intent, planning, previewing a diff, and — once the
// caller confirms — executing the plan with rollback on failure. It also
// hosts the Context Fusion service that feeds the Orchestrator and
// Provider Router a merged view of a session, and the Context Health
// Monitor that scores that view.
package ux
