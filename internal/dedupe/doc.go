// Package dedupe drops operator instructions that are submitted twice.
//
// Dashboards and API clients may attach a request id to each instruction
// and retry on network errors. The cache remembers (turtle, request id)
// pairs for a window so a retried instruction is acknowledged without
// being queued a second time.
package dedupe
