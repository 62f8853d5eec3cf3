// Package usage implements the accounting primitives behind budget control:
// token counters, derived cost estimation, an append-only usage event history,
// and the pricing table that converts token consumption into money. Trackers
// are owned by exactly one executor and expose immutable snapshots to callers.
package usage
