// Package agent contains the core executor responsible for running atomic
// tasks under a token/cost budget. It owns the usage tracker for its lifetime,
// halts batch runs when the budget is exhausted, isolates per-task faults, and
// assembles the structured results returned to callers.
package agent
