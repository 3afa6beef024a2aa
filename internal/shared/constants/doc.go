// Package constants centralizes scanning limits and defaults shared across the module.
//
// Page budgets, redirect bounds, timeouts, and file permissions live here so the
// crawler, the lifecycle service, and cmd/ agree on the same values without
// introducing import cycles.
package constants
