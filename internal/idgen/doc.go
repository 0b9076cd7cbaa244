// Package idgen wraps UUID generation behind a stubbable function so tests
// can produce deterministic identifiers. Callers treat the returned value as
// an opaque string and must not rely on its format.
package idgen
