// Package engine wires C1-C8 into a single handle-struct, replacing the
// original's smlevel_0 global singletons per spec.md §9's design-notes
// table: a context constructed once and passed to (or borrowed by)
// every public-facing operation, rather than package-level globals.
package engine
