// Package rls implements CAVE's row-level-security policy engine.
//
// A policy's predicate is a small JSON tree of comparisons ("eq", "neq",
// "gt", "lt", "gte", "lte") over a row column versus either a caller
// claim or a literal, combined with "and"/"or". Evaluation is fail-closed:
// a predicate referencing a column absent from the row, or comparing
// values of mismatched kinds, is a denial rather than an error — a
// malformed or stale policy must never leak rows instead of hiding them.
package rls
