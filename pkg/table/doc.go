// Package table implements CAVE's embedded table engine: a small SQL
// subset (INSERT/SELECT/UPDATE/DELETE with comparison-based WHERE
// filters), an identity-optimizer logical planner, an in-memory row
// store backed by a write-ahead log, and the executor that ties the
// store together with RLS policy enforcement and realtime change events.
//
// The grammar is deliberately closed: no joins, no subqueries, no NOT,
// only AND/OR composition of column-vs-literal comparisons, plus a
// COUNT(*) aggregate on SELECT. A hand-rolled recursive-descent parser
// matches this grammar far more directly than adapting a general-purpose
// SQL dialect parser would.
package table
