// Package query turns loosely typed search criteria into typed filters and
// orderings over a registry of columns.
//
// A registry declares, per public field name, the SQL expression backing it,
// its value type, whether matching is exact or substring, whether it is case
// insensitive, and whether the value is computed in memory rather than stored.
// Build validates criteria against the registry and returns a Filter and an
// Ordering that can render SQL for stored columns and evaluate rows in memory
// for computed ones.
//
// Predicates are always AND-ed. There is no OR and no nesting.
package query
