// Package types implements Hindley–Milner style unification over graph
// Type records and the inference pass that annotates rule nodes.
//
// A Checker owns one heap and one substitution table. The table is an
// ordinary graph.Map keyed by "?N", so it is copied and cached like any
// other record. Type variable ids are monotonic per Checker.
//
// Unification failures are expected: CheckRuleSet records them per rule,
// marks the offending nodes with the error type and keeps going.
package types
