// Package traverse implements every graph walk once, against the
// declarative layouts of package graph: deep copy into a heap, promotion
// between heaps, serialization into a flat relocatable payload, relocation
// of such a payload, structural equality and memoization keys.
//
// All walks record a source record before following its fields, so
// shared records stay shared and cyclic graphs terminate.
package traverse
