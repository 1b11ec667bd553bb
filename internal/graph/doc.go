// Package graph defines the records rule graphs are built from and the
// declarative layouts that describe them.
//
// Every record is little-endian, 8-byte aligned and starts with
//
//	[tag u16][sub u16][count u32]
//
// followed by fixed fields and an optional tail whose length is count.
// Records never hold Go pointers: references are Ptr values interpreted by
// a Space, which is an arena Region while a graph is live and a relocated
// buffer view once a cache is attached. Accessors only read through a Space,
// so the same code works on both.
//
// The generic Map and the Env frame chain are records too. They serve as the
// runtime variable environment and as the substitution table of the type
// checker, and travel through copies and caches like every other record.
package graph
