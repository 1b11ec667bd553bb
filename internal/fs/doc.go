// Package fs abstracts the few filesystem calls the local blob store makes,
// so tests can inject write, sync and rename failures.
//
// Production code uses [Default]. Tests wrap it in a [FaultyFS]:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("CURRENT", fs.Fault{FailOnRename: true})
//
// Calls take no context.Context; local file operations cannot be
// interrupted at the syscall level.
package fs
