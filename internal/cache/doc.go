// Package cache holds blocks of remote blobs in memory, so repeated loads
// of an unchanged snapshot do not refetch it.
//
// [LRUBlockCache] charges every cached block against a resource.Controller
// when one is given. [ShardedLRUBlockCache] spreads keys over 64 LRUs for
// concurrent readers.
package cache
