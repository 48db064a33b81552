// Package runctx records the hierarchical execution log of a routine run.
//
// A Tree is an arena of nodes addressed by id, each holding a parent id and
// an append-only list of log entries. The engine allocates one root per
// routine run; the routine adds a child per task and the task adds children
// for its job and condition calls. Export turns the arena into the nested
// ExecutionLog shape consumed by timeline views and persisted with the run.
//
// A nil *Node is valid and discards everything, so jobs and conditions can
// be exercised without a tree.
package runctx
