// Package assignment maps client connections to backend server ports.
//
// A Table hands out server ports from a fixed ServerPool in strict round-robin
// order. Each flow key is assigned once, on first sight, and keeps that port
// for the lifetime of the table. Entries are never evicted.
//
// All methods are safe for concurrent use; Resolve is serialized so that the
// rotation cursor never skips or repeats a pool slot.
package assignment
