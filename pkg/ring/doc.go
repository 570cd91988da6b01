// Package ring places nodes on a consistent-hashing ring of Size positions
// and maps keys to the Replicas nodes that hold them.
//
// A key's replica set is the first node whose hash is at or past the key's
// position plus its two successors. Keys at or below the smallest node hash,
// or above the largest, wrap to the first three nodes.
package ring
