package graph

import "github.com/google/uuid"

// NodeID identifies a node's control handle and render processor pair. IDs
// are minted once per node, on the control side, at construction time —
// never on the render hot path, the same discipline birdnet-go's audiocore
// package uses for its own uuid.New() call sites (request/transaction IDs
// generated off the audio path, not per block).
type NodeID uuid.UUID

// NewNodeID mints a fresh node identifier.
func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

// String returns the canonical UUID string form.
func (id NodeID) String() string {
	return uuid.UUID(id).String()
}
