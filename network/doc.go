// Package network provides the message-passing layer of a fixed group of
// processes. Every process owns a Peer identified by its rank, the peers talk
// over HTTP (optionally mutual TLS) and every message carries the logical
// clock of the collective it belongs to.
//
// # Core Components
//
// Peer: Low-level node that posts and accepts messages for the current clock.
//
// P2P: Adapter that implements the collective.Communicator interface.
//
// Authority: Throwaway certificate authority used to secure one group.
//
// # Collectives
//
// Broadcast: The root sends the same buffer to every peer.
//
// AllToAll: Each peer sends its buffer to every peer.
//
// Scatter: The root sends a different chunk to every peer, chunk i to rank i.
//
// Gather: Each peer sends its buffer to the root.
//
// # Synchronization
//
// Every collective ends with a barrier: no peer leaves the call until every
// peer has entered it. A peer that never enters the call blocks the others
// until the configured timeout, or forever when the timeout is zero.
package network
