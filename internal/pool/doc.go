// Package pool owns the fleet's live bot connections.
//
// Each Item runs one bot: it dials the gateway, authenticates, writes
// the connection-assigned identity back to the store, and pumps inbound
// events through a per-item dedupe cache into the router. The Pool
// serializes all lifecycle operations under one lock, enforces the
// capacity ceiling, and restarts connections when credentials rotate.
package pool
