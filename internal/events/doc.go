// Package events fans key lifecycle events out to websocket subscribers.
//
// A Hub owns the subscriber set and runs a single loop that handles
// registration, removal and broadcast. Each subscriber has a write pump
// that drains its send buffer and a read pump that only tracks liveness;
// a subscriber whose buffer fills is disconnected rather than slowing the
// hub down.
package events
