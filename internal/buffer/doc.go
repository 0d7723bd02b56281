// Package buffer implements the durable store-and-forward queue for
// messages that could not be delivered live.
//
// The queue is bounded by a byte ceiling; when an enqueue would push total
// occupancy past it, the oldest records are evicted first. Records survive
// process restarts because outages long enough to need a reconnect often
// span restarts too. Draining redelivers oldest-first with at-least-once
// semantics.
package buffer
