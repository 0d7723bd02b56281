// Package publisher runs the periodic sampling loop: read every registered
// tag, gate it through the deadband filter, and hand approved values to the
// connection manager. Failed publishes are enqueued in the store-and-forward
// buffer instead of being dropped.
//
// One tag's sampler or publish failure never stops the loop; each tag is
// processed independently and errors are logged with the tag name.
package publisher
