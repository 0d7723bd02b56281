// Package tag holds the metric registry and the deadband filter.
//
// The registry is built once from configuration and is read-only afterwards;
// changing the tag table requires rebuilding it. The deadband filter keeps a
// per-tag last-published-value cache and decides whether a fresh sample has
// moved far enough to be worth transmitting.
package tag
