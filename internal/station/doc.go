// Package station is the operator-facing half of a tether node: it owns
// the link manager, turns received frames back into envelopes, answers
// pings, keeps a bounded message history, and serves the admin HTTP API.
package station
