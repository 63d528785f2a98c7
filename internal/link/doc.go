// Package link owns the lifecycle of one point-to-point radio connection:
// a single-mutex state machine over at most one active worker (outbound
// connector, inbound acceptor, or framed channel), with cancellation done
// exclusively by closing the resource a blocked worker is waiting on.
package link
