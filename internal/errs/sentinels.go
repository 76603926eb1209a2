// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/router/transport layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g. duplicate kind).
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotSent indicates a delivery report for a message that was never
	// handed to the gateway; points at a gateway/id mismatch.
	ErrNotSent = errors.New("message not sent")

	// ErrAlreadyDelivered indicates a repeated delivery confirmation.
	ErrAlreadyDelivered = errors.New("already delivered")

	// ErrQueueFull indicates the transport send queue is at capacity;
	// the message stays persisted and unsent.
	ErrQueueFull = errors.New("send queue full")
)
