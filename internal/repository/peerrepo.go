// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/smsrouter/internal/model"
)

// PeerRepository resolves transport URIs to peer records.
type PeerRepository interface {
	// GetOrCreate returns the peer for uri, creating it on first contact.
	// Concurrent calls for the same uri are safe; uniqueness is enforced
	// by the storage layer.
	GetOrCreate(ctx context.Context, uri string) (*model.Peer, error)
	// Get loads an existing peer by uri.
	Get(ctx context.Context, uri string) (*model.Peer, error)
}
