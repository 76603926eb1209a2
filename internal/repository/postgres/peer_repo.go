package postgres

import (
	"context"
	"errors"

	"github.com/and161185/smsrouter/internal/errs"
	"github.com/and161185/smsrouter/internal/model"
)

// PeerRepo implements PeerRepository using PostgreSQL.
type PeerRepo struct{ db *DB }

// NewPeerRepo constructs a peer repository.
func NewPeerRepo(db *DB) *PeerRepo { return &PeerRepo{db: db} }

// GetOrCreate resolves a peer by uri, inserting it on first contact.
// The upsert keys on the uri primary key, so concurrent first contacts
// from the same sender resolve to the same row.
func (r *PeerRepo) GetOrCreate(ctx context.Context, uri string) (*model.Peer, error) {
	const q = `
INSERT INTO peers (uri) VALUES ($1)
ON CONFLICT (uri) DO UPDATE SET uri = EXCLUDED.uri
RETURNING uri, user_id`
	var p model.Peer
	if err := r.db.Pool.QueryRow(ctx, q, uri).Scan(&p.URI, &p.UserID); err != nil {
		return nil, err
	}
	return &p, nil
}

// Get selects an existing peer by uri.
func (r *PeerRepo) Get(ctx context.Context, uri string) (*model.Peer, error) {
	const q = `SELECT uri, user_id FROM peers WHERE uri=$1`
	var p model.Peer
	if err := r.db.Pool.QueryRow(ctx, q, uri).Scan(&p.URI, &p.UserID); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	return &p, nil
}
