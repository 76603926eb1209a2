// Package transport binds named channels to the router and owns the send
// path for outgoing replies.
package transport

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/smsrouter/internal/model"
	"github.com/and161185/smsrouter/internal/repository"
	"github.com/and161185/smsrouter/internal/router"
)

// Transport is one named channel to remote peers (e.g. one SMS gateway
// account). Instances are registered under a unique name; the registry
// routes persisted outgoing messages back to the transport that owns the
// target peer's URI.
type Transport interface {
	Name() string
	// Start brings up long-lived resources (workers, connections). The
	// context is cancelled at process shutdown; run loops must exit then.
	Start(ctx context.Context) error
	// Stop waits for the transport's resources to wind down.
	Stop(ctx context.Context) error
	// Send hands one persisted outgoing message to the medium. It must not
	// block on network I/O; transports that talk to slow gateways queue the
	// message for a background worker.
	Send(ctx context.Context, msg *model.OutgoingMessage) error
}

// Base carries the transport-side incoming path shared by all transports.
// Concrete transports embed it and override Send/Start/Stop as needed.
type Base struct {
	name     string
	peers    repository.PeerRepository
	messages repository.MessageRepository
	router   *router.Sequential
	log      *zap.Logger
}

// NewBase constructs the shared transport plumbing for the given name.
func NewBase(
	name string,
	peers repository.PeerRepository,
	messages repository.MessageRepository,
	rt *router.Sequential,
	log *zap.Logger,
) *Base {
	return &Base{name: name, peers: peers, messages: messages, router: rt, log: log}
}

// Name returns the registry name of the transport.
func (b *Base) Name() string { return b.name }

// Start is a no-op for transports without long-lived resources.
func (b *Base) Start(context.Context) error { return nil }

// Stop is a no-op for transports without long-lived resources.
func (b *Base) Stop(context.Context) error { return nil }

// Send leaves the message queued in storage only. Concrete transports
// override it with a real delivery path.
func (b *Base) Send(context.Context, *model.OutgoingMessage) error { return nil }

// Incoming accepts one message from a remote identity: it resolves or
// creates the peer for "<name>://<ident>", persists the incoming envelope
// and runs it through the router. It returns every classified form the
// message produced.
func (b *Base) Incoming(
	ctx context.Context, ident, text string, at time.Time,
) ([]*model.Form, error) {
	uri := model.PeerURI(b.name, ident)
	peer, err := b.peers.GetOrCreate(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("resolve peer %q: %w", uri, err)
	}

	msg := &model.IncomingMessage{PeerURI: uri, Text: text, ReceivedAt: at}
	if err := b.messages.CreateIncoming(ctx, msg); err != nil {
		return nil, fmt.Errorf("create incoming: %w", err)
	}

	b.log.Info("incoming message",
		zap.String("transport", b.name),
		zap.String("peer", uri),
		zap.Int64("message_id", msg.ID),
	)

	return b.router.Route(ctx, msg, peer)
}
