package repository

import (
	"context"
	"time"

	"github.com/and161185/smsrouter/internal/model"
)

// MessageRepository persists the message flow: incoming envelopes, classified
// forms, outgoing replies and delivery reports. Each mutation is individually
// atomic; the router and transports layer no locking on top.
type MessageRepository interface {
	// CreateIncoming inserts an incoming envelope and fills in its ID.
	CreateIncoming(ctx context.Context, msg *model.IncomingMessage) error
	// CreateForm inserts a classified form and fills in its ID.
	CreateForm(ctx context.Context, form *model.Form) error
	// CreateOutgoing inserts an outgoing message and fills in its ID.
	// The message is durably queued from this point on.
	CreateOutgoing(ctx context.Context, msg *model.OutgoingMessage) error
	// GetOutgoing loads an outgoing message by ID.
	GetOutgoing(ctx context.Context, id int64) (*model.OutgoingMessage, error)
	// MarkSent stamps the send time once the gateway accepted the message.
	// A message already stamped is left untouched.
	MarkSent(ctx context.Context, id int64, at time.Time) error
	// ConfirmDelivery records a delivery report and, when delivered is true,
	// stamps the outgoing message's delivery time.
	//
	// Errors: ErrNotFound for an unknown id, ErrNotSent when the message was
	// never handed to the gateway, ErrAlreadyDelivered on a repeat
	// confirmation.
	ConfirmDelivery(ctx context.Context, id int64, status int, at time.Time, delivered bool) error
	// ListUnsent returns persisted-but-unsent outgoing messages, oldest
	// first, for the external resend sweep.
	ListUnsent(ctx context.Context, limit int) ([]*model.OutgoingMessage, error)
}
