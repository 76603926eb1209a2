package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/smsrouter/internal/errs"
	"github.com/and161185/smsrouter/internal/model"
)

// MessageRepo implements MessageRepository using PostgreSQL.
type MessageRepo struct{ db *DB }

// NewMessageRepo constructs a message repository.
func NewMessageRepo(db *DB) *MessageRepo { return &MessageRepo{db: db} }

// CreateIncoming inserts an incoming envelope.
func (r *MessageRepo) CreateIncoming(ctx context.Context, msg *model.IncomingMessage) error {
	const q = `
INSERT INTO incoming_messages (peer_uri, text, received_at)
VALUES ($1, $2, $3)
RETURNING id`
	return r.db.Pool.QueryRow(ctx, q, msg.PeerURI, msg.Text, msg.ReceivedAt).Scan(&msg.ID)
}

// CreateForm inserts a classified form. Fields are stored as jsonb.
func (r *MessageRepo) CreateForm(ctx context.Context, form *model.Form) error {
	fields := form.Fields
	if fields == nil {
		fields = model.Fields{}
	}
	blob, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	const q = `
INSERT INTO forms (message_id, kind, fields, erroneous, text)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`
	return r.db.Pool.QueryRow(ctx, q,
		form.MessageID, string(form.Kind), blob, form.Erroneous, form.Text,
	).Scan(&form.ID, &form.CreatedAt)
}

// CreateOutgoing inserts an outgoing message.
func (r *MessageRepo) CreateOutgoing(ctx context.Context, msg *model.OutgoingMessage) error {
	const q = `
INSERT INTO outgoing_messages (peer_uri, text, in_reply_to)
VALUES ($1, $2, $3)
RETURNING id, created_at`
	return r.db.Pool.QueryRow(ctx, q, msg.PeerURI, msg.Text, msg.InReplyTo).
		Scan(&msg.ID, &msg.CreatedAt)
}

// GetOutgoing selects an outgoing message by id.
func (r *MessageRepo) GetOutgoing(ctx context.Context, id int64) (*model.OutgoingMessage, error) {
	const q = `
SELECT id, peer_uri, text, in_reply_to, created_at, sent_at, delivered_at
FROM outgoing_messages WHERE id=$1`
	var m model.OutgoingMessage
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(
		&m.ID, &m.PeerURI, &m.Text, &m.InReplyTo, &m.CreatedAt, &m.SentAt, &m.DeliveredAt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	return &m, nil
}

// MarkSent stamps the send time. The guard keeps the stamp write-once; a
// message already marked sent is left untouched.
func (r *MessageRepo) MarkSent(ctx context.Context, id int64, at time.Time) error {
	const q = `
UPDATE outgoing_messages SET sent_at=$2
WHERE id=$1 AND sent_at IS NULL`
	tag, err := r.db.Pool.Exec(ctx, q, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either unknown id or already stamped; only the former is an error.
		if _, err := r.GetOutgoing(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ConfirmDelivery records a delivery report and, for a success report, stamps
// the outgoing message's delivery time. The stamp is guarded so that delivery
// is recorded at most once and only after the message was sent.
func (r *MessageRepo) ConfirmDelivery(
	ctx context.Context, id int64, status int, at time.Time, delivered bool,
) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const ins = `
INSERT INTO delivery_reports (message_id, status, reported_at)
VALUES ($1, $2, $3)`
	if _, err = tx.Exec(ctx, ins, id, status, at); err != nil {
		if isForeignKeyViolation(err) {
			return errs.ErrNotFound
		}
		return err
	}

	if !delivered {
		return nil
	}

	const upd = `
UPDATE outgoing_messages SET delivered_at=$2
WHERE id=$1 AND sent_at IS NOT NULL AND delivered_at IS NULL`
	tag, err := tx.Exec(ctx, upd, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		const sel = `SELECT sent_at, delivered_at FROM outgoing_messages WHERE id=$1`
		var sentAt, deliveredAt *time.Time
		if scanErr := tx.QueryRow(ctx, sel, id).Scan(&sentAt, &deliveredAt); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return scanErr
		}
		if deliveredAt != nil {
			return errs.ErrAlreadyDelivered
		}
		return errs.ErrNotSent
	}
	return nil
}

// ListUnsent returns outgoing messages never handed to the gateway, oldest first.
func (r *MessageRepo) ListUnsent(ctx context.Context, limit int) ([]*model.OutgoingMessage, error) {
	const q = `
SELECT id, peer_uri, text, in_reply_to, created_at, sent_at, delivered_at
FROM outgoing_messages
WHERE sent_at IS NULL
ORDER BY id ASC
LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.OutgoingMessage
	for rows.Next() {
		var m model.OutgoingMessage
		if err = rows.Scan(
			&m.ID, &m.PeerURI, &m.Text, &m.InReplyTo, &m.CreatedAt, &m.SentAt, &m.DeliveredAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
