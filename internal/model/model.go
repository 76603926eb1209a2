// Package model defines domain entities used by the router, transports and repositories.
package model

import (
	"strings"
	"time"
)

// Kind identifies a registered message kind.
type Kind string

// KindNotUnderstood is the pseudo-kind assigned when no grammar matches the input.
const KindNotUnderstood Kind = "not-understood"

// Fields carries grammar-extracted values, keyed by kind-specific names.
type Fields map[string]string

// PeerURI builds the canonical peer URI for a transport and ident pair.
func PeerURI(transport, ident string) string {
	return transport + "://" + ident
}

// splitURI returns the transport token and ident of a peer URI.
func splitURI(uri string) (string, string) {
	transport, ident, ok := strings.Cut(uri, "://")
	if !ok {
		return "", uri
	}
	return transport, ident
}

// Peer maps an external identity to an internal user.
//
// The URI identifies the remote endpoint in terms of the transport used and
// the unique identifier within that transport:
//
//	kannel://256703945965
//	dummy://bob
//
// Peers are created lazily by the transport layer the first time a given URI
// sends a message, and are never deleted by the core.
type Peer struct {
	URI    string // primary key, immutable
	UserID *int64 // nil while the peer is anonymous
}

// Transport returns the transport token of the peer URI.
func (p *Peer) Transport() string {
	t, _ := splitURI(p.URI)
	return t
}

// Ident returns the transport-local identity of the peer URI.
func (p *Peer) Ident() string {
	_, ident := splitURI(p.URI)
	return ident
}

// IncomingMessage is the raw envelope accepted by a transport.
type IncomingMessage struct {
	ID         int64
	PeerURI    string
	Text       string
	ReceivedAt time.Time
}

// Form is one classification extracted from an incoming message's text.
// One incoming message may yield several forms ("+hello +hello" yields two).
// A form is immutable once handled.
type Form struct {
	ID        int64
	MessageID int64
	Kind      Kind
	Fields    Fields
	Erroneous bool   // true when the grammar raised a format error
	Text      string // the consumed slice of the incoming text
	CreatedAt time.Time
}

// OutgoingMessage is a reply queued for delivery through a transport.
type OutgoingMessage struct {
	ID          int64
	PeerURI     string
	Text        string
	InReplyTo   *int64 // form that produced this reply, nil for unsolicited sends
	CreatedAt   time.Time
	SentAt      *time.Time // nil until the gateway accepted the message
	DeliveredAt *time.Time // nil until a success delivery report arrived
}

// Transport returns the transport token of the target peer URI.
func (m *OutgoingMessage) Transport() string {
	t, _ := splitURI(m.PeerURI)
	return t
}

// Ident returns the transport-local identity of the target peer URI.
func (m *OutgoingMessage) Ident() string {
	_, ident := splitURI(m.PeerURI)
	return ident
}

// Sent reports whether the message was handed to the gateway.
func (m *OutgoingMessage) Sent() bool { return m.SentAt != nil }

// Delivered reports whether delivery was confirmed.
func (m *OutgoingMessage) Delivered() bool { return m.DeliveredAt != nil }

// DeliveryReport is one delivery confirmation callback received from a gateway.
type DeliveryReport struct {
	ID         int64
	MessageID  int64 // outgoing message the report refers to
	Status     int   // gateway status code
	ReportedAt time.Time
}
