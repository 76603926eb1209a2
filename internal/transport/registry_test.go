package transport

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/smsrouter/internal/errs"
	"github.com/and161185/smsrouter/internal/model"
)

type stubTransport struct {
	*Base

	mu      sync.Mutex
	sent    []*model.OutgoingMessage
	sendErr error
	started int
	stopped int
}

func newStub(name string) *stubTransport {
	return &stubTransport{Base: NewBase(name, nil, nil, nil, zap.NewNop())}
}

func (s *stubTransport) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
	return nil
}

func (s *stubTransport) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
	return nil
}

func (s *stubTransport) Send(_ context.Context, msg *model.OutgoingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	k := newStub("kannel")
	require.NoError(t, r.Register(k))

	got, ok := r.Get("kannel")
	require.True(t, ok)
	require.Same(t, Transport(k), got)

	_, ok = r.Get("missing")
	require.False(t, ok)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(newStub("kannel")))
	err := r.Register(newStub("kannel"))
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestRegistry_RegisterEmptyName(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.Error(t, r.Register(newStub("")))
}

func TestRegistry_DispatchRoutesByPeerURI(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	kannel := newStub("kannel")
	email := newStub("email")
	require.NoError(t, r.Register(kannel))
	require.NoError(t, r.Register(email))

	r.Dispatch(context.Background(), &model.OutgoingMessage{ID: 1, PeerURI: "kannel://456"})
	r.Dispatch(context.Background(), &model.OutgoingMessage{ID: 2, PeerURI: "email://a@b.example"})

	require.Len(t, kannel.sent, 1)
	require.Equal(t, int64(1), kannel.sent[0].ID)
	require.Len(t, email.sent, 1)
	require.Equal(t, int64(2), email.sent[0].ID)
}

func TestRegistry_DispatchUnknownTransportIsLoggedOnly(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	// Must not panic: the message stays durably queued as unsent.
	r.Dispatch(context.Background(), &model.OutgoingMessage{ID: 1, PeerURI: "fax://456"})
}

func TestRegistry_DispatchSendErrorIsLoggedOnly(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	k := newStub("kannel")
	k.sendErr = errors.New("queue full")
	require.NoError(t, r.Register(k))

	r.Dispatch(context.Background(), &model.OutgoingMessage{ID: 1, PeerURI: "kannel://456"})
	require.Empty(t, k.sent)
}

func TestRegistry_StartAllStopAll(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	a := newStub("a")
	b := newStub("b")
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	require.NoError(t, r.StartAll(context.Background()))
	r.StopAll(context.Background())

	require.Equal(t, 1, a.started)
	require.Equal(t, 1, a.stopped)
	require.Equal(t, 1, b.started)
	require.Equal(t, 1, b.stopped)
}
