package transport

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/smsrouter/internal/errs"
	"github.com/and161185/smsrouter/internal/model"
)

// Registry owns the process's transports by name and dispatches persisted
// outgoing messages to the transport named in the target peer's URI. It
// implements router.Dispatcher.
type Registry struct {
	mu         sync.RWMutex
	transports map[string]Transport
	log        *zap.Logger
}

// NewRegistry constructs an empty transport registry.
func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{transports: map[string]Transport{}, log: log}
}

// Register adds a transport under its name.
func (r *Registry) Register(t Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if name == "" {
		return fmt.Errorf("registry: empty transport name")
	}
	if _, ok := r.transports[name]; ok {
		return fmt.Errorf("registry: transport %q: %w", name, errs.ErrAlreadyExists)
	}
	r.transports[name] = t
	return nil
}

// Get looks up a transport by name.
func (r *Registry) Get(name string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[name]
	return t, ok
}

// Dispatch hands a persisted outgoing message to its transport. Failures are
// logged, not propagated: the message is already durably queued and stays
// observable as unsent; resending is an external concern.
func (r *Registry) Dispatch(ctx context.Context, msg *model.OutgoingMessage) {
	name := msg.Transport()
	t, ok := r.Get(name)
	if !ok {
		r.log.Error("no transport for outgoing message",
			zap.String("transport", name),
			zap.Int64("message_id", msg.ID),
		)
		return
	}
	if err := t.Send(ctx, msg); err != nil {
		r.log.Error("send failed",
			zap.String("transport", name),
			zap.Int64("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

// StartAll starts every registered transport.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, t := range r.transports {
		if err := t.Start(ctx); err != nil {
			return fmt.Errorf("start transport %q: %w", name, err)
		}
	}
	return nil
}

// StopAll broadcasts shutdown to every registered transport so that any
// transport holding a long-lived resource can stop its run loop.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, t := range r.transports {
		if err := t.Stop(ctx); err != nil {
			r.log.Warn("transport stop", zap.String("transport", name), zap.Error(err))
		}
	}
}
