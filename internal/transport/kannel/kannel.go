// Package kannel implements the Kannel SMS gateway transport: an inbound
// HTTP webhook for messages and delivery reports, and an outbound sendsms
// call decoupled onto a background worker.
package kannel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/smsrouter/internal/errs"
	"github.com/and161185/smsrouter/internal/model"
	"github.com/and161185/smsrouter/internal/repository"
	"github.com/and161185/smsrouter/internal/transport"
)

// Kannel DLR status codes, delivered per the requested dlr-mask.
// 1: delivered to phone, 2: non-delivered to phone, 4: queued on SMSC,
// 8: delivered to SMSC, 16: non-delivered to SMSC. With dlr-mask=3 only
// 1 and 2 ever arrive, so a simple success check suffices.
const (
	statusDelivered   = 1
	statusUndelivered = 2

	dlrMask = "3"
)

// Config holds gateway endpoints and tunables for one Kannel account.
type Config struct {
	SMSURL    string        // sendsms service URL
	DLRURL    string        // base URL the gateway calls back for delivery reports
	Timeout   time.Duration // outbound HTTP timeout
	QueueSize int           // send queue capacity
}

const (
	defaultTimeout   = 30 * time.Second
	defaultQueueSize = 256

	// stampTimeout bounds the sent_at write after the gateway accepted the
	// message. It is independent of the send budget: losing the stamp to a
	// nearly-exhausted send deadline would let the resend sweep deliver the
	// message twice.
	stampTimeout = 5 * time.Second
)

// Transport is the Kannel HTTP gateway transport.
type Transport struct {
	*transport.Base

	cfg      Config
	messages repository.MessageRepository
	client   *http.Client
	queue    chan *model.OutgoingMessage
	log      *zap.Logger
	wg       sync.WaitGroup

	now func() time.Time // overridable in tests
}

// New constructs a Kannel transport on top of the shared base plumbing.
func New(base *transport.Base, messages repository.MessageRepository, cfg Config, log *zap.Logger) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Transport{
		Base:     base,
		cfg:      cfg,
		messages: messages,
		client:   &http.Client{},
		queue:    make(chan *model.OutgoingMessage, cfg.QueueSize),
		log:      log,
		now:      time.Now,
	}
}

// Start spawns the send worker. Exactly one worker drains the queue; it
// exits when ctx is cancelled.
func (t *Transport) Start(ctx context.Context) error {
	t.wg.Add(1)
	go t.sendLoop(ctx)
	return nil
}

// Stop waits for the send worker to exit. Sends already in flight complete
// or fail naturally; they are not cancelled.
func (t *Transport) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send enqueues a persisted outgoing message for the worker. It never blocks:
// a full queue returns ErrQueueFull and the message stays durably queued in
// storage for the external resend sweep.
func (t *Transport) Send(_ context.Context, msg *model.OutgoingMessage) error {
	select {
	case t.queue <- msg:
		return nil
	default:
		return fmt.Errorf("kannel %q: %w", t.Name(), errs.ErrQueueFull)
	}
}

func (t *Transport) sendLoop(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case msg := <-t.queue:
			t.Deliver(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// Deliver performs the outbound sendsms call synchronously and stamps the
// send time on a 2xx response. Any failure leaves the message unsent; this
// layer never retries. The worker calls it for queued messages; the resend
// sweep calls it directly.
func (t *Transport) Deliver(ctx context.Context, msg *model.OutgoingMessage) {
	// An in-flight send is allowed to finish even when shutdown begins.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.Timeout)
	defer cancel()

	u, err := url.Parse(t.cfg.SMSURL)
	if err != nil {
		t.log.Error("bad sms_url", zap.String("transport", t.Name()), zap.Error(err))
		return
	}
	q := u.Query()
	q.Set("to", msg.Ident())
	q.Set("text", msg.Text)
	// The gateway substitutes %d with the DLR status and %T with the epoch
	// timestamp when it calls back.
	q.Set("dlr-url", fmt.Sprintf("%s?status=%%d&id=%d&timestamp=%%T", t.cfg.DLRURL, msg.ID))
	q.Set("dlr-mask", dlrMask)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		t.log.Error("build send request", zap.Int64("message_id", msg.ID), zap.Error(err))
		return
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Warn("gateway unreachable",
			zap.String("transport", t.Name()),
			zap.Int64("message_id", msg.ID),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		t.log.Warn("gateway rejected message",
			zap.Int64("message_id", msg.ID),
			zap.Int("status", resp.StatusCode),
		)
		return
	}

	stampCtx, stampCancel := context.WithTimeout(context.WithoutCancel(ctx), stampTimeout)
	defer stampCancel()
	if err := t.messages.MarkSent(stampCtx, msg.ID, t.now().UTC()); err != nil {
		t.log.Error("mark sent", zap.Int64("message_id", msg.ID), zap.Error(err))
		return
	}
	t.log.Info("message sent",
		zap.String("transport", t.Name()),
		zap.Int64("message_id", msg.ID),
	)
}
