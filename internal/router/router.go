// Package router implements the sequential parse-and-dispatch loop.
//
// One incoming message may contain several back-to-back commands; the router
// repeatedly parses the remaining text, persists each classified form and
// dispatches it to its kind's handler, strictly left to right. Handler
// defects are never swallowed here: they propagate to the transport boundary,
// which is the outermost recovery point.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/smsrouter/internal/errs"
	"github.com/and161185/smsrouter/internal/model"
	"github.com/and161185/smsrouter/internal/parse"
	"github.com/and161185/smsrouter/internal/repository"
)

// NotUnderstoodReply is the fixed text sent back when no grammar matches.
const NotUnderstoodReply = "Message not understood."

// Handler processes one classified form. Its only means of producing output
// is req.Reply; domain side effects happen behind the handler. Any returned
// error is treated as a programming defect, not a user input problem.
type Handler func(ctx context.Context, req *Request) error

// Request gives a handler access to the classified form and a reply path.
type Request struct {
	Form    *model.Form
	Fields  model.Fields
	Message *model.IncomingMessage
	Peer    *model.Peer

	router *Sequential
}

// Reply queues an outgoing message in reply to the request's form. The
// message is persisted first and then handed to the transport registry;
// delivery happens asynchronously.
func (r *Request) Reply(ctx context.Context, text string) error {
	out := &model.OutgoingMessage{
		PeerURI:   r.Message.PeerURI,
		Text:      text,
		InReplyTo: &r.Form.ID,
	}
	if err := r.router.messages.CreateOutgoing(ctx, out); err != nil {
		return fmt.Errorf("create outgoing: %w", err)
	}
	if r.router.dispatcher != nil {
		r.router.dispatcher.Dispatch(ctx, out)
	}
	return nil
}

// Dispatcher hands a persisted outgoing message to its transport for
// delivery. Implemented by the transport registry.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *model.OutgoingMessage)
}

// BeforeHook runs right before a form's handler is invoked.
type BeforeHook func(ctx context.Context, form *model.Form, fields model.Fields)

// AfterHook runs after a form's handler returned, even when it failed.
type AfterHook func(ctx context.Context, form *model.Form)

// Sequential routes incoming messages through the parser and the handler
// table. Registration happens at startup; Route is safe for concurrent use
// on distinct messages.
type Sequential struct {
	parser     *parse.Parser
	handlers   map[model.Kind]Handler
	messages   repository.MessageRepository
	dispatcher Dispatcher
	log        *zap.Logger

	beforeHandle []BeforeHook
	afterHandle  []AfterHook
}

// New constructs a router persisting through the given message repository.
func New(messages repository.MessageRepository, log *zap.Logger) *Sequential {
	return &Sequential{
		parser:   parse.New(),
		handlers: map[model.Kind]Handler{},
		messages: messages,
		log:      log,
	}
}

// Register binds a kind to its grammar and handler. Kinds are tried in
// registration order.
func (s *Sequential) Register(kind model.Kind, g parse.Grammar, h Handler) error {
	if h == nil {
		return fmt.Errorf("router: nil handler for kind %q", kind)
	}
	if err := s.parser.Register(kind, g); err != nil {
		return err
	}
	s.handlers[kind] = h
	return nil
}

// RegisterNotUnderstood overrides the built-in handler for input no grammar
// matched. The default replies with NotUnderstoodReply.
func (s *Sequential) RegisterNotUnderstood(h Handler) error {
	if h == nil {
		return errors.New("router: nil handler")
	}
	if _, ok := s.handlers[model.KindNotUnderstood]; ok {
		return fmt.Errorf("router: kind %q: %w", model.KindNotUnderstood, errs.ErrAlreadyExists)
	}
	s.handlers[model.KindNotUnderstood] = h
	return nil
}

// SetDispatcher wires the transport registry that delivers queued replies.
func (s *Sequential) SetDispatcher(d Dispatcher) { s.dispatcher = d }

// OnBeforeHandle appends a hook fired once per form that reaches handling,
// before its handler.
func (s *Sequential) OnBeforeHandle(h BeforeHook) {
	s.beforeHandle = append(s.beforeHandle, h)
}

// OnAfterHandle appends a hook fired once per form that reaches handling,
// after its handler returned, even when the handler failed.
func (s *Sequential) OnAfterHandle(h AfterHook) {
	s.afterHandle = append(s.afterHandle, h)
}

// Kinds returns the registered kinds in priority order.
func (s *Sequential) Kinds() []model.Kind { return s.parser.Kinds() }

// Route runs one incoming message through the parse/classify/handle loop and
// returns the classified forms produced, in left-to-right order of the
// original text.
//
// A FormatError ends the loop after an erroneous form and an error reply. A
// handler error aborts routing and propagates; forms persisted up to that
// point are returned alongside the error so the failure stays diagnosable.
func (s *Sequential) Route(
	ctx context.Context, msg *model.IncomingMessage, peer *model.Peer,
) ([]*model.Form, error) {
	var forms []*model.Form
	remaining := msg.Text

	for {
		text := strings.TrimSpace(remaining)

		res, err := s.parser.Parse(text)
		var fe *parse.FormatError
		if errors.As(err, &fe) {
			form, ferr := s.formatError(ctx, msg, peer, res.Kind, text, fe)
			if form != nil {
				forms = append(forms, form)
			}
			return forms, ferr
		}
		if err != nil {
			return forms, err
		}

		form := &model.Form{
			MessageID: msg.ID,
			Kind:      res.Kind,
			Fields:    res.Fields,
			Text:      consumed(text, res.Remaining),
		}
		if err := s.messages.CreateForm(ctx, form); err != nil {
			return forms, fmt.Errorf("create form: %w", err)
		}
		forms = append(forms, form)

		req := &Request{Form: form, Fields: res.Fields, Message: msg, Peer: peer, router: s}
		if err := s.handle(ctx, req); err != nil {
			return forms, fmt.Errorf("handle %q: %w", res.Kind, err)
		}

		s.log.Debug("form handled",
			zap.Int64("message_id", msg.ID),
			zap.Int64("form_id", form.ID),
			zap.String("kind", string(form.Kind)),
		)

		if res.Remaining == "" {
			return forms, nil
		}
		if res.Remaining == text {
			// A grammar that consumes nothing would spin forever.
			return forms, fmt.Errorf("grammar %q made no progress on %q", res.Kind, text)
		}
		remaining = res.Remaining
	}
}

// formatError persists the erroneous form and sends the error text back as
// the sole reply. The handler is never invoked for it.
func (s *Sequential) formatError(
	ctx context.Context, msg *model.IncomingMessage, peer *model.Peer,
	kind model.Kind, text string, fe *parse.FormatError,
) (*model.Form, error) {
	form := &model.Form{
		MessageID: msg.ID,
		Kind:      kind,
		Fields:    model.Fields{},
		Erroneous: true,
		Text:      text,
	}
	if err := s.messages.CreateForm(ctx, form); err != nil {
		return nil, fmt.Errorf("create form: %w", err)
	}

	req := &Request{Form: form, Fields: form.Fields, Message: msg, Peer: peer, router: s}
	if err := req.Reply(ctx, fe.Text); err != nil {
		return form, err
	}
	return form, nil
}

// handle fires the before hooks, invokes the handler and fires the after
// hooks. The after hooks run even when the handler fails.
func (s *Sequential) handle(ctx context.Context, req *Request) error {
	h, ok := s.handlers[req.Form.Kind]
	if !ok {
		if req.Form.Kind != model.KindNotUnderstood {
			return fmt.Errorf("no handler for kind %q", req.Form.Kind)
		}
		h = notUnderstood
	}

	for _, hook := range s.beforeHandle {
		hook(ctx, req.Form, req.Fields)
	}
	defer func() {
		for _, hook := range s.afterHandle {
			hook(ctx, req.Form)
		}
	}()
	return h(ctx, req)
}

// notUnderstood is the built-in fallback handler.
func notUnderstood(ctx context.Context, req *Request) error {
	return req.Reply(ctx, NotUnderstoodReply)
}

// consumed returns the slice of text the grammar consumed.
func consumed(text, remaining string) string {
	if remaining == "" {
		return text
	}
	if strings.HasSuffix(text, remaining) {
		return strings.TrimSpace(text[:len(text)-len(remaining)])
	}
	return text
}
