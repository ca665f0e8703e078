// Package bus is an in-process asynchronous request/reply message bus.
//
// Each address has at most one handler. Senders that expect an answer get a
// one-shot reply address; the receiver answers through Message.Reply and the
// answer is delivered to the sender's ReplyHandler exactly once. A reply may
// itself expect a reply, which is how multi-step conversations are chained.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
)

var (
	ErrAddressInUse   = errors.New("address already has a handler")
	ErrClosed         = errors.New("bus is closed")
	ErrAlreadyReplied = errors.New("message already replied to")
	ErrReplyTimeout   = errors.New("timed out waiting for reply")
)

// Handler receives messages sent to a registered address.
type Handler func(msg *Message)

// ReplyHandler receives the answer to a sent message, or the error that
// prevented one (ErrReplyTimeout, ErrClosed).
type ReplyHandler func(reply *Message, err error)

type pendingReply struct {
	handler ReplyHandler
	timer   *time.Timer
}

// Bus routes messages between addresses. The zero value is not usable; use New.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	pending  map[string]*pendingReply
	closed   bool

	logger       *slog.Logger
	replyTimeout time.Duration
	inflight     sync.WaitGroup
}

type Option func(*Bus)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithDefaultReplyTimeout bounds how long a sender waits for an answer unless
// the send overrides it. Zero waits forever.
func WithDefaultReplyTimeout(d time.Duration) Option {
	return func(b *Bus) {
		b.replyTimeout = d
	}
}

func New(opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[string]Handler),
		pending:  make(map[string]*pendingReply),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type sendOptions struct {
	replyTimeout time.Duration
	timeoutSet   bool
}

// SendOption tunes a single Send or Reply.
type SendOption func(*sendOptions)

// WithReplyTimeout drops the pending reply after d and reports ErrReplyTimeout.
func WithReplyTimeout(d time.Duration) SendOption {
	return func(o *sendOptions) {
		o.replyTimeout = d
		o.timeoutSet = true
	}
}

// Register installs the single handler for address.
func (b *Bus) Register(address string, h Handler) error {
	if address == "" || h == nil {
		return fmt.Errorf("register: address and handler are required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if _, ok := b.handlers[address]; ok {
		return fmt.Errorf("%w: %s", ErrAddressInUse, address)
	}
	b.handlers[address] = h
	b.logger.Debug("handler registered", "address", address)
	return nil
}

// Unregister removes the handler for address. It is a no-op for unknown addresses.
func (b *Bus) Unregister(address string) {
	b.mu.Lock()
	delete(b.handlers, address)
	b.mu.Unlock()
}

// Send delivers body to the handler at address on its own goroutine. When
// onReply is non-nil the receiver may answer once through Message.Reply.
func (b *Bus) Send(ctx context.Context, address string, body any, onReply ReplyHandler, opts ...SendOption) error {
	_, err := b.send(ctx, address, body, onReply, opts...)
	return err
}

// Request sends body and blocks until the reply arrives or ctx is done.
func (b *Bus) Request(ctx context.Context, address string, body any, opts ...SendOption) (*Message, error) {
	ch := make(chan replyResult, 1)
	replyAddr, err := b.send(ctx, address, body, func(reply *Message, err error) {
		ch <- replyResult{msg: reply, err: err}
	}, opts...)
	if err != nil {
		return nil, err
	}
	return b.await(ctx, replyAddr, ch)
}

type replyResult struct {
	msg *Message
	err error
}

func (b *Bus) await(ctx context.Context, replyAddr string, ch <-chan replyResult) (*Message, error) {
	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		b.dropPending(replyAddr)
		return nil, ctx.Err()
	}
}

func (b *Bus) send(ctx context.Context, address string, body any, onReply ReplyHandler, opts ...SendOption) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.RLock()
	closed := b.closed
	h, ok := b.handlers[address]
	b.mu.RUnlock()
	if closed {
		return "", ErrClosed
	}
	if !ok {
		return "", fmt.Errorf("%w at address %q", app_errors.ErrNoHandler, address)
	}

	msg := &Message{bus: b, address: address, body: body}
	if onReply != nil {
		replyAddr, err := b.expectReply(onReply, opts)
		if err != nil {
			return "", err
		}
		msg.replyAddress = replyAddr
	}

	b.deliver(func() { h(msg) }, address)
	return msg.replyAddress, nil
}

// expectReply registers a one-shot reply address for handler.
func (b *Bus) expectReply(handler ReplyHandler, opts []SendOption) (string, error) {
	o := sendOptions{replyTimeout: b.replyTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	addr := "__reply." + uuid.NewString()
	p := &pendingReply{handler: handler}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", ErrClosed
	}
	if o.replyTimeout > 0 {
		p.timer = time.AfterFunc(o.replyTimeout, func() {
			if b.takePending(addr) != nil {
				b.deliver(func() { handler(nil, ErrReplyTimeout) }, addr)
			}
		})
	}
	b.pending[addr] = p
	return addr, nil
}

func (b *Bus) takePending(addr string) *pendingReply {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[addr]
	if !ok {
		return nil
	}
	delete(b.pending, addr)
	if p.timer != nil {
		p.timer.Stop()
	}
	return p
}

func (b *Bus) dropPending(addr string) {
	if addr != "" {
		b.takePending(addr)
	}
}

// Pending returns the number of reply addresses still awaiting an answer.
func (b *Bus) Pending() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pending)
}

func (b *Bus) deliver(fn func(), address string) {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("message handler panicked", "address", address, "panic", r)
			}
		}()
		fn()
	}()
}

// Close refuses new sends, fails every pending reply with ErrClosed and
// waits for in-flight handlers until ctx is done.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pending := b.pending
	b.pending = make(map[string]*pendingReply)
	b.handlers = make(map[string]Handler)
	b.mu.Unlock()

	for addr, p := range pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		handler := p.handler
		b.deliver(func() { handler(nil, ErrClosed) }, addr)
	}

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Message is one delivery on the bus.
type Message struct {
	bus          *Bus
	address      string
	body         any
	replyAddress string
	replied      atomic.Bool
}

func (m *Message) Body() any { return m.body }

// Address is the address the message was delivered to.
func (m *Message) Address() string { return m.address }

// ExpectsReply reports whether the sender is waiting for an answer.
func (m *Message) ExpectsReply() bool { return m.replyAddress != "" }

// Reply answers the message. Only the first call has any effect. When next
// is non-nil the answer itself expects a reply, delivered to next.
func (m *Message) Reply(body any, next ReplyHandler, opts ...SendOption) error {
	_, err := m.reply(body, next, opts...)
	return err
}

// ReplyAndWait answers the message and blocks for the answer to the reply.
func (m *Message) ReplyAndWait(ctx context.Context, body any, opts ...SendOption) (*Message, error) {
	ch := make(chan replyResult, 1)
	nextAddr, err := m.reply(body, func(reply *Message, err error) {
		ch <- replyResult{msg: reply, err: err}
	}, opts...)
	if err != nil {
		return nil, err
	}
	return m.bus.await(ctx, nextAddr, ch)
}

func (m *Message) reply(body any, next ReplyHandler, opts ...SendOption) (string, error) {
	if m.replyAddress == "" {
		return "", fmt.Errorf("%w: sender of %q expects no reply", app_errors.ErrNoHandler, m.address)
	}
	if !m.replied.CompareAndSwap(false, true) {
		return "", ErrAlreadyReplied
	}

	p := m.bus.takePending(m.replyAddress)
	if p == nil {
		return "", fmt.Errorf("%w: reply address %q expired", app_errors.ErrNoHandler, m.replyAddress)
	}

	reply := &Message{bus: m.bus, address: m.replyAddress, body: body}
	if next != nil {
		addr, err := m.bus.expectReply(next, opts)
		if err != nil {
			p.handler(nil, err)
			return "", err
		}
		reply.replyAddress = addr
	}

	handler := p.handler
	m.bus.deliver(func() { handler(reply, nil) }, m.replyAddress)
	return reply.replyAddress, nil
}
