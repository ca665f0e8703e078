package persistor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spounge-ai/persistor/internal/bus"
	"github.com/spounge-ai/persistor/internal/domain"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
	"github.com/spounge-ai/persistor/internal/validation"
	"github.com/spounge-ai/persistor/pkg/cache"
	"github.com/spounge-ai/persistor/pkg/patterns/concurrency"
	"github.com/spounge-ai/persistor/pkg/patterns/lifecycle"
)

const DefaultCursorTimeout = 10 * time.Second

var errShuttingDown = app_errors.Storage("submit", errors.New("persistor is shutting down"))

// EndpointConfig sizes the endpoint.
type EndpointConfig struct {
	Address       string
	MinWorkers    int
	MaxWorkers    int
	QueueDepth    int
	CursorTimeout time.Duration
}

// Endpoint is the single bus handler of the persistor. Every message it
// receives gets exactly one reply.
type Endpoint struct {
	cfg        EndpointConfig
	bus        *bus.Bus
	decoder    *validation.RequestValidator
	dispatcher *Dispatcher
	formatter  *Formatter
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
	pool    *concurrency.AdaptiveWorkerPool
	cursors *cache.Cache[string, *openCursor]
}

var _ lifecycle.ManagedResource = (*Endpoint)(nil)

func NewEndpoint(cfg EndpointConfig, b *bus.Bus, decoder *validation.RequestValidator, dispatcher *Dispatcher, formatter *Formatter, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CursorTimeout <= 0 {
		cfg.CursorTimeout = DefaultCursorTimeout
	}
	return &Endpoint{
		cfg:        cfg,
		bus:        b,
		decoder:    decoder,
		dispatcher: dispatcher,
		formatter:  formatter,
		logger:     logger.With("address", cfg.Address),
	}
}

// Start registers the handler at the configured address.
func (e *Endpoint) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	e.pool = concurrency.NewAdaptiveWorkerPool(e.cfg.MinWorkers, e.cfg.MaxWorkers, e.cfg.QueueDepth)
	e.cursors = cache.New(
		cache.WithDefaultTTL[string, *openCursor](e.cfg.CursorTimeout),
		cache.WithCleanupInterval[string, *openCursor](cleanupInterval(e.cfg.CursorTimeout)),
		cache.WithEvictionCallback(e.closeCursor),
	)

	if err := e.bus.Register(e.cfg.Address, e.handle); err != nil {
		e.pool.Shutdown()
		e.cursors.Stop()
		return fmt.Errorf("failed to register persistor: %w", err)
	}
	e.running = true
	e.logger.Info("persistor listening", "min_workers", e.cfg.MinWorkers, "max_workers", e.cfg.MaxWorkers)
	return nil
}

// Stop unregisters the handler, finishes queued requests and closes open cursors.
func (e *Endpoint) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	e.running = false

	e.bus.Unregister(e.cfg.Address)

	done := make(chan struct{})
	go func() {
		e.pool.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("persistor stopped before queued requests finished", "error", ctx.Err())
	}

	e.cursors.Clear(ctx)
	e.cursors.Stop()
	e.logger.Info("persistor stopped")
	return nil
}

func (e *Endpoint) Health(ctx context.Context) lifecycle.HealthStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return lifecycle.HealthStatus{Ready: false, Message: "endpoint not registered"}
	}
	return lifecycle.HealthStatus{Ready: true, Message: fmt.Sprintf("%d workers, %d open cursors", e.pool.Workers(), e.cursors.Count())}
}

// handle runs on the bus delivery goroutine and hands the message to the pool.
func (e *Endpoint) handle(msg *bus.Message) {
	e.submit(msg, func() { e.process(msg) })
}

func (e *Endpoint) submit(msg *bus.Message, job func()) {
	e.mu.Lock()
	pool := e.pool
	running := e.running
	e.mu.Unlock()

	if !running || pool.Submit(job) != nil {
		e.send(msg, e.formatter.Failure(context.Background(), errShuttingDown, "submit"), nil)
	}
}

func (e *Endpoint) process(msg *bus.Message) {
	// Cancellation is not supported once a request is dispatched.
	ctx := context.Background()
	start := time.Now()
	action := "unknown"

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("request handler panicked", "action", action, "panic", r)
			e.send(msg, e.formatter.Failure(ctx, fmt.Errorf("panic: %v", r), action), nil)
		}
	}()

	req, err := e.decoder.Decode(msg.Body())
	if err != nil {
		e.send(msg, e.formatter.Failure(ctx, err, "decode"), nil)
		return
	}
	action = string(req.Action())

	out, err := e.dispatcher.Dispatch(ctx, req)
	e.logRequest(req, start, err)
	if err != nil {
		e.send(msg, e.formatter.Failure(ctx, err, action), nil)
		return
	}

	if out.Cursor != nil {
		e.sendPage(ctx, msg, newOpenCursor(out, e.cfg.CursorTimeout))
		return
	}
	e.send(msg, e.formatter.Success(out), nil)
}

func (e *Endpoint) logRequest(req domain.Request, start time.Time, err error) {
	attrs := []any{"action", string(req.Action()), "duration", time.Since(start)}
	if cr, ok := req.(domain.CollectionRequest); ok {
		attrs = append(attrs, "collection", cr.CollectionName())
	}
	if err != nil {
		e.logger.Debug("request failed", append(attrs, "error", err)...)
		return
	}
	e.logger.Debug("request completed", attrs...)
}

// send delivers the reply; a sender that expects no reply is not an error.
func (e *Endpoint) send(msg *bus.Message, reply domain.Reply, next bus.ReplyHandler, opts ...bus.SendOption) {
	if !msg.ExpectsReply() {
		return
	}
	if err := msg.Reply(reply, next, opts...); err != nil {
		e.logger.Warn("failed to deliver reply", "status", reply.Status(), "error", err)
	}
}

func cleanupInterval(timeout time.Duration) time.Duration {
	interval := timeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}
