package persistor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spounge-ai/persistor/internal/bus"
	"github.com/spounge-ai/persistor/internal/domain"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
)

// lateContinuationWindow is how long after a cursor expires a continuation
// is still answered with an error instead of being dropped by the bus.
const lateContinuationWindow = 10 * time.Second

// openCursor is a batched find waiting for the client to ask for the next page.
type openCursor struct {
	id      string
	cursor  domain.Cursor
	batch   int
	timeout time.Duration
}

func newOpenCursor(out Outcome, defaultTimeout time.Duration) *openCursor {
	timeout := out.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &openCursor{
		id:      uuid.NewString(),
		cursor:  out.Cursor,
		batch:   out.BatchSize,
		timeout: timeout,
	}
}

// sendPage replies with the next batch. While more documents remain the
// reply has status more-exist and the cursor is parked until the client
// answers it or the cursor times out.
func (e *Endpoint) sendPage(ctx context.Context, msg *bus.Message, oc *openCursor) {
	docs, more, err := oc.cursor.Next(ctx, oc.batch)
	if err != nil {
		e.closeCursor(oc.id, oc)
		e.send(msg, e.formatter.Failure(ctx, err, string(domain.ActionFind)), nil)
		return
	}
	if !more {
		e.closeCursor(oc.id, oc)
		e.send(msg, e.formatter.Page(docs, false), nil)
		return
	}
	if !msg.ExpectsReply() {
		e.closeCursor(oc.id, oc)
		return
	}

	e.cursors.Set(ctx, oc.id, oc, oc.timeout)
	// The pending continuation outlives the cursor so a late answer still
	// gets a "cursor timed out" reply.
	e.send(msg, e.formatter.Page(docs, true), e.continuation(oc.id), bus.WithReplyTimeout(oc.timeout+lateContinuationWindow))
}

func (e *Endpoint) continuation(id string) bus.ReplyHandler {
	return func(next *bus.Message, err error) {
		if err != nil {
			e.cursors.Delete(context.Background(), id)
			return
		}
		e.submit(next, func() {
			ctx := context.Background()
			oc, ok := e.cursors.Take(ctx, id)
			if !ok {
				e.send(next, e.formatter.Failure(ctx, app_errors.ErrCursorExpired, string(domain.ActionFind)), nil)
				return
			}
			e.sendPage(ctx, next, oc)
		})
	}
}

// closeCursor is also the eviction callback of the cursor cache.
func (e *Endpoint) closeCursor(id string, oc *openCursor) {
	if err := oc.cursor.Close(context.Background()); err != nil {
		e.logger.Warn("failed to close cursor", "cursor", id, "error", err)
	}
}
