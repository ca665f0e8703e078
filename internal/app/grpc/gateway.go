package grpc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spounge-ai/persistor/internal/app/grpc/interceptors"
	"github.com/spounge-ai/persistor/internal/bus"
	"github.com/spounge-ai/persistor/internal/domain"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Gateway forwards gRPC calls onto the message bus. Replies with
// status "error" are returned as ordinary payloads; only transport
// failures become gRPC errors.
type Gateway struct {
	bus        *bus.Bus
	address    string
	classifier *app_errors.ErrorClassifier
	logger     *slog.Logger
}

var _ GatewayServer = (*Gateway)(nil)

func NewGateway(b *bus.Bus, defaultAddress string, classifier *app_errors.ErrorClassifier, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = app_errors.NewErrorClassifier(logger)
	}
	return &Gateway{bus: b, address: defaultAddress, classifier: classifier, logger: logger}
}

func (g *Gateway) Send(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	body, err := toBody(req)
	if err != nil {
		return nil, g.grpcError(ctx, &app_errors.DecodeError{Err: err}, "Send")
	}
	msg, err := g.bus.Request(ctx, interceptors.Address(ctx, g.address), body)
	if err != nil {
		return nil, g.grpcError(ctx, err, "Send")
	}
	out, err := toStruct(msg.Body())
	if err != nil {
		return nil, g.grpcError(ctx, err, "Send")
	}
	return out, nil
}

// Stream sends one request and streams every reply page, answering each
// more-exist page to ask for the next.
func (g *Gateway) Stream(req *structpb.Struct, stream GatewayStreamServer) error {
	ctx := stream.Context()
	body, err := toBody(req)
	if err != nil {
		return g.grpcError(ctx, &app_errors.DecodeError{Err: err}, "Stream")
	}

	msg, err := g.bus.Request(ctx, interceptors.Address(ctx, g.address), body)
	if err != nil {
		return g.grpcError(ctx, err, "Stream")
	}
	for {
		page, err := toStruct(msg.Body())
		if err != nil {
			return g.grpcError(ctx, err, "Stream")
		}
		if err := stream.Send(page); err != nil {
			return err
		}
		if replyStatus(msg.Body()) != domain.StatusMoreExist {
			return nil
		}
		if msg, err = msg.ReplyAndWait(ctx, domain.Document{}); err != nil {
			return g.grpcError(ctx, err, "Stream")
		}
	}
}

func (g *Gateway) grpcError(ctx context.Context, err error, op string) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, bus.ErrReplyTimeout):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, bus.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	}
	return g.classifier.GRPCError(ctx, err, op)
}

func replyStatus(body any) string {
	switch b := body.(type) {
	case domain.Reply:
		return b.Status()
	case map[string]any:
		s, _ := b[domain.FieldStatus].(string)
		return s
	}
	return ""
}
