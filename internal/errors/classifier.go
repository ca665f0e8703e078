package errors

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassValidation
	ClassDecode
	ClassStorage
	ClassNotFound
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassDecode:
		return "decode"
	case ClassStorage:
		return "storage"
	case ClassNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

const internalMessage = "an unexpected internal error occurred"

type ClassifiedError struct {
	Class         ErrorClass
	InternalError error
	ClientMessage string
	OperationName string
	Metadata      map[string]interface{}
}

type ErrorClassifier struct {
	logger *slog.Logger
}

func NewErrorClassifier(logger *slog.Logger) *ErrorClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorClassifier{logger: logger}
}

var errorPool = sync.Pool{
	New: func() interface{} {
		return &ClassifiedError{
			Metadata: make(map[string]interface{}, 4),
		}
	},
}

// Classify maps err to a class and the message a caller is allowed to see.
// Validation, decode and storage failures keep their descriptive text;
// anything else is replaced by a generic message.
func (ec *ErrorClassifier) Classify(err error, operation string) *ClassifiedError {
	classified := errorPool.Get().(*ClassifiedError)
	classified.InternalError = err
	classified.OperationName = operation

	switch {
	case err == nil:
		classified.Class = ClassInternal
		classified.ClientMessage = internalMessage
	case errors.Is(err, ErrValidation):
		classified.Class = ClassValidation
		classified.ClientMessage = err.Error()
	case errors.Is(err, ErrDecode):
		classified.Class = ClassDecode
		classified.ClientMessage = err.Error()
	case errors.Is(err, ErrCursorExpired):
		classified.Class = ClassNotFound
		classified.ClientMessage = ErrCursorExpired.Error()
	case errors.Is(err, ErrNoHandler):
		classified.Class = ClassNotFound
		classified.ClientMessage = err.Error()
	case errors.Is(err, ErrStorage):
		classified.Class = ClassStorage
		classified.ClientMessage = err.Error()
	default:
		classified.Class = ClassInternal
		classified.ClientMessage = internalMessage
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		classified.Metadata["field"] = ve.Field
	}
	var se *StorageError
	if errors.As(err, &se) {
		classified.Metadata["storage_op"] = se.Op
	}

	return classified
}

// LogAndSanitize logs the classified error and returns the client message.
// The classified error is returned to the pool and must not be reused.
func (ec *ErrorClassifier) LogAndSanitize(ctx context.Context, classified *ClassifiedError) string {
	defer ec.putError(classified)

	level := slog.LevelWarn
	if classified.Class == ClassInternal || classified.Class == ClassStorage {
		level = slog.LevelError
	}

	internal := "<nil>"
	if classified.InternalError != nil {
		internal = classified.InternalError.Error()
	}

	ec.logger.Log(ctx, level, "operation failed",
		"operation", classified.OperationName,
		"error_class", classified.Class.String(),
		"internal_error", internal,
		"metadata", classified.Metadata,
	)

	return classified.ClientMessage
}

// Message classifies, logs and sanitizes err in one step.
func (ec *ErrorClassifier) Message(ctx context.Context, err error, operation string) string {
	return ec.LogAndSanitize(ctx, ec.Classify(err, operation))
}

// GRPCError converts err into a gRPC status for transport-level failures.
func (ec *ErrorClassifier) GRPCError(ctx context.Context, err error, operation string) error {
	classified := ec.Classify(err, operation)
	code := grpcCode(classified.Class)
	return status.Error(code, ec.LogAndSanitize(ctx, classified))
}

func grpcCode(class ErrorClass) codes.Code {
	switch class {
	case ClassValidation, ClassDecode:
		return codes.InvalidArgument
	case ClassNotFound:
		return codes.NotFound
	case ClassStorage:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

func (ec *ErrorClassifier) putError(err *ClassifiedError) {
	err.InternalError = nil
	for k := range err.Metadata {
		delete(err.Metadata, k)
	}
	err.OperationName = ""
	err.ClientMessage = ""
	errorPool.Put(err)
}
