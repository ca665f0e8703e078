package persistor

import (
	"context"

	"github.com/spounge-ai/persistor/internal/domain"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
)

// Formatter builds reply envelopes. It never fails: every outcome or error
// becomes a well-formed reply.
type Formatter struct {
	classifier *app_errors.ErrorClassifier
}

func NewFormatter(classifier *app_errors.ErrorClassifier) *Formatter {
	if classifier == nil {
		classifier = app_errors.NewErrorClassifier(nil)
	}
	return &Formatter{classifier: classifier}
}

// Success wraps the action fields of out in an ok reply.
func (f *Formatter) Success(out Outcome) domain.Reply {
	reply := make(domain.Reply, len(out.Fields)+1)
	for k, v := range out.Fields {
		reply[k] = v
	}
	reply[domain.FieldStatus] = domain.StatusOK
	return reply
}

// Page is one batch of a paged find. more selects the more-exist status.
func (f *Formatter) Page(docs []domain.Document, more bool) domain.Reply {
	if docs == nil {
		docs = []domain.Document{}
	}
	status := domain.StatusOK
	if more {
		status = domain.StatusMoreExist
	}
	return domain.Reply{domain.FieldStatus: status, domain.FieldResults: docs}
}

// Failure turns err into an error reply. Unexpected errors are logged and
// replaced by a generic message.
func (f *Formatter) Failure(ctx context.Context, err error, operation string) domain.Reply {
	return domain.Reply{
		domain.FieldStatus:  domain.StatusError,
		domain.FieldMessage: f.classifier.Message(ctx, err, operation),
	}
}

// Format picks Success or Failure.
func (f *Formatter) Format(ctx context.Context, out Outcome, err error) domain.Reply {
	if err != nil {
		return f.Failure(ctx, err, string(out.Action))
	}
	return f.Success(out)
}
