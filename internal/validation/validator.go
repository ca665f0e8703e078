package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spounge-ai/persistor/internal/domain"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
	pkgvalidator "github.com/spounge-ai/persistor/pkg/validator"
)

const (
	// MaxMessageSize bounds raw JSON message bodies.
	MaxMessageSize = 16 * 1024 * 1024

	fieldAction       = "action"
	fieldCollection   = "collection"
	fieldDocument     = "document"
	fieldMatcher      = "matcher"
	fieldCriteria     = "criteria"
	fieldObjNew       = "objNew"
	fieldUpsert       = "upsert"
	fieldMulti        = "multi"
	fieldKeys         = "keys"
	fieldSort         = "sort"
	fieldSkip         = "skip"
	fieldLimit        = "limit"
	fieldBatchSize    = "batch_size"
	fieldTimeout      = "timeout"
	fieldCommand      = "command"
	fieldWriteConcern = "writeConcern"
)

// wireNames maps request struct fields to their message keys for error text.
var wireNames = map[string]string{
	"Collection": fieldCollection,
	"ObjNew":     fieldObjNew,
	"Skip":       fieldSkip,
	"Limit":      fieldLimit,
	"BatchSize":  fieldBatchSize,
	"Timeout":    fieldTimeout,
}

// RequestValidator turns raw message bodies into typed requests.
type RequestValidator struct {
	validator *validator.Validate
}

func NewRequestValidator() (*RequestValidator, error) {
	v := validator.New()

	if err := pkgvalidator.RegisterCustomValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register custom validators: %w", err)
	}

	return &RequestValidator{validator: v}, nil
}

// Decode reads a message body into one of the domain request variants.
// Bodies that are not a mapping fail with a DecodeError; missing or
// malformed fields fail with a ValidationError.
func (rv *RequestValidator) Decode(body any) (domain.Request, error) {
	m, err := asMapping(body)
	if err != nil {
		return nil, &app_errors.DecodeError{Err: err}
	}

	actionRaw, ok := m[fieldAction]
	if !ok || actionRaw == nil {
		return nil, app_errors.Validationf(fieldAction, "action must be specified")
	}
	action, ok := actionRaw.(string)
	if !ok || action == "" {
		return nil, app_errors.Validationf(fieldAction, "action must be specified")
	}

	req, err := rv.build(domain.Action(action), m)
	if err != nil {
		return nil, err
	}

	if err := rv.validateStruct(req); err != nil {
		return nil, err
	}
	return req, nil
}

func (rv *RequestValidator) build(action domain.Action, m map[string]any) (domain.Request, error) {
	f := fields(m)

	switch action {
	case domain.ActionSave:
		doc, _, err := f.mapping(fieldDocument)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			doc = map[string]any{}
		}
		req := domain.SaveRequest{Document: domain.Document(doc)}
		req.Collection, err = f.str(fieldCollection)
		if err != nil {
			return nil, err
		}
		req.WriteConcern, err = f.str(fieldWriteConcern)
		return req, err

	case domain.ActionUpdate:
		var req domain.UpdateRequest
		var err error
		if req.Collection, err = f.str(fieldCollection); err != nil {
			return nil, err
		}
		criteria, _, err := f.mapping(fieldCriteria)
		if err != nil {
			return nil, err
		}
		req.Criteria = matcherOrEmpty(criteria)
		objNew, present, err := f.mapping(fieldObjNew)
		if err != nil {
			return nil, err
		}
		if !present {
			return nil, app_errors.Validationf(fieldObjNew, "objNew must be specified")
		}
		req.ObjNew = domain.Document(objNew)
		if req.Upsert, err = f.boolean(fieldUpsert); err != nil {
			return nil, err
		}
		if req.Multi, err = f.boolean(fieldMulti); err != nil {
			return nil, err
		}
		req.WriteConcern, err = f.str(fieldWriteConcern)
		return req, err

	case domain.ActionFind:
		var req domain.FindRequest
		var err error
		if req.Collection, err = f.str(fieldCollection); err != nil {
			return nil, err
		}
		matcher, _, err := f.mapping(fieldMatcher)
		if err != nil {
			return nil, err
		}
		req.Matcher = matcherOrEmpty(matcher)
		if req.Keys, _, err = f.mapping(fieldKeys); err != nil {
			return nil, err
		}
		if req.Sort, _, err = f.mapping(fieldSort); err != nil {
			return nil, err
		}
		if req.Skip, err = f.integer(fieldSkip); err != nil {
			return nil, err
		}
		if req.Limit, err = f.integer(fieldLimit); err != nil {
			return nil, err
		}
		batch, err := f.integer(fieldBatchSize)
		if err != nil {
			return nil, err
		}
		req.BatchSize = int(batch)
		timeoutMillis, err := f.integer(fieldTimeout)
		if err != nil {
			return nil, err
		}
		req.Timeout = time.Duration(timeoutMillis) * time.Millisecond
		return req, nil

	case domain.ActionFindOne:
		var req domain.FindOneRequest
		var err error
		if req.Collection, err = f.str(fieldCollection); err != nil {
			return nil, err
		}
		matcher, _, err := f.mapping(fieldMatcher)
		if err != nil {
			return nil, err
		}
		req.Matcher = matcherOrEmpty(matcher)
		req.Keys, _, err = f.mapping(fieldKeys)
		return req, err

	case domain.ActionCount:
		var req domain.CountRequest
		var err error
		if req.Collection, err = f.str(fieldCollection); err != nil {
			return nil, err
		}
		matcher, _, err := f.mapping(fieldMatcher)
		req.Matcher = matcherOrEmpty(matcher)
		return req, err

	case domain.ActionDelete:
		var req domain.DeleteRequest
		var err error
		if req.Collection, err = f.str(fieldCollection); err != nil {
			return nil, err
		}
		matcher, _, err := f.mapping(fieldMatcher)
		if err != nil {
			return nil, err
		}
		req.Matcher = matcherOrEmpty(matcher)
		req.WriteConcern, err = f.str(fieldWriteConcern)
		return req, err

	case domain.ActionCommand:
		cmd, err := f.command()
		if err != nil {
			return nil, err
		}
		return domain.CommandRequest{Command: cmd}, nil

	case domain.ActionGetCollections:
		return domain.GetCollectionsRequest{}, nil

	case domain.ActionDropCollection:
		name, err := f.str(fieldCollection)
		return domain.DropCollectionRequest{Collection: name}, err

	case domain.ActionCollectionStats:
		name, err := f.str(fieldCollection)
		return domain.CollectionStatsRequest{Collection: name}, err

	default:
		return nil, app_errors.Validationf(fieldAction, "invalid action: %s", action)
	}
}

func (rv *RequestValidator) validateStruct(req domain.Request) error {
	err := rv.validator.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return app_errors.Validationf("", "invalid %s request: %v", req.Action(), err)
	}

	fe := fieldErrs[0]
	name := wireNames[fe.StructField()]
	if name == "" {
		name = fe.Field()
	}

	switch fe.Tag() {
	case "required":
		return app_errors.Validationf(name, "%s must be specified", name)
	case "collection_name":
		return app_errors.Validationf(name, "invalid collection name: %q", fe.Value())
	case "gte":
		return app_errors.Validationf(name, "%s must not be negative", name)
	default:
		return app_errors.Validationf(name, "%s is invalid (%s)", name, fe.Tag())
	}
}

func asMapping(body any) (map[string]any, error) {
	switch b := body.(type) {
	case nil:
		return nil, errors.New("message body is empty")
	case domain.Document:
		return b, nil
	case map[string]any:
		return b, nil
	case json.RawMessage:
		return unmarshalMapping(b)
	case []byte:
		return unmarshalMapping(b)
	default:
		return nil, fmt.Errorf("message body must be a JSON object, got %T", body)
	}
}

func unmarshalMapping(raw []byte) (map[string]any, error) {
	if len(raw) > MaxMessageSize {
		return nil, fmt.Errorf("message size %d exceeds maximum of %d bytes", len(raw), MaxMessageSize)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("message body must be a JSON object")
	}
	return m, nil
}

func matcherOrEmpty(m map[string]any) domain.Matcher {
	if m == nil {
		return domain.Matcher{}
	}
	return domain.Matcher(m)
}
