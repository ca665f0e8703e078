package validation

import (
	"math"

	"github.com/spounge-ai/persistor/internal/domain"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
)

// fields reads typed values out of a loosely typed message body.
// An absent or null key yields the zero value; a key of the wrong type is
// a ValidationError.
type fields map[string]any

func (f fields) str(key string) (string, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", app_errors.Validationf(key, "%s must be a string", key)
	}
	return s, nil
}

func (f fields) mapping(key string) (map[string]any, bool, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	switch m := v.(type) {
	case map[string]any:
		return m, true, nil
	case domain.Document:
		return m, true, nil
	case domain.Matcher:
		return m, true, nil
	default:
		return nil, true, app_errors.Validationf(key, "%s must be an object", key)
	}
}

func (f fields) integer(key string) (int64, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return 0, nil
	}
	n, ok := domain.ToFloat(v)
	if !ok {
		return 0, app_errors.Validationf(key, "%s must be a number", key)
	}
	if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, app_errors.Validationf(key, "%s must be an integer", key)
	}
	return int64(n), nil
}

func (f fields) boolean(key string) (bool, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, app_errors.Validationf(key, "%s must be a boolean", key)
	}
	return b, nil
}

func (f fields) command() (domain.Command, error) {
	switch c := f[fieldCommand].(type) {
	case string:
		if c != "" {
			return domain.Command{Text: c}, nil
		}
	case map[string]any:
		if len(c) > 0 {
			return domain.Command{Doc: domain.Document(c)}, nil
		}
	case domain.Document:
		if len(c) > 0 {
			return domain.Command{Doc: c}, nil
		}
	case nil:
	default:
		return domain.Command{}, app_errors.Validationf(fieldCommand, "command must be a string or an object")
	}
	return domain.Command{}, app_errors.Validationf(fieldCommand, "command must be specified")
}
