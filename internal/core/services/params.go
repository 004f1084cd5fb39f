package services

import "fmt"

// ParamError reports a malformed call parameter.
type ParamError struct {
	Message string
}

func (e *ParamError) Error() string {
	return e.Message
}

func paramErrorf(format string, args ...any) error {
	return &ParamError{Message: fmt.Sprintf(format, args...)}
}

// stringParam returns params[key] formatted as a string, or fallback when the
// key is missing or null. Numbers are accepted since controller ids arrive
// as JSON numbers from some clients.
func stringParam(params map[string]any, key, fallback string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return fallback
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}
