package processor

import (
	"fmt"
	"math"
)

// payload wraps a record value with typed accessors. Missing optional
// fields yield zero values; present fields of the wrong type are errors.
type payload map[string]any

func (p payload) intField(name string) (int64, bool, error) {
	raw, ok := p[name]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return int64(v), true, nil
	case int32:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, false, fmt.Errorf("%w: field %q is not an integer: %v", ErrMalformedPayload, name, v)
		}
		return int64(v), true, nil
	default:
		return 0, false, fmt.Errorf("%w: field %q has type %T", ErrMalformedPayload, name, raw)
	}
}

func (p payload) stringField(name string) (string, bool, error) {
	raw, ok := p[name]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, fmt.Errorf("%w: field %q has type %T", ErrMalformedPayload, name, raw)
	}
	return s, true, nil
}

func (p payload) requiredString(name string) (string, error) {
	s, ok, err := p.stringField(name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrMalformedPayload, name)
	}
	return s, nil
}

func (p payload) requiredInt64(name string) (int64, error) {
	n, ok, err := p.intField(name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrMalformedPayload, name)
	}
	return n, nil
}

// reader accumulates the first error across several field reads.
type reader struct {
	p   payload
	err error
}

func (r *reader) intField(name string) int64 {
	if r.err != nil {
		return 0
	}
	n, _, err := r.p.intField(name)
	r.err = err
	return n
}

func (r *reader) stringField(name string) string {
	if r.err != nil {
		return ""
	}
	s, _, err := r.p.stringField(name)
	r.err = err
	return s
}

func (r *reader) requiredInt64(name string) int64 {
	if r.err != nil {
		return 0
	}
	n, err := r.p.requiredInt64(name)
	r.err = err
	return n
}

func (r *reader) requiredString(name string) string {
	if r.err != nil {
		return ""
	}
	s, err := r.p.requiredString(name)
	r.err = err
	return s
}
