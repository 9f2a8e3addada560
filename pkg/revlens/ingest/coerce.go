package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// fields is one raw source record. JSON sources carry decoded values
// (json.Number for numbers); CSV sources carry strings only.
// A nil value is treated the same as an absent key.
type fields map[string]any

func (f fields) has(key string) bool {
	v, ok := f[key]
	return ok && v != nil
}

func (f fields) str(key, def string) (string, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("%w: field %q is %T, want text", ErrTypeCoercion, key, v)
	}
}

// integer truncates fractional JSON numbers toward zero. Text must hold a
// whole number.
func (f fields) integer(key string, def int64) (int64, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		fl, err := t.Float64()
		if err != nil || math.IsInf(fl, 0) || math.IsNaN(fl) || math.Abs(fl) > math.MaxInt64 {
			return 0, fmt.Errorf("%w: field %q value %s is not an integer", ErrTypeCoercion, key, t)
		}
		return int64(fl), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: field %q value %q is not an integer", ErrTypeCoercion, key, t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: field %q is %T, want integer", ErrTypeCoercion, key, v)
	}
}

func (f fields) decimal(key string, def float64) (float64, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return def, nil
	}
	var (
		fl  float64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		fl, err = t.Float64()
	case string:
		fl, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("%w: field %q is %T, want number", ErrTypeCoercion, key, v)
	}
	if err != nil || math.IsInf(fl, 0) || math.IsNaN(fl) {
		return 0, fmt.Errorf("%w: field %q value %v is not a finite number", ErrTypeCoercion, key, v)
	}
	return fl, nil
}
