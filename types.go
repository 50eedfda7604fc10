package formguard

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
)

// Status is the validation state of a control.
type Status uint8

const (
	StatusValid    Status = iota // All rules passed for the current value.
	StatusInvalid                // At least one rule reported an issue.
	StatusPending                // At least one async rule has not resolved yet.
	StatusDisabled               // Excluded from validation.
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "VALID"
	case StatusInvalid:
		return "INVALID"
	case StatusPending:
		return "PENDING"
	case StatusDisabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// SyncRule validates a value immediately. It returns nil when the value passes.
type SyncRule func(value any) *Issue

// AsyncRule validates a value that needs awaiting (typically a remote check).
// ctx is cancelled when value is superseded by a newer one; results of a
// superseded run are discarded by the field. f gives access to the field's
// siblings through f.Parent().
type AsyncRule func(ctx context.Context, f *Field, value any) *Issue

// Logger is the structured logger used by the gate and the adapters.
// *zap.SugaredLogger satisfies it.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// IsEmpty reports whether v counts as "no value": nil, an empty string, or an
// empty slice, map or array. Pointers are followed.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return true
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	default:
		return false
	}
}

// AsString renders scalar input as the string a user would have typed:
// strings and fmt.Stringers (json.Number included) as-is, integers in decimal
// and floats in their shortest form, so a decoded JSON 5551234567 gives
// "5551234567". Other values report false.
func AsString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return "", false
	}
}
