package policykit

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Boundary coercion. Request payloads arrive as JSON-decoded values
// (string, float64, bool) or as raw query-parameter strings; coercion turns
// them into the declared field type before any constraint runs. A value that
// cannot be coerced is a validation failure, never a crash and never a
// silently passed-through malformed value.
//
// Every coercer accepts its own output type, which is what makes Validate
// idempotent over already-coerced payloads.

func coerceValue(t FieldType, value any) (any, error) {
	switch t {
	case FieldString, FieldEnum:
		return coerceString(value)
	case FieldInteger:
		return coerceInteger(value)
	case FieldBoolean:
		return coerceBoolean(value)
	case FieldUUID:
		return coerceUUID(value)
	case FieldTimestamp:
		return coerceTimestamp(value)
	case FieldDecimal:
		return coerceDecimal(value)
	default:
		return nil, fmt.Errorf("unsupported field type %q", t)
	}
}

func coerceString(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("must be a string")
	}
	return s, nil
}

func coerceInteger(value any) (any, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		// encoding/json decodes every number to float64.
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, fmt.Errorf("must be an integer")
		}
		if v > math.MaxInt64 || v < math.MinInt64 {
			return nil, fmt.Errorf("integer out of range")
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("must be an integer")
		}
		return n, nil
	default:
		return nil, fmt.Errorf("must be an integer")
	}
}

func coerceBoolean(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("must be a boolean")
		}
		return b, nil
	default:
		return nil, fmt.Errorf("must be a boolean")
	}
}

func coerceUUID(value any) (any, error) {
	switch v := value.(type) {
	case uuid.UUID:
		return v.String(), nil
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("must be a UUID")
		}
		// Canonical lowercase form, whatever variant was supplied.
		return id.String(), nil
	default:
		return nil, fmt.Errorf("must be a UUID")
	}
}

func coerceTimestamp(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		// RFC3339Nano parses both with and without fractional seconds.
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("must be an RFC 3339 timestamp")
		}
		return ts, nil
	default:
		return nil, fmt.Errorf("must be an RFC 3339 timestamp")
	}
}

func coerceDecimal(value any) (any, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("must be a decimal number")
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	default:
		return nil, fmt.Errorf("must be a decimal number")
	}
}
