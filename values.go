package orm

import (
	"bytes"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tinywasm/fmt"
)

// normalize converts v to the canonical Go representation of t:
// string, int64, float64, bool, []byte, decimal.Decimal or uuid.UUID.
// nil stays nil.
func normalize(t FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeText:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case TypeInt64:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int8:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		case uint:
			if uint64(x) <= math.MaxInt64 {
				return int64(x), nil
			}
		case uint8:
			return int64(x), nil
		case uint16:
			return int64(x), nil
		case uint32:
			return int64(x), nil
		case uint64:
			if x <= math.MaxInt64 {
				return int64(x), nil
			}
		case float64:
			if x == float64(int64(x)) {
				return int64(x), nil
			}
		}
	case TypeFloat64:
		switch x := v.(type) {
		case float32:
			return float64(x), nil
		case float64:
			return x, nil
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		}
	case TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case int:
			return x != 0, nil
		}
	case TypeBlob:
		switch x := v.(type) {
		case []byte:
			return append([]byte(nil), x...), nil
		case string:
			return []byte(x), nil
		}
	case TypeDecimal:
		switch x := v.(type) {
		case decimal.Decimal:
			return x, nil
		case string:
			return decimal.NewFromString(x)
		case []byte:
			return decimal.NewFromString(string(x))
		case int64:
			return decimal.NewFromInt(x), nil
		case int:
			return decimal.NewFromInt(int64(x)), nil
		case float64:
			return decimal.NewFromFloat(x), nil
		}
	case TypeUUID:
		switch x := v.(type) {
		case uuid.UUID:
			return x, nil
		case string:
			return uuid.Parse(x)
		case []byte:
			if len(x) == 16 {
				return uuid.FromBytes(x)
			}
			return uuid.ParseBytes(x)
		}
	}
	return nil, fmt.Err(ErrValidation, fmt.Sprintf("cannot use %v as %s", v, t.String()))
}

// equalValues compares two normalized values of type t.
func equalValues(t FieldType, a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch t {
	case TypeDecimal:
		da, okA := a.(decimal.Decimal)
		db, okB := b.(decimal.Decimal)
		return okA && okB && da.Equal(db)
	case TypeBlob:
		ba, okA := a.([]byte)
		bb, okB := b.([]byte)
		return okA && okB && bytes.Equal(ba, bb)
	}
	return a == b
}

// keyString renders a normalized primary key for identity lookups.
func keyString(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	case uuid.UUID:
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}
