package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// TypecastSave converts a Go value into the form bound as a query parameter
// for a field of type fd.Type. Unknown types pass through.
func TypecastSave(fd FieldDescriptor, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch fd.Type {
	case TypeMoney:
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		return d.Round(2).InexactFloat64(), nil
	case TypeInteger:
		return toInt64(v)
	case TypeFloat:
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		return d.InexactFloat64(), nil
	case TypeBoolean:
		return toBool(v)
	}
	return v, nil
}

// TypecastLoad converts a raw driver value into the Go value exported for a
// field of type fd.Type. NULL stays nil; byte payloads become strings.
func TypecastLoad(fd FieldDescriptor, raw any) (any, error) {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if raw == nil {
		return nil, nil
	}
	switch fd.Type {
	case TypeMoney:
		d, err := toDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", fd.Name, err)
		}
		return d.Round(2).InexactFloat64(), nil
	case TypeInteger:
		n, err := toInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", fd.Name, err)
		}
		return n, nil
	case TypeFloat:
		d, err := toDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", fd.Name, err)
		}
		return d.InexactFloat64(), nil
	case TypeBoolean:
		b, err := toBool(raw)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", fd.Name, err)
		}
		return b, nil
	}
	return raw, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(x))
	case []byte:
		return decimal.NewFromString(strings.TrimSpace(string(x)))
	}
	return decimal.Decimal{}, fmt.Errorf("cannot convert %T to decimal", v)
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		if x != float64(int64(x)) {
			return 0, fmt.Errorf("%v is not an integer", x)
		}
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to integer", v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	}
	return false, fmt.Errorf("cannot convert %T to boolean", v)
}
