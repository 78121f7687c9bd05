package pickle

// conversion in between Go types to match Python.

import (
	"fmt"
	"math"
)

// AsInt64 tries to represent unpickled value to int64.
//
// Python int is decoded as int64, except for text INT and LONG values that
// only fit into uint64. Go code should use AsInt64 to accept normal-range
// integers independently of their representation.
func AsInt64(x any) (int64, error) {
	switch x := x.(type) {
	case int64:
		return x, nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("int outside of int64 range")
		}
		return int64(x), nil
	}
	return 0, fmt.Errorf("expect int64; got %T", x)
}

// AsFloat64 tries to represent unpickled number as float64.
//
// It succeeds for floats and for integers.
func AsFloat64(x any) (float64, error) {
	switch x := x.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("expect float|int; got %T", x)
}

// AsBytes tries to represent unpickled value as Bytes.
//
// It succeeds only if the value is either [Bytes], or bytearray ([]byte).
// It does not succeed if the value is string or any other type.
func AsBytes(x any) (Bytes, error) {
	switch x := x.(type) {
	case Bytes:
		return x, nil
	case []byte:
		return Bytes(x), nil
	}
	return "", fmt.Errorf("expect bytes|bytearray; got %T", x)
}

// AsString tries to represent unpickled value as string.
//
// It succeeds only if the value is string. Python 2 str is decoded as string
// too, with one character per byte.
// It does not succeed if the value is [Bytes] or any other type.
func AsString(x any) (string, error) {
	switch x := x.(type) {
	case string:
		return x, nil
	}
	return "", fmt.Errorf("expect str; got %T", x)
}

// AsList tries to represent unpickled value as slice of items.
//
// It succeeds for list and tuple.
func AsList(x any) ([]any, error) {
	switch x := x.(type) {
	case *List:
		return *x, nil
	case Tuple:
		return x, nil
	}
	return nil, fmt.Errorf("expect list|tuple; got %T", x)
}
