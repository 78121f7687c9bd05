package main

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/pyrolite-go/pickle"
)

// toJSON converts decoded pickle value into something encoding/json-alike
// marshalers handle. Values without JSON counterpart become strings.
func toJSON(v any) any {
	switch v := v.(type) {
	case nil, pickle.None:
		return nil
	case bool, string, int64, uint64, int, []byte:
		return v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Sprint(v)
		}
		return v
	case pickle.Bytes:
		return []byte(v)
	case *pickle.List:
		return sliceToJSON(*v)
	case pickle.Tuple:
		return sliceToJSON(v)
	case pickle.Set:
		items := sliceToJSON(v.Items())
		sort.Slice(items, func(i, j int) bool {
			return fmt.Sprint(items[i]) < fmt.Sprint(items[j])
		})
		return items
	case pickle.Dict:
		m := make(map[string]any, v.Len())
		v.Iter()(func(k, x any) bool {
			m[keyString(k)] = toJSON(x)
			return true
		})
		return m
	case pickle.ClassDict:
		m := make(map[string]any, len(v))
		for k, x := range v {
			m[k] = toJSON(x)
		}
		return m
	case *pickle.PythonException:
		m := map[string]any{
			"__exception__": v.PythonType(),
			"message":       v.Message,
			"args":          sliceToJSON(v.Args),
		}
		if v.Traceback != "" {
			m["traceback"] = v.Traceback
		}
		for k, x := range v.Attributes {
			m[k] = toJSON(x)
		}
		return m
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case complex128:
		return fmt.Sprint(v)
	case fmt.Stringer:
		return v.String()
	}
	return v
}

func sliceToJSON(items []any) []any {
	out := make([]any, len(items))
	for i, x := range items {
		out[i] = toJSON(x)
	}
	return out
}

func keyString(k any) string {
	switch k := k.(type) {
	case string:
		return k
	case pickle.Bytes:
		return string(k)
	case fmt.Stringer:
		return k.String()
	}
	return fmt.Sprint(k)
}

// fromJSON converts value decoded from JSON with UseNumber into pickle
// values. Numbers that fit int64 stay integers.
func fromJSON(v any) any {
	switch v := v.(type) {
	case nil:
		return pickle.None{}
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return string(v)
	case []any:
		l := pickle.NewList()
		for _, x := range v {
			l.Append(fromJSON(x))
		}
		return l
	case map[string]any:
		d := pickle.NewDictWithSizeHint(len(v))
		for k, x := range v {
			d.Set(k, fromJSON(x))
		}
		return d
	}
	return v
}
