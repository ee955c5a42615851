package toml

import (
	"encoding"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"
)

var (
	durationType        = reflect.TypeOf(time.Duration(0))
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// Unmarshal parses data and stores the result in the value pointed to by v
func Unmarshal(data []byte, v any) error {
	return Decoder{}.Unmarshal(data, v)
}

// Decoder maps parsed documents onto Go values
// Struct fields are matched by `toml` tag, then by field name; a "-" tag skips the field
type Decoder struct {
	// Strict rejects document keys that no struct field consumes
	Strict bool
}

// Unmarshal parses data and decodes it into v
func (d Decoder) Unmarshal(data []byte, v any) error {
	doc, err := NewParser(data).Parse()
	if err != nil {
		return err
	}
	return d.Decode(doc, v)
}

// Decode maps a generic document (as returned by Parser.Parse) onto v, which must be a non-nil pointer
func (d Decoder) Decode(doc any, v any) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Pointer || val.IsNil() {
		return &Error{Msg: fmt.Sprintf("decode target must be a non-nil pointer, got %T", v)}
	}
	return d.value(doc, val.Elem(), "")
}

func (d Decoder) fail(path, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if path != "" {
		msg = path + ": " + msg
	}
	return &Error{Msg: msg}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func (d Decoder) value(data any, val reflect.Value, path string) error {
	if data == nil {
		return nil
	}

	if val.Kind() != reflect.Pointer && val.CanAddr() && val.Addr().Type().Implements(textUnmarshalerType) {
		s, ok := data.(string)
		if !ok {
			return d.fail(path, "expected string, got %T", data)
		}
		if err := val.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return d.fail(path, "%v", err)
		}
		return nil
	}

	if val.Type() == durationType {
		switch x := data.(type) {
		case string:
			dur, err := time.ParseDuration(x)
			if err != nil {
				return d.fail(path, "%v", err)
			}
			val.SetInt(int64(dur))
		case int64:
			val.SetInt(x * int64(time.Millisecond))
		default:
			return d.fail(path, "expected duration string or milliseconds, got %T", data)
		}
		return nil
	}

	switch val.Kind() {
	case reflect.Pointer:
		elem := reflect.New(val.Type().Elem())
		if err := d.value(data, elem.Elem(), path); err != nil {
			return err
		}
		val.Set(elem)

	case reflect.Struct:
		m, ok := data.(map[string]any)
		if !ok {
			return d.fail(path, "expected table, got %T", data)
		}
		return d.structure(m, val, path)

	case reflect.Slice:
		items, err := sliceOf(data)
		if err != nil {
			return d.fail(path, "%v", err)
		}
		out := reflect.MakeSlice(val.Type(), len(items), len(items))
		for i, item := range items {
			if err := d.value(item, out.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		val.Set(out)

	case reflect.Map:
		if val.Type().Key().Kind() != reflect.String {
			return d.fail(path, "map key must be a string, got %s", val.Type().Key())
		}
		m, ok := data.(map[string]any)
		if !ok {
			return d.fail(path, "expected table, got %T", data)
		}
		out := reflect.MakeMapWithSize(val.Type(), len(m))
		for k, item := range m {
			elem := reflect.New(val.Type().Elem()).Elem()
			if err := d.value(item, elem, join(path, k)); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(val.Type().Key()), elem)
		}
		val.Set(out)

	case reflect.Interface:
		if val.NumMethod() != 0 {
			return d.fail(path, "cannot decode into %s", val.Type())
		}
		val.Set(reflect.ValueOf(data))

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := data.(int64)
		if !ok {
			return d.fail(path, "expected integer, got %T", data)
		}
		if val.OverflowInt(n) {
			return d.fail(path, "%d overflows %s", n, val.Type())
		}
		val.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := data.(int64)
		if !ok {
			return d.fail(path, "expected integer, got %T", data)
		}
		if n < 0 || val.OverflowUint(uint64(n)) {
			return d.fail(path, "%d overflows %s", n, val.Type())
		}
		val.SetUint(uint64(n))

	case reflect.Float32, reflect.Float64:
		var f float64
		switch x := data.(type) {
		case float64:
			f = x
		case int64:
			f = float64(x)
		default:
			return d.fail(path, "expected number, got %T", data)
		}
		if val.Kind() == reflect.Float32 && !math.IsInf(f, 0) && val.OverflowFloat(f) {
			return d.fail(path, "%g overflows float32", f)
		}
		val.SetFloat(f)

	case reflect.String:
		s, ok := data.(string)
		if !ok {
			return d.fail(path, "expected string, got %T", data)
		}
		val.SetString(s)

	case reflect.Bool:
		b, ok := data.(bool)
		if !ok {
			return d.fail(path, "expected bool, got %T", data)
		}
		val.SetBool(b)

	default:
		return d.fail(path, "unsupported type %s", val.Type())
	}
	return nil
}

// sliceOf normalizes arrays and arrays of tables
func sliceOf(data any) ([]any, error) {
	switch x := data.(type) {
	case []any:
		return x, nil
	case []map[string]any:
		out := make([]any, len(x))
		for i, m := range x {
			out[i] = m
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected array, got %T", data)
}

func (d Decoder) structure(m map[string]any, val reflect.Value, path string) error {
	typ := val.Type()
	used := make(map[string]bool, len(m))

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		key := field.Name
		if tag, _, _ := strings.Cut(field.Tag.Get("toml"), ","); tag != "" {
			if tag == "-" {
				continue
			}
			key = tag
		}
		item, ok := m[key]
		if !ok {
			continue
		}
		used[key] = true
		if err := d.value(item, val.Field(i), join(path, key)); err != nil {
			return err
		}
	}

	if d.Strict && len(used) < len(m) {
		var unknown []string
		for k := range m {
			if !used[k] {
				unknown = append(unknown, join(path, k))
			}
		}
		sort.Strings(unknown)
		return d.fail("", "unknown keys %s", strings.Join(unknown, ", "))
	}
	return nil
}
