package metadata

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/viant/docvec"
)

// ValueKey returns the canonical string form of an indexable value. Strings,
// booleans and numbers are indexable. Integral numbers are rendered exactly,
// whatever their kind, so 9 and 9.0 produce the same key while integers
// beyond float64 precision stay distinct.
func ValueKey(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return "s:" + x, true
	case bool:
		return "b:" + strconv.FormatBool(x), true
	case nil:
		return "", false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "n:" + strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return "n:" + strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return floatKey(rv.Float())
	case reflect.String:
		return "s:" + rv.String(), true
	case reflect.Bool:
		return "b:" + strconv.FormatBool(rv.Bool()), true
	}
	return "", false
}

const two63 = 1 << 63

func floatKey(f float64) (string, bool) {
	if math.IsNaN(f) {
		return "", false
	}
	if f == math.Trunc(f) {
		switch {
		case f >= -two63 && f < two63:
			return "n:" + strconv.FormatInt(int64(f), 10), true
		case f >= two63 && f < 2*two63:
			return "n:" + strconv.FormatUint(uint64(f), 10), true
		}
	}
	return "n:" + strconv.FormatFloat(f, 'g', -1, 64), true
}

// Matches reports whether payload holds an equal value for every pair of
// filter. An empty filter matches every payload.
func Matches(payload docvec.Payload, filter docvec.Filter) bool {
	for field, want := range filter {
		wantKey, ok := ValueKey(want)
		if !ok {
			return false
		}
		got, ok := payload[field]
		if !ok {
			return false
		}
		if key, ok := ValueKey(got); !ok || key != wantKey {
			return false
		}
	}
	return true
}

// FilterKeys validates filter against the registered fields and returns the
// value key of every pair.
func FilterKeys(filter docvec.Filter, registered func(string) bool) (map[string]string, error) {
	if len(filter) == 0 {
		return nil, fmt.Errorf("%w: empty filter", docvec.ErrInvalidFilter)
	}
	keys := make(map[string]string, len(filter))
	for field, value := range filter {
		if !registered(field) {
			return nil, fmt.Errorf("%w: field %q is not indexed", docvec.ErrInvalidFilter, field)
		}
		key, ok := ValueKey(value)
		if !ok {
			return nil, fmt.Errorf("%w: field %q has unmatchable value of type %T", docvec.ErrInvalidFilter, field, value)
		}
		keys[field] = key
	}
	return keys, nil
}
