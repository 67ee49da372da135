package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"slices"
	"strings"
	"time"
	"unicode/utf16"
)

// ErrUnsupportedValue is returned when an argument value has no serialized
// form at all (channels, functions, complex numbers).
var ErrUnsupportedValue = errors.New("ir: unsupported value")

// IRValue is a sealed interface representing normalized argument values.
// Only the IR* types in this file implement it.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents a JSON null value.
type IRNull struct{}

func (IRNull) irValue() {}

// IRUndefined is a value that is present but undefined.
// It is distinct from both IRNull and an absent object field.
type IRUndefined struct{}

func (IRUndefined) irValue() {}

// Undefined can be placed in argument maps to mark a field as present but undefined.
var Undefined = IRUndefined{}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integral number.
type IRInt int64

func (IRInt) irValue() {}

// IRFloat represents a non-integral number, or NaN and the infinities.
// Integral floats inside the int64 range normalize to IRInt so that
// 1 and 1.0 produce the same key.
type IRFloat float64

func (IRFloat) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray represents an ordered list of values. Order is significant.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to values.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// IRDate represents a point in time, kept at millisecond precision in UTC.
type IRDate struct{ time.Time }

func (IRDate) irValue() {}

// IRBytes represents binary data.
type IRBytes []byte

func (IRBytes) irValue() {}

// IRBigInt represents an integer outside the int64 range.
type IRBigInt struct{ *big.Int }

func (IRBigInt) irValue() {}

// IRMap represents a map whose keys are not strings.
// Entries are kept sorted by the serialized form of their keys.
type IRMap []IRMapEntry

func (IRMap) irValue() {}

// IRMapEntry is a single key/value pair of an IRMap.
type IRMapEntry struct {
	Key   IRValue
	Value IRValue
}

// SortedKeys returns keys in UTF-16 code unit order, the order a JavaScript
// client produces with Object.keys(o).sort().
// Go's sort.Strings uses UTF-8 byte order, which differs for astral characters.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// compareKeysUTF16 compares strings by UTF-16 code units.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	bigIntType  = reflect.TypeOf((*big.Int)(nil))
	valueType   = reflect.TypeOf((*IRValue)(nil)).Elem()
	rawJSONType = reflect.TypeOf(json.RawMessage(nil))

	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

// Normalize converts an arbitrary Go value into the sealed IR model.
//
// Supported inputs: nil, IRValue, strings, booleans, every integer and float
// kind, json.Number, json.RawMessage, time.Time, []byte, *big.Int, maps,
// slices, arrays, pointers, and structs (field by field, named the way
// encoding/json names them).
func Normalize(v any) (IRValue, error) {
	return normalize(reflect.ValueOf(v))
}

func normalize(rv reflect.Value) (IRValue, error) {
	if !rv.IsValid() {
		return IRNull{}, nil
	}

	if rv.Kind() != reflect.Pointer && rv.Kind() != reflect.Interface && rv.Type().Implements(valueType) {
		return normalizeIR(rv.Interface().(IRValue))
	}

	switch rv.Type() {
	case timeType:
		return newDate(rv.Interface().(time.Time)), nil
	case bigIntType:
		if rv.IsNil() {
			return IRNull{}, nil
		}
		return normalizeBigInt(rv.Interface().(*big.Int)), nil
	case rawJSONType:
		return DecodeJSON(rv.Bytes())
	}

	if n, ok := rv.Interface().(json.Number); ok {
		return normalizeNumber(n)
	}

	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return IRNull{}, nil
		}
		return normalize(rv.Elem())
	case reflect.String:
		return IRString(rv.String()), nil
	case reflect.Bool:
		return IRBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return IRInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return IRBigInt{new(big.Int).SetUint64(u)}, nil
		}
		return IRInt(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return normalizeFloat(rv.Float()), nil
	case reflect.Slice:
		if rv.IsNil() {
			return IRNull{}, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return IRBytes(slices.Clone(rv.Bytes())), nil
		}
		return normalizeList(rv)
	case reflect.Array:
		return normalizeList(rv)
	case reflect.Map:
		if rv.IsNil() {
			return IRNull{}, nil
		}
		if rv.Type().Key().Kind() == reflect.String {
			return normalizeObject(rv)
		}
		return normalizeMap(rv)
	case reflect.Struct:
		return normalizeStruct(rv)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedValue, rv.Type())
	}
}

// normalizeIR re-normalizes containers built by hand so nested Go values and
// integral floats follow the same rules as reflected input.
func normalizeIR(v IRValue) (IRValue, error) {
	switch val := v.(type) {
	case IRFloat:
		return normalizeFloat(float64(val)), nil
	case IRDate:
		return newDate(val.Time), nil
	case IRBigInt:
		if val.Int == nil {
			return IRNull{}, nil
		}
		return normalizeBigInt(val.Int), nil
	case IRArray:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			n, err := normalizeIR(orNull(elem))
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = n
		}
		return arr, nil
	case IRObject:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			n, err := normalizeIR(orNull(elem))
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = n
		}
		return obj, nil
	case IRMap:
		entries := make([]IRMapEntry, 0, len(val))
		for _, e := range val {
			k, err := normalizeIR(orNull(e.Key))
			if err != nil {
				return nil, err
			}
			v, err := normalizeIR(orNull(e.Value))
			if err != nil {
				return nil, err
			}
			entries = append(entries, IRMapEntry{Key: k, Value: v})
		}
		return sortMap(entries), nil
	default:
		return v, nil
	}
}

func orNull(v IRValue) IRValue {
	if v == nil {
		return IRNull{}
	}
	return v
}

func newDate(t time.Time) IRDate {
	return IRDate{t.UTC().Truncate(time.Millisecond)}
}

func normalizeFloat(f float64) IRValue {
	if !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f) &&
		f >= math.MinInt64 && f < math.MaxInt64 {
		return IRInt(int64(f))
	}
	return IRFloat(f)
}

func normalizeBigInt(b *big.Int) IRValue {
	if b.IsInt64() {
		return IRInt(b.Int64())
	}
	return IRBigInt{new(big.Int).Set(b)}
}

func normalizeNumber(n json.Number) (IRValue, error) {
	if i, err := n.Int64(); err == nil {
		return IRInt(i), nil
	}
	if b, ok := new(big.Int).SetString(string(n), 10); ok {
		return IRBigInt{b}, nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("number %q: %w", n, err)
	}
	return normalizeFloat(f), nil
}

func normalizeList(rv reflect.Value) (IRValue, error) {
	arr := make(IRArray, rv.Len())
	for i := range arr {
		elem, err := normalize(rv.Index(i))
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		arr[i] = elem
	}
	return arr, nil
}

func normalizeObject(rv reflect.Value) (IRValue, error) {
	obj := make(IRObject, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key().String()
		elem, err := normalize(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("[%q]: %w", k, err)
		}
		obj[k] = elem
	}
	return obj, nil
}

func normalizeMap(rv reflect.Value) (IRValue, error) {
	entries := make([]IRMapEntry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := normalize(iter.Key())
		if err != nil {
			return nil, fmt.Errorf("map key: %w", err)
		}
		v, err := normalize(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}
		entries = append(entries, IRMapEntry{Key: k, Value: v})
	}
	return sortMap(entries), nil
}

// sortMap orders entries by the serialized form of their keys. Keys that
// only differ in their type tags, or Go keys that normalize to the same
// value, are ordered by their tagged encoding and then by value, so the
// order never depends on map iteration.
func sortMap(entries []IRMapEntry) IRMap {
	type sortKey struct{ plain, tagged, value string }
	keys := make([]sortKey, len(entries))
	for i, e := range entries {
		keys[i] = sortKey{
			plain:  string(encodePlain(e.Key)),
			tagged: string(Encode(e.Key)),
			value:  string(Encode(e.Value)),
		}
	}
	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		ka, kb := keys[a], keys[b]
		if c := compareKeysUTF16(ka.plain, kb.plain); c != 0 {
			return c
		}
		if c := strings.Compare(ka.tagged, kb.tagged); c != 0 {
			return c
		}
		return strings.Compare(ka.value, kb.value)
	})
	out := make(IRMap, len(entries))
	for i, j := range idx {
		out[i] = entries[j]
	}
	return out
}

// normalizeStruct walks the exported fields of a struct the way
// encoding/json names them, so nested dates, bytes and big integers keep
// their tags. Types with their own MarshalJSON go through their JSON form.
func normalizeStruct(rv reflect.Value) (IRValue, error) {
	if rv.Type().Implements(jsonMarshalerType) {
		data, err := json.Marshal(rv.Interface())
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedValue, rv.Type(), err)
		}
		return DecodeJSON(data)
	}

	obj := make(IRObject)
	if err := collectFields(rv, obj, make(map[string]int), 0); err != nil {
		return nil, err
	}
	return obj, nil
}

// collectFields adds the fields of rv to obj. depth records where each name
// was set; a shallower field wins over a promoted one.
func collectFields(rv reflect.Value, obj IRObject, depth map[string]int, level int) error {
	t := rv.Type()
	var embedded []reflect.Value
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, tagged := fieldName(f)
		if name == "-" && !tagged {
			continue
		}
		fv := rv.Field(i)

		if f.Anonymous && !tagged {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if fv.Kind() == reflect.Pointer {
					if fv.IsNil() {
						continue
					}
					fv = fv.Elem()
				}
				embedded = append(embedded, fv)
				continue
			}
		}

		if slices.Contains(opts, "omitempty") && isEmptyValue(fv) {
			continue
		}
		if slices.Contains(opts, "omitzero") && fv.IsZero() {
			continue
		}
		if d, ok := depth[name]; ok && d <= level {
			continue
		}

		n, err := normalize(fv)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t, f.Name, err)
		}
		if slices.Contains(opts, "string") {
			n = quoteScalar(n)
		}
		obj[name] = n
		depth[name] = level
	}

	for _, ev := range embedded {
		if err := collectFields(ev, obj, depth, level+1); err != nil {
			return err
		}
	}
	return nil
}

// fieldName returns the JSON name of f, its tag options, and whether the
// name came from a json tag.
func fieldName(f reflect.StructField) (string, []string, bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return f.Name, nil, false
	}
	if tag == "-" {
		return "-", nil, false
	}
	name, rest, _ := strings.Cut(tag, ",")
	var opts []string
	if rest != "" {
		opts = strings.Split(rest, ",")
	}
	if name == "" {
		return f.Name, opts, false
	}
	return name, opts, true
}

// isEmptyValue matches the omitempty rule of encoding/json.
func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Interface, reflect.Pointer:
		return v.IsZero()
	}
	return false
}

// quoteScalar applies the ",string" option: scalars are written as their
// JSON text inside a string.
func quoteScalar(v IRValue) IRValue {
	switch val := v.(type) {
	case IRString:
		return IRString(marshalString(string(val)))
	case IRInt, IRFloat, IRBool:
		return IRString(encodePlain(val))
	}
	return v
}

// DecodeJSON parses a JSON document into the IR model, keeping integers exact.
func DecodeJSON(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("ir: decode json: %w", err)
	}
	return Normalize(raw)
}
