package ir

import (
	"bytes"
	"cmp"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Type tags recorded in the envelope's meta section for values JSON cannot
// represent on its own. Names follow the superjson wire format so keys stay
// readable next to keys produced by JavaScript clients.
const (
	TagUndefined = "undefined"
	TagDate      = "Date"
	TagBigInt    = "bigint"
	TagNumber    = "number"
	TagMap       = "map"
	TagBytes     = "bytes"
)

// Serialize normalizes v and encodes it into the structure-preserving
// envelope used for cache keys:
//
//	{"json":<plain JSON, keys sorted>,"meta":{"values":{"<path>":["<tag>"]}}}
//
// The meta section is omitted when every value is JSON-native. Semantically
// distinct arguments (undefined vs null vs absent, a Date vs its ISO string)
// never serialize to the same bytes.
func Serialize(v any) ([]byte, error) {
	n, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	return Encode(n), nil
}

// Encode serializes an already normalized value into the envelope.
func Encode(v IRValue) []byte {
	enc := &encoder{}
	ann := enc.value(v)

	var buf bytes.Buffer
	buf.WriteString(`{"json":`)
	buf.Write(enc.buf.Bytes())
	if ann != nil {
		buf.WriteString(`,"meta":{"values":`)
		ann.writeTo(&buf)
		buf.WriteString(`}`)
	}
	buf.WriteString(`}`)
	return buf.Bytes()
}

// Canonical re-encodes a JSON document with sorted object keys, no HTML
// escaping and a single numeric form, so structurally equal documents
// produce identical bytes.
func Canonical(data []byte) ([]byte, error) {
	v, err := DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	return encodePlain(v), nil
}

// EqualJSON reports whether two JSON documents are structurally equal.
// A nil document is only equal to another nil document; malformed JSON
// falls back to a byte comparison.
func EqualJSON(a, b []byte) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ca, errA := Canonical(a)
	cb, errB := Canonical(b)
	if errA != nil || errB != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca, cb)
}

// encodePlain writes only the JSON part of the envelope.
func encodePlain(v IRValue) []byte {
	enc := &encoder{}
	enc.value(v)
	return enc.buf.Bytes()
}

// annotation is a node of the meta tree. A tagged node is written as
// [tag] or [tag, children]; an untagged node is written as its children.
// Child paths are relative to the nearest tagged ancestor, so the paths
// inside a map entry restart at the map.
type annotation struct {
	tag      string
	paths    []string
	children map[string]*annotation
}

func (a *annotation) put(path string, child *annotation) {
	if a.children == nil {
		a.children = make(map[string]*annotation)
	}
	if _, ok := a.children[path]; !ok {
		a.paths = append(a.paths, path)
	}
	a.children[path] = child
}

// add attaches the annotation of the child at seg, flattening untagged
// children into dotted paths.
func (a *annotation) add(seg string, child *annotation) {
	if child == nil {
		return
	}
	seg = pathEscaper.Replace(seg)
	if child.tag != "" {
		a.put(seg, child)
		return
	}
	for _, p := range child.paths {
		a.put(seg+"."+p, child.children[p])
	}
}

// result returns a, or nil when it carries nothing.
func (a *annotation) result() *annotation {
	if a.tag == "" && len(a.paths) == 0 {
		return nil
	}
	return a
}

func (a *annotation) writeTo(buf *bytes.Buffer) {
	if a.tag != "" {
		buf.WriteByte('[')
		buf.Write(marshalString(a.tag))
		if len(a.paths) > 0 {
			buf.WriteByte(',')
			a.writeChildren(buf)
		}
		buf.WriteByte(']')
		return
	}
	a.writeChildren(buf)
}

func (a *annotation) writeChildren(buf *bytes.Buffer) {
	buf.WriteByte('{')
	for i, p := range propertyOrder(a.paths) {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(marshalString(p))
		buf.WriteByte(':')
		a.children[p].writeTo(buf)
	}
	buf.WriteByte('}')
}

type encoder struct {
	buf bytes.Buffer
}

// value writes v and returns its annotation, nil when v and everything under
// it is JSON-native.
func (e *encoder) value(v IRValue) *annotation {
	switch val := v.(type) {
	case nil, IRNull:
		e.buf.WriteString("null")
	case IRUndefined:
		e.buf.WriteString("null")
		return &annotation{tag: TagUndefined}
	case IRString:
		e.buf.Write(marshalString(string(val)))
	case IRInt:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case IRFloat:
		if tag := e.float(float64(val)); tag != "" {
			return &annotation{tag: tag}
		}
	case IRBool:
		e.buf.WriteString(strconv.FormatBool(bool(val)))
	case IRDate:
		e.buf.Write(marshalString(val.UTC().Format("2006-01-02T15:04:05.000Z")))
		return &annotation{tag: TagDate}
	case IRBytes:
		e.buf.Write(marshalString(base64.StdEncoding.EncodeToString(val)))
		return &annotation{tag: TagBytes}
	case IRBigInt:
		e.buf.Write(marshalString(val.String()))
		return &annotation{tag: TagBigInt}
	case IRArray:
		node := &annotation{}
		e.buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			node.add(strconv.Itoa(i), e.value(elem))
		}
		e.buf.WriteByte(']')
		return node.result()
	case IRObject:
		node := &annotation{}
		e.buf.WriteByte('{')
		for i, k := range propertyOrder(val.SortedKeys()) {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			e.buf.Write(marshalString(k))
			e.buf.WriteByte(':')
			node.add(k, e.value(val[k]))
		}
		e.buf.WriteByte('}')
		return node.result()
	case IRMap:
		node := &annotation{tag: TagMap}
		e.buf.WriteByte('[')
		for i, entry := range val {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			pair := &annotation{}
			e.buf.WriteByte('[')
			pair.add("0", e.value(entry.Key))
			e.buf.WriteByte(',')
			pair.add("1", e.value(entry.Value))
			e.buf.WriteByte(']')
			node.add(strconv.Itoa(i), pair.result())
		}
		e.buf.WriteByte(']')
		return node
	default:
		// Unreachable for values produced by Normalize.
		e.buf.Write(marshalString(fmt.Sprintf("%v", val)))
	}
	return nil
}

// float writes f and returns the tag it needs, if any.
func (e *encoder) float(f float64) string {
	switch {
	case math.IsNaN(f):
		e.buf.WriteString(`"NaN"`)
		return TagNumber
	case math.IsInf(f, 1):
		e.buf.WriteString(`"Infinity"`)
		return TagNumber
	case math.IsInf(f, -1):
		e.buf.WriteString(`"-Infinity"`)
		return TagNumber
	default:
		// encoding/json formats finite floats the way ECMAScript does.
		b, _ := json.Marshal(f)
		e.buf.Write(b)
		return ""
	}
}

// propertyOrder returns keys in the order a JavaScript object enumerates
// them: array-index keys ascending by value first, then the rest in the
// given order.
func propertyOrder(keys []string) []string {
	var indices, names []string
	for _, k := range keys {
		if _, ok := arrayIndex(k); ok {
			indices = append(indices, k)
		} else {
			names = append(names, k)
		}
	}
	if len(indices) == 0 {
		return keys
	}
	slices.SortStableFunc(indices, func(a, b string) int {
		x, _ := arrayIndex(a)
		y, _ := arrayIndex(b)
		return cmp.Compare(x, y)
	})
	return append(indices, names...)
}

// arrayIndex reports whether k is the canonical decimal form of an integer
// in [0, 2^32-2].
func arrayIndex(k string) (uint64, bool) {
	if k == "" || (len(k) > 1 && k[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseUint(k, 10, 32)
	if err != nil || n == math.MaxUint32 {
		return 0, false
	}
	return n, true
}

var pathEscaper = strings.NewReplacer(`\`, `\\`, `.`, `\.`)

// marshalString produces a JSON string without HTML escaping.
// U+2028 and U+2029 are written literally, as JSON.stringify does.
func marshalString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // strings always encode

	result := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	if !bytes.Contains(result, []byte(`\u202`)) {
		return result
	}
	return unescapeLineSeparators(result)
}

// unescapeLineSeparators rewrites \u2028 and \u2029 escapes to the literal
// characters. An escape preceded by an odd number of backslashes is literal
// text (\\u2028) and stays untouched.
func unescapeLineSeparators(data []byte) []byte {
	out := make([]byte, 0, len(data))
	backslashes := 0
	for i := 0; i < len(data); i++ {
		c := data[i]
		if c == '\\' && backslashes%2 == 0 && i+5 < len(data) &&
			string(data[i+1:i+5]) == "u202" && (data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			backslashes = 0
			continue
		}
		if c == '\\' {
			backslashes++
		} else {
			backslashes = 0
		}
		out = append(out, c)
	}
	return out
}
