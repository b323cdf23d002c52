package domain

import (
	"bytes"
	"fmt"

	"github.com/eleven-am/flowgraph/internal/xjson"
)

type ValueKind string

const (
	ValueKindNull   ValueKind = "Null"
	ValueKindBool   ValueKind = "Bool"
	ValueKindNumber ValueKind = "Number"
	ValueKindString ValueKind = "String"
	ValueKindBytes  ValueKind = "Bytes"
	ValueKindJson   ValueKind = "Json"
	ValueKindArray  ValueKind = "Array"
	ValueKindObject ValueKind = "Object"
)

// Value is the tagged variant carried between nodes. Consumers narrow via
// the As* accessors; the zero Value is Null.
type Value struct {
	kind  ValueKind
	boolV bool
	numV  float64
	strV  string
	bytsV []byte
	jsonV xjson.RawMessage
	arrV  []Value
	objV  map[string]Value
}

func NullValue() Value {
	return Value{kind: ValueKindNull}
}

func BoolValue(b bool) Value {
	return Value{kind: ValueKindBool, boolV: b}
}

func NumberValue(n float64) Value {
	return Value{kind: ValueKindNumber, numV: n}
}

func IntValue(n int64) Value {
	return Value{kind: ValueKindNumber, numV: float64(n)}
}

func StringValue(s string) Value {
	return Value{kind: ValueKindString, strV: s}
}

func BytesValue(b []byte) Value {
	return Value{kind: ValueKindBytes, bytsV: b}
}

func JsonValue(raw xjson.RawMessage) Value {
	return Value{kind: ValueKindJson, jsonV: raw}
}

func ArrayValue(items ...Value) Value {
	return Value{kind: ValueKindArray, arrV: items}
}

func ObjectValue(fields map[string]Value) Value {
	if fields == nil {
		fields = make(map[string]Value)
	}
	return Value{kind: ValueKindObject, objV: fields}
}

func (v Value) Kind() ValueKind {
	if v.kind == "" {
		return ValueKindNull
	}
	return v.kind
}

func (v Value) IsNull() bool {
	return v.Kind() == ValueKindNull
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != ValueKindBool {
		return false, false
	}
	return v.boolV, true
}

func (v Value) AsFloat() (float64, bool) {
	if v.kind != ValueKindNumber {
		return 0, false
	}
	return v.numV, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != ValueKindString {
		return "", false
	}
	return v.strV, true
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != ValueKindBytes {
		return nil, false
	}
	return v.bytsV, true
}

func (v Value) AsJSON() (xjson.RawMessage, bool) {
	if v.kind != ValueKindJson {
		return nil, false
	}
	return v.jsonV, true
}

func (v Value) AsArray() ([]Value, bool) {
	if v.kind != ValueKindArray {
		return nil, false
	}
	return v.arrV, true
}

func (v Value) AsObject() (map[string]Value, bool) {
	if v.kind != ValueKindObject {
		return nil, false
	}
	return v.objV, true
}

// Equal compares values structurally. Json payloads are decoded and
// re-encoded before comparison, so object key order does not matter.
func (v Value) Equal(other Value) bool {
	if v.Kind() != other.Kind() {
		return false
	}
	switch v.Kind() {
	case ValueKindNull:
		return true
	case ValueKindBool:
		return v.boolV == other.boolV
	case ValueKindNumber:
		return v.numV == other.numV
	case ValueKindString:
		return v.strV == other.strV
	case ValueKindBytes:
		return bytes.Equal(v.bytsV, other.bytsV)
	case ValueKindJson:
		return jsonEqual(v.jsonV, other.jsonV)
	case ValueKindArray:
		if len(v.arrV) != len(other.arrV) {
			return false
		}
		for i := range v.arrV {
			if !v.arrV[i].Equal(other.arrV[i]) {
				return false
			}
		}
		return true
	case ValueKindObject:
		if len(v.objV) != len(other.objV) {
			return false
		}
		for k, val := range v.objV {
			ov, ok := other.objV[k]
			if !ok || !val.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

func jsonEqual(a, b xjson.RawMessage) bool {
	var av, bv interface{}
	if err := xjson.Unmarshal(a, &av); err != nil {
		return bytes.Equal(a, b)
	}
	if err := xjson.Unmarshal(b, &bv); err != nil {
		return false
	}
	ab, err := xjson.Marshal(av)
	if err != nil {
		return false
	}
	bb, err := xjson.Marshal(bv)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

type taggedValue struct {
	Type  ValueKind        `json:"type"`
	Value xjson.RawMessage `json:"value,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch v.Kind() {
	case ValueKindNull:
		return xjson.Marshal(taggedValue{Type: ValueKindNull})
	case ValueKindBool:
		payload = v.boolV
	case ValueKindNumber:
		payload = v.numV
	case ValueKindString:
		payload = v.strV
	case ValueKindBytes:
		payload = v.bytsV
	case ValueKindJson:
		payload = v.jsonV
	case ValueKindArray:
		if v.arrV == nil {
			payload = []Value{}
		} else {
			payload = v.arrV
		}
	case ValueKindObject:
		if v.objV == nil {
			payload = map[string]Value{}
		} else {
			payload = v.objV
		}
	}
	raw, err := xjson.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return xjson.Marshal(taggedValue{Type: v.Kind(), Value: raw})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var tagged taggedValue
	if err := xjson.Unmarshal(data, &tagged); err != nil {
		return NewValidationError("value", "malformed tagged value: "+err.Error())
	}

	switch tagged.Type {
	case ValueKindNull:
		*v = NullValue()
		return nil
	case ValueKindBool:
		var b bool
		if err := xjson.Unmarshal(tagged.Value, &b); err != nil {
			return NewValidationError("value", "Bool payload is not a boolean")
		}
		*v = BoolValue(b)
		return nil
	case ValueKindNumber:
		var n float64
		if err := xjson.Unmarshal(tagged.Value, &n); err != nil {
			return NewValidationError("value", "Number payload is not numeric")
		}
		*v = NumberValue(n)
		return nil
	case ValueKindString:
		var s string
		if err := xjson.Unmarshal(tagged.Value, &s); err != nil {
			return NewValidationError("value", "String payload is not a string")
		}
		*v = StringValue(s)
		return nil
	case ValueKindBytes:
		var b []byte
		if err := xjson.Unmarshal(tagged.Value, &b); err != nil {
			return NewValidationError("value", "Bytes payload is not base64")
		}
		*v = BytesValue(b)
		return nil
	case ValueKindJson:
		if tagged.Value == nil {
			return NewValidationError("value", "Json payload missing")
		}
		raw := make(xjson.RawMessage, len(tagged.Value))
		copy(raw, tagged.Value)
		*v = JsonValue(raw)
		return nil
	case ValueKindArray:
		var items []Value
		if err := xjson.Unmarshal(tagged.Value, &items); err != nil {
			return NewValidationError("value", "Array payload is not a value list")
		}
		*v = ArrayValue(items...)
		return nil
	case ValueKindObject:
		var fields map[string]Value
		if err := xjson.Unmarshal(tagged.Value, &fields); err != nil {
			return NewValidationError("value", "Object payload is not a value map")
		}
		*v = ObjectValue(fields)
		return nil
	default:
		return NewValidationError("value", fmt.Sprintf("unknown value tag %q", string(tagged.Type)))
	}
}

func (v Value) String() string {
	switch v.Kind() {
	case ValueKindNull:
		return "null"
	case ValueKindBool:
		return fmt.Sprintf("%t", v.boolV)
	case ValueKindNumber:
		return fmt.Sprintf("%g", v.numV)
	case ValueKindString:
		return v.strV
	case ValueKindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.bytsV))
	case ValueKindJson:
		return string(v.jsonV)
	case ValueKindArray:
		return fmt.Sprintf("array(%d)", len(v.arrV))
	case ValueKindObject:
		return fmt.Sprintf("object(%d)", len(v.objV))
	}
	return "unknown"
}
